package instruments

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sabarim/fyerschain/internal/apperrors"
	"github.com/sabarim/fyerschain/internal/fyers"
	"github.com/sabarim/fyerschain/internal/logger"
	"go.uber.org/zap"
)

// Catalog is one immutable snapshot of the option series in the symbol master
type Catalog struct {
	FetchedAt time.Time
	Options   int
	index     map[lookupKey][]candidate
}

// SymbolResolver downloads the symbol master and resolves option series in it
type SymbolResolver struct {
	catalogURL string
	httpClient *http.Client
	logger     *zap.Logger
	ttl        time.Duration
	now        func() time.Time

	mu       sync.Mutex
	snapshot *Catalog
}

// NewSymbolResolver creates a resolver. With ttl 0 the catalog is downloaded
// on every resolution; a positive ttl reuses a snapshot until it ages out.
func NewSymbolResolver(catalogURL string, httpClient *http.Client, ttl time.Duration, log *zap.Logger) *SymbolResolver {
	return &SymbolResolver{
		catalogURL: catalogURL,
		httpClient: httpClient,
		logger:     logger.OrNop(log),
		ttl:        ttl,
		now:        time.Now,
	}
}

// ResolveSymbol finds the unique series for (underlying, expiryDate, side).
// expiryDate is YYYY-MM-DD in UTC.
func (sr *SymbolResolver) ResolveSymbol(ctx context.Context, underlying, expiryDate string, side OptionSide) (SymbolRecord, error) {
	const op = "instruments.ResolveSymbol"

	catalog, err := sr.Catalog(ctx)
	if err != nil {
		return SymbolRecord{}, err
	}

	matches := catalog.index[lookupKey{underlying: underlying, expiry: expiryDate, side: side}]
	switch len(matches) {
	case 0:
		return SymbolRecord{}, apperrors.New(apperrors.KindSymbolNotFound, op,
			fmt.Sprintf("no %s series for %s expiring %s", side, underlying, expiryDate))
	case 1:
	default:
		ids := make([]string, 0, len(matches))
		for _, m := range matches {
			ids = append(ids, m.record.SymbolID)
		}
		sr.logger.Error("Ambiguous symbol master entry",
			zap.String("underlying", underlying),
			zap.String("expiry", expiryDate),
			zap.String("side", string(side)),
			zap.Strings("symbols", ids))
		return SymbolRecord{}, apperrors.New(apperrors.KindDataIntegrity, op,
			fmt.Sprintf("%d series match %s %s %s: %v", len(matches), underlying, expiryDate, side, ids))
	}

	match := matches[0]
	if match.lotErr != nil {
		sr.logger.Error("Invalid lot size in symbol master",
			zap.String("symbol", match.record.SymbolID),
			zap.Error(match.lotErr))
		return SymbolRecord{}, apperrors.Wrap(apperrors.KindDataIntegrity, op,
			fmt.Sprintf("invalid lot size for %s", match.record.SymbolID), match.lotErr)
	}

	sr.logger.Info("Resolved symbol",
		zap.String("symbol", match.record.SymbolID),
		zap.Int64("lot_size", match.record.LotSize))
	return match.record, nil
}

// Catalog returns the current snapshot, downloading a new one when needed
func (sr *SymbolResolver) Catalog(ctx context.Context) (*Catalog, error) {
	sr.mu.Lock()
	if sr.snapshot != nil && sr.ttl > 0 && sr.now().Sub(sr.snapshot.FetchedAt) < sr.ttl {
		snapshot := sr.snapshot
		sr.mu.Unlock()
		return snapshot, nil
	}
	sr.mu.Unlock()

	catalog, err := sr.download(ctx)
	if err != nil {
		return nil, err
	}

	sr.mu.Lock()
	sr.snapshot = catalog
	sr.mu.Unlock()
	return catalog, nil
}

// download fetches the symbol master and builds a fresh snapshot
func (sr *SymbolResolver) download(ctx context.Context) (*Catalog, error) {
	const op = "instruments.download"

	sr.logger.Info("Downloading symbol master", zap.String("url", sr.catalogURL))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sr.catalogURL, nil)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindDataFetch, op, "failed to create request", err)
	}

	resp, err := fyers.Do(sr.httpClient, req)
	if err != nil {
		sr.logger.Error("Symbol master unreachable", zap.Error(err))
		return nil, apperrors.Transport(apperrors.KindDataFetch, op, err)
	}
	if !resp.OK() {
		sr.logger.Error("Symbol master error response", zap.Int("statusCode", resp.StatusCode))
		return nil, apperrors.New(apperrors.KindDataFetch, op,
			fmt.Sprintf("symbol master returned status code %d", resp.StatusCode))
	}

	var raw map[string]catalogEntry
	if err := json.Unmarshal(resp.Body, &raw); err != nil {
		return nil, apperrors.Wrap(apperrors.KindDataFetch, op, "failed to decode symbol master", err)
	}

	catalog := buildCatalog(raw, sr.logger)
	catalog.FetchedAt = sr.now()
	sr.logger.Info("Loaded symbol master",
		zap.Int("entries", len(raw)),
		zap.Int("options", catalog.Options))
	return catalog, nil
}

// buildCatalog drops non-option rows (futures carry optType XX) and indexes
// the rest by (underlying, expiry date, side).
func buildCatalog(raw map[string]catalogEntry, log *zap.Logger) *Catalog {
	catalog := &Catalog{index: make(map[lookupKey][]candidate)}

	for symbolID, entry := range raw {
		side, err := ParseSide(entry.OptType)
		if err != nil {
			continue
		}

		expiryTs, err := entry.ExpiryDate.Int()
		if err != nil {
			log.Debug("Skipping option with unreadable expiry",
				zap.String("symbol", symbolID), zap.Error(err))
			continue
		}

		record := SymbolRecord{
			SymbolID:   symbolID,
			Underlying: entry.UnderSym,
			Side:       side,
			ExpiryDate: time.Unix(expiryTs, 0).UTC().Format("2006-01-02"),
		}

		c := candidate{record: record}
		lot, err := entry.MinLotSize.Int()
		switch {
		case err != nil:
			c.lotErr = err
		case lot <= 0:
			c.lotErr = fmt.Errorf("lot size %d is not positive", lot)
		default:
			c.record.LotSize = lot
		}

		key := lookupKey{underlying: record.Underlying, expiry: record.ExpiryDate, side: side}
		catalog.index[key] = append(catalog.index[key], c)
		catalog.Options++
	}

	return catalog
}
