package optionchain

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/sabarim/fyerschain/internal/apperrors"
	"github.com/sabarim/fyerschain/internal/fyers"
	"github.com/sabarim/fyerschain/internal/instruments"
	"github.com/sabarim/fyerschain/internal/logger"
	"go.uber.org/zap"
)

const (
	// MaxStrikeCount is the upstream limit on strikes per side
	MaxStrikeCount     = 50
	DefaultStrikeCount = 40
)

// OptionQuote is one priceable row of a chain
type OptionQuote struct {
	Symbol      string
	Side        instruments.OptionSide
	StrikePrice float64
	Bid         float64
	Ask         float64
}

type chainRow struct {
	Ask         float64 `json:"ask"`
	Bid         float64 `json:"bid"`
	OptionType  string  `json:"option_type"`
	StrikePrice float64 `json:"strike_price"`
	Symbol      string  `json:"symbol"`
}

type chainResponse struct {
	fyers.Envelope
	Data struct {
		OptionsChain []chainRow `json:"optionsChain"`
	} `json:"data"`
}

// Fetcher reads option chains from the Fyers data API
type Fetcher struct {
	baseURL    string
	httpClient *http.Client
	auth       fyers.Authorizer
	logger     *zap.Logger
}

// NewFetcher creates a fetcher. auth is asked for a header on every call.
func NewFetcher(baseURL string, httpClient *http.Client, auth fyers.Authorizer, log *zap.Logger) *Fetcher {
	return &Fetcher{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
		auth:       auth,
		logger:     logger.OrNop(log),
	}
}

// FetchChain returns the priceable quotes around the money for symbol.
// strikeCount is clamped to [1, MaxStrikeCount]; 0 means DefaultStrikeCount.
func (f *Fetcher) FetchChain(ctx context.Context, symbol string, strikeCount int) ([]OptionQuote, error) {
	const op = "optionchain.FetchChain"

	switch {
	case strikeCount <= 0:
		strikeCount = DefaultStrikeCount
	case strikeCount > MaxStrikeCount:
		strikeCount = MaxStrikeCount
	}

	header, err := f.auth.AuthorizationHeader(ctx)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("strikecount", strconv.Itoa(strikeCount))
	params.Set("timestamp", "")
	reqURL := f.baseURL + "/options-chain-v3?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindDataFetch, op, "failed to create request", err)
	}
	req.Header.Set("Authorization", header)

	f.logger.Debug("Fetching option chain",
		zap.String("symbol", symbol),
		zap.Int("strike_count", strikeCount))

	resp, err := fyers.Do(f.httpClient, req)
	if err != nil {
		f.logger.Error("Option chain endpoint unreachable", zap.String("symbol", symbol), zap.Error(err))
		return nil, apperrors.Transport(apperrors.KindDataFetch, op, err)
	}

	var chain chainResponse
	if err := json.Unmarshal(resp.Body, &chain); err != nil {
		if !resp.OK() {
			return nil, apperrors.New(apperrors.KindDataFetch, op,
				fmt.Sprintf("option chain returned status code %d", resp.StatusCode))
		}
		return nil, apperrors.Wrap(apperrors.KindDataFetch, op, "failed to decode option chain", err)
	}

	if !resp.OK() || chain.S != "ok" {
		msg := chain.Message
		if msg == "" {
			msg = fmt.Sprintf("status %q (HTTP %d)", chain.S, resp.StatusCode)
		}
		f.logger.Error("Option chain rejected",
			zap.String("symbol", symbol),
			zap.Int("statusCode", resp.StatusCode),
			zap.Int("code", chain.Code),
			zap.String("message", msg))
		return nil, apperrors.New(apperrors.KindOptionChain, op, msg)
	}

	quotes := filterQuotes(chain.Data.OptionsChain)
	f.logger.Info("Option chain fetched",
		zap.String("symbol", symbol),
		zap.Int("rows", len(chain.Data.OptionsChain)),
		zap.Int("priceable", len(quotes)))
	return quotes, nil
}

// filterQuotes drops unquoted strikes (ask == 0), then drops the first
// remaining row: Fyers leads the chain with the underlying itself, not a strike.
func filterQuotes(rows []chainRow) []OptionQuote {
	quoted := make([]chainRow, 0, len(rows))
	for _, row := range rows {
		if row.Ask != 0 {
			quoted = append(quoted, row)
		}
	}
	if len(quoted) == 0 {
		return nil
	}

	quotes := make([]OptionQuote, 0, len(quoted)-1)
	for _, row := range quoted[1:] {
		quotes = append(quotes, OptionQuote{
			Symbol:      row.Symbol,
			Side:        instruments.OptionSide(strings.ToUpper(row.OptionType)),
			StrikePrice: row.StrikePrice,
			Bid:         row.Bid,
			Ask:         row.Ask,
		})
	}
	return quotes
}
