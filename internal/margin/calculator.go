package margin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/sabarim/fyerschain/internal/apperrors"
	"github.com/sabarim/fyerschain/internal/fyers"
	"github.com/sabarim/fyerschain/internal/instruments"
	"github.com/sabarim/fyerschain/internal/logger"
	"github.com/sabarim/fyerschain/internal/optionchain"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Calculator prices chain rows against the Fyers span margin endpoint
type Calculator struct {
	baseURL    string
	httpClient *http.Client
	auth       fyers.Authorizer
	workers    int
	logger     *zap.Logger
}

// NewCalculator creates a calculator pricing at most workers rows at once
func NewCalculator(baseURL string, httpClient *http.Client, auth fyers.Authorizer, workers int, log *zap.Logger) *Calculator {
	if workers < 1 {
		workers = 1
	}
	return &Calculator{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
		auth:       auth,
		workers:    workers,
		logger:     logger.OrNop(log),
	}
}

// QuotedPrice is the ask for calls and the bid for puts
func QuotedPrice(q optionchain.OptionQuote, side instruments.OptionSide) float64 {
	if side == instruments.Call {
		return q.Ask
	}
	return q.Bid
}

// PriceOptions prices every quote of the requested side. A failed margin call
// only marks its own row skipped; the error return is reserved for failures
// that affect the whole batch, such as not being able to authenticate.
func (c *Calculator) PriceOptions(ctx context.Context, instrumentName string, quotes []optionchain.OptionQuote, side instruments.OptionSide, lotSize int64) ([]PricedOption, error) {
	selected := make([]optionchain.OptionQuote, 0, len(quotes))
	for _, q := range quotes {
		if q.Side == side {
			selected = append(selected, q)
		}
	}
	if len(selected) == 0 {
		return nil, nil
	}

	header, err := c.auth.AuthorizationHeader(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]PricedOption, len(selected))
	var g errgroup.Group
	g.SetLimit(c.workers)
	for i, q := range selected {
		i, q := i, q
		g.Go(func() error {
			results[i] = c.priceOne(ctx, header, instrumentName, q, side, lotSize)
			return nil
		})
	}
	g.Wait()

	priced, skipped := Summarize(results)
	c.logger.Info("Priced option chain",
		zap.String("instrument", instrumentName),
		zap.Int("priced", priced),
		zap.Int("skipped", skipped))
	return results, nil
}

func (c *Calculator) priceOne(ctx context.Context, header, instrumentName string, q optionchain.OptionQuote, side instruments.OptionSide, lotSize int64) PricedOption {
	row := PricedOption{
		InstrumentName: instrumentName,
		Symbol:         q.Symbol,
		StrikePrice:    q.StrikePrice,
		Side:           side,
		Price:          QuotedPrice(q, side),
	}

	total, err := c.spanMargin(ctx, header, q.Symbol, lotSize)
	if err != nil {
		c.logger.Warn("Error calculating margin, skipping row",
			zap.String("symbol", q.Symbol),
			zap.Error(err))
		row.Status = StatusSkipped
		row.Error = err.Error()
		return row
	}

	row.Margin = total
	row.Premium = row.Price * float64(lotSize)
	row.Status = StatusPriced
	return row
}

// spanMargin returns the margin blocked for writing one lot of symbol
func (c *Calculator) spanMargin(ctx context.Context, header, symbol string, lotSize int64) (float64, error) {
	const op = "margin.spanMargin"

	payload, err := json.Marshal(marginRequest{Data: []marginOrder{{
		Symbol:      symbol,
		Qty:         lotSize,
		Side:        sideSell,
		Type:        orderTypeMarket,
		ProductType: productIntraday,
		LimitPrice:  0,
		StopLoss:    0,
	}}})
	if err != nil {
		return 0, apperrors.Wrap(apperrors.KindPricing, op, "failed to encode request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/span_margin", bytes.NewReader(payload))
	if err != nil {
		return 0, apperrors.Wrap(apperrors.KindPricing, op, "failed to create request", err)
	}
	req.Header.Set("Authorization", header)
	req.Header.Set("Content-Type", "application/json")

	resp, err := fyers.Do(c.httpClient, req)
	if err != nil {
		return 0, apperrors.Transport(apperrors.KindPricing, op, err)
	}
	if !resp.OK() {
		msg := fmt.Sprintf("span margin returned status code %d", resp.StatusCode)
		if env, ok := fyers.DecodeEnvelope(resp.Body); ok && env.Message != "" {
			msg += ": " + env.Message
		}
		return 0, apperrors.New(apperrors.KindPricing, op, msg)
	}

	var out marginResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return 0, apperrors.Wrap(apperrors.KindPricing, op, "failed to decode span margin", err)
	}
	if out.S != "" && out.S != "ok" {
		return 0, apperrors.New(apperrors.KindPricing, op, "span margin rejected: "+out.Message)
	}
	if out.Data.Total == nil {
		return 0, apperrors.New(apperrors.KindPricing, op, "span margin response has no total")
	}
	return *out.Data.Total, nil
}
