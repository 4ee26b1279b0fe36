package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sabarim/fyerschain/internal/apperrors"
	"github.com/sabarim/fyerschain/internal/instruments"
	"github.com/sabarim/fyerschain/internal/logger"
	"github.com/sabarim/fyerschain/internal/margin"
	"github.com/sabarim/fyerschain/internal/optionchain"
	"go.uber.org/zap"
)

// Resolver finds the option series for a query
type Resolver interface {
	ResolveSymbol(ctx context.Context, underlying, expiryDate string, side instruments.OptionSide) (instruments.SymbolRecord, error)
}

// ChainFetcher returns the priceable quotes of a chain
type ChainFetcher interface {
	FetchChain(ctx context.Context, symbol string, strikeCount int) ([]optionchain.OptionQuote, error)
}

// Pricer computes margin and premium per quote
type Pricer interface {
	PriceOptions(ctx context.Context, instrumentName string, quotes []optionchain.OptionQuote, side instruments.OptionSide, lotSize int64) ([]margin.PricedOption, error)
}

// ChainRequest is the validated input of GetPricedOptionChain
type ChainRequest struct {
	Underlying string `validate:"required"`
	ExpiryDate string `validate:"required,datetime=2006-01-02"`
	Side       string `validate:"required,oneof=CE PE"`
}

// Pipeline resolves the series, fetches its chain and prices it
type Pipeline struct {
	resolver    Resolver
	fetcher     ChainFetcher
	pricer      Pricer
	strikeCount int
	validate    *validator.Validate
	logger      *zap.Logger
}

// New creates a pipeline requesting strikeCount strikes per chain
func New(resolver Resolver, fetcher ChainFetcher, pricer Pricer, strikeCount int, log *zap.Logger) *Pipeline {
	return &Pipeline{
		resolver:    resolver,
		fetcher:     fetcher,
		pricer:      pricer,
		strikeCount: strikeCount,
		validate:    validator.New(),
		logger:      logger.OrNop(log),
	}
}

// GetPricedOptionChain runs resolve, fetch and price for one query.
// Rows whose margin call failed come back with status skipped.
func (p *Pipeline) GetPricedOptionChain(ctx context.Context, underlying, expiryDate, side string) ([]margin.PricedOption, error) {
	const op = "pipeline.GetPricedOptionChain"

	req := ChainRequest{
		Underlying: strings.TrimSpace(underlying),
		ExpiryDate: strings.TrimSpace(expiryDate),
		Side:       strings.TrimSpace(side),
	}
	if err := p.validateRequest(req); err != nil {
		return nil, err
	}
	optSide := instruments.OptionSide(req.Side)

	log := p.logger.With(
		zap.String("run_id", uuid.NewString()),
		zap.String("underlying", req.Underlying),
		zap.String("expiry", req.ExpiryDate),
		zap.String("side", req.Side))
	log.Info("Fetching priced option chain")

	record, err := p.resolver.ResolveSymbol(ctx, req.Underlying, req.ExpiryDate, optSide)
	if err != nil {
		log.Error("Symbol resolution failed", zap.Error(err))
		return nil, err
	}

	quotes, err := p.fetcher.FetchChain(ctx, record.SymbolID, p.strikeCount)
	if err != nil {
		log.Error("Option chain fetch failed", zap.String("symbol", record.SymbolID), zap.Error(err))
		return nil, err
	}
	if len(quotes) == 0 {
		return nil, apperrors.New(apperrors.KindDataFetch, op, "no data")
	}

	rows, err := p.pricer.PriceOptions(ctx, req.Underlying, quotes, optSide, record.LotSize)
	if err != nil {
		log.Error("Pricing failed", zap.Error(err))
		return nil, err
	}
	if len(rows) == 0 {
		return nil, apperrors.New(apperrors.KindDataFetch, op, "no data")
	}

	priced, skipped := margin.Summarize(rows)
	log.Info("Priced option chain ready",
		zap.String("symbol", record.SymbolID),
		zap.Int64("lot_size", record.LotSize),
		zap.Int("priced", priced),
		zap.Int("skipped", skipped))
	return rows, nil
}

func (p *Pipeline) validateRequest(req ChainRequest) error {
	const op = "pipeline.validate"

	err := p.validate.Struct(req)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperrors.Wrap(apperrors.KindInvalidParameter, op, "invalid request", err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", fe.Field()))
		case "datetime":
			msgs = append(msgs, fmt.Sprintf("%s must be YYYY-MM-DD, got %q", fe.Field(), fe.Value()))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of %s, got %q", fe.Field(), fe.Param(), fe.Value()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
	}
	return apperrors.New(apperrors.KindInvalidParameter, op, strings.Join(msgs, "; "))
}
