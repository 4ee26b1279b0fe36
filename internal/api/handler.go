// Package api exposes the priced option chain over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sabarim/fyerschain/internal/apperrors"
	"github.com/sabarim/fyerschain/internal/logger"
	"github.com/sabarim/fyerschain/internal/margin"
	"go.uber.org/zap"
)

// ChainService is the pipeline as seen by the handlers
type ChainService interface {
	GetPricedOptionChain(ctx context.Context, underlying, expiryDate, side string) ([]margin.PricedOption, error)
}

// ChainQuery binds the option chain query string
type ChainQuery struct {
	InstrumentName string `form:"instrument_name"`
	ExpiryDate     string `form:"expiry_date"`
	Side           string `form:"side"`
}

// ChainResponse is the body of a successful option chain request
type ChainResponse struct {
	Data    []margin.PricedOption `json:"data"`
	Priced  int                   `json:"priced"`
	Skipped int                   `json:"skipped"`
}

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error     string `json:"error"`
	Kind      string `json:"kind"`
	Temporary bool   `json:"temporary,omitempty"`
}

// Handler serves the option chain routes
type Handler struct {
	service ChainService
	logger  *zap.Logger
}

// NewHandler creates a handler backed by service
func NewHandler(service ChainService, log *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger.OrNop(log)}
}

// OptionChain returns the priced option chain
// GET /api/v1/option-chain?instrument_name=&expiry_date=&side=
func (h *Handler) OptionChain(c *gin.Context) {
	var q ChainQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid query", Kind: apperrors.KindInvalidParameter.String()})
		return
	}

	rows, err := h.service.GetPricedOptionChain(c.Request.Context(), q.InstrumentName, q.ExpiryDate, q.Side)
	if err != nil {
		h.writeError(c, err)
		return
	}

	priced, skipped := margin.Summarize(rows)
	c.JSON(http.StatusOK, ChainResponse{Data: rows, Priced: priced, Skipped: skipped})
}

// Health reports liveness
// GET /health
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) writeError(c *gin.Context, err error) {
	kind := apperrors.KindOf(err)
	status := StatusFor(kind)

	msg := "internal error"
	var appErr *apperrors.Error
	if errors.As(err, &appErr) && status != http.StatusInternalServerError {
		msg = appErr.Message
	}
	if status >= 500 {
		h.logger.Error("Option chain request failed", zap.Stringer("kind", kind), zap.Error(err))
	}

	c.JSON(status, ErrorResponse{Error: msg, Kind: kind.String(), Temporary: apperrors.IsTemporary(err)})
}

// StatusFor maps an error kind to the HTTP status returned to clients
func StatusFor(kind apperrors.Kind) int {
	switch kind {
	case apperrors.KindInvalidParameter:
		return http.StatusBadRequest
	case apperrors.KindSymbolNotFound:
		return http.StatusNotFound
	case apperrors.KindDataFetch, apperrors.KindOptionChain, apperrors.KindAuthentication, apperrors.KindPricing:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
