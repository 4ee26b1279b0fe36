package margin

import (
	"github.com/sabarim/fyerschain/internal/fyers"
	"github.com/sabarim/fyerschain/internal/instruments"
)

// RowStatus tells priced rows apart from rows whose margin call failed
type RowStatus string

const (
	StatusPriced  RowStatus = "priced"
	StatusSkipped RowStatus = "skipped"
)

// PricedOption is one output row of the pipeline. Skipped rows carry zero
// margin and premium and the reason in Error.
type PricedOption struct {
	InstrumentName string                 `json:"instrument_name"`
	Symbol         string                 `json:"symbol"`
	StrikePrice    float64                `json:"strike_price"`
	Side           instruments.OptionSide `json:"option_side"`
	Price          float64                `json:"price"`
	Margin         float64                `json:"margin"`
	Premium        float64                `json:"premium"`
	Status         RowStatus              `json:"status"`
	Error          string                 `json:"error,omitempty"`
}

// Summarize counts priced and skipped rows
func Summarize(rows []PricedOption) (priced, skipped int) {
	for _, row := range rows {
		if row.Status == StatusPriced {
			priced++
		} else {
			skipped++
		}
	}
	return priced, skipped
}

// Fyers order constants for a short intraday market order
const (
	sideSell        = -1
	orderTypeMarket = 2
	productIntraday = "INTRADAY"
)

type marginOrder struct {
	Symbol      string  `json:"symbol"`
	Qty         int64   `json:"qty"`
	Side        int     `json:"side"`
	Type        int     `json:"type"`
	ProductType string  `json:"productType"`
	LimitPrice  float64 `json:"limitPrice"`
	StopLoss    float64 `json:"stopLoss"`
}

type marginRequest struct {
	Data []marginOrder `json:"data"`
}

type marginResponse struct {
	fyers.Envelope
	Data struct {
		Total *float64 `json:"total"`
	} `json:"data"`
}
