package pipeline

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sabarim/fyerschain/internal/apperrors"
	"github.com/sabarim/fyerschain/internal/auth"
	"github.com/sabarim/fyerschain/internal/fyers"
	"github.com/sabarim/fyerschain/internal/instruments"
	"github.com/sabarim/fyerschain/internal/margin"
	"github.com/sabarim/fyerschain/internal/optionchain"
)

type fakeResolver struct {
	record instruments.SymbolRecord
	err    error
	calls  int
}

func (f *fakeResolver) ResolveSymbol(ctx context.Context, underlying, expiryDate string, side instruments.OptionSide) (instruments.SymbolRecord, error) {
	f.calls++
	return f.record, f.err
}

type fakeFetcher struct {
	quotes []optionchain.OptionQuote
	err    error
	calls  int
	strike int
}

func (f *fakeFetcher) FetchChain(ctx context.Context, symbol string, strikeCount int) ([]optionchain.OptionQuote, error) {
	f.calls++
	f.strike = strikeCount
	return f.quotes, f.err
}

type fakePricer struct {
	calls int
}

func (f *fakePricer) PriceOptions(ctx context.Context, name string, quotes []optionchain.OptionQuote, side instruments.OptionSide, lotSize int64) ([]margin.PricedOption, error) {
	f.calls++
	var rows []margin.PricedOption
	for _, q := range quotes {
		if q.Side == side {
			rows = append(rows, margin.PricedOption{Symbol: q.Symbol, Status: margin.StatusPriced})
		}
	}
	return rows, nil
}

func TestGetPricedOptionChain_InvalidInputFailsFast(t *testing.T) {
	tests := []struct {
		name                     string
		underlying, expiry, side string
	}{
		{name: "empty underlying", underlying: " ", expiry: "2025-01-30", side: "CE"},
		{name: "bad date", underlying: "HDFCBANK", expiry: "30-01-2025", side: "CE"},
		{name: "impossible date", underlying: "HDFCBANK", expiry: "2025-02-30", side: "CE"},
		{name: "bad side", underlying: "HDFCBANK", expiry: "2025-01-30", side: "CALL"},
		{name: "empty side", underlying: "HDFCBANK", expiry: "2025-01-30", side: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, f, pr := &fakeResolver{}, &fakeFetcher{}, &fakePricer{}
			p := New(r, f, pr, 40, nil)
			_, err := p.GetPricedOptionChain(context.Background(), tt.underlying, tt.expiry, tt.side)
			if !apperrors.Is(err, apperrors.KindInvalidParameter) {
				t.Fatalf("expected invalid parameter error, got %v", err)
			}
			if r.calls+f.calls+pr.calls != 0 {
				t.Errorf("no stage may run on invalid input")
			}
		})
	}
}

func TestGetPricedOptionChain_PropagatesResolverErrors(t *testing.T) {
	for _, kind := range []apperrors.Kind{apperrors.KindSymbolNotFound, apperrors.KindDataFetch, apperrors.KindDataIntegrity} {
		r := &fakeResolver{err: apperrors.New(kind, "test", "boom")}
		f := &fakeFetcher{}
		p := New(r, f, &fakePricer{}, 40, nil)
		_, err := p.GetPricedOptionChain(context.Background(), "HDFCBANK", "2025-01-30", "CE")
		if apperrors.KindOf(err) != kind {
			t.Errorf("expected %s to propagate, got %v", kind, err)
		}
		if f.calls != 0 {
			t.Errorf("fetch must not run after a resolution failure")
		}
	}
}

func TestGetPricedOptionChain_NoData(t *testing.T) {
	r := &fakeResolver{record: instruments.SymbolRecord{SymbolID: "NSE:X", LotSize: 10}}

	p := New(r, &fakeFetcher{}, &fakePricer{}, 40, nil)
	_, err := p.GetPricedOptionChain(context.Background(), "X", "2025-01-30", "CE")
	if !apperrors.Is(err, apperrors.KindDataFetch) {
		t.Fatalf("expected data fetch error for empty chain, got %v", err)
	}

	onlyPuts := &fakeFetcher{quotes: []optionchain.OptionQuote{{Symbol: "NSE:XPE", Side: instruments.Put, Ask: 1}}}
	p = New(r, onlyPuts, &fakePricer{}, 40, nil)
	_, err = p.GetPricedOptionChain(context.Background(), "X", "2025-01-30", "CE")
	if !apperrors.Is(err, apperrors.KindDataFetch) {
		t.Fatalf("expected data fetch error when no row matches the side, got %v", err)
	}
}

func TestGetPricedOptionChain_UsesStrikeCount(t *testing.T) {
	r := &fakeResolver{record: instruments.SymbolRecord{SymbolID: "NSE:X", LotSize: 10}}
	f := &fakeFetcher{quotes: []optionchain.OptionQuote{{Symbol: "NSE:XCE", Side: instruments.Call, Ask: 1}}}
	p := New(r, f, &fakePricer{}, 40, nil)
	if _, err := p.GetPricedOptionChain(context.Background(), "X", "2025-01-30", "CE"); err != nil {
		t.Fatal(err)
	}
	if f.strike != 40 {
		t.Errorf("expected strike count 40, got %d", f.strike)
	}
}

// TestGetPricedOptionChain_EndToEnd wires the real components against fake
// Fyers endpoints.
func TestGetPricedOptionChain_EndToEnd(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/sym_master.json", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"NSE:HDFCBANK25JANFUT":    {"optType": "XX", "underSym": "HDFCBANK", "expiryDate": "1738233000", "minLotSize": 550},
			"NSE:HDFCBANK25JAN1700CE": {"optType": "CE", "underSym": "HDFCBANK", "expiryDate": "1738233000", "minLotSize": 550},
			"NSE:HDFCBANK25JAN1700PE": {"optType": "PE", "underSym": "HDFCBANK", "expiryDate": "1738233000", "minLotSize": 550}
		}`))
	})
	mux.HandleFunc("/data/options-chain-v3", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("symbol") != "NSE:HDFCBANK25JAN1700CE" {
			t.Errorf("unexpected chain symbol %s", r.URL.Query().Get("symbol"))
		}
		w.Write([]byte(`{"s":"ok","data":{"optionsChain":[
			{"ask": 1702.6, "bid": 1702.4, "option_type": "", "strike_price": -1, "symbol": "NSE:HDFCBANK-EQ"},
			{"ask": 0, "bid": 0, "option_type": "CE", "strike_price": 1600, "symbol": "NSE:HDFCBANK25JAN1600CE"},
			{"ask": 20.5, "bid": 20.0, "option_type": "CE", "strike_price": 1650, "symbol": "NSE:HDFCBANK25JAN1650CE"},
			{"ask": 12.25, "bid": 12.0, "option_type": "CE", "strike_price": 1700, "symbol": "NSE:HDFCBANK25JAN1700CE"}
		]}}`))
	})
	mux.HandleFunc("/api/v2/span_margin", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "APP-100:live-token" {
			t.Errorf("unexpected authorization %q", r.Header.Get("Authorization"))
		}
		w.Write([]byte(`{"s":"ok","data":{"total":185000}}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	httpClient := fyers.NewHTTPClient(2 * time.Second)
	store := auth.NewMemoryStore(auth.Credentials{
		ClientID:          "APP-100",
		AccessToken:       "live-token",
		AccessTokenExpiry: time.Now().Add(time.Hour),
	})
	tokens := auth.NewTokenManager(store, auth.NewAuthClient(srv.URL+"/api/v3", httpClient, nil), auth.Credentials{}, 1, nil)

	p := New(
		instruments.NewSymbolResolver(srv.URL+"/sym_master.json", httpClient, 0, nil),
		optionchain.NewFetcher(srv.URL+"/data", httpClient, tokens, nil),
		margin.NewCalculator(srv.URL+"/api/v2", httpClient, tokens, 2, nil),
		optionchain.DefaultStrikeCount,
		nil,
	)

	rows, err := p.GetPricedOptionChain(context.Background(), "HDFCBANK", "2025-01-30", "CE")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 priced rows, got %d: %+v", len(rows), rows)
	}

	wantAsk := []float64{20.5, 12.25}
	for i, row := range rows {
		if row.Status != margin.StatusPriced {
			t.Errorf("row %d not priced: %+v", i, row)
		}
		if row.Premium != wantAsk[i]*550 {
			t.Errorf("row %d: expected premium %v, got %v", i, wantAsk[i]*550, row.Premium)
		}
		if row.Margin != 185000 || row.InstrumentName != "HDFCBANK" || row.Side != instruments.Call {
			t.Errorf("row %d: unexpected row %+v", i, row)
		}
	}
	if tokens.State() != auth.StateValid {
		t.Errorf("expected token to stay valid, got %s", tokens.State())
	}
}
