package optionchain

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sabarim/fyerschain/internal/apperrors"
	"github.com/sabarim/fyerschain/internal/fyers"
	"github.com/sabarim/fyerschain/internal/instruments"
)

type staticAuth struct {
	header string
	err    error
	calls  int
}

func (a *staticAuth) AuthorizationHeader(ctx context.Context) (string, error) {
	a.calls++
	return a.header, a.err
}

const chainBody = `{
	"s": "ok", "code": 200, "message": "",
	"data": {
		"optionsChain": [
			{"ask": 0, "bid": 0, "option_type": "", "strike_price": -1, "symbol": "NSE:HDFCBANK-EQ", "ltp": 1702.5},
			{"ask": 0, "bid": 0, "option_type": "CE", "strike_price": 1500, "symbol": "NSE:HDFCBANK25JAN1500CE"},
			{"ask": 1702.6, "bid": 1702.4, "option_type": "", "strike_price": -1, "symbol": "NSE:HDFCBANK-EQ"},
			{"ask": 12.5, "bid": 12.1, "option_type": "CE", "strike_price": 1700, "symbol": "NSE:HDFCBANK25JAN1700CE"},
			{"ask": 9.5, "bid": 9.0, "option_type": "PE", "strike_price": 1700, "symbol": "NSE:HDFCBANK25JAN1700PE"},
			{"ask": 0, "bid": 1.0, "option_type": "PE", "strike_price": 1800, "symbol": "NSE:HDFCBANK25JAN1800PE"},
			{"ask": 4.25, "bid": 4.0, "option_type": "CE", "strike_price": 1750, "symbol": "NSE:HDFCBANK25JAN1750CE"}
		]
	}
}`

func TestFetchChain_FiltersAndSkipsLeadingRow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/options-chain-v3" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "APP-100:tok" {
			t.Errorf("unexpected authorization %q", got)
		}
		q := r.URL.Query()
		if q.Get("symbol") != "NSE:HDFCBANK25JAN1700CE" || q.Get("strikecount") != "40" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		if _, ok := q["timestamp"]; !ok {
			t.Errorf("timestamp parameter missing")
		}
		w.Write([]byte(chainBody))
	}))
	defer srv.Close()

	auth := &staticAuth{header: "APP-100:tok"}
	f := NewFetcher(srv.URL, fyers.NewHTTPClient(time.Second), auth, nil)
	quotes, err := f.FetchChain(context.Background(), "NSE:HDFCBANK25JAN1700CE", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []OptionQuote{
		{Symbol: "NSE:HDFCBANK25JAN1700CE", Side: instruments.Call, StrikePrice: 1700, Bid: 12.1, Ask: 12.5},
		{Symbol: "NSE:HDFCBANK25JAN1700PE", Side: instruments.Put, StrikePrice: 1700, Bid: 9.0, Ask: 9.5},
		{Symbol: "NSE:HDFCBANK25JAN1750CE", Side: instruments.Call, StrikePrice: 1750, Bid: 4.0, Ask: 4.25},
	}
	if len(quotes) != len(want) {
		t.Fatalf("expected %d quotes, got %d: %+v", len(want), len(quotes), quotes)
	}
	for i := range want {
		if quotes[i] != want[i] {
			t.Errorf("quote %d: expected %+v, got %+v", i, want[i], quotes[i])
		}
		if quotes[i].Ask == 0 {
			t.Errorf("quote %d has zero ask", i)
		}
	}

	// A second fetch asks the authorizer again.
	if _, err := f.FetchChain(context.Background(), "NSE:HDFCBANK25JAN1700CE", 40); err != nil {
		t.Fatal(err)
	}
	if auth.calls != 2 {
		t.Errorf("expected a token lookup per fetch, got %d", auth.calls)
	}
}

func TestFetchChain_StrikeCountClamped(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.URL.Query().Get("strikecount")
		w.Write([]byte(`{"s":"ok","data":{"optionsChain":[]}}`))
	}))
	defer srv.Close()

	f := NewFetcher(srv.URL, fyers.NewHTTPClient(time.Second), &staticAuth{}, nil)
	quotes, err := f.FetchChain(context.Background(), "NSE:X", 500)
	if err != nil {
		t.Fatal(err)
	}
	if got != "50" {
		t.Errorf("expected strike count clamped to 50, got %s", got)
	}
	if len(quotes) != 0 {
		t.Errorf("expected no quotes, got %d", len(quotes))
	}
}

func TestFetchChain_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   apperrors.Kind
	}{
		{name: "status flag", status: http.StatusOK, body: `{"s":"error","code":-300,"message":"Invalid symbol"}`, want: apperrors.KindOptionChain},
		{name: "structured http error", status: http.StatusBadRequest, body: `{"s":"error","code":-16,"message":"token expired"}`, want: apperrors.KindOptionChain},
		{name: "html error page", status: http.StatusBadGateway, body: `<html>bad gateway</html>`, want: apperrors.KindDataFetch},
		{name: "malformed", status: http.StatusOK, body: `{"s":`, want: apperrors.KindDataFetch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			f := NewFetcher(srv.URL, fyers.NewHTTPClient(time.Second), &staticAuth{}, nil)
			_, err := f.FetchChain(context.Background(), "NSE:X", 40)
			if got := apperrors.KindOf(err); got != tt.want {
				t.Fatalf("expected %s, got %s (%v)", tt.want, got, err)
			}
		})
	}
}

func TestFetchChain_AuthErrorPropagates(t *testing.T) {
	authErr := apperrors.New(apperrors.KindAuthentication, "test", "bad refresh token")
	f := NewFetcher("http://127.0.0.1:0", fyers.NewHTTPClient(time.Second), &staticAuth{err: authErr}, nil)
	_, err := f.FetchChain(context.Background(), "NSE:X", 40)
	if !apperrors.Is(err, apperrors.KindAuthentication) {
		t.Fatalf("expected authentication error, got %v", err)
	}
}

func TestFilterQuotes_OnlyLeadingRow(t *testing.T) {
	if got := filterQuotes([]chainRow{{Ask: 1, Symbol: "A"}}); len(got) != 0 {
		t.Errorf("expected the single quoted row to be dropped, got %+v", got)
	}
	if got := filterQuotes(nil); got != nil {
		t.Errorf("expected nil for empty chain, got %+v", got)
	}
}
