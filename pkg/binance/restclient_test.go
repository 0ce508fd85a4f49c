package binance

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const exchangeInfoFixture = `{
	"symbols": [
		{"symbol": "BTCUSDT", "status": "TRADING"},
		{"symbol": "ETHUSDT", "status": "TRADING"},
		{"symbol": "OLDCOIN", "status": "BREAK"}
	]
}`

func newExchangeInfoServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/exchangeInfo" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGetTradingSymbols(t *testing.T) {
	srv := newExchangeInfoServer(t, http.StatusOK, exchangeInfoFixture)
	c := NewRESTClient(srv.URL, time.Second)

	symbols, err := c.GetTradingSymbols(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !symbols["BTCUSDT"] || !symbols["ETHUSDT"] {
		t.Errorf("trading symbols missing: %v", symbols)
	}
	if symbols["OLDCOIN"] {
		t.Error("non-TRADING symbol included")
	}
}

func TestValidateSymbols(t *testing.T) {
	srv := newExchangeInfoServer(t, http.StatusOK, exchangeInfoFixture)
	c := NewRESTClient(srv.URL, time.Second)

	unknown, err := c.ValidateSymbols(context.Background(), []string{"btcusdt", "dogeusdt", "ethusdt"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(unknown) != 1 || unknown[0] != "DOGEUSDT" {
		t.Errorf("unknown = %v, want [DOGEUSDT]", unknown)
	}
}

func TestGetTradingSymbolsServerError(t *testing.T) {
	srv := newExchangeInfoServer(t, http.StatusServiceUnavailable, `{"msg":"down"}`)
	c := NewRESTClient(srv.URL, time.Second)

	if _, err := c.GetTradingSymbols(context.Background()); err == nil {
		t.Fatal("expected error on non-200 response")
	}
}
