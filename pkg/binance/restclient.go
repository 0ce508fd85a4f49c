package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type RESTClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewRESTClient(baseURL string, timeout time.Duration) *RESTClient {
	return &RESTClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *RESTClient) HTTPClient() *http.Client {
	return c.httpClient
}

// exchangeInfoResponse is the subset of /api/v3/exchangeInfo we consume.
type exchangeInfoResponse struct {
	Symbols []struct {
		Symbol string `json:"symbol"` // e.g., "BTCUSDT"
		Status string `json:"status"` // e.g., "TRADING"
	} `json:"symbols"`
}

// GetTradingSymbols fetches the set of symbols currently in TRADING
// status, upper-cased.
func (c *RESTClient) GetTradingSymbols(ctx context.Context) (map[string]bool, error) {
	endpoint := c.baseURL + "/api/v3/exchangeInfo"

	// Construct the GET request with context for timeout/cancel support
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("making request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("binance error: %s", body)
	}

	var info exchangeInfoResponse
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	symbols := make(map[string]bool, len(info.Symbols))
	for _, s := range info.Symbols {
		if s.Status == "TRADING" {
			symbols[strings.ToUpper(s.Symbol)] = true
		}
	}
	return symbols, nil
}

// ValidateSymbols returns the configured symbols that are not tradable
// on the exchange. An empty result means everything checked out.
func (c *RESTClient) ValidateSymbols(ctx context.Context, configured []string) ([]string, error) {
	tradable, err := c.GetTradingSymbols(ctx)
	if err != nil {
		return nil, err
	}

	var unknown []string
	for _, s := range configured {
		if !tradable[strings.ToUpper(s)] {
			unknown = append(unknown, strings.ToUpper(s))
		}
	}
	return unknown, nil
}
