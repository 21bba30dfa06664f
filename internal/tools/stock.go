package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// StockQuote fetches the latest quote for a symbol from the Alpha Vantage
// GLOBAL_QUOTE endpoint.
type StockQuote struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewStockQuote creates a stock quote tool.
func NewStockQuote(apiKey string) *StockQuote {
	return &StockQuote{
		apiKey:  apiKey,
		baseURL: "https://www.alphavantage.co/query",
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (s *StockQuote) Name() string { return "get_stock_price" }
func (s *StockQuote) Description() string {
	return "Fetch the latest stock price for a ticker symbol (e.g. 'AAPL', 'TSLA')"
}
func (s *StockQuote) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"symbol": {"type": "string", "description": "Ticker symbol, e.g. AAPL"}
		},
		"required": ["symbol"]
	}`)
}

type globalQuoteResponse struct {
	GlobalQuote struct {
		Symbol        string `json:"01. symbol"`
		Price         string `json:"05. price"`
		Change        string `json:"09. change"`
		ChangePercent string `json:"10. change percent"`
		TradingDay    string `json:"07. latest trading day"`
	} `json:"Global Quote"`
}

func (s *StockQuote) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var params struct {
		Symbol string `json:"symbol"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return "", fmt.Errorf("parse args: %w", err)
	}
	if params.Symbol == "" {
		return "", fmt.Errorf("symbol is required")
	}

	u, err := url.Parse(s.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse quote URL: %w", err)
	}
	q := u.Query()
	q.Set("function", "GLOBAL_QUOTE")
	q.Set("symbol", params.Symbol)
	q.Set("apikey", s.apiKey)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("quote request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("quote API error (status %d): %s", resp.StatusCode, string(body))
	}

	var parsed globalQuoteResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}

	gq := parsed.GlobalQuote
	if gq.Symbol == "" {
		return fmt.Sprintf("No quote found for symbol %q.", params.Symbol), nil
	}

	return fmt.Sprintf("%s: %s (change %s / %s) as of %s",
		gq.Symbol, gq.Price, gq.Change, gq.ChangePercent, gq.TradingDay), nil
}
