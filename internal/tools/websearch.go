package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
)

const maxSearchChars = 8000

// WebSearch searches the web via the DuckDuckGo HTML endpoint and returns
// the results page as markdown.
type WebSearch struct {
	baseURL string
	client  *http.Client
}

// NewWebSearch creates a web search tool.
func NewWebSearch() *WebSearch {
	return &WebSearch{
		baseURL: "https://html.duckduckgo.com/html/",
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (w *WebSearch) Name() string        { return "web_search" }
func (w *WebSearch) Description() string { return "Search the web for current information" }
func (w *WebSearch) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"query": {"type": "string", "description": "Search query"}
		},
		"required": ["query"]
	}`)
}

func (w *WebSearch) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var params struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return "", fmt.Errorf("parse args: %w", err)
	}
	if params.Query == "" {
		return "", fmt.Errorf("query is required")
	}

	u, err := url.Parse(w.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse search URL: %w", err)
	}
	q := u.Query()
	q.Set("q", params.Query)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "Synapse/1.0")

	resp, err := w.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("search error (status %d)", resp.StatusCode)
	}

	md, err := htmltomarkdown.ConvertString(string(body))
	if err != nil {
		return "", fmt.Errorf("convert results: %w", err)
	}

	md = strings.TrimSpace(md)
	if md == "" {
		return "No results found.", nil
	}
	if len(md) > maxSearchChars {
		md = md[:maxSearchChars] + "\n\n[Results truncated]"
	}
	return md, nil
}
