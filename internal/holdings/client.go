// Package holdings keeps the polled holdings baseline the reconciler values against.
package holdings

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"github.com/mtlprog/livefolio/internal/domain"
)

// Provider fetches the current holdings of the configured account.
type Provider interface {
	FetchHoldings(ctx context.Context) ([]domain.Holding, error)
}

// Client fetches holdings from the portfolio HTTP API with retry on 429.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	maxRetries int
	baseDelay  time.Duration
}

// NewClient creates a holdings API client. token is sent as a bearer token when set.
func NewClient(baseURL, token string, maxRetries int, baseDelay time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
	}
}

type holdingJSON struct {
	Symbol    string          `json:"symbol"`
	Amount    decimal.Decimal `json:"amount"`
	Value     decimal.Decimal `json:"value"`
	Change24h decimal.Decimal `json:"change24h"`
}

// FetchHoldings returns the holdings list. The endpoint may answer with a bare array or wrap
// it as {"holdings":[...]} or {"data":[...]}.
func (c *Client) FetchHoldings(ctx context.Context) ([]domain.Holding, error) {
	body, err := c.get(ctx, "/portfolio/holdings")
	if err != nil {
		return nil, err
	}

	list := gjson.ParseBytes(body)
	if list.IsObject() {
		wrapped := list.Get("holdings")
		if !wrapped.Exists() {
			wrapped = list.Get("data")
		}
		list = wrapped
	}
	if !list.IsArray() {
		return nil, fmt.Errorf("parsing holdings: expected a list, got %s", truncate(body, 80))
	}

	var raw []holdingJSON
	if err := json.Unmarshal([]byte(list.Raw), &raw); err != nil {
		return nil, fmt.Errorf("parsing holdings: %w", err)
	}

	holdings := make([]domain.Holding, 0, len(raw))
	for _, h := range raw {
		holdings = append(holdings, domain.Holding{
			Symbol:            h.Symbol,
			Amount:            h.Amount,
			BaselineValue:     h.Value,
			BaselineChange24h: h.Change24h,
		})
	}
	return holdings, nil
}

// get performs a GET request with retry on 429.
func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	url := c.baseURL + path

	var lastErr error
	for attempt := range c.maxRetries + 1 {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("executing request: %w", err)
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("reading response: %w", err)
		}

		if resp.StatusCode == http.StatusOK {
			return body, nil
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("HTTP 429 at %s (attempt %d/%d)", url, attempt+1, c.maxRetries+1)
			if attempt < c.maxRetries {
				delay := c.baseDelay * time.Duration(1<<uint(attempt))
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(delay):
				}
				continue
			}
			return nil, lastErr
		}

		return nil, fmt.Errorf("HTTP %d from %s: %s", resp.StatusCode, url, truncate(body, 200))
	}

	return nil, lastErr
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
