package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"
	"github.com/tidwall/gjson"
)

// CoinGeckoIDs maps lowercase tickers to CoinGecko coin IDs.
var CoinGeckoIDs = map[string]string{
	"btc":  "bitcoin",
	"eth":  "ethereum",
	"xlm":  "stellar",
	"usdt": "tether",
	"usdc": "usd-coin",
	"bnb":  "binancecoin",
	"sol":  "solana",
	"xrp":  "ripple",
	"ada":  "cardano",
	"doge": "dogecoin",
	"trx":  "tron",
	"dot":  "polkadot",
	"ltc":  "litecoin",
}

var errConnClosed = errors.New("polling session closed")

// PollingTransport turns the CoinGecko simple/price endpoint into a message stream:
// each session yields one {"symbol":"price"} message per poll interval.
type PollingTransport struct {
	baseURL    string
	httpClient *http.Client
	interval   time.Duration
	ids        map[string]string // symbol -> coin id
}

// NewPollingTransport creates a polling transport for the given symbols. Symbols without a
// known CoinGecko ID are skipped.
func NewPollingTransport(baseURL string, symbols []string, interval time.Duration) *PollingTransport {
	ids := lo.PickByKeys(CoinGeckoIDs, symbols)
	return &PollingTransport{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		interval:   interval,
		ids:        ids,
	}
}

func (t *PollingTransport) Dial(ctx context.Context) (Conn, error) {
	if len(t.ids) == 0 {
		return nil, fmt.Errorf("coingecko: no supported symbols")
	}
	ctx, cancel := context.WithCancel(ctx)
	return &pollConn{transport: t, ctx: ctx, cancel: cancel}, nil
}

type pollConn struct {
	transport *PollingTransport
	ctx       context.Context
	cancel    context.CancelFunc

	mu     sync.Mutex
	polled bool
}

func (c *pollConn) ReadMessage() ([]byte, error) {
	c.mu.Lock()
	wait := c.polled
	c.polled = true
	c.mu.Unlock()

	if wait {
		select {
		case <-c.ctx.Done():
			return nil, errConnClosed
		case <-time.After(c.transport.interval):
		}
	}

	msg, err := c.transport.fetch(c.ctx)
	if err != nil && c.ctx.Err() != nil {
		return nil, errConnClosed
	}
	return msg, err
}

func (c *pollConn) Close() error {
	c.cancel()
	return nil
}

// fetch queries USD prices and re-encodes them keyed by symbol.
// Raw response: {"bitcoin":{"usd":45000},"ethereum":{"usd":2500},...}
func (t *PollingTransport) fetch(ctx context.Context) ([]byte, error) {
	coinIDs := lo.Uniq(lo.Values(t.ids))
	sort.Strings(coinIDs)
	url := fmt.Sprintf("%s/simple/price?ids=%s&vs_currencies=usd", t.baseURL, strings.Join(coinIDs, ","))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating CoinGecko request: %w", err)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("CoinGecko request failed: %w", err)
	}

	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("reading CoinGecko response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("CoinGecko rate limited")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("CoinGecko HTTP %d: %s", resp.StatusCode, string(body))
	}

	prices := make(map[string]json.RawMessage, len(t.ids))
	for symbol, id := range t.ids {
		v := gjson.GetBytes(body, id+".usd")
		if v.Type != gjson.Number {
			continue
		}
		prices[symbol] = json.RawMessage(v.Raw)
	}

	return json.Marshal(prices)
}
