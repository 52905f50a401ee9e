package price

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"github.com/mtlprog/livefolio/internal/domain"
)

// ErrMalformedMessage indicates that an inbound feed message carried no usable price.
var ErrMalformedMessage = errors.New("malformed price message")

// metaKeys are envelope fields that never name an asset in the symbol -> price map shape.
var metaKeys = map[string]bool{"type": true, "ts": true, "timestamp": true, "time": true, "seq": true}

// ParseMessage normalizes one inbound feed message into ticks stamped with receivedAt.
//
// Accepted shapes:
//
//	{"btc":"50000.1","eth":3000}                    symbol -> price map
//	{"symbol":"BTC","price":"50000.1"}              single quote
//	[{"symbol":"BTC","price":"1"}, ...]             array of quotes
//	{"type":"ticker","data":<any of the above>}     envelope
//
// Objects carrying only a "type" field (heartbeats, subscription acks) yield no ticks and no error.
// Individual entries with a non-numeric or non-positive price are skipped; a message that
// yields no tick at all is reported as ErrMalformedMessage.
func ParseMessage(data []byte, receivedAt time.Time) ([]domain.PriceTick, error) {
	if !gjson.ValidBytes(data) {
		return nil, ErrMalformedMessage
	}

	root := gjson.ParseBytes(data)
	if isControlFrame(root) {
		return nil, nil
	}

	ticks := collect(root, receivedAt, nil)
	if len(ticks) == 0 {
		return nil, ErrMalformedMessage
	}
	return ticks, nil
}

func isControlFrame(r gjson.Result) bool {
	return r.IsObject() && r.Get("type").Exists() && !r.Get("data").Exists() && !r.Get("symbol").Exists()
}

func collect(r gjson.Result, receivedAt time.Time, out []domain.PriceTick) []domain.PriceTick {
	switch {
	case r.IsArray():
		r.ForEach(func(_, entry gjson.Result) bool {
			if tick, ok := quoteEntry(entry, receivedAt); ok {
				out = append(out, tick)
			}
			return true
		})
	case r.IsObject():
		if data := r.Get("data"); data.Exists() {
			return collect(data, receivedAt, out)
		}
		if r.Get("symbol").Exists() {
			if tick, ok := quoteEntry(r, receivedAt); ok {
				out = append(out, tick)
			}
			return out
		}
		r.ForEach(func(key, value gjson.Result) bool {
			if metaKeys[key.String()] {
				return true
			}
			if price, ok := parsePrice(value); ok {
				out = append(out, domain.PriceTick{
					Symbol:     domain.NormalizeSymbol(key.String()),
					Price:      price,
					ReceivedAt: receivedAt,
				})
			}
			return true
		})
	}
	return out
}

func quoteEntry(entry gjson.Result, receivedAt time.Time) (domain.PriceTick, bool) {
	if !entry.IsObject() {
		return domain.PriceTick{}, false
	}
	symbol := domain.NormalizeSymbol(entry.Get("symbol").String())
	if symbol == "" {
		return domain.PriceTick{}, false
	}
	price, ok := parsePrice(entry.Get("price"))
	if !ok {
		return domain.PriceTick{}, false
	}
	return domain.PriceTick{Symbol: symbol, Price: price, ReceivedAt: receivedAt}, true
}

// parsePrice accepts JSON numbers (using their raw text, so no float rounding) and numeric strings.
func parsePrice(v gjson.Result) (decimal.Decimal, bool) {
	var raw string
	switch v.Type {
	case gjson.Number:
		raw = v.Raw
	case gjson.String:
		raw = v.Str
	default:
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(raw)
	if err != nil || !d.IsPositive() {
		return decimal.Decimal{}, false
	}
	return d, true
}
