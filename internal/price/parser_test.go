package price

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestParseMessage(t *testing.T) {
	at := time.Unix(1700000000, 0)

	tests := []struct {
		name  string
		input string
		want  map[string]string
	}{
		{"symbol map with strings", `{"btc":"50000.12","eth":"3000"}`, map[string]string{"btc": "50000.12", "eth": "3000"}},
		{"symbol map with numbers", `{"BTC":50000.5}`, map[string]string{"btc": "50000.5"}},
		{"single quote", `{"symbol":"ETH","price":"2999.99"}`, map[string]string{"eth": "2999.99"}},
		{"array of quotes", `[{"symbol":"btc","price":1},{"symbol":"sol","price":"150"}]`, map[string]string{"btc": "1", "sol": "150"}},
		{"envelope", `{"type":"ticker","data":{"btc":"42"}}`, map[string]string{"btc": "42"}},
		{"envelope with array", `{"type":"ticker","data":[{"symbol":"xrp","price":"0.5"}]}`, map[string]string{"xrp": "0.5"}},
		{"skips invalid entries", `{"btc":"50000","eth":"n/a","doge":-1}`, map[string]string{"btc": "50000"}},
		{"high precision kept exact", `{"btc":0.123456789012345678}`, map[string]string{"btc": "0.123456789012345678"}},
		{"ignores envelope fields", `{"btc":"10","ts":1700000000000,"seq":7}`, map[string]string{"btc": "10"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ticks, err := ParseMessage([]byte(tt.input), at)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(ticks) != len(tt.want) {
				t.Fatalf("got %d ticks, want %d", len(ticks), len(tt.want))
			}
			for _, tk := range ticks {
				want, ok := tt.want[tk.Symbol]
				if !ok {
					t.Errorf("unexpected symbol %q", tk.Symbol)
					continue
				}
				if !tk.Price.Equal(decimal.RequireFromString(want)) {
					t.Errorf("%s price = %s, want %s", tk.Symbol, tk.Price, want)
				}
				if !tk.ReceivedAt.Equal(at) {
					t.Errorf("%s receivedAt = %v, want %v", tk.Symbol, tk.ReceivedAt, at)
				}
			}
		})
	}
}

func TestParseMessageMalformed(t *testing.T) {
	inputs := []string{
		`not json`,
		`{"btc":`,
		`{}`,
		`[]`,
		`{"btc":"abc"}`,
		`{"symbol":"","price":"1"}`,
		`"just a string"`,
		`42`,
	}

	for _, in := range inputs {
		ticks, err := ParseMessage([]byte(in), time.Now())
		if !errors.Is(err, ErrMalformedMessage) {
			t.Errorf("ParseMessage(%q) error = %v, want ErrMalformedMessage", in, err)
		}
		if ticks != nil {
			t.Errorf("ParseMessage(%q) returned ticks for malformed input", in)
		}
	}
}

func TestParseMessageControlFrame(t *testing.T) {
	ticks, err := ParseMessage([]byte(`{"type":"heartbeat"}`), time.Now())
	if err != nil {
		t.Fatalf("control frame should not be an error, got %v", err)
	}
	if len(ticks) != 0 {
		t.Errorf("control frame produced %d ticks", len(ticks))
	}
}
