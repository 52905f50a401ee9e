package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/samber/lo"

	"github.com/mtlprog/livefolio/internal/domain"
	"github.com/mtlprog/livefolio/internal/staleness"
)

// Feed kinds.
const (
	FeedWebsocket = "websocket"
	FeedCoinGecko = "coingecko"
)

// Holdings sources.
const (
	HoldingsHTTP     = "http"
	HoldingsPostgres = "postgres"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	FeedKind          string
	FeedURL           string
	FeedSymbols       []string
	FeedSubscribe     bool
	CoinGeckoURL      string
	CoinGeckoInterval time.Duration

	HoldingsSource         string
	HoldingsURL            string
	HoldingsToken          string
	HoldingsRetryMax       int
	HoldingsRetryBaseDelay time.Duration
	HoldingsPollInterval   time.Duration
	AccountID              string
	DatabaseURL            string

	RedisURL              string
	ExportSchedule        string
	ExportXLSXPath        string
	SheetsSpreadsheetID   string
	GoogleCredentialsJSON string

	HTTPPort    string
	AdminAPIKey string
	LogLevel    string
	LogFormat   string
}

// Load reads configuration from environment variables with sensible defaults.
// A .env file in the working directory is loaded first; real environment variables win.
func Load() Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("failed to load .env file", "error", err)
	}

	return Config{
		FeedKind:          envOrDefault("FEED_KIND", FeedWebsocket),
		FeedURL:           envOrDefault("FEED_URL", ""),
		FeedSymbols:       envOrDefaultSymbols("FEED_SYMBOLS", []string{"btc", "eth"}),
		FeedSubscribe:     envOrDefaultBool("FEED_SUBSCRIBE", true),
		CoinGeckoURL:      envOrDefault("COINGECKO_URL", "https://api.coingecko.com/api/v3"),
		CoinGeckoInterval: envOrDefaultDuration("COINGECKO_INTERVAL", 30*time.Second),

		HoldingsSource:         envOrDefault("HOLDINGS_SOURCE", HoldingsHTTP),
		HoldingsURL:            envOrDefault("HOLDINGS_URL", ""),
		HoldingsToken:          envOrDefault("HOLDINGS_TOKEN", ""),
		HoldingsRetryMax:       envOrDefaultInt("HOLDINGS_RETRY_MAX", 5),
		HoldingsRetryBaseDelay: envOrDefaultDuration("HOLDINGS_RETRY_BASE_DELAY", 2*time.Second),
		HoldingsPollInterval:   envOrDefaultDuration("HOLDINGS_POLL_INTERVAL", 30*time.Second),
		AccountID:              envOrDefault("ACCOUNT_ID", ""),
		DatabaseURL:            envOrDefault("DATABASE_URL", ""),

		RedisURL:              envOrDefault("REDIS_URL", ""),
		ExportSchedule:        envOrDefault("EXPORT_SCHEDULE", "@hourly"),
		ExportXLSXPath:        envOrDefault("EXPORT_XLSX_PATH", ""),
		SheetsSpreadsheetID:   envOrDefault("SHEETS_SPREADSHEET_ID", ""),
		GoogleCredentialsJSON: envOrDefault("GOOGLE_CREDENTIALS_JSON", ""),

		HTTPPort:    envOrDefault("HTTP_PORT", "8080"),
		AdminAPIKey: envOrDefault("ADMIN_API_KEY", ""),
		LogLevel:    envOrDefault("LOG_LEVEL", "info"),
		LogFormat:   envOrDefault("LOG_FORMAT", "json"),
	}
}

// Validate reports configuration that would make the engine unable to start.
func (c Config) Validate() error {
	var errs []error

	switch c.FeedKind {
	case FeedWebsocket:
		if c.FeedURL == "" {
			errs = append(errs, errors.New("FEED_URL is required for the websocket feed"))
		}
	case FeedCoinGecko:
		if c.CoinGeckoInterval <= 0 {
			errs = append(errs, errors.New("COINGECKO_INTERVAL must be positive"))
		} else if c.CoinGeckoInterval >= staleness.StalenessWindow {
			errs = append(errs, fmt.Errorf("COINGECKO_INTERVAL must be below %s or the feed goes offline between polls", staleness.StalenessWindow))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown FEED_KIND %q", c.FeedKind))
	}
	if len(c.FeedSymbols) == 0 {
		errs = append(errs, errors.New("FEED_SYMBOLS is empty"))
	}

	switch c.HoldingsSource {
	case HoldingsHTTP:
		if c.HoldingsURL == "" {
			errs = append(errs, errors.New("HOLDINGS_URL is required for the http holdings source"))
		}
	case HoldingsPostgres:
		if c.DatabaseURL == "" || c.AccountID == "" {
			errs = append(errs, errors.New("DATABASE_URL and ACCOUNT_ID are required for the postgres holdings source"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown HOLDINGS_SOURCE %q", c.HoldingsSource))
	}
	if c.HoldingsPollInterval <= 0 {
		errs = append(errs, errors.New("HOLDINGS_POLL_INTERVAL must be positive"))
	}

	if (c.SheetsSpreadsheetID == "") != (c.GoogleCredentialsJSON == "") {
		errs = append(errs, errors.New("SHEETS_SPREADSHEET_ID and GOOGLE_CREDENTIALS_JSON must be set together"))
	}

	return errors.Join(errs...)
}

// Account returns the identifier used to key shared state, falling back to "default".
func (c Config) Account() string {
	if c.AccountID != "" {
		return c.AccountID
	}
	return "default"
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envOrDefaultInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			slog.Warn("invalid integer env var, using default", "key", key, "value", v, "default", defaultVal)
			return defaultVal
		}
		return n
	}
	return defaultVal
}

func envOrDefaultBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			slog.Warn("invalid boolean env var, using default", "key", key, "value", v, "default", defaultVal)
			return defaultVal
		}
		return b
	}
	return defaultVal
}

func envOrDefaultDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			slog.Warn("invalid duration env var, using default", "key", key, "value", v, "default", defaultVal)
			return defaultVal
		}
		return d
	}
	return defaultVal
}

// envOrDefaultSymbols parses a comma-separated ticker list, normalized and deduplicated.
func envOrDefaultSymbols(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	return lo.Uniq(lo.Compact(lo.Map(strings.Split(v, ","), func(s string, _ int) string {
		return domain.NormalizeSymbol(s)
	})))
}
