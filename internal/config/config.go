// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes client settings
// such as shop server endpoints, session timing, local storage paths,
// logging, and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "go-shop-client")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// Config holds all configuration values for the application.
type Config struct {
	// Shop server
	ShopBaseURL string        // SHOP_BASE_URL, no trailing slash
	PushURL     string        // PUSH_URL, SSE endpoint; derived from base when unset
	HTTPTimeout time.Duration // per-request timeout for the API client

	// Session timing
	RefreshSkew         time.Duration // refresh this long before nominal access expiry
	FallbackNoticeDelay time.Duration // delay before the degraded-session notice

	// Push / broadcast
	ReconnectInterval     time.Duration // pacing between push connection attempts
	BroadcastPollInterval time.Duration // cross-instance logout signal poll

	// Local storage
	DBPath string // SQLite path for the guest cart / user mirrors

	// Routing
	OrdersRoute string // route whose page-local counter tracks new orders
	LoginRoute  string // destination for forced redirects

	// Display
	Locale   string // BCP 47 tag for money formatting
	Currency string // ISO 4217 code

	// Logging / metrics
	LogLevel    string // debug|info|warn|error|fatal|panic
	LogPretty   bool   // pretty console logs in dev
	MetricsAddr string // Prometheus listen address, "" disables

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Shop server
		ShopBaseURL: normalizeBaseURL(getenv("SHOP_BASE_URL", "http://localhost:8080")),
		PushURL:     getenv("PUSH_URL", ""),
		HTTPTimeout: getdur("HTTP_TIMEOUT", 15*time.Second),

		// Session timing
		RefreshSkew:         getdur("REFRESH_SKEW", 30*time.Second),
		FallbackNoticeDelay: getdur("FALLBACK_NOTICE_DELAY", 2*time.Second),

		// Push / broadcast
		ReconnectInterval:     getdur("PUSH_RECONNECT_INTERVAL", 3*time.Second),
		BroadcastPollInterval: getdur("BROADCAST_POLL_INTERVAL", 2*time.Second),

		// Local storage
		DBPath: getenv("DB_PATH", "shop-client.db"),

		// Routing
		OrdersRoute: getenv("ORDERS_ROUTE", "/account/orders"),
		LoginRoute:  getenv("LOGIN_ROUTE", "/login"),

		// Display
		Locale:   getenv("LOCALE", "en"),
		Currency: strings.ToUpper(getenv("CURRENCY", "EUR")),

		// Logging / metrics
		LogLevel:    strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:   getbool("LOG_PRETTY", false),
		MetricsAddr: getenv("METRICS_ADDR", "localhost:9090"),

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-shop-client"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	if cfg.PushURL == "" {
		cfg.PushURL = cfg.ShopBaseURL + "/api/v1/events"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.ShopBaseURL) == "" {
		return cfg, errors.New("SHOP_BASE_URL must not be empty")
	}
	if !strings.HasPrefix(cfg.ShopBaseURL, "http://") && !strings.HasPrefix(cfg.ShopBaseURL, "https://") {
		return cfg, errors.New("SHOP_BASE_URL must be an http(s) URL")
	}
	if cfg.HTTPTimeout <= 0 {
		return cfg, errors.New("HTTP_TIMEOUT must be a positive duration")
	}
	if cfg.RefreshSkew < 0 {
		return cfg, errors.New("REFRESH_SKEW must be >= 0")
	}
	if cfg.FallbackNoticeDelay < 0 {
		return cfg, errors.New("FALLBACK_NOTICE_DELAY must be >= 0")
	}
	if cfg.ReconnectInterval <= 0 {
		return cfg, errors.New("PUSH_RECONNECT_INTERVAL must be > 0")
	}
	if cfg.BroadcastPollInterval <= 0 {
		return cfg, errors.New("BROADCAST_POLL_INTERVAL must be > 0")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if !strings.HasPrefix(cfg.OrdersRoute, "/") || !strings.HasPrefix(cfg.LoginRoute, "/") {
		return cfg, errors.New("ORDERS_ROUTE and LOGIN_ROUTE must start with '/'")
	}
	if len(cfg.Currency) != 3 {
		return cfg, errors.New("CURRENCY must be a 3-letter ISO 4217 code")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// normalizeBaseURL trims whitespace and a trailing '/' so paths can be
// appended verbatim.
func normalizeBaseURL(u string) string {
	u = strings.TrimSpace(u)
	return strings.TrimRight(u, "/")
}
