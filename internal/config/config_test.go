package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

// --- MustLoad ---

func TestMustLoad_PanicsOnInvalidConfig(t *testing.T) {
	t.Setenv("LOG_LEVEL", "verbose") // invalid -> Load() error
	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("MustLoad should panic on invalid config")
		}
	}()
	_ = MustLoad()
}

func TestMustLoad_Success_NoPanic(t *testing.T) {
	// No special env needed; defaults are valid.
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("MustLoad should not panic on valid defaults, got: %v", r)
		}
	}()
	cfg := MustLoad()
	if cfg.ShopBaseURL == "" {
		t.Fatalf("unexpected empty config from MustLoad")
	}
}

// --- Load success + normalization + parsing ---

func TestLoad_Success_DefaultsAndOverrides(t *testing.T) {
	t.Setenv("SHOP_BASE_URL", " https://shop.example.com/ ") // trim + trailing slash strip
	t.Setenv("HTTP_TIMEOUT", "5s")
	t.Setenv("REFRESH_SKEW", "45s")
	t.Setenv("FALLBACK_NOTICE_DELAY", "500ms")
	t.Setenv("PUSH_RECONNECT_INTERVAL", "1s")
	t.Setenv("BROADCAST_POLL_INTERVAL", "250ms")
	t.Setenv("DB_PATH", "client.db")
	t.Setenv("ORDERS_ROUTE", "/admin/orders")
	t.Setenv("LOGIN_ROUTE", "/signin")
	t.Setenv("LOCALE", "el")
	t.Setenv("CURRENCY", "eur") // will upper-case
	t.Setenv("LOG_LEVEL", "warning") // will normalize to "warn"
	t.Setenv("LOG_PRETTY", "yes")
	t.Setenv("METRICS_ADDR", "localhost:9100")

	t.Setenv("OTEL_ENABLED", "1")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "otel:4317")
	t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "0")
	t.Setenv("OTEL_SERVICE_NAME", "svc")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "0.75")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.ShopBaseURL != "https://shop.example.com" ||
		cfg.HTTPTimeout != 5*time.Second ||
		cfg.RefreshSkew != 45*time.Second ||
		cfg.FallbackNoticeDelay != 500*time.Millisecond ||
		cfg.ReconnectInterval != time.Second ||
		cfg.BroadcastPollInterval != 250*time.Millisecond {
		t.Fatalf("server/timing fields unexpected: %+v", cfg)
	}
	if cfg.PushURL != "https://shop.example.com/api/v1/events" {
		t.Fatalf("PushURL should derive from the base URL, got %q", cfg.PushURL)
	}
	if cfg.DBPath != "client.db" || cfg.OrdersRoute != "/admin/orders" || cfg.LoginRoute != "/signin" {
		t.Fatalf("storage/routing fields unexpected: %+v", cfg)
	}
	if cfg.Locale != "el" || cfg.Currency != "EUR" {
		t.Fatalf("display fields unexpected: %+v", cfg)
	}
	if cfg.LogLevel != "warn" || !cfg.LogPretty || cfg.MetricsAddr != "localhost:9100" {
		t.Fatalf("logging fields unexpected: %+v", cfg)
	}
	if !cfg.OTEL.Enabled || cfg.OTEL.Endpoint != "otel:4317" || cfg.OTEL.Insecure || cfg.OTEL.ServiceName != "svc" || cfg.OTEL.SampleRatio != 0.75 {
		t.Fatalf("otel unexpected: %+v", cfg.OTEL)
	}
}

func TestLoad_ExplicitPushURLNotOverridden(t *testing.T) {
	t.Setenv("PUSH_URL", "https://push.example.com/stream")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.PushURL != "https://push.example.com/stream" {
		t.Fatalf("explicit PUSH_URL lost: %q", cfg.PushURL)
	}
}

// --- Load validations (each case triggers exactly one validation error) ---

func TestLoad_ValidationErrors(t *testing.T) {
	t.Run("invalid LOG_LEVEL", func(t *testing.T) {
		t.Setenv("LOG_LEVEL", "verbose")
		if _, err := Load(); err == nil {
			t.Fatalf("expected LOG_LEVEL validation error")
		}
	})
	t.Run("non-http base URL", func(t *testing.T) {
		t.Setenv("SHOP_BASE_URL", "ftp://shop")
		if _, err := Load(); err == nil || !containsErr(err, "SHOP_BASE_URL") {
			t.Fatalf("expected SHOP_BASE_URL validation error, got: %v", err)
		}
	})
	t.Run("non-positive http timeout", func(t *testing.T) {
		t.Setenv("HTTP_TIMEOUT", "0s")
		if _, err := Load(); err == nil || !containsErr(err, "HTTP_TIMEOUT") {
			t.Fatalf("expected HTTP_TIMEOUT validation error, got: %v", err)
		}
	})
	t.Run("negative refresh skew", func(t *testing.T) {
		t.Setenv("REFRESH_SKEW", "-1s")
		if _, err := Load(); err == nil || !containsErr(err, "REFRESH_SKEW") {
			t.Fatalf("expected REFRESH_SKEW validation error, got: %v", err)
		}
	})
	t.Run("non-positive reconnect interval", func(t *testing.T) {
		t.Setenv("PUSH_RECONNECT_INTERVAL", "0s")
		if _, err := Load(); err == nil || !containsErr(err, "PUSH_RECONNECT_INTERVAL") {
			t.Fatalf("expected PUSH_RECONNECT_INTERVAL validation error, got: %v", err)
		}
	})
	t.Run("non-positive broadcast poll", func(t *testing.T) {
		t.Setenv("BROADCAST_POLL_INTERVAL", "0s")
		if _, err := Load(); err == nil || !containsErr(err, "BROADCAST_POLL_INTERVAL") {
			t.Fatalf("expected BROADCAST_POLL_INTERVAL validation error, got: %v", err)
		}
	})
	t.Run("empty DB_PATH", func(t *testing.T) {
		t.Setenv("DB_PATH", "   ")
		if _, err := Load(); err == nil || !containsErr(err, "DB_PATH must not be empty") {
			t.Fatalf("expected DB_PATH validation error, got: %v", err)
		}
	})
	t.Run("route without leading slash", func(t *testing.T) {
		t.Setenv("ORDERS_ROUTE", "orders")
		if _, err := Load(); err == nil || !containsErr(err, "ORDERS_ROUTE") {
			t.Fatalf("expected route validation error, got: %v", err)
		}
	})
	t.Run("bad currency code", func(t *testing.T) {
		t.Setenv("CURRENCY", "EURO")
		if _, err := Load(); err == nil || !containsErr(err, "CURRENCY") {
			t.Fatalf("expected CURRENCY validation error, got: %v", err)
		}
	})
	t.Run("otel sample ratio out of range", func(t *testing.T) {
		t.Setenv("OTEL_TRACES_SAMPLER_ARG", "1.5")
		if _, err := Load(); err == nil || !containsErr(err, "OTEL_TRACES_SAMPLER_ARG") {
			t.Fatalf("expected OTEL_TRACES_SAMPLER_ARG validation error, got: %v", err)
		}
	})
}

// --- helpers ---

func TestHelpers_getenv(t *testing.T) {
	t.Setenv("X_EMPTY", "")
	if getenv("X_EMPTY", "d") != "d" {
		t.Fatalf("getenv should fall back to default on empty var")
	}
	t.Setenv("X_SET", "val")
	if getenv("X_SET", "d") != "val" {
		t.Fatalf("getenv should read set value")
	}
}

func TestHelpers_getfloat_getdur(t *testing.T) {
	t.Setenv("F_VALID", "3.14")
	if getfloat("F_VALID", 0) != 3.14 {
		t.Fatalf("getfloat parse failed")
	}
	t.Setenv("F_BAD", "nope")
	if getfloat("F_BAD", 1.23) != 1.23 {
		t.Fatalf("getfloat default on bad parse failed")
	}

	t.Setenv("D_VALID", "150ms")
	if getdur("D_VALID", time.Second) != 150*time.Millisecond {
		t.Fatalf("getdur parse failed")
	}
	t.Setenv("D_BAD", "zzz")
	if getdur("D_BAD", 2*time.Second) != 2*time.Second {
		t.Fatalf("getdur default on bad parse failed")
	}
}

func TestHelpers_getbool(t *testing.T) {
	trueVals := []string{"1", "true", "TRUE", " yes ", "Y", "on", "On"}
	for i, v := range trueVals {
		k := "B_T_" + config_strconv(i)
		t.Setenv(k, v)
		if !getbool(k, false) {
			t.Fatalf("getbool(%q) = false; want true", v)
		}
	}
	falseVals := []string{"0", "false", "FALSE", " no ", "N", "off", "Off"}
	for i, v := range falseVals {
		k := "B_F_" + config_strconv(i)
		t.Setenv(k, v)
		if getbool(k, true) {
			t.Fatalf("getbool(%q) = true; want false", v)
		}
	}
	// default on unset/empty
	t.Setenv("B_EMPTY", "")
	if !getbool("B_EMPTY", true) || getbool("B_EMPTY", false) {
		t.Fatalf("getbool default behavior unexpected")
	}
}

func TestHelpers_normalizeBaseURL(t *testing.T) {
	if normalizeBaseURL(" http://x/ ") != "http://x" {
		t.Fatalf("normalizeBaseURL trim failed")
	}
	if normalizeBaseURL("http://x") != "http://x" {
		t.Fatalf("normalizeBaseURL identity failed")
	}
}

// small helper (avoid fmt just for ints)
func config_strconv(i int) string { return string('a' + rune(i)) }

// Ensure tests don't leak env to others.
func TestMain(m *testing.M) {
	os.Unsetenv("SHOP_BASE_URL")
	os.Exit(m.Run())
}

// containsErr reports whether err's message contains the given substring.
func containsErr(err error, want string) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), want)
}
