// Command shopclient runs the headless shop client: it bootstraps a
// session against the configured shop server, keeps the guest cart and
// user mirrors in the local SQLite store, holds the push channel open,
// and reacts to cross-instance logout signals. The UI layer embeds the
// same packages; this binary is the composition root and a diagnostic
// runner.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/storefront-dev/go-shop-client/internal/api"
	"github.com/storefront-dev/go-shop-client/internal/config"
	"github.com/storefront-dev/go-shop-client/internal/domain"
	"github.com/storefront-dev/go-shop-client/internal/notify"
	"github.com/storefront-dev/go-shop-client/internal/observability"
	"github.com/storefront-dev/go-shop-client/internal/push"
	"github.com/storefront-dev/go-shop-client/internal/repo"
	"github.com/storefront-dev/go-shop-client/internal/services"
	"github.com/storefront-dev/go-shop-client/internal/state"
)

const version = "0.1.0"

func main() {
	_ = godotenv.Load()
	cfg := config.MustLoad()
	log := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(flushCtx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown failed")
		}
	}()

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("opening local store failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrating local store failed")
	}

	// Composition root: everything below is explicit DI, no globals.
	store := state.NewStore()
	cancels := api.NewCancelRegistry()

	client := api.NewClient(cfg.ShopBaseURL, cancels, log)
	client.HTTP.Timeout = cfg.HTTPTimeout

	mirror := &repo.GuestCartStore{DB: db, Log: log}
	users := &repo.UserCacheStore{DB: db, Log: log}
	broadcast := &repo.BroadcastStore{DB: db, Log: log}

	notices := notify.NewCenter(log)
	notices.Subscribe(func(n notify.Notice) {
		logNotice(log, n)
	})

	cart := services.NewCartService(store, mirror, log)
	sessions := &services.SessionService{
		Store:               store,
		API:                 client,
		Cart:                cart,
		Users:               users,
		Broadcast:           broadcast,
		Notices:             notices,
		Cancels:             cancels,
		Log:                 log,
		RefreshSkew:         cfg.RefreshSkew,
		FallbackNoticeDelay: cfg.FallbackNoticeDelay,
	}

	subs := push.NewSubscriberRegistry(log)
	subs.Subscribe(func(ev domain.OrderUpdateEvent) {
		log.Info().Str("order_id", ev.OrderID).Interface("changed", ev.ChangedFields).Msg("order updated")
	})

	channel := push.NewChannel(cfg.PushURL, cfg.OrdersRoute, store, sessions, subs, log)
	channel.Reconnect = rate.NewLimiter(rate.Every(cfg.ReconnectInterval), 1)

	if cfg.MetricsAddr != "" {
		go serveMetrics(ctx, cfg.MetricsAddr, log)
	}

	sessions.Bootstrap(ctx)
	sess := store.Session()
	log.Info().
		Bool("authenticated", sess.IsAuthenticated).
		Bool("local_fallback", sess.IsLocalFallback).
		Str("cart_total", domain.FormatMinor(store.Totals().Discounted, cfg.Currency, cfg.Locale)).
		Msg("session ready")

	go channel.Run(ctx)
	go broadcast.Watch(ctx, cfg.BroadcastPollInterval, func(at time.Time) {
		sessions.HandleLogoutSignal(ctx, at)
	})

	<-ctx.Done()
	log.Info().Msg("shutting down")
}

func newLogger(cfg config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	var out = os.Stderr
	var w zerolog.Logger
	if cfg.LogPretty {
		w = zerolog.New(zerolog.ConsoleWriter{Out: out})
	} else {
		w = zerolog.New(out)
	}
	return w.Level(level).With().Timestamp().Str("service", "shop-client").Logger()
}

func logNotice(log zerolog.Logger, n notify.Notice) {
	ev := log.Info()
	switch n.Level {
	case notify.LevelWarn:
		ev = log.Warn()
	case notify.LevelError:
		ev = log.Error()
	}
	ev.Bool("sticky", n.Sticky).Msg(n.Message)
}

// serveMetrics exposes the Prometheus registry until ctx is cancelled.
func serveMetrics(ctx context.Context, addr string, log zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Warn().Err(err).Str("addr", addr).Msg("metrics listener failed")
	}
}
