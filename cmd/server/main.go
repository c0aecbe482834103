package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/you/go-flightshark/internal/aggregator"
	"github.com/you/go-flightshark/internal/auth"
	"github.com/you/go-flightshark/internal/cache"
	"github.com/you/go-flightshark/internal/config"
	"github.com/you/go-flightshark/internal/httpx"
	"github.com/you/go-flightshark/internal/providers"
	"github.com/you/go-flightshark/internal/service"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.SetDefault(newLogger(cfg))

	if cfg.JWTSecret == "" {
		cfg.JWTSecret = uuid.NewString()
		slog.Warn("jwt_secret not set, using a random one; tokens will not survive a restart")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	prov := []providers.FlightProvider{
		providers.NewAmadeus(cfg),
		providers.NewSkyscanner(cfg),
		providers.NewKiwi(cfg),
		providers.NewDuffel(cfg),
	}
	for _, p := range prov {
		slog.Info("flight provider registered", "provider", p.Name(), "priority", p.Priority(), "configured", p.IsConfigured())
	}

	mgr := aggregator.New(prov, aggregator.Config{MaxProviders: cfg.MaxProviders})
	svc := service.New(mgr, service.Options{
		SearchTimeout:   cfg.SearchTimeout,
		DefaultStrategy: aggregator.ParseStrategy(cfg.DefaultStrategy),
	})

	store, err := newCache(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	srv := httpx.NewServer(svc, store, auth.New(cfg), httpx.Options{
		CacheTTL:           cfg.CacheTTL,
		CalendarCacheTTL:   cfg.CalendarCacheTTL,
		StatusPushInterval: cfg.StatusPushInterval,
		LoadTimeout:        cfg.SearchTimeout + 5*time.Second,
	})
	e := srv.Echo()
	e.Server.ReadTimeout = 10 * time.Second
	e.Server.ReadHeaderTimeout = 10 * time.Second
	e.Server.IdleTimeout = 60 * time.Second

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", cfg.HTTPAddr, "tls", cfg.TLSCertFile != "")
		if cfg.TLSCertFile != "" && cfg.TLSKeyFile != "" {
			errCh <- e.StartTLS(cfg.HTTPAddr, cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			errCh <- e.Start(cfg.HTTPAddr)
		}
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.LogFormat, "text") {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func newCache(ctx context.Context, cfg *config.Config) (cache.Cache, error) {
	switch strings.ToLower(cfg.CacheDriver) {
	case "redis":
		c, err := cache.NewRedisCache(ctx, cache.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, err
		}
		slog.Info("redis cache enabled", "addr", cfg.RedisAddr, "ttl", cfg.CacheTTL)
		return c, nil
	case "memory", "":
		c := cache.NewMemoryCache()
		go c.Janitor(ctx, time.Minute)
		slog.Info("in-memory cache enabled", "ttl", cfg.CacheTTL)
		return c, nil
	case "none":
		slog.Info("cache disabled")
		return cache.NewNoOpCache(), nil
	default:
		return nil, fmt.Errorf("unknown cache_driver %q", cfg.CacheDriver)
	}
}
