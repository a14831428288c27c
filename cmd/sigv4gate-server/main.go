// Package main is the entry point for the sigv4-gate demo server. It wires
// a credential provider, the verification engine and the gate middleware
// into a small HTTP service.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/prn-tf/sigv4-gate/internal/config"
	"github.com/prn-tf/sigv4-gate/internal/gate"
	"github.com/prn-tf/sigv4-gate/internal/handler"
	"github.com/prn-tf/sigv4-gate/internal/metrics"
	"github.com/prn-tf/sigv4-gate/internal/parser"
	"github.com/prn-tf/sigv4-gate/internal/pkg/crypto"
	"github.com/prn-tf/sigv4-gate/internal/provider"
	"github.com/prn-tf/sigv4-gate/internal/rawbody"
	"github.com/prn-tf/sigv4-gate/internal/verify"
)

// Version information (set at build time)
var (
	Version   = "dev"
	GitCommit = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	setupLogger(cfg.Logging)

	log.Info().
		Str("version", Version).
		Str("git_commit", GitCommit).
		Str("provider", cfg.Auth.Provider).
		Msg("starting sigv4-gate")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	prov, cleanup, err := buildProvider(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build credential provider")
	}
	defer cleanup()

	engine, err := verify.NewEngine(verify.EngineConfig{
		Provider: prov,
		Region:   cfg.Auth.Region,
		Service:  cfg.Auth.Service,
		MaxSkew:  cfg.Auth.MaxSkew,
		Logger:   log.Logger,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build verification engine")
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(prometheus.DefaultRegisterer)
	}

	g, err := gate.New(gate.Config{
		Verifier:     engine,
		MaxBodyBytes: cfg.Parser.MaxBodySize,
		ReadTimeout:  cfg.Parser.ReadTimeout,
		Logger:       log.Logger,
		Metrics:      m,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build gate")
	}

	jsonParser, err := parser.NewJSON(json.Unmarshal)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build json parser")
	}
	parsers := parser.Middleware(parser.Config{
		Read: rawbody.ReadConfig{
			MaxBytes:    cfg.Parser.MaxBodySize,
			ReadTimeout: cfg.Parser.ReadTimeout,
		},
		Logger: log.Logger,
	}, jsonParser, parser.NewForm())

	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}

	srv := &http.Server{
		Addr: cfg.Server.Addr(),
		Handler: handler.New(handler.Config{
			Gate:        g,
			Parsers:     parsers,
			MetricsPath: metricsPath,
			Logger:      log.Logger,
		}),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}

func setupLogger(cfg config.LoggingConfig) {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}

// buildProvider constructs the configured credential provider and wraps it
// with the redis cache when enabled. The returned cleanup releases any
// connections.
func buildProvider(ctx context.Context, cfg *config.Config) (verify.Provider, func(), error) {
	var (
		prov    verify.Provider
		cleanup = func() {}
	)

	switch cfg.Auth.Provider {
	case "static":
		creds := make(map[string]verify.Credential, len(cfg.Auth.StaticCredentials))
		for id, sc := range cfg.Auth.StaticCredentials {
			creds[id] = verify.Credential{
				Secret:   sc.Secret,
				Regions:  sc.Regions,
				Services: sc.Services,
			}
		}
		prov = provider.NewStatic(creds)

	case "sqlite":
		enc, err := crypto.NewEncryptorFromHex(cfg.Auth.EncryptionKey)
		if err != nil {
			return nil, nil, err
		}
		p, err := provider.NewSQLite(ctx, provider.SQLiteConfig{
			Path:        cfg.Database.Path,
			JournalMode: cfg.Database.JournalMode,
			BusyTimeout: cfg.Database.BusyTimeout,
		}, enc, log.Logger)
		if err != nil {
			return nil, nil, err
		}
		prov, cleanup = p, func() { _ = p.Close() }

	case "postgres":
		enc, err := crypto.NewEncryptorFromHex(cfg.Auth.EncryptionKey)
		if err != nil {
			return nil, nil, err
		}
		p, err := provider.NewPostgres(ctx, provider.PostgresConfig{
			Host:            cfg.Database.Host,
			Port:            cfg.Database.Port,
			User:            cfg.Database.User,
			Password:        cfg.Database.Password,
			Database:        cfg.Database.Database,
			SSLMode:         cfg.Database.SSLMode,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		}, enc, log.Logger)
		if err != nil {
			return nil, nil, err
		}
		prov, cleanup = p, func() { p.Close() }
	}

	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:        cfg.Redis.Addr(),
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			DialTimeout: cfg.Redis.DialTimeout,
		})
		prov = provider.NewCached(prov, client, cfg.Redis.CacheTTL, log.Logger)
		inner := cleanup
		cleanup = func() {
			_ = client.Close()
			inner()
		}
	}

	return prov, cleanup, nil
}
