package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pb2106/Network-Control/internal/auth"
	"github.com/pb2106/Network-Control/internal/config"
	"github.com/pb2106/Network-Control/internal/db"
	"github.com/pb2106/Network-Control/internal/detect"
	"github.com/pb2106/Network-Control/internal/discovery"
	"github.com/pb2106/Network-Control/internal/firewall"
	"github.com/pb2106/Network-Control/internal/httpapi"
	"github.com/pb2106/Network-Control/internal/metrics"
	"github.com/pb2106/Network-Control/internal/registry"
	"github.com/pb2106/Network-Control/internal/synchub"
)

func main() {
	configPath := flag.String("config", os.Getenv("NETCTL_CONFIG"), "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLogger := httpapi.NewLogger("info")
		bootLogger.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger := httpapi.NewLogger(cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pool *db.Pool
	if cfg.Database.URL != "" {
		p, err := db.Open(ctx, cfg.Database.URL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer p.Close()
		pool = p

		if err := pool.Migrate(ctx); err != nil {
			logger.Fatal().Err(err).Msg("failed to run migrations")
		}
		if err := pool.SeedAdmin(ctx, cfg.Auth.BootstrapUser, cfg.Auth.BootstrapPassword); err != nil {
			logger.Fatal().Err(err).Msg("failed to seed bootstrap operator")
		}
	} else {
		logger.Warn().Msg("no database configured; most endpoints will report unavailable")
	}

	m := metrics.New()

	hub := synchub.New(logger, m, synchub.Options{
		HistorySize: cfg.Sync.HistorySize,
		QueueSize:   cfg.Sync.QueueSize,
	})
	go hub.Run(ctx)

	opts := httpapi.Options{Sync: hub}

	if pool != nil {
		q := pool.Queries()

		reg := registry.New(logger, q)
		opts.Devices = reg

		opts.Auth = auth.New(logger, q, auth.Options{
			Secret:   cfg.Auth.JWTSecret,
			TokenTTL: cfg.Auth.TokenTTL,
		})

		adapter, err := firewall.New(logger, cfg.Firewall.CommandTimeout)
		if err != nil {
			logger.Fatal().Err(err).Msg("no firewall adapter for this platform")
		}
		opts.Engine = firewall.NewEngine(logger, adapter, firewall.NewGuard(), reg, q, hub, m)

		if cfg.Discovery.Enabled {
			namers := []discovery.Namer{}
			if cfg.Discovery.SNMPEnabled {
				namers = append(namers, discovery.NewSNMPNamer(cfg.Discovery.SNMPCommunity))
			}
			namers = append(namers, discovery.NewPTRResolver())

			worker, err := discovery.New(logger, reg, q, hub, discovery.NewChain(namers...), discovery.Options{
				Interval:     cfg.Discovery.Interval,
				ARPTablePath: cfg.Discovery.ARPTablePath,
				Scope:        cfg.Discovery.Scope,
				PingSweep:    cfg.Discovery.PingSweep,
				PingTimeout:  cfg.Discovery.PingTimeout,
				PingWorkers:  cfg.Discovery.PingWorkers,
			}, m)
			if err != nil {
				logger.Fatal().Err(err).Msg("invalid discovery configuration")
			}
			opts.Scanner = worker
			go worker.Run(ctx)
		}

		if cfg.Detection.Enabled {
			manager := detect.New(logger, q, hub, detect.Options{
				Command:   cfg.Detection.Command,
				Args:      cfg.Detection.Args,
				AlertFile: cfg.Detection.AlertFile,
			}, m)
			go func() {
				if err := manager.Run(ctx); err != nil && err != context.Canceled {
					logger.Error().Err(err).Msg("detection manager stopped")
				}
			}()
		}
	}

	h := httpapi.NewHandler(logger, pool, m, opts)
	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           h.Router(),
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
	}

	go func() {
		logger.Info().Str("addr", cfg.HTTP.Addr).Msg("netctl listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server error")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	logger.Info().Msg("shutdown complete")
}
