// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/ManuGH/connectbridge/internal/api"
	"github.com/ManuGH/connectbridge/internal/bridge"
	"github.com/ManuGH/connectbridge/internal/config"
	"github.com/ManuGH/connectbridge/internal/health"
	"github.com/ManuGH/connectbridge/internal/host"
	xglog "github.com/ManuGH/connectbridge/internal/log"
	"github.com/ManuGH/connectbridge/internal/player"
	"github.com/ManuGH/connectbridge/internal/spirc"
	"github.com/ManuGH/connectbridge/internal/spirc/virtual"
	"github.com/ManuGH/connectbridge/internal/telemetry"
	"github.com/ManuGH/connectbridge/internal/tokenstore"
	"github.com/ManuGH/connectbridge/internal/webapi"
	"golang.org/x/sync/errgroup"
)

// errNoNativeEngine is returned when no engine other than the virtual one
// is linked into the binary.
var errNoNativeEngine = errors.New("no native connect engine in this build; run with --virtual")

// errBridgeStopped ends the daemon when the session goes away on its own.
var errBridgeStopped = errors.New("bridge stopped unexpectedly")

type runOptions struct {
	ConfigPath string
	Virtual    bool
	Version    string
	// Listener overrides cfg.API.Listen.
	Listener net.Listener
	// Ready is closed once the API is serving.
	Ready chan<- struct{}
}

func newEngine(cfg config.AppConfig) (spirc.Engine, error) {
	if cfg.Bridge.Virtual {
		return virtual.New(), nil
	}
	return nil, errNoNativeEngine
}

func run(ctx context.Context, opts runOptions) error {
	logger := xglog.WithComponent("daemon")

	loader := config.NewLoader(opts.ConfigPath, opts.Version)
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if opts.Virtual {
		cfg.Bridge.Virtual = true
	}
	xglog.Configure(xglog.Config{Level: cfg.LogLevel, Service: "connectd", Version: cfg.Version})
	logger.Info().
		Str(xglog.FieldEvent, "config.loaded").
		Str("path", opts.ConfigPath).
		Bool("virtual", cfg.Bridge.Virtual).
		Msg("configuration loaded")

	engine, err := newEngine(cfg)
	if err != nil {
		return err
	}
	if err := health.PerformStartupChecks(cfg); err != nil {
		return fmt.Errorf("startup checks: %w", err)
	}

	tp, err := telemetry.NewProvider(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Str(xglog.FieldEvent, "telemetry.shutdown_failed").Msg("tracer shutdown failed")
		}
	}()

	var store tokenstore.Store
	if cfg.Tokens.Save {
		store, err = tokenstore.Open(ctx, cfg.Tokens.Config)
		if err != nil {
			return fmt.Errorf("token store: %w", err)
		}
		defer func() { _ = store.Close() }()
	}

	loop := host.NewLoop(
		host.WithListenerBuffer(cfg.Bridge.ListenerBuffer),
		host.WithLogger(xglog.WithComponent("host")),
	)
	defer loop.Close()

	h, err := bridge.Bootstrap(ctx, bridge.Options{
		Engine:         engine,
		Credentials:    cfg.Auth.Credentials(),
		Player:         cfg.Player,
		Connect:        cfg.Connect,
		Loop:           loop,
		ReadyTimeout:   cfg.Bridge.ReadyTimeout,
		CommandTimeout: cfg.Bridge.CommandTimeout,
	})
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}

	var webOpts []webapi.Option
	if cfg.API.WebAPIBaseURL != "" {
		webOpts = append(webOpts, webapi.WithBaseURL(cfg.API.WebAPIBaseURL))
	}
	web := webapi.New(webOpts...)
	p, err := player.New(h, player.Options{
		Tokens: store,
		WebAPI: web,
		Scopes: cfg.Tokens.Scopes,
	})
	if err != nil {
		_ = h.Close()
		<-h.Done()
		return err
	}

	holder := config.NewHolder(cfg, loader)
	if err := holder.StartWatcher(ctx); err != nil {
		logger.Warn().Err(err).Str(xglog.FieldEvent, "config.watcher_failed").Msg("config hot reload unavailable")
	}
	defer holder.Stop()

	probes := health.NewManager(cfg.Version)
	probes.SetDetail("device_id", p.DeviceID())
	probes.RegisterChecker(health.NewBridgeChecker(p.Done()))
	probes.RegisterChecker(health.NewBreakerChecker("webapi", web.Breaker()))
	if store != nil {
		probes.RegisterChecker(health.NewTokenStoreChecker(store))
	}

	apiCfg := api.Config{
		Listen:          cfg.API.Listen,
		RateLimit:       cfg.API.RateLimit,
		RateWindow:      cfg.API.RateWindow,
		ShutdownTimeout: cfg.API.ShutdownTimeout,
		Health:          probes,
	}
	if cfg.Telemetry.Enabled {
		apiCfg.ServiceName = cfg.Telemetry.ServiceName
	}
	srv := api.New(p, apiCfg)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ln := opts.Listener
		if ln == nil {
			var lc net.ListenConfig
			var lerr error
			if ln, lerr = lc.Listen(gctx, "tcp", cfg.API.Listen); lerr != nil {
				return fmt.Errorf("listen %s: %w", cfg.API.Listen, lerr)
			}
		}
		if opts.Ready != nil {
			close(opts.Ready)
		}
		return srv.Serve(gctx, ln)
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
		case <-p.Done():
			if ctx.Err() == nil {
				return errBridgeStopped
			}
		}
		if err := p.Close(); err != nil && !errors.Is(err, player.ErrClosed) {
			logger.Warn().Err(err).Str(xglog.FieldEvent, "player.close_failed").Msg("player close failed")
		}
		<-p.Done()
		return nil
	})

	logger.Info().
		Str(xglog.FieldEvent, "daemon.started").
		Str(xglog.FieldDeviceID, p.DeviceID()).
		Str("listen", cfg.API.Listen).
		Msg("connectd running")

	err = g.Wait()
	holder.Stop()
	holder.Wait()
	return err
}
