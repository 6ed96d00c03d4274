package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/tabletop-backend/internal/archive"
	"github.com/DoyleJ11/tabletop-backend/internal/config"
	"github.com/DoyleJ11/tabletop-backend/internal/httpapi"
	"github.com/DoyleJ11/tabletop-backend/internal/hub"
	"github.com/DoyleJ11/tabletop-backend/internal/router"
	"github.com/DoyleJ11/tabletop-backend/internal/session"
	"github.com/DoyleJ11/tabletop-backend/internal/ws"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var recorder hub.Recorder
	if cfg.DatabaseURL != "" {
		store, err := archive.Open(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer store.Close()
		recorder = store
		log.Info("results archive enabled")
	}

	rt := router.New(cfg.OutboxSize, log.Named("router"))
	h := hub.NewHub(ctx, hub.Options{
		DefaultDuration:   cfg.DefaultDuration,
		MinDuration:       cfg.MinDuration,
		MaxDuration:       cfg.MaxDuration,
		HeartbeatInterval: cfg.HeartbeatInterval,
		SweepInterval:     cfg.SweepInterval,
		Session: session.Options{
			MaxPlayers:     cfg.MaxPlayers,
			WaitingTimeout: cfg.WaitingTimeout,
			EmptyGrace:     cfg.EmptyGrace,
			FinishGrace:    cfg.FinishGrace,
			TickInterval:   cfg.TickInterval,
			SendAttempts:   cfg.SendAttempts,
			RetryBackoff:   cfg.RetryBackoff,
		},
	}, rt, recorder, log.Named("hub"))

	socket := ws.Handler(ws.NewDispatcher(h, log.Named("dispatch")), rt, ws.Options{
		SendTimeout:    cfg.SendTimeout,
		ReadTimeout:    2 * cfg.HeartbeatInterval,
		OriginPatterns: cfg.OriginPatterns,
	}, log.Named("ws"))

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpapi.SetupRoutes(h, socket),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return h.Run(gctx) })
	g.Go(func() error {
		log.Info("listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		return errors.Join(err, h.Close(shutdownCtx))
	})
	return g.Wait()
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("parse LOG_LEVEL: %w", err)
	}
	zc := zap.NewProductionConfig()
	if cfg.LogFormat == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
