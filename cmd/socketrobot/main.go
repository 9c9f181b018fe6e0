package main

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ent0n29/socketrobot/internal/arbiter"
	"github.com/ent0n29/socketrobot/internal/config"
	"github.com/ent0n29/socketrobot/internal/control"
	"github.com/ent0n29/socketrobot/internal/httpapi"
	"github.com/ent0n29/socketrobot/internal/motor"
	"github.com/ent0n29/socketrobot/internal/observability"
	"github.com/ent0n29/socketrobot/internal/session"
	"github.com/ent0n29/socketrobot/internal/telemetry"
	"github.com/ent0n29/socketrobot/internal/watchdog"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	if cfg.LogFile != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    10, // megabytes
			MaxBackups: 5,
			MaxAge:     14, // days
			Compress:   true,
		}
		defer rotator.Close()
		log.SetOutput(io.MultiWriter(os.Stderr, rotator))
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx := context.Background()
	store, err := telemetry.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("telemetry store init failed: %v", err)
	}
	defer store.Close()
	log.Printf("telemetry: journal mode %s", telemetry.Mode(store))
	journal := telemetry.NewRecorder(store, 256)

	driver, kind, err := motor.NewDriver(motor.Options{
		UseMock:       cfg.UseMockDriver,
		PinConfigPath: cfg.PinConfigPath,
	})
	if err != nil {
		log.Fatalf("motor driver init failed: %v", err)
	}
	defer func() {
		if err := driver.Close(); err != nil {
			log.Printf("motor: close failed: %v", err)
		}
	}()
	log.Printf("motor: using %s driver", kind)

	arb := arbiter.New()
	wd := watchdog.New(cfg.FailsafeTimeout)
	loop := control.New(control.Config{
		TickHz:      cfg.ControlTickHz,
		MinInterval: cfg.MinDriverInterval,
		Mode:        control.Mode(cfg.ControlMode),
	}, arb, wd, driver, metrics, journal)

	sessions := session.NewManager(cfg.MaxConcurrentSessions, cfg.IdleSessionTimeout, loop)
	sessions.SetEndHook(func(info session.Info, reason session.EndReason) {
		metrics.ObserveSession(string(reason), sessions.ActiveCount())
		recKind := telemetry.KindSessionClosed
		if reason == session.EndEvicted {
			recKind = telemetry.KindSessionEvicted
			log.Printf("session: %s evicted after %d events", info.ID, info.Events)
		}
		journal.Record(recKind, info.ID, "")
	})

	api := httpapi.New(cfg, httpapi.Deps{
		Sessions:   sessions,
		Loop:       loop,
		Arbiter:    arb,
		Watchdog:   wd,
		Metrics:    metrics,
		Journal:    journal,
		Store:      store,
		DriverKind: kind,
	})
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()

	journalCtx, journalCancel := context.WithCancel(context.Background())
	go journal.Run(journalCtx)

	sessions.StartJanitor(runCtx, time.Second)

	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		loop.Run(runCtx)
	}()

	go func() {
		log.Printf("server listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	// The loop commands zero before returning; the driver closes after it.
	runCancel()
	<-loopDone

	journalCancel()
	journal.Wait()

	log.Printf("shutdown complete")
}
