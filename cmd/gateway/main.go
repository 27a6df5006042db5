package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"german-ocr/internal/bootstrap"
	"german-ocr/internal/shared/config"
	"german-ocr/internal/shared/server"
	"german-ocr/internal/shared/telemetry"
)

func main() {
	cfg := config.Load()
	telemetry.SetLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.Build(ctx, cfg, bootstrap.Options{})
	if err != nil {
		log.Fatalf("bootstrap build: %v", err)
	}
	defer app.Close()

	poolDone := make(chan struct{})
	go func() {
		defer close(poolDone)
		if err := app.Pool.Run(ctx); err != nil {
			telemetry.Error("worker.stopped", map[string]any{"error": err.Error()})
		}
	}()

	// The pool drains while recovery fills the queue.
	go func() {
		if n, err := app.Jobs.Recover(ctx); err != nil {
			telemetry.Error("gateway.recover_failed", map[string]any{"error": err.Error(), "requeued": n})
		}
	}()

	addr := server.Addr(cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		telemetry.Info("gateway.listening", map[string]any{
			"addr":       addr,
			"env":        cfg.Env,
			"ollama_url": cfg.OllamaURL,
			"auth":       cfg.APIKey != "",
		})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()
	telemetry.Info("gateway.shutdown", map[string]any{"timeout_ms": cfg.ShutdownTimeout.Milliseconds()})
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		telemetry.Warn("gateway.shutdown_failed", map[string]any{"error": err.Error()})
	}
	<-poolDone
}
