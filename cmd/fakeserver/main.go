package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/dgnsrekt/votestream/internal/config"
	"github.com/dgnsrekt/votestream/internal/fakeserver"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Load config
	cfg, err := config.LoadFakeServer()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return 1
	}

	// Setup logger
	zapConfig := zap.NewDevelopmentConfig()
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err == nil {
		zapConfig.Level = zap.NewAtomicLevelAt(level)
	}
	logger, err := zapConfig.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		return 1
	}
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.String("port", cfg.Port),
		zap.Bool("streamEnabled", cfg.StreamEnabled),
		zap.Duration("streamInterval", cfg.StreamInterval),
		zap.Strings("entities", cfg.Entities),
	)

	srv := fakeserver.New(fakeserver.Config{
		Token:      cfg.Token,
		TopggToken: cfg.TopggToken,
	}, logger)

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go srv.Run(ctx)

	if cfg.StreamEnabled {
		streamer := fakeserver.NewStreamer(srv, cfg.Entities, cfg.StreamInterval, logger)
		go streamer.Run(ctx)
	}

	// Setup HTTP server
	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting server",
			zap.String("addr", httpServer.Addr),
			zap.String("gateway", "ws://localhost:"+cfg.Port+"/gateway"),
		)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", zap.Error(err))
		}
	}()

	// Wait for interrupt
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Close gateway sessions with a normal closure so clients do not reconnect
	srv.CloseSessions(1000, "server shutting down")

	// Cancel context to stop the hub and streamer
	cancel()

	// Graceful HTTP server shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
		return 1
	}

	logger.Info("server stopped")
	return 0
}
