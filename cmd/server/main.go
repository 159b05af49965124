package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"foodphotographer/internal/api"
	"foodphotographer/internal/config"
	"foodphotographer/internal/gemini"
	"foodphotographer/internal/studio"
)

var _ studio.Models = (*gemini.Client)(nil)

func main() {
	if os.Getenv("APP_ENV") != "production" {
		_ = godotenv.Load()
	}

	cfg := config.Load()

	logger, err := newLogger(cfg)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := gemini.New(ctx, cfg.Gemini, logger)
	if err != nil {
		logger.Fatal("gemini client init failed", zap.Error(err))
	}

	srv := api.NewServer(cfg, client, logger)
	go srv.RunJanitor(ctx)

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.Info("listening",
			zap.String("addr", cfg.Addr),
			zap.String("env", cfg.AppEnv),
			zap.String("text_model", cfg.Gemini.TextModel),
			zap.String("image_model", cfg.Gemini.ImageModel),
			zap.String("edit_model", cfg.Gemini.EditModel),
			zap.Bool("static", cfg.StaticDir != ""),
			zap.Bool("access_gate", cfg.AccessPasswordHash != ""),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}

	done := make(chan struct{})
	go func() {
		srv.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		logger.Warn("generations still running at exit")
	}
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	zc := zap.NewDevelopmentConfig()
	if cfg.IsProduction() {
		zc = zap.NewProductionConfig()
	}
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zapcore.InfoLevel
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
