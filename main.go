package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/dmorgan81/bananaconsole/internal/config"
	"github.com/dmorgan81/bananaconsole/internal/inject"
	"github.com/dmorgan81/bananaconsole/internal/log"
	"github.com/dmorgan81/bananaconsole/internal/server"
	"github.com/joho/godotenv"
	"github.com/samber/do"
	"github.com/samber/lo"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.New(os.Stderr, log.ParseLevel("")).Error("loading config", "err", err)
		os.Exit(1)
	}

	logger := log.New(os.Stderr, log.ParseLevel(cfg.LogLevel))
	ctx := log.NewContext(context.Background(), logger)
	injector := inject.Setup(ctx, cfg)
	srv := do.MustInvoke[*server.Server](injector)

	if cfg.APIKey == "" && cfg.APIKeyParam == "" {
		logger.Warn("NANOBANANA_API_KEY is not set; generation requests will fail")
	}

	if cfg.Lambda {
		lambda.StartWithOptions(srv.HandleLambda, lambda.WithContext(ctx), lambda.WithEnableSIGTERM(func() {
			_ = injector.Shutdown()
		}))
		return
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv,
		ReadHeaderTimeout: 15 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("listening", "addr", cfg.Addr, "proxy", lo.Ternary(cfg.ProxyURL != "", cfg.ProxyURL, "in process"))
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("serving", "err", err)
		os.Exit(1)
	}
	_ = injector.Shutdown()
}
