package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/page-bundler/internal/api"
	"github.com/JakeFAU/page-bundler/internal/bundle"
	"github.com/JakeFAU/page-bundler/internal/config"
	"github.com/JakeFAU/page-bundler/internal/logging"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfgPath := flag.String("config", "", "Path to config file")
	rawURL := flag.String("url", "", "Bundle a single URL and exit")
	mode := flag.String("mode", "", "Content mode for -url: clean or full")
	deliver := flag.Bool("deliver", false, "Forward the -url bundle to the webhook")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		return 1
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		return 1
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := wire(ctx, cfg, logger)
	if err != nil {
		logger.Error("wiring failed", zap.Error(err))
		return 1
	}
	defer app.Close()

	if *rawURL != "" {
		contentMode, err := bundle.ParseContentMode(*mode)
		if err != nil {
			logger.Error("invalid mode", zap.Error(err))
			return 2
		}
		if *mode == "" {
			contentMode = cfg.ContentMode()
		}
		if err := runOnce(ctx, app, *rawURL, contentMode, *deliver, os.Stdout); err != nil {
			logger.Error("bundle failed", zap.String("url", *rawURL), zap.Error(err))
			return 1
		}
		return 0
	}

	serve(ctx, stop, cfg, app, logger)
	return 0
}

// runOnce bundles rawURL, writes the result as JSON to out and optionally
// delivers it.
func runOnce(
	ctx context.Context,
	app *components,
	rawURL string,
	mode bundle.ContentMode,
	deliver bool,
	out io.Writer,
) error {
	result, err := app.pipeline.Run(ctx, rawURL, mode)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(result); err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	if !deliver {
		return nil
	}
	if app.deliverer == nil {
		return fmt.Errorf("webhook.url is required for -deliver")
	}
	b := result.Bundle
	report, err := app.deliverer.Deliver(ctx, &b)
	if err != nil {
		return fmt.Errorf("deliver: %w", err)
	}
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}

func serve(ctx context.Context, stop context.CancelFunc, cfg config.Config, app *components, logger *zap.Logger) {
	apiServer := api.NewServer(app.pipeline, app.store, api.Options{
		Deliverer:   app.deliverer,
		DefaultMode: cfg.ContentMode(),
		Checks:      app.checks,
	}, logging.Component(logger, "api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go app.sweep(ctx, logging.Component(logger, "store"))

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
