package main

import (
	"context"
	"errors"
	"log" // Use standard log only for initial fatal errors before logger is set up
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"paperTrader/config"
	"paperTrader/internal/adapters/logger"
	"paperTrader/internal/app"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	// 3. Wire storage, market data, ledger, analytics and alerts
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rt, err := app.Wire(cfg, appLogger, reg)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize portfolio runtime")
		log.Fatalf("FATAL: Failed to initialize portfolio runtime: %v", err)
	}
	defer func() {
		if err := rt.Close(); err != nil {
			appLogger.Error(context.Background(), err, "Error closing database repository")
		}
	}()

	// Handle graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 4. Check market data; quotes are fetched lazily, so an outage is not fatal
	if err := rt.Market.Ping(ctx); err != nil {
		appLogger.Warn(ctx, "Exchange unreachable at startup, valuations will fail until it recovers", map[string]interface{}{"error": err.Error()})
	} else {
		appLogger.Info(ctx, "Exchange reachable")
	}

	// 5. Make sure there is something to track
	ids, err := rt.Portfolios.ListPortfolioIDs(ctx)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to list portfolios")
		log.Fatalf("FATAL: Failed to list portfolios: %v", err)
	}
	if len(ids) == 0 {
		pf, err := rt.Service.OpenPortfolio(ctx, cfg.DefaultPortfolio, cfg.InitialBalance)
		if err != nil {
			appLogger.Error(ctx, err, "FATAL: Failed to open default portfolio")
			log.Fatalf("FATAL: Failed to open default portfolio: %v", err)
		}
		appLogger.Info(ctx, "Default portfolio opened", map[string]interface{}{"portfolioID": pf.ID, "name": pf.Name})
	} else {
		appLogger.Info(ctx, "Existing portfolios found", map[string]interface{}{"count": len(ids)})
	}

	// 6. Expose metrics
	if cfg.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				appLogger.Error(ctx, err, "Metrics server stopped")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		appLogger.Info(ctx, "Metrics endpoint listening", map[string]interface{}{"addr": cfg.MetricsAddr})
	}

	// 7. Start the Service
	if err := rt.Service.Start(ctx); err != nil {
		appLogger.Error(context.Background(), err, "Portfolio service exited with error")
		rt.Close()
		os.Exit(1)
	}

	appLogger.Info(context.Background(), "Application finished gracefully.")
}
