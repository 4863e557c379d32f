package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"paperTrader/config"
	"paperTrader/internal/adapters/binanceclient"
	"paperTrader/internal/adapters/logger"
	"paperTrader/internal/utils"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	symbol := flag.String("symbol", cfg.BenchmarkSymbol, "benchmark symbol")
	days := flag.Int("days", cfg.BenchmarkDays, "number of daily closes to fetch")
	outDir := flag.String("out", "data", "output directory")
	flag.Parse()

	// 2. Initialize Logger
	appLogger := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	// 3. Initialize Exchange Client (Binance Adapter)
	binanceClient, err := binanceclient.New(binanceclient.Config{
		APIKey:     cfg.APIKey,
		SecretKey:  cfg.SecretKey,
		UseTestnet: cfg.IsTestnet,
		Logger:     appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize Binance client")
		log.Fatalf("FATAL: Failed to initialize Binance client: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	fmt.Printf("Fetching %d daily closes for %s...\n", *days, *symbol)
	points, err := binanceClient.GetBenchmark(ctx, *symbol, *days)
	if err != nil {
		appLogger.Error(ctx, err, "Error fetching benchmark")
		log.Fatalf("Error fetching benchmark: %v", err)
	}
	if len(points) == 0 {
		log.Fatalf("No closes returned for %s", *symbol)
	}
	appLogger.Info(ctx, "Fetched benchmark", map[string]interface{}{"count": len(points)})

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		log.Fatalf("Error creating %s: %v", *outDir, err)
	}
	first, last := points[0].Time, points[len(points)-1].Time
	filename := filepath.Join(*outDir, fmt.Sprintf("%s_1d_%s_to_%s.csv", *symbol, first.Format("20060102"), last.Format("20060102")))
	if err := utils.WriteBenchmarkToCSV(points, filename); err != nil {
		appLogger.Error(ctx, err, "Error writing CSV")
		log.Fatalf("Error writing CSV: %v", err)
	}
	appLogger.Info(ctx, "Saved to", map[string]interface{}{"filename": filename})
}
