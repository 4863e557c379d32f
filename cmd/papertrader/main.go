package main

import (
	"log"
	"os"

	"paperTrader/config"
	"paperTrader/internal/adapters/logger"
	"paperTrader/internal/app"
	"paperTrader/internal/cli"
)

func main() {
	newRuntime := func() (*app.Runtime, error) {
		cfg, err := config.LoadConfig()
		if err != nil {
			return nil, err
		}
		appLogger := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})
		return app.Wire(cfg, appLogger, nil)
	}

	if err := cli.NewRootCommand(newRuntime).Execute(); err != nil {
		log.SetFlags(0)
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}
