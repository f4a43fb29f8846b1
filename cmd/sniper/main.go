package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/curvewatch/solana-sniper/internal/app"
	"github.com/curvewatch/solana-sniper/internal/config"
	"github.com/curvewatch/solana-sniper/internal/logger"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(&logger.Config{
		LogFile:     cfg.Log.File,
		Development: cfg.Log.Development,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync(log)

	log.Info("Starting sniper", zap.String("config", *configPath))

	runner, err := app.NewRunner(cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize", zap.Error(err))
	}

	if err := runner.Run(context.Background()); err != nil {
		log.Fatal("Runner exited with error", zap.Error(err))
	}
}
