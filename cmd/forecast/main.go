package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/profect-team3/order-platform-msa-infer-pipeline/internal/di"
	"github.com/profect-team3/order-platform-msa-infer-pipeline/pkg/config"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	log.Printf("env=%s port=%d model_uri=%q registry=%q local=%q", cfg.Environment, cfg.Server.Port, cfg.Model.URI, cfg.Model.RegistryName, cfg.Model.LocalPath)

	app, err := di.InitializeForecastApp(cfg)
	if err != nil {
		log.Fatalf("app initialization failed: %v", err)
	}

	// Run application (blocks until signal)
	if err := app.Run(context.Background()); err != nil {
		log.Printf("app error: %v", err)
		os.Exit(1)
	}
}
