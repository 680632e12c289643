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

	log.Printf("env=%s brokers=%v topic=%s save_path=%s", cfg.Environment, cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Ingestor.SavePath)

	app, err := di.InitializeIngestorApp(cfg)
	if err != nil {
		log.Fatalf("app initialization failed: %v", err)
	}

	// Run application (blocks until signal)
	if err := app.Run(context.Background()); err != nil {
		log.Printf("app error: %v", err)
		os.Exit(1)
	}
}
