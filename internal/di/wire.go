//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"github.com/profect-team3/order-platform-msa-infer-pipeline/pkg/config"
	"github.com/profect-team3/order-platform-msa-infer-pipeline/pkg/server"
)

// InitializeForecastApp wires the prediction service.
// Wire will generate the implementation of this function.
func InitializeForecastApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Observability
		ProvideLogger,
		ProvidePrometheusRegistry,
		ProvideMetrics,

		// Model sources
		ProvideRegistryClient,
		ProvideObjectStore,
		ProvideModelLoader,

		// Use cases
		ProvideForecastCache,
		ProvideForecastService,

		// Transport
		ProvideForecastHandler,
		ProvideForecastHTTPServer,
		ProvideForecastApp,
	)
	return &server.App{}, nil
}

// InitializeIngestorApp wires the order stream ingestor.
func InitializeIngestorApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Observability
		ProvidePrometheusRegistry,
		ProvideKafkaProducer,
		ProvideIngestorLogger,
		ProvideMetrics,

		// Storage
		ProvideClickHouseClient,
		ProvideOrderStore,

		// Consumer
		ProvideOrderIngestHandler,
		ProvideKafkaConsumer,
		ProvideIngestorApp,
	)
	return &server.App{}, nil
}
