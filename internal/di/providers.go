package di

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/profect-team3/order-platform-msa-infer-pipeline/internal/domain/repository"
	"github.com/profect-team3/order-platform-msa-infer-pipeline/internal/handler/api"
	internalrepo "github.com/profect-team3/order-platform-msa-infer-pipeline/internal/repository"
	"github.com/profect-team3/order-platform-msa-infer-pipeline/internal/service/loader"
	"github.com/profect-team3/order-platform-msa-infer-pipeline/internal/service/modelsource"
	"github.com/profect-team3/order-platform-msa-infer-pipeline/internal/service/predictor"
	"github.com/profect-team3/order-platform-msa-infer-pipeline/internal/service/ratelimit"
	"github.com/profect-team3/order-platform-msa-infer-pipeline/internal/service/registry"
	"github.com/profect-team3/order-platform-msa-infer-pipeline/internal/usecase"
	"github.com/profect-team3/order-platform-msa-infer-pipeline/pkg/cache"
	pkgch "github.com/profect-team3/order-platform-msa-infer-pipeline/pkg/clickhouse"
	"github.com/profect-team3/order-platform-msa-infer-pipeline/pkg/config"
	xhttp "github.com/profect-team3/order-platform-msa-infer-pipeline/pkg/http"
	pkgkafka "github.com/profect-team3/order-platform-msa-infer-pipeline/pkg/kafka"
	"github.com/profect-team3/order-platform-msa-infer-pipeline/pkg/logger"
	"github.com/profect-team3/order-platform-msa-infer-pipeline/pkg/metrics"
	"github.com/profect-team3/order-platform-msa-infer-pipeline/pkg/objectstore"
	"github.com/profect-team3/order-platform-msa-infer-pipeline/pkg/retry"
	"github.com/profect-team3/order-platform-msa-infer-pipeline/pkg/server"
)

// ProvideLogger creates the process logger.
func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	l, err := logger.New(&logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l, nil
}

// ProvideIngestorLogger creates the logger and, when a producer is
// available, ships aggregated error logs to logging.collector.topic.
func ProvideIngestorLogger(cfg *config.Config, producer *pkgkafka.Producer) (*logger.Logger, error) {
	l, err := ProvideLogger(cfg)
	if err != nil {
		return nil, err
	}
	if producer != nil {
		l.AddCollector(&logger.CollectionConfig{
			TimeInterval:   cfg.Logging.Collector.Interval,
			CountThreshold: cfg.Logging.Collector.CountThreshold,
			Topic:          cfg.Logging.Collector.Topic,
			Publisher:      producer,
		})
	}
	return l, nil
}

// ProvidePrometheusRegistry creates a registry with the runtime collectors.
func ProvidePrometheusRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics(reg *prometheus.Registry) repository.Metrics {
	return metrics.New(reg)
}

// ProvideRegistryClient creates the model registry client, or nil when no
// tracking uri is configured.
func ProvideRegistryClient(cfg *config.Config, l *logger.Logger) (*registry.Client, error) {
	if cfg.Registry.TrackingURI == "" {
		return nil, nil
	}
	c, err := registry.NewClient(cfg.Registry.TrackingURI,
		registry.WithLogger(l),
		registry.WithTimeout(cfg.Registry.Timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("registry client: %w", err)
	}
	return c, nil
}

// ProvideObjectStore creates the bucket client, or nil when the model
// source does not resolve to a bucket. Explicit s3:// and gs:// URIs count.
func ProvideObjectStore(cfg *config.Config) (*objectstore.Client, error) {
	src, err := modelsource.Resolve(modelCandidates(cfg))
	if err != nil || src.Kind != modelsource.KindBucket {
		return nil, nil
	}
	c, err := objectstore.New(cfg.ObjectStore.Endpoint,
		objectstore.WithCredentials(cfg.ObjectStore.AccessKey, cfg.ObjectStore.SecretKey),
		objectstore.WithRegion(cfg.ObjectStore.Region),
		objectstore.WithSecure(!cfg.ObjectStore.Insecure),
	)
	if err != nil {
		return nil, fmt.Errorf("object store: %w", err)
	}
	return c, nil
}

func modelCandidates(cfg *config.Config) modelsource.Candidates {
	return modelsource.Candidates{
		URI:           cfg.Model.URI,
		RegistryName:  cfg.Model.RegistryName,
		RegistryStage: cfg.Model.RegistryStage,
		LocalPath:     cfg.Model.LocalPath,
		Bucket:        cfg.Model.Bucket,
		BucketPath:    cfg.Model.BucketPath,
	}
}

// ProvideModelLoader creates the loader. Missing clients leave the
// matching source kinds unavailable; the loader reports them as
// configuration errors.
func ProvideModelLoader(cfg *config.Config, l *logger.Logger, rc *registry.Client, oc *objectstore.Client) *loader.Loader {
	predictorClient := xhttp.NewClient(xhttp.WithTimeout(cfg.Forecast.Timeout))
	open := func(dir string) (predictor.Predictor, error) {
		return predictor.Open(dir,
			predictor.WithRuntimeVersion(cfg.Model.RuntimeVersion),
			predictor.WithStrictVersion(cfg.Model.StrictVersion),
			predictor.WithLogger(l),
			predictor.WithHTTPClient(predictorClient),
		)
	}

	opts := []loader.Option{
		loader.WithWorkDir(cfg.Model.WorkDir),
		loader.WithLogger(l),
	}
	if rc != nil {
		opts = append(opts, loader.WithRegistry(rc))
	}
	if oc != nil {
		opts = append(opts, loader.WithBucket(oc))
	}
	return loader.New(open, opts...)
}

// ProvideForecastCache creates the Redis cache when enabled, otherwise an
// in-process one.
func ProvideForecastCache(cfg *config.Config) (cache.Service, error) {
	if !cfg.Forecast.Redis.Enabled {
		return cache.NewMemoryCache(), nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := cache.NewRedisCache(ctx,
		cache.WithRedisHost(cfg.Forecast.Redis.Host),
		cache.WithRedisPort(cfg.Forecast.Redis.Port),
		cache.WithRedisPassword(cfg.Forecast.Redis.Password),
		cache.WithRedisDB(cfg.Forecast.Redis.DB),
		cache.WithRedisPrefix("infer"),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return c, nil
}

// ProvideForecastService creates the forecast usecase.
func ProvideForecastService(
	cfg *config.Config,
	ld *loader.Loader,
	c cache.Service,
	m repository.Metrics,
	l *logger.Logger,
) *usecase.ForecastService {
	return usecase.NewForecastService(usecase.ForecastConfig{
		Candidates:    modelCandidates(cfg),
		Variant:       cfg.Model.Variant,
		ReloadOnReady: cfg.Model.ReloadOnReady,
		Timeout:       cfg.Forecast.Timeout,
		CacheTTL:      cfg.Forecast.CacheTTL,
	}, ld,
		usecase.WithForecastCache(c),
		usecase.WithForecastMetrics(m),
		usecase.WithForecastLogger(l),
	)
}

// ProvideForecastHandler creates the echo handler.
// POST /predict is rate limited per client when server.rate_limit.rps is set.
func ProvideForecastHandler(cfg *config.Config, l *logger.Logger, svc *usecase.ForecastService) *api.ForecastEchoHandler {
	h := api.NewForecastEchoHandler(l, svc)
	if rl := cfg.Server.RateLimit; rl.RPS > 0 {
		h.UsePredict(ratelimit.Middleware(ratelimit.New(rl.RPS, rl.Burst)))
	}
	return h
}

// ProvideForecastHTTPServer creates the HTTP server on server.port.
func ProvideForecastHTTPServer(cfg *config.Config, l *logger.Logger, reg *prometheus.Registry, h *api.ForecastEchoHandler) *xhttp.Server {
	return xhttp.NewServer([]xhttp.Handler{h},
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithLogger(l),
		xhttp.WithMetrics(reg, reg, cfg.Metrics.Path, cfg.Server.SlowThreshold),
	)
}

// ProvideForecastApp loads the model before serving. Only configuration
// errors abort startup; any other load failure leaves /ready false.
func ProvideForecastApp(
	cfg *config.Config,
	l *logger.Logger,
	srv *xhttp.Server,
	svc *usecase.ForecastService,
	c cache.Service,
) *server.App {
	return server.New("forecast", l,
		server.WithStartup("model", func(ctx context.Context) error {
			if err := svc.Load(ctx); err != nil && loader.IsFatal(err) {
				return err
			}
			return nil
		}),
		server.WithHTTPServer(srv),
		server.WithCloser("cache", func(context.Context) error { return c.Close() }),
		server.WithShutdownTimeout(cfg.Server.ShutdownTimeout),
	)
}

// ProvideKafkaProducer creates the producer that carries aggregated error
// logs, or nil when logging.collector.topic is empty.
func ProvideKafkaProducer(cfg *config.Config, reg *prometheus.Registry) (*pkgkafka.Producer, error) {
	if cfg.Logging.Collector.Topic == "" {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithProducerRegisterer(reg),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideClickHouseClient creates the ClickHouse client for the order
// mirror, or nil when the mirror is disabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := pkgch.NewClient(ctx,
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	if err := client.InitSchema(ctx, internalrepo.OrderTableSchema(cfg.ClickHouse.Database, cfg.ClickHouse.Table)); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

// ProvideOrderStore creates the CSV store, mirrored to ClickHouse when a
// client is available.
func ProvideOrderStore(cfg *config.Config, l *logger.Logger, ch *pkgch.Client) (repository.OrderStore, error) {
	csvStore, err := internalrepo.NewCSVOrderStore(cfg.Ingestor.SavePath)
	if err != nil {
		return nil, fmt.Errorf("order store: %w", err)
	}
	if ch == nil {
		return csvStore, nil
	}
	mirror := internalrepo.NewClickHouseOrderStore(ch.DB(), cfg.ClickHouse.Database+"."+cfg.ClickHouse.Table)
	return internalrepo.NewMirrorOrderStore(csvStore, l, mirror), nil
}

// ProvideOrderIngestHandler creates the handler for the order topic.
func ProvideOrderIngestHandler(cfg *config.Config, store repository.OrderStore, m repository.Metrics, l *logger.Logger) *usecase.OrderIngestHandler {
	return usecase.NewOrderIngestHandler(config.OrderCompletedTopic, store, m, l)
}

// ProvideKafkaConsumer creates the consumer. Connection attempts are
// retried every kafka.backoff without limit.
func ProvideKafkaConsumer(cfg *config.Config, h *usecase.OrderIngestHandler, reg *prometheus.Registry, l *logger.Logger) (*pkgkafka.Consumer, error) {
	consumer, err := pkgkafka.NewConsumer(h,
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerAutoOffsetReset(cfg.Kafka.Consumer.AutoOffsetReset),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes, cfg.Kafka.Consumer.MaxWait),
		pkgkafka.WithConsumerRetry(retry.Fixed(cfg.Kafka.Backoff)),
		pkgkafka.WithConsumerRegisterer(reg),
		pkgkafka.WithConsumerLogger(l),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(pkgkafka.NewHookChain(pkgkafka.MetaHook()))
	return consumer, nil
}

// ProvideIngestorApp runs the consumer, plus a health and metrics server
// when ingestor.metrics_port is set.
func ProvideIngestorApp(
	cfg *config.Config,
	l *logger.Logger,
	reg *prometheus.Registry,
	consumer *pkgkafka.Consumer,
	store repository.OrderStore,
	producer *pkgkafka.Producer,
	ch *pkgch.Client,
) *server.App {
	opts := []server.Option{
		server.WithRunner("kafka-consumer", consumer),
		server.WithShutdownTimeout(cfg.Server.ShutdownTimeout),
	}
	if cfg.Ingestor.MetricsPort > 0 {
		srv := xhttp.NewServer([]xhttp.Handler{api.HealthHandler{}},
			xhttp.WithPort(cfg.Ingestor.MetricsPort),
			xhttp.WithLogger(l),
			xhttp.WithMetrics(reg, reg, cfg.Metrics.Path, cfg.Server.SlowThreshold),
		)
		opts = append(opts, server.WithHTTPServer(srv))
	}
	if producer != nil {
		opts = append(opts, server.WithCloser("kafka-producer", func(context.Context) error { return producer.Close() }))
		opts = append(opts, server.WithCloser("log-collector", func(context.Context) error {
			l.RemoveCollector()
			return nil
		}))
	}
	if ch != nil {
		opts = append(opts, server.WithCloser("clickhouse", func(context.Context) error { return ch.Close() }))
	}
	opts = append(opts,
		server.WithCloser("order-store", func(context.Context) error { return store.Close() }),
		server.WithCloser("kafka-consumer", func(context.Context) error { return consumer.Close() }),
	)
	return server.New("ingestor", l, opts...)
}
