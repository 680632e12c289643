package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"

	"github.com/profect-team3/order-platform-msa-infer-pipeline/pkg/util"
)

// OrderCompletedTopic is the topic the ingestor subscribes to.
const OrderCompletedTopic = "dev.order.completed"

type Config struct {
	Environment string `yaml:"environment" default:"dev"`
	Logging     struct {
		Level     string `yaml:"level" default:"info"`
		Format    string `yaml:"format" default:"console"`
		Output    string `yaml:"output" default:"stdout"`
		Collector struct {
			Topic          string        `yaml:"topic"`
			Interval       time.Duration `yaml:"interval" default:"30s"`
			CountThreshold int           `yaml:"count_threshold" default:"100"`
		} `yaml:"collector"`
	} `yaml:"logging"`
	Server struct {
		Port            int           `yaml:"port" default:"9082"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"300s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
		SlowThreshold   time.Duration `yaml:"slow_threshold" default:"2s"`
		RateLimit       struct {
			RPS   float64 `yaml:"rps"`
			Burst int     `yaml:"burst" default:"20"`
		} `yaml:"rate_limit"`
	} `yaml:"server"`
	Metrics struct {
		Path string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Model struct {
		URI            string `yaml:"uri"`
		RegistryName   string `yaml:"registry_name"`
		RegistryStage  string `yaml:"registry_stage" default:"Production"`
		LocalPath      string `yaml:"local_path"`
		Bucket         string `yaml:"bucket"`
		BucketPath     string `yaml:"bucket_path"`
		WorkDir        string `yaml:"work_dir" default:"/tmp/model-cache"`
		Variant        string `yaml:"variant" default:"ChronosFineTuned[bolt_small]"`
		ReloadOnReady  bool   `yaml:"reload_on_ready"`
		StrictVersion  bool   `yaml:"strict_version"`
		RuntimeVersion string `yaml:"runtime_version" default:"1.2"`
	} `yaml:"model"`
	Registry struct {
		TrackingURI string        `yaml:"tracking_uri"`
		Timeout     time.Duration `yaml:"timeout" default:"60s"`
	} `yaml:"registry"`
	ObjectStore struct {
		Endpoint  string `yaml:"endpoint" default:"storage.googleapis.com"`
		AccessKey string `yaml:"access_key"`
		SecretKey string `yaml:"secret_key"`
		Insecure  bool   `yaml:"insecure"`
		Region    string `yaml:"region"`
	} `yaml:"object_store"`
	Forecast struct {
		Timeout  time.Duration `yaml:"timeout" default:"120s"`
		CacheTTL time.Duration `yaml:"cache_ttl" default:"10m"`
		Redis    struct {
			Enabled  bool   `yaml:"enabled"`
			Host     string `yaml:"host" default:"localhost"`
			Port     int    `yaml:"port" default:"6379"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
		} `yaml:"redis"`
	} `yaml:"forecast"`
	Kafka struct {
		Brokers     []string      `yaml:"brokers" default:"[\"localhost:9092\"]"`
		Topic       string        `yaml:"topic" default:"dev.order.completed"`
		Compression string        `yaml:"compression" default:"gzip"`
		Backoff     time.Duration `yaml:"backoff" default:"5s"`
		Consumer    struct {
			GroupID         string        `yaml:"group_id" default:"order-consumer-group-1"`
			AutoOffsetReset string        `yaml:"auto_offset_reset" default:"earliest"`
			MinBytes        int           `yaml:"min_bytes" default:"1"`
			MaxBytes        int           `yaml:"max_bytes" default:"10000000"`
			MaxWait         time.Duration `yaml:"max_wait" default:"1s"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	Ingestor struct {
		SavePath    string `yaml:"save_path" default:"/app/data/consumed_orders.csv"`
		MetricsPort int    `yaml:"metrics_port"`
	} `yaml:"ingestor"`
	ClickHouse struct {
		Enabled     bool          `yaml:"enabled"`
		Host        string        `yaml:"host" default:"localhost"`
		Port        int           `yaml:"port" default:"9000"`
		Database    string        `yaml:"database" default:"orders"`
		Table       string        `yaml:"table" default:"consumed_orders"`
		User        string        `yaml:"user" default:"default"`
		Password    string        `yaml:"password"`
		UseHTTP     bool          `yaml:"use_http"`
		DialTimeout time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout time.Duration `yaml:"read_timeout" default:"10s"`
	} `yaml:"clickhouse"`
}

// Load reads and parses a YAML configuration file. A missing file yields
// the defaults so that containers can be configured by environment alone.
func Load(path string) (*Config, error) {
	var c Config
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	c.applyEnv(os.Getenv)

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	str("LOG_LEVEL", &c.Logging.Level)
	str("MODEL_URI", &c.Model.URI)
	str("MLFLOW_MODEL_NAME", &c.Model.RegistryName)
	str("MLFLOW_MODEL_STAGE", &c.Model.RegistryStage)
	str("MODEL_PATH", &c.Model.LocalPath)
	str("MODEL_BUCKET", &c.Model.Bucket)
	str("MODEL_BUCKET_PATH", &c.Model.BucketPath)
	str("MODEL_WORK_DIR", &c.Model.WorkDir)
	str("MLFLOW_TRACKING_URI", &c.Registry.TrackingURI)
	str("S3_ENDPOINT", &c.ObjectStore.Endpoint)
	str("S3_ACCESS_KEY", &c.ObjectStore.AccessKey)
	str("S3_SECRET_KEY", &c.ObjectStore.SecretKey)
	str("SAVE_PATH", &c.Ingestor.SavePath)
	str("KAFKA_GROUP_ID", &c.Kafka.Consumer.GroupID)
	str("REDIS_HOST", &c.Forecast.Redis.Host)

	c.Model.ReloadOnReady = util.ParseBoolDefault(getenv("MODEL_RELOAD_ON_READY"), c.Model.ReloadOnReady)
	c.Server.Port = util.ParseIntDefault(getenv("PORT"), c.Server.Port)
	if brokers := util.SplitList(getenv("KAFKA_BROKER_URL")); len(brokers) > 0 {
		c.Kafka.Brokers = brokers
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty")
	}
	if c.Kafka.Topic != OrderCompletedTopic {
		return fmt.Errorf("kafka.topic must be %q, got %q", OrderCompletedTopic, c.Kafka.Topic)
	}
	if c.Kafka.Backoff <= 0 {
		return fmt.Errorf("kafka.backoff must be positive, got %s", c.Kafka.Backoff)
	}
	switch c.Kafka.Consumer.AutoOffsetReset {
	case "earliest", "latest":
	default:
		return fmt.Errorf("kafka.consumer.auto_offset_reset must be 'earliest' or 'latest', got '%s'", c.Kafka.Consumer.AutoOffsetReset)
	}
	if c.Ingestor.SavePath == "" {
		return fmt.Errorf("ingestor.save_path is required")
	}
	if c.Model.RegistryName != "" && c.Registry.TrackingURI == "" {
		return fmt.Errorf("registry.tracking_uri is required when model.registry_name is set")
	}
	return nil
}
