package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Kafka.Topic != OrderCompletedTopic {
		t.Fatalf("unexpected topic %q", c.Kafka.Topic)
	}
	if c.Kafka.Backoff != 5*time.Second {
		t.Fatalf("unexpected backoff %s", c.Kafka.Backoff)
	}
	if c.Kafka.Consumer.GroupID != "order-consumer-group-1" {
		t.Fatalf("unexpected group %q", c.Kafka.Consumer.GroupID)
	}
	if len(c.Kafka.Brokers) != 1 || c.Kafka.Brokers[0] != "localhost:9092" {
		t.Fatalf("unexpected brokers %v", c.Kafka.Brokers)
	}
	if c.Ingestor.SavePath != "/app/data/consumed_orders.csv" {
		t.Fatalf("unexpected save path %q", c.Ingestor.SavePath)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestLoadYAMLKeepsExplicitValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := []byte("server:\n  port: 8000\nmodel:\n  local_path: /models/ag\nkafka:\n  backoff: 2s\n")
	if err := os.WriteFile(path, body, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Server.Port != 8000 {
		t.Fatalf("port = %d", c.Server.Port)
	}
	if c.Model.LocalPath != "/models/ag" {
		t.Fatalf("local path = %q", c.Model.LocalPath)
	}
	if c.Kafka.Backoff != 2*time.Second {
		t.Fatalf("backoff = %s", c.Kafka.Backoff)
	}
	if c.Model.RegistryStage != "Production" {
		t.Fatalf("stage default not applied: %q", c.Model.RegistryStage)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	env := map[string]string{
		"MODEL_URI":             "runs:/abc/model",
		"MLFLOW_MODEL_NAME":     "order-forecast",
		"MLFLOW_TRACKING_URI":   "http://mlflow:5000",
		"KAFKA_BROKER_URL":      "k1:9092, k2:9092",
		"MODEL_RELOAD_ON_READY": "true",
		"PORT":                  "9090",
		"SAVE_PATH":             "/data/out.csv",
	}
	c.applyEnv(func(k string) string { return env[k] })

	if c.Model.URI != "runs:/abc/model" || c.Model.RegistryName != "order-forecast" {
		t.Fatalf("model env not applied: %+v", c.Model)
	}
	if len(c.Kafka.Brokers) != 2 || c.Kafka.Brokers[1] != "k2:9092" {
		t.Fatalf("brokers = %v", c.Kafka.Brokers)
	}
	if !c.Model.ReloadOnReady {
		t.Fatalf("reload_on_ready not applied")
	}
	if c.Server.Port != 9090 {
		t.Fatalf("port = %d", c.Server.Port)
	}
	if c.Ingestor.SavePath != "/data/out.csv" {
		t.Fatalf("save path = %q", c.Ingestor.SavePath)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestValidateRegistryNeedsTrackingURI(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	c.Model.RegistryName = "order-forecast"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error without tracking uri")
	}
}

func TestValidateRejectsOtherTopic(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	c.Kafka.Topic = "dev.order.created"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for topic %q", c.Kafka.Topic)
	}
}
