package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/segmentio/kafka-go"
)

type fakeWriter struct {
	msgs []kafka.Message
	fail bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.fail {
		return errors.New("fail")
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func TestPublishMessageEncodesJSON(t *testing.T) {
	fw := &fakeWriter{}
	p := NewProducerWith(fw, "gzip", prometheus.NewRegistry())

	payload := []map[string]any{{"message": "append failed", "count": 2}}
	if err := p.PublishMessage(context.Background(), "ingestor.logs", payload); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(fw.msgs) != 1 || fw.msgs[0].Topic != "ingestor.logs" {
		t.Fatalf("unexpected messages %+v", fw.msgs)
	}
	var got []map[string]any
	if err := json.Unmarshal(fw.msgs[0].Value, &got); err != nil {
		t.Fatalf("value is not json: %v", err)
	}
	if got[0]["message"] != "append failed" {
		t.Fatalf("unexpected payload %v", got)
	}
}

func TestPublishPropagatesWriterError(t *testing.T) {
	p := NewProducerWith(&fakeWriter{fail: true}, "gzip", nil)
	if err := p.Publish(context.Background(), "t", nil, "raw"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestNewProducerRequiresBrokers(t *testing.T) {
	if _, err := NewProducer(); err == nil {
		t.Fatalf("expected error without brokers")
	}
}
