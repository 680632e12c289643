package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"

	"github.com/profect-team3/order-platform-msa-infer-pipeline/pkg/logger"
	"github.com/profect-team3/order-platform-msa-infer-pipeline/pkg/retry"
)

// MessageHandler handles messages from a specific topic.
type MessageHandler interface {
	Topic() string
	Handle(context.Context, []byte) error
}

// MessageReader is the subset of *kafka.Reader the consumer needs.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Prober checks that the cluster is reachable before a reader is created.
type Prober interface {
	Probe(ctx context.Context) error
}

// ReaderFactory builds the reader once the cluster is reachable.
type ReaderFactory func(kafka.ReaderConfig) MessageReader

// Consumer reads one topic with a single reader and handles messages
// strictly one at a time: fetch, handle, commit. Offsets are committed after
// the handler returns, so a restart may redeliver the last messages
// (at-least-once).
type Consumer struct {
	cfg       *ConsumerConfig
	handler   MessageHandler
	hook      ConsumerHook
	prober    Prober
	newReader ReaderFactory
	reader    MessageReader
	log       *logger.Logger
	metrics   *consumerMetrics
}

// NewConsumer creates a consumer for handler.Topic().
func NewConsumer(handler MessageHandler, opts ...ConsumerOption) (*Consumer, error) {
	cfg := &ConsumerConfig{
		GroupID:         "default",
		AutoOffsetReset: "earliest",
		MinBytes:        1,
		MaxBytes:        10e6, // 10MB
		MaxWait:         time.Second,
		Retry:           retry.Fixed(5 * time.Second),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	if handler == nil {
		return nil, fmt.Errorf("handler is required")
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}

	return &Consumer{
		cfg:     cfg,
		handler: handler,
		hook:    NoopHook{},
		prober:  &dialProber{brokers: cfg.Brokers, dialer: &kafka.Dialer{Timeout: 10 * time.Second}},
		newReader: func(rc kafka.ReaderConfig) MessageReader {
			return kafka.NewReader(rc)
		},
		log:     cfg.Logger.With(logger.String("topic", handler.Topic())),
		metrics: newConsumerMetrics(cfg.Registerer),
	}, nil
}

// WithConsumerHook sets a hook implementation for lifecycle events.
func (c *Consumer) WithConsumerHook(h ConsumerHook) {
	if h != nil {
		c.hook = h
	}
}

// WithProber replaces the connectivity probe.
func (c *Consumer) WithProber(p Prober) {
	if p != nil {
		c.prober = p
	}
}

// WithReaderFactory replaces how the reader is built.
func (c *Consumer) WithReaderFactory(f ReaderFactory) {
	if f != nil {
		c.newReader = f
	}
}

func (c *Consumer) readerConfig() kafka.ReaderConfig {
	start := kafka.FirstOffset
	if c.cfg.AutoOffsetReset == "latest" {
		start = kafka.LastOffset
	}
	return kafka.ReaderConfig{
		Brokers:     c.cfg.Brokers,
		Topic:       c.handler.Topic(),
		GroupID:     c.cfg.GroupID,
		MinBytes:    c.cfg.MinBytes,
		MaxBytes:    c.cfg.MaxBytes,
		MaxWait:     c.cfg.MaxWait,
		StartOffset: start,
	}
}

// Connect blocks until the cluster answers, waiting the retry policy's
// interval after every failed attempt, then subscribes the reader.
func (c *Consumer) Connect(ctx context.Context) error {
	policy := c.cfg.Retry.WithOnRetry(func(attempt int, err error, wait time.Duration) {
		c.metrics.connectFailure()
		c.log.Warn("could not connect to kafka brokers, retrying",
			logger.Int("attempt", attempt),
			logger.Duration("retry_in_ms", wait),
			logger.Error(err),
		)
	})

	err := policy.Do(ctx, func(ctx context.Context, attempt int) error {
		c.log.Info("connecting to kafka", logger.Strings("brokers", c.cfg.Brokers), logger.Int("attempt", attempt))
		return c.prober.Probe(ctx)
	})
	if err != nil {
		return fmt.Errorf("kafka connect: %w", err)
	}

	c.reader = c.newReader(c.readerConfig())
	c.log.Info("subscribed to topic", logger.String("group_id", c.cfg.GroupID))
	return nil
}

// Run connects if needed and consumes until ctx is canceled or the reader
// is closed.
func (c *Consumer) Run(ctx context.Context) error {
	if c.reader == nil {
		if err := c.Connect(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}

	c.log.Info("starting to consume messages")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("kafka reader closed: %w", err)
			}
			c.log.Warn("fetch message failed", logger.Error(err))
			if serr := c.sleep(ctx); serr != nil {
				return nil
			}
			continue
		}
		c.process(ctx, msg)
	}
}

func (c *Consumer) sleep(ctx context.Context) error {
	s := c.cfg.Retry.Sleep
	if s == nil {
		s = retry.SleepContext
	}
	return s(ctx, c.cfg.Retry.Interval)
}

// process never propagates handler errors: a message that cannot be handled
// is logged and still committed.
func (c *Consumer) process(ctx context.Context, msg kafka.Message) {
	start := time.Now()
	err := c.handle(ctx, msg)
	result := "ok"
	if err != nil {
		result = "error"
		c.hook.OnError(ctx, msg.Topic, msg, msg.Value, err)
		c.log.Error("error handling message",
			logger.Int("partition", msg.Partition),
			logger.Int64("offset", msg.Offset),
			logger.Error(err),
		)
	}
	c.metrics.observe(result, time.Since(start))

	cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if cerr := c.reader.CommitMessages(cctx, msg); cerr != nil {
		c.log.Warn("commit failed",
			logger.Int("partition", msg.Partition),
			logger.Int64("offset", msg.Offset),
			logger.Error(cerr),
		)
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in message handler: %v", r)
		}
	}()

	hctx, hmsg, hdata, berr := c.hook.BeforeHandle(ctx, msg.Topic, msg, msg.Value)
	if berr != nil {
		return berr
	}
	err = c.handler.Handle(hctx, hdata)
	c.hook.AfterHandle(hctx, msg.Topic, hmsg, hdata, err)
	return err
}

// Close closes the reader.
func (c *Consumer) Close() error {
	if c.reader == nil {
		return nil
	}
	return c.reader.Close()
}

type dialProber struct {
	brokers []string
	dialer  *kafka.Dialer
}

// Probe succeeds as soon as one broker answers a metadata request.
func (p *dialProber) Probe(ctx context.Context) error {
	var last error
	for _, addr := range p.brokers {
		conn, err := p.dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			last = err
			continue
		}
		_, err = conn.Brokers()
		_ = conn.Close()
		if err != nil {
			last = err
			continue
		}
		return nil
	}
	return fmt.Errorf("no brokers available: %w", last)
}

type consumerMetrics struct {
	handled      *prometheus.CounterVec
	handleLat    prometheus.Histogram
	connectFails prometheus.Counter
}

func newConsumerMetrics(reg prometheus.Registerer) *consumerMetrics {
	if reg == nil {
		return nil
	}
	f := promauto.With(reg)
	return &consumerMetrics{
		handled: f.NewCounterVec(
			prometheus.CounterOpts{Name: "infer_kafka_consumer_messages_total", Help: "Messages handled by result"},
			[]string{"result"},
		),
		handleLat: f.NewHistogram(
			prometheus.HistogramOpts{Name: "infer_kafka_consumer_handle_seconds", Help: "Handling time per message"},
		),
		connectFails: f.NewCounter(
			prometheus.CounterOpts{Name: "infer_kafka_consumer_connect_failures_total", Help: "Failed broker connection attempts"},
		),
	}
}

func (m *consumerMetrics) observe(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.handled.WithLabelValues(result).Inc()
	m.handleLat.Observe(d.Seconds())
}

func (m *consumerMetrics) connectFailure() {
	if m == nil {
		return
	}
	m.connectFails.Inc()
}
