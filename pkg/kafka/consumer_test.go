package kafka

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/segmentio/kafka-go"

	"github.com/profect-team3/order-platform-msa-infer-pipeline/pkg/retry"
)

type flakyProber struct {
	failures int
	calls    int
}

func (p *flakyProber) Probe(context.Context) error {
	p.calls++
	if p.calls <= p.failures {
		return errors.New("no brokers available")
	}
	return nil
}

// fakeReader serves msgs in order, then cancels the run.
type fakeReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	committed []int64
	cancel    context.CancelFunc
	closed    bool
	fetchErr  error
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if r.fetchErr != nil {
		err := r.fetchErr
		r.fetchErr = nil
		r.mu.Unlock()
		return kafka.Message{}, err
	}
	if len(r.msgs) == 0 {
		r.mu.Unlock()
		r.cancel()
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	m := r.msgs[0]
	r.msgs = r.msgs[1:]
	r.mu.Unlock()
	return m, nil
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.closed = true
	return nil
}

type recordingHandler struct {
	seen  []string
	fail  map[string]bool
	metas []MessageMeta
}

func (h *recordingHandler) Topic() string { return "dev.order.completed" }

func (h *recordingHandler) Handle(ctx context.Context, b []byte) error {
	h.seen = append(h.seen, string(b))
	if m, ok := MessageMetaFrom(ctx); ok {
		h.metas = append(h.metas, m)
	}
	if h.fail[string(b)] {
		return errors.New("handler failed")
	}
	return nil
}

func newTestConsumer(t *testing.T, h MessageHandler, prober Prober, reader *fakeReader, waits *[]time.Duration) *Consumer {
	t.Helper()
	policy := retry.Fixed(5 * time.Second).WithSleeper(func(_ context.Context, d time.Duration) error {
		*waits = append(*waits, d)
		return nil
	})
	c, err := NewConsumer(h,
		WithConsumerBrokers([]string{"kafka:9092"}),
		WithConsumerGroupID("order-consumer-group-1"),
		WithConsumerRetry(policy),
		WithConsumerRegisterer(prometheus.NewRegistry()),
	)
	if err != nil {
		t.Fatalf("new consumer: %v", err)
	}
	c.WithProber(prober)
	c.WithReaderFactory(func(rc kafka.ReaderConfig) MessageReader {
		if rc.Topic != "dev.order.completed" || rc.GroupID != "order-consumer-group-1" {
			t.Errorf("unexpected reader config %+v", rc)
		}
		if rc.StartOffset != kafka.FirstOffset {
			t.Errorf("expected earliest start offset, got %d", rc.StartOffset)
		}
		return reader
	})
	return c
}

func TestConsumerRetriesConnectionThenConsumes(t *testing.T) {
	for _, n := range []int{0, 1, 4} {
		ctx, cancel := context.WithCancel(context.Background())
		reader := &fakeReader{
			msgs: []kafka.Message{
				{Topic: "dev.order.completed", Partition: 0, Offset: 10, Value: []byte("a")},
				{Topic: "dev.order.completed", Partition: 0, Offset: 11, Value: []byte("b")},
			},
			cancel: cancel,
		}
		prober := &flakyProber{failures: n}
		h := &recordingHandler{}
		var waits []time.Duration
		c := newTestConsumer(t, h, prober, reader, &waits)
		c.WithConsumerHook(NewHookChain(MetaHook()))

		if err := c.Run(ctx); err != nil {
			t.Fatalf("n=%d: run: %v", n, err)
		}
		cancel()

		if len(waits) != n {
			t.Fatalf("n=%d: expected %d backoff waits, got %d", n, n, len(waits))
		}
		if prober.calls != n+1 {
			t.Fatalf("n=%d: expected %d probes, got %d", n, n+1, prober.calls)
		}
		if len(h.seen) != 2 || h.seen[0] != "a" || h.seen[1] != "b" {
			t.Fatalf("n=%d: unexpected messages %v", n, h.seen)
		}
		if len(reader.committed) != 2 || reader.committed[1] != 11 {
			t.Fatalf("n=%d: unexpected commits %v", n, reader.committed)
		}
		if len(h.metas) != 2 || h.metas[0].Offset != 10 {
			t.Fatalf("n=%d: meta not propagated %+v", n, h.metas)
		}
	}
}

func TestConsumerCommitsAfterHandlerErrorAndKeepsGoing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reader := &fakeReader{
		msgs: []kafka.Message{
			{Offset: 1, Value: []byte("bad")},
			{Offset: 2, Value: []byte("good")},
		},
		cancel: cancel,
	}
	h := &recordingHandler{fail: map[string]bool{"bad": true}}
	var waits []time.Duration
	c := newTestConsumer(t, h, &flakyProber{}, reader, &waits)

	if err := c.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(h.seen) != 2 {
		t.Fatalf("expected both messages handled, got %v", h.seen)
	}
	if len(reader.committed) != 2 {
		t.Fatalf("expected both offsets committed, got %v", reader.committed)
	}
}

func TestConsumerReturnsWhenReaderClosed(t *testing.T) {
	reader := &fakeReader{fetchErr: io.EOF, cancel: func() {}}
	var waits []time.Duration
	c := newTestConsumer(t, &recordingHandler{}, &flakyProber{}, reader, &waits)

	err := c.Run(context.Background())
	if !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF, got %v", err)
	}
	if err := c.Close(); err != nil || !reader.closed {
		t.Fatalf("close: %v closed=%v", err, reader.closed)
	}
}

func TestConsumerRecoversHandlerPanic(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reader := &fakeReader{msgs: []kafka.Message{{Offset: 7, Value: []byte("x")}}, cancel: cancel}
	var waits []time.Duration
	c := newTestConsumer(t, panicHandler{}, &flakyProber{}, reader, &waits)

	var hookErr error
	c.WithConsumerHook(HookFuncs{Err: func(_ context.Context, _ string, _ kafka.Message, _ []byte, err error) {
		hookErr = err
	}})
	if err := c.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	if hookErr == nil {
		t.Fatalf("expected OnError to receive the recovered panic")
	}
	if len(reader.committed) != 1 {
		t.Fatalf("expected commit after panic, got %v", reader.committed)
	}
}

type panicHandler struct{}

func (panicHandler) Topic() string                         { return "dev.order.completed" }
func (panicHandler) Handle(context.Context, []byte) error { panic("boom") }
