package server

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestAppStopsOnContextAndClosesInReverse(t *testing.T) {
	var order []string
	ctx, cancel := context.WithCancel(context.Background())

	started := make(chan struct{})
	a := New("test", nil,
		WithSignals(),
		WithRunner("loop", RunnerFunc(func(ctx context.Context) error {
			close(started)
			<-ctx.Done()
			return ctx.Err()
		})),
		WithCloser("first", func(context.Context) error { order = append(order, "first"); return nil }),
		WithCloser("second", func(context.Context) error { order = append(order, "second"); return nil }),
	)

	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	<-started
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("app did not stop")
	}
	if strings.Join(order, ",") != "second,first" {
		t.Fatalf("unexpected close order %v", order)
	}
}

func TestAppReturnsRunnerFailure(t *testing.T) {
	a := New("test", nil, WithSignals(),
		WithRunner("broken", RunnerFunc(func(context.Context) error { return errors.New("reader closed") })),
	)
	err := a.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "broken") {
		t.Fatalf("expected runner error, got %v", err)
	}
}

func TestAppStartupFailureAborts(t *testing.T) {
	ran := false
	a := New("test", nil, WithSignals(),
		WithStartup("load", func(context.Context) error { return errors.New("bad config") }),
		WithRunner("loop", RunnerFunc(func(context.Context) error { ran = true; return nil })),
	)
	if err := a.Run(context.Background()); err == nil {
		t.Fatalf("expected startup error")
	}
	if ran {
		t.Fatalf("runner must not start after failed startup")
	}
}
