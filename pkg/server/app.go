package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	xhttp "github.com/profect-team3/order-platform-msa-infer-pipeline/pkg/http"
	"github.com/profect-team3/order-platform-msa-infer-pipeline/pkg/logger"
)

// Runner is a long-running background loop. Run returns when ctx is done.
type Runner interface {
	Run(ctx context.Context) error
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context) error

func (f RunnerFunc) Run(ctx context.Context) error { return f(ctx) }

type namedRunner struct {
	name string
	r    Runner
}

type namedHook struct {
	name string
	fn   func(ctx context.Context) error
}

// Option configures App.
type Option func(*App)

// App encapsulates the process lifecycle: startup hooks, an optional HTTP
// server, background runners and ordered shutdown.
type App struct {
	name            string
	log             *logger.Logger
	httpServer      *xhttp.Server
	startup         []namedHook
	runners         []namedRunner
	closers         []namedHook
	shutdownTimeout time.Duration
	signals         []os.Signal
}

// New creates an App.
func New(name string, l *logger.Logger, opts ...Option) *App {
	if l == nil {
		l = logger.NewNop()
	}
	a := &App{
		name:            name,
		log:             l,
		shutdownTimeout: 10 * time.Second,
		signals:         []os.Signal{os.Interrupt, syscall.SIGTERM},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// WithHTTPServer serves s for the lifetime of the app.
func WithHTTPServer(s *xhttp.Server) Option {
	return func(a *App) { a.httpServer = s }
}

// WithStartup runs fn before anything is served. An error aborts Run.
func WithStartup(name string, fn func(ctx context.Context) error) Option {
	return func(a *App) { a.startup = append(a.startup, namedHook{name: name, fn: fn}) }
}

// WithRunner runs r in the background until shutdown.
func WithRunner(name string, r Runner) Option {
	return func(a *App) { a.runners = append(a.runners, namedRunner{name: name, r: r}) }
}

// WithCloser registers fn to run at shutdown, in reverse registration order.
func WithCloser(name string, fn func(ctx context.Context) error) Option {
	return func(a *App) { a.closers = append(a.closers, namedHook{name: name, fn: fn}) }
}

// WithShutdownTimeout bounds the whole shutdown sequence.
func WithShutdownTimeout(d time.Duration) Option {
	return func(a *App) {
		if d > 0 {
			a.shutdownTimeout = d
		}
	}
}

// WithSignals replaces the termination signals. No signals means only ctx
// cancellation stops the app.
func WithSignals(sig ...os.Signal) Option {
	return func(a *App) { a.signals = sig }
}

// Run starts the application and blocks until a termination signal, ctx
// cancellation or a fatal component error.
func (a *App) Run(ctx context.Context) error {
	if len(a.signals) > 0 {
		var stop context.CancelFunc
		ctx, stop = signal.NotifyContext(ctx, a.signals...)
		defer stop()
	}
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	for _, h := range a.startup {
		if err := h.fn(runCtx); err != nil {
			a.shutdown()
			return fmt.Errorf("%s: %w", h.name, err)
		}
	}

	var httpErrs <-chan error
	if a.httpServer != nil {
		if err := a.httpServer.Start(); err != nil {
			a.shutdown()
			return err
		}
		httpErrs = a.httpServer.Errors()
	}

	runErrs := make(chan error, len(a.runners))
	var wg sync.WaitGroup
	for _, nr := range a.runners {
		wg.Add(1)
		go func(nr namedRunner) {
			defer wg.Done()
			a.log.Info("runner started", logger.String("runner", nr.name))
			if err := nr.r.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				runErrs <- fmt.Errorf("%s: %w", nr.name, err)
				return
			}
			a.log.Info("runner stopped", logger.String("runner", nr.name))
		}(nr)
	}
	a.log.Info("app started", logger.String("app", a.name))

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info("shutdown signal received", logger.String("app", a.name))
	case err := <-httpErrs:
		runErr = fmt.Errorf("http server: %w", err)
	case err := <-runErrs:
		runErr = err
	}
	if runErr != nil {
		a.log.Error("app stopping after failure", logger.Error(runErr))
	}

	cancel()
	wg.Wait()
	a.shutdown()
	return runErr
}

// shutdown stops the HTTP server then runs closers in reverse order, all
// within the shutdown timeout.
func (a *App) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
	defer cancel()

	if a.httpServer != nil {
		if err := a.httpServer.Stop(ctx); err != nil {
			a.log.Error("http shutdown error", logger.Error(err))
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(ctx); err != nil {
			a.log.Warn("close error", logger.String("component", c.name), logger.Error(err))
		}
	}
	a.log.Info("shutdown complete", logger.String("app", a.name))
}
