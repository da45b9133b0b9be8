package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/identra/identra/pkg/logging"
)

// Runner starts services in registration order and stops them in reverse
// order on shutdown.
type Runner struct {
	services        []Service
	logger          logging.Logger
	startupTimeout  time.Duration
	shutdownTimeout time.Duration
}

type Option func(*Runner)

func WithLogger(logger logging.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

func WithStartupTimeout(timeout time.Duration) Option {
	return func(r *Runner) {
		r.startupTimeout = timeout
	}
}

func WithShutdownTimeout(timeout time.Duration) Option {
	return func(r *Runner) {
		r.shutdownTimeout = timeout
	}
}

func New(services []Service, opts ...Option) *Runner {
	r := &Runner{
		services:        services,
		logger:          logging.NewNoopLogger(),
		startupTimeout:  time.Minute,
		shutdownTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run starts all services, blocks until the context is cancelled or a
// termination signal arrives, then shuts down gracefully.
func (r *Runner) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	started, err := r.startAll(ctx)
	if err != nil {
		stopErr := r.stopAll(started)
		if stopErr != nil {
			r.logger.Error("shutdown after failed start reported errors", "error", stopErr)
		}
		return err
	}
	r.logger.Info("all services started", "count", len(started))

	<-ctx.Done()
	r.logger.Info("shutting down", "timeout", r.shutdownTimeout)
	return r.stopAll(started)
}

// HealthCheck probes every service that implements HealthChecker.
func (r *Runner) HealthCheck(ctx context.Context) error {
	for _, service := range r.services {
		hc, ok := service.(HealthChecker)
		if !ok {
			continue
		}
		if err := hc.HealthCheck(ctx); err != nil {
			return fmt.Errorf("service %s unhealthy: %w", service.Name(), err)
		}
	}
	return nil
}

func (r *Runner) startAll(ctx context.Context) ([]Service, error) {
	started := make([]Service, 0, len(r.services))
	for _, service := range r.services {
		r.logger.Info("starting service", "service", service.Name())

		startCtx, cancel := context.WithTimeout(ctx, r.startupTimeout)
		err := service.Start(startCtx)
		cancel()
		if err != nil {
			return started, fmt.Errorf("start service %s: %w", service.Name(), err)
		}
		started = append(started, service)
	}
	return started, nil
}

func (r *Runner) stopAll(started []Service) error {
	if len(started) == 0 {
		return nil
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), r.shutdownTimeout)
	defer cancel()

	// Reverse registration order, one service at a time: a service must
	// outlive everything started after it.
	var stopErrs []error
	for i := len(started) - 1; i >= 0; i-- {
		service := started[i]
		r.logger.Info("stopping service", "service", service.Name())
		if err := service.Stop(stopCtx); err != nil {
			stopErrs = append(stopErrs, fmt.Errorf("stop service %s: %w", service.Name(), err))
		}
	}
	if len(stopErrs) > 0 {
		return errors.Join(stopErrs...)
	}
	r.logger.Info("all services stopped")
	return nil
}
