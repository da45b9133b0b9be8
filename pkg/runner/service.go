// Package runner manages the lifecycle of the long-running parts of the
// server: the projection scheduler, the event bus and the API front end.
package runner

import "context"

// Service is one managed component. Start blocks until the service is
// ready; Stop completes within the context deadline.
type Service interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// HealthChecker is optionally implemented by services that can report
// their own health.
type HealthChecker interface {
	Service
	HealthCheck(ctx context.Context) error
}

// ServiceFunc builds a Service from three closures. Nil closures are
// no-ops.
type ServiceFunc struct {
	ServiceName string
	OnStart     func(ctx context.Context) error
	OnStop      func(ctx context.Context) error
}

func (s ServiceFunc) Name() string { return s.ServiceName }

func (s ServiceFunc) Start(ctx context.Context) error {
	if s.OnStart == nil {
		return nil
	}
	return s.OnStart(ctx)
}

func (s ServiceFunc) Stop(ctx context.Context) error {
	if s.OnStop == nil {
		return nil
	}
	return s.OnStop(ctx)
}
