package logstore

import (
	"context"
	"sync"
	"time"

	"github.com/identra/identra/pkg/logging"
)

// Sink persists a bulk of records.
type Sink[T any] interface {
	Store(ctx context.Context, bulk []T) error
}

// EmitterConfig bounds the debounce window. A bulk is flushed when it
// reaches MaxBulkSize or when MaxFrequency has elapsed since the last
// flush, whichever comes first.
type EmitterConfig struct {
	MaxFrequency time.Duration
	MaxBulkSize  int
}

func (c *EmitterConfig) applyDefaults() {
	if c.MaxFrequency == 0 {
		c.MaxFrequency = time.Second
	}
	if c.MaxBulkSize == 0 {
		c.MaxBulkSize = 100
	}
}

// Emitter buffers records and flushes them to its sink in bulks. Emit
// never blocks on the sink; a failed flush drops the bulk after logging,
// operational logs are not worth stalling the caller for.
type Emitter[T any] struct {
	sink   Sink[T]
	config EmitterConfig
	logger logging.Logger

	mu      sync.Mutex
	pending []T
	kick    chan struct{}

	cancel context.CancelFunc
	done   chan struct{}
}

func NewEmitter[T any](sink Sink[T], config EmitterConfig, logger logging.Logger) *Emitter[T] {
	config.applyDefaults()
	if logger == nil {
		logger = logging.NewNoopLogger()
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Emitter[T]{
		sink:   sink,
		config: config,
		logger: logger,
		kick:   make(chan struct{}, 1),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go e.run(ctx)
	return e
}

// Emit queues one record.
func (e *Emitter[T]) Emit(record T) {
	e.mu.Lock()
	e.pending = append(e.pending, record)
	full := len(e.pending) >= e.config.MaxBulkSize
	e.mu.Unlock()

	if full {
		select {
		case e.kick <- struct{}{}:
		default:
		}
	}
}

// Close flushes the remaining records and stops the background loop.
func (e *Emitter[T]) Close() {
	e.cancel()
	<-e.done
}

func (e *Emitter[T]) run(ctx context.Context) {
	defer close(e.done)

	ticker := time.NewTicker(e.config.MaxFrequency)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.flush(context.Background())
			return
		case <-e.kick:
			e.flush(ctx)
		case <-ticker.C:
			e.flush(ctx)
		}
	}
}

func (e *Emitter[T]) flush(ctx context.Context) {
	e.mu.Lock()
	bulk := e.pending
	e.pending = nil
	e.mu.Unlock()

	if len(bulk) == 0 {
		return
	}
	if err := e.sink.Store(ctx, bulk); err != nil {
		e.logger.Warn("dropping log bulk after failed store", "size", len(bulk), "error", err)
	}
}
