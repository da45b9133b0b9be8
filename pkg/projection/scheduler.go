package projection

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gofrs/flock"

	"github.com/identra/identra/pkg/domain"
	"github.com/identra/identra/pkg/errs"
	"github.com/identra/identra/pkg/logging"
	"github.com/identra/identra/pkg/store"
	"github.com/identra/identra/pkg/telemetry"
)

const (
	defaultBatchSize        = 200
	defaultPollInterval     = time.Second
	defaultMaxErrors        = 10
	defaultTransientRetries = 3
)

// Config wires the collaborators and tuning knobs of the scheduler.
type Config struct {
	DB          *sql.DB
	EventStore  store.EventStore
	States      store.ProjectionStateStore
	FailedStore store.FailedEventStore
	Logger      logging.Logger
	Metrics     *telemetry.Metrics

	// BatchSize bounds how many events one catch-up round reads.
	BatchSize uint64

	// PollInterval is the fallback cadence when no push notification
	// arrives. Notifications only shorten the wait, they are not relied on.
	PollInterval time.Duration

	// MaxErrors moves a projection to the error status once its
	// consecutive failure count reaches it.
	MaxErrors uint64

	// TransientRetries is how often a failing statement is retried with
	// backoff before the event goes to the failed-event record.
	TransientRetries uint64

	// SkipFailedEvents lets the worker advance past a dead-lettered event
	// instead of stalling on it. The default keeps the cursor in place: the
	// event is re-attempted every round until it succeeds or the error
	// budget halts the projection.
	SkipFailedEvents bool

	// EnableLocking takes a per-projection file lock in LockDir so two
	// processes never run the same projection concurrently.
	EnableLocking bool
	LockDir       string
}

// Scheduler drives registered projection handlers: it tails the event
// store, applies each event in its own transaction together with the
// cursor advance, and keeps the per-projection health records.
type Scheduler struct {
	db      *sql.DB
	es      store.EventStore
	states  store.ProjectionStateStore
	failed  store.FailedEventStore
	logger  logging.Logger
	metrics *telemetry.Metrics
	config  Config

	mu       sync.Mutex
	handlers map[string]Handler
	workers  map[string]*worker
}

type worker struct {
	cancel  context.CancelFunc
	done    chan struct{}
	trigger chan struct{}
	lock    *flock.Flock
}

func NewScheduler(config Config) *Scheduler {
	if config.BatchSize == 0 {
		config.BatchSize = defaultBatchSize
	}
	if config.PollInterval == 0 {
		config.PollInterval = defaultPollInterval
	}
	if config.MaxErrors == 0 {
		config.MaxErrors = defaultMaxErrors
	}
	if config.TransientRetries == 0 {
		config.TransientRetries = defaultTransientRetries
	}
	if config.Logger == nil {
		config.Logger = logging.NewNoopLogger()
	}
	return &Scheduler{
		db:       config.DB,
		es:       config.EventStore,
		states:   config.States,
		failed:   config.FailedStore,
		logger:   config.Logger,
		metrics:  config.Metrics,
		config:   config,
		handlers: map[string]Handler{},
		workers:  map[string]*worker{},
	}
}

// Register adds a handler. Registration must happen before StartAll.
func (s *Scheduler) Register(h Handler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.handlers[h.Name()]; exists {
		return errs.ThrowAlreadyExists(nil, "PROJ-Reg01", "projection already registered")
	}
	s.handlers[h.Name()] = h
	return nil
}

// StartAll starts every registered projection in dependency order.
func (s *Scheduler) StartAll(ctx context.Context) error {
	order, err := s.startOrder()
	if err != nil {
		return err
	}
	for _, name := range order {
		if err := s.Start(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

// startOrder topologically sorts handlers by their Requires edges.
func (s *Scheduler) startOrder() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	const (
		unvisited = iota
		visiting
		done
	)
	marks := map[string]int{}
	order := make([]string, 0, len(s.handlers))

	var visit func(name string) error
	visit = func(name string) error {
		switch marks[name] {
		case done:
			return nil
		case visiting:
			return errs.ThrowInternal(nil, "PROJ-Dep01", "projection dependency cycle")
		}
		h, ok := s.handlers[name]
		if !ok {
			return errs.ThrowNotFound(nil, "PROJ-Dep02", "required projection not registered")
		}
		marks[name] = visiting
		for _, dep := range h.Requires() {
			if err := visit(dep); err != nil {
				return err
			}
		}
		marks[name] = done
		order = append(order, name)
		return nil
	}

	for name := range s.handlers {
		if err := visit(name); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// Start brings one projection online: ensures its schema and cursor row,
// takes the process lock and spawns the worker.
func (s *Scheduler) Start(ctx context.Context, name string) error {
	s.mu.Lock()
	h, ok := s.handlers[name]
	if !ok {
		s.mu.Unlock()
		return errs.ThrowNotFound(nil, "PROJ-Start01", "projection not registered")
	}
	if _, running := s.workers[name]; running {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	if err := h.Init(ctx, s.db); err != nil {
		return fmt.Errorf("failed to init projection %s: %w", name, err)
	}
	if err := s.states.Ensure(ctx, name); err != nil {
		return err
	}

	var lock *flock.Flock
	if s.config.EnableLocking {
		lock = flock.New(filepath.Join(s.config.LockDir, name+".lock"))
		locked, err := lock.TryLock()
		if err != nil {
			return fmt.Errorf("failed to acquire projection lock %s: %w", name, err)
		}
		if !locked {
			return errs.ThrowPreconditionFailed(nil, "PROJ-Start02", "projection is locked by another process")
		}
	}

	if err := s.states.SetStatus(ctx, name, store.ProjectionStatusRunning); err != nil {
		if lock != nil {
			_ = lock.Unlock()
		}
		return err
	}

	workerCtx, cancel := context.WithCancel(context.Background())
	w := &worker{
		cancel:  cancel,
		done:    make(chan struct{}),
		trigger: make(chan struct{}, 1),
		lock:    lock,
	}

	s.mu.Lock()
	s.workers[name] = w
	s.mu.Unlock()

	go s.run(workerCtx, h, w)
	s.logger.Info("projection started", "projection", name)
	return nil
}

// Stop halts one projection and releases its lock. The cursor stays where
// it is; a later Start resumes from there.
func (s *Scheduler) Stop(name string) {
	s.mu.Lock()
	w, ok := s.workers[name]
	if ok {
		delete(s.workers, name)
	}
	s.mu.Unlock()
	if !ok {
		return
	}

	w.cancel()
	<-w.done
	if w.lock != nil {
		_ = w.lock.Unlock()
	}
	_ = s.states.SetStatus(context.Background(), name, store.ProjectionStatusStopped)
	s.logger.Info("projection stopped", "projection", name)
}

// StopAll halts every running projection.
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	names := make([]string, 0, len(s.workers))
	for name := range s.workers {
		names = append(names, name)
	}
	s.mu.Unlock()
	for _, name := range names {
		s.Stop(name)
	}
}

// Trigger wakes a projection's worker without waiting for the poll
// interval.
func (s *Scheduler) Trigger(name string) {
	s.mu.Lock()
	w, ok := s.workers[name]
	s.mu.Unlock()
	if !ok {
		return
	}
	select {
	case w.trigger <- struct{}{}:
	default:
	}
}

// State returns the cursor and health record of a projection.
func (s *Scheduler) State(ctx context.Context, name string) (*store.ProjectionState, error) {
	return s.states.Get(ctx, name)
}

// FailedEvents lists the dead-lettered events of a projection.
func (s *Scheduler) FailedEvents(ctx context.Context, name string) ([]*store.FailedEvent, error) {
	return s.failed.List(ctx, name)
}

// Rebuild truncates the projection's tables, resets its cursor to zero and
// replays the full log synchronously. A running worker is stopped first and
// started again once the replay is done; a stopped projection stays
// stopped. Replaying the same log yields the same tables: reducers are
// deterministic functions of the event.
func (s *Scheduler) Rebuild(ctx context.Context, name string) error {
	s.mu.Lock()
	h, ok := s.handlers[name]
	_, running := s.workers[name]
	s.mu.Unlock()
	if !ok {
		return errs.ThrowNotFound(nil, "PROJ-Rebuild01", "projection not registered")
	}
	if running {
		s.Stop(name)
	}

	if err := h.Init(ctx, s.db); err != nil {
		return fmt.Errorf("failed to init projection %s: %w", name, err)
	}
	if err := s.states.Ensure(ctx, name); err != nil {
		return err
	}
	if err := s.states.SetStatus(ctx, name, store.ProjectionStatusRebuilding); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin rebuild transaction: %w", err)
	}
	for _, table := range h.Tables() {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to truncate %s: %w", table, err)
		}
	}
	if err := s.states.Reset(ctx, tx, name); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit rebuild transaction: %w", err)
	}

	for {
		caughtUp, err := s.processBatch(ctx, h)
		if err != nil {
			return err
		}
		if caughtUp {
			break
		}
	}
	if err := s.states.SetStatus(ctx, name, store.ProjectionStatusStopped); err != nil {
		return err
	}
	if running {
		return s.Start(ctx, name)
	}
	return nil
}

// run is the worker loop: catch up, then wait for a notification, a manual
// trigger or the poll tick.
func (s *Scheduler) run(ctx context.Context, h Handler, w *worker) {
	defer close(w.done)

	aggregates, _ := eventTypes(h)
	sub := s.es.Subscribe(aggregates...)
	defer sub.Unsubscribe()

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	for {
		for {
			caughtUp, err := s.processBatch(ctx, h)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				if errs.IsPreconditionFailed(err) {
					// Error budget exhausted; the status row says why.
					s.logger.Error("projection halted", "projection", h.Name(), "error", err)
					return
				}
				s.logger.Error("projection batch failed", "projection", h.Name(), "error", err)
				break
			}
			if caughtUp {
				break
			}
		}

		s.recordLag(ctx, h)

		select {
		case <-ctx.Done():
			return
		case <-sub.Events:
			drain(sub.Events)
		case <-w.trigger:
		case <-ticker.C:
		}
	}
}

func drain(events <-chan *domain.Event) {
	for {
		select {
		case <-events:
		default:
			return
		}
	}
}

// processBatch applies up to BatchSize events past the cursor. It reports
// caught-up when the batch came back short.
func (s *Scheduler) processBatch(ctx context.Context, h Handler) (caughtUp bool, err error) {
	state, err := s.states.Get(ctx, h.Name())
	if err != nil {
		return false, err
	}

	aggregates, types := eventTypes(h)
	query := store.NewSearchQueryBuilder(aggregates...).
		EventTypes(types...).
		PositionAfter(state.Position).
		Limit(s.config.BatchSize)
	events, err := s.es.Filter(ctx, query)
	if err != nil {
		return false, err
	}

	for _, event := range events {
		if err := s.applyEvent(ctx, h, event); err != nil {
			return false, err
		}
	}
	return uint64(len(events)) < s.config.BatchSize, nil
}

// applyEvent runs the reducer's statement and the cursor advance in one
// transaction. Transient storage failures are retried with backoff. An
// event that keeps failing is dead-lettered and counted against the error
// budget; the cursor does not advance past it, so the event is re-attempted
// until it succeeds or the budget halts the projection. SkipFailedEvents
// trades that guarantee for liveness and advances the cursor anyway.
func (s *Scheduler) applyEvent(ctx context.Context, h Handler, event *domain.Event) error {
	stmt, reduceErr := reduce(h, event)
	var applyErr error
	if reduceErr != nil {
		applyErr = reduceErr
	} else {
		retry := backoff.WithMaxRetries(
			backoff.WithContext(backoff.NewExponentialBackOff(), ctx),
			s.config.TransientRetries,
		)
		applyErr = backoff.Retry(func() error {
			return s.applyInTx(ctx, h.Name(), event, stmt)
		}, retry)
	}
	if applyErr == nil {
		return nil
	}

	s.metrics.ProjectionError(ctx, h.Name())
	if err := s.failed.Record(ctx, &store.FailedEvent{
		ProjectionName: h.Name(),
		InstanceID:     event.InstanceID,
		AggregateID:    event.AggregateID,
		EventType:      event.Type,
		Position:       event.Position,
		Error:          applyErr.Error(),
		LastFailedAt:   time.Now(),
	}); err != nil {
		s.logger.Error("failed to record failed event", "projection", h.Name(), "error", err)
	}

	count, err := s.states.RecordError(ctx, h.Name(), applyErr.Error())
	if err != nil {
		return err
	}
	if count >= s.config.MaxErrors {
		if err := s.states.SetStatus(ctx, h.Name(), store.ProjectionStatusError); err != nil {
			return err
		}
		return errs.ThrowPreconditionFailed(applyErr, "PROJ-Apply01", "projection error budget exhausted")
	}

	if s.config.SkipFailedEvents {
		// Advance past the poisoned event without resetting the error
		// counter, so repeated skips still exhaust the budget.
		s.logger.Warn("skipping event after repeated failure",
			"projection", h.Name(), "event_type", event.Type, "position", event.Position.String(), "error", applyErr)
		return s.skipEvent(ctx, h.Name(), event)
	}

	// Leave the cursor on the failed event; the next round re-attempts it.
	return fmt.Errorf("failed to apply event at %s: %w", event.Position, applyErr)
}

func (s *Scheduler) skipEvent(ctx context.Context, name string, event *domain.Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin projection transaction: %w", err)
	}
	if err := s.states.SkipPositionInTx(ctx, tx, name, event.Position, time.Now()); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit projection transaction: %w", err)
	}
	return nil
}

func (s *Scheduler) applyInTx(ctx context.Context, name string, event *domain.Event, stmt *Statement) error {
	start := time.Now()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin projection transaction: %w", err)
	}
	if err := stmt.Execute(ctx, tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := s.states.SetPositionInTx(ctx, tx, name, event.Position, time.Now()); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit projection transaction: %w", err)
	}
	s.metrics.EventProjected(ctx, name, time.Since(start).Seconds())
	return nil
}

func (s *Scheduler) recordLag(ctx context.Context, h Handler) {
	if s.metrics == nil {
		return
	}
	head, err := s.es.LatestPosition(ctx, store.NewSearchQueryBuilder())
	if err != nil {
		return
	}
	state, err := s.states.Get(ctx, h.Name())
	if err != nil {
		return
	}
	lag, _ := head.Global.Sub(state.Position.Global).Float64()
	if lag < 0 {
		lag = 0
	}
	s.metrics.ProjectionLag(ctx, h.Name(), lag)
}
