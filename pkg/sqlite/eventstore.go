package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/identra/identra/pkg/domain"
	"github.com/identra/identra/pkg/errs"
	"github.com/identra/identra/pkg/sqlite/migrate"
	"github.com/identra/identra/pkg/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// pushAttempts is how often a push is retried with regenerated positions
// when a duplicate position or aggregate version slips past the version
// check (external writer on the same database).
const pushAttempts = 3

// EventStore is the SQLite-backed implementation of store.EventStore.
// It provides ACID guarantees for event persistence with no CGo dependencies.
type EventStore struct {
	db       *sql.DB
	notifier *store.Notifier
	clock    domain.Clock

	// publisher forwards committed events to an external bus (NATS).
	// Best effort; in-process subscribers are always notified.
	publisher func(events []*domain.Event)

	mu sync.Mutex // serializes writers; readers go through the pool
}

type eventStoreConfig struct {
	dsn          string
	maxOpenConns int
	maxIdleConns int
	walMode      bool
	autoMigrate  bool
	clock        domain.Clock
	publisher    func(events []*domain.Event)
}

func defaultEventStoreConfig() eventStoreConfig {
	return eventStoreConfig{
		dsn:          "identra.db",
		maxOpenConns: 25,
		maxIdleConns: 5,
		walMode:      true,
		autoMigrate:  true,
		clock:        domain.SystemClock(),
	}
}

// EventStoreOption is a function that configures an EventStore.
type EventStoreOption func(*eventStoreConfig)

// WithDSN sets the data source name (file path or ":memory:" for in-memory).
func WithDSN(dsn string) EventStoreOption {
	return func(c *eventStoreConfig) {
		c.dsn = dsn
	}
}

// WithMemoryDatabase sets the database to an in-memory database.
func WithMemoryDatabase() EventStoreOption {
	return func(c *eventStoreConfig) {
		c.dsn = ":memory:"
	}
}

// WithMaxOpenConns sets the maximum number of open connections to the database.
func WithMaxOpenConns(n int) EventStoreOption {
	return func(c *eventStoreConfig) {
		c.maxOpenConns = n
	}
}

// WithMaxIdleConns sets the maximum number of idle connections in the pool.
func WithMaxIdleConns(n int) EventStoreOption {
	return func(c *eventStoreConfig) {
		c.maxIdleConns = n
	}
}

// WithWALMode enables write-ahead logging for better concurrency.
// Recommended for production use but not available for :memory: databases.
func WithWALMode(enabled bool) EventStoreOption {
	return func(c *eventStoreConfig) {
		c.walMode = enabled
	}
}

// WithAutoMigrate enables automatic migration on startup.
func WithAutoMigrate(enabled bool) EventStoreOption {
	return func(c *eventStoreConfig) {
		c.autoMigrate = enabled
	}
}

// WithClock overrides the clock used for event creation dates.
func WithClock(clock domain.Clock) EventStoreOption {
	return func(c *eventStoreConfig) {
		c.clock = clock
	}
}

// WithPublisher forwards committed events to an external publisher.
func WithPublisher(publisher func(events []*domain.Event)) EventStoreOption {
	return func(c *eventStoreConfig) {
		c.publisher = publisher
	}
}

// NewEventStore creates a new SQLite event store with the given options.
//
// Example usage:
//
//	// In-memory database for testing
//	es, err := sqlite.NewEventStore(sqlite.WithMemoryDatabase())
//
//	// Custom configuration
//	es, err := sqlite.NewEventStore(
//	    sqlite.WithDSN("/var/lib/identra/identra.db"),
//	    sqlite.WithMaxOpenConns(50),
//	)
func NewEventStore(opts ...EventStoreOption) (*EventStore, error) {
	config := defaultEventStoreConfig()
	for _, opt := range opts {
		opt(&config)
	}

	db, err := sql.Open("sqlite", config.dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// For :memory: databases each connection gets its own isolated
	// database, so force a single connection.
	if config.dsn == ":memory:" {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxOpenConns(config.maxOpenConns)
		db.SetMaxIdleConns(config.maxIdleConns)
	}
	db.SetConnMaxLifetime(time.Hour)

	es := &EventStore{
		db:        db,
		notifier:  store.NewNotifier(),
		clock:     config.clock,
		publisher: config.publisher,
	}

	if config.walMode && config.dsn != ":memory:" {
		if err := es.setWALMode(); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set WAL mode: %w", err)
		}
	}

	if config.autoMigrate {
		if err := RunMigrations(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	return es, nil
}

// RunMigrations applies the event store schema to db.
func RunMigrations(db *sql.DB) error {
	m := migrate.New(db, "schema_migrations")
	if err := m.LoadFromFS(migrationsFS, "migrations"); err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}
	if err := m.Up(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

func (es *EventStore) setWALMode() error {
	_, err := es.db.Exec(`
		PRAGMA journal_mode = WAL;
		PRAGMA synchronous = NORMAL;
		PRAGMA foreign_keys = ON;
	`)
	return err
}

// DB returns the underlying database handle. Projections and the query
// layer share it so reads and cursor updates run on one pool.
func (es *EventStore) DB() *sql.DB {
	return es.db
}

// Push appends all commands atomically.
func (es *EventStore) Push(ctx context.Context, commands ...*domain.Command) ([]*domain.Event, error) {
	return es.push(ctx, nil, commands)
}

// PushWithConcurrencyCheck appends all commands atomically after verifying
// that the first command's aggregate is still at expectedVersion.
func (es *EventStore) PushWithConcurrencyCheck(ctx context.Context, expectedVersion uint64, commands ...*domain.Command) ([]*domain.Event, error) {
	return es.push(ctx, &expectedVersion, commands)
}

func (es *EventStore) push(ctx context.Context, expectedVersion *uint64, commands []*domain.Command) ([]*domain.Event, error) {
	if len(commands) == 0 {
		return nil, nil
	}

	es.mu.Lock()
	defer es.mu.Unlock()

	var events []*domain.Event
	var err error
	for attempt := 0; attempt < pushAttempts; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		events, err = es.pushTx(ctx, expectedVersion, commands)
		if err == nil {
			break
		}
		if !isUniqueViolation(err) || errs.IsAlreadyExists(err) || errs.IsConcurrencyConflict(err) {
			return nil, err
		}
		// Duplicate position or version from a concurrent writer;
		// regenerate and retry.
	}
	if err != nil {
		return nil, errs.ThrowStorage(err, "SQLITE-Push01", "failed to push events")
	}

	es.notifier.Notify(events)
	if es.publisher != nil {
		es.publisher(events)
	}
	return events, nil
}

func (es *EventStore) pushTx(ctx context.Context, expectedVersion *uint64, commands []*domain.Command) ([]*domain.Event, error) {
	tx, err := es.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errs.ThrowStorage(err, "SQLITE-Push02", "failed to begin transaction")
	}
	defer tx.Rollback()

	// Current version per aggregate.
	versions := make(map[string]uint64, len(commands))
	for _, command := range commands {
		key := aggregateKey(command)
		if _, ok := versions[key]; ok {
			continue
		}
		version, err := currentVersion(ctx, tx, command)
		if err != nil {
			return nil, err
		}
		versions[key] = version
	}

	if expectedVersion != nil {
		current := versions[aggregateKey(commands[0])]
		if current != *expectedVersion {
			return nil, errs.ThrowConcurrencyConflict(nil,
				"SQLITE-Conc01",
				fmt.Sprintf("aggregate version is %d, expected %d", current, *expectedVersion))
		}
	}

	// Claim and release unique constraints.
	for _, command := range commands {
		for _, constraint := range command.UniqueConstraints {
			if err := es.handleUniqueConstraint(ctx, tx, command.InstanceID, constraint); err != nil {
				return nil, err
			}
		}
	}

	// One global position per transaction; events count up in_tx_order.
	position, err := nextPosition(ctx, tx)
	if err != nil {
		return nil, err
	}

	now := es.clock.Now()
	events := make([]*domain.Event, len(commands))
	for i, command := range commands {
		key := aggregateKey(command)
		versions[key]++

		var payload []byte
		if command.Payload != nil {
			payload, err = json.Marshal(command.Payload)
			if err != nil {
				return nil, errs.ThrowInternal(err, "SQLITE-Push03", "failed to marshal payload")
			}
		}

		event := &domain.Event{
			InstanceID:       command.InstanceID,
			AggregateType:    command.AggregateType,
			AggregateID:      command.AggregateID,
			AggregateVersion: versions[key],
			Type:             command.Type,
			Revision:         command.Revision,
			Position: domain.Position{
				Global:    decimal.NewFromInt(position),
				InTxOrder: uint32(i),
			},
			Creator:   command.Creator,
			Owner:     command.Owner,
			CreatedAt: now,
			Payload:   payload,
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO events (
				instance_id, aggregate_type, aggregate_id, aggregate_version,
				event_type, revision, global_position, in_tx_order,
				creator, owner, created_at, payload
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			event.InstanceID, string(event.AggregateType), event.AggregateID, event.AggregateVersion,
			string(event.Type), event.Revision, position, event.Position.InTxOrder,
			event.Creator, event.Owner, now.UnixMicro(), nullableText(payload),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to insert event: %w", err)
		}
		events[i] = event
	}

	if err := tx.Commit(); err != nil {
		return nil, errs.ThrowStorage(err, "SQLITE-Push04", "failed to commit events")
	}
	return events, nil
}

func (es *EventStore) handleUniqueConstraint(ctx context.Context, tx *sql.Tx, instanceID string, constraint *domain.UniqueConstraint) error {
	switch constraint.Action {
	case domain.ConstraintAdd:
		var exists bool
		err := tx.QueryRowContext(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM unique_constraints
				WHERE instance_id = ? AND unique_type = ? AND unique_value = ?
			)`,
			instanceID, constraint.UniqueType, constraint.UniqueValue,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check unique constraint: %w", err)
		}
		if exists {
			code := constraint.ErrorCode
			if code == "" {
				code = "SQLITE-Uniq01"
			}
			return errs.ThrowAlreadyExists(nil, code,
				fmt.Sprintf("%s already taken", constraint.UniqueType))
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO unique_constraints (instance_id, unique_type, unique_value)
			VALUES (?, ?, ?)`,
			instanceID, constraint.UniqueType, constraint.UniqueValue,
		); err != nil {
			return fmt.Errorf("failed to claim unique constraint: %w", err)
		}
	case domain.ConstraintRemove:
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM unique_constraints
			WHERE instance_id = ? AND unique_type = ? AND unique_value = ?`,
			instanceID, constraint.UniqueType, constraint.UniqueValue,
		); err != nil {
			return fmt.Errorf("failed to release unique constraint: %w", err)
		}
	}
	return nil
}

func currentVersion(ctx context.Context, tx *sql.Tx, command *domain.Command) (uint64, error) {
	var version uint64
	err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(aggregate_version), 0) FROM events
		WHERE instance_id = ? AND aggregate_type = ? AND aggregate_id = ?`,
		command.InstanceID, string(command.AggregateType), command.AggregateID,
	).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to read current version: %w", err)
	}
	return version, nil
}

func nextPosition(ctx context.Context, tx *sql.Tx) (int64, error) {
	if _, err := tx.ExecContext(ctx, `UPDATE positions SET current = current + 1 WHERE id = 1`); err != nil {
		return 0, fmt.Errorf("failed to advance position: %w", err)
	}
	var position int64
	if err := tx.QueryRowContext(ctx, `SELECT current FROM positions WHERE id = 1`).Scan(&position); err != nil {
		return 0, fmt.Errorf("failed to read position: %w", err)
	}
	return position, nil
}

func aggregateKey(command *domain.Command) string {
	return command.InstanceID + "|" + string(command.AggregateType) + "|" + command.AggregateID
}

func nullableText(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// Filter returns the events matching the query ordered by position.
func (es *EventStore) Filter(ctx context.Context, query *store.SearchQueryBuilder) ([]*domain.Event, error) {
	where, args := buildWhere(query)

	order := "ORDER BY global_position ASC, in_tx_order ASC"
	if query.GetDesc() {
		order = "ORDER BY global_position DESC, in_tx_order DESC"
	}
	limit := ""
	if query.GetLimit() > 0 {
		limit = fmt.Sprintf("LIMIT %d", query.GetLimit())
	}

	rows, err := es.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT instance_id, aggregate_type, aggregate_id, aggregate_version,
			event_type, revision, global_position, in_tx_order,
			creator, owner, created_at, payload
		FROM events %s %s %s`, where, order, limit), args...)
	if err != nil {
		return nil, errs.ThrowStorage(err, "SQLITE-Filt01", "failed to query events")
	}
	defer rows.Close()

	var events []*domain.Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.ThrowStorage(err, "SQLITE-Filt02", "failed to iterate events")
	}
	return events, nil
}

// FilterToReducer folds all matching events into the reducer in order.
func (es *EventStore) FilterToReducer(ctx context.Context, query *store.SearchQueryBuilder, reducer store.Reducer) error {
	events, err := es.Filter(ctx, query)
	if err != nil {
		return err
	}
	reducer.AppendEvents(events...)
	return reducer.Reduce()
}

// LatestPosition returns the position of the newest matching event, or the
// zero position if nothing matches.
func (es *EventStore) LatestPosition(ctx context.Context, query *store.SearchQueryBuilder) (domain.Position, error) {
	where, args := buildWhere(query)

	var global sql.NullInt64
	var inTxOrder sql.NullInt64
	err := es.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT global_position, in_tx_order FROM events %s
		ORDER BY global_position DESC, in_tx_order DESC LIMIT 1`, where), args...,
	).Scan(&global, &inTxOrder)
	if err == sql.ErrNoRows {
		return domain.Position{}, nil
	}
	if err != nil {
		return domain.Position{}, errs.ThrowStorage(err, "SQLITE-Latp01", "failed to query latest position")
	}
	return domain.Position{
		Global:    decimal.NewFromInt(global.Int64),
		InTxOrder: uint32(inTxOrder.Int64),
	}, nil
}

// LatestEvent returns the newest matching event.
func (es *EventStore) LatestEvent(ctx context.Context, query *store.SearchQueryBuilder) (*domain.Event, error) {
	where, args := buildWhere(query)

	row := es.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT instance_id, aggregate_type, aggregate_id, aggregate_version,
			event_type, revision, global_position, in_tx_order,
			creator, owner, created_at, payload
		FROM events %s
		ORDER BY global_position DESC, in_tx_order DESC LIMIT 1`, where), args...)

	event, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, errs.ThrowNotFound(nil, "SQLITE-Late01", "no matching event")
	}
	if err != nil {
		return nil, err
	}
	return event, nil
}

// InstanceIDs returns the distinct instance IDs present in the store.
func (es *EventStore) InstanceIDs(ctx context.Context) ([]string, error) {
	rows, err := es.db.QueryContext(ctx, `SELECT DISTINCT instance_id FROM events ORDER BY instance_id`)
	if err != nil {
		return nil, errs.ThrowStorage(err, "SQLITE-Inst01", "failed to query instance ids")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errs.ThrowStorage(err, "SQLITE-Inst02", "failed to scan instance id")
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Subscribe delivers best-effort notifications for newly pushed events.
func (es *EventStore) Subscribe(aggregateTypes ...domain.AggregateType) *store.Subscription {
	return es.notifier.Subscribe(aggregateTypes...)
}

// Close closes the event store and releases resources.
func (es *EventStore) Close() error {
	return es.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*domain.Event, error) {
	var (
		event         domain.Event
		aggregateType string
		eventType     string
		global        int64
		inTxOrder     int64
		createdAt     int64
		payload       sql.NullString
	)
	err := row.Scan(
		&event.InstanceID, &aggregateType, &event.AggregateID, &event.AggregateVersion,
		&eventType, &event.Revision, &global, &inTxOrder,
		&event.Creator, &event.Owner, &createdAt, &payload,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, errs.ThrowStorage(err, "SQLITE-Scan01", "failed to scan event")
	}
	event.AggregateType = domain.AggregateType(aggregateType)
	event.Type = domain.EventType(eventType)
	event.Position = domain.Position{
		Global:    decimal.NewFromInt(global),
		InTxOrder: uint32(inTxOrder),
	}
	event.CreatedAt = time.UnixMicro(createdAt)
	if payload.Valid {
		event.Payload = []byte(payload.String)
	}
	return &event, nil
}

func buildWhere(query *store.SearchQueryBuilder) (string, []any) {
	var conditions []string
	var args []any

	if id := query.GetInstanceID(); id != "" {
		conditions = append(conditions, "instance_id = ?")
		args = append(args, id)
	}
	if types := query.GetAggregateTypes(); len(types) > 0 {
		placeholders := make([]string, len(types))
		for i, typ := range types {
			placeholders[i] = "?"
			args = append(args, string(typ))
		}
		conditions = append(conditions, fmt.Sprintf("aggregate_type IN (%s)", strings.Join(placeholders, ", ")))
	}
	if ids := query.GetAggregateIDs(); len(ids) > 0 {
		placeholders := make([]string, len(ids))
		for i, aggID := range ids {
			placeholders[i] = "?"
			args = append(args, aggID)
		}
		conditions = append(conditions, fmt.Sprintf("aggregate_id IN (%s)", strings.Join(placeholders, ", ")))
	}
	if types := query.GetEventTypes(); len(types) > 0 {
		placeholders := make([]string, len(types))
		for i, typ := range types {
			placeholders[i] = "?"
			args = append(args, string(typ))
		}
		conditions = append(conditions, fmt.Sprintf("event_type IN (%s)", strings.Join(placeholders, ", ")))
	}
	if owner := query.GetOwner(); owner != "" {
		conditions = append(conditions, "owner = ?")
		args = append(args, owner)
	}
	if creator := query.GetCreator(); creator != "" {
		conditions = append(conditions, "creator = ?")
		args = append(args, creator)
	}
	if after := query.GetCreatedAfter(); !after.IsZero() {
		conditions = append(conditions, "created_at > ?")
		args = append(args, after.UnixMicro())
	}
	if before := query.GetCreatedBefore(); !before.IsZero() {
		conditions = append(conditions, "created_at < ?")
		args = append(args, before.UnixMicro())
	}
	if position := query.GetPositionAfter(); !position.IsZero() {
		conditions = append(conditions, "(global_position > ? OR (global_position = ? AND in_tx_order > ?))")
		global := position.Global.IntPart()
		args = append(args, global, global, position.InTxOrder)
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(conditions, " AND "), args
}
