package projection

import (
	"context"
	"database/sql"

	"github.com/identra/identra/pkg/domain"
)

// Reduce turns one event into the statement that updates the projection's
// tables. Returning a no-op statement still advances the cursor.
type Reduce func(event *domain.Event) (*Statement, error)

// AggregateReducer groups the reducers of one aggregate type. The scheduler
// subscribes to exactly these aggregate types and filters to exactly these
// event types.
type AggregateReducer struct {
	Aggregate domain.AggregateType
	Reducers  map[domain.EventType]Reduce
}

// Handler is one projection: a named set of tables fed by reducers.
//
// Handlers own their schema. Init must be idempotent; it runs on every
// start and again after a rebuild truncated the tables.
type Handler interface {
	// Name is the unique projection name used for the cursor row, lock
	// file and failed-event records.
	Name() string

	// Tables lists the tables the handler writes. Rebuild truncates them.
	Tables() []string

	// Requires names projections that must be registered alongside this
	// one and started first. Used for lookups into sibling tables.
	Requires() []string

	Init(ctx context.Context, db *sql.DB) error

	Reducers() []AggregateReducer
}

// eventTypes flattens the reducers into the filterable type list.
func eventTypes(h Handler) (aggregates []domain.AggregateType, types []domain.EventType) {
	for _, ar := range h.Reducers() {
		aggregates = append(aggregates, ar.Aggregate)
		for eventType := range ar.Reducers {
			types = append(types, eventType)
		}
	}
	return aggregates, types
}

// reduce dispatches one event to the matching reducer. Events without a
// reducer are skipped with a no-op.
func reduce(h Handler, event *domain.Event) (*Statement, error) {
	for _, ar := range h.Reducers() {
		if ar.Aggregate != event.AggregateType {
			continue
		}
		if fn, ok := ar.Reducers[event.Type]; ok {
			return fn(event)
		}
	}
	return NewNoOpStatement(), nil
}
