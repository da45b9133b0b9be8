package store

import (
	"context"

	"github.com/identra/identra/pkg/domain"
)

// Reducer is the consuming side of FilterToReducer: events are appended in
// order and folded by Reduce. Write models implement it.
type Reducer interface {
	AppendEvents(events ...*domain.Event)
	Reduce() error
}

// EventStore is the append-only ordered log of domain events.
//
// Failure semantics: concurrency conflicts surface to the caller without
// retry; duplicate position/version races are retried internally with
// regenerated values and surface as storage errors after that.
type EventStore interface {
	// Push appends all commands atomically. Either every event persists
	// with contiguous positions or none does.
	Push(ctx context.Context, commands ...*domain.Command) ([]*domain.Event, error)

	// PushWithConcurrencyCheck behaves like Push but fails with a
	// concurrency conflict when the current version of the first command's
	// aggregate is not expectedVersion.
	PushWithConcurrencyCheck(ctx context.Context, expectedVersion uint64, commands ...*domain.Command) ([]*domain.Event, error)

	// Filter returns the events matching the query ordered by
	// (position, in_tx_order).
	Filter(ctx context.Context, query *SearchQueryBuilder) ([]*domain.Event, error)

	// FilterToReducer streams matching events into the reducer.
	FilterToReducer(ctx context.Context, query *SearchQueryBuilder, reducer Reducer) error

	// LatestPosition returns the position of the newest matching event.
	LatestPosition(ctx context.Context, query *SearchQueryBuilder) (domain.Position, error)

	// LatestEvent returns the newest matching event or a not-found error.
	LatestEvent(ctx context.Context, query *SearchQueryBuilder) (*domain.Event, error)

	// InstanceIDs returns the distinct instance IDs present in the store.
	InstanceIDs(ctx context.Context) ([]string, error)

	// Subscribe delivers best-effort notifications for newly pushed events
	// of the given aggregate types. Consumers must still poll; delivery is
	// not guaranteed.
	Subscribe(aggregateTypes ...domain.AggregateType) *Subscription

	Close() error
}
