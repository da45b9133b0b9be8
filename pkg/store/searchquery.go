package store

import (
	"time"

	"github.com/identra/identra/pkg/domain"
)

// Columns selects what a search returns.
type Columns int

const (
	ColumnsEvent Columns = iota
	ColumnsMaxPosition
)

// SearchQueryBuilder assembles the conjunction of filters supported by the
// event store. The zero value matches nothing; always start with
// NewSearchQueryBuilder.
type SearchQueryBuilder struct {
	columns        Columns
	instanceID     string
	aggregateTypes []domain.AggregateType
	aggregateIDs   []string
	eventTypes     []domain.EventType
	owner          string
	creator        string
	createdAfter   time.Time
	createdBefore  time.Time
	positionAfter  domain.Position
	limit          uint64
	desc           bool
}

// NewSearchQueryBuilder creates a builder over the given aggregate types.
// No aggregate types means all types.
func NewSearchQueryBuilder(aggregateTypes ...domain.AggregateType) *SearchQueryBuilder {
	return &SearchQueryBuilder{aggregateTypes: aggregateTypes}
}

func (b *SearchQueryBuilder) InstanceID(id string) *SearchQueryBuilder {
	b.instanceID = id
	return b
}

func (b *SearchQueryBuilder) AggregateIDs(ids ...string) *SearchQueryBuilder {
	b.aggregateIDs = ids
	return b
}

func (b *SearchQueryBuilder) EventTypes(types ...domain.EventType) *SearchQueryBuilder {
	b.eventTypes = types
	return b
}

func (b *SearchQueryBuilder) Owner(owner string) *SearchQueryBuilder {
	b.owner = owner
	return b
}

func (b *SearchQueryBuilder) Creator(creator string) *SearchQueryBuilder {
	b.creator = creator
	return b
}

func (b *SearchQueryBuilder) CreatedAfter(t time.Time) *SearchQueryBuilder {
	b.createdAfter = t
	return b
}

func (b *SearchQueryBuilder) CreatedBefore(t time.Time) *SearchQueryBuilder {
	b.createdBefore = t
	return b
}

// PositionAfter restricts to events committed strictly after the position.
func (b *SearchQueryBuilder) PositionAfter(p domain.Position) *SearchQueryBuilder {
	b.positionAfter = p
	return b
}

func (b *SearchQueryBuilder) Limit(limit uint64) *SearchQueryBuilder {
	b.limit = limit
	return b
}

// OrderDesc returns newest events first. Default is ascending.
func (b *SearchQueryBuilder) OrderDesc() *SearchQueryBuilder {
	b.desc = true
	return b
}

// Getters used by store implementations.

func (b *SearchQueryBuilder) GetInstanceID() string                     { return b.instanceID }
func (b *SearchQueryBuilder) GetAggregateTypes() []domain.AggregateType { return b.aggregateTypes }
func (b *SearchQueryBuilder) GetAggregateIDs() []string                 { return b.aggregateIDs }
func (b *SearchQueryBuilder) GetEventTypes() []domain.EventType         { return b.eventTypes }
func (b *SearchQueryBuilder) GetOwner() string                          { return b.owner }
func (b *SearchQueryBuilder) GetCreator() string                        { return b.creator }
func (b *SearchQueryBuilder) GetCreatedAfter() time.Time                { return b.createdAfter }
func (b *SearchQueryBuilder) GetCreatedBefore() time.Time               { return b.createdBefore }
func (b *SearchQueryBuilder) GetPositionAfter() domain.Position         { return b.positionAfter }
func (b *SearchQueryBuilder) GetLimit() uint64                          { return b.limit }
func (b *SearchQueryBuilder) GetDesc() bool                             { return b.desc }
