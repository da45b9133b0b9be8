package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// AggregateType identifies the kind of aggregate an event belongs to.
type AggregateType string

// EventType is the dot-separated namespaced name of an event
// (e.g. "user.human.added").
type EventType string

const (
	AggregateTypeOrg      AggregateType = "org"
	AggregateTypeUser     AggregateType = "user"
	AggregateTypeInstance AggregateType = "instance"
)

// Position orders all events across all instances. Events committed in the
// same transaction share the same Global value and are disambiguated by
// InTxOrder.
type Position struct {
	Global    decimal.Decimal
	InTxOrder uint32
}

// After reports whether p was committed strictly after other.
func (p Position) After(other Position) bool {
	if c := p.Global.Cmp(other.Global); c != 0 {
		return c > 0
	}
	return p.InTxOrder > other.InTxOrder
}

// IsZero reports whether p is the zero position (before all events).
func (p Position) IsZero() bool {
	return p.Global.IsZero() && p.InTxOrder == 0
}

func (p Position) String() string {
	return fmt.Sprintf("%s.%d", p.Global.String(), p.InTxOrder)
}

// Event is an immutable fact persisted in the event store. Payload is a
// semi-structured JSON document conforming to the (Type, Revision) contract.
type Event struct {
	// InstanceID is the multi-tenant boundary. No cross-instance reads.
	InstanceID string

	AggregateType AggregateType
	AggregateID   string

	// AggregateVersion increases strictly by one per aggregate, starting at 1.
	AggregateVersion uint64

	Type     EventType
	Revision uint8

	Position Position

	// Creator is the user ID that caused the event, or "system".
	Creator string

	// Owner is the resource owner, usually an org ID. Instance-owned
	// aggregates carry the instance ID.
	Owner string

	CreatedAt time.Time

	Payload []byte
}

// Unmarshal decodes the event payload into v.
func (e *Event) Unmarshal(v any) error {
	if len(e.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("failed to unmarshal payload of %s: %w", e.Type, err)
	}
	return nil
}

// Sequence is an alias for the aggregate version, kept for readability at
// call sites that talk about write-model sequences.
func (e *Event) Sequence() uint64 {
	return e.AggregateVersion
}
