package natsbus_test

import (
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/identra/identra/pkg/domain"
	"github.com/identra/identra/pkg/natsbus"
)

func newTestBus(t *testing.T) *natsbus.Bus {
	t.Helper()
	bus, srv, err := natsbus.NewEmbedded(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(srv.Shutdown)
	t.Cleanup(func() { _ = bus.Close() })
	return bus
}

func busEvent(aggregateType domain.AggregateType, eventType domain.EventType, global int64) *domain.Event {
	return &domain.Event{
		InstanceID:    "inst-1",
		AggregateType: aggregateType,
		AggregateID:   "agg-1",
		Type:          eventType,
		Position:      domain.Position{Global: decimal.NewFromInt(global), InTxOrder: 0},
	}
}

func TestBusRoundTrip(t *testing.T) {
	bus := newTestBus(t)

	var mu sync.Mutex
	var received []*domain.Event
	unsubscribe, err := bus.Subscribe("audit", "", func(event *domain.Event) error {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, event)
		return nil
	})
	require.NoError(t, err)
	defer unsubscribe()

	err = bus.Publish([]*domain.Event{
		busEvent(domain.AggregateTypeOrg, domain.OrgAddedType, 1),
		busEvent(domain.AggregateTypeUser, domain.HumanAddedType, 2),
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 2
	}, 5*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, domain.OrgAddedType, received[0].Type)
	require.Equal(t, "inst-1", received[0].InstanceID)
	require.Equal(t, domain.HumanAddedType, received[1].Type)
}

func TestSubscribeFiltersByAggregateType(t *testing.T) {
	bus := newTestBus(t)

	var mu sync.Mutex
	var received []*domain.Event
	unsubscribe, err := bus.Subscribe("user-sink", domain.AggregateTypeUser, func(event *domain.Event) error {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, event)
		return nil
	})
	require.NoError(t, err)
	defer unsubscribe()

	err = bus.Publish([]*domain.Event{
		busEvent(domain.AggregateTypeOrg, domain.OrgAddedType, 1),
		busEvent(domain.AggregateTypeUser, domain.HumanAddedType, 2),
		busEvent(domain.AggregateTypeUser, domain.UserRemovedType, 3),
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 2
	}, 5*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for _, event := range received {
		require.Equal(t, domain.AggregateTypeUser, event.AggregateType)
	}
}

func TestPublishDeduplicatesByPosition(t *testing.T) {
	bus := newTestBus(t)

	var mu sync.Mutex
	count := 0
	unsubscribe, err := bus.Subscribe("dedup-sink", "", func(event *domain.Event) error {
		mu.Lock()
		defer mu.Unlock()
		count++
		return nil
	})
	require.NoError(t, err)
	defer unsubscribe()

	batch := []*domain.Event{busEvent(domain.AggregateTypeOrg, domain.OrgAddedType, 7)}
	require.NoError(t, bus.Publish(batch))
	require.NoError(t, bus.Publish(batch))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count == 1
	}, 5*time.Second, 10*time.Millisecond)

	// The redelivery window is long enough that a duplicate would have
	// arrived by now.
	time.Sleep(100 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 1, count)
}

func TestPublisherSwallowsErrors(t *testing.T) {
	bus, srv, err := natsbus.NewEmbedded(t.TempDir())
	require.NoError(t, err)
	defer srv.Shutdown()

	publish := bus.Publisher()
	require.NoError(t, bus.Close())

	// Publishing after close fails inside the bus but must not panic or
	// surface to the event store hook.
	publish([]*domain.Event{busEvent(domain.AggregateTypeOrg, domain.OrgAddedType, 1)})
}
