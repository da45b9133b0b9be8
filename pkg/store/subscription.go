package store

import (
	"sync"

	"github.com/identra/identra/pkg/domain"
)

// Subscription receives best-effort notifications of freshly pushed events.
// The channel is dropped-on-full: a slow consumer misses notifications but
// never blocks the pusher, and falls back to polling.
type Subscription struct {
	Events chan *domain.Event

	notifier       *Notifier
	aggregateTypes []domain.AggregateType
	once           sync.Once
}

// Unsubscribe removes the subscription and closes its channel.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.notifier.remove(s)
		close(s.Events)
	})
}

// Notifier fans pushed events out to in-process subscribers. Event store
// implementations call Notify after a successful commit.
type Notifier struct {
	mu   sync.RWMutex
	subs map[domain.AggregateType][]*Subscription
}

func NewNotifier() *Notifier {
	return &Notifier{subs: make(map[domain.AggregateType][]*Subscription)}
}

// Subscribe registers interest in the given aggregate types.
func (n *Notifier) Subscribe(aggregateTypes ...domain.AggregateType) *Subscription {
	sub := &Subscription{
		Events:         make(chan *domain.Event, 100),
		notifier:       n,
		aggregateTypes: aggregateTypes,
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, typ := range aggregateTypes {
		n.subs[typ] = append(n.subs[typ], sub)
	}
	return sub
}

// Notify delivers events to matching subscribers without blocking.
func (n *Notifier) Notify(events []*domain.Event) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	for _, event := range events {
		for _, sub := range n.subs[event.AggregateType] {
			select {
			case sub.Events <- event:
			default:
				// Subscriber is slow; it will catch up by polling.
			}
		}
	}
}

func (n *Notifier) remove(sub *Subscription) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, typ := range sub.aggregateTypes {
		subs := n.subs[typ]
		for i, s := range subs {
			if s == sub {
				n.subs[typ] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
	}
}
