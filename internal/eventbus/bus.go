// Package eventbus provides in-memory, best-effort publish/subscribe on
// named groups. Delivery is at-most-once per currently connected
// subscriber; nothing is queued for absent subscribers and nothing is
// persisted.
package eventbus

import (
	"sync"
)

// Well-known group names. Per-endpoint and per-principal groups are
// derived with [EndpointGroup] and [PrincipalGroup].
const GlobalGroup = "notifications"

// EndpointGroup names the connection-status group for one endpoint.
func EndpointGroup(endpointID string) string {
	return "endpoint:" + endpointID
}

// PrincipalGroup names the personalized notice group for one principal.
func PrincipalGroup(principalID string) string {
	return "user:" + principalID
}

// Envelope is the typed message fanned out to subscribers.
type Envelope struct {
	Action string `json:"action"`
	Data   any    `json:"data,omitempty"`
}

// Bus fans envelopes out to group subscribers. The zero value is not
// usable; construct with [New].
type Bus struct {
	mu      sync.RWMutex
	groups  map[string]map[*Subscription]struct{}
	bufSize int
}

// Subscription is one membership in one group. Close it exactly from
// the owning connection's teardown path; Close is idempotent.
type Subscription struct {
	bus   *Bus
	group string
	ch    chan Envelope
	once  sync.Once
}

// C returns the receive channel. It is closed when the subscription is
// closed.
func (s *Subscription) C() <-chan Envelope {
	return s.ch
}

// Close removes the subscription from its group and closes the channel.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		if subs, ok := s.bus.groups[s.group]; ok {
			delete(subs, s)
			if len(subs) == 0 {
				delete(s.bus.groups, s.group)
			}
		}
		// Closed under the bus lock so Publish can never send on a
		// closed channel.
		close(s.ch)
		s.bus.mu.Unlock()
	})
}

// New creates a Bus whose subscriptions buffer up to bufSize envelopes.
func New(bufSize int) *Bus {
	if bufSize <= 0 {
		bufSize = 32
	}
	return &Bus{
		groups:  map[string]map[*Subscription]struct{}{},
		bufSize: bufSize,
	}
}

// Subscribe joins a group. The caller must Close the subscription on
// its teardown path.
func (b *Bus) Subscribe(group string) *Subscription {
	sub := &Subscription{
		bus:   b,
		group: group,
		ch:    make(chan Envelope, b.bufSize),
	}
	b.mu.Lock()
	subs, ok := b.groups[group]
	if !ok {
		subs = map[*Subscription]struct{}{}
		b.groups[group] = subs
	}
	subs[sub] = struct{}{}
	b.mu.Unlock()
	return sub
}

// Publish delivers the envelope to every current subscriber of the
// group. Slow subscribers with full buffers miss the envelope rather
// than block the publisher. Publishing to a group with no subscribers
// is a no-op.
func (b *Bus) Publish(group string, env Envelope) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.groups[group] {
		select {
		case sub.ch <- env:
		default:
		}
	}
}

// SubscriberCount reports the current membership of a group.
func (b *Bus) SubscriberCount(group string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.groups[group])
}
