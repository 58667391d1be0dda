// Package eventbus fans registry events out to subscribers (the HTTP
// SSE surface, and anything else that wants to watch the hub live). It
// is deliberately decoupled from the registry package: the registry
// only knows about the registry.Publisher interface, never this type.
package eventbus

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/lengoman/grpc-hub/internal/registry"
	"github.com/lengoman/grpc-hub/internal/telemetry"
)

// DefaultBufferSize is the per-subscriber channel capacity. A
// subscriber that cannot keep up sees events dropped rather than ever
// blocking the publisher (mirrors the teacher's sendEvent
// select/default pattern in the memory register).
const DefaultBufferSize = 64

// subscriber holds one consumer's delivery channel plus bookkeeping for
// the slow-subscriber marking.
type subscriber struct {
	id       uint64
	ch       chan registry.Event
	slow     atomic.Bool
	dropped  atomic.Uint64
}

// Bus assigns monotonic sequence numbers and delivers events to every
// live subscriber without ever blocking on a single slow one.
type Bus struct {
	mu       sync.Mutex
	subs     map[uint64]*subscriber
	nextSub  uint64
	seq      uint64
	bufSize  int
	greeting string
	log      telemetry.Logger
	metrics  telemetry.Metrics
}

// Option configures optional telemetry hooks on a Bus.
type Option func(*Bus)

// WithMetrics increments a drop counter (the SlowSubscriber error kind,
// §7) against m every time a subscriber's buffer is found full.
func WithMetrics(m telemetry.Metrics) Option {
	return func(b *Bus) { b.metrics = m }
}

// New constructs an empty Bus. greeting is the text carried on the
// synthetic connection event sent to every new subscriber. bufSize <= 0
// falls back to DefaultBufferSize. log may be nil.
func New(greeting string, bufSize int, log telemetry.Logger, opts ...Option) *Bus {
	if bufSize <= 0 {
		bufSize = DefaultBufferSize
	}
	if log == nil {
		log = telemetry.NewNoopLogger()
	}
	b := &Bus{
		subs:     make(map[uint64]*subscriber),
		bufSize:  bufSize,
		greeting: greeting,
		log:      log,
		metrics:  telemetry.NewNoopMetrics(),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Subscription is a live handle returned by Subscribe. Callers read
// from Events() and must call Close() when done.
type Subscription struct {
	bus *Bus
	sub *subscriber
}

// Events returns the channel to range over for delivered events.
func (s *Subscription) Events() <-chan registry.Event { return s.sub.ch }

// Close detaches the subscription from the bus and releases its channel.
func (s *Subscription) Close() {
	s.bus.mu.Lock()
	delete(s.bus.subs, s.sub.id)
	s.bus.mu.Unlock()
	close(s.sub.ch)
}

// Subscribe attaches a new subscriber and immediately enqueues a
// synthetic "connection" event carrying the bus's greeting, per
// SPEC_FULL §3.
func (b *Bus) Subscribe() *Subscription {
	b.mu.Lock()
	b.nextSub++
	sub := &subscriber{id: b.nextSub, ch: make(chan registry.Event, b.bufSize)}
	b.subs[sub.id] = sub
	b.seq++
	sub.ch <- registry.Event{Seq: b.seq, Type: registry.EventConnection, Greeting: b.greeting}
	b.mu.Unlock()

	return &Subscription{bus: b, sub: sub}
}

// Publish assigns the next global sequence number and delivers evt to
// every subscriber. A subscriber whose buffer is full has the event
// dropped and is marked slow; it is never removed for being slow (only
// Close ever removes a subscriber).
func (b *Bus) Publish(evt registry.Event) {
	b.mu.Lock()
	b.seq++
	evt.Seq = b.seq
	subs := make([]*subscriber, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		select {
		case s.ch <- evt:
		default:
			wasSlow := s.slow.Swap(true)
			s.dropped.Add(1)
			b.metrics.IncCounter("eventbus_dropped_total", 1, "subscriber_id", fmt.Sprintf("%d", s.id))
			if !wasSlow {
				b.log.Warn(context.Background(), "subscriber fell behind, dropping events", "subscriber_id", s.id)
			}
		}
	}
}

// SubscriberCount reports the number of currently attached subscribers,
// used by health/diagnostics endpoints.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
