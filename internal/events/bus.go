package events

import (
	"context"
	"reflect"
	"sync"

	ferrors "git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
)

// Bus fans build events out to in-process subscribers. Publish waits until
// every interested subscriber took the event or ctx is done. History lives in
// the build journal, not here.
type Bus struct {
	mu     sync.RWMutex
	subs   map[uint64]*subscription
	nextID uint64
	closed bool
}

// subscription delivers one event type to one channel. sendMu is held for
// reading while a send is in flight so the channel is never closed under it.
type subscription struct {
	typ     reflect.Type
	deliver func(ctx context.Context, evt Event) error
	stop    chan struct{}
	stopped sync.Once
	sendMu  sync.RWMutex
	closeCh func()
}

func (s *subscription) close() {
	s.stopped.Do(func() {
		close(s.stop)
		s.sendMu.Lock()
		s.closeCh()
		s.sendMu.Unlock()
	})
}

// NewBus returns an open bus.
func NewBus() *Bus {
	return &Bus{subs: map[uint64]*subscription{}}
}

// Subscribe returns a channel receiving every published event assignable to
// T; with T = Event that is all of them. The returned func unsubscribes and
// closes the channel. Subscribing to a closed bus yields a closed channel.
func Subscribe[T Event](b *Bus, buffer int) (<-chan T, func()) {
	ch := make(chan T, buffer)
	sub := &subscription{
		typ:     reflect.TypeFor[T](),
		stop:    make(chan struct{}),
		closeCh: func() { close(ch) },
	}
	sub.deliver = func(ctx context.Context, evt Event) error {
		v, ok := evt.(T)
		if !ok {
			return nil
		}
		sub.sendMu.RLock()
		defer sub.sendMu.RUnlock()
		select {
		case <-sub.stop:
			return nil
		default:
		}
		select {
		case ch <- v:
			return nil
		case <-sub.stop:
			return nil
		case <-ctx.Done():
			return ferrors.WrapError(ctx.Err(), ferrors.CategoryRuntime, "event publish canceled").
				WithContext("event_type", sub.typ.String()).
				WithContext("batch_id", evt.EventBatchID()).
				Build()
		}
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		sub.close()
		return ch, func() {}
	}
	b.nextID++
	id := b.nextID
	b.subs[id] = sub
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
		sub.close()
	}
}

// SubscriberCount returns the number of active subscriptions for exactly T.
func SubscriberCount[T Event](b *Bus) int {
	if b == nil {
		return 0
	}
	typ := reflect.TypeFor[T]()
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for _, s := range b.subs {
		if s.typ == typ {
			n++
		}
	}
	return n
}

// Publish delivers evt to every matching subscriber in turn. A nil bus drops
// the event.
func (b *Bus) Publish(ctx context.Context, evt Event) error {
	if b == nil {
		return nil
	}
	if evt == nil {
		return ferrors.ValidationError("event cannot be nil").Build()
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ferrors.RuntimeError("event bus is closed").
			WithContext("batch_id", evt.EventBatchID()).
			Build()
	}
	targets := make([]*subscription, 0, len(b.subs))
	for _, s := range b.subs {
		targets = append(targets, s)
	}
	b.mu.RUnlock()

	for _, s := range targets {
		if err := s.deliver(ctx, evt); err != nil {
			return err
		}
	}
	return nil
}

// Close rejects further publishing and closes every subscription channel.
// Events already buffered stay readable.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := b.subs
	b.subs = map[uint64]*subscription{}
	b.mu.Unlock()

	for _, s := range subs {
		s.close()
	}
}
