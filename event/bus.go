package event

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Handler receives published events. It runs synchronously on the
// publishing goroutine.
type Handler func(Event)

// Bus distributes events to the handlers subscribed to their kind. Handlers
// of one kind run in subscription order. A panicking handler is logged and
// does not stop delivery to the others.
type Bus struct {
	mu     sync.RWMutex
	subs   [NumKinds][]subscription
	all    []subscription
	nextID uint64
	log    *zap.Logger
}

type subscription struct {
	id uint64
	h  Handler
}

func NewBus(log *zap.Logger) *Bus {
	if log == nil {
		log = zap.NewNop()
	}
	return &Bus{log: log.Named("eventbus")}
}

// Subscribe registers h for events of kind k. The returned function
// cancels the subscription.
func (b *Bus) Subscribe(k Kind, h Handler) (cancel func()) {
	if k < 0 || k >= NumKinds {
		panic(fmt.Sprintf("eventbus: subscribe to invalid kind %v", k))
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.subs[k] = append(b.subs[k], subscription{id, h})
	return func() { b.unsubscribe(&b.subs[k], id) }
}

// SubscribeAll registers h for every kind.
func (b *Bus) SubscribeAll(h Handler) (cancel func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.all = append(b.all, subscription{id, h})
	return func() { b.unsubscribe(&b.all, id) }
}

func (b *Bus) unsubscribe(list *[]subscription, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	*list = slices.DeleteFunc(slices.Clone(*list), func(s subscription) bool { return s.id == id })
}

// Publish delivers e to the handlers of its kind and then to the handlers
// subscribed to all kinds. Handlers may subscribe, unsubscribe or publish
// while being called.
func (b *Bus) Publish(e Event) {
	if e.Kind < 0 || e.Kind >= NumKinds {
		b.log.Error("dropping event of invalid kind", zap.Stringer("kind", e.Kind))
		return
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.mu.RLock()
	subs, all := b.subs[e.Kind], b.all
	b.mu.RUnlock()
	for _, s := range subs {
		b.call(s.h, e)
	}
	for _, s := range all {
		b.call(s.h, e)
	}
}

func (b *Bus) call(h Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("event handler panicked", zap.Stringer("kind", e.Kind), zap.Any("panic", r))
		}
	}()
	h(e)
}

// Subscribers is the number of handlers that would receive an event of
// kind k.
func (b *Bus) Subscribers(k Kind) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[k]) + len(b.all)
}
