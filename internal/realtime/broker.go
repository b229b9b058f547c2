// Package realtime is the best-effort delivery side channel for chat: a
// per-match broadcast topic plus presence. It never persists messages.
package realtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/vedran77/ontomatch/internal/domain"
)

// Handler receives one published payload. ctx carries the publisher's trace
// context when the broker propagates it.
type Handler func(ctx context.Context, data []byte)

// Broker is a subject based pub/sub transport with at-most-once delivery.
type Broker interface {
	Publish(ctx context.Context, subject string, data []byte) error
	// Subscribe returns once the broker confirmed the subscription.
	Subscribe(ctx context.Context, subject string, h Handler) (unsubscribe func() error, err error)
	Connected() bool
	// OnStateChange registers fn for connect/disconnect transitions.
	OnStateChange(fn func(connected bool)) (remove func())
	Close() error
}

// stateListeners is shared by broker implementations.
type stateListeners struct {
	mu   sync.Mutex
	next int
	fns  map[int]func(bool)
}

func (l *stateListeners) add(fn func(bool)) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fns == nil {
		l.fns = make(map[int]func(bool))
	}
	id := l.next
	l.next++
	l.fns[id] = fn
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.fns, id)
	}
}

func (l *stateListeners) notify(connected bool) {
	l.mu.Lock()
	fns := make([]func(bool), 0, len(l.fns))
	for _, fn := range l.fns {
		fns = append(fns, fn)
	}
	l.mu.Unlock()

	for _, fn := range fns {
		fn(connected)
	}
}

// LocalBroker delivers in process. It backs single-node deployments and
// tests; SetConnected simulates transport outages.
type LocalBroker struct {
	mu        sync.RWMutex
	nextID    int
	subs      map[string]map[int]Handler
	connected bool
	listeners stateListeners
}

func NewLocalBroker() *LocalBroker {
	return &LocalBroker{
		subs:      make(map[string]map[int]Handler),
		connected: true,
	}
}

func (b *LocalBroker) Publish(ctx context.Context, subject string, data []byte) error {
	b.mu.RLock()
	if !b.connected {
		b.mu.RUnlock()
		return fmt.Errorf("publish %s: %w", subject, domain.ErrTransportUnavailable)
	}
	handlers := make([]Handler, 0, len(b.subs[subject]))
	for _, h := range b.subs[subject] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(ctx, data)
	}
	return nil
}

func (b *LocalBroker) Subscribe(_ context.Context, subject string, h Handler) (func() error, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.connected {
		return nil, fmt.Errorf("subscribe %s: %w", subject, domain.ErrTransportUnavailable)
	}

	id := b.nextID
	b.nextID++
	if b.subs[subject] == nil {
		b.subs[subject] = make(map[int]Handler)
	}
	b.subs[subject][id] = h

	return func() error {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs[subject], id)
		if len(b.subs[subject]) == 0 {
			delete(b.subs, subject)
		}
		return nil
	}, nil
}

func (b *LocalBroker) Connected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.connected
}

// SetConnected flips the simulated link state. Subscriptions survive an
// outage, but anything published while disconnected is lost.
func (b *LocalBroker) SetConnected(connected bool) {
	b.mu.Lock()
	changed := b.connected != connected
	b.connected = connected
	b.mu.Unlock()

	if changed {
		b.listeners.notify(connected)
	}
}

func (b *LocalBroker) OnStateChange(fn func(bool)) func() {
	return b.listeners.add(fn)
}

// subscriberCount reports live handlers on subject.
func (b *LocalBroker) subscriberCount(subject string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[subject])
}

func (b *LocalBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = make(map[string]map[int]Handler)
	return nil
}
