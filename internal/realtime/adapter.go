package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/ontomatch/internal/domain"
)

func messageSubject(matchID uuid.UUID) string  { return "chat." + matchID.String() + ".messages" }
func presenceSubject(matchID uuid.UUID) string { return "chat." + matchID.String() + ".presence" }

// Adapter multiplexes local listeners onto broker subscriptions. The first
// Subscribe for a match attaches to the broker and the last Close detaches.
type Adapter struct {
	broker   Broker
	presence PresenceStore

	mu     sync.Mutex
	nextID int
	topics map[uuid.UUID]*topic
}

type topic struct {
	listeners map[int]*Subscription
	detach    []func() error

	// ready is closed once the broker attach finished; err is its result.
	ready chan struct{}
	err   error
}

// Subscription is one listener on a match topic.
type Subscription struct {
	adapter    *Adapter
	topic      *topic
	matchID    uuid.UUID
	id         int
	onMessage  func(domain.Message)
	onPresence func(domain.PresenceEvent)

	// mu is held for reading while a callback runs, so Close waits for an
	// in-flight delivery and nothing is delivered after it returns.
	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
	closeErr  error
}

func NewAdapter(broker Broker, presence PresenceStore) *Adapter {
	return &Adapter{
		broker:   broker,
		presence: presence,
		topics:   make(map[uuid.UUID]*topic),
	}
}

// Publish broadcasts msg to the match topic. Delivery is best effort.
func (a *Adapter) Publish(ctx context.Context, matchID uuid.UUID, msg *domain.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	return a.broker.Publish(ctx, messageSubject(matchID), data)
}

// Subscribe attaches listeners to a match topic and returns once the
// transport confirmed the attachment. Either callback may be nil.
// Callbacks run on the broker's delivery goroutine, must not block and must
// not close their own subscription.
func (a *Adapter) Subscribe(ctx context.Context, matchID uuid.UUID, onMessage func(domain.Message), onPresence func(domain.PresenceEvent)) (*Subscription, error) {
	for {
		a.mu.Lock()
		t, ok := a.topics[matchID]
		if !ok {
			t = &topic{listeners: make(map[int]*Subscription), ready: make(chan struct{})}
			a.topics[matchID] = t
			a.mu.Unlock()

			// The broker round trip runs unlocked so deliveries on other
			// topics keep flowing.
			detach, err := a.attach(ctx, matchID)

			a.mu.Lock()
			t.detach, t.err = detach, err
			close(t.ready)
			if err != nil {
				if a.topics[matchID] == t {
					delete(a.topics, matchID)
				}
				a.mu.Unlock()
				return nil, err
			}
			if a.topics[matchID] != t {
				// The adapter was closed during the attach.
				a.mu.Unlock()
				_ = detachAll(detach)
				continue
			}
			slog.Debug("topic attached", "topic", domain.Topic(matchID))
			sub := a.addListener(t, matchID, onMessage, onPresence)
			a.mu.Unlock()
			return sub, nil
		}
		a.mu.Unlock()

		select {
		case <-t.ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		a.mu.Lock()
		if t.err != nil {
			a.mu.Unlock()
			// The attaching caller gave up; that is not this caller's error.
			if errors.Is(t.err, context.Canceled) || errors.Is(t.err, context.DeadlineExceeded) {
				continue
			}
			return nil, t.err
		}
		if a.topics[matchID] != t {
			// Detached while waiting; attach afresh.
			a.mu.Unlock()
			continue
		}
		sub := a.addListener(t, matchID, onMessage, onPresence)
		a.mu.Unlock()
		return sub, nil
	}
}

// addListener must be called with a.mu held.
func (a *Adapter) addListener(t *topic, matchID uuid.UUID, onMessage func(domain.Message), onPresence func(domain.PresenceEvent)) *Subscription {
	sub := &Subscription{
		adapter:    a,
		topic:      t,
		matchID:    matchID,
		id:         a.nextID,
		onMessage:  onMessage,
		onPresence: onPresence,
	}
	a.nextID++
	t.listeners[sub.id] = sub
	return sub
}

func (a *Adapter) attach(ctx context.Context, matchID uuid.UUID) ([]func() error, error) {
	unsubMsgs, err := a.broker.Subscribe(ctx, messageSubject(matchID), func(_ context.Context, data []byte) {
		var msg domain.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Warn("dropping malformed message event", "match_id", matchID, "error", err)
			return
		}
		for _, s := range a.listenersOf(matchID) {
			s.deliverMessage(msg)
		}
	})
	if err != nil {
		return nil, err
	}

	unsubPresence, err := a.broker.Subscribe(ctx, presenceSubject(matchID), func(_ context.Context, data []byte) {
		var evt domain.PresenceEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			slog.Warn("dropping malformed presence event", "match_id", matchID, "error", err)
			return
		}
		for _, s := range a.listenersOf(matchID) {
			s.deliverPresence(evt)
		}
	})
	if err != nil {
		unsubMsgs()
		return nil, err
	}

	return []func() error{unsubMsgs, unsubPresence}, nil
}

func (a *Adapter) listenersOf(matchID uuid.UUID) []*Subscription {
	a.mu.Lock()
	defer a.mu.Unlock()
	t, ok := a.topics[matchID]
	if !ok {
		return nil
	}
	out := make([]*Subscription, 0, len(t.listeners))
	for _, s := range t.listeners {
		out = append(out, s)
	}
	return out
}

func (s *Subscription) deliverMessage(m domain.Message) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.closed && s.onMessage != nil {
		s.onMessage(m)
	}
}

func (s *Subscription) deliverPresence(e domain.PresenceEvent) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.closed && s.onPresence != nil {
		s.onPresence(e)
	}
}

// Close removes the listener. No callback runs once it returns. It is safe
// to call more than once.
func (s *Subscription) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		s.closeErr = s.adapter.release(s)
	})
	return s.closeErr
}

func (a *Adapter) release(s *Subscription) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	t := s.topic
	delete(t.listeners, s.id)
	if len(t.listeners) > 0 || a.topics[s.matchID] != t {
		return nil
	}

	delete(a.topics, s.matchID)
	slog.Debug("topic detached", "topic", domain.Topic(s.matchID))
	return detachAll(t.detach)
}

func detachAll(detach []func() error) error {
	var errs []error
	for _, fn := range detach {
		if err := fn(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ListenerCount reports the local listeners attached to a match topic.
func (a *Adapter) ListenerCount(matchID uuid.UUID) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if t, ok := a.topics[matchID]; ok {
		return len(t.listeners)
	}
	return 0
}

// EnterPresence records userID on the match topic. Only the user's first
// attachment is announced.
func (a *Adapter) EnterPresence(ctx context.Context, matchID, userID uuid.UUID, displayName string) error {
	entry := domain.PresenceEntry{
		Topic:       domain.Topic(matchID),
		UserID:      userID,
		DisplayName: displayName,
		Since:       time.Now().UTC(),
	}
	first, err := a.presence.Enter(ctx, entry)
	if err != nil || !first {
		return err
	}
	return a.announce(ctx, matchID, domain.PresenceEvent{Action: domain.PresenceEnter, Entry: entry})
}

// LeavePresence drops one attachment of userID from the match topic. The
// leave is announced once the last attachment is gone.
func (a *Adapter) LeavePresence(ctx context.Context, matchID, userID uuid.UUID) error {
	topicName := domain.Topic(matchID)
	gone, err := a.presence.Leave(ctx, topicName, userID)
	if err != nil || !gone {
		return err
	}
	return a.announce(ctx, matchID, domain.PresenceEvent{
		Action: domain.PresenceLeave,
		Entry:  domain.PresenceEntry{Topic: topicName, UserID: userID, Since: time.Now().UTC()},
	})
}

// announce broadcasts a presence change. The presence store already holds
// the new state, so a lost broadcast is only logged; listeners catch up
// from Presence.
func (a *Adapter) announce(ctx context.Context, matchID uuid.UUID, evt domain.PresenceEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal presence event: %w", err)
	}
	if err := a.broker.Publish(ctx, presenceSubject(matchID), data); err != nil {
		slog.Warn("presence broadcast lost", "topic", domain.Topic(matchID), "action", evt.Action, "error", err)
	}
	return nil
}

// Presence lists who is currently attached to the match topic.
func (a *Adapter) Presence(ctx context.Context, matchID uuid.UUID) ([]domain.PresenceEntry, error) {
	return a.presence.List(ctx, domain.Topic(matchID))
}

func (a *Adapter) Connected() bool {
	return a.broker.Connected()
}

func (a *Adapter) OnStateChange(fn func(connected bool)) func() {
	return a.broker.OnStateChange(fn)
}

// Close detaches every topic. Outstanding subscriptions become no-ops.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var errs []error
	for id, t := range a.topics {
		// A topic still attaching is detached by its Subscribe call.
		if err := detachAll(t.detach); err != nil {
			errs = append(errs, err)
		}
		delete(a.topics, id)
	}
	return errors.Join(errs...)
}
