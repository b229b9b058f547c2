// Package chatclient reconciles a session's durable history with its live
// feed into one ordered, duplicate-free view.
package chatclient

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/ontomatch/internal/domain"
	"github.com/vedran77/ontomatch/internal/realtime"
	"golang.org/x/sync/errgroup"
)

// Transport is the live side of a chat. *realtime.Adapter satisfies it.
type Transport interface {
	Subscribe(ctx context.Context, matchID uuid.UUID, onMessage func(domain.Message), onPresence func(domain.PresenceEvent)) (*realtime.Subscription, error)
	EnterPresence(ctx context.Context, matchID, userID uuid.UUID, displayName string) error
	LeavePresence(ctx context.Context, matchID, userID uuid.UUID) error
	Presence(ctx context.Context, matchID uuid.UUID) ([]domain.PresenceEntry, error)
	Connected() bool
	OnStateChange(fn func(connected bool)) (remove func())
}

type Options struct {
	UserID      uuid.UUID
	DisplayName string
	PageSize    int
	// PollInterval is how often history is re-read while the transport is
	// unavailable.
	PollInterval time.Duration
	// Overlap widens every resync backwards from the durable cursor. A
	// store may commit a message after a later-stamped one was already
	// read; the overlap picks those up and the merge drops repeats.
	Overlap time.Duration
}

func (o Options) withDefaults() Options {
	if o.PageSize <= 0 {
		o.PageSize = 50
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 5 * time.Second
	}
	if o.Overlap <= 0 {
		o.Overlap = 2 * time.Second
	}
	return o
}

type UpdateKind int

const (
	UpdateMessages UpdateKind = iota
	UpdatePresence
	UpdateConnectivity
)

const leaveTimeout = 5 * time.Second

var errViewClosed = errors.New("chat view closed")

// View is one open chat session. All state is owned by a single event loop
// goroutine; live events, user actions and resync results are applied in
// arrival order.
type View struct {
	backend   Backend
	transport Transport
	session   domain.ChatSession
	opts      Options

	ctx    context.Context
	cancel context.CancelFunc

	events    chan func()
	updates   chan UpdateKind
	stop      chan struct{}
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error

	removeWatch func()

	subMu   sync.Mutex
	sub     *realtime.Subscription
	present bool
	closed  bool

	// loop owned
	timeline      *Timeline
	cursor        *domain.Cursor
	tracker       *ReadTracker
	presence      map[uuid.UUID]domain.PresenceEntry
	connected     bool
	syncing       bool
	resyncPending bool
}

// Open loads the session's history and attaches to its live topic
// concurrently. A transport outage does not fail Open: the view starts
// disconnected and polls until the transport comes back.
func Open(ctx context.Context, b Backend, t Transport, session domain.ChatSession, opts Options) (*View, error) {
	opts = opts.withDefaults()
	vctx, cancel := context.WithCancel(context.Background())
	v := &View{
		backend:   b,
		transport: t,
		session:   session,
		opts:      opts,
		ctx:       vctx,
		cancel:    cancel,
		events:    make(chan func(), 64),
		updates:   make(chan UpdateKind, 16),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
		timeline:  NewTimeline(),
		tracker:   NewReadTracker(b, opts.UserID, session.ID),
		presence:  make(map[uuid.UUID]domain.PresenceEntry),
	}
	go v.loop()

	v.removeWatch = t.OnStateChange(func(connected bool) {
		v.post(func() { v.handleConnectivity(connected) })
	})

	var history []domain.Message
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for m, err := range History(gctx, b, opts.UserID, session.ID, nil, opts.PageSize) {
			if err != nil {
				return err
			}
			history = append(history, m)
		}
		return nil
	})
	g.Go(func() error {
		err := v.ensureSubscribed(gctx)
		if errors.Is(err, domain.ErrTransportUnavailable) {
			slog.Warn("realtime unavailable, falling back to polling", "session_id", session.ID, "error", err)
			return nil
		}
		return err
	})
	if err := g.Wait(); err != nil {
		v.Close()
		return nil, err
	}

	subscribed := v.subscribed()
	var present []domain.PresenceEntry
	if subscribed {
		var err error
		if present, err = t.Presence(ctx, session.MatchID); err != nil {
			slog.Warn("loading presence", "session_id", session.ID, "error", err)
		}
	}

	v.call(func() {
		v.absorbDurable(history)
		v.connected = subscribed && t.Connected()
		for _, e := range present {
			v.presence[e.UserID] = e
		}
		// The history read ran alongside the subscribe, so anything stored
		// between its snapshot and the attach was in neither feed.
		if subscribed {
			v.resync()
		}
	})
	return v, nil
}

func (v *View) loop() {
	defer close(v.done)

	ticker := time.NewTicker(v.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case fn := <-v.events:
			fn()
		case <-ticker.C:
			if !v.connected {
				v.resync()
			}
		case <-v.stop:
			return
		}
	}
}

// post queues fn on the loop. It reports false once the view is closing.
func (v *View) post(fn func()) bool {
	select {
	case v.events <- fn:
		return true
	case <-v.stop:
		return false
	}
}

// call runs fn on the loop and waits for it.
func (v *View) call(fn func()) {
	ran := make(chan struct{})
	if !v.post(func() { fn(); close(ran) }) {
		return
	}
	select {
	case <-ran:
	case <-v.done:
	}
}

func (v *View) notify(kind UpdateKind) {
	select {
	case v.updates <- kind:
	default:
	}
}

func (v *View) subscribed() bool {
	v.subMu.Lock()
	defer v.subMu.Unlock()
	return v.sub != nil
}

func (v *View) ensureSubscribed(ctx context.Context) error {
	v.subMu.Lock()
	defer v.subMu.Unlock()
	if v.closed {
		return errViewClosed
	}
	if v.sub != nil {
		return nil
	}

	sub, err := v.transport.Subscribe(ctx, v.session.MatchID,
		func(m domain.Message) { v.post(func() { v.handleLive(m) }) },
		func(e domain.PresenceEvent) { v.post(func() { v.handlePresence(e) }) },
	)
	if err != nil {
		return err
	}
	v.sub = sub

	if err := v.transport.EnterPresence(ctx, v.session.MatchID, v.opts.UserID, v.opts.DisplayName); err != nil {
		slog.Warn("entering presence", "session_id", v.session.ID, "error", err)
	} else {
		v.present = true
	}
	return nil
}

func (v *View) handleLive(m domain.Message) {
	if m.SessionID != v.session.ID {
		return
	}
	v.afterMerge(v.timeline.Merge(m))
}

// absorbDurable merges messages read from the store and advances the
// durable cursor. Live messages never move the cursor since the live
// channel may have skipped something before them.
func (v *View) absorbDurable(msgs []domain.Message) {
	if n := len(msgs); n > 0 {
		last := msgs[n-1].Cursor()
		if v.cursor == nil || last.Compare(*v.cursor) > 0 {
			v.cursor = &last
		}
	}
	v.afterMerge(v.timeline.Merge(msgs...))
}

func (v *View) afterMerge(added []domain.Message) {
	if len(added) == 0 {
		return
	}
	v.notify(UpdateMessages)

	for _, m := range added {
		if m.SenderID == v.opts.UserID {
			continue
		}
		marked, err := v.tracker.Observe(v.ctx, m)
		if err != nil {
			slog.Warn("marking session read", "session_id", v.session.ID, "error", err)
		} else if marked {
			v.timeline.SetRead(v.opts.UserID)
		}
		break
	}
}

func (v *View) handlePresence(e domain.PresenceEvent) {
	switch e.Action {
	case domain.PresenceEnter:
		v.presence[e.Entry.UserID] = e.Entry
	case domain.PresenceLeave:
		delete(v.presence, e.Entry.UserID)
	default:
		return
	}
	v.notify(UpdatePresence)
}

func (v *View) handleConnectivity(connected bool) {
	if !connected {
		if v.connected {
			v.connected = false
			v.notify(UpdateConnectivity)
		}
		return
	}

	v.wg.Add(1)
	go func() {
		defer v.wg.Done()
		if err := v.ensureSubscribed(v.ctx); err != nil {
			if !errors.Is(err, errViewClosed) {
				slog.Warn("reattaching after reconnect", "session_id", v.session.ID, "error", err)
			}
			return
		}
		v.post(func() {
			if !v.connected {
				v.connected = true
				v.notify(UpdateConnectivity)
			}
			v.resync()
		})
	}()
}

// resync re-reads history from the durable cursor minus the overlap. At
// most one fetch runs at a time; a request during a fetch is queued.
func (v *View) resync() {
	if v.syncing {
		v.resyncPending = true
		return
	}
	v.syncing = true

	var from *domain.Cursor
	if v.cursor != nil {
		from = &domain.Cursor{Timestamp: v.cursor.Timestamp.Add(-v.opts.Overlap)}
	}

	v.wg.Add(1)
	go func() {
		defer v.wg.Done()
		var (
			got []domain.Message
			err error
		)
		for m, e := range History(v.ctx, v.backend, v.opts.UserID, v.session.ID, from, v.opts.PageSize) {
			if e != nil {
				err = e
				break
			}
			got = append(got, m)
		}
		v.post(func() { v.finishResync(got, err) })
	}()
}

func (v *View) finishResync(msgs []domain.Message, err error) {
	v.syncing = false
	if err != nil {
		slog.Warn("resyncing history", "session_id", v.session.ID, "error", err)
	} else {
		v.absorbDurable(msgs)
	}
	if v.resyncPending {
		v.resyncPending = false
		v.resync()
	}
}

// Send persists a message through the backend and shows it immediately.
// It never waits on the realtime transport.
func (v *View) Send(ctx context.Context, content string, kind domain.MessageKind) (*domain.Message, error) {
	msg, err := v.backend.Send(ctx, v.opts.UserID, v.session.ID, content, string(kind))
	if err != nil {
		return nil, err
	}
	m := *msg
	v.call(func() { v.afterMerge(v.timeline.Merge(m)) })
	return msg, nil
}

// Focus marks the session read and keeps it read while focused.
func (v *View) Focus(ctx context.Context) error {
	var err error
	v.call(func() {
		if err = v.tracker.Focus(ctx); err == nil {
			v.timeline.SetRead(v.opts.UserID)
			v.notify(UpdateMessages)
		}
	})
	return err
}

func (v *View) Blur() {
	v.call(v.tracker.Blur)
}

// Resync forces a history re-read, as after a tab resume.
func (v *View) Resync() {
	v.post(v.resync)
}

// Messages returns the reconciled conversation in display order.
func (v *View) Messages() []domain.Message {
	var out []domain.Message
	v.call(func() { out = v.timeline.Messages() })
	return out
}

// Presence returns who is attached to the session, earliest first.
func (v *View) Presence() []domain.PresenceEntry {
	var out []domain.PresenceEntry
	v.call(func() {
		out = make([]domain.PresenceEntry, 0, len(v.presence))
		for _, e := range v.presence {
			out = append(out, e)
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Since.Before(out[j].Since) })
	return out
}

// Connected is the connectivity indicator. It never gates Send.
func (v *View) Connected() bool {
	var c bool
	v.call(func() { c = v.connected })
	return c
}

// Updates signals state changes. Signals coalesce when the reader lags.
func (v *View) Updates() <-chan UpdateKind {
	return v.updates
}

// Close unsubscribes and leaves the presence it entered on every path,
// including after a failed Open. It is safe to call more than once.
func (v *View) Close() error {
	v.closeOnce.Do(func() {
		close(v.stop)
		<-v.done
		v.cancel()
		v.wg.Wait()

		if v.removeWatch != nil {
			v.removeWatch()
		}

		v.subMu.Lock()
		v.closed = true
		sub, present := v.sub, v.present
		v.sub, v.present = nil, false
		v.subMu.Unlock()

		var errs []error
		if sub != nil {
			errs = append(errs, sub.Close())
		}

		if present {
			ctx, cancel := context.WithTimeout(context.Background(), leaveTimeout)
			defer cancel()
			if err := v.transport.LeavePresence(ctx, v.session.MatchID, v.opts.UserID); err != nil {
				errs = append(errs, err)
			}
		}
		v.closeErr = errors.Join(errs...)
	})
	return v.closeErr
}
