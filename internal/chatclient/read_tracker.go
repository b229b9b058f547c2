package chatclient

import (
	"context"

	"github.com/google/uuid"
	"github.com/vedran77/ontomatch/internal/domain"
)

// ReadTracker decides when a view should mark the session read: on focus,
// and on every live message from the peer while focused. Marking is
// idempotent, so redundant calls are harmless.
type ReadTracker struct {
	backend   Backend
	userID    uuid.UUID
	sessionID uuid.UUID
	focused   bool
}

func NewReadTracker(b Backend, userID, sessionID uuid.UUID) *ReadTracker {
	return &ReadTracker{backend: b, userID: userID, sessionID: sessionID}
}

func (r *ReadTracker) Focused() bool { return r.focused }

// Focus marks the session read and keeps doing so for incoming messages.
func (r *ReadTracker) Focus(ctx context.Context) error {
	r.focused = true
	return r.markRead(ctx)
}

func (r *ReadTracker) Blur() {
	r.focused = false
}

// Observe reports whether msg triggered a markRead.
func (r *ReadTracker) Observe(ctx context.Context, msg domain.Message) (bool, error) {
	if !r.focused || msg.SenderID == r.userID {
		return false, nil
	}
	return true, r.markRead(ctx)
}

func (r *ReadTracker) markRead(ctx context.Context) error {
	_, err := r.backend.MarkRead(ctx, r.userID, r.sessionID)
	return err
}
