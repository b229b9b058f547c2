package domain

import (
	"time"

	"github.com/google/uuid"
)

// ChatSession is bound 1:1 to a mutual match.
type ChatSession struct {
	ID        uuid.UUID `json:"id"`
	MatchID   uuid.UUID `json:"match_id"`
	CreatedAt time.Time `json:"created_at"`
	// Joined from the match
	UserAID uuid.UUID `json:"user_a_id"`
	UserBID uuid.UUID `json:"user_b_id"`
}

// HasParticipant reports whether userID belongs to the session's match.
func (s *ChatSession) HasParticipant(userID uuid.UUID) bool {
	return s.UserAID == userID || s.UserBID == userID
}

// SessionSummary is a session as listed in a user's inbox.
type SessionSummary struct {
	ChatSession
	OtherUserID  uuid.UUID `json:"other_user_id"`
	LastMessage  *Message  `json:"last_message,omitempty"`
	UnreadCount  int       `json:"unread_count"`
	LastActivity time.Time `json:"last_activity"`
}
