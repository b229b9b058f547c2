package domain

import (
	"time"

	"github.com/google/uuid"
)

// Topic is the broadcast topic name for a match.
func Topic(matchID uuid.UUID) string {
	return "chat:" + matchID.String()
}

// PresenceEntry exists only while a client is attached to a topic.
type PresenceEntry struct {
	Topic       string    `json:"topic"`
	UserID      uuid.UUID `json:"user_id"`
	DisplayName string    `json:"display_name"`
	Since       time.Time `json:"since"`
}

type PresenceAction string

const (
	PresenceEnter PresenceAction = "enter"
	PresenceLeave PresenceAction = "leave"
)

type PresenceEvent struct {
	Action PresenceAction `json:"action"`
	Entry  PresenceEntry  `json:"entry"`
}
