package domain

import (
	"bytes"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MessageKind is a closed set; anything else is rejected at the store boundary.
type MessageKind string

const (
	MessageKindText  MessageKind = "text"
	MessageKindImage MessageKind = "image"
	MessageKindAudio MessageKind = "audio"
)

// ParseMessageKind validates raw input. An empty string means text.
func ParseMessageKind(s string) (MessageKind, error) {
	switch MessageKind(s) {
	case "", MessageKindText:
		return MessageKindText, nil
	case MessageKindImage, MessageKindAudio:
		return MessageKind(s), nil
	}
	return "", fmt.Errorf("%w: unknown message kind %q", ErrInvalidArgument, s)
}

type Message struct {
	ID              uuid.UUID   `json:"id"`
	SessionID       uuid.UUID   `json:"session_id"`
	SenderID        uuid.UUID   `json:"sender_id"`
	Content         string      `json:"content"`
	Kind            MessageKind `json:"kind"`
	ServerTimestamp time.Time   `json:"server_ts"`
	IsRead          bool        `json:"is_read"`
}

// Cursor points at a position in a session's (ServerTimestamp, ID) order.
type Cursor struct {
	Timestamp time.Time `json:"ts"`
	ID        uuid.UUID `json:"id"`
}

// Cursor returns the position of m.
func (m *Message) Cursor() Cursor {
	return Cursor{Timestamp: m.ServerTimestamp, ID: m.ID}
}

// Compare orders two positions by timestamp, then id.
func (c Cursor) Compare(o Cursor) int {
	if c.Timestamp.Before(o.Timestamp) {
		return -1
	}
	if c.Timestamp.After(o.Timestamp) {
		return 1
	}
	return bytes.Compare(c.ID[:], o.ID[:])
}

// MessagePage is one slice of history. NextCursor is nil on the last page.
type MessagePage struct {
	Messages   []Message `json:"messages"`
	NextCursor *Cursor   `json:"next_cursor,omitempty"`
}
