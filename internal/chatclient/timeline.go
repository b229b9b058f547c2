package chatclient

import (
	"slices"

	"github.com/google/uuid"
	"github.com/vedran77/ontomatch/internal/domain"
)

// Timeline is an ordered, duplicate-free message set. Order is
// (ServerTimestamp, ID) ascending regardless of insertion order.
type Timeline struct {
	msgs []domain.Message
	ids  map[uuid.UUID]struct{}
}

func NewTimeline() *Timeline {
	return &Timeline{ids: make(map[uuid.UUID]struct{})}
}

// Merge inserts the messages whose id is not yet present and returns them.
func (t *Timeline) Merge(msgs ...domain.Message) []domain.Message {
	var added []domain.Message
	for _, m := range msgs {
		if _, ok := t.ids[m.ID]; ok {
			continue
		}
		i, _ := slices.BinarySearchFunc(t.msgs, m.Cursor(), func(e domain.Message, c domain.Cursor) int {
			return e.Cursor().Compare(c)
		})
		t.msgs = slices.Insert(t.msgs, i, m)
		t.ids[m.ID] = struct{}{}
		added = append(added, m)
	}
	return added
}

// SetRead marks every message not sent by readerID as read.
func (t *Timeline) SetRead(readerID uuid.UUID) {
	for i := range t.msgs {
		if t.msgs[i].SenderID != readerID {
			t.msgs[i].IsRead = true
		}
	}
}

func (t *Timeline) Len() int { return len(t.msgs) }

// Messages returns a copy of the ordered set.
func (t *Timeline) Messages() []domain.Message {
	return slices.Clone(t.msgs)
}
