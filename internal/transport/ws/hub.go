package ws

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/vedran77/ontomatch/internal/domain"
	"github.com/vedran77/ontomatch/internal/realtime"
)

// Topics is the realtime side the gateway bridges browsers onto.
// *realtime.Adapter satisfies it.
type Topics interface {
	Subscribe(ctx context.Context, matchID uuid.UUID, onMessage func(domain.Message), onPresence func(domain.PresenceEvent)) (*realtime.Subscription, error)
	EnterPresence(ctx context.Context, matchID, userID uuid.UUID, displayName string) error
	LeavePresence(ctx context.Context, matchID, userID uuid.UUID) error
}

// Matches resolves a match for a user and rejects non-participants.
// *service.MatchService satisfies it.
type Matches interface {
	GetMatch(ctx context.Context, userID, matchID uuid.UUID) (*domain.Match, error)
}

// Hub tracks every open connection so they can be closed together.
type Hub struct {
	topics  Topics
	matches Matches

	clients map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	count      chan chan int
	stopped    chan struct{}
}

func NewHub(topics Topics, matches Matches) *Hub {
	return &Hub{
		topics:     topics,
		matches:    matches,
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		count:      make(chan chan int),
		stopped:    make(chan struct{}),
	}
}

// Run starts the Hub's main event loop. It returns when ctx is done, after
// closing every connection.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.stopped)
	for {
		select {
		case client := <-h.register:
			h.clients[client] = struct{}{}
			slog.Debug("ws client connected", "user_id", client.userID, "total", len(h.clients))

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.done)
				slog.Debug("ws client disconnected", "user_id", client.userID, "total", len(h.clients))
			}

		case reply := <-h.count:
			reply <- len(h.clients)

		case <-ctx.Done():
			for client := range h.clients {
				delete(h.clients, client)
				close(client.done)
			}
			return
		}
	}
}

func (h *Hub) remove(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.stopped:
	}
}

// ClientCount reports open connections.
func (h *Hub) ClientCount() int {
	reply := make(chan int)
	select {
	case h.count <- reply:
		return <-reply
	case <-h.stopped:
		return 0
	}
}
