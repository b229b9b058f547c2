package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/ontomatch/internal/domain"
	"github.com/vedran77/ontomatch/internal/realtime"
	"github.com/vedran77/ontomatch/pkg/validator"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const (
	writeWait      = 10 * time.Second
	pingInterval   = 30 * time.Second
	maxMessageSize = 4096
	sendBufSize    = 256
)

// Client represents a single WebSocket connection.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID uuid.UUID

	// subs is only touched by ReadPump.
	subs map[uuid.UUID]*topicSub

	send chan []byte
	done chan struct{}
}

type topicSub struct {
	sub *realtime.Subscription
	// present is set once presence was entered, so leave never releases
	// an attachment this client does not hold.
	present bool
}

func NewClient(hub *Hub, conn *websocket.Conn, userID uuid.UUID) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		userID: userID,
		subs:   make(map[uuid.UUID]*topicSub),
		send:   make(chan []byte, sendBufSize),
		done:   make(chan struct{}),
	}
}

// ReadPump reads messages from the WebSocket and handles them. Every exit
// path releases the client's topics and presence.
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.leaveAll()
		c.hub.remove(c)
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	for {
		var event Event
		err := wsjson.Read(ctx, c.conn, &event)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("ws client closed", "user_id", c.userID)
			} else if !errors.Is(err, context.Canceled) {
				slog.Warn("ws read error", "user_id", c.userID, "error", err)
			}
			return
		}

		c.handleEvent(ctx, &event)
	}
}

// WritePump writes messages from the send channel to the WebSocket.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		select {
		case message := <-c.send:
			ctx, cancel := context.WithTimeout(context.Background(), writeWait)
			err := c.conn.Write(ctx, websocket.MessageText, message)
			cancel()
			if err != nil {
				slog.Warn("ws write error", "user_id", c.userID, "error", err)
				return
			}

		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), writeWait)
			err := c.conn.Ping(ctx)
			cancel()
			if err != nil {
				slog.Warn("ws ping error", "user_id", c.userID, "error", err)
				return
			}

		case <-c.done:
			return
		}
	}
}

// handleEvent routes an incoming client event.
func (c *Client) handleEvent(ctx context.Context, event *Event) {
	switch event.Type {
	case EventTypeChatSubscribe:
		var p SubscribePayload
		if err := json.Unmarshal(event.Payload, &p); err != nil || p.MatchID == uuid.Nil {
			c.sendError("INVALID_PAYLOAD", "invalid chat.subscribe payload")
			return
		}
		if errs := validator.ValidateDisplayName(p.DisplayName); errs.HasErrors() {
			c.sendError("INVALID_PAYLOAD", errs["display_name"])
			return
		}
		c.subscribe(ctx, p)

	case EventTypeChatUnsubscribe:
		var p SubscribePayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			c.sendError("INVALID_PAYLOAD", "invalid chat.unsubscribe payload")
			return
		}
		c.leave(p.MatchID)

	case EventTypePing:
		c.sendPong()

	default:
		c.sendError("UNKNOWN_EVENT", "unknown event type: "+event.Type)
	}
}

func (c *Client) subscribe(ctx context.Context, p SubscribePayload) {
	if _, ok := c.subs[p.MatchID]; ok {
		return
	}

	match, err := c.hub.matches.GetMatch(ctx, c.userID, p.MatchID)
	switch {
	case errors.Is(err, domain.ErrForbidden):
		c.sendError("FORBIDDEN", "you are not part of this match")
		return
	case errors.Is(err, domain.ErrNotFound):
		c.sendError("NOT_FOUND", "match not found")
		return
	case err != nil:
		slog.Error("ws subscribe", "user_id", c.userID, "match_id", p.MatchID, "error", err)
		c.sendError("INTERNAL", "something went wrong")
		return
	case !match.IsMutual:
		c.sendError("NOT_ELIGIBLE", "match is not mutual")
		return
	}

	matchID := p.MatchID
	sub, err := c.hub.topics.Subscribe(ctx, matchID,
		func(m domain.Message) { c.push(EventTypeMessageNew, &matchID, m) },
		func(e domain.PresenceEvent) { c.push(EventTypePresence, &matchID, e) },
	)
	if err != nil {
		slog.Warn("ws subscribe failed", "user_id", c.userID, "match_id", matchID, "error", err)
		c.sendError("TRANSPORT_UNAVAILABLE", "realtime transport unavailable")
		return
	}
	ts := &topicSub{sub: sub}
	c.subs[matchID] = ts

	if err := c.hub.topics.EnterPresence(ctx, matchID, c.userID, p.DisplayName); err != nil {
		slog.Warn("ws enter presence", "user_id", c.userID, "match_id", matchID, "error", err)
	} else {
		ts.present = true
	}
	slog.Debug("ws subscribed", "user_id", c.userID, "topic", domain.Topic(matchID))
}

func (c *Client) leave(matchID uuid.UUID) {
	ts, ok := c.subs[matchID]
	if !ok {
		return
	}
	delete(c.subs, matchID)

	if err := ts.sub.Close(); err != nil {
		slog.Warn("ws unsubscribe", "user_id", c.userID, "match_id", matchID, "error", err)
	}
	if !ts.present {
		return
	}

	// The request context may already be gone on disconnect.
	ctx, cancel := context.WithTimeout(context.Background(), writeWait)
	defer cancel()
	if err := c.hub.topics.LeavePresence(ctx, matchID, c.userID); err != nil {
		slog.Warn("ws leave presence", "user_id", c.userID, "match_id", matchID, "error", err)
	}
}

func (c *Client) leaveAll() {
	for matchID := range c.subs {
		c.leave(matchID)
	}
}

// push queues an event without blocking the broker. A full buffer drops the
// event; clients recover missed messages from history.
func (c *Client) push(eventType string, matchID *uuid.UUID, payload any) {
	evt, err := NewEvent(eventType, matchID, payload)
	if err != nil {
		return
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	case <-c.done:
	default:
		slog.Debug("ws send buffer full, dropping event", "user_id", c.userID, "type", eventType)
	}
}

func (c *Client) sendPong() {
	c.push(EventTypePong, nil, struct{}{})
}

func (c *Client) sendError(code, message string) {
	c.push(EventTypeError, nil, ErrorPayload{Code: code, Message: message})
}
