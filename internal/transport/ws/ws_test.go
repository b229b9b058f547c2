package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vedran77/ontomatch/internal/candidate"
	"github.com/vedran77/ontomatch/internal/domain"
	"github.com/vedran77/ontomatch/internal/realtime"
	"github.com/vedran77/ontomatch/internal/repository/sqlite"
	"github.com/vedran77/ontomatch/internal/service"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const secret = "ws-test-secret"

type gateway struct {
	server  *httptest.Server
	adapter *realtime.Adapter
	hub     *Hub
	matchID uuid.UUID
	a, b    uuid.UUID
}

func newGateway(t *testing.T) *gateway {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	store, err := sqlite.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	matches := service.NewMatchService(store.Matches(), candidate.NewStatic(nil), 3)
	a, b := uuid.New(), uuid.New()
	_, err = matches.RegisterInterest(ctx, a, b)
	require.NoError(t, err)
	res, err := matches.RegisterInterest(ctx, b, a)
	require.NoError(t, err)

	adapter := realtime.NewAdapter(realtime.NewLocalBroker(), realtime.NewLocalPresence())
	hub := NewHub(adapter, matches)
	go hub.Run(ctx)

	server := httptest.NewServer(ServeWS(hub, secret))
	t.Cleanup(server.Close)

	return &gateway{server: server, adapter: adapter, hub: hub, matchID: *res.MatchID, a: a, b: b}
}

func (g *gateway) dial(t *testing.T, user uuid.UUID) *websocket.Conn {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": user.String()}).SignedString([]byte(secret))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(g.server.URL, "http") + "?token=" + tok
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	return conn
}

func send(t *testing.T, conn *websocket.Conn, eventType string, payload any) {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, wsjson.Write(ctx, conn, Event{Type: eventType, Payload: data}))
}

func read(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var evt Event
	require.NoError(t, wsjson.Read(ctx, conn, &evt))
	return evt
}

func TestGateway_SubscribeReceivesPresenceAndMessages(t *testing.T) {
	g := newGateway(t)
	conn := g.dial(t, g.a)
	defer conn.Close(websocket.StatusNormalClosure, "")

	send(t, conn, EventTypeChatSubscribe, SubscribePayload{MatchID: g.matchID, DisplayName: "Ana"})

	evt := read(t, conn)
	require.Equal(t, EventTypePresence, evt.Type)
	var pe domain.PresenceEvent
	require.NoError(t, json.Unmarshal(evt.Payload, &pe))
	assert.Equal(t, domain.PresenceEnter, pe.Action)
	assert.Equal(t, g.a, pe.Entry.UserID)

	msg := &domain.Message{ID: uuid.New(), SenderID: g.b, Content: "hey", Kind: domain.MessageKindText}
	require.NoError(t, g.adapter.Publish(context.Background(), g.matchID, msg))

	evt = read(t, conn)
	require.Equal(t, EventTypeMessageNew, evt.Type)
	require.NotNil(t, evt.MatchID)
	assert.Equal(t, g.matchID, *evt.MatchID)
	var got domain.Message
	require.NoError(t, json.Unmarshal(evt.Payload, &got))
	assert.Equal(t, msg.ID, got.ID)
}

func TestGateway_RejectsNonParticipant(t *testing.T) {
	g := newGateway(t)
	conn := g.dial(t, uuid.New())
	defer conn.Close(websocket.StatusNormalClosure, "")

	send(t, conn, EventTypeChatSubscribe, SubscribePayload{MatchID: g.matchID, DisplayName: "Eve"})

	evt := read(t, conn)
	require.Equal(t, EventTypeError, evt.Type)
	var p ErrorPayload
	require.NoError(t, json.Unmarshal(evt.Payload, &p))
	assert.Equal(t, "FORBIDDEN", p.Code)
	assert.Equal(t, 0, g.adapter.ListenerCount(g.matchID))
}

func TestGateway_DisconnectReleasesTopicAndPresence(t *testing.T) {
	g := newGateway(t)
	conn := g.dial(t, g.a)

	send(t, conn, EventTypeChatSubscribe, SubscribePayload{MatchID: g.matchID, DisplayName: "Ana"})
	read(t, conn) // own presence enter
	require.Equal(t, 1, g.adapter.ListenerCount(g.matchID))

	conn.Close(websocket.StatusNormalClosure, "bye")

	assert.Eventually(t, func() bool {
		entries, err := g.adapter.Presence(context.Background(), g.matchID)
		return err == nil && len(entries) == 0 && g.adapter.ListenerCount(g.matchID) == 0
	}, 2*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return g.hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestGateway_PingAndUnknownEvent(t *testing.T) {
	g := newGateway(t)
	conn := g.dial(t, g.a)
	defer conn.Close(websocket.StatusNormalClosure, "")

	send(t, conn, EventTypePing, struct{}{})
	assert.Equal(t, EventTypePong, read(t, conn).Type)

	send(t, conn, "typing.start", struct{}{})
	assert.Equal(t, EventTypeError, read(t, conn).Type)
}
