package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vedran77/ontomatch/internal/candidate"
	"github.com/vedran77/ontomatch/internal/domain"
	"github.com/vedran77/ontomatch/internal/repository/sqlite"
	"github.com/vedran77/ontomatch/internal/service"
	"github.com/vedran77/ontomatch/internal/transport/http/middleware"
)

// headerAuth stands in for the JWT middleware.
func headerAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(r.Header.Get("X-User-ID"))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "no user")
			return
		}
		next.ServeHTTP(w, r.WithContext(middleware.WithUserID(r.Context(), id)))
	})
}

type api struct {
	t   *testing.T
	mux *http.ServeMux
}

func newAPI(t *testing.T) *api {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	matches := service.NewMatchService(store.Matches(), candidate.NewStatic(nil), 3)
	chats := service.NewChatService(store.Matches(), store.Chats())
	messages := service.NewMessageService(store.Messages(), chats, 100)

	mux := http.NewServeMux()
	NewMatchHandler(matches, chats).Register(mux, headerAuth)
	NewChatHandler(chats, messages, 100).Register(mux, headerAuth)
	return &api{t: t, mux: mux}
}

func (a *api) do(user uuid.UUID, method, path string, body any) *httptest.ResponseRecorder {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("X-User-ID", user.String())
	rec := httptest.NewRecorder()
	a.mux.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

type errorBody struct {
	Error struct {
		Code string `json:"code"`
	} `json:"error"`
}

func (a *api) session(alice, bob uuid.UUID) domain.ChatSession {
	a.t.Helper()
	require.Equal(a.t, http.StatusOK, a.do(alice, http.MethodPost, "/api/v1/interests", map[string]any{"target_id": bob}).Code)
	rec := a.do(bob, http.MethodPost, "/api/v1/interests", map[string]any{"target_id": alice})
	require.Equal(a.t, http.StatusOK, rec.Code)
	res := decode[domain.InterestResult](a.t, rec)
	require.True(a.t, res.IsMatch)

	rec = a.do(alice, http.MethodPost, "/api/v1/matches/"+res.MatchID.String()+"/session", nil)
	require.Equal(a.t, http.StatusOK, rec.Code)
	return decode[domain.ChatSession](a.t, rec)
}

func TestRegisterInterest_Endpoint(t *testing.T) {
	a := newAPI(t)
	alice, bob := uuid.New(), uuid.New()

	rec := a.do(alice, http.MethodPost, "/api/v1/interests", map[string]any{"target_id": bob})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"is_match":false}`, rec.Body.String())

	rec = a.do(alice, http.MethodPost, "/api/v1/interests", map[string]any{"target_id": alice})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", decode[errorBody](t, rec).Error.Code)

	rec = a.do(alice, http.MethodPost, "/api/v1/interests", "not an object")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(bob, http.MethodGet, "/api/v1/interests/incoming", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]domain.InterestEdge](t, rec), 1)
}

func TestSessionEndpoint_ErrorMapping(t *testing.T) {
	a := newAPI(t)
	alice, bob := uuid.New(), uuid.New()

	rec := a.do(alice, http.MethodPost, "/api/v1/matches/not-a-uuid/session", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(alice, http.MethodPost, "/api/v1/matches/"+uuid.NewString()+"/session", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	session := a.session(alice, bob)

	rec = a.do(uuid.New(), http.MethodPost, "/api/v1/matches/"+session.MatchID.String()+"/session", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = a.do(bob, http.MethodPost, "/api/v1/matches/"+session.MatchID.String()+"/session", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, session.ID, decode[domain.ChatSession](t, rec).ID)
}

func TestMessagesEndpoints(t *testing.T) {
	a := newAPI(t)
	alice, bob := uuid.New(), uuid.New()
	session := a.session(alice, bob)
	base := "/api/v1/sessions/" + session.ID.String()

	for _, c := range []string{"one", "two", "three"} {
		rec := a.do(alice, http.MethodPost, base+"/messages", map[string]string{"content": c})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := a.do(alice, http.MethodPost, base+"/messages", map[string]string{"content": "x", "kind": "video"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(uuid.New(), http.MethodPost, base+"/messages", map[string]string{"content": "intruder"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = a.do(bob, http.MethodGet, base+"/messages?limit=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[domain.MessagePage](t, rec)
	require.Len(t, page.Messages, 2)
	require.NotNil(t, page.NextCursor)

	q := url.Values{}
	q.Set("after_ts", page.NextCursor.Timestamp.Format(time.RFC3339Nano))
	q.Set("after_id", page.NextCursor.ID.String())
	rec = a.do(bob, http.MethodGet, base+"/messages?"+q.Encode(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page = decode[domain.MessagePage](t, rec)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, "three", page.Messages[0].Content)
	assert.Nil(t, page.NextCursor)

	rec = a.do(bob, http.MethodGet, base+"/messages?after_ts=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(bob, http.MethodPost, base+"/read", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"marked":3}`, rec.Body.String())

	rec = a.do(bob, http.MethodGet, "/api/v1/sessions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	sums := decode[[]domain.SessionSummary](t, rec)
	require.Len(t, sums, 1)
	assert.Equal(t, 0, sums[0].UnreadCount)
	assert.Equal(t, "three", sums[0].LastMessage.Content)
}
