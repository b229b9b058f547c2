package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/ontomatch/internal/domain"
	"github.com/vedran77/ontomatch/internal/service"
	"github.com/vedran77/ontomatch/internal/transport/http/middleware"
	"github.com/vedran77/ontomatch/pkg/validator"
)

type ChatHandler struct {
	chatService     *service.ChatService
	messageService  *service.MessageService
	messageMaxBytes int
}

func NewChatHandler(chatService *service.ChatService, messageService *service.MessageService, messageMaxBytes int) *ChatHandler {
	return &ChatHandler{
		chatService:     chatService,
		messageService:  messageService,
		messageMaxBytes: messageMaxBytes,
	}
}

func (h *ChatHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	sums, err := h.chatService.ListSessions(r.Context(), userID)
	if err != nil {
		writeServiceError(w, "list sessions", err)
		return
	}

	writeJSON(w, http.StatusOK, sums)
}

func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	sessionID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid session ID")
		return
	}

	var input struct {
		Content string `json:"content"`
		Kind    string `json:"kind"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}
	if errs := validator.ValidateMessage(input.Content, input.Kind, h.messageMaxBytes); errs.HasErrors() {
		writeValidationErrors(w, errs)
		return
	}

	msg, err := h.messageService.Send(r.Context(), userID, sessionID, input.Content, input.Kind)
	if err != nil {
		writeServiceError(w, "send message", err)
		return
	}

	writeJSON(w, http.StatusCreated, msg)
}

// ListMessages pages forward through a session. after_ts (RFC 3339) and
// after_id together form the cursor returned as next_cursor.
func (h *ChatHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	sessionID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid session ID")
		return
	}

	q := r.URL.Query()
	var after *domain.Cursor
	if tsStr := q.Get("after_ts"); tsStr != "" {
		ts, err := time.Parse(time.RFC3339Nano, tsStr)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_CURSOR", "Invalid after_ts")
			return
		}
		cursor := domain.Cursor{Timestamp: ts}
		if idStr := q.Get("after_id"); idStr != "" {
			if cursor.ID, err = uuid.Parse(idStr); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_CURSOR", "Invalid after_id")
				return
			}
		}
		after = &cursor
	}

	limit := 0
	if limitStr := q.Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil {
			limit = l
		}
	}

	page, err := h.messageService.List(r.Context(), userID, sessionID, after, limit)
	if err != nil {
		writeServiceError(w, "list messages", err)
		return
	}

	writeJSON(w, http.StatusOK, page)
}

func (h *ChatHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	sessionID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid session ID")
		return
	}

	n, err := h.messageService.MarkRead(r.Context(), userID, sessionID)
	if err != nil {
		writeServiceError(w, "mark read", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int64{"marked": n})
}

// Register mounts the chat routes behind auth.
func (h *ChatHandler) Register(mux *http.ServeMux, auth func(http.Handler) http.Handler) {
	mux.Handle("GET /api/v1/sessions", auth(http.HandlerFunc(h.ListSessions)))
	mux.Handle("GET /api/v1/sessions/{id}/messages", auth(http.HandlerFunc(h.ListMessages)))
	mux.Handle("POST /api/v1/sessions/{id}/messages", auth(http.HandlerFunc(h.SendMessage)))
	mux.Handle("POST /api/v1/sessions/{id}/read", auth(http.HandlerFunc(h.MarkRead)))
}
