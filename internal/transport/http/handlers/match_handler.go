package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/vedran77/ontomatch/internal/service"
	"github.com/vedran77/ontomatch/internal/transport/http/middleware"
	"github.com/vedran77/ontomatch/pkg/validator"
)

type MatchHandler struct {
	matchService *service.MatchService
	chatService  *service.ChatService
}

func NewMatchHandler(matchService *service.MatchService, chatService *service.ChatService) *MatchHandler {
	return &MatchHandler{matchService: matchService, chatService: chatService}
}

func (h *MatchHandler) RegisterInterest(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var input struct {
		TargetID uuid.UUID `json:"target_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}
	if errs := validator.ValidateInterest(userID, input.TargetID); errs.HasErrors() {
		writeValidationErrors(w, errs)
		return
	}

	res, err := h.matchService.RegisterInterest(r.Context(), userID, input.TargetID)
	if err != nil {
		writeServiceError(w, "register interest", err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

func (h *MatchHandler) ListIncoming(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	edges, err := h.matchService.ListIncomingInterests(r.Context(), userID)
	if err != nil {
		writeServiceError(w, "list incoming interests", err)
		return
	}

	writeJSON(w, http.StatusOK, edges)
}

func (h *MatchHandler) ListOutgoing(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	edges, err := h.matchService.ListOutgoingInterests(r.Context(), userID)
	if err != nil {
		writeServiceError(w, "list outgoing interests", err)
		return
	}

	writeJSON(w, http.StatusOK, edges)
}

func (h *MatchHandler) Candidates(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil {
			limit = l
		}
	}

	ids, err := h.matchService.Candidates(r.Context(), userID, limit)
	if err != nil {
		writeServiceError(w, "list candidates", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"user_ids": ids})
}

func (h *MatchHandler) ListMatches(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	matches, err := h.matchService.ListMatches(r.Context(), userID)
	if err != nil {
		writeServiceError(w, "list matches", err)
		return
	}

	writeJSON(w, http.StatusOK, matches)
}

func (h *MatchHandler) GetOrCreateSession(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	matchID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid match ID")
		return
	}

	session, err := h.chatService.GetOrCreateSession(r.Context(), userID, matchID)
	if err != nil {
		writeServiceError(w, "get or create session", err)
		return
	}

	writeJSON(w, http.StatusOK, session)
}

// Register mounts the match routes behind auth.
func (h *MatchHandler) Register(mux *http.ServeMux, auth func(http.Handler) http.Handler) {
	mux.Handle("POST /api/v1/interests", auth(http.HandlerFunc(h.RegisterInterest)))
	mux.Handle("GET /api/v1/interests/incoming", auth(http.HandlerFunc(h.ListIncoming)))
	mux.Handle("GET /api/v1/interests/outgoing", auth(http.HandlerFunc(h.ListOutgoing)))
	mux.Handle("GET /api/v1/candidates", auth(http.HandlerFunc(h.Candidates)))
	mux.Handle("GET /api/v1/matches", auth(http.HandlerFunc(h.ListMatches)))
	mux.Handle("POST /api/v1/matches/{id}/session", auth(http.HandlerFunc(h.GetOrCreateSession)))
}
