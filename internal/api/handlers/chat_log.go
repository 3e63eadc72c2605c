package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/talentboard/supportbot/internal/api"
	"github.com/talentboard/supportbot/internal/domain"
	"github.com/talentboard/supportbot/internal/pagination"
)

type ChatLogService interface {
	Feedback(ctx context.Context, id string, helpful bool) error
	List(ctx context.Context, filter domain.ChatLogFilter, cursor string, limit int) (*pagination.PageResult[*domain.ChatLog], error)
}

type ChatLogHandler struct {
	svc ChatLogService
}

func NewChatLogHandler(svc ChatLogService) *ChatLogHandler {
	return &ChatLogHandler{svc: svc}
}

type FeedbackRequest struct {
	Helpful *bool `json:"helpful"`
}

type ChatLogResponse struct {
	ID           string                 `json:"id"`
	Question     string                 `json:"question"`
	TopK         int                    `json:"top_k"`
	HistoryTurns int                    `json:"history_turns"`
	Sources      []domain.ChatLogSource `json:"sources"`
	Grounded     bool                   `json:"grounded"`
	DurationMs   int64                  `json:"duration_ms"`
	Helpful      *bool                  `json:"helpful,omitempty"`
	FeedbackAt   *string                `json:"feedback_at,omitempty"`
	CreatedAt    string                 `json:"created_at"`
}

type ChatLogListResponse struct {
	Items   []*ChatLogResponse `json:"items"`
	Cursor  string             `json:"cursor,omitempty"`
	HasMore bool               `json:"has_more"`
}

// Feedback handles POST /chat/{id}/feedback.
func (h *ChatLogHandler) Feedback(w http.ResponseWriter, r *http.Request) {
	var req FeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Helpful == nil {
		api.Error(w, http.StatusBadRequest, "helpful is required")
		return
	}

	if err := h.svc.Feedback(r.Context(), chi.URLParam(r, "id"), *req.Helpful); err != nil {
		api.HandleError(w, err)
		return
	}
	api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
}

// List handles GET /chat/logs.
func (h *ChatLogHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var filter domain.ChatLogFilter
	if raw := q.Get("ungrounded"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			api.Error(w, http.StatusBadRequest, "ungrounded must be a boolean")
			return
		}
		filter.UngroundedOnly = v
	}
	if raw := q.Get("helpful"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			api.Error(w, http.StatusBadRequest, "helpful must be a boolean")
			return
		}
		filter.Helpful = &v
	}

	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			api.Error(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		limit = n
	}

	page, err := h.svc.List(r.Context(), filter, q.Get("cursor"), limit)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	resp := &ChatLogListResponse{
		Items:   make([]*ChatLogResponse, 0, len(page.Items)),
		Cursor:  page.Cursor,
		HasMore: page.HasMore,
	}
	for _, l := range page.Items {
		resp.Items = append(resp.Items, toChatLogResponse(l))
	}
	api.Success(w, http.StatusOK, resp)
}

func toChatLogResponse(l *domain.ChatLog) *ChatLogResponse {
	resp := &ChatLogResponse{
		ID:           l.ID,
		Question:     l.Question,
		TopK:         l.TopK,
		HistoryTurns: l.HistoryTurns,
		Sources:      l.Sources,
		Grounded:     l.Grounded,
		DurationMs:   l.DurationMs,
		Helpful:      l.Helpful,
		CreatedAt:    l.CreatedAt.Format(time.RFC3339),
	}
	if resp.Sources == nil {
		resp.Sources = []domain.ChatLogSource{}
	}
	if l.FeedbackAt != nil {
		s := l.FeedbackAt.Format(time.RFC3339)
		resp.FeedbackAt = &s
	}
	return resp
}
