package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/talentboard/supportbot/internal/api"
	"github.com/talentboard/supportbot/internal/domain"
	"github.com/talentboard/supportbot/internal/logger"
	"github.com/talentboard/supportbot/internal/service"
	"go.uber.org/zap"
)

// MaxTopK bounds the number of chunks a client may request.
const MaxTopK = 20

type AnswerService interface {
	Answer(ctx context.Context, input service.AnswerInput) (*domain.Answer, error)
}

type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]domain.ScoredChunk, error)
}

// ChatLogRecorder stores answered questions.
type ChatLogRecorder interface {
	Record(ctx context.Context, entry service.ChatLogEntry) (string, error)
}

type ChatHandler struct {
	answers   AnswerService
	retriever Retriever
	logs      ChatLogRecorder
}

func NewChatHandler(answers AnswerService, retriever Retriever) *ChatHandler {
	return &ChatHandler{answers: answers, retriever: retriever}
}

// NewChatHandlerWithLog creates a chat handler that records every answer.
func NewChatHandlerWithLog(answers AnswerService, retriever Retriever, logs ChatLogRecorder) *ChatHandler {
	return &ChatHandler{answers: answers, retriever: retriever, logs: logs}
}

type TurnRequest struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatRequest struct {
	Question string        `json:"question"`
	TopK     int           `json:"top_k,omitempty"`
	History  []TurnRequest `json:"history,omitempty"`
}

type SourceResponse struct {
	ID         string         `json:"id"`
	SourceType string         `json:"source_type"`
	SourceID   string         `json:"source_id,omitempty"`
	ChunkIndex int            `json:"chunk_index"`
	Text       string         `json:"text"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Score      float64        `json:"score"`
}

type ChatResponse struct {
	ChatID  string            `json:"chat_id,omitempty"`
	Answer  string            `json:"answer"`
	Sources []*SourceResponse `json:"sources"`
}

type SearchResponse struct {
	Results []*SourceResponse `json:"results"`
}

// Chat answers a support question using retrieved knowledge.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		api.HandleError(w, domain.ErrEmptyQuestion)
		return
	}

	topK, err := clampTopK(req.TopK)
	if err != nil {
		api.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	history := make([]domain.Turn, 0, len(req.History))
	for i, t := range req.History {
		role := domain.Role(strings.ToLower(strings.TrimSpace(t.Role)))
		if role != domain.RoleUser && role != domain.RoleAssistant {
			api.Error(w, http.StatusBadRequest, "history["+strconv.Itoa(i)+"].role must be user or assistant")
			return
		}
		history = append(history, domain.Turn{Role: role, Content: t.Content})
	}

	start := time.Now()
	answer, err := h.answers.Answer(r.Context(), service.AnswerInput{
		Question: req.Question,
		TopK:     topK,
		History:  history,
	})
	if err != nil {
		handleUpstreamError(w, r, "chat failed", err)
		return
	}

	resp := &ChatResponse{
		Answer:  answer.Answer,
		Sources: toSourceResponses(answer.Sources),
	}
	if h.logs != nil {
		// A lost log entry never fails the answer.
		id, err := h.logs.Record(r.Context(), service.ChatLogEntry{
			Question:     req.Question,
			TopK:         topK,
			HistoryTurns: len(history),
			Sources:      answer.Sources,
			Duration:     time.Since(start),
		})
		if err != nil {
			logger.From(r.Context(), nil).Warn("chat log not recorded", zap.Error(err))
		} else {
			resp.ChatID = id
		}
	}

	api.Success(w, http.StatusOK, resp)
}

// Search runs retrieval only, without generation.
func (h *ChatHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		api.Error(w, http.StatusBadRequest, "q is required")
		return
	}

	topK := 0
	if raw := r.URL.Query().Get("top_k"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			api.Error(w, http.StatusBadRequest, "top_k must be an integer")
			return
		}
		topK = n
	}
	topK, err := clampTopK(topK)
	if err != nil {
		api.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	results, err := h.retriever.Retrieve(r.Context(), query, topK)
	if err != nil {
		handleUpstreamError(w, r, "search failed", err)
		return
	}
	api.Success(w, http.StatusOK, &SearchResponse{Results: toSourceResponses(results)})
}

type topKError string

func (e topKError) Error() string { return string(e) }

func clampTopK(topK int) (int, error) {
	switch {
	case topK == 0:
		return service.DefaultTopK, nil
	case topK < 0:
		return 0, topKError("top_k must be positive")
	case topK > MaxTopK:
		return MaxTopK, nil
	}
	return topK, nil
}

// handleUpstreamError logs the cause and maps unclassified failures to 502:
// at this point they come from the embedding or generation provider.
func handleUpstreamError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	logger.From(r.Context(), nil).Error(msg, zap.Error(err))
	if status := api.DomainErrorToHTTP(err); status == http.StatusInternalServerError {
		api.JSON(w, http.StatusBadGateway, api.ErrorResponse{
			Error: "the assistant is temporarily unavailable",
			Code:  domain.ErrCodeUpstream,
		})
		return
	}
	api.HandleError(w, err)
}

func toSourceResponses(chunks []domain.ScoredChunk) []*SourceResponse {
	out := make([]*SourceResponse, 0, len(chunks))
	for _, c := range chunks {
		out = append(out, &SourceResponse{
			ID:         c.ID,
			SourceType: string(c.SourceType),
			SourceID:   c.SourceID,
			ChunkIndex: c.ChunkIndex,
			Text:       c.Text,
			Metadata:   c.Metadata,
			Score:      c.Score,
		})
	}
	return out
}
