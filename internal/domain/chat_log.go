package domain

import (
	"fmt"
	"time"
)

// ChatLogSource is one chunk that grounded a logged answer.
type ChatLogSource struct {
	ChunkID    string     `json:"chunk_id"`
	SourceType SourceType `json:"source_type"`
	SourceID   string     `json:"source_id"`
	Score      float64    `json:"score"`
}

// ChatLog records an answered question for support analytics. Grounded is
// false when retrieval found nothing and the model answered without context.
type ChatLog struct {
	ID           string
	Question     string
	TopK         int
	HistoryTurns int
	Sources      []ChatLogSource
	Grounded     bool
	DurationMs   int64
	Helpful      *bool
	FeedbackAt   *time.Time
	CreatedAt    time.Time
}

// ChatLogFilter narrows a chat log listing.
type ChatLogFilter struct {
	// UngroundedOnly keeps questions answered without retrieved context.
	UngroundedOnly bool
	// Helpful keeps entries with this feedback value when set.
	Helpful *bool
}

// Matches reports whether l passes the filter.
func (f ChatLogFilter) Matches(l *ChatLog) bool {
	if f.UngroundedOnly && l.Grounded {
		return false
	}
	if f.Helpful != nil && (l.Helpful == nil || *l.Helpful != *f.Helpful) {
		return false
	}
	return true
}

// NewChatLog builds a ChatLog from an answer's sources.
func NewChatLog(id, question string, topK, historyTurns int, sources []ScoredChunk, duration time.Duration, createdAt time.Time) *ChatLog {
	logged := make([]ChatLogSource, 0, len(sources))
	for _, s := range sources {
		logged = append(logged, ChatLogSource{
			ChunkID:    s.ID,
			SourceType: s.SourceType,
			SourceID:   s.SourceID,
			Score:      s.Score,
		})
	}
	return &ChatLog{
		ID:           id,
		Question:     question,
		TopK:         topK,
		HistoryTurns: historyTurns,
		Sources:      logged,
		Grounded:     len(logged) > 0,
		DurationMs:   duration.Milliseconds(),
		CreatedAt:    createdAt,
	}
}

// ValidateChatLog validates a ChatLog instance
func ValidateChatLog(l *ChatLog) error {
	if l == nil {
		return fmt.Errorf("chat log cannot be nil")
	}
	if l.ID == "" {
		return fmt.Errorf("chat log ID is required")
	}
	if l.Question == "" {
		return fmt.Errorf("chat log Question is required")
	}
	if l.TopK < 0 || l.HistoryTurns < 0 || l.DurationMs < 0 {
		return fmt.Errorf("chat log counters cannot be negative")
	}
	return nil
}
