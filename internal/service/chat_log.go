package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/talentboard/supportbot/internal/domain"
	"github.com/talentboard/supportbot/internal/metrics"
	"github.com/talentboard/supportbot/internal/pagination"
)

// ChatLogRepository persists chat logs and their feedback.
type ChatLogRepository interface {
	Create(ctx context.Context, log *domain.ChatLog) error
	// RecordFeedback returns domain.ErrChatLogNotFound for an unknown id.
	RecordFeedback(ctx context.Context, id string, helpful bool, at time.Time) error
	// List returns up to limit entries after cursor, newest first.
	List(ctx context.Context, filter domain.ChatLogFilter, cursor *pagination.Cursor, limit int) ([]*domain.ChatLog, error)
}

// ChatLogEntry is an answered chat request to record.
type ChatLogEntry struct {
	Question     string
	TopK         int
	HistoryTurns int
	Sources      []domain.ScoredChunk
	Duration     time.Duration
}

// ChatLogService records answered questions and the feedback users leave on them.
type ChatLogService struct {
	repo    ChatLogRepository
	uuidGen UUIDGenerator
	now     func() time.Time
}

func NewChatLogService(repo ChatLogRepository, uuidGen UUIDGenerator) *ChatLogService {
	if uuidGen == nil {
		uuidGen = &DefaultUUIDGenerator{}
	}
	return &ChatLogService{
		repo:    repo,
		uuidGen: uuidGen,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Record stores entry and returns the new log ID.
func (s *ChatLogService) Record(ctx context.Context, entry ChatLogEntry) (string, error) {
	log := domain.NewChatLog(
		s.uuidGen.NewString(),
		strings.TrimSpace(entry.Question),
		entry.TopK,
		entry.HistoryTurns,
		entry.Sources,
		entry.Duration,
		s.now(),
	)
	if err := domain.ValidateChatLog(log); err != nil {
		return "", domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid chat log", err)
	}
	if err := s.repo.Create(ctx, log); err != nil {
		return "", err
	}
	return log.ID, nil
}

// Feedback marks a logged answer as helpful or not. Later feedback overwrites earlier.
func (s *ChatLogService) Feedback(ctx context.Context, id string, helpful bool) error {
	if strings.TrimSpace(id) == "" {
		return domain.ErrMissingRequiredField
	}
	if err := s.repo.RecordFeedback(ctx, id, helpful, s.now()); err != nil {
		return err
	}
	metrics.ChatFeedbackTotal.WithLabelValues(feedbackLabel(helpful)).Inc()
	return nil
}

// List returns one page of logs, newest first.
func (s *ChatLogService) List(ctx context.Context, filter domain.ChatLogFilter, cursor string, limit int) (*pagination.PageResult[*domain.ChatLog], error) {
	decoded, err := pagination.DecodeCursor(cursor)
	if err != nil {
		if errors.Is(err, pagination.ErrInvalidCursor) {
			return nil, domain.ErrInvalidCursor
		}
		return nil, err
	}

	limit = pagination.ClampLimit(limit)
	logs, err := s.repo.List(ctx, filter, decoded, limit+1)
	if err != nil {
		return nil, err
	}
	return pagination.NewPage(logs, limit,
		func(l *domain.ChatLog) string { return l.ID },
		func(l *domain.ChatLog) time.Time { return l.CreatedAt },
	), nil
}

func feedbackLabel(helpful bool) string {
	if helpful {
		return "helpful"
	}
	return "unhelpful"
}
