package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/talentboard/supportbot/internal/domain"
	"github.com/talentboard/supportbot/internal/pagination"
)

// ChatLogStore keeps chat logs in memory.
type ChatLogStore struct {
	mu   sync.Mutex
	logs map[string]*domain.ChatLog
}

// NewChatLogStore creates an empty ChatLogStore.
func NewChatLogStore() *ChatLogStore {
	return &ChatLogStore{logs: make(map[string]*domain.ChatLog)}
}

func (s *ChatLogStore) Create(_ context.Context, log *domain.ChatLog) error {
	if err := domain.ValidateChatLog(log); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs[log.ID] = cloneChatLog(log)
	return nil
}

func (s *ChatLogStore) RecordFeedback(_ context.Context, id string, helpful bool, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	log, ok := s.logs[id]
	if !ok {
		return domain.ErrChatLogNotFound
	}
	log.Helpful = &helpful
	log.FeedbackAt = &at
	return nil
}

// List returns up to limit logs after cursor, newest first.
func (s *ChatLogStore) List(ctx context.Context, filter domain.ChatLogFilter, cursor *pagination.Cursor, limit int) ([]*domain.ChatLog, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*domain.ChatLog
	for _, log := range s.logs {
		if filter.Matches(log) && cursor.After(log.ID, log.CreatedAt) {
			out = append(out, cloneChatLog(log))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func cloneChatLog(l *domain.ChatLog) *domain.ChatLog {
	cp := *l
	cp.Sources = append([]domain.ChatLogSource(nil), l.Sources...)
	if l.Helpful != nil {
		v := *l.Helpful
		cp.Helpful = &v
	}
	if l.FeedbackAt != nil {
		v := *l.FeedbackAt
		cp.FeedbackAt = &v
	}
	return &cp
}
