package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/talentboard/supportbot/internal/domain"
	"github.com/talentboard/supportbot/internal/pagination"
)

type MockChatLogRepository struct {
	mock.Mock
}

func (m *MockChatLogRepository) Create(ctx context.Context, log *domain.ChatLog) error {
	return m.Called(ctx, log).Error(0)
}

func (m *MockChatLogRepository) RecordFeedback(ctx context.Context, id string, helpful bool, at time.Time) error {
	return m.Called(ctx, id, helpful, at).Error(0)
}

func (m *MockChatLogRepository) List(ctx context.Context, filter domain.ChatLogFilter, cursor *pagination.Cursor, limit int) ([]*domain.ChatLog, error) {
	args := m.Called(ctx, filter, cursor, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.ChatLog), args.Error(1)
}

type fixedUUID string

func (f fixedUUID) NewString() string { return string(f) }

func newTestChatLogService(repo ChatLogRepository) *ChatLogService {
	svc := NewChatLogService(repo, fixedUUID("log-1"))
	svc.now = func() time.Time { return time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC) }
	return svc
}

func TestChatLogService_Record(t *testing.T) {
	repo := new(MockChatLogRepository)
	svc := newTestChatLogService(repo)

	var stored *domain.ChatLog
	repo.On("Create", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { stored = args.Get(1).(*domain.ChatLog) }).
		Return(nil)

	id, err := svc.Record(context.Background(), ChatLogEntry{
		Question:     "  How do I post a job?  ",
		TopK:         5,
		HistoryTurns: 4,
		Sources: []domain.ScoredChunk{{
			KnowledgeChunk: domain.KnowledgeChunk{ID: "c1", SourceType: domain.SourceTypeContentPage, SourceID: "p1"},
			Score:          0.7,
		}},
		Duration: 2 * time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, "log-1", id)

	require.NotNil(t, stored)
	assert.Equal(t, "How do I post a job?", stored.Question)
	assert.Equal(t, 4, stored.HistoryTurns)
	assert.True(t, stored.Grounded)
	assert.Equal(t, int64(2000), stored.DurationMs)
	assert.Equal(t, time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC), stored.CreatedAt)
}

func TestChatLogService_RecordRejectsEmptyQuestion(t *testing.T) {
	repo := new(MockChatLogRepository)
	_, err := newTestChatLogService(repo).Record(context.Background(), ChatLogEntry{Question: "  "})

	assert.Equal(t, domain.ErrCodeValidation, domain.ErrorCode(err))
	repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestChatLogService_Feedback(t *testing.T) {
	repo := new(MockChatLogRepository)
	svc := newTestChatLogService(repo)

	repo.On("RecordFeedback", mock.Anything, "log-1", false, mock.Anything).Return(nil)
	repo.On("RecordFeedback", mock.Anything, "missing", true, mock.Anything).Return(domain.ErrChatLogNotFound)

	require.NoError(t, svc.Feedback(context.Background(), "log-1", false))
	assert.ErrorIs(t, svc.Feedback(context.Background(), "missing", true), domain.ErrChatLogNotFound)
	assert.ErrorIs(t, svc.Feedback(context.Background(), "", true), domain.ErrMissingRequiredField)
	repo.AssertExpectations(t)
}

func TestChatLogService_List(t *testing.T) {
	repo := new(MockChatLogRepository)
	svc := newTestChatLogService(repo)

	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	logs := []*domain.ChatLog{
		{ID: "c", CreatedAt: base.Add(2 * time.Second)},
		{ID: "b", CreatedAt: base.Add(time.Second)},
		{ID: "a", CreatedAt: base},
	}
	filter := domain.ChatLogFilter{UngroundedOnly: true}
	repo.On("List", mock.Anything, filter, (*pagination.Cursor)(nil), 3).Return(logs, nil)

	page, err := svc.List(context.Background(), filter, "", 2)
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.True(t, page.HasMore)

	cursor, err := pagination.DecodeCursor(page.Cursor)
	require.NoError(t, err)
	assert.Equal(t, "b", cursor.LastID)

	repo.On("List", mock.Anything, domain.ChatLogFilter{}, cursor, pagination.DefaultLimit+1).Return(logs[2:], nil)
	next, err := svc.List(context.Background(), domain.ChatLogFilter{}, page.Cursor, 0)
	require.NoError(t, err)
	assert.Len(t, next.Items, 1)
	assert.False(t, next.HasMore)
}

func TestChatLogService_ListErrors(t *testing.T) {
	repo := new(MockChatLogRepository)
	svc := newTestChatLogService(repo)

	_, err := svc.List(context.Background(), domain.ChatLogFilter{}, "%%%", 10)
	assert.ErrorIs(t, err, domain.ErrInvalidCursor)

	repo.On("List", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("db down"))
	_, err = svc.List(context.Background(), domain.ChatLogFilter{}, "", 10)
	assert.EqualError(t, err, "db down")
}
