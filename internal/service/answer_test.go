package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/talentboard/supportbot/internal/domain"
	"github.com/talentboard/supportbot/internal/repository/memory"
	"go.uber.org/zap/zaptest"
)

func TestAnswerService_EmptyStoreUsesFallbackContext(t *testing.T) {
	store := memory.NewChunkStore()
	retriever := NewRetriever(&fakeEmbedder{}, store, store, zaptest.NewLogger(t))
	generator := new(MockGenerator)
	svc := NewAnswerService(retriever, generator, "", zaptest.NewLogger(t))

	generator.On("Generate", mock.Anything, mock.MatchedBy(func(msgs []domain.Turn) bool {
		return len(msgs) == 2 &&
			msgs[0].Role == domain.RoleSystem &&
			strings.Contains(msgs[0].Content, "No relevant context provided") &&
			strings.Contains(msgs[0].Content, DefaultSupportContact) &&
			msgs[1] == domain.Turn{Role: domain.RoleUser, Content: "How do I reset my password?"}
	})).Return(domain.GeneratedContent{Text: "Use the 'Forgot password' link on the login page."}, nil)

	answer, err := svc.Answer(context.Background(), AnswerInput{Question: "How do I reset my password?"})
	require.NoError(t, err)
	assert.NotEmpty(t, answer.Answer)
	assert.Empty(t, answer.Sources)
	generator.AssertExpectations(t)
}

func TestAnswerService_BuildsContextAndHistory(t *testing.T) {
	retriever := new(MockChunkRetriever)
	generator := new(MockGenerator)
	svc := NewAnswerService(retriever, generator, "help@example.com", zaptest.NewLogger(t))

	sources := []domain.ScoredChunk{
		{KnowledgeChunk: domain.KnowledgeChunk{SourceType: domain.SourceTypeFAQ, Text: "Plans start at $49."}, Score: 0.9},
		{KnowledgeChunk: domain.KnowledgeChunk{SourceType: domain.SourceTypeBlog, Text: "We launched annual billing."}, Score: 0.7},
	}
	retriever.On("Retrieve", mock.Anything, "What does it cost?", 3).Return(sources, nil)

	var captured []domain.Turn
	generator.On("Generate", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { captured = args.Get(1).([]domain.Turn) }).
		Return(domain.GeneratedContent{Parts: []domain.ContentPart{
			{Type: "text", Text: "Plans start "},
			{Type: "image_url", Text: "ignored"},
			{Text: "at $49."},
		}}, nil)

	answer, err := svc.Answer(context.Background(), AnswerInput{
		Question: "  What does it cost?  ",
		TopK:     3,
		History:  makeTurns(6),
	})
	require.NoError(t, err)
	assert.Equal(t, "Plans start at $49.", answer.Answer)
	assert.Equal(t, sources, answer.Sources)

	require.Len(t, captured, 6)
	assert.Contains(t, captured[0].Content,
		"Context:\nSource 1 (type: faq):\nPlans start at $49.\n\nSource 2 (type: blog):\nWe launched annual billing.")
	assert.Contains(t, captured[0].Content, "help@example.com")
	assert.Equal(t, domain.RoleSystem, captured[1].Role)
	assert.Contains(t, captured[1].Content, "Early conversation summary")
	assert.Equal(t, domain.Turn{Role: domain.RoleUser, Content: "What does it cost?"}, captured[5])
}

func TestAnswerService_EmptyQuestion(t *testing.T) {
	retriever := new(MockChunkRetriever)
	generator := new(MockGenerator)
	svc := NewAnswerService(retriever, generator, "", nil)

	_, err := svc.Answer(context.Background(), AnswerInput{Question: "   "})
	assert.ErrorIs(t, err, domain.ErrEmptyQuestion)
	retriever.AssertNotCalled(t, "Retrieve", mock.Anything, mock.Anything, mock.Anything)
}

func TestAnswerService_GenerationFailure(t *testing.T) {
	retriever := new(MockChunkRetriever)
	generator := new(MockGenerator)
	svc := NewAnswerService(retriever, generator, "", nil)

	retriever.On("Retrieve", mock.Anything, "q", DefaultTopK).Return([]domain.ScoredChunk{}, nil)
	generator.On("Generate", mock.Anything, mock.Anything).Return(domain.GeneratedContent{}, errors.New("503 from provider"))

	answer, err := svc.Answer(context.Background(), AnswerInput{Question: "q"})
	assert.Nil(t, answer)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to generate answer")
}

func TestAnswerService_EmptyGeneration(t *testing.T) {
	retriever := new(MockChunkRetriever)
	generator := new(MockGenerator)
	svc := NewAnswerService(retriever, generator, "", nil)

	retriever.On("Retrieve", mock.Anything, "q", DefaultTopK).Return([]domain.ScoredChunk{}, nil)
	generator.On("Generate", mock.Anything, mock.Anything).Return(domain.GeneratedContent{Text: "  "}, nil)

	_, err := svc.Answer(context.Background(), AnswerInput{Question: "q"})
	assert.ErrorIs(t, err, domain.ErrEmptyGeneration)
}

func TestAnswerService_RetrievalFailure(t *testing.T) {
	retriever := new(MockChunkRetriever)
	generator := new(MockGenerator)
	svc := NewAnswerService(retriever, generator, "", nil)

	retriever.On("Retrieve", mock.Anything, "q", DefaultTopK).Return(nil, errors.New("embed failed"))

	_, err := svc.Answer(context.Background(), AnswerInput{Question: "q"})
	require.Error(t, err)
	generator.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
}

func TestBuildContextBlock(t *testing.T) {
	assert.Equal(t, "No relevant context provided.", buildContextBlock(nil))
	block := buildContextBlock([]domain.ScoredChunk{
		{KnowledgeChunk: domain.KnowledgeChunk{SourceType: domain.SourceTypeCustomQA, Text: "one"}},
	})
	assert.Equal(t, "Source 1 (type: custom-qa):\none", block)
}
