package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/talentboard/supportbot/internal/domain"
	"github.com/talentboard/supportbot/internal/metrics"
	"github.com/talentboard/supportbot/internal/telemetry"
	"go.uber.org/zap"
)

const noContextMarker = "No relevant context provided."

// DefaultSupportContact is the fallback channel offered when the assistant is unsure.
const DefaultSupportContact = "support@talentboard.io"

// Generator invokes a generative chat model.
type Generator interface {
	Generate(ctx context.Context, messages []domain.Turn) (domain.GeneratedContent, error)
}

// ChunkRetriever returns the chunks most relevant to a question.
type ChunkRetriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]domain.ScoredChunk, error)
}

// AnswerInput is a single chat request.
type AnswerInput struct {
	Question string
	TopK     int
	History  []domain.Turn
}

// AnswerService answers support questions from retrieved knowledge.
type AnswerService struct {
	retriever      ChunkRetriever
	generator      Generator
	supportContact string
	log            *zap.Logger
}

// NewAnswerService creates an AnswerService.
func NewAnswerService(retriever ChunkRetriever, generator Generator, supportContact string, log *zap.Logger) *AnswerService {
	if supportContact == "" {
		supportContact = DefaultSupportContact
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &AnswerService{
		retriever:      retriever,
		generator:      generator,
		supportContact: supportContact,
		log:            log,
	}
}

// Answer retrieves context for the question, condenses history and asks the
// generative model. A failed generation returns an error, never a partial answer.
func (s *AnswerService) Answer(ctx context.Context, input AnswerInput) (*domain.Answer, error) {
	question := strings.TrimSpace(input.Question)
	if question == "" {
		return nil, domain.ErrEmptyQuestion
	}
	topK := input.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}

	ctx, span := telemetry.StartSpan(ctx, "answer", telemetry.SpanAttributes{Operation: "answer"})
	defer span.End()

	sources, err := s.retriever.Retrieve(ctx, question, topK)
	if err != nil {
		span.SetError(err)
		metrics.AnswersTotal.WithLabelValues("retrieval_error").Inc()
		return nil, fmt.Errorf("failed to retrieve context: %w", err)
	}

	messages := s.buildMessages(question, sources, input.History)

	content, err := s.generator.Generate(ctx, messages)
	if err != nil {
		span.SetError(err)
		metrics.AnswersTotal.WithLabelValues("generation_error").Inc()
		return nil, fmt.Errorf("failed to generate answer: %w", err)
	}

	answer := strings.TrimSpace(content.String())
	if answer == "" {
		metrics.AnswersTotal.WithLabelValues("empty").Inc()
		return nil, domain.ErrEmptyGeneration
	}

	metrics.AnswersTotal.WithLabelValues("ok").Inc()
	s.log.Debug("answer generated",
		zap.Int("sources", len(sources)),
		zap.Int("history_turns", len(input.History)),
	)

	return &domain.Answer{Answer: answer, Sources: sources}, nil
}

func (s *AnswerService) buildMessages(question string, sources []domain.ScoredChunk, history []domain.Turn) []domain.Turn {
	condensed := CondenseHistory(history)
	messages := make([]domain.Turn, 0, len(condensed)+2)
	messages = append(messages, domain.Turn{
		Role:    domain.RoleSystem,
		Content: buildSystemPrompt(buildContextBlock(sources), s.supportContact),
	})
	messages = append(messages, condensed...)
	messages = append(messages, domain.Turn{Role: domain.RoleUser, Content: question})
	return messages
}

func buildContextBlock(sources []domain.ScoredChunk) string {
	if len(sources) == 0 {
		return noContextMarker
	}
	parts := make([]string, 0, len(sources))
	for i, src := range sources {
		parts = append(parts, fmt.Sprintf("Source %d (type: %s):\n%s", i+1, src.SourceType, src.Text))
	}
	return strings.Join(parts, "\n\n")
}

func buildSystemPrompt(contextBlock, supportContact string) string {
	var b strings.Builder
	b.WriteString("You are the support assistant for TalentBoard, a job board where companies post jobs, ")
	b.WriteString("recruiters manage profiles and video pitches, and candidates apply and message employers.\n")
	b.WriteString("Answer only questions about TalentBoard: accounts, job postings, applications, messaging, ")
	b.WriteString("subscriptions, company and recruiter profiles, and video pitches. Politely decline anything else.\n")
	b.WriteString("Use the context below as your source of truth. Do not invent features, prices or policies.\n")
	fmt.Fprintf(&b, "If you are not sure, say so and suggest contacting %s.\n\n", supportContact)
	b.WriteString("Context:\n")
	b.WriteString(contextBlock)
	return b.String()
}
