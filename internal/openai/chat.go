package openai

import (
	"context"
	"errors"

	openai "github.com/sashabaranov/go-openai"
	"github.com/talentboard/supportbot/internal/domain"
)

const (
	// DefaultChatModel is used when no chat model is configured
	DefaultChatModel = openai.GPT4oMini
	// DefaultChatTemperature keeps support answers close to the provided context
	DefaultChatTemperature = 0.2
)

// ChatAPI is the subset of the OpenAI client used for generation
type ChatAPI interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// ChatGenerator produces answers with the chat completions endpoint
type ChatGenerator struct {
	api         ChatAPI
	model       string
	temperature float32
	maxTokens   int
}

// NewChatGenerator creates a ChatGenerator. A missing API key is a
// configuration error.
func NewChatGenerator(cfg Config) (*ChatGenerator, error) {
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	return newChatGenerator(newAPIClient(cfg), cfg), nil
}

func newChatGenerator(api ChatAPI, cfg Config) *ChatGenerator {
	model := cfg.ChatModel
	if model == "" {
		model = DefaultChatModel
	}
	temperature := cfg.ChatTemperature
	if temperature == 0 {
		temperature = DefaultChatTemperature
	}
	return &ChatGenerator{
		api:         api,
		model:       model,
		temperature: temperature,
		maxTokens:   cfg.ChatMaxTokens,
	}
}

// Generate sends the conversation and returns the first choice's content,
// either as plain text or as its list of parts.
func (g *ChatGenerator) Generate(ctx context.Context, messages []domain.Turn) (domain.GeneratedContent, error) {
	req := openai.ChatCompletionRequest{
		Model:       g.model,
		Messages:    make([]openai.ChatCompletionMessage, 0, len(messages)),
		Temperature: g.temperature,
		MaxTokens:   g.maxTokens,
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    chatRole(m.Role),
			Content: m.Content,
		})
	}

	resp, err := g.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return domain.GeneratedContent{}, err
	}
	if len(resp.Choices) == 0 {
		return domain.GeneratedContent{}, errors.New("chat completion returned no choices")
	}

	msg := resp.Choices[0].Message
	content := domain.GeneratedContent{Text: msg.Content}
	for _, part := range msg.MultiContent {
		content.Parts = append(content.Parts, domain.ContentPart{
			Type: string(part.Type),
			Text: part.Text,
		})
	}
	return content, nil
}

func chatRole(r domain.Role) string {
	switch r {
	case domain.RoleSystem:
		return openai.ChatMessageRoleSystem
	case domain.RoleAssistant:
		return openai.ChatMessageRoleAssistant
	default:
		return openai.ChatMessageRoleUser
	}
}
