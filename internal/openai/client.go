package openai

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

const (
	// DefaultEmbeddingModel is the OpenAI model used for generating embeddings
	DefaultEmbeddingModel = openai.SmallEmbedding3
	// DefaultEmbeddingDimensions is the expected dimension of embeddings
	DefaultEmbeddingDimensions = 1536
	// MaxBatchInputs caps the number of texts sent in one embeddings request
	MaxBatchInputs = 256
	// DefaultMaxBatchTokens caps the estimated tokens sent in one embeddings request
	DefaultMaxBatchTokens = 100_000
)

var (
	// ErrEmptyText is returned when text is empty
	ErrEmptyText = errors.New("text cannot be empty")
	// ErrWrongDimensions is returned when embedding has wrong dimensions
	ErrWrongDimensions = errors.New("embedding has wrong dimensions")
	// ErrNoAPIKey is returned when no OpenAI API key is configured
	ErrNoAPIKey = errors.New("SUPPORTBOT_OPENAI_API_KEY not set")
)

// EmbeddingAPI defines the interface for embedding generation
type EmbeddingAPI interface {
	CreateEmbeddings(ctx context.Context, inputs []string) ([][]float32, error)
}

type OpenAIAdapter struct {
	client     *openai.Client
	model      openai.EmbeddingModel
	dimensions int
}

func NewOpenAIAdapter(client *openai.Client, model openai.EmbeddingModel, dimensions int) *OpenAIAdapter {
	if model == "" {
		model = DefaultEmbeddingModel
	}
	return &OpenAIAdapter{
		client:     client,
		model:      model,
		dimensions: dimensions,
	}
}

// CreateEmbeddings calls the OpenAI API to create one embedding per input
func (a *OpenAIAdapter) CreateEmbeddings(ctx context.Context, inputs []string) ([][]float32, error) {
	req := openai.EmbeddingRequest{
		Input: inputs,
		Model: a.model,
	}
	// ada-002 rejects the dimensions parameter
	if a.model != openai.AdaEmbeddingV2 && a.dimensions > 0 {
		req.Dimensions = a.dimensions
	}

	resp, err := a.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(resp.Data) != len(inputs) {
		return nil, fmt.Errorf("embedding count mismatch: expected %d, got %d", len(inputs), len(resp.Data))
	}

	out := make([][]float32, len(inputs))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, fmt.Errorf("embedding index %d out of range", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}

type Config struct {
	APIKey              string
	BaseURL             string
	EmbeddingModel      openai.EmbeddingModel
	EmbeddingDimensions int
	MaxBatchTokens      int
	ChatModel           string
	ChatTemperature     float32
	ChatMaxTokens       int
}

func newAPIClient(cfg Config) *openai.Client {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return openai.NewClientWithConfig(clientCfg)
}

// Client embeds chunk texts and queries
type Client struct {
	api        EmbeddingAPI
	model      string
	dimensions int
	maxTokens  int
	tokens     tokenCounter
}

// NewClient creates an embedding client. A missing API key is a
// configuration error.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	dimensions := cfg.EmbeddingDimensions
	if dimensions <= 0 {
		dimensions = DefaultEmbeddingDimensions
	}
	model := cfg.EmbeddingModel
	if model == "" {
		model = DefaultEmbeddingModel
	}
	return newClient(NewOpenAIAdapter(newAPIClient(cfg), model, dimensions), string(model), dimensions, cfg.MaxBatchTokens), nil
}

func newClient(api EmbeddingAPI, model string, dimensions, maxTokens int) *Client {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxBatchTokens
	}
	return &Client{
		api:        api,
		model:      model,
		dimensions: dimensions,
		maxTokens:  maxTokens,
		tokens:     newTokenCounter(),
	}
}

// Model returns the embedding model name
func (c *Client) Model() string { return c.model }

// Dimensions returns the expected embedding length
func (c *Client) Dimensions() int { return c.dimensions }

// EmbedQuery embeds a single search query
func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyText
	}
	out, err := c.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EmbedDocuments embeds texts in order. Requests are split so that none
// exceeds MaxBatchInputs inputs or the token budget.
func (c *Client) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	for _, t := range texts {
		if t == "" {
			return nil, ErrEmptyText
		}
	}

	out := make([][]float32, 0, len(texts))
	for _, batch := range c.batches(texts) {
		embeddings, err := c.api.CreateEmbeddings(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("failed to create embedding: %w", err)
		}
		if len(embeddings) != len(batch) {
			return nil, fmt.Errorf("embedding count mismatch: expected %d, got %d", len(batch), len(embeddings))
		}
		for _, e := range embeddings {
			if len(e) != c.dimensions {
				return nil, fmt.Errorf("%w: expected %d, got %d", ErrWrongDimensions, c.dimensions, len(e))
			}
		}
		out = append(out, embeddings...)
	}
	return out, nil
}

func (c *Client) batches(texts []string) [][]string {
	var (
		batches [][]string
		current []string
		tokens  int
	)
	for _, t := range texts {
		n := c.tokens.Count(t)
		if len(current) > 0 && (len(current) >= MaxBatchInputs || tokens+n > c.maxTokens) {
			batches = append(batches, current)
			current, tokens = nil, 0
		}
		current = append(current, t)
		tokens += n
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}
	return batches
}
