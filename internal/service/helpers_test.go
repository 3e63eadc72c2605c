package service

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"

	"github.com/stretchr/testify/mock"
	"github.com/talentboard/supportbot/internal/domain"
)

const fakeDims = 32

// fakeEmbedder hashes words into a bag-of-words vector so that texts sharing
// words have positive cosine similarity.
type fakeEmbedder struct {
	mu       sync.Mutex
	docCalls int
	docTexts []string
	err      error
}

func embedWords(text string) []float32 {
	v := make([]float32, fakeDims)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,?!:;")
		if w == "" {
			continue
		}
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		v[h.Sum32()%fakeDims]++
	}
	// keep the vector non-zero for texts without words
	v[fakeDims-1] += 0.01
	return v
}

func (f *fakeEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docCalls++
	if f.err != nil {
		return nil, f.err
	}
	f.docTexts = append(f.docTexts, texts...)
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = embedWords(t)
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return embedWords(text), nil
}

func (f *fakeEmbedder) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.docCalls
}

// MockGenerator mocks the generative model
type MockGenerator struct {
	mock.Mock
}

func (m *MockGenerator) Generate(ctx context.Context, messages []domain.Turn) (domain.GeneratedContent, error) {
	args := m.Called(ctx, messages)
	return args.Get(0).(domain.GeneratedContent), args.Error(1)
}

// MockChunkRetriever mocks retrieval for the answer service
type MockChunkRetriever struct {
	mock.Mock
}

func (m *MockChunkRetriever) Retrieve(ctx context.Context, query string, topK int) ([]domain.ScoredChunk, error) {
	args := m.Called(ctx, query, topK)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.ScoredChunk), args.Error(1)
}

// MockVectorSearcher mocks the approximate search stage
type MockVectorSearcher struct {
	mock.Mock
}

func (m *MockVectorSearcher) SearchSimilar(ctx context.Context, embedding []float32, topK, candidates int) ([]domain.ScoredChunk, error) {
	args := m.Called(ctx, embedding, topK, candidates)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.ScoredChunk), args.Error(1)
}

// MockChunkScanner mocks the exact scan stage
type MockChunkScanner struct {
	mock.Mock
}

func (m *MockChunkScanner) ListAll(ctx context.Context) ([]*domain.KnowledgeChunk, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.KnowledgeChunk), args.Error(1)
}

// MockQueryEmbedder mocks query embedding
type MockQueryEmbedder struct {
	mock.Mock
}

func (m *MockQueryEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

type sequentialUUID struct {
	mu sync.Mutex
	n  int
}

func (g *sequentialUUID) NewString() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("chunk-%d", g.n)
}
