package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type MockEmbedder struct {
	mock.Mock
}

func (m *MockEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	args := m.Called(ctx, texts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([][]float32), args.Error(1)
}

func (m *MockEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

type fakeStore struct {
	mu     sync.Mutex
	data   map[string][]byte
	ttls   map[string]time.Duration
	getErr error
	setErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (s *fakeStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, false, s.getErr
	}
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *fakeStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.setErr != nil {
		return s.setErr
	}
	s.data[key] = value
	s.ttls[key] = ttl
	return nil
}

func TestQueryEmbeddingCache_HitAfterMiss(t *testing.T) {
	next := new(MockEmbedder)
	st := newFakeStore()
	c := newQueryEmbeddingCache(next, st, "text-embedding-3-small", 0, time.Minute, zaptest.NewLogger(t))

	vec := []float32{0.25, -1.5, 3}
	next.On("EmbedQuery", mock.Anything, "pricing").Return(vec, nil).Once()

	got, err := c.EmbedQuery(context.Background(), "pricing")
	require.NoError(t, err)
	assert.Equal(t, vec, got)

	got, err = c.EmbedQuery(context.Background(), "pricing")
	require.NoError(t, err)
	assert.Equal(t, vec, got)

	next.AssertNumberOfCalls(t, "EmbedQuery", 1)
	assert.Equal(t, time.Minute, st.ttls[c.key("pricing")])
}

func TestQueryEmbeddingCache_KeyIncludesModelAndDimensions(t *testing.T) {
	a := newQueryEmbeddingCache(nil, newFakeStore(), "model-a", 1536, 0, nil)
	b := newQueryEmbeddingCache(nil, newFakeStore(), "model-b", 1536, 0, nil)
	small := newQueryEmbeddingCache(nil, newFakeStore(), "model-a", 512, 0, nil)
	assert.NotEqual(t, a.key("q"), b.key("q"))
	assert.NotEqual(t, a.key("q"), small.key("q"))
	assert.Equal(t, a.key("q"), a.key("q"))
	assert.Equal(t, DefaultQueryTTL, a.ttl)
}

func TestQueryEmbeddingCache_WrongDimensionsAreRefetched(t *testing.T) {
	next := new(MockEmbedder)
	st := newFakeStore()
	c := newQueryEmbeddingCache(next, st, "m", 2, 0, zaptest.NewLogger(t))
	st.data[c.key("q")] = encodeVector([]float32{1, 2, 3})

	next.On("EmbedQuery", mock.Anything, "q").Return([]float32{4, 5}, nil).Once()

	got, err := c.EmbedQuery(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, []float32{4, 5}, got)
	assert.Equal(t, encodeVector([]float32{4, 5}), st.data[c.key("q")])
	next.AssertExpectations(t)
}

func TestQueryEmbeddingCache_BypassesStoreErrors(t *testing.T) {
	next := new(MockEmbedder)
	st := newFakeStore()
	st.getErr = errors.New("connection refused")
	st.setErr = errors.New("connection refused")
	c := newQueryEmbeddingCache(next, st, "m", 0, 0, zaptest.NewLogger(t))

	next.On("EmbedQuery", mock.Anything, "q").Return([]float32{1}, nil).Twice()

	for i := 0; i < 2; i++ {
		got, err := c.EmbedQuery(context.Background(), "q")
		require.NoError(t, err)
		assert.Equal(t, []float32{1}, got)
	}
	next.AssertExpectations(t)
}

func TestQueryEmbeddingCache_CorruptEntryIsRefetched(t *testing.T) {
	next := new(MockEmbedder)
	st := newFakeStore()
	c := newQueryEmbeddingCache(next, st, "m", 0, 0, nil)
	st.data[c.key("q")] = []byte{1, 2, 3}

	next.On("EmbedQuery", mock.Anything, "q").Return([]float32{2}, nil).Once()

	got, err := c.EmbedQuery(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, []float32{2}, got)
	assert.Equal(t, encodeVector([]float32{2}), st.data[c.key("q")])
}

func TestQueryEmbeddingCache_UpstreamErrorNotCached(t *testing.T) {
	next := new(MockEmbedder)
	st := newFakeStore()
	c := newQueryEmbeddingCache(next, st, "m", 0, 0, nil)

	next.On("EmbedQuery", mock.Anything, "q").Return(nil, errors.New("quota"))

	_, err := c.EmbedQuery(context.Background(), "q")
	assert.EqualError(t, err, "quota")
	assert.Empty(t, st.data)
}

func TestQueryEmbeddingCache_DocumentsPassThrough(t *testing.T) {
	next := new(MockEmbedder)
	c := newQueryEmbeddingCache(next, newFakeStore(), "m", 0, 0, nil)

	next.On("EmbedDocuments", mock.Anything, []string{"a"}).Return([][]float32{{1}}, nil)

	out, err := c.EmbedDocuments(context.Background(), []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1}}, out)
}

func TestDecodeVector_RejectsBadLength(t *testing.T) {
	_, err := decodeVector(nil)
	assert.Error(t, err)
	_, err = decodeVector([]byte{0, 0, 0})
	assert.Error(t, err)
}
