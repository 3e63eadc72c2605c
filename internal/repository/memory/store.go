// Package memory holds in-process implementations of the repository
// interfaces. They back unit tests and the daemon's --memory dev mode.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/talentboard/supportbot/internal/domain"
)

// ChunkStore keeps knowledge chunks in a map keyed by (type, source id, index).
// It has no vector index: SearchSimilar always reports the index as unavailable.
type ChunkStore struct {
	mu     sync.RWMutex
	chunks map[domain.ChunkKey]domain.KnowledgeChunk
}

// NewChunkStore creates an empty ChunkStore.
func NewChunkStore() *ChunkStore {
	return &ChunkStore{chunks: make(map[domain.ChunkKey]domain.KnowledgeChunk)}
}

// ReplaceSource swaps the chunk set of one source under the write lock.
func (s *ChunkStore) ReplaceSource(ctx context.Context, sourceType domain.SourceType, sourceID string, chunks []domain.KnowledgeChunk) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	seen := make(map[domain.ChunkKey]struct{}, len(chunks))
	for i := range chunks {
		c := chunks[i]
		if c.SourceType != sourceType || c.SourceID != sourceID {
			return fmt.Errorf("chunk %d belongs to %s/%s, not %s/%s", i, c.SourceType, c.SourceID, sourceType, sourceID)
		}
		key := c.Key()
		if _, dup := seen[key]; dup {
			return fmt.Errorf("duplicate chunk index %d for %s/%s", c.ChunkIndex, sourceType, sourceID)
		}
		seen[key] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.deleteLocked(sourceType, sourceID, false)
	for i := range chunks {
		c := cloneChunk(chunks[i])
		s.chunks[c.Key()] = c
	}
	return nil
}

// DeleteSource removes a source's chunks, or every chunk of the type when
// sourceID is empty.
func (s *ChunkStore) DeleteSource(ctx context.Context, sourceType domain.SourceType, sourceID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteLocked(sourceType, sourceID, sourceID == ""), nil
}

func (s *ChunkStore) deleteLocked(sourceType domain.SourceType, sourceID string, wholeType bool) int64 {
	var n int64
	for key := range s.chunks {
		if key.SourceType != sourceType {
			continue
		}
		if wholeType || key.SourceID == sourceID {
			delete(s.chunks, key)
			n++
		}
	}
	return n
}

// ListBySource returns copies of a source's chunks ordered by chunk index.
func (s *ChunkStore) ListBySource(ctx context.Context, sourceType domain.SourceType, sourceID string) ([]*domain.KnowledgeChunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*domain.KnowledgeChunk
	for key, c := range s.chunks {
		if key.SourceType == sourceType && key.SourceID == sourceID {
			cp := cloneChunk(c)
			matched = append(matched, &cp)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ChunkIndex < matched[j].ChunkIndex })
	return matched, nil
}

// ListSourceIDs returns the distinct non-empty source IDs stored for the type.
func (s *ChunkStore) ListSourceIDs(ctx context.Context, sourceType domain.SourceType) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	set := make(map[string]struct{})
	for key := range s.chunks {
		if key.SourceType == sourceType && key.SourceID != "" {
			set[key.SourceID] = struct{}{}
		}
	}
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// ListAll returns copies of every stored chunk in a stable order.
func (s *ChunkStore) ListAll(ctx context.Context) ([]*domain.KnowledgeChunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.KnowledgeChunk, 0, len(s.chunks))
	for _, c := range s.chunks {
		cp := cloneChunk(c)
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.SourceType != b.SourceType {
			return a.SourceType < b.SourceType
		}
		if a.SourceID != b.SourceID {
			return a.SourceID < b.SourceID
		}
		return a.ChunkIndex < b.ChunkIndex
	})
	return out, nil
}

// SearchSimilar is not supported in memory.
func (s *ChunkStore) SearchSimilar(_ context.Context, _ []float32, _, _ int) ([]domain.ScoredChunk, error) {
	return nil, domain.ErrVectorSearchUnavailable
}

// Count returns the number of stored chunks.
func (s *ChunkStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks)
}

func cloneChunk(c domain.KnowledgeChunk) domain.KnowledgeChunk {
	if c.Metadata != nil {
		md := make(map[string]any, len(c.Metadata))
		for k, v := range c.Metadata {
			md[k] = v
		}
		c.Metadata = md
	}
	if c.Embedding != nil {
		c.Embedding = append([]float32(nil), c.Embedding...)
	}
	return c
}
