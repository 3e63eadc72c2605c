package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"time"
)

// KnowledgeChunk is a chunked, embedded segment of a source document.
// (SourceType, SourceID, ChunkIndex) is unique across the store.
type KnowledgeChunk struct {
	ID         string
	SourceType SourceType
	SourceID   string // empty only for synthetic/global chunks
	ChunkIndex int
	Text       string
	Metadata   map[string]any
	Embedding  []float32
	Hash       string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ChunkKey identifies a chunk slot within the store.
type ChunkKey struct {
	SourceType SourceType
	SourceID   string
	ChunkIndex int
}

// Key returns the unique key of the chunk.
func (c *KnowledgeChunk) Key() ChunkKey {
	return ChunkKey{SourceType: c.SourceType, SourceID: c.SourceID, ChunkIndex: c.ChunkIndex}
}

// ComputeChunkHash returns the deterministic digest of a chunk's identity and text.
func ComputeChunkHash(sourceType SourceType, sourceID, text string) string {
	h := sha256.New()
	h.Write([]byte(sourceType))
	h.Write([]byte{0})
	h.Write([]byte(sourceID))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// ValidateKnowledgeChunk validates a KnowledgeChunk before it is stored
func ValidateKnowledgeChunk(c *KnowledgeChunk) error {
	if c == nil {
		return fmt.Errorf("knowledge chunk cannot be nil")
	}
	if !c.SourceType.IsValid() {
		return fmt.Errorf("knowledge chunk SourceType is invalid: %s", c.SourceType)
	}
	if c.ChunkIndex < 0 {
		return fmt.Errorf("knowledge chunk ChunkIndex cannot be negative")
	}
	if c.Text == "" {
		return fmt.Errorf("knowledge chunk Text is required")
	}
	if len(c.Embedding) == 0 {
		return fmt.Errorf("knowledge chunk Embedding is required")
	}
	var norm float64
	for _, v := range c.Embedding {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("knowledge chunk Embedding contains non-finite values")
		}
		norm += f * f
	}
	// A zero vector has no cosine similarity to anything.
	if norm == 0 {
		return fmt.Errorf("knowledge chunk Embedding has zero norm")
	}
	return nil
}

// ScoredChunk is a retrieved chunk with its similarity to the query.
type ScoredChunk struct {
	KnowledgeChunk
	Score float64
}
