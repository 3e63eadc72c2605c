package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/talentboard/supportbot/internal/domain"
	"github.com/talentboard/supportbot/internal/logger"
	"github.com/talentboard/supportbot/internal/metrics"
	"github.com/talentboard/supportbot/internal/telemetry"
	"go.uber.org/zap"
)

const (
	// DefaultTopK is the number of chunks retrieved when the caller does not say.
	DefaultTopK = 5

	candidateMultiplier = 15
	minCandidates       = 200
)

// QueryEmbedder embeds a search query.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// VectorSearcher runs an approximate nearest-neighbor search over stored
// embeddings. Implementations return domain.ErrVectorSearchUnavailable when
// the backing store has no vector index.
type VectorSearcher interface {
	SearchSimilar(ctx context.Context, embedding []float32, topK, candidates int) ([]domain.ScoredChunk, error)
}

// ChunkScanner reads the whole knowledge store for the exact fallback path.
type ChunkScanner interface {
	ListAll(ctx context.Context) ([]*domain.KnowledgeChunk, error)
}

// Retriever finds the stored chunks most similar to a query.
type Retriever struct {
	embedder QueryEmbedder
	searcher VectorSearcher
	scanner  ChunkScanner
	log      *zap.Logger
}

// NewRetriever creates a Retriever. searcher may be nil, in which case every
// retrieval uses the exact scan.
func NewRetriever(embedder QueryEmbedder, searcher VectorSearcher, scanner ChunkScanner, log *zap.Logger) *Retriever {
	if log == nil {
		log = zap.NewNop()
	}
	return &Retriever{
		embedder: embedder,
		searcher: searcher,
		scanner:  scanner,
		log:      log,
	}
}

// CandidatePoolSize returns the oversampled candidate count used for the
// approximate search.
func CandidatePoolSize(topK int) int {
	candidates := topK * candidateMultiplier
	if candidates < minCandidates {
		candidates = minCandidates
	}
	return candidates
}

// Retrieve embeds query and returns up to topK chunks ordered by descending
// similarity. Vector search failures are recovered with an exact cosine scan.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int) ([]domain.ScoredChunk, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}

	embedding, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	return r.RetrieveByEmbedding(ctx, embedding, topK)
}

// RetrieveByEmbedding is Retrieve for an already embedded query.
func (r *Retriever) RetrieveByEmbedding(ctx context.Context, embedding []float32, topK int) ([]domain.ScoredChunk, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}
	log := logger.From(ctx, r.log)

	reason := "no_index"
	if r.searcher != nil {
		start := time.Now()
		results, err := r.searcher.SearchSimilar(ctx, embedding, topK, CandidatePoolSize(topK))
		if err == nil {
			metrics.RetrievalDuration.WithLabelValues("vector").Observe(time.Since(start).Seconds())
			return finiteScores(results), nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		reason = "search_error"
		if errors.Is(err, domain.ErrVectorSearchUnavailable) {
			reason = "unavailable"
		}
		log.Warn("vector search failed, falling back to exact scan",
			zap.Error(err),
			zap.String("reason", reason),
		)
	}
	metrics.RetrievalFallbackTotal.WithLabelValues(reason).Inc()
	telemetry.AddBreadcrumb(ctx, "retrieval", "exact scan fallback: "+reason)

	start := time.Now()
	chunks, err := r.scanner.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to scan knowledge chunks: %w", err)
	}
	results := rankByCosine(embedding, chunks, topK)
	metrics.RetrievalDuration.WithLabelValues("exact").Observe(time.Since(start).Seconds())

	return results, nil
}
