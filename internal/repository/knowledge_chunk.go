package repository

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"github.com/talentboard/supportbot/internal/domain"
)

const chunkColumns = `id, source_type, source_id, chunk_index, text, metadata, embedding, hash, created_at, updated_at`

// KnowledgeChunkRepository handles persistence of chunked knowledge embeddings.
type KnowledgeChunkRepository struct {
	db dbtx
}

func NewKnowledgeChunkRepository(pool *pgxpool.Pool) *KnowledgeChunkRepository {
	return &KnowledgeChunkRepository{db: pool}
}

func NewKnowledgeChunkRepositoryWithTx(tx pgx.Tx) *KnowledgeChunkRepository {
	return &KnowledgeChunkRepository{db: tx}
}

// ReplaceSource deletes the existing chunks of a source and inserts the new
// ones in a single transaction. Concurrent replaces of the same source are
// serialized by an advisory transaction lock.
func (r *KnowledgeChunkRepository) ReplaceSource(ctx context.Context, sourceType domain.SourceType, sourceID string, chunks []domain.KnowledgeChunk) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`SELECT pg_advisory_xact_lock(hashtextextended($1 || ':' || $2, 0))`,
		string(sourceType), sourceID,
	); err != nil {
		return fmt.Errorf("failed to lock source: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`DELETE FROM knowledge_chunks WHERE source_type = $1 AND source_id IS NOT DISTINCT FROM $2`,
		sourceType, nullableString(sourceID),
	); err != nil {
		return err
	}

	if len(chunks) > 0 {
		batch := &pgx.Batch{}
		for _, c := range chunks {
			if c.SourceType != sourceType || c.SourceID != sourceID {
				return fmt.Errorf("chunk %d belongs to %s/%s, not %s/%s", c.ChunkIndex, c.SourceType, c.SourceID, sourceType, sourceID)
			}
			createdAt := c.CreatedAt
			if createdAt.IsZero() {
				createdAt = time.Now().UTC()
			}
			updatedAt := c.UpdatedAt
			if updatedAt.IsZero() {
				updatedAt = createdAt
			}
			metadata := c.Metadata
			if metadata == nil {
				metadata = map[string]any{}
			}
			batch.Queue(
				`INSERT INTO knowledge_chunks (`+chunkColumns+`)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
				c.ID,
				c.SourceType,
				nullableString(c.SourceID),
				c.ChunkIndex,
				c.Text,
				metadata,
				pgvector.NewVector(c.Embedding),
				c.Hash,
				createdAt,
				updatedAt,
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// DeleteSource removes a source's chunks, or every chunk of the type when
// sourceID is empty.
func (r *KnowledgeChunkRepository) DeleteSource(ctx context.Context, sourceType domain.SourceType, sourceID string) (int64, error) {
	var (
		tag pgconn.CommandTag
		err error
	)
	if sourceID == "" {
		tag, err = r.db.Exec(ctx, `DELETE FROM knowledge_chunks WHERE source_type = $1`, sourceType)
	} else {
		tag, err = r.db.Exec(ctx,
			`DELETE FROM knowledge_chunks WHERE source_type = $1 AND source_id = $2`,
			sourceType, sourceID,
		)
	}
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ListBySource returns the stored chunks of a source ordered by chunk index.
func (r *KnowledgeChunkRepository) ListBySource(ctx context.Context, sourceType domain.SourceType, sourceID string) ([]*domain.KnowledgeChunk, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+chunkColumns+` FROM knowledge_chunks
		 WHERE source_type = $1 AND source_id IS NOT DISTINCT FROM $2
		 ORDER BY chunk_index ASC`,
		sourceType, nullableString(sourceID),
	)
	if err != nil {
		return nil, err
	}
	return collectChunks(rows)
}

// ListSourceIDs returns the distinct source IDs stored for the type.
func (r *KnowledgeChunkRepository) ListSourceIDs(ctx context.Context, sourceType domain.SourceType) ([]string, error) {
	rows, err := r.db.Query(ctx,
		`SELECT DISTINCT source_id FROM knowledge_chunks
		 WHERE source_type = $1 AND source_id IS NOT NULL
		 ORDER BY source_id`,
		sourceType,
	)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// ListAll returns every stored chunk including its embedding.
func (r *KnowledgeChunkRepository) ListAll(ctx context.Context) ([]*domain.KnowledgeChunk, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+chunkColumns+` FROM knowledge_chunks
		 ORDER BY source_type, source_id, chunk_index`,
	)
	if err != nil {
		return nil, err
	}
	return collectChunks(rows)
}

func collectChunks(rows pgx.Rows) ([]*domain.KnowledgeChunk, error) {
	defer rows.Close()

	var chunks []*domain.KnowledgeChunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// Count returns the number of stored chunks.
func (r *KnowledgeChunkRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.QueryRow(ctx, `SELECT count(*) FROM knowledge_chunks`).Scan(&n)
	return n, err
}

// SearchSimilar runs an HNSW cosine search. candidates sets the index's
// ef_search so that topK results are picked from a wider candidate pool.
// Score is 1 - cosine distance.
func (r *KnowledgeChunkRepository) SearchSimilar(ctx context.Context, embedding []float32, topK, candidates int) ([]domain.ScoredChunk, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if candidates < topK {
		candidates = topK
	}
	if _, err := tx.Exec(ctx, `SELECT set_config('hnsw.ef_search', $1, true)`, strconv.Itoa(candidates)); err != nil {
		return nil, classifySearchError(err)
	}

	rows, err := tx.Query(ctx,
		`SELECT `+chunkColumns+`, 1 - (embedding <=> $1) AS score
		 FROM knowledge_chunks
		 ORDER BY embedding <=> $1
		 LIMIT $2`,
		pgvector.NewVector(embedding), topK,
	)
	if err != nil {
		return nil, classifySearchError(err)
	}
	defer rows.Close()

	results := make([]domain.ScoredChunk, 0, topK)
	for rows.Next() {
		var score float64
		c, err := scanChunk(rows, &score)
		if err != nil {
			return nil, err
		}
		// Zero-norm vectors give a NaN cosine distance.
		if math.IsNaN(score) || math.IsInf(score, 0) {
			continue
		}
		results = append(results, domain.ScoredChunk{KnowledgeChunk: *c, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, classifySearchError(err)
	}
	return results, nil
}

// classifySearchError maps missing-extension errors to ErrVectorSearchUnavailable.
func classifySearchError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "42883", "42704", "42P01", "58P01":
			return domain.NewDomainErrorWithCause(domain.ErrCodeUnavailable, domain.ErrVectorSearchUnavailable.Message, err)
		}
	}
	return err
}

func scanChunk(row pgx.Row, extra ...any) (*domain.KnowledgeChunk, error) {
	var (
		c        domain.KnowledgeChunk
		sourceID *string
		vec      pgvector.Vector
	)
	dest := []any{&c.ID, &c.SourceType, &sourceID, &c.ChunkIndex, &c.Text, &c.Metadata, &vec, &c.Hash, &c.CreatedAt, &c.UpdatedAt}
	dest = append(dest, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	if sourceID != nil {
		c.SourceID = *sourceID
	}
	c.Embedding = vec.Slice()
	return &c, nil
}
