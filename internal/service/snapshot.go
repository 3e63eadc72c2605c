package service

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/talentboard/supportbot/internal/domain"
	"github.com/talentboard/supportbot/internal/logger"
	"github.com/talentboard/supportbot/internal/telemetry"
	"go.uber.org/zap"
)

const snapshotContentType = "application/x-ndjson+gzip"

// ObjectStore is the blob storage snapshots are written to.
type ObjectStore interface {
	PutObject(ctx context.Context, key string, body io.Reader, contentType string) error
	GetObject(ctx context.Context, key string) (io.ReadCloser, error)
}

// snapshotRecord is one JSON line of a snapshot.
type snapshotRecord struct {
	ID         string            `json:"id"`
	SourceType domain.SourceType `json:"source_type"`
	SourceID   string            `json:"source_id,omitempty"`
	ChunkIndex int               `json:"chunk_index"`
	Text       string            `json:"text"`
	Metadata   map[string]any    `json:"metadata,omitempty"`
	Embedding  []float32         `json:"embedding"`
	Hash       string            `json:"hash"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// SnapshotService exports the knowledge store to object storage and imports
// it back, so an environment can be seeded without re-embedding.
type SnapshotService struct {
	scanner ChunkScanner
	tx      TxRunner
	objects ObjectStore
	log     *zap.Logger
}

// NewSnapshotService creates a SnapshotService.
func NewSnapshotService(scanner ChunkScanner, tx TxRunner, objects ObjectStore, log *zap.Logger) *SnapshotService {
	if log == nil {
		log = zap.NewNop()
	}
	return &SnapshotService{scanner: scanner, tx: tx, objects: objects, log: log}
}

// Export writes every stored chunk to key as gzip-compressed JSON lines and
// returns the number of chunks written.
func (s *SnapshotService) Export(ctx context.Context, key string) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "snapshot.export", telemetry.SpanAttributes{Operation: "export"})
	defer span.End()

	chunks, err := s.scanner.ListAll(ctx)
	if err != nil {
		span.SetError(err)
		return 0, fmt.Errorf("failed to list chunks: %w", err)
	}

	var buf bytes.Buffer
	if err := writeSnapshot(&buf, chunks); err != nil {
		return 0, err
	}
	if err := s.objects.PutObject(ctx, key, &buf, snapshotContentType); err != nil {
		span.SetError(err)
		return 0, err
	}

	logger.From(ctx, s.log).Info("snapshot exported", zap.String("key", key), zap.Int("chunks", len(chunks)))
	return len(chunks), nil
}

// Import reads the snapshot at key and replaces the chunk set of every source
// it contains inside one transaction. Sources absent from the snapshot are
// left untouched.
func (s *SnapshotService) Import(ctx context.Context, key string) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "snapshot.import", telemetry.SpanAttributes{Operation: "import"})
	defer span.End()

	body, err := s.objects.GetObject(ctx, key)
	if err != nil {
		span.SetError(err)
		return 0, err
	}
	defer body.Close()

	groups, order, total, err := readSnapshot(body)
	if err != nil {
		span.SetError(err)
		return 0, err
	}

	err = s.tx.WithTx(ctx, func(repos TxRepositories) error {
		store := repos.Chunks()
		for _, sk := range order {
			if err := store.ReplaceSource(ctx, sk.SourceType, sk.SourceID, groups[sk]); err != nil {
				return fmt.Errorf("failed to import %s/%s: %w", sk.SourceType, sk.SourceID, err)
			}
		}
		return nil
	})
	if err != nil {
		span.SetError(err)
		return 0, err
	}

	logger.From(ctx, s.log).Info("snapshot imported",
		zap.String("key", key),
		zap.Int("chunks", total),
		zap.Int("sources", len(order)),
	)
	return total, nil
}

func writeSnapshot(w io.Writer, chunks []*domain.KnowledgeChunk) error {
	gz := gzip.NewWriter(w)
	enc := json.NewEncoder(gz)
	for _, c := range chunks {
		rec := snapshotRecord{
			ID:         c.ID,
			SourceType: c.SourceType,
			SourceID:   c.SourceID,
			ChunkIndex: c.ChunkIndex,
			Text:       c.Text,
			Metadata:   c.Metadata,
			Embedding:  c.Embedding,
			Hash:       c.Hash,
			CreatedAt:  c.CreatedAt,
			UpdatedAt:  c.UpdatedAt,
		}
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("failed to encode chunk %s: %w", c.ID, err)
		}
	}
	return gz.Close()
}

type sourceKey struct {
	SourceType domain.SourceType
	SourceID   string
}

func readSnapshot(r io.Reader) (map[sourceKey][]domain.KnowledgeChunk, []sourceKey, int, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer gz.Close()

	groups := make(map[sourceKey][]domain.KnowledgeChunk)
	var order []sourceKey
	seen := make(map[domain.ChunkKey]struct{})
	dims := 0
	total := 0

	scanner := bufio.NewScanner(gz)
	// a 1536-dim embedding serializes to roughly 20 KiB
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		if len(bytes.TrimSpace(scanner.Bytes())) == 0 {
			continue
		}
		var rec snapshotRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			return nil, nil, 0, fmt.Errorf("snapshot line %d: %w", line, err)
		}
		c := domain.KnowledgeChunk{
			ID:         rec.ID,
			SourceType: rec.SourceType,
			SourceID:   rec.SourceID,
			ChunkIndex: rec.ChunkIndex,
			Text:       rec.Text,
			Metadata:   rec.Metadata,
			Embedding:  rec.Embedding,
			Hash:       rec.Hash,
			CreatedAt:  rec.CreatedAt,
			UpdatedAt:  rec.UpdatedAt,
		}
		if err := domain.ValidateKnowledgeChunk(&c); err != nil {
			return nil, nil, 0, fmt.Errorf("snapshot line %d: %w", line, err)
		}
		if dims == 0 {
			dims = len(c.Embedding)
		} else if len(c.Embedding) != dims {
			return nil, nil, 0, fmt.Errorf("snapshot line %d: embedding has %d dimensions, expected %d", line, len(c.Embedding), dims)
		}
		if _, dup := seen[c.Key()]; dup {
			return nil, nil, 0, fmt.Errorf("snapshot line %d: duplicate chunk %s/%s#%d", line, c.SourceType, c.SourceID, c.ChunkIndex)
		}
		seen[c.Key()] = struct{}{}

		key := sourceKey{SourceType: c.SourceType, SourceID: c.SourceID}
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], c)
		total++
	}
	if err := scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return nil, nil, 0, fmt.Errorf("snapshot line %d is too long: %w", line+1, err)
		}
		return nil, nil, 0, fmt.Errorf("failed to read snapshot: %w", err)
	}
	return groups, order, total, nil
}
