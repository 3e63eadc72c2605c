package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/talentboard/supportbot/internal/domain"
	"github.com/talentboard/supportbot/internal/logger"
	"github.com/talentboard/supportbot/internal/metrics"
	"github.com/talentboard/supportbot/internal/telemetry"
	"go.uber.org/zap"
)

// UUIDGenerator defines the interface for generating UUIDs
type UUIDGenerator interface {
	NewString() string
}

// DefaultUUIDGenerator is the default UUID generator using google/uuid
type DefaultUUIDGenerator struct{}

// NewString generates a new UUID string
func (g *DefaultUUIDGenerator) NewString() string {
	return uuid.NewString()
}

// SourceCatalog reads source documents owned by the job-board CRUD layer.
// GetSource returns domain.ErrSourceNotFound when the document does not exist.
type SourceCatalog interface {
	ListSources(ctx context.Context, sourceType domain.SourceType) ([]domain.Source, error)
	GetSource(ctx context.Context, sourceType domain.SourceType, id string) (domain.Source, error)
}

// DocumentEmbedder embeds chunk texts, one vector per input in order.
type DocumentEmbedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
}

// ChunkStore persists knowledge chunks per source.
type ChunkStore interface {
	// ReplaceSource atomically swaps the chunk set of one source.
	ReplaceSource(ctx context.Context, sourceType domain.SourceType, sourceID string, chunks []domain.KnowledgeChunk) error
	// DeleteSource removes a source's chunks, or every chunk of the type when sourceID is empty.
	DeleteSource(ctx context.Context, sourceType domain.SourceType, sourceID string) (int64, error)
	// ListBySource returns the stored chunks of a source ordered by chunk index.
	ListBySource(ctx context.Context, sourceType domain.SourceType, sourceID string) ([]*domain.KnowledgeChunk, error)
	// ListSourceIDs returns the distinct source IDs that have chunks for the type.
	ListSourceIDs(ctx context.Context, sourceType domain.SourceType) ([]string, error)
}

// SyncConfig tunes the synchronizer.
type SyncConfig struct {
	Chunk         ChunkConfig
	SkipUnchanged bool
}

// DefaultSyncConfig returns the default synchronizer settings.
func DefaultSyncConfig() SyncConfig {
	return SyncConfig{
		Chunk:         DefaultChunkConfig(),
		SkipUnchanged: true,
	}
}

// SyncResult describes what a single source sync did.
type SyncResult struct {
	SourceType domain.SourceType `json:"source_type"`
	SourceID   string            `json:"source_id"`
	Chunks     int               `json:"chunks"`
	Removed    bool              `json:"removed"`
	Skipped    bool              `json:"skipped"`
}

// SyncFailure records a source that failed during a bulk sync.
type SyncFailure struct {
	SourceID string `json:"source_id"`
	Error    string `json:"error"`
}

// SyncReport summarizes a bulk sync of one source type.
type SyncReport struct {
	SourceType domain.SourceType `json:"source_type"`
	Synced     int               `json:"synced"`
	Skipped    int               `json:"skipped"`
	Removed    int               `json:"removed"`
	Orphans    int               `json:"orphans"`
	Chunks     int               `json:"chunks"`
	Failed     []SyncFailure     `json:"failed,omitempty"`
}

// SyncService keeps the knowledge store consistent with the source collections.
type SyncService struct {
	catalog  SourceCatalog
	embedder DocumentEmbedder
	store    ChunkStore
	uuidGen  UUIDGenerator
	cfg      SyncConfig
	log      *zap.Logger
	now      func() time.Time
}

// NewSyncService creates a SyncService.
func NewSyncService(catalog SourceCatalog, embedder DocumentEmbedder, store ChunkStore, cfg SyncConfig, log *zap.Logger) *SyncService {
	if cfg.Chunk.MaxChars <= 0 {
		cfg.Chunk = DefaultChunkConfig()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &SyncService{
		catalog:  catalog,
		embedder: embedder,
		store:    store,
		uuidGen:  &DefaultUUIDGenerator{},
		cfg:      cfg,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// RebuildAll resyncs every source type.
func (s *SyncService) RebuildAll(ctx context.Context) (map[domain.SourceType]*SyncReport, error) {
	reports := make(map[domain.SourceType]*SyncReport, len(domain.AllSourceTypes()))
	var errs []error
	for _, sourceType := range domain.AllSourceTypes() {
		report, err := s.SyncAll(ctx, sourceType)
		reports[sourceType] = report
		if err != nil {
			if ctx.Err() != nil {
				return reports, err
			}
			errs = append(errs, err)
		}
	}
	return reports, errors.Join(errs...)
}

// SyncAll resyncs every document of a type and removes chunks of documents
// that no longer exist. Per-document failures are collected in the report.
func (s *SyncService) SyncAll(ctx context.Context, sourceType domain.SourceType) (*SyncReport, error) {
	if !sourceType.IsValid() {
		return nil, domain.ErrInvalidSourceType
	}
	log := logger.From(ctx, s.log).With(zap.String("source_type", string(sourceType)))
	report := &SyncReport{SourceType: sourceType}

	sources, err := s.catalog.ListSources(ctx, sourceType)
	if err != nil {
		return report, fmt.Errorf("failed to list %s sources: %w", sourceType, err)
	}

	seen := make(map[string]struct{}, len(sources))
	var firstErr error
	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		seen[src.SourceID()] = struct{}{}

		result, err := s.syncSource(ctx, src)
		if err != nil {
			log.Error("source sync failed", zap.String("source_id", src.SourceID()), zap.Error(err))
			report.Failed = append(report.Failed, SyncFailure{SourceID: src.SourceID(), Error: err.Error()})
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		switch {
		case result.Removed:
			report.Removed++
		case result.Skipped:
			report.Skipped++
		default:
			report.Synced++
		}
		report.Chunks += result.Chunks
	}

	storedIDs, err := s.store.ListSourceIDs(ctx, sourceType)
	if err != nil {
		return report, fmt.Errorf("failed to list stored %s sources: %w", sourceType, err)
	}
	for _, id := range storedIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		if _, err := s.RemoveSource(ctx, sourceType, id); err != nil {
			return report, err
		}
		report.Orphans++
	}

	log.Info("source type synced",
		zap.Int("synced", report.Synced),
		zap.Int("skipped", report.Skipped),
		zap.Int("removed", report.Removed),
		zap.Int("orphans", report.Orphans),
		zap.Int("failed", len(report.Failed)),
	)
	return report, firstErr
}

// SyncOne resyncs a single source document. Missing, inactive and empty
// documents have their chunks removed.
func (s *SyncService) SyncOne(ctx context.Context, sourceType domain.SourceType, id string) (*SyncResult, error) {
	if !sourceType.IsValid() {
		return nil, domain.ErrInvalidSourceType
	}
	if strings.TrimSpace(id) == "" {
		return nil, domain.ErrMissingRequiredField
	}

	src, err := s.catalog.GetSource(ctx, sourceType, id)
	if err != nil {
		if errors.Is(err, domain.ErrSourceNotFound) {
			return s.removeResult(ctx, sourceType, id)
		}
		return nil, fmt.Errorf("failed to load %s %s: %w", sourceType, id, err)
	}
	return s.syncSource(ctx, src)
}

// RemoveSource deletes the chunks of a source, or of the whole type when id is empty.
func (s *SyncService) RemoveSource(ctx context.Context, sourceType domain.SourceType, id string) (int64, error) {
	if !sourceType.IsValid() {
		return 0, domain.ErrInvalidSourceType
	}
	deleted, err := s.store.DeleteSource(ctx, sourceType, id)
	if err != nil {
		return 0, fmt.Errorf("failed to remove %s chunks: %w", sourceType, err)
	}
	metrics.SyncOperationsTotal.WithLabelValues(string(sourceType), "removed").Inc()
	logger.From(ctx, s.log).Info("source chunks removed",
		zap.String("source_type", string(sourceType)),
		zap.String("source_id", id),
		zap.Int64("deleted", deleted),
	)
	return deleted, nil
}

func (s *SyncService) removeResult(ctx context.Context, sourceType domain.SourceType, id string) (*SyncResult, error) {
	if _, err := s.RemoveSource(ctx, sourceType, id); err != nil {
		return nil, err
	}
	return &SyncResult{SourceType: sourceType, SourceID: id, Removed: true}, nil
}

func (s *SyncService) syncSource(ctx context.Context, src domain.Source) (*SyncResult, error) {
	sourceType, id := src.SourceType(), src.SourceID()

	ctx, span := telemetry.StartSpan(ctx, "sync.source", telemetry.SpanAttributes{
		SourceType: string(sourceType),
		SourceID:   id,
		Operation:  "sync",
	})
	defer span.End()

	text, metadata, active := ComposeSource(src)
	if !active || text == "" {
		return s.removeResult(ctx, sourceType, id)
	}

	drafts := SplitText(text, metadata, s.cfg.Chunk)
	if len(drafts) == 0 {
		return s.removeResult(ctx, sourceType, id)
	}

	hashes := make([]string, len(drafts))
	texts := make([]string, len(drafts))
	for i, d := range drafts {
		texts[i] = d.Text
		hashes[i] = domain.ComputeChunkHash(sourceType, id, d.Text)
	}

	var embeddings [][]float32
	if s.cfg.SkipUnchanged {
		stored, err := s.store.ListBySource(ctx, sourceType, id)
		if err != nil {
			span.SetError(err)
			return nil, fmt.Errorf("failed to read stored chunks: %w", err)
		}
		if sameHashes(stored, hashes) {
			if sameMetadata(stored, drafts) {
				metrics.SyncOperationsTotal.WithLabelValues(string(sourceType), "skipped").Inc()
				return &SyncResult{SourceType: sourceType, SourceID: id, Chunks: len(drafts), Skipped: true}, nil
			}
			// Text is unchanged, so the stored vectors stay valid for the new metadata.
			embeddings = make([][]float32, len(stored))
			for i, c := range stored {
				embeddings[i] = c.Embedding
			}
		}
	}

	if embeddings == nil {
		var err error
		embeddings, err = s.embedder.EmbedDocuments(ctx, texts)
		if err != nil {
			span.SetError(err)
			metrics.SyncOperationsTotal.WithLabelValues(string(sourceType), "failed").Inc()
			return nil, fmt.Errorf("failed to embed %s %s: %w", sourceType, id, err)
		}
	}
	if len(embeddings) != len(drafts) {
		err := fmt.Errorf("embedding count mismatch: expected %d, got %d", len(drafts), len(embeddings))
		span.SetError(err)
		return nil, err
	}

	now := s.now()
	chunks := make([]domain.KnowledgeChunk, len(drafts))
	for i, d := range drafts {
		chunks[i] = domain.KnowledgeChunk{
			ID:         s.uuidGen.NewString(),
			SourceType: sourceType,
			SourceID:   id,
			ChunkIndex: i,
			Text:       d.Text,
			Metadata:   d.Metadata,
			Embedding:  embeddings[i],
			Hash:       hashes[i],
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := domain.ValidateKnowledgeChunk(&chunks[i]); err != nil {
			return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, domain.ErrInvalidChunk.Message, err)
		}
	}

	if err := s.store.ReplaceSource(ctx, sourceType, id, chunks); err != nil {
		span.SetError(err)
		metrics.SyncOperationsTotal.WithLabelValues(string(sourceType), "failed").Inc()
		return nil, fmt.Errorf("failed to replace %s %s chunks: %w", sourceType, id, err)
	}

	metrics.SyncOperationsTotal.WithLabelValues(string(sourceType), "synced").Inc()
	metrics.ChunksWrittenTotal.WithLabelValues(string(sourceType)).Add(float64(len(chunks)))
	logger.From(ctx, s.log).Debug("source synced",
		zap.String("source_type", string(sourceType)),
		zap.String("source_id", id),
		zap.Int("chunks", len(chunks)),
	)

	return &SyncResult{SourceType: sourceType, SourceID: id, Chunks: len(chunks)}, nil
}

func sameHashes(stored []*domain.KnowledgeChunk, hashes []string) bool {
	if len(stored) != len(hashes) {
		return false
	}
	for i, c := range stored {
		if c.Hash != hashes[i] {
			return false
		}
	}
	return true
}

// sameMetadata compares metadata by its JSON form, since values read back
// from the store lose their Go types ([]string tags come back as []any).
func sameMetadata(stored []*domain.KnowledgeChunk, drafts []ChunkDraft) bool {
	for i, c := range stored {
		if len(c.Metadata) == 0 && len(drafts[i].Metadata) == 0 {
			continue
		}
		a, errA := json.Marshal(c.Metadata)
		b, errB := json.Marshal(drafts[i].Metadata)
		if errA != nil || errB != nil || !bytes.Equal(a, b) {
			return false
		}
	}
	return true
}

// ComposeSource renders a source document into the plain text that gets
// chunked, plus the metadata copied onto each chunk. active is false for
// sources that must not be indexed.
func ComposeSource(src domain.Source) (text string, metadata map[string]any, active bool) {
	switch v := src.(type) {
	case *domain.FAQ:
		return composeQA(v.Question, v.Answer), map[string]any{"category": v.Category}, true
	case *domain.CustomQA:
		tags := v.Tags
		if tags == nil {
			tags = []string{}
		}
		return composeQA(v.Question, v.Answer), map[string]any{"tags": tags}, v.IsActive
	case *domain.ContentPage:
		return composeTitled(v.Title, v.Description), map[string]any{"title": v.Title, "page_type": v.Type}, true
	case *domain.BlogPost:
		return composeTitled(v.Title, v.Description), map[string]any{"title": v.Title}, true
	default:
		return "", nil, false
	}
}

func composeQA(question, answer string) string {
	q := NormalizeMarkup(question)
	a := NormalizeMarkup(answer)
	if q == "" && a == "" {
		return ""
	}
	return "Question:\n" + q + "\n\nAnswer:\n" + a
}

func composeTitled(title, body string) string {
	t := strings.TrimSpace(title)
	b := NormalizeMarkup(body)
	switch {
	case t == "" && b == "":
		return ""
	case b == "":
		return t
	case t == "":
		return b
	}
	return t + "\n\n" + b
}
