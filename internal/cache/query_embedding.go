// Package cache holds redis-backed caches in front of upstream providers.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/talentboard/supportbot/internal/logger"
	"github.com/talentboard/supportbot/internal/metrics"
	"go.uber.org/zap"
)

const (
	// DefaultQueryTTL bounds how long a cached query embedding is reused
	DefaultQueryTTL = 24 * time.Hour
	keyPrefix       = "supportbot:qemb:"
)

// Embedder is the embedding provider being cached.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// QueryEmbeddingCache caches EmbedQuery results in redis. Document embedding
// passes straight through. Cache failures are logged and bypassed.
type QueryEmbeddingCache struct {
	next       Embedder
	store      store
	model      string
	dimensions int
	ttl        time.Duration
	log        *zap.Logger
}

// NewQueryEmbeddingCache wraps next with a redis cache. model and dimensions
// are part of the key so that switching either never serves stale vectors.
func NewQueryEmbeddingCache(next Embedder, client redis.Cmdable, model string, dimensions int, ttl time.Duration, log *zap.Logger) *QueryEmbeddingCache {
	return newQueryEmbeddingCache(next, redisStore{client: client}, model, dimensions, ttl, log)
}

func newQueryEmbeddingCache(next Embedder, s store, model string, dimensions int, ttl time.Duration, log *zap.Logger) *QueryEmbeddingCache {
	if ttl <= 0 {
		ttl = DefaultQueryTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &QueryEmbeddingCache{next: next, store: s, model: model, dimensions: dimensions, ttl: ttl, log: log}
}

func (c *QueryEmbeddingCache) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	return c.next.EmbedDocuments(ctx, texts)
}

func (c *QueryEmbeddingCache) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	key := c.key(text)
	log := logger.From(ctx, c.log)

	raw, ok, err := c.store.Get(ctx, key)
	switch {
	case err != nil:
		metrics.QueryCacheTotal.WithLabelValues("error").Inc()
		log.Warn("query embedding cache read failed", zap.Error(err))
	case ok:
		vec, decErr := decodeVector(raw)
		if decErr == nil && c.dimensions > 0 && len(vec) != c.dimensions {
			decErr = fmt.Errorf("cached vector has %d dimensions, expected %d", len(vec), c.dimensions)
		}
		if decErr == nil {
			metrics.QueryCacheTotal.WithLabelValues("hit").Inc()
			return vec, nil
		}
		metrics.QueryCacheTotal.WithLabelValues("error").Inc()
		log.Warn("query embedding cache entry corrupt", zap.Error(decErr))
	default:
		metrics.QueryCacheTotal.WithLabelValues("miss").Inc()
	}

	vec, err := c.next.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	if err := c.store.Set(ctx, key, encodeVector(vec), c.ttl); err != nil {
		log.Warn("query embedding cache write failed", zap.Error(err))
	}
	return vec, nil
}

func (c *QueryEmbeddingCache) key(text string) string {
	sum := sha256.Sum256([]byte(c.model + "\x00" + strconv.Itoa(c.dimensions) + "\x00" + text))
	return keyPrefix + hex.EncodeToString(sum[:])
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(raw []byte) ([]float32, error) {
	if len(raw) == 0 || len(raw)%4 != 0 {
		return nil, fmt.Errorf("invalid cached vector length %d", len(raw))
	}
	v := make([]float32, len(raw)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return v, nil
}
