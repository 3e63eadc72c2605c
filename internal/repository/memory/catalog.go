package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/talentboard/supportbot/internal/domain"
)

type sourceKey struct {
	sourceType domain.SourceType
	id         string
}

// Catalog is a mutable in-memory source catalog.
type Catalog struct {
	mu      sync.RWMutex
	sources map[sourceKey]domain.Source
}

// NewCatalog creates a Catalog seeded with the given sources.
func NewCatalog(sources ...domain.Source) *Catalog {
	c := &Catalog{sources: make(map[sourceKey]domain.Source)}
	for _, src := range sources {
		c.Put(src)
	}
	return c
}

// Put inserts or replaces a source document.
func (c *Catalog) Put(src domain.Source) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sources[sourceKey{src.SourceType(), src.SourceID()}] = src
}

// Delete removes a source document.
func (c *Catalog) Delete(sourceType domain.SourceType, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sources, sourceKey{sourceType, id})
}

// ListSources returns the documents of a type ordered by ID. Inactive custom
// Q&A entries are left out.
func (c *Catalog) ListSources(ctx context.Context, sourceType domain.SourceType) ([]domain.Source, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []domain.Source
	for key, src := range c.sources {
		if key.sourceType != sourceType {
			continue
		}
		if qa, ok := src.(*domain.CustomQA); ok && !qa.IsActive {
			continue
		}
		out = append(out, src)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SourceID() < out[j].SourceID() })
	return out, nil
}

// GetSource returns one document or domain.ErrSourceNotFound.
func (c *Catalog) GetSource(ctx context.Context, sourceType domain.SourceType, id string) (domain.Source, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	src, ok := c.sources[sourceKey{sourceType, id}]
	if !ok {
		return nil, domain.ErrSourceNotFound
	}
	return src, nil
}
