// Package pagination implements keyset cursors over (created_at, id) ordered lists.
package pagination

import (
	"encoding/base64"
	"errors"
	"strings"
	"time"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Cursor represents a decoded pagination cursor
type Cursor struct {
	LastID    string
	Timestamp time.Time
}

// PageResult represents a paginated result set
type PageResult[T any] struct {
	Items   []T    `json:"items"`
	Cursor  string `json:"cursor,omitempty"`
	HasMore bool   `json:"has_more"`
}

var ErrInvalidCursor = errors.New("invalid cursor format")

// EncodeCursor creates a URL-safe cursor from the last item ID and timestamp
func EncodeCursor(lastID string, timestamp time.Time) string {
	if lastID == "" {
		return ""
	}
	raw := lastID + "|" + timestamp.UTC().Format(time.RFC3339Nano)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor decodes a cursor. An empty cursor decodes to nil, the first page.
func DecodeCursor(cursor string) (*Cursor, error) {
	if cursor == "" {
		return nil, nil
	}

	decoded, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return nil, ErrInvalidCursor
	}

	parts := strings.SplitN(string(decoded), "|", 2)
	if len(parts) != 2 || parts[0] == "" {
		return nil, ErrInvalidCursor
	}

	timestamp, err := time.Parse(time.RFC3339Nano, parts[1])
	if err != nil {
		return nil, ErrInvalidCursor
	}

	return &Cursor{
		LastID:    parts[0],
		Timestamp: timestamp,
	}, nil
}

// ClampLimit maps a requested page size onto [1, MaxLimit], using DefaultLimit for zero or less.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	}
	return limit
}

// NewPage builds a page from up to limit+1 items fetched in order. The extra
// item only signals that another page exists and is dropped.
func NewPage[T any](items []T, limit int, getID func(T) string, getTimestamp func(T) time.Time) *PageResult[T] {
	page := &PageResult[T]{Items: items}
	if page.Items == nil {
		page.Items = []T{}
	}
	if len(items) <= limit {
		return page
	}
	page.Items = items[:limit]
	page.HasMore = true
	last := page.Items[len(page.Items)-1]
	page.Cursor = EncodeCursor(getID(last), getTimestamp(last))
	return page
}

// After reports whether an item at (id, ts) sorts after the cursor in
// newest-first order, i.e. belongs to a later page.
func (c *Cursor) After(id string, ts time.Time) bool {
	if c == nil {
		return true
	}
	if ts.Equal(c.Timestamp) {
		return id < c.LastID
	}
	return ts.Before(c.Timestamp)
}
