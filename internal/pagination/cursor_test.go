package pagination

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	ts := time.Date(2026, 2, 3, 4, 5, 6, 789, time.FixedZone("CET", 3600))
	encoded := EncodeCursor("log-1", ts)
	assert.NotContains(t, encoded, "=")

	c, err := DecodeCursor(encoded)
	require.NoError(t, err)
	assert.Equal(t, "log-1", c.LastID)
	assert.True(t, c.Timestamp.Equal(ts))
}

func TestEncodeCursor_EmptyID(t *testing.T) {
	assert.Empty(t, EncodeCursor("", time.Now()))
}

func TestDecodeCursor(t *testing.T) {
	c, err := DecodeCursor("")
	require.NoError(t, err)
	assert.Nil(t, c)

	for _, bad := range []string{"***", "bm8tc2VwYXJhdG9y", "fDIwMjYtMDEtMDFUMDA6MDA6MDBa", "aWR8bm90LWEtdGltZQ"} {
		_, err := DecodeCursor(bad)
		assert.ErrorIs(t, err, ErrInvalidCursor, bad)
	}
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, DefaultLimit, ClampLimit(0))
	assert.Equal(t, DefaultLimit, ClampLimit(-3))
	assert.Equal(t, 7, ClampLimit(7))
	assert.Equal(t, MaxLimit, ClampLimit(MaxLimit+1))
}

type item struct {
	id string
	at time.Time
}

func TestNewPage(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	items := []item{{"c", base.Add(2 * time.Second)}, {"b", base.Add(time.Second)}, {"a", base}}
	getID := func(i item) string { return i.id }
	getTS := func(i item) time.Time { return i.at }

	page := NewPage(items, 2, getID, getTS)
	require.Len(t, page.Items, 2)
	assert.True(t, page.HasMore)

	c, err := DecodeCursor(page.Cursor)
	require.NoError(t, err)
	assert.Equal(t, "b", c.LastID)

	last := NewPage(items[2:], 2, getID, getTS)
	assert.False(t, last.HasMore)
	assert.Empty(t, last.Cursor)

	empty := NewPage[item](nil, 2, getID, getTS)
	assert.NotNil(t, empty.Items)
}

func TestCursorAfter(t *testing.T) {
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := &Cursor{LastID: "m", Timestamp: ts}

	assert.True(t, c.After("z", ts.Add(-time.Second)))
	assert.False(t, c.After("a", ts.Add(time.Second)))
	assert.True(t, c.After("a", ts))
	assert.False(t, c.After("m", ts))
	assert.False(t, c.After("z", ts))

	var none *Cursor
	assert.True(t, none.After("x", ts))
}
