//go:build integration

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/talentboard/supportbot/internal/testutil"
	"go.uber.org/zap/zaptest"
)

func TestQueryEmbeddingCache_Redis(t *testing.T) {
	ctx := context.Background()
	rc := testutil.NewRedisContainer(ctx, t)
	t.Cleanup(func() { _ = rc.Terminate(ctx) })

	client, err := NewRedisClient(ctx, rc.Addr(), "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	next := new(MockEmbedder)
	next.On("EmbedQuery", mock.Anything, "how do I apply").Return([]float32{0.25, -1, 3.5}, nil).Once()

	c := NewQueryEmbeddingCache(next, client, "text-embedding-3-small", 0, time.Hour, zaptest.NewLogger(t))

	first, err := c.EmbedQuery(ctx, "how do I apply")
	require.NoError(t, err)
	second, err := c.EmbedQuery(ctx, "how do I apply")
	require.NoError(t, err)

	assert.Equal(t, []float32{0.25, -1, 3.5}, first)
	assert.Equal(t, first, second)
	next.AssertNumberOfCalls(t, "EmbedQuery", 1)

	ttl, err := client.TTL(ctx, c.key("how do I apply")).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, 59*time.Minute)
}

func TestNewRedisClient_Unreachable(t *testing.T) {
	_, err := NewRedisClient(context.Background(), "127.0.0.1:1", "", 0)
	assert.Error(t, err)
}
