//go:build integration

package openai

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntegration_EmbedDocuments_RealAPI(t *testing.T) {
	apiKey := os.Getenv("SUPPORTBOT_OPENAI_API_KEY")
	if apiKey == "" {
		t.Skip("SUPPORTBOT_OPENAI_API_KEY not set, skipping integration test")
	}

	client, err := NewClient(Config{APIKey: apiKey})
	require.NoError(t, err)

	embeddings, err := client.EmbedDocuments(context.Background(), []string{
		"How do I reset my password?",
		"Refunds are available for 30 days.",
	})

	require.NoError(t, err)
	require.Len(t, embeddings, 2)
	assert.Len(t, embeddings[0], DefaultEmbeddingDimensions)
}
