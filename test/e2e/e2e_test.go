//go:build e2e

package e2e

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestE2E_Auth checks which routes need the API key.
func TestE2E_Auth(t *testing.T) {
	env := SetupE2EEnv(t)
	defer env.Cleanup()

	t.Run("health is public", func(t *testing.T) {
		resp, err := env.Get("/health", "")
		require.NoError(t, err)
		assert.JSONEq(t, `{"status":"ok"}`, string(resp.Data))
	})

	t.Run("missing key returns 401", func(t *testing.T) {
		resp, err := env.Post("/chat", map[string]string{"question": "hi"}, "")
		require.Error(t, err)
		assert.Equal(t, http.StatusUnauthorized, resp.Status)
	})

	t.Run("wrong key returns 401", func(t *testing.T) {
		resp, err := env.Get("/search?q=hi", "sk-wrong-0000000000")
		require.Error(t, err)
		assert.Equal(t, http.StatusUnauthorized, resp.Status)
	})

	t.Run("unknown source type returns 400", func(t *testing.T) {
		resp, err := env.Post("/sources/jobs/sync", nil, testAPIKey)
		require.Error(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.Status)
		assert.Equal(t, "VALIDATION_ERROR", resp.Code)
	})
}

// TestE2E_SyncAndChat syncs FAQs through the CLI and asks about them.
func TestE2E_SyncAndChat(t *testing.T) {
	env := SetupE2EEnv(t)
	defer env.Cleanup()
	env.BuildBinaries()

	env.SeedFAQ("f1", "How do I reset my password?", "Use the reset link on the login page.")
	env.SeedFAQ("f2", "How do I delete my account?", "Open settings and choose delete account.")

	t.Run("sync faq", func(t *testing.T) {
		out, err := env.RunSupportbot("sync", "faq")
		require.NoError(t, err, out)
		assert.Equal(t, "faq: 2 synced, 0 unchanged, 0 removed, 0 orphans, 2 chunks\n", out)
		assert.Equal(t, 2, env.ChunkCount("faq", ""))
	})

	t.Run("second sync skips unchanged sources", func(t *testing.T) {
		out, err := env.RunSupportbot("sync", "faq")
		require.NoError(t, err, out)
		assert.Contains(t, out, "0 synced, 2 unchanged")
	})

	t.Run("search ranks the matching faq first", func(t *testing.T) {
		out, err := env.RunSupportbot("search", "reset password", "--top-k", "1")
		require.NoError(t, err, out)
		assert.Contains(t, out, "Found 1 results:")
		assert.Contains(t, out, "1. faq/f1 #0")
	})

	var chatID string
	t.Run("ask answers from the synced faq", func(t *testing.T) {
		out, err := env.RunSupportbot("ask", "I forgot my password, how do I reset it?", "--output")
		require.NoError(t, err, out)

		var chat struct {
			ChatID  string `json:"chat_id"`
			Answer  string `json:"answer"`
			Sources []struct {
				SourceID string `json:"source_id"`
			} `json:"sources"`
		}
		require.NoError(t, json.Unmarshal([]byte(out), &chat), out)
		assert.Equal(t, "Use the reset link on the login page.", chat.Answer)
		require.NotEmpty(t, chat.Sources)
		assert.Equal(t, "f1", chat.Sources[0].SourceID)
		require.NotEmpty(t, chat.ChatID)
		chatID = chat.ChatID
	})

	t.Run("feedback and logs", func(t *testing.T) {
		require.NotEmpty(t, chatID)

		out, err := env.RunSupportbot("feedback", chatID, "--unhelpful")
		require.NoError(t, err, out)
		assert.Equal(t, "Marked "+chatID+" as unhelpful\n", out)

		out, err = env.RunSupportbot("logs", "--helpful=false", "--output")
		require.NoError(t, err, out)

		var page struct {
			Items []struct {
				ID       string `json:"id"`
				Question string `json:"question"`
				Grounded bool   `json:"grounded"`
			} `json:"items"`
		}
		require.NoError(t, json.Unmarshal([]byte(out), &page), out)
		require.Len(t, page.Items, 1)
		assert.Equal(t, chatID, page.Items[0].ID)
		assert.True(t, page.Items[0].Grounded)
	})
}

// TestE2E_SourceLifecycle follows one FAQ through edit, deletion and removal.
func TestE2E_SourceLifecycle(t *testing.T) {
	env := SetupE2EEnv(t)
	defer env.Cleanup()
	env.BuildBinaries()

	env.SeedFAQ("f1", "Can I pay by invoice?", "Yes, on the business plan.")

	out, err := env.RunSupportbot("sync", "faq", "f1")
	require.NoError(t, err, out)
	assert.Equal(t, "faq/f1: synced 1 chunks\n", out)

	t.Run("edited source is re-indexed", func(t *testing.T) {
		env.SeedFAQ("f1", "Can I pay by invoice?", "Invoices are available on every plan.")

		out, err := env.RunSupportbot("sync", "faq", "f1")
		require.NoError(t, err, out)
		assert.Equal(t, "faq/f1: synced 1 chunks\n", out)

		var text string
		require.NoError(t, env.Pool.QueryRow(env.Ctx,
			`SELECT text FROM knowledge_chunks WHERE source_type = 'faq' AND source_id = 'f1'`).Scan(&text))
		assert.Contains(t, text, "every plan")
	})

	t.Run("deleted source is removed on sync", func(t *testing.T) {
		env.Exec(`DELETE FROM faqs WHERE id = 'f1'`)

		out, err := env.RunSupportbot("sync", "faq", "f1")
		require.NoError(t, err, out)
		assert.Equal(t, "faq/f1: removed (no content)\n", out)
		assert.Equal(t, 0, env.ChunkCount("faq", "f1"))
	})

	t.Run("remove by type", func(t *testing.T) {
		env.SeedFAQ("f2", "Is there a free trial?", "Yes, fourteen days.")
		env.SeedFAQ("f3", "Do you offer refunds?", "Within thirty days.")
		_, err := env.RunSupportbot("sync", "faq")
		require.NoError(t, err)
		require.Equal(t, 2, env.ChunkCount("faq", ""))

		out, err := env.RunSupportbot("remove", "faq")
		require.NoError(t, err, out)
		assert.Equal(t, "Removed 2 chunks for faq\n", out)
		assert.Equal(t, 0, env.ChunkCount("faq", ""))
	})
}

// TestE2E_AsyncRebuild queues a rebuild and waits for the worker.
func TestE2E_AsyncRebuild(t *testing.T) {
	env := SetupE2EEnv(t)
	defer env.Cleanup()
	env.BuildBinaries()

	env.SeedFAQ("f1", "How do I post a job?", "Click post a job on your dashboard.")
	env.SeedBlogPost("b1", "Hiring trends", "Remote roles keep growing across the board.")

	out, err := env.RunSupportbot("rebuild", "--async", "--output")
	require.NoError(t, err, out)

	var queued []struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &queued), out)
	require.Len(t, queued, 4)

	for _, job := range queued {
		require.Eventually(t, func() bool {
			out, err := env.RunSupportbot("job", job.ID)
			return err == nil && strings.Contains(out, "completed")
		}, 30*time.Second, 250*time.Millisecond, "job %s did not complete", job.ID)
	}

	assert.Equal(t, 1, env.ChunkCount("faq", ""))
	assert.Equal(t, 1, env.ChunkCount("blog", ""))
}

// TestE2E_UngroundedQuestionIsLogged asks about something no source covers.
func TestE2E_UngroundedQuestionIsLogged(t *testing.T) {
	env := SetupE2EEnv(t)
	defer env.Cleanup()
	env.BuildBinaries()

	out, err := env.RunSupportbot("ask", "What is the capital of France?")
	require.NoError(t, err, out)
	assert.Equal(t, "I am not sure, please contact support.\n", out)

	out, err = env.RunSupportbot("logs", "--ungrounded")
	require.NoError(t, err, out)
	assert.Contains(t, out, "ungrounded")
	assert.Contains(t, out, "What is the capital of France?")
}
