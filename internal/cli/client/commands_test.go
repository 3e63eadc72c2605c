package client

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRequest struct {
	Method string
	Path   string
	Query  string
	Body   map[string]any
}

// fakeServer answers every request with the canned data for its method and
// path and records what it received.
func fakeServer(t *testing.T, routes map[string]string) (*APIClient, *[]recordedRequest) {
	t.Helper()
	var reqs []recordedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recordedRequest{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery}
		if r.ContentLength > 0 {
			require.NoError(t, json.NewDecoder(r.Body).Decode(&rec.Body))
		}
		reqs = append(reqs, rec)

		data, ok := routes[r.Method+" "+r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"not found","code":"NOT_FOUND"}`))
			return
		}
		_, _ = w.Write([]byte(`{"data":` + data + `}`))
	}))
	t.Cleanup(srv.Close)

	api, err := NewAPIClientWithConfig("sk-support-0123456789", srv.URL)
	require.NoError(t, err)
	return api, &reqs
}

const chatData = `{"answer":"Use the reset link.","sources":[{"id":"c1","source_type":"faq","source_id":"f1","chunk_index":0,"text":"reset","score":0.91}]}`

func TestRunAsk(t *testing.T) {
	api, reqs := fakeServer(t, map[string]string{"POST /chat": chatData})

	var out bytes.Buffer
	require.NoError(t, runAsk(context.Background(), api, &out, "How do I reset my password?", 3, true, false))

	assert.Equal(t, "Use the reset link.\n\nSources:\n  1. faq/f1 #0 (0.91)\n", out.String())
	require.Len(t, *reqs, 1)
	assert.Equal(t, "How do I reset my password?", (*reqs)[0].Body["question"])
	assert.Equal(t, float64(3), (*reqs)[0].Body["top_k"])
}

func TestRunAsk_JSON(t *testing.T) {
	api, _ := fakeServer(t, map[string]string{"POST /chat": chatData})

	var out bytes.Buffer
	require.NoError(t, runAsk(context.Background(), api, &out, "q", 0, false, true))

	var chat ChatResponse
	require.NoError(t, json.Unmarshal(out.Bytes(), &chat))
	assert.Equal(t, "Use the reset link.", chat.Answer)
	require.Len(t, chat.Sources, 1)
}

func TestRunConversation_SendsHistory(t *testing.T) {
	api, reqs := fakeServer(t, map[string]string{"POST /chat": chatData})

	in := strings.NewReader("first question\nfollow up\n\n")
	var out bytes.Buffer
	require.NoError(t, runConversation(context.Background(), api, in, &out, 0, false))

	require.Len(t, *reqs, 2)
	assert.Nil(t, (*reqs)[0].Body["history"])

	history, ok := (*reqs)[1].Body["history"].([]any)
	require.True(t, ok)
	require.Len(t, history, 2)
	assert.Equal(t, map[string]any{"role": "user", "content": "first question"}, history[0])
	assert.Equal(t, map[string]any{"role": "assistant", "content": "Use the reset link."}, history[1])
}

func TestRunConversation_ContinuesAfterError(t *testing.T) {
	api, reqs := fakeServer(t, map[string]string{})

	var out bytes.Buffer
	require.NoError(t, runConversation(context.Background(), api, strings.NewReader("q\n"), &out, 0, false))

	assert.Len(t, *reqs, 1)
	assert.Contains(t, out.String(), "error: chat failed")
}

func TestRunSearch(t *testing.T) {
	api, reqs := fakeServer(t, map[string]string{
		"GET /search": `{"results":[{"id":"c1","source_type":"blog","source_id":"b1","chunk_index":2,"text":"Ten   tips\nfor hiring","score":0.5}]}`,
	})

	var out bytes.Buffer
	require.NoError(t, runSearch(context.Background(), api, &out, "hiring tips", 5, false))

	assert.Equal(t, "Found 1 results:\n\n1. blog/b1 #2 (0.50)\n   Ten tips for hiring\n", out.String())
	require.Len(t, *reqs, 1)
	assert.Equal(t, "q=hiring+tips&top_k=5", (*reqs)[0].Query)
}

func TestRunSearch_NoResults(t *testing.T) {
	api, _ := fakeServer(t, map[string]string{"GET /search": `{"results":[]}`})

	var out bytes.Buffer
	require.NoError(t, runSearch(context.Background(), api, &out, "nothing", 0, false))
	assert.Equal(t, "No results found.\n", out.String())
}

func TestRunSync(t *testing.T) {
	api, reqs := fakeServer(t, map[string]string{
		"POST /sources/faq/sync":    `{"source_type":"faq","synced":2,"skipped":1,"removed":0,"orphans":1,"chunks":4,"failed":[{"source_id":"f3","error":"upstream"}]}`,
		"POST /sources/faq/f1/sync": `{"source_type":"faq","source_id":"f1","chunks":2}`,
	})

	var all bytes.Buffer
	require.NoError(t, runSync(context.Background(), api, &all, "faq", "", false, false))
	assert.Equal(t, "faq: 2 synced, 1 unchanged, 0 removed, 1 orphans, 4 chunks\n  failed f3: upstream\n", all.String())

	var one bytes.Buffer
	require.NoError(t, runSync(context.Background(), api, &one, "faq", "f1", false, false))
	assert.Equal(t, "faq/f1: synced 2 chunks\n", one.String())

	require.Len(t, *reqs, 2)
	assert.Equal(t, http.MethodPost, (*reqs)[1].Method)
}

func TestRunSync_Async(t *testing.T) {
	api, reqs := fakeServer(t, map[string]string{
		"POST /sources/blog/sync": `[{"id":"job-1","source_type":"blog","action":"sync","status":"pending","retries":0,"created_at":"2026-01-01T00:00:00Z"}]`,
	})

	var out bytes.Buffer
	require.NoError(t, runSync(context.Background(), api, &out, "blog", "", true, false))

	assert.Equal(t, "Queued 1 job(s):\njob-1  sync blog  pending\n", out.String())
	assert.Equal(t, "async=true", (*reqs)[0].Query)
}

func TestRunRemove(t *testing.T) {
	api, reqs := fakeServer(t, map[string]string{
		"DELETE /sources/custom-qa/q1": `{"source_type":"custom-qa","source_id":"q1","deleted":3}`,
	})

	var out bytes.Buffer
	require.NoError(t, runRemove(context.Background(), api, &out, "custom-qa", "q1", false, false))

	assert.Equal(t, "Removed 3 chunks for custom-qa/q1\n", out.String())
	assert.Equal(t, http.MethodDelete, (*reqs)[0].Method)
}

func TestRunRebuild_PrintsInRebuildOrder(t *testing.T) {
	api, _ := fakeServer(t, map[string]string{
		"POST /rebuild": `{
			"custom-qa": {"source_type":"custom-qa","synced":1,"chunks":1},
			"faq": {"source_type":"faq","synced":2,"chunks":2},
			"blog": {"source_type":"blog"},
			"content-page": {"source_type":"content-page","synced":1,"chunks":3}
		}`,
	})

	var out bytes.Buffer
	require.NoError(t, runRebuild(context.Background(), api, &out, false, false))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "faq:"))
	assert.True(t, strings.HasPrefix(lines[1], "content-page:"))
	assert.True(t, strings.HasPrefix(lines[2], "blog:"))
	assert.True(t, strings.HasPrefix(lines[3], "custom-qa:"))
}

func TestRunJob(t *testing.T) {
	api, _ := fakeServer(t, map[string]string{
		"GET /jobs/job-7": `{"id":"job-7","source_type":"faq","source_id":"f1","action":"remove","status":"pending","retries":2,"error":"retry 2: timeout","created_at":"2026-01-01T00:00:00Z"}`,
	})

	var out bytes.Buffer
	require.NoError(t, runJob(context.Background(), api, &out, "job-7", false))
	assert.Equal(t, "job-7  remove faq/f1  pending (retries: 2)  retry 2: timeout\n", out.String())

	err := runJob(context.Background(), api, &bytes.Buffer{}, "missing", false)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}

func TestSourcePath(t *testing.T) {
	assert.Equal(t, "/sources/faq", sourcePath("faq", ""))
	assert.Equal(t, "/sources/faq/a%2Fb", sourcePath("faq", "a/b"))
}

func TestSnippet(t *testing.T) {
	assert.Equal(t, "a b c", snippet("a\n b\t c", 10))
	assert.Equal(t, "abcdefg...", snippet("abcdefghijklmnop", 10))
}

func TestRunAsk_PrintsChatID(t *testing.T) {
	api, _ := fakeServer(t, map[string]string{
		"POST /chat": `{"chat_id":"log-9","answer":"Yes.","sources":[]}`,
	})

	var out bytes.Buffer
	require.NoError(t, runAsk(context.Background(), api, &out, "Can I pay by invoice?", 0, true, false))
	assert.Equal(t, "Yes.\n\nChat ID: log-9\n", out.String())
}
