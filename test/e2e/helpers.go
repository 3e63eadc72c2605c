//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/talentboard/supportbot/internal/api/handlers"
	"github.com/talentboard/supportbot/internal/domain"
	"github.com/talentboard/supportbot/internal/jobs"
	"github.com/talentboard/supportbot/internal/repository"
	"github.com/talentboard/supportbot/internal/server"
	"github.com/talentboard/supportbot/internal/service"
	"github.com/talentboard/supportbot/internal/testutil"
	"go.uber.org/zap/zaptest"
)

const (
	testAPIKey    = "sk-e2e-support-0123456789"
	embeddingDims = 1536
)

// E2ETestEnv holds all resources needed for E2E tests
type E2ETestEnv struct {
	T            *testing.T
	Ctx          context.Context
	PostgresC    *testutil.PostgresContainer
	Pool         *pgxpool.Pool
	ServerURL    string
	ServerCloser func()
	BinaryDir    string
	HomeDir      string
	HTTPClient   *http.Client
}

// SetupE2EEnv starts Postgres and a supportbotd server wired to it.
func SetupE2EEnv(t *testing.T) *E2ETestEnv {
	ctx := context.Background()

	pgC := testutil.NewPostgresContainer(ctx, t)
	pool := testutil.NewTestPool(ctx, t, pgC, "../../migrations")

	port, err := getFreePort()
	if err != nil {
		t.Fatalf("failed to get free port: %v", err)
	}

	serverURL, serverCloser := startServer(t, pool, port)

	return &E2ETestEnv{
		T:            t,
		Ctx:          ctx,
		PostgresC:    pgC,
		Pool:         pool,
		ServerURL:    serverURL,
		ServerCloser: serverCloser,
		HomeDir:      t.TempDir(),
		HTTPClient:   &http.Client{Timeout: 30 * time.Second},
	}
}

// Cleanup releases all resources
func (e *E2ETestEnv) Cleanup() {
	if e.ServerCloser != nil {
		e.ServerCloser()
	}
	if e.Pool != nil {
		e.Pool.Close()
	}
	if e.PostgresC != nil {
		_ = e.PostgresC.Terminate(e.Ctx)
	}
	if e.BinaryDir != "" {
		_ = os.RemoveAll(e.BinaryDir)
	}
}

// BuildBinaries builds the supportbot client binary
func (e *E2ETestEnv) BuildBinaries() {
	tmpDir, err := os.MkdirTemp("", "supportbot-e2e-*")
	if err != nil {
		e.T.Fatalf("failed to create temp dir: %v", err)
	}
	e.BinaryDir = tmpDir

	cmd := exec.Command("go", "build", "-o", filepath.Join(tmpDir, "supportbot"), "./cmd/supportbot")
	cmd.Dir = "../.."
	if out, err := cmd.CombinedOutput(); err != nil {
		e.T.Fatalf("failed to build supportbot: %v\n%s", err, out)
	}
}

// RunSupportbot runs the supportbot CLI against the test server.
func (e *E2ETestEnv) RunSupportbot(args ...string) (string, error) {
	cmd := exec.Command(filepath.Join(e.BinaryDir, "supportbot"), args...)
	cmd.Dir = e.HomeDir
	cmd.Env = append(os.Environ(),
		"HOME="+e.HomeDir,
		"XDG_CONFIG_HOME="+filepath.Join(e.HomeDir, ".config"),
		"SUPPORTBOT_API_KEY="+testAPIKey,
		"SUPPORTBOT_API_URL="+e.ServerURL,
	)
	out, err := cmd.CombinedOutput()
	return string(out), err
}

// SeedFAQ inserts or replaces a FAQ row in the job board tables.
func (e *E2ETestEnv) SeedFAQ(id, question, answer string) {
	_, err := e.Pool.Exec(e.Ctx,
		`INSERT INTO faqs (id, question, answer) VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO UPDATE SET question = EXCLUDED.question, answer = EXCLUDED.answer, updated_at = now()`,
		id, question, answer)
	if err != nil {
		e.T.Fatalf("failed to seed faq %s: %v", id, err)
	}
}

// SeedBlogPost inserts a blog post row.
func (e *E2ETestEnv) SeedBlogPost(id, title, description string) {
	_, err := e.Pool.Exec(e.Ctx,
		`INSERT INTO blog_posts (id, title, description) VALUES ($1, $2, $3)`,
		id, title, description)
	if err != nil {
		e.T.Fatalf("failed to seed blog post %s: %v", id, err)
	}
}

// Exec runs a statement against the test database.
func (e *E2ETestEnv) Exec(sql string, args ...any) {
	if _, err := e.Pool.Exec(e.Ctx, sql, args...); err != nil {
		e.T.Fatalf("exec %q failed: %v", sql, err)
	}
}

// ChunkCount returns the number of stored chunks for a source, or for the
// whole type when sourceID is empty.
func (e *E2ETestEnv) ChunkCount(sourceType, sourceID string) int {
	query := `SELECT count(*) FROM knowledge_chunks WHERE source_type = $1`
	args := []any{sourceType}
	if sourceID != "" {
		query += ` AND source_id = $2`
		args = append(args, sourceID)
	}
	var n int
	if err := e.Pool.QueryRow(e.Ctx, query, args...).Scan(&n); err != nil {
		e.T.Fatalf("failed to count chunks: %v", err)
	}
	return n
}

// APIResponse represents a standard API response
type APIResponse struct {
	Status int
	Data   json.RawMessage `json:"data"`
	Error  string          `json:"error,omitempty"`
	Code   string          `json:"code,omitempty"`
}

// Get performs a GET request
func (e *E2ETestEnv) Get(path, apiKey string) (*APIResponse, error) {
	return e.doRequest(http.MethodGet, path, nil, apiKey)
}

// Post performs a POST request
func (e *E2ETestEnv) Post(path string, body any, apiKey string) (*APIResponse, error) {
	return e.doRequest(http.MethodPost, path, body, apiKey)
}

func (e *E2ETestEnv) doRequest(method, path string, body any, apiKey string) (*APIResponse, error) {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequest(method, e.ServerURL+path, reqBody)
	if err != nil {
		return nil, err
	}
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	apiResp := APIResponse{Status: resp.StatusCode}
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
	}
	if resp.StatusCode >= 400 {
		return &apiResp, fmt.Errorf("HTTP %d: %s", resp.StatusCode, apiResp.Error)
	}
	return &apiResp, nil
}

// wordEmbedder hashes words into a fixed-size vector so that texts sharing
// vocabulary are close under cosine similarity.
type wordEmbedder struct{}

func embedWords(text string) []float32 {
	v := make([]float32, embeddingDims)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,?!:;\"'")
		if len(w) < 3 {
			continue
		}
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		v[h.Sum32()%embeddingDims]++
	}
	v[embeddingDims-1] += 0.01
	return v
}

func (wordEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return embedWords(text), nil
}

func (wordEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = embedWords(t)
	}
	return out, nil
}

// contextGenerator answers with the first context source it was given, or a
// fixed apology when there was none.
type contextGenerator struct{}

func (contextGenerator) Generate(_ context.Context, messages []domain.Turn) (domain.GeneratedContent, error) {
	system := messages[0].Content
	if strings.Contains(system, "No relevant context provided.") {
		return domain.GeneratedContent{Text: "I am not sure, please contact support."}, nil
	}
	_, after, _ := strings.Cut(system, "Answer:\n")
	answer, _, _ := strings.Cut(after, "\n")
	return domain.GeneratedContent{Text: strings.TrimSpace(answer)}, nil
}

// startServer starts the HTTP server and sync worker the way supportbotd serve does.
func startServer(t *testing.T, pool *pgxpool.Pool, port int) (string, func()) {
	log := zaptest.NewLogger(t)

	catalog := repository.NewSourceRepository(pool)
	chunks := repository.NewKnowledgeChunkRepository(pool)
	jobRepo := repository.NewSyncJobRepository(pool)
	chatLogs := service.NewChatLogService(repository.NewChatLogRepository(pool), nil)

	syncCfg := service.DefaultSyncConfig()
	syncCfg.SkipUnchanged = true
	syncSvc := service.NewSyncService(catalog, wordEmbedder{}, chunks, syncCfg, log)
	retriever := service.NewRetriever(wordEmbedder{}, chunks, chunks, log)
	answers := service.NewAnswerService(retriever, contextGenerator{}, "", log)

	router := server.NewRouter(server.RouterConfig{
		Log:            log,
		APIKeys:        []string{testAPIKey},
		ChatHandler:    handlers.NewChatHandlerWithLog(answers, retriever, chatLogs),
		SourcesHandler: handlers.NewSourcesHandler(syncSvc, jobRepo),
		ChatLogHandler: handlers.NewChatLogHandler(chatLogs),
		Health:         pool,
	})

	workerCtx, stopWorker := context.WithCancel(context.Background())
	worker := jobs.NewWorker(jobs.NewSyncWorker(jobRepo, syncSvc, 30*time.Second, log), 200*time.Millisecond, log)
	go worker.Start(workerCtx)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			t.Logf("server error: %v", err)
		}
	}()

	serverURL := fmt.Sprintf("http://localhost:%d", port)
	waitForServer(t, serverURL, 10*time.Second)

	return serverURL, func() {
		stopWorker()
		worker.Stop()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

func waitForServer(t *testing.T, url string, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("server did not start within %v", timeout)
}

func getFreePort() (int, error) {
	addr, err := net.ResolveTCPAddr("tcp", "localhost:0")
	if err != nil {
		return 0, err
	}

	l, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
