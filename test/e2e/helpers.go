//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/praxis-ed/curio/internal/api/handlers"
	"github.com/praxis-ed/curio/internal/cloudparse"
	"github.com/praxis-ed/curio/internal/domain"
	"github.com/praxis-ed/curio/internal/index"
	"github.com/praxis-ed/curio/internal/ingest"
	"github.com/praxis-ed/curio/internal/openai"
	"github.com/praxis-ed/curio/internal/pageimage"
	"github.com/praxis-ed/curio/internal/parser"
	"github.com/praxis-ed/curio/internal/repository"
	"github.com/praxis-ed/curio/internal/server"
	"github.com/praxis-ed/curio/internal/service"
	"github.com/praxis-ed/curio/internal/storage"
	"github.com/praxis-ed/curio/internal/testutil"
)

// E2ETestEnv holds all resources needed for E2E tests
type E2ETestEnv struct {
	T            *testing.T
	Ctx          context.Context
	PostgresC    *testutil.PostgresContainer
	RustFSC      *testutil.RustFSContainer
	Pool         *pgxpool.Pool
	S3Client     *storage.S3Client
	ServerURL    string
	ServerCloser func()
	HTTPClient   *http.Client
}

// SetupE2EEnv creates a full E2E test environment with containers and server
func SetupE2EEnv(t *testing.T) *E2ETestEnv {
	ctx := context.Background()

	pgC := testutil.NewPostgresContainer(ctx, t)
	s3C := testutil.NewRustFSContainer(ctx, t)

	pool := testutil.NewTestPool(ctx, t, pgC, "../../migrations")

	s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
		Endpoint:        s3C.Endpoint(),
		Region:          "us-east-1",
		AccessKeyID:     "rustfsadmin",
		SecretAccessKey: "rustfsadmin",
		Bucket:          "curio-books",
		UsePathStyle:    true,
	})
	if err != nil {
		t.Fatalf("failed to create S3 client: %v", err)
	}
	if err := s3Client.EnsureBucket(ctx); err != nil {
		t.Fatalf("failed to create bucket: %v", err)
	}

	port, err := getFreePort()
	if err != nil {
		t.Fatalf("failed to get free port: %v", err)
	}

	serverURL, serverCloser := startServer(t, pool, port)

	return &E2ETestEnv{
		T:            t,
		Ctx:          ctx,
		PostgresC:    pgC,
		RustFSC:      s3C,
		Pool:         pool,
		S3Client:     s3Client,
		ServerURL:    serverURL,
		ServerCloser: serverCloser,
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
	if e.RustFSC != nil {
		e.RustFSC.Terminate(e.Ctx)
	}
	if e.PostgresC != nil {
		e.PostgresC.Terminate(e.Ctx)
	}
}

// StageBook uploads a document and its layout sidecar to the bucket, then
// fetches them back into a local cache dir the way the admin CLI stages
// s3:// sources. Returns the staged local document path.
func (e *E2ETestEnv) StageBook(key string, doc, layout []byte) string {
	srcDir := e.T.TempDir()
	docPath := filepath.Join(srcDir, path.Base(key))
	layoutPath := docPath + ".layout.json"

	if err := os.WriteFile(docPath, doc, 0o644); err != nil {
		e.T.Fatalf("failed to write fixture doc: %v", err)
	}
	if err := os.WriteFile(layoutPath, layout, 0o644); err != nil {
		e.T.Fatalf("failed to write fixture layout: %v", err)
	}

	if err := e.S3Client.PutObject(e.Ctx, key, docPath); err != nil {
		e.T.Fatalf("failed to upload doc: %v", err)
	}
	if err := e.S3Client.PutObject(e.Ctx, key+".layout.json", layoutPath); err != nil {
		e.T.Fatalf("failed to upload layout: %v", err)
	}

	cacheDir := e.T.TempDir()
	staged, err := e.S3Client.FetchPrefix(e.Ctx, key, cacheDir)
	if err != nil {
		e.T.Fatalf("failed to stage book from bucket: %v", err)
	}
	if len(staged) == 0 {
		e.T.Fatal("staging fetched no files")
	}

	return filepath.Join(cacheDir, path.Base(key))
}

// APIResponse represents a standard API response
type APIResponse struct {
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error,omitempty"`
}

// Get performs a GET request, optionally identified by userID
func (e *E2ETestEnv) Get(path, userID string) (*APIResponse, error) {
	return e.doRequest("GET", path, nil, userID)
}

// Post performs a POST request, optionally identified by userID
func (e *E2ETestEnv) Post(path string, body interface{}, userID string) (*APIResponse, error) {
	return e.doRequest("POST", path, body, userID)
}

func (e *E2ETestEnv) doRequest(method, path string, body interface{}, userID string) (*APIResponse, error) {
	url := e.ServerURL + path

	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var apiResp APIResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
		}
		return nil, err
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, apiResp.Error)
	}

	return &apiResp, nil
}

// startServer starts the HTTP server with the full pipeline wired against
// the mock embedder. No OpenAI key is involved anywhere in the e2e run.
func startServer(t *testing.T, pool *pgxpool.Pool, port int) (string, func()) {
	ctx := context.Background()

	pages := pageimage.NewStore()
	runner := ingest.NewRunner(
		parser.NewFileLayoutParser(),
		parser.NewAdapter(),
		cloudparse.NewClient("", ""),
		noVision{},
		pages,
		2,
	)

	idx := index.NewPGIndex(pool, index.NewMockEmbedder(0))
	if err := idx.EnsureSchema(ctx); err != nil {
		t.Fatalf("failed to ensure index schema: %v", err)
	}

	structures := repository.NewStructureRepository(pool)
	indexer := service.NewIndexingService(idx)
	ingestion := service.NewIngestionService(runner, structures, indexer, openai.NewClient(""), pages)
	search := service.NewSearchService(idx)

	router := server.NewRouter(server.RouterConfig{
		IngestHandler: handlers.NewIngestHandler(ingestion),
		SearchHandler: handlers.NewSearchHandler(search),
		BooksHandler:  handlers.NewBooksHandler(structures),
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			t.Logf("server error: %v", err)
		}
	}()

	serverURL := fmt.Sprintf("http://localhost:%d", port)
	waitForServer(t, serverURL, 10*time.Second)

	return serverURL, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
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

// noVision fails the third chain strategy fast so a degraded fixture never
// waits on a network call.
type noVision struct{}

func (noVision) ExtractPage(_ context.Context, _ []byte) (*openai.PageExtraction, error) {
	return nil, domain.ErrNoVisionModel
}
