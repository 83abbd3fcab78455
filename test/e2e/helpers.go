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
	"os/exec"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/revisehq/cardsmith/internal/api/handlers"
	"github.com/revisehq/cardsmith/internal/chunker"
	"github.com/revisehq/cardsmith/internal/dedup"
	"github.com/revisehq/cardsmith/internal/domain"
	"github.com/revisehq/cardsmith/internal/genai"
	"github.com/revisehq/cardsmith/internal/jobs"
	"github.com/revisehq/cardsmith/internal/pipeline"
	"github.com/revisehq/cardsmith/internal/progress"
	"github.com/revisehq/cardsmith/internal/repository"
	"github.com/revisehq/cardsmith/internal/server"
	"github.com/revisehq/cardsmith/internal/service"
	"github.com/revisehq/cardsmith/internal/storage"
	"github.com/revisehq/cardsmith/internal/testutil"
	"github.com/revisehq/cardsmith/internal/tracker"
)

// fixturePages is the page count the stub extractor reports for every
// registered document.
const fixturePages = 12

// E2ETestEnv holds all resources needed for E2E tests
type E2ETestEnv struct {
	T            *testing.T
	Ctx          context.Context
	PostgresC    *testutil.PostgresContainer
	RustFSC      *testutil.RustFSContainer
	Pool         *pgxpool.Pool
	ServerURL    string
	ServerCloser func()
	S3Client     *storage.S3Client
	Sink         *memorySink
	BinaryDir    string
	HTTPClient   *http.Client
}

// SetupE2EEnv creates a full E2E test environment with containers, the HTTP
// server, and an in-process pipeline worker. Generation and PDF extraction
// are stubbed; everything else is real.
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
		Bucket:          "cardsmith-e2e",
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

	sink := &memorySink{}
	serverURL, serverCloser := startServer(t, pool, s3Client, sink, port)

	return &E2ETestEnv{
		T:            t,
		Ctx:          ctx,
		PostgresC:    pgC,
		RustFSC:      s3C,
		Pool:         pool,
		ServerURL:    serverURL,
		ServerCloser: serverCloser,
		S3Client:     s3Client,
		Sink:         sink,
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
	if e.BinaryDir != "" {
		os.RemoveAll(e.BinaryDir)
	}
}

// WritePDFFixture writes a placeholder PDF file and returns its path. Page
// content comes from the stub extractor, so only the file's existence matters.
func (e *E2ETestEnv) WritePDFFixture(name string) string {
	path := filepath.Join(e.T.TempDir(), name)
	if err := os.WriteFile(path, []byte("%PDF-1.4 e2e fixture"), 0o644); err != nil {
		e.T.Fatalf("failed to write fixture: %v", err)
	}
	return path
}

// BuildBinaries builds the cardsmith CLI binary
func (e *E2ETestEnv) BuildBinaries() {
	tmpDir, err := os.MkdirTemp("", "cardsmith-e2e-*")
	if err != nil {
		e.T.Fatalf("failed to create temp dir: %v", err)
	}
	e.BinaryDir = tmpDir

	cmd := exec.Command("go", "build", "-o", filepath.Join(tmpDir, "cardsmith"), "./cmd/cardsmith")
	cmd.Dir = "../.."
	if out, err := cmd.CombinedOutput(); err != nil {
		e.T.Fatalf("failed to build cardsmith: %v\n%s", err, out)
	}
}

// RunCardsmith runs the cardsmith CLI command against the test server
func (e *E2ETestEnv) RunCardsmith(args ...string) (string, error) {
	cmd := exec.Command(filepath.Join(e.BinaryDir, "cardsmith"), args...)
	cmd.Env = append(os.Environ(),
		fmt.Sprintf("CARDSMITH_API_URL=%s", e.ServerURL),
	)
	out, err := cmd.CombinedOutput()
	return string(out), err
}

// APIResponse represents a standard API response
type APIResponse struct {
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error,omitempty"`
}

// Get performs a GET request
func (e *E2ETestEnv) Get(path string) (*APIResponse, error) {
	return e.doRequest("GET", path, nil)
}

// Post performs a POST request
func (e *E2ETestEnv) Post(path string, body interface{}) (*APIResponse, error) {
	return e.doRequest("POST", path, body)
}

func (e *E2ETestEnv) doRequest(method, path string, body interface{}) (*APIResponse, error) {
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

// RegisterDocument registers a fixture document and returns its ID
func (e *E2ETestEnv) RegisterDocument(name string) string {
	path := e.WritePDFFixture(name)
	resp, err := e.Post("/documents", map[string]string{"name": name, "path": path})
	if err != nil {
		e.T.Fatalf("failed to register document: %v", err)
	}

	var doc struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(resp.Data, &doc); err != nil {
		e.T.Fatalf("failed to parse document response: %v", err)
	}
	return doc.ID
}

type jobState struct {
	ID                 string `json:"id"`
	Status             string `json:"status"`
	ProgressPercentage int    `json:"progress_percentage"`
	TotalChunks        int    `json:"total_chunks"`
	CompletedChunks    int    `json:"completed_chunks"`
	TotalCards         int    `json:"total_cards"`
	Error              string `json:"error"`
}

// GetJob fetches a job's current state
func (e *E2ETestEnv) GetJob(jobID string) *jobState {
	resp, err := e.Get("/jobs/" + jobID)
	if err != nil {
		e.T.Fatalf("failed to get job: %v", err)
	}

	var job jobState
	if err := json.Unmarshal(resp.Data, &job); err != nil {
		e.T.Fatalf("failed to parse job response: %v", err)
	}
	return &job
}

// WaitForJob polls a job until it reaches a terminal state
func (e *E2ETestEnv) WaitForJob(jobID string, timeout time.Duration) *jobState {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		job := e.GetJob(jobID)
		if job.Status == string(domain.JobStatusCompleted) || job.Status == string(domain.JobStatusFailed) {
			return job
		}
		time.Sleep(200 * time.Millisecond)
	}
	e.T.Fatalf("job %s did not reach a terminal state within %v", jobID, timeout)
	return nil
}

// stubExtractor stands in for the PDF extractor. Every document has
// fixturePages pages, and each page carries exactly one numbered topic
// whose content is unique to that page number. Overlap pages therefore
// produce identical fingerprints across adjacent chunks.
type stubExtractor struct{}

func (s *stubExtractor) PageCount(path string) (int, error) {
	return fixturePages, nil
}

func (s *stubExtractor) ExtractRange(path string, startPage, endPage int) (string, error) {
	var b bytes.Buffer
	for p := startPage; p < endPage; p++ {
		fmt.Fprintf(&b, "=== PAGE %d ===\n", p+1)
		fmt.Fprintf(&b, "%d. Principles Of Governance\n", p+1)
		fmt.Fprintf(&b, "Page %d covers separation of powers, judicial review and the amendment procedure in enough depth to examine.\n", p+1)
	}
	return b.String(), nil
}

// fakeGenerator produces two deterministic cards per topic
type fakeGenerator struct{}

func (g *fakeGenerator) GenerateBatch(ctx context.Context, req genai.BatchRequest) (*genai.BatchResult, error) {
	deck := req.Source
	if deck == "" {
		deck = "Default"
	}

	result := &genai.BatchResult{}
	for _, t := range req.Topics {
		result.Cards = append(result.Cards,
			domain.Card{Deck: deck, Front: "What is covered by " + t.Title + "?", Back: t.Content, Tags: []string{"e2e"}},
			domain.Card{Deck: deck, Front: "Summarize " + t.Title, Back: t.Content, Tags: []string{"e2e"}},
		)
	}
	return result, nil
}

// memorySink records imported cards in memory
type memorySink struct {
	mu    sync.Mutex
	cards []domain.Card
}

func (s *memorySink) ImportCards(ctx context.Context, cards []domain.Card) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cards = append(s.cards, cards...)
	return len(cards), 0, nil
}

func (s *memorySink) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cards)
}

// startServer starts the HTTP server and the pipeline worker
func startServer(t *testing.T, pool *pgxpool.Pool, s3Client *storage.S3Client, sink *memorySink, port int) (string, func()) {
	documentRepo := repository.NewDocumentRepository(pool)
	chunkRepo := repository.NewChunkRepository(pool)
	jobRepo := repository.NewJobRepository(pool)
	ledgerRepo := repository.NewLedgerRepository(pool)

	extractor := &stubExtractor{}
	planner := chunker.NewService(chunkRepo)
	jobTracker := tracker.NewTracker(jobRepo)
	ledger := dedup.NewLedger(ledgerRepo)
	bus := progress.NewBus()

	documentSvc := service.NewDocumentServiceWithUploader(documentRepo, chunkRepo, extractor, s3Client)
	jobSvc := service.NewJobService(documentSvc, planner, jobTracker, ledger)

	runner := pipeline.NewRunner(documentRepo, chunkRepo, jobTracker, ledger, &fakeGenerator{}, sink, extractor, s3Client, bus)
	processor := pipeline.NewProcessor(jobRepo, runner, 2)
	worker := jobs.NewWorker("pipeline", processor, 200*time.Millisecond)

	workerCtx, cancelWorker := context.WithCancel(context.Background())
	go worker.Start(workerCtx)

	router := server.NewRouter(server.RouterConfig{
		DocumentHandler: handlers.NewDocumentHandler(documentSvc),
		JobHandler:      handlers.NewJobHandler(jobSvc, bus),
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
		worker.Stop()
		cancelWorker()
		processor.Wait()

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
