package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/clausewise/internal/core"
	db "github.com/markdave123-py/clausewise/internal/core/database"
	"github.com/markdave123-py/clausewise/internal/core/ingestion_engine"
	objectclient "github.com/markdave123-py/clausewise/internal/core/object-client"
	"github.com/markdave123-py/clausewise/internal/models"
	"github.com/markdave123-py/clausewise/internal/orchestrator"
	"github.com/markdave123-py/clausewise/internal/registry"
)

type recordingIngestor struct {
	mu   sync.Mutex
	jobs []ingestion_engine.Job
}

func (r *recordingIngestor) Start(ctx context.Context) {}

func (r *recordingIngestor) Enqueue(job ingestion_engine.Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = append(r.jobs, job)
}

type failingStorage struct {
	*objectclient.MemoryClient
	failOn string
}

func (f *failingStorage) UploadFile(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if strings.HasSuffix(key, f.failOn) {
		return "", errors.New("bucket unavailable")
	}
	return f.MemoryClient.UploadFile(ctx, key, data, contentType)
}

type fixture struct {
	svc      *DocumentService
	reg      *registry.Registry
	orch     *orchestrator.Orchestrator
	storage  core.ObjectClient
	clauses  *db.MemoryClauseStore
	ingestor *recordingIngestor
}

func newFixture(t *testing.T, storage core.ObjectClient, answerer core.Answerer) *fixture {
	t.Helper()
	if storage == nil {
		storage = objectclient.NewMemoryClient()
	}
	if answerer == nil {
		answerer = core.AnswererFunc(func(ctx context.Context, req core.AnswerRequest) (*models.QueryResponse, error) {
			return &models.QueryResponse{Answer: "ok", Sources: []models.Source{}}, nil
		})
	}
	reg := registry.New(nil)
	orch := orchestrator.New(reg, answerer, orchestrator.Config{}, nil)
	t.Cleanup(orch.Close)
	clauses := db.NewMemoryClauseStore()
	ing := &recordingIngestor{}
	return &fixture{
		svc:      NewDocumentService(storage, clauses, reg, orch, ing, 1024, nil),
		reg:      reg,
		orch:     orch,
		storage:  storage,
		clauses:  clauses,
		ingestor: ing,
	}
}

func TestUploadRegistersAndEnqueues(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()

	docs, err := f.svc.Upload(ctx, []Upload{
		{Name: "policy terms.pdf", ContentType: "application/pdf", Data: []byte("%PDF")},
		{Name: "notes.md", Data: []byte("# notes")},
	})

	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, 2, f.reg.Count())
	assert.Equal(t, "application/pdf", docs[0].MediaType)
	assert.Equal(t, "text/markdown", docs[1].MediaType)
	assert.Equal(t, int64(4), docs[0].SizeBytes)
	assert.True(t, strings.HasSuffix(docs[0].StorageKey, "/policy_terms.pdf"))

	data, err := f.storage.GetFile(ctx, docs[1].StorageKey)
	require.NoError(t, err)
	assert.Equal(t, "# notes", string(data))

	require.Len(t, f.ingestor.jobs, 2)
	assert.Equal(t, docs[0].ID, f.ingestor.jobs[0].DocumentID)
	assert.Equal(t, docs[1].StorageKey, f.ingestor.jobs[1].StorageKey)
}

func TestUploadRejectsOversizedFileBeforeStoring(t *testing.T) {
	f := newFixture(t, nil, nil)

	_, err := f.svc.Upload(context.Background(), []Upload{
		{Name: "a.txt", Data: []byte("small")},
		{Name: "big.txt", Data: make([]byte, 2048)},
	})

	require.ErrorIs(t, err, ErrFileTooLarge)
	assert.Zero(t, f.reg.Count())
	assert.Empty(t, f.ingestor.jobs)
}

func TestUploadStorageFailureRegistersNothing(t *testing.T) {
	mem := objectclient.NewMemoryClient()
	f := newFixture(t, &failingStorage{MemoryClient: mem, failOn: "b.txt"}, nil)

	_, err := f.svc.Upload(context.Background(), []Upload{
		{Name: "a.txt", Data: []byte("a")},
		{Name: "b.txt", Data: []byte("b")},
	})

	require.ErrorContains(t, err, "bucket unavailable")
	assert.Zero(t, f.reg.Count())
	assert.Empty(t, f.ingestor.jobs)
}

func TestUploadPaths(t *testing.T) {
	f := newFixture(t, nil, nil)
	dir := t.TempDir()
	p := filepath.Join(dir, "terms.txt")
	require.NoError(t, os.WriteFile(p, []byte("Clause 1 text"), 0o600))

	docs, err := f.svc.UploadPaths(context.Background(), []string{p})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "terms.txt", docs[0].Name)
	assert.Equal(t, "text/plain", docs[0].MediaType)

	_, err = f.svc.UploadPaths(context.Background(), []string{filepath.Join(dir, "missing.pdf")})
	require.Error(t, err)
}

func TestRemoveCleansStorageAndClauses(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()
	docs, err := f.svc.Upload(ctx, []Upload{{Name: "a.txt", Data: []byte("a")}})
	require.NoError(t, err)
	id := docs[0].ID
	require.NoError(t, f.clauses.SaveClauses(ctx, []models.Clause{{ID: "c1", DocumentID: id}}))

	require.NoError(t, f.svc.Remove(ctx, id))

	_, err = f.svc.Get(id)
	require.ErrorIs(t, err, registry.ErrNotFound)
	_, err = f.storage.GetFile(ctx, docs[0].StorageKey)
	require.ErrorIs(t, err, objectclient.ErrObjectNotFound)
	left, _ := f.clauses.ClausesByDocument(ctx, id)
	assert.Empty(t, left)

	require.ErrorIs(t, f.svc.Remove(ctx, id), registry.ErrNotFound)
}

func TestRemoveGuardedDuringQuery(t *testing.T) {
	release := make(chan struct{})
	answerer := core.AnswererFunc(func(ctx context.Context, req core.AnswerRequest) (*models.QueryResponse, error) {
		<-release
		return &models.QueryResponse{Answer: "ok"}, nil
	})
	f := newFixture(t, nil, answerer)
	ctx := context.Background()
	docs, err := f.svc.Upload(ctx, []Upload{{Name: "a.txt", Data: []byte("a")}})
	require.NoError(t, err)

	sub, err := f.orch.Submit("question")
	require.NoError(t, err)

	require.ErrorIs(t, f.svc.Remove(ctx, docs[0].ID), orchestrator.ErrDocumentInUse)
	_, err = f.storage.GetFile(ctx, docs[0].StorageKey)
	require.NoError(t, err)

	close(release)
	_, err = f.orch.Await(ctx, sub.Generation)
	require.NoError(t, err)
	require.NoError(t, f.svc.Remove(ctx, docs[0].ID))
}
