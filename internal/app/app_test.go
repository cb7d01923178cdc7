package app

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/clausewise/internal/config"
	db "github.com/markdave123-py/clausewise/internal/core/database"
	objectclient "github.com/markdave123-py/clausewise/internal/core/object-client"
	"github.com/markdave123-py/clausewise/internal/models"
)

const policyText = `Section 4.2 - Surgery Coverage
Knee surgery is covered after pre-authorization and a 24 month waiting period.

Section 5 - Exclusions
Cosmetic procedures are not covered.`

func newTestApp(t *testing.T, overrides ...func(*config.Config)) *App {
	t.Helper()
	cfg := config.Default()
	for _, o := range overrides {
		o(cfg)
	}
	a, err := NewApp(context.Background(), cfg, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a
}

func TestNewAppUsesInMemoryBackendsByDefault(t *testing.T) {
	a := newTestApp(t)

	assert.NotNil(t, a.Registry)
	assert.NotNil(t, a.Orchestrator)
	assert.NotNil(t, a.Documents)
	assert.NotNil(t, a.Server)
	assert.IsType(t, &db.MemoryClauseStore{}, a.Clauses)
	assert.IsType(t, &objectclient.MemoryClient{}, a.Storage)
}

func TestEndToEndUploadAndRun(t *testing.T) {
	a := newTestApp(t)
	h := a.Server.Handler()

	body := new(bytes.Buffer)
	w := multipart.NewWriter(body)
	part, err := w.CreateFormFile("files", "policy.txt")
	require.NoError(t, err)
	_, _ = part.Write([]byte(policyText))
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents/upload", body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	require.Eventually(t, func() bool { return a.Registry.Pending() == 0 }, 5*time.Second, 10*time.Millisecond)
	m := a.Registry.Metrics()
	assert.Equal(t, 1, m.ProcessedCount)
	assert.Equal(t, 2, m.TotalClauses)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/hackrx/run", strings.NewReader(`{"query":"Is knee surgery covered?"}`))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp models.QueryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Is knee surgery covered?", resp.Query)
	assert.Contains(t, resp.Answer, "Knee surgery is covered")
	require.NotEmpty(t, resp.Sources)
	assert.Equal(t, "policy.txt", resp.Sources[0].Document)
	assert.Equal(t, "Section 4.2 - Surgery Coverage", resp.Sources[0].Clause)
}

func TestCORSPreflight(t *testing.T) {
	a := newTestApp(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/documents", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	a.Server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
}

func TestCORSWildcardDoesNotAllowCredentials(t *testing.T) {
	a := newTestApp(t, func(c *config.Config) { c.CORSOrigins = []string{"*"} })

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/documents", nil)
	req.Header.Set("Origin", "http://evil.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	a.Server.Handler().ServeHTTP(rec, req)

	assert.NotEmpty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Credentials"))
}

func TestCORSOptions(t *testing.T) {
	assert.True(t, corsOptions([]string{"http://localhost:5173"}).AllowCredentials)
	assert.False(t, corsOptions([]string{"http://localhost:5173", "*"}).AllowCredentials)
	assert.False(t, corsOptions(nil).AllowCredentials)
}

func TestOriginAllowed(t *testing.T) {
	assert.Nil(t, originAllowed([]string{"*"}))

	allow := originAllowed([]string{"http://localhost:5173"})
	assert.True(t, allow("http://localhost:5173"))
	assert.False(t, allow("http://evil.example"))
}
