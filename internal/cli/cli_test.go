package cli

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/clausewise/internal/core/answer"
	db "github.com/markdave123-py/clausewise/internal/core/database"
	"github.com/markdave123-py/clausewise/internal/core/ingestion_engine"
	objectclient "github.com/markdave123-py/clausewise/internal/core/object-client"
	"github.com/markdave123-py/clausewise/internal/orchestrator"
	"github.com/markdave123-py/clausewise/internal/registry"
	"github.com/markdave123-py/clausewise/internal/services"
)

const policyText = `Section 4.2 - Surgery Coverage
Knee surgery is covered after pre-authorization and a 24 month waiting period.
Section 5 - Exclusions
Cosmetic procedures are not covered.`

// memoryFactory wires the real pipeline over in-memory backends with the extractive answerer.
func memoryFactory(ctx context.Context, logOut io.Writer) (*Session, error) {
	reg := registry.New(nil)
	clauses := db.NewMemoryClauseStore()
	storage := objectclient.NewMemoryClient()

	ing := ingestion_engine.NewDocumentIngestor(clauses, storage, nil,
		ingestion_engine.NewDocconvExtractor(false, 0), reg, ingestion_engine.IngestConfig{}, nil)
	runCtx, stop := context.WithCancel(context.Background())
	ing.Start(runCtx)

	orch := orchestrator.New(reg, answer.NewExtractiveAnswerer(clauses, nil), orchestrator.Config{}, nil)
	svc := services.NewDocumentService(storage, clauses, reg, orch, ing, 1<<20, nil)
	return NewSession(svc, reg, orch, func() { orch.Close(); stop() }), nil
}

func writePolicy(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "policy.txt")
	require.NoError(t, os.WriteFile(p, []byte(policyText), 0o600))
	return p
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd(memoryFactory)
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return buf.String(), err
}

func TestRootCmd_HasSubcommands(t *testing.T) {
	root := NewRootCmd(memoryFactory)
	names := []string{}
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Contains(t, names, "run")
	assert.Contains(t, names, "repl")
}

func TestRunCmd_Flags(t *testing.T) {
	cmd := newRunCmd(memoryFactory)

	f := cmd.Flags().Lookup("file")
	require.NotNil(t, f)
	assert.Equal(t, "f", f.Shorthand)

	w := cmd.Flags().Lookup("wait")
	require.NotNil(t, w)
	assert.Equal(t, defaultWait.String(), w.DefValue)
}

func TestRunCmd_RequiresExactlyOneArg(t *testing.T) {
	_, err := execute(t, "", "run")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg(s)")
}

func TestRunCmd_AnswersQuestion(t *testing.T) {
	out, err := execute(t, "", "run", "--file", writePolicy(t), "Is knee surgery covered?")

	require.NoError(t, err, out)
	assert.Contains(t, out, "Uploaded 1 document(s)")
	assert.Contains(t, out, "Documents: 1  Processed: 1  Clauses: 2")
	assert.Contains(t, out, "Answer:")
	assert.Contains(t, out, "Knee surgery is covered")
	assert.Contains(t, out, "Confidence: 100%")
	assert.Contains(t, out, "[1] policy.txt - Section 4.2 - Surgery Coverage")
	assert.Contains(t, out, "Reasoning:")
}

func TestRunCmd_JSONOutput(t *testing.T) {
	out, err := execute(t, "", "run", "--json", "-f", writePolicy(t), "knee surgery")

	require.NoError(t, err, out)
	assert.Contains(t, out, `"phase": "resolved"`)
	assert.Contains(t, out, `"query": "knee surgery"`)
}

func TestRunCmd_NoDocumentsIsRejected(t *testing.T) {
	_, err := execute(t, "", "run", "Is knee surgery covered?")

	require.Error(t, err)
	assert.ErrorIs(t, err, orchestrator.RejectNoDocuments)
}

func TestRunCmd_MissingFile(t *testing.T) {
	_, err := execute(t, "", "run", "--file", filepath.Join(t.TempDir(), "nope.pdf"), "question")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "upload failed")
}

func TestReplCmd_Session(t *testing.T) {
	p := writePolicy(t)
	stdin := strings.Join([]string{
		"Is knee surgery covered?",
		":upload " + p,
		":docs",
		":metrics",
		"",
		":samples",
		"Is knee surgery covered?",
		":bogus",
		":quit",
		"never reached",
	}, "\n")

	out, err := execute(t, stdin, "repl")

	require.NoError(t, err, out)
	assert.Contains(t, out, "upload a document first")
	assert.Contains(t, out, "policy.txt")
	assert.Contains(t, out, "processed")
	assert.Contains(t, out, "Documents: 1  Processed: 1  Clauses: 2")
	assert.Contains(t, out, sampleQueries[0])
	assert.Contains(t, out, "Knee surgery is covered")
	assert.Contains(t, out, "unknown command :bogus")
}

func TestReplCmd_EndOfInput(t *testing.T) {
	out, err := execute(t, ":help\n", "repl")

	require.NoError(t, err)
	assert.Contains(t, out, ":upload <path>")
}
