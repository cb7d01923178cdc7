// Package cli implements the ask terminal client.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/markdave123-py/clausewise/internal/app"
	"github.com/markdave123-py/clausewise/internal/config"
	"github.com/markdave123-py/clausewise/internal/models"
	"github.com/markdave123-py/clausewise/internal/orchestrator"
)

// Session is the in-process system the commands drive.
type Session struct {
	Documents    DocumentUploader
	Registry     RegistryView
	Orchestrator *orchestrator.Orchestrator
	close        func()
}

type DocumentUploader interface {
	UploadPaths(ctx context.Context, paths []string) ([]models.Document, error)
}

type RegistryView interface {
	List() []models.Document
	Metrics() models.Metrics
	Pending() int
}

// NewSession assembles a Session from its parts. closeFn may be nil.
func NewSession(docs DocumentUploader, reg RegistryView, orch *orchestrator.Orchestrator, closeFn func()) *Session {
	return &Session{Documents: docs, Registry: reg, Orchestrator: orch, close: closeFn}
}

func (s *Session) Close() {
	if s.close != nil {
		s.close()
	}
}

// SessionFactory builds a Session for one command invocation.
type SessionFactory func(ctx context.Context, logOut io.Writer) (*Session, error)

// DefaultSessionFactory loads configuration and wires the full application in process.
func DefaultSessionFactory(ctx context.Context, logOut io.Writer) (*Session, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	level, _ := config.ParseLogLevel(cfg.LogLevel)
	// keep the terminal quiet unless asked
	if level == slog.LevelInfo {
		level = slog.LevelWarn
	}
	logger := slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: level}))

	a, err := app.NewApp(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return NewSession(a.Documents, a.Registry, a.Orchestrator, a.Close), nil
}

// waitProcessed blocks until every document got a processing callback, wait elapses or ctx ends.
// It reports whether processing finished.
func waitProcessed(ctx context.Context, reg RegistryView, wait time.Duration) bool {
	if reg.Pending() == 0 {
		return true
	}
	deadline := time.NewTimer(wait)
	defer deadline.Stop()
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-deadline.C:
			return reg.Pending() == 0
		case <-tick.C:
			if reg.Pending() == 0 {
				return true
			}
		}
	}
}

// ask submits one query and waits for its cycle to end.
func ask(ctx context.Context, orch *orchestrator.Orchestrator, question string) (orchestrator.State, error) {
	st, err := orch.Submit(question)
	if err != nil {
		return st, err
	}
	return orch.Await(ctx, st.Generation)
}
