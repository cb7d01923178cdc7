package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pgvector/pgvector-go"

	"github.com/markdave123-py/clausewise/internal/config"
	"github.com/markdave123-py/clausewise/internal/core"
	"github.com/markdave123-py/clausewise/internal/models"
)

var _ core.ClauseStore = (*PgClauseStore)(nil)

// PgClauseStore keeps clauses in Postgres and searches them with pgvector.
type PgClauseStore struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewPgClauseStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*PgClauseStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}
	if logger == nil {
		logger = slog.Default()
	}

	dsn, err := buildDSN(cfg.DatabaseURL, cfg.SslCertPath)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := EnsureBootstrapped(ctx, db, logger); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	logger.Info("connected to postgres clause store")
	return &PgClauseStore{db: db, logger: logger}, nil
}

// buildDSN appends certificate verification parameters when a root cert is configured.
func buildDSN(databaseURL, certPath string) (string, error) {
	if certPath == "" {
		return databaseURL, nil
	}
	if _, err := os.Stat(certPath); err != nil {
		return "", fmt.Errorf("ssl cert not accessible at %q: %w", certPath, err)
	}
	u, err := url.Parse(databaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid DATABASE_URL: %w", err)
	}
	q := u.Query()
	q.Set("sslmode", "verify-ca")
	q.Set("sslrootcert", certPath)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *PgClauseStore) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// SaveClauses inserts clauses in a single transaction.
func (c *PgClauseStore) SaveClauses(ctx context.Context, clauses []models.Clause) error {
	if len(clauses) == 0 {
		return nil
	}
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}

	const q = `
		INSERT INTO document_clauses
			(id, document_id, position, label, text, page, token_count, embedding, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, COALESCE($9, now()))
	`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i := range clauses {
		cl := &clauses[i]
		var vec any
		if len(cl.Embedding) > 0 {
			vec = pgvector.NewVector(cl.Embedding)
		}
		var createdAt any
		if !cl.CreatedAt.IsZero() {
			createdAt = cl.CreatedAt
		}
		if _, err := stmt.ExecContext(ctx,
			cl.ID, cl.DocumentID, cl.Position, cl.Label, cl.Text, cl.Page, cl.TokenCount, vec, createdAt,
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (c *PgClauseStore) ClausesByDocument(ctx context.Context, documentID string) ([]models.Clause, error) {
	const q = `
		SELECT id, document_id, position, label, text, page, token_count, embedding, created_at
		FROM document_clauses
		WHERE document_id = $1
		ORDER BY position ASC
	`
	rows, err := c.db.QueryContext(ctx, q, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Clause
	for rows.Next() {
		var (
			cl  models.Clause
			emb *pgvector.Vector
		)
		if err := rows.Scan(
			&cl.ID, &cl.DocumentID, &cl.Position, &cl.Label, &cl.Text, &cl.Page, &cl.TokenCount, &emb, &cl.CreatedAt,
		); err != nil {
			return nil, err
		}
		if emb != nil {
			cl.Embedding = emb.Slice()
		}
		out = append(out, cl)
	}
	return out, rows.Err()
}

// SearchClauses ranks embedded clauses of the given documents by cosine similarity.
func (c *PgClauseStore) SearchClauses(ctx context.Context, queryVec []float32, documentIDs []string, limit int) ([]models.ScoredClause, error) {
	if len(queryVec) == 0 || len(documentIDs) == 0 || limit <= 0 {
		return nil, nil
	}
	const q = `
		SELECT id, document_id, position, label, text, page, token_count, 1 - (embedding <=> $1) AS score
		FROM document_clauses
		WHERE document_id = ANY($2) AND embedding IS NOT NULL
		ORDER BY embedding <=> $1
		LIMIT $3
	`
	rows, err := c.db.QueryContext(ctx, q, pgvector.NewVector(queryVec), documentIDs, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ScoredClause
	for rows.Next() {
		var sc models.ScoredClause
		if err := rows.Scan(
			&sc.ID, &sc.DocumentID, &sc.Position, &sc.Label, &sc.Text, &sc.Page, &sc.TokenCount, &sc.Score,
		); err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

func (c *PgClauseStore) DeleteByDocument(ctx context.Context, documentID string) error {
	if documentID == "" {
		return errors.New("empty document id")
	}
	_, err := c.db.ExecContext(ctx, `DELETE FROM document_clauses WHERE document_id = $1`, documentID)
	return err
}
