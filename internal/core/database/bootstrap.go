package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"time"
)

//go:embed scripts/initdb.sql
var bootstrapFS embed.FS

// schemaVersion is the version row written by scripts/initdb.sql.
const schemaVersion = 1

const bootstrapTimeout = 3 * time.Minute

// EnsureBootstrapped applies scripts/initdb.sql when the recorded schema is older than schemaVersion.
// The script is idempotent, so a partially applied schema is repaired by rerunning it.
func EnsureBootstrapped(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	ctx, cancel := context.WithTimeout(ctx, bootstrapTimeout)
	defer cancel()

	current, err := recordedVersion(ctx, db)
	if err != nil {
		return err
	}
	if current >= schemaVersion {
		logger.Debug("clause schema up to date", "version", current)
		return nil
	}

	logger.Info("applying clause schema", "from", current, "to", schemaVersion)
	script, err := bootstrapFS.ReadFile("scripts/initdb.sql")
	if err != nil {
		return fmt.Errorf("read initdb.sql: %w", err)
	}
	return inTx(ctx, db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, string(script))
		return err
	})
}

// recordedVersion returns 0 when the meta table does not exist yet.
func recordedVersion(ctx context.Context, db *sql.DB) (int, error) {
	var present bool
	if err := db.QueryRowContext(ctx, `SELECT to_regclass('clausewise_meta') IS NOT NULL`).Scan(&present); err != nil {
		return 0, fmt.Errorf("meta table check: %w", err)
	}
	if !present {
		return 0, nil
	}
	var v int
	if err := db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM clausewise_meta`).Scan(&v); err != nil {
		return 0, fmt.Errorf("meta version check: %w", err)
	}
	return v, nil
}

func inTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("exec bootstrap: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit bootstrap: %w", err)
	}
	return nil
}
