// Package database opens the PostgreSQL connection and applies schema migrations.
package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"sort"
	"strings"
)

//go:embed migrations/*.sql
var embedded embed.FS

const embeddedRoot = "migrations"

const createVersionsTable = `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version    TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)
`

// Migrator applies plain .up.sql migrations in lexical order, each in its own
// transaction, recording applied files in schema_migrations.
type Migrator struct {
	db  *sql.DB
	log *slog.Logger
}

// NewMigrator constructs a Migrator that logs through the provided logger instance.
func NewMigrator(db *sql.DB, log *slog.Logger) *Migrator {
	if log == nil {
		log = slog.Default()
	}

	return &Migrator{
		db:  db,
		log: log,
	}
}

// Apply runs the migrations compiled into the binary and returns how many were newly applied.
func (m *Migrator) Apply(ctx context.Context) (int, error) {
	return m.ApplyFS(ctx, embedded, embeddedRoot)
}

// ApplyDir applies the migrations found in a directory on disk.
func (m *Migrator) ApplyDir(ctx context.Context, dir string) (int, error) {
	return m.ApplyFS(ctx, os.DirFS(dir), ".")
}

// ApplyFS applies every pending *.up.sql file under root.
func (m *Migrator) ApplyFS(ctx context.Context, fsys fs.FS, root string) (int, error) {
	files, err := ListMigrations(fsys, root)
	if err != nil {
		return 0, fmt.Errorf("list migrations: %w", err)
	}

	baseLog := m.log.With(slog.String("dir", root))
	if len(files) == 0 {
		baseLog.Info("no .up.sql migrations found")
		return 0, nil
	}

	if _, err := m.db.ExecContext(ctx, createVersionsTable); err != nil {
		return 0, fmt.Errorf("create schema_migrations: %w", err)
	}

	applied := 0
	for _, name := range files {
		done, err := m.isApplied(ctx, name)
		if err != nil {
			return applied, err
		}
		if done {
			continue
		}

		if err := m.applyFile(ctx, baseLog, fsys, root, name); err != nil {
			return applied, err
		}
		applied++
	}

	baseLog.Info("migrations applied", slog.Int("applied", applied), slog.Int("total", len(files)))
	return applied, nil
}

func (m *Migrator) isApplied(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := m.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version = $1)`, name).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check migration %q: %w", name, err)
	}
	return exists, nil
}

func (m *Migrator) applyFile(ctx context.Context, baseLog *slog.Logger, fsys fs.FS, root, name string) error {
	scopedLog := baseLog.With(slog.String("file", name))
	scopedLog.Info("applying migration")

	data, err := fs.ReadFile(fsys, path.Join(root, name))
	if err != nil {
		return fmt.Errorf("read migration %q: %w", name, err)
	}

	statement := strings.TrimSpace(string(data))

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction for migration %q: %w", name, err)
	}

	rollback := func() {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			scopedLog.Error("rollback error", slog.Any("error", rbErr))
		}
	}

	if statement == "" {
		scopedLog.Warn("migration is empty, recording as applied")
	} else if _, execErr := tx.ExecContext(ctx, statement); execErr != nil {
		rollback()
		return fmt.Errorf("execute migration %q: %w", name, execErr)
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, name); err != nil {
		rollback()
		return fmt.Errorf("record migration %q: %w", name, err)
	}

	if commitErr := tx.Commit(); commitErr != nil {
		rollback()
		return fmt.Errorf("commit migration %q: %w", name, commitErr)
	}

	return nil
}

func isUpMigration(name string) bool {
	return strings.HasSuffix(name, ".up.sql")
}

// ListMigrations returns all .up.sql files under root in lexical order.
func ListMigrations(fsys fs.FS, root string) ([]string, error) {
	entries, err := fs.ReadDir(fsys, root)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if isUpMigration(e.Name()) {
			names = append(names, e.Name())
		}
	}

	sort.Strings(names)

	return names, nil
}
