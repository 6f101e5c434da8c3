// Package migrate applies the embedded SQL schema to a history database.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationsFS embed.FS

// Dialect selects the migration set and bookkeeping SQL.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

type dialectSQL struct {
	createTable string
	exists      string
	insert      string
}

var dialects = map[Dialect]dialectSQL{
	Postgres: {
		createTable: `CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		exists: `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)`,
		insert: `INSERT INTO schema_migrations (version) VALUES ($1)`,
	},
	SQLite: {
		createTable: `CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		exists: `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = ?)`,
		insert: `INSERT INTO schema_migrations (version) VALUES (?)`,
	},
}

// Run applies the Postgres migrations. It is safe to call multiple times.
func Run(ctx context.Context, db *sql.DB) error {
	return RunDialect(ctx, db, Postgres)
}

// RunDialect applies every migration of the dialect that has not been applied yet.
func RunDialect(ctx context.Context, db *sql.DB, dialect Dialect) error {
	stmts, ok := dialects[dialect]
	if !ok {
		return fmt.Errorf("unknown migration dialect %q", dialect)
	}
	if _, err := db.ExecContext(ctx, stmts.createTable); err != nil {
		return fmt.Errorf("create schema_migrations table: %w", err)
	}

	files, err := Files(dialect)
	if err != nil {
		return err
	}
	for _, f := range files {
		info := migrationInfo{
			dir:        "migrations/" + string(dialect),
			versionStr: strings.TrimSuffix(f, ".sql"),
			file:       f,
		}
		if applyErr := applyMigration(ctx, db, stmts, info); applyErr != nil {
			return applyErr
		}
	}
	return nil
}

// Files lists the migration files of a dialect in apply order.
func Files(dialect Dialect) ([]string, error) {
	entries, err := fs.ReadDir(migrationsFS, "migrations/"+string(dialect))
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

type migrationInfo struct {
	dir        string
	versionStr string
	file       string
}

func applyMigration(ctx context.Context, db *sql.DB, stmts dialectSQL, info migrationInfo) error {
	var exists bool
	if err := db.QueryRowContext(ctx, stmts.exists, info.versionStr).Scan(&exists); err != nil {
		return fmt.Errorf("check migration %s: %w", info.file, err)
	}
	if exists {
		return nil
	}

	sqlBytes, err := migrationsFS.ReadFile(info.dir + "/" + info.file)
	if err != nil {
		return fmt.Errorf("read migration %s: %w", info.file, err)
	}

	logger := slog.Default().With("component", "migrations")
	logger.InfoContext(ctx, "applying migration", "dir", info.dir, "version", info.versionStr)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
			logger.ErrorContext(ctx, "failed to rollback transaction", "err", rollbackErr, "migration_file", info.file)
		}
	}()

	for _, stmt := range splitStatements(string(sqlBytes)) {
		if _, execErr := tx.ExecContext(ctx, stmt); execErr != nil {
			return fmt.Errorf("exec migration %s: %w", info.file, execErr)
		}
	}
	if _, insertErr := tx.ExecContext(ctx, stmts.insert, info.versionStr); insertErr != nil {
		return fmt.Errorf("record migration %s: %w", info.file, insertErr)
	}
	if commitErr := tx.Commit(); commitErr != nil {
		return fmt.Errorf("commit migration %s: %w", info.file, commitErr)
	}
	return nil
}

// splitStatements splits a migration on semicolons at line ends. Migrations
// must not contain semicolons inside string literals or function bodies.
func splitStatements(src string) []string {
	var out []string
	for _, part := range strings.Split(src, ";\n") {
		stmt := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(part), ";"))
		if stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}
