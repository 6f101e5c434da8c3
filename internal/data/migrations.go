package data

import (
	"context"
	"database/sql"

	"github.com/target/mmk-inference/internal/migrate"
)

// RunMigrations applies the Postgres history schema by delegating to the migrate package.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	return migrate.Run(ctx, db)
}
