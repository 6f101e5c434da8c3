package data

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/target/mmk-inference/internal/core"
	"github.com/target/mmk-inference/internal/data/database"
	"github.com/target/mmk-inference/internal/data/pgxutil"
	"github.com/target/mmk-inference/internal/domain/model"
	apperrors "github.com/target/mmk-inference/internal/errors"
)

const predictionsTable = "predictions"

// predictionColumns is the column list shared by inserts and selects so
// pgx.RowToStructByName maps every HistoryRecord field.
var predictionColumns = []string{
	"job_id", "model_id", "model_version", "fingerprint", "status", "submitted_by",
	"input", "output", "error_code", "error_message", "created_at", "finished_at", "processing_time_ms",
}

// PredictionRepo persists terminal job snapshots in PostgreSQL.
// The *sql.DB is owned by the caller; Close only stops further use.
type PredictionRepo struct {
	DB     *sql.DB
	closed atomic.Bool
}

// NewPredictionRepo creates a new PredictionRepo with the given database connection.
func NewPredictionRepo(db *sql.DB) *PredictionRepo {
	return &PredictionRepo{DB: db}
}

var _ core.HistoryStore = (*PredictionRepo)(nil)

func validateHistoryJob(job *model.Job) error {
	if job.ID == "" {
		return ErrJobIDRequired
	}
	if !job.Status.Terminal() {
		return fmt.Errorf("%w: job %s is %s", ErrNotTerminalJob, job.ID, job.Status)
	}
	return nil
}

// Append records a terminal job. Appending the same job twice keeps the first record.
func (r *PredictionRepo) Append(ctx context.Context, job model.Job) error {
	if r.closed.Load() {
		return ErrHistoryClosed
	}
	if err := validateHistoryJob(&job); err != nil {
		return err
	}
	rec := model.HistoryRecordFromJob(&job)

	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		_, err := conn.Exec(ctx, `
			INSERT INTO predictions (
				job_id, model_id, model_version, fingerprint, status, submitted_by,
				input, output, error_code, error_message, created_at, finished_at, processing_time_ms
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			ON CONFLICT (job_id) DO NOTHING`,
			rec.JobID, rec.ModelID, rec.ModelVersion, rec.Fingerprint, string(rec.Status), rec.SubmittedBy,
			rec.Input, rec.Output, rec.ErrorCode, rec.ErrorMessage, rec.CreatedAt, rec.FinishedAt,
			rec.ProcessingTimeMs,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("append prediction %s: %w", job.ID, apperrors.MapDBError(err))
	}
	return nil
}

// List returns history records, newest first, optionally scoped to one owner.
func (r *PredictionRepo) List(ctx context.Context, opts model.HistoryListOptions) ([]model.HistoryRecord, error) {
	if r.closed.Load() {
		return nil, ErrHistoryClosed
	}
	query, args := database.BuildListQuery(database.NewListQueryOptions(predictionsTable,
		database.WithColumns(predictionColumns...),
		database.WithCondition(database.WhereCond("submitted_by", database.Equal, opts.Owner)),
		database.WithOrderBy("finished_at", "DESC"),
		database.WithLimit(normalizeHistoryLimit(opts.Limit)),
		database.WithOffset(max(opts.Offset, 0)),
	))

	var records []model.HistoryRecord
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		records, err = pgx.CollectRows(rows, pgx.RowToStructByName[model.HistoryRecord])
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list predictions: %w", apperrors.MapDBError(err))
	}
	return records, nil
}

// Prune deletes records that finished before olderThan and reports how many were removed.
func (r *PredictionRepo) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	if r.closed.Load() {
		return 0, ErrHistoryClosed
	}
	var deleted int64
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		tag, err := conn.Exec(ctx, `DELETE FROM predictions WHERE finished_at < $1`, olderThan)
		if err != nil {
			return err
		}
		deleted = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("prune predictions: %w", apperrors.MapDBError(err))
	}
	return deleted, nil
}

// Close stops further use of the repository. It does not close the shared pool.
func (r *PredictionRepo) Close() error {
	r.closed.Store(true)
	return nil
}
