package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	// Register the pure-Go sqlite driver.
	_ "modernc.org/sqlite"

	"github.com/target/mmk-inference/internal/core"
	"github.com/target/mmk-inference/internal/data/database"
	"github.com/target/mmk-inference/internal/domain/model"
	"github.com/target/mmk-inference/internal/migrate"
)

// SQLiteHistoryRepo persists terminal job snapshots in a local SQLite file.
// Timestamps are stored as unix milliseconds in UTC.
type SQLiteHistoryRepo struct {
	db     *sql.DB
	closed atomic.Bool
}

var _ core.HistoryStore = (*SQLiteHistoryRepo)(nil)

// OpenSQLiteHistory opens (creating if needed) the database at path and applies the schema.
func OpenSQLiteHistory(ctx context.Context, path string) (*SQLiteHistoryRepo, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite history: %w", err)
	}
	// A single writer avoids SQLITE_BUSY between pooled connections.
	db.SetMaxOpenConns(1)

	if err := migrate.RunDialect(ctx, db, migrate.SQLite); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate sqlite history: %w", err)
	}
	return &SQLiteHistoryRepo{db: db}, nil
}

func nullableString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

// Append records a terminal job. Appending the same job twice keeps the first record.
func (r *SQLiteHistoryRepo) Append(ctx context.Context, job model.Job) error {
	if r.closed.Load() {
		return ErrHistoryClosed
	}
	if err := validateHistoryJob(&job); err != nil {
		return err
	}
	rec := model.HistoryRecordFromJob(&job)

	var output sql.NullString
	if len(rec.Output) > 0 {
		output = sql.NullString{String: string(rec.Output), Valid: true}
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO predictions (
			job_id, model_id, model_version, fingerprint, status, submitted_by,
			input, output, error_code, error_message, created_at, finished_at, processing_time_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (job_id) DO NOTHING`,
		rec.JobID, rec.ModelID, rec.ModelVersion, rec.Fingerprint, string(rec.Status), rec.SubmittedBy,
		string(rec.Input), output, nullableString(rec.ErrorCode), nullableString(rec.ErrorMessage),
		rec.CreatedAt.UTC().UnixMilli(), rec.FinishedAt.UTC().UnixMilli(), rec.ProcessingTimeMs,
	)
	if err != nil {
		return fmt.Errorf("append prediction %s: %w", job.ID, err)
	}
	return nil
}

// List returns history records, newest first, optionally scoped to one owner.
func (r *SQLiteHistoryRepo) List(ctx context.Context, opts model.HistoryListOptions) ([]model.HistoryRecord, error) {
	if r.closed.Load() {
		return nil, ErrHistoryClosed
	}
	query, args := database.BuildListQuery(database.NewListQueryOptions(predictionsTable,
		database.WithPlaceholder(database.Question),
		database.WithColumns(predictionColumns...),
		database.WithCondition(database.WhereCond("submitted_by", database.Equal, opts.Owner)),
		database.WithOrderBy("finished_at", "DESC"),
		database.WithLimit(normalizeHistoryLimit(opts.Limit)),
		database.WithOffset(max(opts.Offset, 0)),
	))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list predictions: %w", err)
	}
	defer rows.Close()

	var records []model.HistoryRecord
	for rows.Next() {
		rec, err := scanSQLiteRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list predictions: %w", err)
	}
	return records, nil
}

func scanSQLiteRecord(rows *sql.Rows) (model.HistoryRecord, error) {
	var (
		rec                     model.HistoryRecord
		status, input           string
		output, errCode, errMsg sql.NullString
		createdMs, finishedMs   int64
	)
	if err := rows.Scan(
		&rec.JobID, &rec.ModelID, &rec.ModelVersion, &rec.Fingerprint, &status, &rec.SubmittedBy,
		&input, &output, &errCode, &errMsg, &createdMs, &finishedMs, &rec.ProcessingTimeMs,
	); err != nil {
		return model.HistoryRecord{}, fmt.Errorf("scan prediction: %w", err)
	}
	rec.Status = model.JobStatus(status)
	rec.Input = json.RawMessage(input)
	if output.Valid {
		rec.Output = json.RawMessage(output.String)
	}
	if errCode.Valid {
		rec.ErrorCode = &errCode.String
	}
	if errMsg.Valid {
		rec.ErrorMessage = &errMsg.String
	}
	rec.CreatedAt = time.UnixMilli(createdMs).UTC()
	rec.FinishedAt = time.UnixMilli(finishedMs).UTC()
	return rec, nil
}

// Prune deletes records that finished before olderThan and reports how many were removed.
func (r *SQLiteHistoryRepo) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	if r.closed.Load() {
		return 0, ErrHistoryClosed
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM predictions WHERE finished_at < ?`, olderThan.UTC().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("prune predictions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune predictions: %w", err)
	}
	return n, nil
}

// Close closes the underlying database. Further calls fail with ErrHistoryClosed.
func (r *SQLiteHistoryRepo) Close() error {
	if r.closed.Swap(true) {
		return nil
	}
	return r.db.Close()
}
