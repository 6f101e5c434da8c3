package model

import (
	"encoding/json"
	"time"
)

// HistoryRecord is the persisted snapshot of a terminal job.
type HistoryRecord struct {
	JobID            string          `json:"job_id"                  db:"job_id"`
	ModelID          string          `json:"model_id"                db:"model_id"`
	ModelVersion     string          `json:"model_version"           db:"model_version"`
	Fingerprint      string          `json:"fingerprint"             db:"fingerprint"`
	Status           JobStatus       `json:"status"                  db:"status"`
	SubmittedBy      string          `json:"submitted_by"            db:"submitted_by"`
	Input            json.RawMessage `json:"input"                   db:"input"`
	Output           json.RawMessage `json:"output,omitempty"        db:"output"`
	ErrorCode        *string         `json:"error_code,omitempty"    db:"error_code"`
	ErrorMessage     *string         `json:"error_message,omitempty" db:"error_message"`
	CreatedAt        time.Time       `json:"created_at"              db:"created_at"`
	FinishedAt       time.Time       `json:"finished_at"             db:"finished_at"`
	ProcessingTimeMs int64           `json:"processing_time_ms"      db:"processing_time_ms"`
}

// HistoryRecordFromJob converts a terminal job snapshot into a history record.
func HistoryRecordFromJob(j *Job) HistoryRecord {
	rec := HistoryRecord{
		JobID:            j.ID,
		ModelID:          j.ModelID,
		ModelVersion:     j.ModelVersion,
		Fingerprint:      j.Fingerprint,
		Status:           j.Status,
		SubmittedBy:      j.SubmittedBy,
		Input:            j.Payload,
		Output:           j.Result,
		CreatedAt:        j.CreatedAt,
		ProcessingTimeMs: j.ProcessingTime().Milliseconds(),
	}
	if j.FinishedAt != nil {
		rec.FinishedAt = *j.FinishedAt
	}
	if j.Error != nil {
		code, msg := j.Error.Code, j.Error.Message
		rec.ErrorCode = &code
		rec.ErrorMessage = &msg
	}
	return rec
}

// HistoryListOptions filters a history listing.
type HistoryListOptions struct {
	Owner  string
	Limit  int
	Offset int
}
