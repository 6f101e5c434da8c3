package model

import (
	"encoding/json"
	"time"
)

// JobEvent is one lifecycle transition published on the status channel.
// Events are immutable once published.
type JobEvent struct {
	Seq         uint64          `json:"seq"`
	JobID       string          `json:"job_id"`
	Fingerprint string          `json:"fingerprint"`
	ModelID     string          `json:"model_id"`
	Owner       string          `json:"owner"`
	Status      JobStatus       `json:"status"`
	Timestamp   time.Time       `json:"timestamp"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       *JobError       `json:"error,omitempty"`
}

// EventFromJob builds the event describing the job's current status.
func EventFromJob(j *Job, at time.Time) JobEvent {
	ev := JobEvent{
		JobID:       j.ID,
		Fingerprint: j.Fingerprint,
		ModelID:     j.ModelID,
		Owner:       j.SubmittedBy,
		Status:      j.Status,
		Timestamp:   at,
	}
	if j.Status == JobStatusSucceeded {
		ev.Result = j.Result
	}
	if j.Error != nil {
		e := *j.Error
		ev.Error = &e
	}
	return ev
}
