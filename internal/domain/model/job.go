// Package model defines the core data types shared by the inference pipeline.
package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// JobStatus represents the current status of an inference job.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type JobStatus string

const (
	// JobStatusQueued indicates a job is admitted and waiting for a worker.
	JobStatusQueued JobStatus = "queued"
	// JobStatusRunning indicates the job's flight is executing.
	JobStatusRunning JobStatus = "running"
	// JobStatusSucceeded indicates the execution returned a result.
	JobStatusSucceeded JobStatus = "succeeded"
	// JobStatusFailed indicates the execution returned an error or timed out.
	JobStatusFailed JobStatus = "failed"
	// JobStatusCancelled indicates the job was cancelled before producing a result.
	JobStatusCancelled JobStatus = "cancelled"
)

// Error codes recorded on failed or cancelled jobs.
const (
	JobErrorExecution = "execution_error"
	JobErrorTimeout   = "timeout"
	JobErrorCancelled = "cancelled"
	JobErrorShutdown  = "shutdown"
)

// Valid returns true if the JobStatus is valid.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusQueued, JobStatusRunning, JobStatusSucceeded, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transition can follow s.
func (s JobStatus) Terminal() bool {
	return s == JobStatusSucceeded || s == JobStatusFailed || s == JobStatusCancelled
}

// UnmarshalText implements encoding.TextUnmarshaler for JobStatus to allow query parsing.
func (s *JobStatus) UnmarshalText(text []byte) error {
	v := JobStatus(strings.ToLower(strings.TrimSpace(string(text))))
	if !v.Valid() {
		return fmt.Errorf("invalid JobStatus: %q", v)
	}
	*s = v
	return nil
}

var transitions = map[JobStatus][]JobStatus{
	JobStatusQueued:  {JobStatusRunning, JobStatusCancelled},
	JobStatusRunning: {JobStatusSucceeded, JobStatusFailed, JobStatusCancelled},
}

// CanTransition reports whether a job may move from one status to another.
func CanTransition(from, to JobStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// JobError describes why a job failed or was cancelled.
type JobError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Job is a single submission tracked by the scheduler. Several jobs may share
// one execution when their fingerprints match.
type Job struct {
	ID            string          `json:"id"`
	Fingerprint   string          `json:"fingerprint"`
	ModelID       string          `json:"model_id"`
	ModelVersion  string          `json:"model_version"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	Status        JobStatus       `json:"status"`
	Result        json.RawMessage `json:"result,omitempty"`
	Error         *JobError       `json:"error,omitempty"`
	SubmittedBy   string          `json:"submitted_by"`
	CreatedAt     time.Time       `json:"created_at"`
	StartedAt     *time.Time      `json:"started_at,omitempty"`
	FinishedAt    *time.Time      `json:"finished_at,omitempty"`
	CancelPending bool            `json:"cancel_pending,omitempty"`
}

// Transition moves the job to the given status, stamping StartedAt or
// FinishedAt. It refuses transitions the state machine does not allow.
func (j *Job) Transition(to JobStatus, at time.Time) error {
	if !CanTransition(j.Status, to) {
		return fmt.Errorf("invalid job transition %s -> %s", j.Status, to)
	}
	j.Status = to
	switch {
	case to == JobStatusRunning:
		j.StartedAt = &at
	case to.Terminal():
		j.FinishedAt = &at
		j.CancelPending = false
	}
	return nil
}

// Clone returns a deep copy safe to hand outside the scheduler lock.
func (j *Job) Clone() Job {
	c := *j
	if j.Error != nil {
		e := *j.Error
		c.Error = &e
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.FinishedAt != nil {
		t := *j.FinishedAt
		c.FinishedAt = &t
	}
	return c
}

// ProcessingTime returns the time between start and finish, or zero.
func (j *Job) ProcessingTime() time.Duration {
	if j.StartedAt == nil || j.FinishedAt == nil {
		return 0
	}
	return j.FinishedAt.Sub(*j.StartedAt)
}

// JobStats summarises scheduler occupancy.
type JobStats struct {
	Workers   int `json:"workers"`
	Capacity  int `json:"capacity"`
	InFlight  int `json:"in_flight"`
	Queued    int `json:"queued"`
	Running   int `json:"running"`
	Tracked   int `json:"tracked"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
}
