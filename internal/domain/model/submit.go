package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
)

var modelIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_.-]{0,63}$`)

// SubmitRequest is a request to run a model over a payload.
type SubmitRequest struct {
	ModelID      string          `json:"model_id"`
	ModelVersion string          `json:"model_version,omitempty"`
	Payload      json.RawMessage `json:"payload"`
}

// Validate checks the structural shape of the request. Model existence is
// checked by the gate against the registry.
func (r *SubmitRequest) Validate(maxPayloadBytes int) error {
	if r.ModelID == "" {
		return errors.New("model id is required")
	}
	if !modelIDPattern.MatchString(r.ModelID) {
		return fmt.Errorf("model id %q is malformed", r.ModelID)
	}
	if r.ModelVersion != "" && len(r.ModelVersion) > 64 {
		return errors.New("model version is too long")
	}
	if len(r.Payload) == 0 {
		return errors.New("payload is required")
	}
	if maxPayloadBytes > 0 && len(r.Payload) > maxPayloadBytes {
		return fmt.Errorf("payload exceeds %d bytes", maxPayloadBytes)
	}
	trimmed := bytes.TrimSpace(r.Payload)
	if len(trimmed) == 0 || trimmed[0] != '{' || !json.Valid(trimmed) {
		return errors.New("payload must be a JSON object")
	}
	return nil
}

// SubmitResult is returned by the gate for a single submission.
type SubmitResult struct {
	JobID       string          `json:"job_id,omitempty"`
	Fingerprint string          `json:"fingerprint"`
	Cached      bool            `json:"cached"`
	Result      json.RawMessage `json:"result,omitempty"`
	Job         *Job            `json:"job,omitempty"`
}

// BatchItemResult is one entry of a batch submission response.
type BatchItemResult struct {
	Index     int           `json:"index"`
	Result    *SubmitResult `json:"result,omitempty"`
	ErrorCode string        `json:"error_code,omitempty"`
	Error     string        `json:"error,omitempty"`
}
