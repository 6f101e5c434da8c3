package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const maxResponseBodyBytes = 1 << 20

// HTTPModelOptions configures an HTTPModel.
type HTTPModelOptions struct {
	Name       string        // Required: model id sent upstream
	Endpoint   string        // Required: URL receiving POSTed requests
	Timeout    time.Duration // Optional: per-request timeout, defaults to 30s
	HTTPClient *http.Client  // Optional: defaults to a client with Timeout
}

// HTTPModel forwards predictions to a remote endpoint. Cancellation
// propagates through the request context.
type HTTPModel struct {
	name     string
	endpoint string
	client   *http.Client
}

type httpModelRequest struct {
	ModelID      string          `json:"model_id"`
	ModelVersion string          `json:"model_version"`
	Input        json.RawMessage `json:"input"`
}

// NewHTTPModel constructs an HTTPModel.
func NewHTTPModel(opts HTTPModelOptions) (*HTTPModel, error) {
	if strings.TrimSpace(opts.Name) == "" {
		return nil, errors.New("model name is required")
	}
	if !strings.HasPrefix(opts.Endpoint, "http://") && !strings.HasPrefix(opts.Endpoint, "https://") {
		return nil, fmt.Errorf("model %s: endpoint must be an http(s) URL", opts.Name)
	}
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &HTTPModel{name: opts.Name, endpoint: opts.Endpoint, client: client}, nil
}

func (m *HTTPModel) Kind() string { return KindHTTP }

func (m *HTTPModel) Cooperative() bool { return true }

// Predict POSTs the request and returns the response body, which must be JSON.
func (m *HTTPModel) Predict(ctx context.Context, version string, input json.RawMessage) (json.RawMessage, error) {
	body, err := json.Marshal(httpModelRequest{ModelID: m.name, ModelVersion: version, Input: input})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if len(data) > maxResponseBodyBytes {
		return nil, fmt.Errorf("response exceeds %d bytes", maxResponseBodyBytes)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(string(data), 256))
	}
	if !json.Valid(data) {
		return nil, errors.New("response is not valid JSON")
	}
	return json.RawMessage(data), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
