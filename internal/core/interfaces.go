package core

import (
	"context"
	"encoding/json"
	"time"

	domainauth "github.com/target/mmk-inference/internal/domain/auth"
	"github.com/target/mmk-inference/internal/domain/model"
)

// This file contains the port definitions (hexagonal architecture) consumed by
// the pipeline. Services depend on these interfaces, not concrete adapters.

// InferenceRequest is a single model execution.
type InferenceRequest struct {
	ModelID      string
	ModelVersion string
	Payload      json.RawMessage
}

// InferenceEngine executes models. Execute must honour ctx cancellation when
// SupportsCancellation reports true for the model.
type InferenceEngine interface {
	Execute(ctx context.Context, req InferenceRequest) (json.RawMessage, error)
	SupportsCancellation(modelID string) bool
}

// ModelCatalog exposes the registered models and their versions.
type ModelCatalog interface {
	// ResolveVersion returns the version to run; an empty version resolves to the active one.
	ResolveVersion(modelID, version string) (string, error)
	Status(modelID string) (model.ModelStatus, error)
	List() []model.ModelStatus
	SetVersion(modelID, version string) (model.ModelStatus, error)
}

// HistorySink receives terminal job snapshots. Failures never affect the job.
type HistorySink interface {
	Append(ctx context.Context, job model.Job) error
}

// HistoryStore reads and prunes persisted history.
type HistoryStore interface {
	HistorySink
	List(ctx context.Context, opts model.HistoryListOptions) ([]model.HistoryRecord, error)
	Prune(ctx context.Context, olderThan time.Time) (int64, error)
	Close() error
}

// Authorizer decides whether a principal may act on a resource.
type Authorizer interface {
	HasPermission(p domainauth.Principal, action domainauth.Action, resourceOwner string) bool
}

// PolicyAuthorizer adapts domainauth.HasPermission to the Authorizer port.
type PolicyAuthorizer struct{}

// HasPermission delegates to the domain policy.
func (PolicyAuthorizer) HasPermission(p domainauth.Principal, action domainauth.Action, owner string) bool {
	return domainauth.HasPermission(p, action, owner)
}

// PrincipalResolver resolves the caller of a request from its credential.
type PrincipalResolver interface {
	// Resolve returns the principal for token. An empty or unknown token yields
	// a NotFound error.
	Resolve(ctx context.Context, token string) (domainauth.Principal, error)
}

var _ Authorizer = PolicyAuthorizer{}
