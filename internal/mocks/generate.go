// Package mocks provides mock implementations for testing the inference pipeline.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for the core ports.
// The mocks are generated using go:generate directives and provide a fluent API for setting up test expectations.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	engine := mocks.NewMockInferenceEngine(ctrl)
//	engine.EXPECT().Execute(gomock.Any(), gomock.Any()).Return(json.RawMessage(`{"ok":true}`), nil)
package mocks

// Generate mock for InferenceEngine interface from internal/core package.
// This creates MockInferenceEngine with methods: Execute, SupportsCancellation
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=inference_engine_mock.go github.com/target/mmk-inference/internal/core InferenceEngine

// Generate mock for ModelCatalog interface from internal/core package.
// This creates MockModelCatalog with methods: List, ResolveVersion, SetVersion, Status
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=model_catalog_mock.go github.com/target/mmk-inference/internal/core ModelCatalog

// Generate mock for HistoryStore interface from internal/core package.
// This creates MockHistoryStore with methods: Append, Close, List, Prune
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=history_store_mock.go github.com/target/mmk-inference/internal/core HistoryStore

// Generate mock for CacheRepository interface from internal/core package.
// This creates MockCacheRepository with methods: Clear, Delete, Get, Health, Set
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=cache_repository_mock.go github.com/target/mmk-inference/internal/core CacheRepository

// Generate mocks for the auth ports used by the HTTP layer.
// This creates MockPrincipalResolver (Resolve) and MockAuthorizer (HasPermission)
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=auth_mock.go github.com/target/mmk-inference/internal/core PrincipalResolver,Authorizer
