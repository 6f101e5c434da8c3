package httpx

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/target/mmk-inference/internal/core"
	domainauth "github.com/target/mmk-inference/internal/domain/auth"
	domainjob "github.com/target/mmk-inference/internal/domain/job"
	"github.com/target/mmk-inference/internal/service"
)

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Gate      *service.RequestGate
	Scheduler *service.JobScheduler
	Hub       *service.BroadcastHub
	Channel   domainjob.StatusChannel
	Catalog   core.ModelCatalog
	History   core.HistoryStore // Optional: nil disables /api/history
	Resolver  core.PrincipalResolver
	Authz     core.Authorizer // Optional: defaults to the domain policy

	CookieName     string
	MaxBodyBytes   int64
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	AllowedOrigins []string

	Logger *slog.Logger // Optional: defaults to slog.Default()
}

// NewRouter creates the API router with its middleware chain applied.
func NewRouter(services RouterServices) http.Handler {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}
	authz := services.Authz
	if authz == nil {
		authz = core.PolicyAuthorizer{}
	}

	mux := http.NewServeMux()
	mux.Handle("GET /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("HEAD /healthz", http.HandlerFunc(healthHandler))

	registerJobRoutes(mux, &JobHandlers{Gate: services.Gate})
	registerModelRoutes(mux, &ModelHandlers{Catalog: services.Catalog, Authz: authz}, authz)
	mux.Handle("GET /api/history", RequireAuth()(http.HandlerFunc(
		(&HistoryHandlers{Store: services.History, Authz: authz}).List)))
	mux.Handle("GET /api/stats", RequirePermission(authz, domainauth.ActionViewStats)(http.HandlerFunc(
		(&StatsHandlers{Scheduler: services.Scheduler, Hub: services.Hub, Channel: services.Channel}).Stats)))

	stream := NewStreamHandlers(StreamHandlersOptions{
		Hub:            services.Hub,
		PingInterval:   services.PingInterval,
		WriteTimeout:   services.WriteTimeout,
		AllowedOrigins: services.AllowedOrigins,
		Logger:         logger,
	})
	mux.Handle("GET /api/stream", RequireAuth()(http.HandlerFunc(stream.Stream)))

	var handler http.Handler = mux
	handler = Compression(CompressionConfig{Logger: logger})(handler)
	handler = BodyLimit(services.MaxBodyBytes)(handler)
	handler = Authenticate(AuthOptions{
		Resolver:   services.Resolver,
		CookieName: services.CookieName,
		Logger:     logger,
	})(handler)
	handler = Logging(logger)(handler)
	return Recover(logger)(handler)
}

func registerJobRoutes(mux *http.ServeMux, h *JobHandlers) {
	auth := RequireAuth()
	mux.Handle("POST /api/jobs", auth(http.HandlerFunc(h.Submit)))
	mux.Handle("POST /api/jobs/batch", auth(http.HandlerFunc(h.SubmitBatch)))
	mux.Handle("GET /api/jobs/{id}", auth(http.HandlerFunc(h.Get)))
	mux.Handle("POST /api/jobs/{id}/cancel", auth(http.HandlerFunc(h.Cancel)))
}

func registerModelRoutes(mux *http.ServeMux, h *ModelHandlers, authz core.Authorizer) {
	auth := RequireAuth()
	mux.Handle("GET /api/models", auth(http.HandlerFunc(h.List)))
	mux.Handle("GET /api/models/{id}", auth(http.HandlerFunc(h.Get)))
	mux.Handle("PUT /api/models/{id}/version", RequirePermission(authz, domainauth.ActionManageModels)(http.HandlerFunc(h.SetVersion)))
}
