package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/rukundowilson/smartflow/internal/accessrequests"
	"github.com/rukundowilson/smartflow/internal/audit"
	"github.com/rukundowilson/smartflow/internal/auth"
	"github.com/rukundowilson/smartflow/internal/comments"
	"github.com/rukundowilson/smartflow/internal/observability"
	"github.com/rukundowilson/smartflow/internal/rbac"
	"github.com/rukundowilson/smartflow/internal/requisitions"
	"github.com/rukundowilson/smartflow/internal/shared"
	"github.com/rukundowilson/smartflow/internal/tickets"
	"github.com/rukundowilson/smartflow/internal/users"
	"github.com/rukundowilson/smartflow/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger                *slog.Logger
	Config                *Config
	SessionManager        *shared.SessionManager
	CSRFManager           *shared.CSRFManager
	AuthHandler           *auth.Handler
	UsersHandler          *users.Handler
	AccessRequestsHandler *accessrequests.Handler
	TicketsHandler        *tickets.Handler
	RequisitionsHandler   *requisitions.Handler
	CommentsHandler       *comments.Handler
	AuditHandler          *audit.Handler
	PermissionsHandler    *rbac.PermissionsHandler
	JobHandler            *jobs.Handler
	Metrics               *observability.Metrics
}

// NewRouter constructs the chi.Router with smartflow defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/auth", params.AuthHandler.MountRoutes)
	if params.UsersHandler != nil {
		r.Route("/users", params.UsersHandler.MountRoutes)
	}
	r.Route("/access-requests", params.AccessRequestsHandler.MountRoutes)
	r.Route("/tickets", params.TicketsHandler.MountRoutes)
	r.Route("/requisitions", params.RequisitionsHandler.MountRoutes)
	if params.CommentsHandler != nil {
		r.Route("/comments", params.CommentsHandler.MountRoutes)
	}
	if params.AuditHandler != nil {
		r.Route("/audit", params.AuditHandler.MountRoutes)
	}
	if params.PermissionsHandler != nil {
		r.Route("/permissions", params.PermissionsHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
