package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/IamNotATuringMachine/DirectStock-sub002/internal/approval"
	"github.com/IamNotATuringMachine/DirectStock-sub002/internal/audit"
	"github.com/IamNotATuringMachine/DirectStock-sub002/internal/auth"
	"github.com/IamNotATuringMachine/DirectStock-sub002/internal/idempotency"
	"github.com/IamNotATuringMachine/DirectStock-sub002/internal/issuing"
	"github.com/IamNotATuringMachine/DirectStock-sub002/internal/jobs"
	"github.com/IamNotATuringMachine/DirectStock-sub002/internal/ledger"
	"github.com/IamNotATuringMachine/DirectStock-sub002/internal/masterdata"
	"github.com/IamNotATuringMachine/DirectStock-sub002/internal/observability"
	"github.com/IamNotATuringMachine/DirectStock-sub002/internal/picking"
	"github.com/IamNotATuringMachine/DirectStock-sub002/internal/procurement"
	"github.com/IamNotATuringMachine/DirectStock-sub002/internal/returns"
	"github.com/IamNotATuringMachine/DirectStock-sub002/internal/transfers"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger *slog.Logger
	Config *Config
	Pool   *pgxpool.Pool

	Metrics     *observability.Metrics
	Auth        *auth.Middleware
	Idempotency *idempotency.Middleware
	Audit       *audit.Middleware

	LedgerHandler      *ledger.Handler
	ProcurementHandler *procurement.Handler
	IssuingHandler     *issuing.Handler
	TransfersHandler   *transfers.Handler
	ReturnsHandler     *returns.Handler
	PickingHandler     *picking.Handler
	ApprovalHandler    *approval.Handler
	AuditHandler       *audit.Handler
	MasterDataHandler  *masterdata.Handler
	JobHandler         *jobs.Handler
}

// NewRouter constructs the chi.Router with DirectStock defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:      params.Logger,
		Config:      params.Config,
		Metrics:     params.Metrics,
		Auth:        params.Auth,
		Idempotency: params.Idempotency,
		Audit:       params.Audit,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if params.Pool != nil {
			if err := params.Pool.Ping(r.Context()); err != nil {
				params.Logger.Warn("health check", slog.Any("error", err))
				http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.LedgerHandler != nil {
		r.Route("/stock", params.LedgerHandler.MountRoutes)
	}
	if params.ProcurementHandler != nil {
		params.ProcurementHandler.MountRoutes(r)
	}
	if params.IssuingHandler != nil {
		params.IssuingHandler.MountRoutes(r)
	}
	if params.TransfersHandler != nil {
		params.TransfersHandler.MountRoutes(r)
	}
	if params.ReturnsHandler != nil {
		params.ReturnsHandler.MountRoutes(r)
	}
	if params.PickingHandler != nil {
		params.PickingHandler.MountRoutes(r)
	}
	if params.ApprovalHandler != nil {
		params.ApprovalHandler.MountRoutes(r)
	}
	if params.AuditHandler != nil {
		params.AuditHandler.MountRoutes(r)
	}
	if params.MasterDataHandler != nil {
		params.MasterDataHandler.MountRoutes(r)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
