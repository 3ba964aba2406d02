package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// RouterConfig carries the service dependencies and options the router wires
// together.
type RouterConfig struct {
	Reservations Reserver
	Orders       Allocator
	Admin        Admin
	Stages       StageActivator

	Logger         *zap.SugaredLogger
	AllowedOrigins []string
}

// NewRouter assembles the public HTTP surface.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	if cfg.Logger != nil {
		r.Use(RequestLogger(cfg.Logger))
	}

	r.NotFound(NotFoundHandler().ServeHTTP)
	r.Get("/healthz", HealthHandler)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/holds", HandlePlaceHolds(cfg.Reservations))
		r.Post("/holds/release", HandleReleaseHolds(cfg.Reservations))
		r.Post("/holds/verify", HandleVerifyHolds(cfg.Reservations))
		r.Get("/ticket-types/{id}/availability", HandleGetAvailability(cfg.Reservations))

		r.Post("/orders", HandleCreateOrder(cfg.Orders))
		r.Get("/orders/{id}", HandleGetOrder(cfg.Orders))
		r.Post("/orders/{id}/cancel", HandleCancelOrder(cfg.Orders))
		r.Post("/orders/{id}/pay", HandleMarkPaid(cfg.Orders))
		r.Post("/tickets/issue", HandleIssueDirect(cfg.Orders))

		r.Post("/admin/ticket-types", HandleCreateTicketType(cfg.Admin))
		r.Get("/admin/ticket-types", HandleListTicketTypes(cfg.Admin))
		r.Post("/admin/ticket-types/{id}/activate", HandleForceActivate(cfg.Stages))
	})

	return CORS(cfg.AllowedOrigins, r)
}
