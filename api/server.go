/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request, attached to every log line
  2. Logging:    zap request logger (logging.Middleware)
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/employees/*      Employees, ledger, adjustments
  /api/leave/*          Leave requests and transitions
  /api/cash-advances/*  Cash advances and level transitions
  /api/liquidations/*   Liquidations and receipts
  /api/scenarios/*      Demo data
  /healthz              Liveness + store ping

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/warp/approval-engine/logging"
)

// RouterConfig holds router-level settings.
type RouterConfig struct {
	AllowedOrigins []string
	Logger         *zap.Logger
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, cfg RouterConfig) *chi.Mux {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:8080"}
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(logging.Middleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", ActorHeader},
		ExposedHeaders:   []string{middleware.RequestIDHeader},
		AllowCredentials: true,
	}))

	r.Get("/healthz", h.Health)

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Employee routes
		r.Route("/employees", func(r chi.Router) {
			r.Get("/", h.ListEmployees)
			r.Post("/", h.CreateEmployee)
			r.Get("/{id}", h.GetEmployee)
			r.Get("/{id}/ledger", h.GetLedger)
			r.Post("/{id}/adjustments", h.CreateAdjustment)
		})

		// Leave routes
		r.Route("/leave", func(r chi.Router) {
			r.Get("/", h.ListLeave)
			r.Post("/", h.CreateLeave)
			r.Post("/transition", h.TransitionLeave)
			r.Get("/{id}", h.GetLeave)
		})

		// Cash advance routes
		r.Route("/cash-advances", func(r chi.Router) {
			r.Post("/", h.CreateCashAdvance)
			r.Post("/transition", h.TransitionCashAdvance)
			r.Get("/{id}", h.GetCashAdvance)
			r.Get("/{id}/liquidations", h.ListAdvanceLiquidations)
		})

		// Liquidation routes
		r.Route("/liquidations", func(r chi.Router) {
			r.Post("/", h.CreateLiquidation)
			r.Get("/{id}", h.GetLiquidation)
			r.Put("/{id}", h.UpdateLiquidation)
			r.Delete("/{id}", h.DeleteLiquidation)
			r.Post("/{id}/receipts", h.UploadReceipt)
		})

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "route not found", Code: CodeNotFound})
	})

	return r
}
