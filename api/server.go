/*
server.go - HTTP router and middleware configuration

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /leave-management/*   Ledger, requests, overtime, capacity, reference data
  /leave-management/scenarios/*  Demo data (dev only)
  /healthz              Liveness

SECURITY NOTE:
  No authentication middleware. Callers pass tenant_id explicitly and every
  component rejects entities owned by another tenant.
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type RouterOptions struct {
	CORSOrigins []string
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if len(opts.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   opts.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
			AllowCredentials: true,
		}))
	}

	r.Get("/healthz", h.Health)

	r.Route("/leave-management", func(r chi.Router) {
		r.Post("/allocate-individual", h.AllocateIndividual)
		r.Post("/run-annual-allocation", h.RunAnnualAllocation)
		r.Get("/balances/{userId}", h.GetBalances)

		r.Post("/apply", h.Apply)
		r.Post("/update-leave-status", h.UpdateLeaveStatus)

		r.Post("/process-overtime", h.ProcessOvertime)
		r.Get("/capacity/{userEmail}", h.GetCapacity)

		r.Post("/users", h.CreateUser)
		r.Post("/leave-types", h.CreateLeaveType)
		r.Get("/leave-types", h.ListLeaveTypes)
		r.Post("/timesheets", h.CreateTimesheet)

		r.Get("/scenarios", h.ListScenarios)
		r.Post("/scenarios/load", h.LoadScenario)
	})

	return r
}
