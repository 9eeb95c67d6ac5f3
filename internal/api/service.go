package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ignite/campaign-engine/internal/analytics"
	"github.com/ignite/campaign-engine/internal/risk"
	"github.com/ignite/campaign-engine/internal/schedule"
	"github.com/ignite/campaign-engine/internal/trigger"
)

// Service is the HTTP surface over the automation engine components.
type Service struct {
	registry  *trigger.Registry
	engine    *trigger.Engine
	scheduler *schedule.Scheduler
	scorer    *risk.Scorer
	analytics *analytics.Aggregator
	startedAt time.Time
}

// NewService wires the API over already-constructed components.
func NewService(
	registry *trigger.Registry,
	engine *trigger.Engine,
	scheduler *schedule.Scheduler,
	scorer *risk.Scorer,
	aggregator *analytics.Aggregator,
) *Service {
	return &Service{
		registry:  registry,
		engine:    engine,
		scheduler: scheduler,
		scorer:    scorer,
		analytics: aggregator,
		startedAt: time.Now(),
	}
}

// Router builds the chi router for the service.
func (s *Service) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(ar chi.Router) {
		ar.Route("/rules", func(rr chi.Router) {
			rr.Get("/", s.handleListRules)
			rr.Post("/", s.handleCreateRule)
			rr.Patch("/{id}", s.handleUpdateRule)
			rr.Delete("/{id}", s.handleDeleteRule)
		})

		ar.Post("/events", s.handleInjectEvent)
		ar.Get("/events/stats", s.handleEngineStats)

		ar.Route("/schedules", func(sr chi.Router) {
			sr.Get("/", s.handleListSchedules)
			sr.Post("/", s.handleCreateSchedule)
			sr.Get("/{id}", s.handleGetSchedule)
			sr.Patch("/{id}", s.handleUpdateSchedule)
			sr.Post("/{id}/cancel", s.handleCancelSchedule)
			sr.Delete("/{id}", s.handleDeleteSchedule)
		})

		ar.Route("/risk", func(rr chi.Router) {
			rr.Get("/churn", s.handleChurnScan)
			rr.Get("/abandoned-carts", s.handleAbandonedCarts)
			rr.Get("/inactive", s.handleInactiveUsers)
		})

		ar.Route("/analytics", func(anr chi.Router) {
			anr.Get("/report", s.handleReport)
			anr.Get("/compare", s.handleCompare)
			anr.Get("/campaigns/{id}", s.handleGetCampaign)
			anr.Patch("/campaigns/{id}/metrics", s.handleUpdateMetrics)
			anr.Delete("/campaigns/{id}", s.handleRemoveCampaign)
		})
	})

	return r
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":            "ok",
		"uptime_seconds":    int(time.Since(s.startedAt).Seconds()),
		"scheduler_running": s.scheduler.Running(),
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}
