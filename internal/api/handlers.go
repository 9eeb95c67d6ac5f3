package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ignite/campaign-engine/internal/analytics"
	"github.com/ignite/campaign-engine/internal/schedule"
	"github.com/ignite/campaign-engine/internal/trigger"
)

// --- Rules ---

func (s *Service) handleListRules(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"
	writeJSON(w, http.StatusOK, s.registry.Rules(activeOnly))
}

func (s *Service) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var rule trigger.Rule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		writeJSONError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	created, err := s.registry.AddRule(rule)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Service) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSONError(w, "invalid rule id", http.StatusBadRequest)
		return
	}
	var patch trigger.RulePatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeJSONError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	updated, err := s.registry.UpdateRule(id, patch)
	if err != nil {
		// A missing rule is 404; a patch that fails validation is 400.
		status := http.StatusBadRequest
		if errors.Is(err, trigger.ErrRuleNotFound) {
			status = http.StatusNotFound
		}
		writeJSONError(w, err.Error(), status)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Service) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSONError(w, "invalid rule id", http.StatusBadRequest)
		return
	}
	if err := s.registry.RemoveRule(id); err != nil {
		writeJSONError(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// --- Events ---

type eventRequest struct {
	Type      trigger.EventType      `json:"type"`
	UserID    string                 `json:"user_id,omitempty"`
	Email     string                 `json:"email,omitempty"`
	ProductID string                 `json:"product_id,omitempty"`
	FarmID    string                 `json:"farm_id,omitempty"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
}

func (s *Service) handleInjectEvent(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if !trigger.KnownEventType(req.Type) {
		writeJSONError(w, "unknown event type", http.StatusBadRequest)
		return
	}
	payload, err := trigger.PayloadFromMap(req.Type, req.Payload)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.engine.ProcessEvent(trigger.Event{
		Type:      req.Type,
		UserID:    req.UserID,
		Email:     req.Email,
		ProductID: req.ProductID,
		FarmID:    req.FarmID,
		Payload:   payload,
	})
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func (s *Service) handleEngineStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Stats())
}

// --- Schedules ---

func (s *Service) handleListSchedules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.scheduler.Schedules())
}

func (s *Service) handleCreateSchedule(w http.ResponseWriter, r *http.Request) {
	var cfg schedule.Config
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeJSONError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	id, err := s.scheduler.ScheduleCampaign(cfg)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	sc, _ := s.scheduler.Get(id)
	writeJSON(w, http.StatusCreated, sc)
}

func (s *Service) handleGetSchedule(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSONError(w, "invalid schedule id", http.StatusBadRequest)
		return
	}
	sc, ok := s.scheduler.Get(id)
	if !ok {
		writeJSONError(w, "schedule not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, sc)
}

func (s *Service) handleUpdateSchedule(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSONError(w, "invalid schedule id", http.StatusBadRequest)
		return
	}
	var patch schedule.Patch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeJSONError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	sc, err := s.scheduler.UpdateSchedule(id, patch)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, sc)
}

func (s *Service) handleCancelSchedule(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSONError(w, "invalid schedule id", http.StatusBadRequest)
		return
	}
	if err := s.scheduler.CancelSchedule(id); err != nil {
		writeJSONError(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (s *Service) handleDeleteSchedule(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSONError(w, "invalid schedule id", http.StatusBadRequest)
		return
	}
	if err := s.scheduler.DeleteSchedule(id); err != nil {
		writeJSONError(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// --- Risk scans ---

func (s *Service) handleChurnScan(w http.ResponseWriter, r *http.Request) {
	threshold := queryFloat(r, "threshold", 0.4)
	users, err := s.scorer.IdentifyChurnRiskUsers(r.Context(), threshold)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"threshold": threshold, "users": users})
}

func (s *Service) handleAbandonedCarts(w http.ResponseWriter, r *http.Request) {
	hours := queryInt(r, "hours", 24)
	carts, err := s.scorer.IdentifyAbandonedCarts(r.Context(), hours)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"hours_threshold": hours, "carts": carts})
}

func (s *Service) handleInactiveUsers(w http.ResponseWriter, r *http.Request) {
	days := queryInt(r, "days", 30)
	users, err := s.scorer.IdentifyInactiveUsers(r.Context(), days)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"inactive_days": days, "users": users})
}

// --- Analytics ---

func (s *Service) handleReport(w http.ResponseWriter, r *http.Request) {
	start, err := parseDate(r.URL.Query().Get("start"))
	if err != nil {
		writeJSONError(w, "start must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	end, err := parseDate(r.URL.Query().Get("end"))
	if err != nil {
		writeJSONError(w, "end must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, s.analytics.GenerateReport(start, end))
}

func (s *Service) handleCompare(w http.ResponseWriter, r *http.Request) {
	idA := r.URL.Query().Get("a")
	idB := r.URL.Query().Get("b")
	if idA == "" || idB == "" {
		writeJSONError(w, "query params a and b are required", http.StatusBadRequest)
		return
	}
	cmp, err := s.analytics.CompareCampaigns(idA, idB)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, cmp)
}

func (s *Service) handleGetCampaign(w http.ResponseWriter, r *http.Request) {
	perf, ok := s.analytics.Get(chi.URLParam(r, "id"))
	if !ok {
		writeJSONError(w, "campaign not tracked", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, perf)
}

func (s *Service) handleUpdateMetrics(w http.ResponseWriter, r *http.Request) {
	var patch analytics.MetricsPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeJSONError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	perf, err := s.analytics.UpdateCampaignMetrics(chi.URLParam(r, "id"), patch)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, perf)
}

func (s *Service) handleRemoveCampaign(w http.ResponseWriter, r *http.Request) {
	s.analytics.Remove(chi.URLParam(r, "id"))
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

// --- helpers ---

func queryFloat(r *http.Request, key string, def float64) float64 {
	if v := r.URL.Query().Get(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func queryInt(r *http.Request, key string, def int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func parseDate(v string) (time.Time, error) {
	return time.Parse("2006-01-02", v)
}
