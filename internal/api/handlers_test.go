package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/campaign-engine/internal/analytics"
	"github.com/ignite/campaign-engine/internal/campaign"
	"github.com/ignite/campaign-engine/internal/risk"
	"github.com/ignite/campaign-engine/internal/schedule"
	"github.com/ignite/campaign-engine/internal/store"
	"github.com/ignite/campaign-engine/internal/trigger"
)

// mockSource feeds the risk scorer canned data, or an error.
type mockSource struct {
	users []store.UserOrders
	carts []store.CartItem
	err   error
}

func (m *mockSource) ActiveUsersWithOrders(ctx context.Context) ([]store.UserOrders, error) {
	return m.users, m.err
}

func (m *mockSource) CartItemsUpdatedBefore(ctx context.Context, cutoff time.Time) ([]store.CartItem, error) {
	return m.carts, m.err
}

func (m *mockSource) ProductsBySeason(ctx context.Context, season string) ([]store.Product, error) {
	return nil, m.err
}

func (m *mockSource) LowStockProducts(ctx context.Context, threshold int) ([]store.Product, error) {
	return nil, m.err
}

type testService struct {
	*Service
	registry  *trigger.Registry
	engine    *trigger.Engine
	scheduler *schedule.Scheduler
	analytics *analytics.Aggregator
	source    *mockSource
}

func setupTestService(t *testing.T) *testService {
	t.Helper()

	registry := trigger.NewRegistry()
	trigger.SeedDefaultRules(registry)

	aggregator := analytics.NewAggregator()
	executor := campaign.NewLogExecutor(aggregator, 0.001)
	engine := trigger.NewEngine(registry, executor, nil)
	scheduler := schedule.NewScheduler(executor)
	source := &mockSource{}
	scorer := risk.NewScorer(source)

	svc := NewService(registry, engine, scheduler, scorer, aggregator)
	return &testService{
		Service:   svc,
		registry:  registry,
		engine:    engine,
		scheduler: scheduler,
		analytics: aggregator,
		source:    source,
	}
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	ts := setupTestService(t)
	router := ts.Router()

	rec := doJSON(t, router, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, false, body["scheduler_running"])
}

func TestRuleEndpoints(t *testing.T) {
	ts := setupTestService(t)
	router := ts.Router()

	// The default rule set is listed.
	rec := doJSON(t, router, http.MethodGet, "/api/rules", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var rules []trigger.Rule
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rules))
	assert.NotEmpty(t, rules)

	// Create.
	rec = doJSON(t, router, http.MethodPost, "/api/rules", map[string]interface{}{
		"name":          "VIP churn save",
		"campaign_type": string(campaign.TypeChurnPrevention),
		"event_type":    string(trigger.EventChurnRisk),
		"conditions": []map[string]interface{}{
			{"field": "churn_probability", "operator": "gte", "value": 0.9},
		},
		"cooldown_minutes": 1440,
		"active":           true,
		"priority":         99,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created trigger.Rule
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "VIP churn save", created.Name)

	// Invalid rule is rejected.
	rec = doJSON(t, router, http.MethodPost, "/api/rules", map[string]interface{}{
		"name":          "bad",
		"campaign_type": string(campaign.TypeChurnPrevention),
		"event_type":    "no_such_event",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Patch.
	rec = doJSON(t, router, http.MethodPatch, "/api/rules/"+created.ID.String(), map[string]interface{}{
		"active": false,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var patched trigger.Rule
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &patched))
	assert.False(t, patched.Active)

	// A patch that fails validation is a bad request, not a missing rule.
	rec = doJSON(t, router, http.MethodPatch, "/api/rules/"+created.ID.String(), map[string]interface{}{
		"conditions": []map[string]interface{}{
			{"field": "favorite_color", "operator": "gte", "value": 1},
		},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

	// Patching an unknown ID is 404.
	rec = doJSON(t, router, http.MethodPatch, "/api/rules/"+uuid.NewString(), map[string]interface{}{
		"active": true,
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Delete, then the ID is gone.
	rec = doJSON(t, router, http.MethodDelete, "/api/rules/"+created.ID.String(), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = doJSON(t, router, http.MethodDelete, "/api/rules/"+created.ID.String(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Malformed ID.
	rec = doJSON(t, router, http.MethodDelete, "/api/rules/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEventEndpoints(t *testing.T) {
	ts := setupTestService(t)
	router := ts.Router()

	rec := doJSON(t, router, http.MethodPost, "/api/events", map[string]interface{}{
		"type":    string(trigger.EventChurnRisk),
		"user_id": "u1",
		"email":   "u1@example.com",
		"payload": map[string]interface{}{
			"churn_probability":     0.85,
			"days_since_last_order": 40,
		},
	})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	ts.engine.Wait()

	rec = doJSON(t, router, http.MethodGet, "/api/events/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats trigger.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, int64(1), stats.EventsProcessed)
	assert.Equal(t, int64(1), stats.RulesExecuted, "0.85 matches only the high churn rule")
	assert.Equal(t, 0, stats.QueueDepth)

	// Unknown event type.
	rec = doJSON(t, router, http.MethodPost, "/api/events", map[string]interface{}{
		"type": "meteor_strike",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Payload field outside the event schema.
	rec = doJSON(t, router, http.MethodPost, "/api/events", map[string]interface{}{
		"type":    string(trigger.EventChurnRisk),
		"payload": map[string]interface{}{"favorite_color": "green"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestScheduleEndpoints(t *testing.T) {
	ts := setupTestService(t)
	router := ts.Router()

	rec := doJSON(t, router, http.MethodPost, "/api/schedules", map[string]interface{}{
		"campaign_type": string(campaign.TypeSeasonalAlert),
		"schedule_type": string(schedule.Recurring),
		"recurrence":    string(schedule.Weekly),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created schedule.Campaign
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.True(t, created.Active)

	id := created.ID.String()

	rec = doJSON(t, router, http.MethodGet, "/api/schedules/"+id, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/schedules", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []schedule.Campaign
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 1)

	rec = doJSON(t, router, http.MethodPost, "/api/schedules/"+id+"/cancel", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	sc, ok := ts.scheduler.Get(created.ID)
	require.True(t, ok)
	assert.False(t, sc.Active)

	rec = doJSON(t, router, http.MethodDelete, "/api/schedules/"+id, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = doJSON(t, router, http.MethodGet, "/api/schedules/"+id, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// RECURRING without a recurrence is rejected.
	rec = doJSON(t, router, http.MethodPost, "/api/schedules", map[string]interface{}{
		"campaign_type": string(campaign.TypeSeasonalAlert),
		"schedule_type": string(schedule.Recurring),
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRiskEndpoints(t *testing.T) {
	ts := setupTestService(t)
	router := ts.Router()

	now := time.Now()
	ts.source.users = []store.UserOrders{{
		UserID: "u1",
		Email:  "u1@example.com",
		Orders: []store.Order{
			{Total: 40, PlacedAt: now.AddDate(0, 0, -70)},
			{Total: 40, PlacedAt: now.AddDate(0, 0, -90)},
		},
	}}
	ts.source.carts = []store.CartItem{
		{UserID: "u2", ProductID: "p1", Price: 10, Quantity: 2, UpdatedAt: now.Add(-30 * time.Hour)},
	}

	rec := doJSON(t, router, http.MethodGet, "/api/risk/churn?threshold=0.5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var churn struct {
		Threshold float64              `json:"threshold"`
		Users     []risk.ChurnRiskUser `json:"users"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &churn))
	assert.Equal(t, 0.5, churn.Threshold)
	assert.Len(t, churn.Users, 1)

	rec = doJSON(t, router, http.MethodGet, "/api/risk/abandoned-carts?hours=24", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var carts struct {
		Carts []risk.AbandonedCart `json:"carts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &carts))
	assert.Len(t, carts.Carts, 1)
	assert.Equal(t, 20.0, carts.Carts[0].TotalValue)

	// A failing store surfaces as a 500.
	ts.source.err = fmt.Errorf("db down")
	rec = doJSON(t, router, http.MethodGet, "/api/risk/churn", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestAnalyticsEndpoints(t *testing.T) {
	ts := setupTestService(t)
	router := ts.Router()

	sent := time.Date(2026, 8, 10, 9, 0, 0, 0, time.UTC)
	ts.analytics.TrackCampaign("c1", campaign.TypeWinBack, sent,
		campaign.Metrics{Sent: 100, Delivered: 95, Opened: 40, Clicked: 10, Converted: 2, Revenue: 80}, 10)
	ts.analytics.TrackCampaign("c2", campaign.TypeCartRecovery, sent,
		campaign.Metrics{Sent: 100, Delivered: 95, Opened: 40, Clicked: 10, Converted: 8, Revenue: 200}, 10)

	rec := doJSON(t, router, http.MethodGet, "/api/analytics/report?start=2026-08-01&end=2026-08-31", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var report analytics.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, 2, report.Campaigns)

	rec = doJSON(t, router, http.MethodGet, "/api/analytics/report?start=bogus&end=2026-08-31", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/analytics/compare?a=c1&b=c2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var cmp analytics.Comparison
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cmp))
	assert.Equal(t, "c2", cmp.Winner, "80% vs 20% conversion is decisive")

	rec = doJSON(t, router, http.MethodGet, "/api/analytics/compare?a=c1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = doJSON(t, router, http.MethodGet, "/api/analytics/compare?a=c1&b=ghost", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/analytics/campaigns/c1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var perf analytics.Performance
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &perf))
	assert.Equal(t, 95.0, perf.Rates.DeliveryRate)

	rec = doJSON(t, router, http.MethodPatch, "/api/analytics/campaigns/c1/metrics", map[string]interface{}{
		"converted": 5,
		"revenue":   250.0,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &perf))
	assert.Equal(t, 50.0, perf.Rates.ConversionRate)

	rec = doJSON(t, router, http.MethodDelete, "/api/analytics/campaigns/c1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = doJSON(t, router, http.MethodGet, "/api/analytics/campaigns/c1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
