package risk

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ignite/campaign-engine/internal/store"
	"github.com/ignite/campaign-engine/internal/trigger"
)

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: true}
}

// captureSink collects emitted events for inspection.
type captureSink struct {
	mu     sync.Mutex
	events []trigger.Event
}

func (c *captureSink) ProcessEvent(e trigger.Event) {
	c.mu.Lock()
	c.events = append(c.events, e)
	c.mu.Unlock()
}

func (c *captureSink) byType(t trigger.EventType) []trigger.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []trigger.Event
	for _, e := range c.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func TestRunScans_EmitsAllEventTypes(t *testing.T) {
	now := time.Now()
	src := &fakeSource{
		users: []store.UserOrders{
			{
				UserID: "churner",
				Email:  "churner@example.com",
				Orders: ordersAtDays(now, []float64{40, 40}, []int{70, 90}),
			},
			{
				UserID:      "sleeper",
				Email:       "sleeper@example.com",
				LastLoginAt: nullTime(now.AddDate(0, 0, -45)),
			},
		},
		carts: []store.CartItem{
			{UserID: "shopper", ProductID: "p1", Price: 15, Quantity: 2, UpdatedAt: now.Add(-30 * time.Hour)},
		},
		seasonal: []store.Product{
			{ID: "s1", Name: "Sweet Corn", Season: CurrentSeason(now), Stock: 50},
		},
		lowStock: []store.Product{
			{ID: "l1", Name: "Raw Honey", Stock: 2},
			{ID: "l2", Name: "Goat Cheese", Stock: 5},
		},
	}

	sink := &captureSink{}
	m := NewMonitor(NewScorer(src), sink, MonitorConfig{})

	m.RunScans(context.Background())

	churn := sink.byType(trigger.EventChurnRisk)
	if len(churn) != 1 {
		t.Fatalf("churn events = %d, want 1", len(churn))
	}
	if churn[0].UserID != "churner" || churn[0].Email != "churner@example.com" {
		t.Errorf("churn event = %+v", churn[0])
	}
	if v, ok := churn[0].Payload.Field("churn_probability"); !ok || v.(float64) < 0.4 {
		t.Errorf("churn_probability = %v, want at least the default threshold", v)
	}

	carts := sink.byType(trigger.EventCartAbandoned)
	if len(carts) != 1 {
		t.Fatalf("cart events = %d, want 1", len(carts))
	}
	if v, _ := carts[0].Payload.Field("total_value"); v.(float64) != 30 {
		t.Errorf("total_value = %v, want 30", v)
	}

	inactive := sink.byType(trigger.EventUserInactive)
	if len(inactive) != 1 {
		t.Fatalf("inactivity events = %d, want 1", len(inactive))
	}
	if v, _ := inactive[0].Payload.Field("days_inactive"); v.(float64) != 45 {
		t.Errorf("days_inactive = %v, want 45", v)
	}

	seasonal := sink.byType(trigger.EventSeasonal)
	if len(seasonal) != 1 {
		t.Fatalf("seasonal events = %d, want 1", len(seasonal))
	}
	if seasonal[0].UserID != "" {
		t.Error("seasonal events are global and carry no user")
	}

	lowStock := sink.byType(trigger.EventLowStock)
	if len(lowStock) != 1 {
		t.Fatalf("low stock events = %d, want 1", len(lowStock))
	}
	if v, _ := lowStock[0].Payload.Field("min_stock"); v.(float64) != 2 {
		t.Errorf("min_stock = %v, want the lowest stock level", v)
	}
}

func TestRunScans_EmptyResultsEmitNothing(t *testing.T) {
	sink := &captureSink{}
	m := NewMonitor(NewScorer(&fakeSource{}), sink, MonitorConfig{})

	m.RunScans(context.Background())

	if len(sink.events) != 0 {
		t.Errorf("events = %v, want none from an empty store", sink.events)
	}
}

func TestRunScans_StoreErrorDoesNotPanic(t *testing.T) {
	sink := &captureSink{}
	m := NewMonitor(NewScorer(&fakeSource{err: fmt.Errorf("db down")}), sink, MonitorConfig{})

	// Every scan fails; the pass completes without emitting.
	m.RunScans(context.Background())

	if len(sink.events) != 0 {
		t.Errorf("events = %v, want none when every scan fails", sink.events)
	}
}

func TestMonitorStartStop(t *testing.T) {
	sink := &captureSink{}
	m := NewMonitor(NewScorer(&fakeSource{}), sink, MonitorConfig{Interval: 10 * time.Millisecond})

	m.Start()
	// Second Start is a no-op, not a second loop.
	m.Start()

	time.Sleep(50 * time.Millisecond)
	m.Stop()
	m.Stop()

	if got := m.scansRun; got == 0 {
		t.Error("scan loop never ticked")
	}
}

func TestCurrentSeason(t *testing.T) {
	tests := []struct {
		month time.Month
		want  string
	}{
		{time.January, "winter"},
		{time.April, "spring"},
		{time.July, "summer"},
		{time.October, "fall"},
		{time.December, "winter"},
	}
	for _, tt := range tests {
		d := time.Date(2026, tt.month, 15, 0, 0, 0, 0, time.UTC)
		if got := CurrentSeason(d); got != tt.want {
			t.Errorf("CurrentSeason(%v) = %s, want %s", tt.month, got, tt.want)
		}
	}
}

func TestRunScans_CartEventCarriesReminderCount(t *testing.T) {
	src := &fakeSource{carts: []store.CartItem{
		{UserID: "u1", ProductID: "p1", Price: 15.00, Quantity: 2, UpdatedAt: time.Now().Add(-30 * time.Hour)},
	}}
	scorer := NewScorer(src)
	scorer.SetReminderSource(&stubReminders{counts: map[string]int{"u1": 2}})

	sink := &captureSink{}
	m := NewMonitor(scorer, sink, MonitorConfig{})

	m.RunScans(context.Background())

	carts := sink.byType(trigger.EventCartAbandoned)
	if len(carts) != 1 {
		t.Fatalf("cart events = %d, want 1", len(carts))
	}
	if v, _ := carts[0].Payload.Field("reminders_sent"); v.(float64) != 2 {
		t.Errorf("reminders_sent = %v, want 2", v)
	}
}
