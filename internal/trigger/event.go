package trigger

import (
	"fmt"
	"time"
)

// EventType identifies what happened. Every event type has a fixed payload
// shape; conditions may only reference fields that type actually carries.
type EventType string

const (
	EventChurnRisk     EventType = "churn_risk_detected"
	EventCartAbandoned EventType = "cart_abandoned"
	EventUserInactive  EventType = "user_inactive"
	EventSeasonal      EventType = "seasonal_products_available"
	EventLowStock      EventType = "low_stock"
)

// Payload is the typed per-event-type data bag. Field resolves a named
// payload field for condition evaluation; the second return is false when
// the field does not exist on this payload.
type Payload interface {
	Field(name string) (interface{}, bool)
}

// Event is a single occurrence fed into the trigger engine. Events are
// ephemeral: queued, matched once, discarded.
type Event struct {
	Type       EventType
	UserID     string
	Email      string
	ProductID  string
	FarmID     string
	Payload    Payload
	OccurredAt time.Time
}

// ChurnRiskPayload accompanies churn_risk_detected events.
type ChurnRiskPayload struct {
	ChurnProbability   float64
	DaysSinceLastOrder float64
	TotalOrders        float64
	AverageOrderValue  float64
}

func (p ChurnRiskPayload) Field(name string) (interface{}, bool) {
	switch name {
	case "churn_probability":
		return p.ChurnProbability, true
	case "days_since_last_order":
		return p.DaysSinceLastOrder, true
	case "total_orders":
		return p.TotalOrders, true
	case "average_order_value":
		return p.AverageOrderValue, true
	}
	return nil, false
}

// CartPayload accompanies cart_abandoned events.
type CartPayload struct {
	TotalValue       float64
	ItemCount        float64
	HoursSinceUpdate float64
	RemindersSent    float64
}

func (p CartPayload) Field(name string) (interface{}, bool) {
	switch name {
	case "total_value":
		return p.TotalValue, true
	case "item_count":
		return p.ItemCount, true
	case "hours_since_update":
		return p.HoursSinceUpdate, true
	case "reminders_sent":
		return p.RemindersSent, true
	}
	return nil, false
}

// InactivityPayload accompanies user_inactive events.
type InactivityPayload struct {
	DaysInactive float64
	TotalOrders  float64
}

func (p InactivityPayload) Field(name string) (interface{}, bool) {
	switch name {
	case "days_inactive":
		return p.DaysInactive, true
	case "total_orders":
		return p.TotalOrders, true
	}
	return nil, false
}

// SeasonalPayload accompanies seasonal_products_available events. These are
// global events with no user attached.
type SeasonalPayload struct {
	Season       string
	ProductCount float64
}

func (p SeasonalPayload) Field(name string) (interface{}, bool) {
	switch name {
	case "season":
		return p.Season, true
	case "product_count":
		return p.ProductCount, true
	}
	return nil, false
}

// LowStockPayload accompanies low_stock events.
type LowStockPayload struct {
	ProductCount float64
	MinStock     float64
}

func (p LowStockPayload) Field(name string) (interface{}, bool) {
	switch name {
	case "product_count":
		return p.ProductCount, true
	case "min_stock":
		return p.MinStock, true
	}
	return nil, false
}

// sharedFields are resolvable on every event regardless of type.
var sharedFields = []string{"user_id", "email", "product_id", "farm_id"}

// payloadFields is the static schema: legal condition fields per event type.
var payloadFields = map[EventType][]string{
	EventChurnRisk:     {"churn_probability", "days_since_last_order", "total_orders", "average_order_value"},
	EventCartAbandoned: {"total_value", "item_count", "hours_since_update", "reminders_sent"},
	EventUserInactive:  {"days_inactive", "total_orders"},
	EventSeasonal:      {"season", "product_count"},
	EventLowStock:      {"product_count", "min_stock"},
}

// KnownEventType reports whether t is part of the event schema.
func KnownEventType(t EventType) bool {
	_, ok := payloadFields[t]
	return ok
}

// PayloadFields returns the payload field names defined for an event type.
func PayloadFields(t EventType) []string {
	return payloadFields[t]
}

// ValidField reports whether a condition on events of type t may reference
// the given field.
func ValidField(t EventType, field string) bool {
	for _, f := range sharedFields {
		if f == field {
			return true
		}
	}
	for _, f := range payloadFields[t] {
		if f == field {
			return true
		}
	}
	return false
}

// resolveField looks a field up on the event, first among the shared
// attributes, then in the typed payload.
func resolveField(e Event, field string) (interface{}, bool) {
	switch field {
	case "user_id":
		return e.UserID, true
	case "email":
		return e.Email, true
	case "product_id":
		return e.ProductID, true
	case "farm_id":
		return e.FarmID, true
	}
	if e.Payload == nil {
		return nil, false
	}
	return e.Payload.Field(field)
}

// PayloadFromMap builds the typed payload for an event type from loosely
// typed JSON input. Used by the HTTP event endpoint.
func PayloadFromMap(t EventType, m map[string]interface{}) (Payload, error) {
	num := func(key string) (float64, error) {
		v, ok := m[key]
		if !ok {
			return 0, nil
		}
		f, ok := toFloat(v)
		if !ok {
			return 0, fmt.Errorf("payload field %q must be numeric", key)
		}
		return f, nil
	}
	str := func(key string) (string, error) {
		v, ok := m[key]
		if !ok {
			return "", nil
		}
		s, ok := v.(string)
		if !ok {
			return "", fmt.Errorf("payload field %q must be a string", key)
		}
		return s, nil
	}

	var firstErr error
	mustNum := func(key string) float64 {
		f, err := num(key)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		return f
	}
	mustStr := func(key string) string {
		s, err := str(key)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		return s
	}

	var p Payload
	switch t {
	case EventChurnRisk:
		p = ChurnRiskPayload{
			ChurnProbability:   mustNum("churn_probability"),
			DaysSinceLastOrder: mustNum("days_since_last_order"),
			TotalOrders:        mustNum("total_orders"),
			AverageOrderValue:  mustNum("average_order_value"),
		}
	case EventCartAbandoned:
		p = CartPayload{
			TotalValue:       mustNum("total_value"),
			ItemCount:        mustNum("item_count"),
			HoursSinceUpdate: mustNum("hours_since_update"),
			RemindersSent:    mustNum("reminders_sent"),
		}
	case EventUserInactive:
		p = InactivityPayload{
			DaysInactive: mustNum("days_inactive"),
			TotalOrders:  mustNum("total_orders"),
		}
	case EventSeasonal:
		p = SeasonalPayload{
			Season:       mustStr("season"),
			ProductCount: mustNum("product_count"),
		}
	case EventLowStock:
		p = LowStockPayload{
			ProductCount: mustNum("product_count"),
			MinStock:     mustNum("min_stock"),
		}
	default:
		return nil, fmt.Errorf("unknown event type %q", t)
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return p, nil
}
