package trigger

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/ignite/campaign-engine/internal/campaign"
)

// Rule is a declarative mapping from an event type to a campaign type,
// gated by conditions and a per-user cooldown.
type Rule struct {
	ID              uuid.UUID     `json:"id"`
	Name            string        `json:"name"`
	CampaignType    campaign.Type `json:"campaign_type"`
	EventType       EventType     `json:"event_type"`
	Conditions      []Condition   `json:"conditions"`
	CooldownMinutes int           `json:"cooldown_minutes"`
	Active          bool          `json:"active"`
	Priority        int           `json:"priority"`
}

// RulePatch carries a partial rule update. Nil fields are left unchanged.
type RulePatch struct {
	Name            *string        `json:"name,omitempty"`
	CampaignType    *campaign.Type `json:"campaign_type,omitempty"`
	Conditions      *[]Condition   `json:"conditions,omitempty"`
	CooldownMinutes *int           `json:"cooldown_minutes,omitempty"`
	Active          *bool          `json:"active,omitempty"`
	Priority        *int           `json:"priority,omitempty"`
}

// ErrRuleNotFound is returned when a rule ID is not registered. Callers use
// it to tell a missing rule apart from an invalid one.
var ErrRuleNotFound = errors.New("rule not found")

// Registry holds the trigger rules, kept sorted by descending priority.
// Safe for concurrent use: the API mutates it while the drain loop reads.
type Registry struct {
	mu    sync.RWMutex
	rules []Rule
}

// NewRegistry creates an empty rule registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// AddRule validates and registers a rule, assigning an ID when absent.
// Conditions are checked against the event schema here so that evaluation
// never sees an unresolvable field.
func (r *Registry) AddRule(rule Rule) (Rule, error) {
	if err := validateRule(rule); err != nil {
		return Rule{}, err
	}
	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.rules {
		if existing.ID == rule.ID {
			return Rule{}, fmt.Errorf("rule %s already registered", rule.ID)
		}
	}
	r.rules = append(r.rules, rule)
	r.sortLocked()
	return rule, nil
}

// UpdateRule applies a partial update to an existing rule and re-sorts.
func (r *Registry) UpdateRule(id uuid.UUID, patch RulePatch) (Rule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := -1
	for i := range r.rules {
		if r.rules[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return Rule{}, fmt.Errorf("rule %s: %w", id, ErrRuleNotFound)
	}

	updated := r.rules[idx]
	if patch.Name != nil {
		updated.Name = *patch.Name
	}
	if patch.CampaignType != nil {
		updated.CampaignType = *patch.CampaignType
	}
	if patch.Conditions != nil {
		updated.Conditions = *patch.Conditions
	}
	if patch.CooldownMinutes != nil {
		updated.CooldownMinutes = *patch.CooldownMinutes
	}
	if patch.Active != nil {
		updated.Active = *patch.Active
	}
	if patch.Priority != nil {
		updated.Priority = *patch.Priority
	}

	if err := validateRule(updated); err != nil {
		return Rule{}, err
	}
	r.rules[idx] = updated
	r.sortLocked()
	return updated, nil
}

// RemoveRule deletes a rule by ID.
func (r *Registry) RemoveRule(id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.rules {
		if r.rules[i].ID == id {
			r.rules = append(r.rules[:i], r.rules[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("rule %s: %w", id, ErrRuleNotFound)
}

// Rules returns a copy of the registered rules in priority order,
// optionally filtered to active rules.
func (r *Registry) Rules(activeOnly bool) []Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Rule, 0, len(r.rules))
	for _, rule := range r.rules {
		if activeOnly && !rule.Active {
			continue
		}
		out = append(out, rule)
	}
	return out
}

// matching returns the active rules for an event type, highest priority
// first.
func (r *Registry) matching(t EventType) []Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Rule
	for _, rule := range r.rules {
		if rule.Active && rule.EventType == t {
			out = append(out, rule)
		}
	}
	return out
}

func (r *Registry) sortLocked() {
	sort.SliceStable(r.rules, func(i, j int) bool {
		return r.rules[i].Priority > r.rules[j].Priority
	})
}

func validateRule(rule Rule) error {
	if rule.Name == "" {
		return fmt.Errorf("rule name is required")
	}
	if rule.CampaignType == "" {
		return fmt.Errorf("rule campaign type is required")
	}
	if !KnownEventType(rule.EventType) {
		return fmt.Errorf("unknown event type %q", rule.EventType)
	}
	if rule.CooldownMinutes < 0 {
		return fmt.Errorf("cooldown minutes must not be negative")
	}
	for i, c := range rule.Conditions {
		if err := c.Validate(rule.EventType); err != nil {
			return fmt.Errorf("condition %d: %w", i, err)
		}
	}
	return nil
}
