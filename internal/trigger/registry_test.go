package trigger

import (
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/ignite/campaign-engine/internal/campaign"
)

func testRule(name string, priority int) Rule {
	return Rule{
		Name:         name,
		CampaignType: campaign.TypeChurnPrevention,
		EventType:    EventChurnRisk,
		Active:       true,
		Priority:     priority,
	}
}

func TestRegistry_AddKeepsPriorityOrder(t *testing.T) {
	r := NewRegistry()
	for _, spec := range []struct {
		name     string
		priority int
	}{
		{"low", 10},
		{"high", 90},
		{"mid", 50},
	} {
		if _, err := r.AddRule(testRule(spec.name, spec.priority)); err != nil {
			t.Fatalf("AddRule(%s) error: %v", spec.name, err)
		}
	}

	rules := r.Rules(false)
	want := []string{"high", "mid", "low"}
	if len(rules) != len(want) {
		t.Fatalf("got %d rules, want %d", len(rules), len(want))
	}
	for i, name := range want {
		if rules[i].Name != name {
			t.Errorf("rules[%d] = %s, want %s", i, rules[i].Name, name)
		}
	}
}

func TestRegistry_AddAssignsID(t *testing.T) {
	r := NewRegistry()
	added, err := r.AddRule(testRule("auto-id", 10))
	if err != nil {
		t.Fatalf("AddRule error: %v", err)
	}
	if added.ID == uuid.Nil {
		t.Error("expected an assigned rule ID")
	}
}

func TestRegistry_AddValidatesConditions(t *testing.T) {
	r := NewRegistry()
	rule := testRule("bad-field", 10)
	rule.Conditions = []Condition{{Field: "cart_total", Operator: OpGt, Value: 5}}
	if _, err := r.AddRule(rule); err == nil {
		t.Error("expected schema validation error for unknown field")
	}

	rule = testRule("bad-event", 10)
	rule.EventType = "meteor_strike"
	if _, err := r.AddRule(rule); err == nil {
		t.Error("expected error for unknown event type")
	}

	rule = testRule("negative-cooldown", 10)
	rule.CooldownMinutes = -5
	if _, err := r.AddRule(rule); err == nil {
		t.Error("expected error for negative cooldown")
	}
}

func TestRegistry_UpdateRulePartialMerge(t *testing.T) {
	r := NewRegistry()
	added, err := r.AddRule(testRule("original", 10))
	if err != nil {
		t.Fatalf("AddRule error: %v", err)
	}

	newName := "renamed"
	newPriority := 99
	inactive := false
	updated, err := r.UpdateRule(added.ID, RulePatch{
		Name:     &newName,
		Priority: &newPriority,
		Active:   &inactive,
	})
	if err != nil {
		t.Fatalf("UpdateRule error: %v", err)
	}

	if updated.Name != "renamed" {
		t.Errorf("Name = %s, want renamed", updated.Name)
	}
	if updated.Priority != 99 {
		t.Errorf("Priority = %d, want 99", updated.Priority)
	}
	if updated.Active {
		t.Error("Active should be false after patch")
	}
	// Untouched fields survive the merge.
	if updated.CampaignType != campaign.TypeChurnPrevention {
		t.Errorf("CampaignType = %s, unexpectedly changed", updated.CampaignType)
	}

	if got := r.Rules(true); len(got) != 0 {
		t.Errorf("active-only list should be empty, got %d", len(got))
	}
}

func TestRegistry_UpdateRejectsInvalidPatch(t *testing.T) {
	r := NewRegistry()
	added, _ := r.AddRule(testRule("guarded", 10))

	bad := []Condition{{Field: "nonsense", Operator: OpGt, Value: 1}}
	if _, err := r.UpdateRule(added.ID, RulePatch{Conditions: &bad}); err == nil {
		t.Error("expected validation error on patched conditions")
	}

	// Rule is unchanged after the failed patch.
	rules := r.Rules(false)
	if len(rules) != 1 || len(rules[0].Conditions) != 0 {
		t.Error("failed patch must not mutate the stored rule")
	}
}

func TestRegistry_RemoveRule(t *testing.T) {
	r := NewRegistry()
	added, _ := r.AddRule(testRule("doomed", 10))

	if err := r.RemoveRule(added.ID); err != nil {
		t.Fatalf("RemoveRule error: %v", err)
	}
	if err := r.RemoveRule(added.ID); err == nil {
		t.Error("second RemoveRule should report not found")
	}
	if got := r.Rules(false); len(got) != 0 {
		t.Errorf("registry should be empty, got %d rules", len(got))
	}
}

func TestSeedDefaultRules(t *testing.T) {
	r := NewRegistry()
	SeedDefaultRules(r)

	rules := r.Rules(true)
	if len(rules) == 0 {
		t.Fatal("expected seeded rules")
	}

	// Seeding twice must not duplicate.
	SeedDefaultRules(r)
	if got := r.Rules(true); len(got) != len(rules) {
		t.Errorf("second seed changed rule count: %d -> %d", len(rules), len(got))
	}

	// Highest priority first.
	for i := 1; i < len(rules); i++ {
		if rules[i].Priority > rules[i-1].Priority {
			t.Errorf("rules not sorted by priority at index %d", i)
		}
	}
}

func TestRegistry_NotFoundErrorIsDistinct(t *testing.T) {
	r := NewRegistry()

	if _, err := r.UpdateRule(uuid.New(), RulePatch{}); !errors.Is(err, ErrRuleNotFound) {
		t.Errorf("UpdateRule on missing id: err = %v, want ErrRuleNotFound", err)
	}
	if err := r.RemoveRule(uuid.New()); !errors.Is(err, ErrRuleNotFound) {
		t.Errorf("RemoveRule on missing id: err = %v, want ErrRuleNotFound", err)
	}

	// A validation failure must not look like a missing rule.
	added, _ := r.AddRule(testRule("present", 10))
	bad := []Condition{{Field: "nonsense", Operator: OpGt, Value: 1}}
	if _, err := r.UpdateRule(added.ID, RulePatch{Conditions: &bad}); errors.Is(err, ErrRuleNotFound) {
		t.Errorf("validation error wrongly wraps ErrRuleNotFound: %v", err)
	}
}
