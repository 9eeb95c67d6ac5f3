package trigger

import (
	"log"

	"github.com/ignite/campaign-engine/internal/campaign"
)

// DefaultRules returns the stock rule set used when no rules have been
// registered yet. Thresholds mirror the marketing team's standing playbook.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:         "High Churn Risk",
			CampaignType: campaign.TypeChurnPrevention,
			EventType:    EventChurnRisk,
			Conditions: []Condition{
				{Field: "churn_probability", Operator: OpGte, Value: 0.7},
			},
			CooldownMinutes: 10080, // one week
			Active:          true,
			Priority:        80,
		},
		{
			Name:         "Moderate Churn Risk Win-Back",
			CampaignType: campaign.TypeWinBack,
			EventType:    EventChurnRisk,
			Conditions: []Condition{
				{Field: "churn_probability", Operator: OpGte, Value: 0.4},
				{Field: "churn_probability", Operator: OpLt, Value: 0.7},
			},
			CooldownMinutes: 10080,
			Active:          true,
			Priority:        50,
		},
		{
			Name:         "Abandoned Cart Recovery",
			CampaignType: campaign.TypeCartRecovery,
			EventType:    EventCartAbandoned,
			Conditions: []Condition{
				{Field: "total_value", Operator: OpGt, Value: 0},
				{Field: "reminders_sent", Operator: OpLt, Value: 3},
			},
			CooldownMinutes: 1440, // one reminder per day
			Active:          true,
			Priority:        70,
		},
		{
			Name:         "Inactive User Win-Back",
			CampaignType: campaign.TypeWinBack,
			EventType:    EventUserInactive,
			Conditions: []Condition{
				{Field: "days_inactive", Operator: OpGte, Value: 30},
			},
			CooldownMinutes: 20160, // two weeks
			Active:          true,
			Priority:        40,
		},
		{
			Name:            "Seasonal Product Alert",
			CampaignType:    campaign.TypeSeasonalAlert,
			EventType:       EventSeasonal,
			CooldownMinutes: 0, // global trigger, no user cooldown applies
			Active:          true,
			Priority:        30,
		},
		{
			Name:         "Low Stock Urgency",
			CampaignType: campaign.TypeLowStockAlert,
			EventType:    EventLowStock,
			Conditions: []Condition{
				{Field: "product_count", Operator: OpGt, Value: 0},
			},
			CooldownMinutes: 0,
			Active:          true,
			Priority:        20,
		},
	}
}

// SeedDefaultRules registers the default rule set if the registry is empty.
func SeedDefaultRules(r *Registry) {
	if len(r.Rules(false)) > 0 {
		return
	}
	rules := DefaultRules()
	log.Printf("[TriggerRegistry] seeding %d default rules", len(rules))
	for _, rule := range rules {
		if _, err := r.AddRule(rule); err != nil {
			log.Printf("[TriggerRegistry] failed to seed rule %q: %v", rule.Name, err)
		}
	}
}
