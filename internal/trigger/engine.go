package trigger

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ignite/campaign-engine/internal/campaign"
)

// RuleOutcome is the result of evaluating one rule against one event.
type RuleOutcome string

const (
	OutcomeCooldownSkipped  RuleOutcome = "cooldown_skipped"
	OutcomeConditionsFailed RuleOutcome = "conditions_failed"
	OutcomeExecuted         RuleOutcome = "executed"
	OutcomeExecutionFailed  RuleOutcome = "execution_failed"
)

// Stats is a snapshot of engine counters.
type Stats struct {
	EventsProcessed int64 `json:"events_processed"`
	RulesExecuted   int64 `json:"rules_executed"`
	CooldownSkips   int64 `json:"cooldown_skips"`
	ConditionSkips  int64 `json:"condition_skips"`
	ExecutionErrors int64 `json:"execution_errors"`
	QueueDepth      int   `json:"queue_depth"`
}

// Engine matches incoming events against the rule registry and fires
// campaign executions. Events are queued FIFO and drained by a single
// goroutine; concurrent ProcessEvent calls only enqueue. The drain guard is
// a mutex-protected flag, so two drains can never run at once.
type Engine struct {
	registry  *Registry
	executor  campaign.Executor
	cooldowns CooldownStore

	mu         sync.Mutex
	queue      []Event
	draining   bool
	sendCounts map[string]int
	wg         sync.WaitGroup

	eventsProcessed int64
	rulesExecuted   int64
	cooldownSkips   int64
	conditionSkips  int64
	executionErrors int64
}

// NewEngine creates a trigger engine. cooldowns may be nil, in which case an
// in-memory store is used.
func NewEngine(registry *Registry, executor campaign.Executor, cooldowns CooldownStore) *Engine {
	if cooldowns == nil {
		cooldowns = NewMemoryCooldowns()
	}
	return &Engine{
		registry:   registry,
		executor:   executor,
		cooldowns:  cooldowns,
		sendCounts: make(map[string]int),
	}
}

// UserSendCount reports how many campaigns of the given type this engine has
// fired at a user. The risk monitor reads it to cap repeat reminders.
func (en *Engine) UserSendCount(campaignType campaign.Type, userID string) int {
	en.mu.Lock()
	defer en.mu.Unlock()
	return en.sendCounts[sendCountKey(campaignType, userID)]
}

func sendCountKey(campaignType campaign.Type, userID string) string {
	return fmt.Sprintf("%s:%s", campaignType, userID)
}

// ProcessEvent enqueues an event and starts a drain if none is running.
// Safe to call from any goroutine; returns immediately.
func (en *Engine) ProcessEvent(e Event) {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now()
	}

	en.mu.Lock()
	en.queue = append(en.queue, e)
	start := !en.draining
	if start {
		en.draining = true
		en.wg.Add(1)
	}
	en.mu.Unlock()

	if start {
		go en.drain()
	}
}

// Wait blocks until the current drain, if any, has finished. Intended for
// shutdown and tests.
func (en *Engine) Wait() {
	en.wg.Wait()
}

// Stats returns a snapshot of the engine counters.
func (en *Engine) Stats() Stats {
	en.mu.Lock()
	depth := len(en.queue)
	en.mu.Unlock()
	return Stats{
		EventsProcessed: atomic.LoadInt64(&en.eventsProcessed),
		RulesExecuted:   atomic.LoadInt64(&en.rulesExecuted),
		CooldownSkips:   atomic.LoadInt64(&en.cooldownSkips),
		ConditionSkips:  atomic.LoadInt64(&en.conditionSkips),
		ExecutionErrors: atomic.LoadInt64(&en.executionErrors),
		QueueDepth:      depth,
	}
}

// drain processes queued events to completion, then clears the in-flight
// flag. The flag check and the pop happen under the same mutex, so an event
// enqueued while the last one is being handled is never stranded.
func (en *Engine) drain() {
	defer en.wg.Done()
	for {
		en.mu.Lock()
		if len(en.queue) == 0 {
			en.draining = false
			en.mu.Unlock()
			return
		}
		e := en.queue[0]
		en.queue = en.queue[1:]
		en.mu.Unlock()

		en.handleEvent(e)
		atomic.AddInt64(&en.eventsProcessed, 1)
	}
}

// handleEvent evaluates every matching rule independently, in descending
// priority order. One rule failing, whether on cooldown, conditions, or
// execution, never blocks the rules after it.
func (en *Engine) handleEvent(e Event) {
	ctx := context.Background()
	rules := en.registry.matching(e.Type)
	for _, rule := range rules {
		outcome := en.evaluateRule(ctx, rule, e)
		switch outcome {
		case OutcomeCooldownSkipped:
			atomic.AddInt64(&en.cooldownSkips, 1)
		case OutcomeConditionsFailed:
			atomic.AddInt64(&en.conditionSkips, 1)
		case OutcomeExecuted:
			atomic.AddInt64(&en.rulesExecuted, 1)
		case OutcomeExecutionFailed:
			atomic.AddInt64(&en.executionErrors, 1)
		}
	}
}

func (en *Engine) evaluateRule(ctx context.Context, rule Rule, e Event) RuleOutcome {
	cooldown := time.Duration(rule.CooldownMinutes) * time.Minute

	// Cooldowns are per (rule, user). Events without a user are global
	// triggers (seasonal alerts, low stock) and are always eligible.
	if e.UserID != "" && cooldown > 0 {
		key := cooldownKey(rule.ID.String(), e.UserID)
		eligible, err := en.cooldowns.Eligible(ctx, key, cooldown)
		if err != nil {
			log.Printf("[TriggerEngine] cooldown check failed for rule %s user %s: %v", rule.ID, e.UserID, err)
			return OutcomeExecutionFailed
		}
		if !eligible {
			return OutcomeCooldownSkipped
		}
	}

	if !matchesAll(rule.Conditions, e) {
		return OutcomeConditionsFailed
	}

	recipients := eventRecipients(e)
	if _, err := en.executor.Execute(ctx, rule.CampaignType, recipients, personalizations(e)); err != nil {
		log.Printf("[TriggerEngine] execution failed: rule=%s (%s) campaign=%s user=%s: %v",
			rule.Name, rule.ID, rule.CampaignType, e.UserID, err)
		return OutcomeExecutionFailed
	}

	if e.UserID != "" {
		en.mu.Lock()
		en.sendCounts[sendCountKey(rule.CampaignType, e.UserID)]++
		en.mu.Unlock()
	}
	if e.UserID != "" && cooldown > 0 {
		key := cooldownKey(rule.ID.String(), e.UserID)
		if err := en.cooldowns.Stamp(ctx, key, cooldown); err != nil {
			log.Printf("[TriggerEngine] cooldown stamp failed for rule %s user %s: %v", rule.ID, e.UserID, err)
		}
	}
	return OutcomeExecuted
}

func eventRecipients(e Event) []campaign.Recipient {
	if e.UserID == "" && e.Email == "" {
		return nil
	}
	return []campaign.Recipient{{UserID: e.UserID, Email: e.Email}}
}

// personalizations flattens the event into template variables for the
// executor, using the event schema to enumerate payload fields.
func personalizations(e Event) map[string]interface{} {
	p := map[string]interface{}{"event_type": string(e.Type)}
	if e.UserID != "" {
		p["user_id"] = e.UserID
	}
	if e.ProductID != "" {
		p["product_id"] = e.ProductID
	}
	if e.FarmID != "" {
		p["farm_id"] = e.FarmID
	}
	if e.Payload != nil {
		for _, field := range PayloadFields(e.Type) {
			if v, ok := e.Payload.Field(field); ok {
				p[field] = v
			}
		}
	}
	return p
}
