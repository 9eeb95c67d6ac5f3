package analytics

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/ignite/campaign-engine/internal/campaign"
)

// Rates are the derived engagement rates, each a percentage rounded to two
// decimals. A zero denominator yields a zero rate, never an error.
type Rates struct {
	DeliveryRate    float64 `json:"delivery_rate"`
	OpenRate        float64 `json:"open_rate"`
	ClickRate       float64 `json:"click_rate"`
	ConversionRate  float64 `json:"conversion_rate"`
	UnsubscribeRate float64 `json:"unsubscribe_rate"`
}

// ROI holds the cost/revenue outcome of a campaign.
type ROI struct {
	Cost          float64 `json:"cost"`
	Revenue       float64 `json:"revenue"`
	Profit        float64 `json:"profit"`
	ROIPercentage float64 `json:"roi_percentage"`
}

// Performance is the tracked record for one campaign execution.
type Performance struct {
	CampaignID   string           `json:"campaign_id"`
	CampaignType campaign.Type    `json:"campaign_type"`
	SentDate     time.Time        `json:"sent_date"`
	Metrics      campaign.Metrics `json:"metrics"`
	Rates        Rates            `json:"rates"`
	ROI          ROI              `json:"roi"`
}

// MetricsPatch is a partial metrics update. Nil fields are unchanged.
type MetricsPatch struct {
	Sent         *int     `json:"sent,omitempty"`
	Delivered    *int     `json:"delivered,omitempty"`
	Opened       *int     `json:"opened,omitempty"`
	Clicked      *int     `json:"clicked,omitempty"`
	Converted    *int     `json:"converted,omitempty"`
	Bounced      *int     `json:"bounced,omitempty"`
	Unsubscribed *int     `json:"unsubscribed,omitempty"`
	Revenue      *float64 `json:"revenue,omitempty"`
	Cost         *float64 `json:"cost,omitempty"`
}

// Aggregator records per-execution metrics and derives rates, ROI, reports
// and A/B comparisons. All state is in memory; deletion only happens via
// Remove or Clear.
type Aggregator struct {
	mu           sync.RWMutex
	performances map[string]*Performance
}

// NewAggregator creates an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{performances: make(map[string]*Performance)}
}

// TrackCampaign stores a performance record with derived rates and ROI.
// Tracking an existing ID overwrites it.
func (a *Aggregator) TrackCampaign(id string, campaignType campaign.Type, sentDate time.Time, metrics campaign.Metrics, cost float64) *Performance {
	perf := &Performance{
		CampaignID:   id,
		CampaignType: campaignType,
		SentDate:     sentDate,
		Metrics:      metrics,
	}
	perf.recompute(cost)

	a.mu.Lock()
	a.performances[id] = perf
	a.mu.Unlock()

	out := *perf
	return &out
}

// RecordExecution lets the aggregator act as the executor's sink.
func (a *Aggregator) RecordExecution(exec *campaign.Execution, cost float64) {
	a.TrackCampaign(exec.ID.String(), exec.CampaignType, exec.SentAt, exec.Metrics, cost)
}

// UpdateCampaignMetrics merges partial metrics into an existing record and
// recomputes rates and ROI.
func (a *Aggregator) UpdateCampaignMetrics(id string, patch MetricsPatch) (*Performance, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	perf, ok := a.performances[id]
	if !ok {
		return nil, fmt.Errorf("campaign %s not tracked", id)
	}

	if patch.Sent != nil {
		perf.Metrics.Sent = *patch.Sent
	}
	if patch.Delivered != nil {
		perf.Metrics.Delivered = *patch.Delivered
	}
	if patch.Opened != nil {
		perf.Metrics.Opened = *patch.Opened
	}
	if patch.Clicked != nil {
		perf.Metrics.Clicked = *patch.Clicked
	}
	if patch.Converted != nil {
		perf.Metrics.Converted = *patch.Converted
	}
	if patch.Bounced != nil {
		perf.Metrics.Bounced = *patch.Bounced
	}
	if patch.Unsubscribed != nil {
		perf.Metrics.Unsubscribed = *patch.Unsubscribed
	}
	if patch.Revenue != nil {
		perf.Metrics.Revenue = *patch.Revenue
	}

	cost := perf.ROI.Cost
	if patch.Cost != nil {
		cost = *patch.Cost
	}
	perf.recompute(cost)

	out := *perf
	return &out, nil
}

// Get returns one tracked performance.
func (a *Aggregator) Get(id string) (*Performance, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	perf, ok := a.performances[id]
	if !ok {
		return nil, false
	}
	out := *perf
	return &out, true
}

// Remove deletes one tracked performance.
func (a *Aggregator) Remove(id string) {
	a.mu.Lock()
	delete(a.performances, id)
	a.mu.Unlock()
}

// Clear drops all tracked performances.
func (a *Aggregator) Clear() {
	a.mu.Lock()
	a.performances = make(map[string]*Performance)
	a.mu.Unlock()
}

// recompute refreshes the derived rates and ROI from the raw counters.
func (p *Performance) recompute(cost float64) {
	m := p.Metrics
	p.Rates = Rates{
		DeliveryRate:    pct(m.Delivered, m.Sent),
		OpenRate:        pct(m.Opened, m.Delivered),
		ClickRate:       pct(m.Clicked, m.Opened),
		ConversionRate:  pct(m.Converted, m.Clicked),
		UnsubscribeRate: pct(m.Unsubscribed, m.Sent),
	}

	profit := m.Revenue - cost
	roiPct := 0.0
	if cost > 0 {
		roiPct = round2(profit / cost * 100)
	}
	p.ROI = ROI{Cost: cost, Revenue: m.Revenue, Profit: profit, ROIPercentage: roiPct}
}

// pct is numerator/denominator as a percentage rounded to two decimals,
// zero when the denominator is zero.
func pct(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return round2(float64(n) / float64(d) * 100)
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
