package analytics

import (
	"sort"
	"time"

	"github.com/ignite/campaign-engine/internal/campaign"
)

// DayStat is the per-calendar-day aggregation within a report range.
type DayStat struct {
	Date      string  `json:"date"` // YYYY-MM-DD
	Sent      int     `json:"sent"`
	Opened    int     `json:"opened"`
	Clicked   int     `json:"clicked"`
	Converted int     `json:"converted"`
	Revenue   float64 `json:"revenue"`
}

// TypeStat is the per-campaign-type aggregation within a report range.
type TypeStat struct {
	Campaigns         int     `json:"campaigns"`
	Sent              int     `json:"sent"`
	Opened            int     `json:"opened"`
	Clicked           int     `json:"clicked"`
	Converted         int     `json:"converted"`
	Revenue           float64 `json:"revenue"`
	ConversionRateSum float64 `json:"conversion_rate_sum"`
}

// Insights are the derived highlights of a report.
type Insights struct {
	BestCampaignType      campaign.Type `json:"best_campaign_type,omitempty"`
	WorstCampaignType     campaign.Type `json:"worst_campaign_type,omitempty"`
	AverageOpenRate       float64       `json:"average_open_rate"`
	AverageClickRate      float64       `json:"average_click_rate"`
	AverageConversionRate float64       `json:"average_conversion_rate"`
	TotalRevenue          float64       `json:"total_revenue"`
	TotalCost             float64       `json:"total_cost"`
	TotalROIPercentage    float64       `json:"total_roi_percentage"`
	Recommendations       []string      `json:"recommendations"`
}

// Report is the aggregate view over an inclusive date range.
type Report struct {
	Start     time.Time                  `json:"start"`
	End       time.Time                  `json:"end"`
	Campaigns int                        `json:"campaigns"`
	Daily     []DayStat                  `json:"daily"`
	ByType    map[campaign.Type]TypeStat `json:"by_type"`
	Insights  Insights                   `json:"insights"`
}

// Recommendation thresholds. The list is fixed and rule-based; there is no
// model behind it.
const (
	lowOpenRatePct       = 20.0
	lowClickRatePct      = 2.5
	lowConversionRatePct = 5.0
	scaleUpROIPct        = 500.0
	underwaterROIPct     = 100.0
)

// GenerateReport aggregates all tracked campaigns whose sent date falls in
// the inclusive [start, end] day range. An empty range yields a well-formed
// zeroed report.
func (a *Aggregator) GenerateReport(start, end time.Time) *Report {
	// Snapshot the matching records under the read lock; metric updates
	// mutate the stored values concurrently.
	a.mu.RLock()
	var perfs []Performance
	rangeStart := startOfDay(start)
	rangeEnd := startOfDay(end).Add(24 * time.Hour)
	for _, p := range a.performances {
		if !p.SentDate.Before(rangeStart) && p.SentDate.Before(rangeEnd) {
			perfs = append(perfs, *p)
		}
	}
	a.mu.RUnlock()

	report := &Report{
		Start:     start,
		End:       end,
		Campaigns: len(perfs),
		Daily:     []DayStat{},
		ByType:    make(map[campaign.Type]TypeStat),
		Insights:  Insights{Recommendations: []string{}},
	}
	if len(perfs) == 0 {
		return report
	}

	daily := make(map[string]*DayStat)
	var openSum, clickSum, convSum float64
	var totalRevenue, totalCost float64

	for _, p := range perfs {
		day := p.SentDate.Format("2006-01-02")
		ds, ok := daily[day]
		if !ok {
			ds = &DayStat{Date: day}
			daily[day] = ds
		}
		ds.Sent += p.Metrics.Sent
		ds.Opened += p.Metrics.Opened
		ds.Clicked += p.Metrics.Clicked
		ds.Converted += p.Metrics.Converted
		ds.Revenue += p.Metrics.Revenue

		ts := report.ByType[p.CampaignType]
		ts.Campaigns++
		ts.Sent += p.Metrics.Sent
		ts.Opened += p.Metrics.Opened
		ts.Clicked += p.Metrics.Clicked
		ts.Converted += p.Metrics.Converted
		ts.Revenue += p.Metrics.Revenue
		ts.ConversionRateSum = round2(ts.ConversionRateSum + p.Rates.ConversionRate)
		report.ByType[p.CampaignType] = ts

		openSum += p.Rates.OpenRate
		clickSum += p.Rates.ClickRate
		convSum += p.Rates.ConversionRate
		totalRevenue += p.Metrics.Revenue
		totalCost += p.ROI.Cost
	}

	for _, ds := range daily {
		report.Daily = append(report.Daily, *ds)
	}
	sort.Slice(report.Daily, func(i, j int) bool {
		return report.Daily[i].Date < report.Daily[j].Date
	})

	n := float64(len(perfs))
	ins := &report.Insights
	ins.AverageOpenRate = round2(openSum / n)
	ins.AverageClickRate = round2(clickSum / n)
	ins.AverageConversionRate = round2(convSum / n)
	ins.TotalRevenue = totalRevenue
	ins.TotalCost = totalCost
	if totalCost > 0 {
		ins.TotalROIPercentage = round2((totalRevenue - totalCost) / totalCost * 100)
	}
	ins.BestCampaignType, ins.WorstCampaignType = bestWorstTypes(report.ByType)
	ins.Recommendations = recommendations(ins)
	return report
}

// bestWorstTypes picks the campaign types with the highest and lowest
// summed conversion rate. Ties resolve to the lexically first type so the
// result is deterministic.
func bestWorstTypes(byType map[campaign.Type]TypeStat) (best, worst campaign.Type) {
	types := make([]campaign.Type, 0, len(byType))
	for t := range byType {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	for _, t := range types {
		sum := byType[t].ConversionRateSum
		if best == "" || sum > byType[best].ConversionRateSum {
			best = t
		}
		if worst == "" || sum < byType[worst].ConversionRateSum {
			worst = t
		}
	}
	return best, worst
}

func recommendations(ins *Insights) []string {
	recs := []string{}
	if ins.AverageOpenRate < lowOpenRatePct {
		recs = append(recs, "Open rates are below 20%. Test new subject lines and review sender reputation.")
	}
	if ins.AverageClickRate < lowClickRatePct {
		recs = append(recs, "Click rates are low. Tighten the call to action and reduce message length.")
	}
	if ins.AverageConversionRate < lowConversionRatePct {
		recs = append(recs, "Conversions are lagging clicks. Review offers and landing page continuity.")
	}
	if ins.TotalROIPercentage > scaleUpROIPct {
		recs = append(recs, "ROI is above 500%. Consider scaling campaign volume and audience reach.")
	}
	if ins.TotalCost > 0 && ins.TotalROIPercentage < underwaterROIPct {
		recs = append(recs, "ROI is under 100%. Revisit targeting and trim underperforming campaign types.")
	}
	return recs
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
