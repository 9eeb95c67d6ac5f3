package analytics

import (
	"fmt"
	"math"
)

// winnerThresholdPts is the conversion-rate gap, in percentage points, a
// campaign must exceed to be declared the winner.
const winnerThresholdPts = 5.0

// maxConfidence caps the comparison confidence heuristic.
const maxConfidence = 95.0

// TieWinner marks a comparison without a decisive winner.
const TieWinner = "TIE"

// Comparison is the outcome of an A/B comparison between two campaigns.
type Comparison struct {
	CampaignA       string  `json:"campaign_a"`
	CampaignB       string  `json:"campaign_b"`
	ConversionRateA float64 `json:"conversion_rate_a"`
	ConversionRateB float64 `json:"conversion_rate_b"`
	// Winner is the winning campaign ID, or "TIE".
	Winner     string  `json:"winner"`
	Confidence float64 `json:"confidence"`
}

// CompareCampaigns compares two tracked campaigns by conversion rate. The
// winner must lead by more than 5 percentage points; anything closer is a
// tie. Confidence is a bounded heuristic from the relative difference in
// converted counts, capped at 95.
func (a *Aggregator) CompareCampaigns(idA, idB string) (*Comparison, error) {
	pa, ok := a.Get(idA)
	if !ok {
		return nil, fmt.Errorf("campaign %s not tracked", idA)
	}
	pb, ok := a.Get(idB)
	if !ok {
		return nil, fmt.Errorf("campaign %s not tracked", idB)
	}

	cmp := &Comparison{
		CampaignA:       idA,
		CampaignB:       idB,
		ConversionRateA: pa.Rates.ConversionRate,
		ConversionRateB: pb.Rates.ConversionRate,
		Winner:          TieWinner,
	}

	switch {
	case cmp.ConversionRateA-cmp.ConversionRateB > winnerThresholdPts:
		cmp.Winner = idA
	case cmp.ConversionRateB-cmp.ConversionRateA > winnerThresholdPts:
		cmp.Winner = idB
	}

	cmp.Confidence = compareConfidence(pa.Metrics.Converted, pb.Metrics.Converted)
	return cmp, nil
}

func compareConfidence(convA, convB int) float64 {
	larger := math.Max(float64(convA), float64(convB))
	if larger == 0 {
		return 0
	}
	rel := math.Abs(float64(convA)-float64(convB)) / larger
	return round2(math.Min(maxConfidence, rel*100))
}
