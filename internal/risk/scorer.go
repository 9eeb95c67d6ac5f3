package risk

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ignite/campaign-engine/internal/campaign"
	"github.com/ignite/campaign-engine/internal/store"
)

// Churn score weights. The score is an additive heuristic: each factor
// contributes its weight when its gate is true, and the sum is clamped to 1.
const (
	weightOverdue        = 0.30
	weightDecliningValue = 0.25
	weightNoOrders30d    = 0.25
	weightNoOrders60d    = 0.20
)

// minOrdersForScoring excludes users too new to score meaningfully.
const minOrdersForScoring = 2

// DataSource is the slice of the persistence contract the scorer reads.
// *store.Store satisfies it.
type DataSource interface {
	ActiveUsersWithOrders(ctx context.Context) ([]store.UserOrders, error)
	CartItemsUpdatedBefore(ctx context.Context, cutoff time.Time) ([]store.CartItem, error)
	ProductsBySeason(ctx context.Context, season string) ([]store.Product, error)
	LowStockProducts(ctx context.Context, threshold int) ([]store.Product, error)
}

// ChurnRiskUser is one user flagged by the churn scan. Computed fresh on
// every scan and not persisted.
type ChurnRiskUser struct {
	UserID             string   `json:"user_id"`
	Email              string   `json:"email"`
	ChurnProbability   float64  `json:"churn_probability"`
	DaysSinceLastOrder int      `json:"days_since_last_order"`
	TotalOrders        int      `json:"total_orders"`
	AverageOrderValue  float64  `json:"average_order_value"`
	RiskFactors        []string `json:"risk_factors"`

	// DaysInactive is set by the inactivity scan only.
	DaysInactive int `json:"days_inactive,omitempty"`
}

// AbandonedCart is one user's cart left untouched past the threshold.
type AbandonedCart struct {
	UserID        string           `json:"user_id"`
	Items         []store.CartItem `json:"items"`
	TotalValue    float64          `json:"total_value"`
	AbandonedAt   time.Time        `json:"abandoned_at"`
	RemindersSent int              `json:"reminders_sent"`
}

// ReminderSource reports how many campaigns of a type have already gone to a
// user. The trigger engine satisfies it.
type ReminderSource interface {
	UserSendCount(campaignType campaign.Type, userID string) int
}

// Scorer computes churn probabilities, abandoned carts and inactivity sets
// from order and cart history. Purely deterministic: no learned model, no
// randomness.
type Scorer struct {
	src       DataSource
	reminders ReminderSource
	now       func() time.Time
}

// NewScorer creates a scorer over the given data source.
func NewScorer(src DataSource) *Scorer {
	return &Scorer{src: src, now: time.Now}
}

// SetReminderSource attaches the per-user send counter that feeds
// AbandonedCart.RemindersSent. Without one the count stays zero.
func (s *Scorer) SetReminderSource(rs ReminderSource) {
	s.reminders = rs
}

// IdentifyChurnRiskUsers scans all active verified users and returns those
// whose churn probability meets the threshold, highest first. A store error
// aborts the whole scan; no partial result is returned.
func (s *Scorer) IdentifyChurnRiskUsers(ctx context.Context, threshold float64) ([]ChurnRiskUser, error) {
	users, err := s.src.ActiveUsersWithOrders(ctx)
	if err != nil {
		return nil, fmt.Errorf("churn scan: %w", err)
	}

	now := s.now()
	var flagged []ChurnRiskUser
	for _, u := range users {
		if len(u.Orders) < minOrdersForScoring {
			continue
		}
		cu := scoreUser(u, now)
		if cu.ChurnProbability >= threshold {
			flagged = append(flagged, cu)
		}
	}

	sort.SliceStable(flagged, func(i, j int) bool {
		return flagged[i].ChurnProbability > flagged[j].ChurnProbability
	})
	return flagged, nil
}

// scoreUser computes the additive churn score for one user. Orders are
// newest first, as the store returns them.
func scoreUser(u store.UserOrders, now time.Time) ChurnRiskUser {
	daysSince := now.Sub(u.Orders[0].PlacedAt).Hours() / 24

	var gapSum float64
	for i := 0; i < len(u.Orders)-1; i++ {
		gapSum += u.Orders[i].PlacedAt.Sub(u.Orders[i+1].PlacedAt).Hours() / 24
	}
	avgFrequency := gapSum / float64(len(u.Orders)-1)

	var totalValue float64
	for _, o := range u.Orders {
		totalValue += o.Total
	}
	avgValue := totalValue / float64(len(u.Orders))

	var score float64
	var factors []string

	if avgFrequency > 0 && daysSince > 2*avgFrequency {
		score += weightOverdue
		factors = append(factors, "order overdue")
	}
	if len(u.Orders) >= 6 {
		recent := meanTotal(u.Orders[0:3])
		prior := meanTotal(u.Orders[3:6])
		if prior > 0 && recent < 0.7*prior {
			score += weightDecliningValue
			factors = append(factors, "declining order value")
		}
	}
	if daysSince > 30 {
		score += weightNoOrders30d
		factors = append(factors, "no orders in 30 days")
	}
	if daysSince > 60 {
		score += weightNoOrders60d
		factors = append(factors, "no orders in 60 days")
	}

	if score > 1.0 {
		score = 1.0
	}

	return ChurnRiskUser{
		UserID:             u.UserID,
		Email:              u.Email,
		ChurnProbability:   score,
		DaysSinceLastOrder: int(daysSince),
		TotalOrders:        len(u.Orders),
		AverageOrderValue:  avgValue,
		RiskFactors:        factors,
	}
}

func meanTotal(orders []store.Order) float64 {
	var sum float64
	for _, o := range orders {
		sum += o.Total
	}
	return sum / float64(len(orders))
}

// IdentifyAbandonedCarts groups cart items untouched for at least
// hoursThreshold hours by user. AbandonedAt is the earliest item's update
// time; total value is Σ(price × quantity).
func (s *Scorer) IdentifyAbandonedCarts(ctx context.Context, hoursThreshold int) ([]AbandonedCart, error) {
	cutoff := s.now().Add(-time.Duration(hoursThreshold) * time.Hour)
	items, err := s.src.CartItemsUpdatedBefore(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("abandoned cart scan: %w", err)
	}

	byUser := make(map[string]*AbandonedCart)
	var order []string
	for _, it := range items {
		cart, ok := byUser[it.UserID]
		if !ok {
			cart = &AbandonedCart{UserID: it.UserID, AbandonedAt: it.UpdatedAt}
			byUser[it.UserID] = cart
			order = append(order, it.UserID)
		}
		cart.Items = append(cart.Items, it)
		cart.TotalValue += it.Price * float64(it.Quantity)
		if it.UpdatedAt.Before(cart.AbandonedAt) {
			cart.AbandonedAt = it.UpdatedAt
		}
	}

	carts := make([]AbandonedCart, 0, len(order))
	for _, uid := range order {
		cart := byUser[uid]
		if s.reminders != nil {
			cart.RemindersSent = s.reminders.UserSendCount(campaign.TypeCartRecovery, uid)
		}
		carts = append(carts, *cart)
	}
	return carts, nil
}

// IdentifyInactiveUsers returns active users whose last login predates the
// cutoff, with order context attached where it exists.
func (s *Scorer) IdentifyInactiveUsers(ctx context.Context, inactiveDays int) ([]ChurnRiskUser, error) {
	users, err := s.src.ActiveUsersWithOrders(ctx)
	if err != nil {
		return nil, fmt.Errorf("inactivity scan: %w", err)
	}

	now := s.now()
	cutoff := now.Add(-time.Duration(inactiveDays) * 24 * time.Hour)

	var inactive []ChurnRiskUser
	for _, u := range users {
		if !u.LastLoginAt.Valid || !u.LastLoginAt.Time.Before(cutoff) {
			continue
		}
		daysInactive := int(now.Sub(u.LastLoginAt.Time).Hours() / 24)
		cu := ChurnRiskUser{
			UserID:       u.UserID,
			Email:        u.Email,
			TotalOrders:  len(u.Orders),
			RiskFactors:  []string{fmt.Sprintf("no login in %d days", daysInactive)},
			DaysInactive: daysInactive,
		}
		if len(u.Orders) > 0 {
			cu.DaysSinceLastOrder = int(now.Sub(u.Orders[0].PlacedAt).Hours() / 24)
			var total float64
			for _, o := range u.Orders {
				total += o.Total
			}
			cu.AverageOrderValue = total / float64(len(u.Orders))
		}
		inactive = append(inactive, cu)
	}

	sort.SliceStable(inactive, func(i, j int) bool {
		return inactive[i].DaysSinceLastOrder > inactive[j].DaysSinceLastOrder
	})
	return inactive, nil
}
