package campaign

import (
	"time"

	"github.com/google/uuid"
)

// Type identifies a marketing campaign family. Each trigger rule and each
// schedule maps to exactly one campaign type; the execution collaborator
// decides templates and transport from it.
type Type string

const (
	TypeChurnPrevention Type = "churn_prevention"
	TypeWinBack         Type = "win_back"
	TypeCartRecovery    Type = "cart_recovery"
	TypeSeasonalAlert   Type = "seasonal_alert"
	TypeCrossSell       Type = "cross_sell"
	TypeLowStockAlert   Type = "low_stock_alert"
)

// ExecutionStatus is the delivery status reported by the executor.
type ExecutionStatus string

const (
	ExecutionSent    ExecutionStatus = "sent"
	ExecutionPartial ExecutionStatus = "partial"
	ExecutionFailed  ExecutionStatus = "failed"
)

// Recipient is a single message target handed to the executor.
type Recipient struct {
	UserID string `json:"user_id,omitempty"`
	Email  string `json:"email"`
}

// Metrics holds the raw engagement counters for one campaign execution.
// Counters only ever grow in practice; the aggregator does not enforce that.
type Metrics struct {
	Sent         int     `json:"sent"`
	Delivered    int     `json:"delivered"`
	Opened       int     `json:"opened"`
	Clicked      int     `json:"clicked"`
	Converted    int     `json:"converted"`
	Bounced      int     `json:"bounced"`
	Unsubscribed int     `json:"unsubscribed"`
	Revenue      float64 `json:"revenue"`
}

// Execution records one fire of a campaign: who it went to and how the
// executor reported it. Identity is immutable; Metrics is updated later as
// engagement data arrives.
type Execution struct {
	ID           uuid.UUID       `json:"id"`
	CampaignType Type            `json:"campaign_type"`
	Recipients   []Recipient     `json:"recipients"`
	SentAt       time.Time       `json:"sent_at"`
	Status       ExecutionStatus `json:"status"`
	Metrics      Metrics         `json:"metrics"`
}
