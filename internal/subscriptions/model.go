package subscriptions

import "time"

// Status is the subscription lifecycle state.
type Status string

const (
	StatusActive    Status = "active"
	StatusCancelled Status = "cancelled"
	StatusPaused    Status = "paused"
	StatusExpired   Status = "expired"
)

// Valid reports whether s is a known lifecycle state.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusCancelled, StatusPaused, StatusExpired:
		return true
	}
	return false
}

// BillingPeriod is the fixed subscription cycle. The original product billed
// on a rolling 30-day period rather than calendar months; changing this is a
// product decision, not a cleanup.
const BillingPeriod = 30 * 24 * time.Hour

// Subscription tracks a patient's current plan and per-cycle visit usage.
// Plan name and price are snapshotted so catalog edits never rewrite an
// existing subscription. The usage counter resets only on plan change.
type Subscription struct {
	ID                string     `json:"id"`
	PatientID         string     `json:"patient_id"`
	PlanID            string     `json:"plan_id"`
	PlanName          string     `json:"plan_name"`
	MonthlyPriceCents int64      `json:"monthly_price_cents"`
	Status            Status     `json:"status"`
	StartDate         time.Time  `json:"start_date"`
	NextBillingDate   time.Time  `json:"next_billing_date"`
	EndDate           *time.Time `json:"end_date,omitempty"`
	VisitsThisCycle   int        `json:"visits_this_cycle"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// Usage reports per-cycle visit consumption against the plan allowance.
type Usage struct {
	VisitsThisCycle int  `json:"visits_this_cycle"`
	VisitLimit      *int `json:"visit_limit,omitempty"`
	Unlimited       bool `json:"unlimited"`
	RemainingVisits *int `json:"remaining_visits,omitempty"`
}
