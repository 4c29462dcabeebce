package subscriptions

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/medrx/telehealth-platform/internal/catalog"
	"github.com/medrx/telehealth-platform/internal/patients"
	"github.com/medrx/telehealth-platform/pkg/logging"
)

// Ledger owns subscription lifecycle and visit-limit policy. Plan pricing
// and visit limits always come from the catalog; the repository enforces
// the atomicity of the check-and-increment.
type Ledger struct {
	repo     Repository
	catalog  *catalog.Catalog
	patients patients.Repository
	logger   *logging.Logger
}

// NewLedger creates a subscription ledger.
func NewLedger(repo Repository, cat *catalog.Catalog, patientsRepo patients.Repository, logger *logging.Logger) *Ledger {
	if logger == nil {
		logger = logging.Default()
	}
	return &Ledger{
		repo:     repo,
		catalog:  cat,
		patients: patientsRepo,
		logger:   logger,
	}
}

// Create starts an active subscription on the given plan. Billing runs on a
// fixed 30-day cycle from the start date.
func (l *Ledger) Create(ctx context.Context, patientID, planID string) (*Subscription, error) {
	plan, ok := l.catalog.Lookup(planID)
	if !ok || plan.Kind != catalog.KindSubscriptionPlan {
		return nil, ErrInvalidPlan
	}

	now := time.Now().UTC()
	sub := &Subscription{
		ID:                uuid.New().String(),
		PatientID:         patientID,
		PlanID:            plan.ID,
		PlanName:          plan.Title,
		MonthlyPriceCents: plan.PriceCents,
		Status:            StatusActive,
		StartDate:         now,
		NextBillingDate:   now.Add(BillingPeriod),
		VisitsThisCycle:   0,
	}
	if err := l.repo.Create(ctx, sub); err != nil {
		return nil, err
	}

	if l.patients != nil {
		if err := l.patients.SetSubscriptionID(ctx, patientID, sub.ID); err != nil {
			l.logger.Warn("failed to link subscription to patient",
				"error", err, "patient_id", patientID, "subscription_id", sub.ID)
		}
	}

	l.logger.Info("subscription created",
		"subscription_id", sub.ID, "patient_id", patientID, "plan_id", plan.ID)
	return sub, nil
}

// GetActive returns the patient's active subscription.
func (l *Ledger) GetActive(ctx context.Context, patientID string) (*Subscription, error) {
	return l.repo.GetActiveByPatient(ctx, patientID)
}

// Get returns a subscription by id.
func (l *Ledger) Get(ctx context.Context, id string) (*Subscription, error) {
	return l.repo.GetByID(ctx, id)
}

// ReserveVisit consumes one visit from the current cycle's allowance.
func (l *Ledger) ReserveVisit(ctx context.Context, subscriptionID string) error {
	sub, err := l.repo.GetByID(ctx, subscriptionID)
	if err != nil {
		return err
	}
	return l.repo.ReserveVisit(ctx, subscriptionID, l.visitLimit(sub.PlanID))
}

// ReleaseVisit returns a reserved visit after a failed booking commit.
func (l *Ledger) ReleaseVisit(ctx context.Context, subscriptionID string) error {
	return l.repo.ReleaseVisit(ctx, subscriptionID)
}

// ChangePlan switches the subscription to a new plan and resets the cycle
// counter, granting a fresh allowance immediately.
func (l *Ledger) ChangePlan(ctx context.Context, subscriptionID, newPlanID string) (*Subscription, error) {
	plan, ok := l.catalog.Lookup(newPlanID)
	if !ok || plan.Kind != catalog.KindSubscriptionPlan {
		return nil, ErrInvalidPlan
	}
	sub, err := l.repo.ChangePlan(ctx, subscriptionID, plan.ID, plan.Title, plan.PriceCents)
	if err != nil {
		return nil, err
	}
	l.logger.Info("subscription plan changed",
		"subscription_id", subscriptionID, "plan_id", plan.ID)
	return sub, nil
}

// Cancel ends the subscription, keeping its history.
func (l *Ledger) Cancel(ctx context.Context, subscriptionID string) (*Subscription, error) {
	sub, err := l.repo.UpdateStatus(ctx, subscriptionID, StatusCancelled)
	if err != nil {
		return nil, err
	}
	if l.patients != nil {
		if err := l.patients.SetSubscriptionID(ctx, sub.PatientID, ""); err != nil {
			l.logger.Warn("failed to unlink cancelled subscription",
				"error", err, "patient_id", sub.PatientID)
		}
	}
	l.logger.Info("subscription cancelled", "subscription_id", subscriptionID)
	return sub, nil
}

// SetStatus applies a non-cancellation lifecycle transition (pause, expire).
func (l *Ledger) SetStatus(ctx context.Context, subscriptionID string, status Status) (*Subscription, error) {
	if status == StatusCancelled {
		return l.Cancel(ctx, subscriptionID)
	}
	return l.repo.UpdateStatus(ctx, subscriptionID, status)
}

// Usage reports visit consumption for the current cycle.
func (l *Ledger) Usage(ctx context.Context, subscriptionID string) (*Usage, error) {
	sub, err := l.repo.GetByID(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}

	vl := l.visitLimit(sub.PlanID)
	usage := &Usage{
		VisitsThisCycle: sub.VisitsThisCycle,
		VisitLimit:      vl,
		Unlimited:       vl == nil,
	}
	if vl != nil {
		remaining := *vl - sub.VisitsThisCycle
		if remaining < 0 {
			remaining = 0
		}
		usage.RemainingVisits = &remaining
	}
	return usage, nil
}

// VisitLimitFor exposes the plan ceiling for callers that need to pass it
// to an atomic store primitive.
func (l *Ledger) VisitLimitFor(planID string) *int {
	return l.visitLimit(planID)
}

func (l *Ledger) visitLimit(planID string) *int {
	plan, ok := l.catalog.Lookup(planID)
	if !ok {
		return nil
	}
	return plan.VisitLimit
}
