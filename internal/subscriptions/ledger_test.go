package subscriptions

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/medrx/telehealth-platform/internal/catalog"
	"github.com/medrx/telehealth-platform/internal/patients"
)

func testLedger(t *testing.T) (*Ledger, *patients.InMemoryRepository) {
	t.Helper()
	patientsRepo := patients.NewInMemoryRepository()
	return NewLedger(NewInMemoryRepository(), catalog.Default(), patientsRepo, nil), patientsRepo
}

func createTestPatient(t *testing.T, repo *patients.InMemoryRepository) *patients.Patient {
	t.Helper()
	p, err := repo.Resolve(context.Background(), "jane@example.com", patients.Profile{Name: "Jane"})
	if err != nil {
		t.Fatalf("resolve patient: %v", err)
	}
	return p
}

func TestCreateSubscription(t *testing.T) {
	ledger, patientsRepo := testLedger(t)
	patient := createTestPatient(t, patientsRepo)

	sub, err := ledger.Create(context.Background(), patient.ID, "sub-basic")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if sub.Status != StatusActive {
		t.Errorf("expected active, got %s", sub.Status)
	}
	if sub.VisitsThisCycle != 0 {
		t.Errorf("expected zero counter, got %d", sub.VisitsThisCycle)
	}
	if sub.MonthlyPriceCents != 3500 {
		t.Errorf("expected plan price 3500, got %d", sub.MonthlyPriceCents)
	}
	if got := sub.NextBillingDate.Sub(sub.StartDate); got != BillingPeriod {
		t.Errorf("expected fixed 30-day billing period, got %s", got)
	}

	// Patient record now references the subscription.
	p, _ := patientsRepo.GetByID(context.Background(), patient.ID)
	if p.SubscriptionID != sub.ID {
		t.Errorf("patient not linked to subscription: %q", p.SubscriptionID)
	}
}

func TestCreateRejectsSecondActive(t *testing.T) {
	ledger, patientsRepo := testLedger(t)
	patient := createTestPatient(t, patientsRepo)
	ctx := context.Background()

	if _, err := ledger.Create(ctx, patient.ID, "sub-basic"); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if _, err := ledger.Create(ctx, patient.ID, "sub-standard"); !errors.Is(err, ErrAlreadySubscribed) {
		t.Fatalf("expected ErrAlreadySubscribed, got %v", err)
	}
}

func TestCreateRejectsOneOffService(t *testing.T) {
	ledger, patientsRepo := testLedger(t)
	patient := createTestPatient(t, patientsRepo)

	if _, err := ledger.Create(context.Background(), patient.ID, "hair-loss"); !errors.Is(err, ErrInvalidPlan) {
		t.Fatalf("expected ErrInvalidPlan for one-off service, got %v", err)
	}
}

// Spec scenario: limit-2 plan admits exactly two visits, plan change grants
// a fresh allowance.
func TestVisitLimitAndPlanChangeReset(t *testing.T) {
	ledger, patientsRepo := testLedger(t)
	patient := createTestPatient(t, patientsRepo)
	ctx := context.Background()

	sub, err := ledger.Create(ctx, patient.ID, "sub-basic")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := ledger.ReserveVisit(ctx, sub.ID); err != nil {
			t.Fatalf("reserve %d: %v", i+1, err)
		}
	}
	if err := ledger.ReserveVisit(ctx, sub.ID); !errors.Is(err, ErrLimitExceeded) {
		t.Fatalf("expected ErrLimitExceeded on third reserve, got %v", err)
	}

	usage, err := ledger.Usage(ctx, sub.ID)
	if err != nil {
		t.Fatalf("usage: %v", err)
	}
	if usage.VisitsThisCycle != 2 || usage.RemainingVisits == nil || *usage.RemainingVisits != 0 {
		t.Errorf("unexpected usage: %+v", usage)
	}

	changed, err := ledger.ChangePlan(ctx, sub.ID, "sub-standard")
	if err != nil {
		t.Fatalf("change plan: %v", err)
	}
	if changed.VisitsThisCycle != 0 {
		t.Errorf("plan change must reset counter, got %d", changed.VisitsThisCycle)
	}
	if err := ledger.ReserveVisit(ctx, sub.ID); err != nil {
		t.Fatalf("reserve after plan change: %v", err)
	}
}

func TestUnlimitedPlanNeverExhausts(t *testing.T) {
	ledger, patientsRepo := testLedger(t)
	patient := createTestPatient(t, patientsRepo)
	ctx := context.Background()

	sub, _ := ledger.Create(ctx, patient.ID, "sub-standard")
	for i := 0; i < 25; i++ {
		if err := ledger.ReserveVisit(ctx, sub.ID); err != nil {
			t.Fatalf("reserve %d on unlimited plan: %v", i+1, err)
		}
	}

	usage, _ := ledger.Usage(ctx, sub.ID)
	if !usage.Unlimited || usage.RemainingVisits != nil {
		t.Errorf("expected unlimited usage report, got %+v", usage)
	}
}

// The check-and-increment must hold under concurrency: with limit L, out of
// N concurrent reservations exactly L succeed.
func TestReserveVisitConcurrent(t *testing.T) {
	ledger, patientsRepo := testLedger(t)
	patient := createTestPatient(t, patientsRepo)
	ctx := context.Background()

	sub, _ := ledger.Create(ctx, patient.ID, "sub-basic")

	const attempts = 16
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- ledger.ReserveVisit(ctx, sub.ID)
		}()
	}
	wg.Wait()
	close(results)

	var ok, exhausted int
	for err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrLimitExceeded):
			exhausted++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 2 || exhausted != attempts-2 {
		t.Fatalf("expected exactly 2 successes, got %d (exhausted %d)", ok, exhausted)
	}
}

func TestReleaseVisitCompensates(t *testing.T) {
	ledger, patientsRepo := testLedger(t)
	patient := createTestPatient(t, patientsRepo)
	ctx := context.Background()

	sub, _ := ledger.Create(ctx, patient.ID, "sub-basic")
	if err := ledger.ReserveVisit(ctx, sub.ID); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := ledger.ReleaseVisit(ctx, sub.ID); err != nil {
		t.Fatalf("release: %v", err)
	}

	usage, _ := ledger.Usage(ctx, sub.ID)
	if usage.VisitsThisCycle != 0 {
		t.Errorf("expected counter back at 0, got %d", usage.VisitsThisCycle)
	}
}

func TestCancelKeepsHistory(t *testing.T) {
	ledger, patientsRepo := testLedger(t)
	patient := createTestPatient(t, patientsRepo)
	ctx := context.Background()

	sub, _ := ledger.Create(ctx, patient.ID, "sub-basic")
	cancelled, err := ledger.Cancel(ctx, sub.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != StatusCancelled || cancelled.EndDate == nil {
		t.Errorf("expected cancelled with end date, got %+v", cancelled)
	}

	// Record still readable after cancellation.
	if _, err := ledger.Get(ctx, sub.ID); err != nil {
		t.Errorf("cancelled subscription should remain readable: %v", err)
	}
	// And a new subscription may be created.
	if _, err := ledger.Create(ctx, patient.ID, "sub-standard"); err != nil {
		t.Errorf("expected new subscription after cancel, got %v", err)
	}
}

func TestReactivateRejectedWhileAnotherActive(t *testing.T) {
	ledger, patientsRepo := testLedger(t)
	patient := createTestPatient(t, patientsRepo)
	ctx := context.Background()

	first, err := ledger.Create(ctx, patient.ID, "sub-basic")
	if err != nil {
		t.Fatalf("first create: %v", err)
	}
	if _, err := ledger.Cancel(ctx, first.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	second, err := ledger.Create(ctx, patient.ID, "sub-standard")
	if err != nil {
		t.Fatalf("second create: %v", err)
	}

	// Bringing back the cancelled subscription would give the patient two
	// active plans.
	if _, err := ledger.SetStatus(ctx, first.ID, StatusActive); !errors.Is(err, ErrAlreadySubscribed) {
		t.Fatalf("expected ErrAlreadySubscribed, got %v", err)
	}

	active, err := ledger.GetActive(ctx, patient.ID)
	if err != nil {
		t.Fatalf("GetActive: %v", err)
	}
	if active.ID != second.ID {
		t.Errorf("active subscription = %s, want %s", active.ID, second.ID)
	}
}

func TestChangePlanReanchorsBillingDate(t *testing.T) {
	ledger, patientsRepo := testLedger(t)
	patient := createTestPatient(t, patientsRepo)
	ctx := context.Background()

	sub, err := ledger.Create(ctx, patient.ID, "sub-basic")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	changed, err := ledger.ChangePlan(ctx, sub.ID, "sub-standard")
	if err != nil {
		t.Fatalf("ChangePlan: %v", err)
	}
	if changed.NextBillingDate.Before(sub.NextBillingDate) {
		t.Errorf("billing date moved backwards: %s -> %s", sub.NextBillingDate, changed.NextBillingDate)
	}
	if got := changed.NextBillingDate.Sub(changed.UpdatedAt); got != BillingPeriod {
		t.Errorf("expected billing date re-anchored 30 days from the switch, got %s", got)
	}
}

func TestReserveVisitUnknownSubscription(t *testing.T) {
	ledger, _ := testLedger(t)
	if err := ledger.ReserveVisit(context.Background(), "missing"); !errors.Is(err, ErrSubscriptionNotFound) {
		t.Fatalf("expected ErrSubscriptionNotFound, got %v", err)
	}
}
