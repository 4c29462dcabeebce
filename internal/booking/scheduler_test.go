package booking

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/medrx/telehealth-platform/internal/catalog"
	"github.com/medrx/telehealth-platform/internal/patients"
	"github.com/medrx/telehealth-platform/internal/subscriptions"
)

type alertRecorder struct {
	mu     sync.Mutex
	alerts []Alert
	err    error
}

func (a *alertRecorder) SendBookingAlert(ctx context.Context, alert Alert) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.alerts = append(a.alerts, alert)
	return nil
}

func (a *alertRecorder) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.alerts)
}

type schedulerFixture struct {
	scheduler *Scheduler
	repo      *InMemoryRepository
	patients  *patients.InMemoryRepository
	ledger    *subscriptions.Ledger
	alerts    *alertRecorder
}

func newSchedulerFixture() *schedulerFixture {
	cat := catalog.Default()
	patientsRepo := patients.NewInMemoryRepository()
	subsRepo := subscriptions.NewInMemoryRepository()
	ledger := subscriptions.NewLedger(subsRepo, cat, patientsRepo, nil)
	repo := NewInMemoryRepository()
	alerts := &alertRecorder{}
	return &schedulerFixture{
		scheduler: NewScheduler(repo, cat, patientsRepo, ledger, alerts, nil, nil),
		repo:      repo,
		patients:  patientsRepo,
		ledger:    ledger,
		alerts:    alerts,
	}
}

func oneOffRequest() *BookRequest {
	return &BookRequest{
		Name:        "Maria Lopez",
		Email:       "maria@example.com",
		Phone:       "+15551230001",
		ServiceID:   "hair-loss",
		ServiceKind: KindOneOff,
		Date:        "2030-01-15",
		Time:        "10:00 AM",
		Timezone:    "America/Los_Angeles",
	}
}

func TestBookOneOffPendingPayment(t *testing.T) {
	f := newSchedulerFixture()
	ctx := context.Background()

	result, err := f.scheduler.Book(ctx, oneOffRequest())
	if err != nil {
		t.Fatalf("Book: %v", err)
	}
	if !result.RequiresPayment {
		t.Error("one-off booking should require payment")
	}
	appt := result.Appointment
	if appt.Status != StatusPendingPayment {
		t.Errorf("status = %s, want %s", appt.Status, StatusPendingPayment)
	}
	if appt.PriceCents != 17500 {
		t.Errorf("price = %d, want 17500", appt.PriceCents)
	}
	if appt.PaymentStatus != PaymentPending {
		t.Errorf("payment status = %s, want %s", appt.PaymentStatus, PaymentPending)
	}
	if f.alerts.count() != 0 {
		t.Errorf("alert sent before payment, got %d", f.alerts.count())
	}

	// Patient record was created via the booking.
	p, err := f.patients.GetByEmail(ctx, "maria@example.com")
	if err != nil {
		t.Fatalf("GetByEmail: %v", err)
	}
	if p.Name != "Maria Lopez" {
		t.Errorf("patient name = %q", p.Name)
	}
}

func TestBookInvalidService(t *testing.T) {
	f := newSchedulerFixture()
	req := oneOffRequest()
	req.ServiceID = "jetpack-refuel"
	if _, err := f.scheduler.Book(context.Background(), req); !errors.Is(err, ErrInvalidService) {
		t.Fatalf("err = %v, want ErrInvalidService", err)
	}
}

func TestBookValidation(t *testing.T) {
	f := newSchedulerFixture()
	req := oneOffRequest()
	req.Email = ""
	if _, err := f.scheduler.Book(context.Background(), req); !errors.Is(err, ErrMissingEmail) {
		t.Fatalf("err = %v, want ErrMissingEmail", err)
	}
}

func TestBookSlotConflict(t *testing.T) {
	f := newSchedulerFixture()
	ctx := context.Background()

	if _, err := f.scheduler.Book(ctx, oneOffRequest()); err != nil {
		t.Fatalf("first booking: %v", err)
	}

	req := oneOffRequest()
	req.Email = "other@example.com"
	req.Name = "Other Patient"
	if _, err := f.scheduler.Book(ctx, req); !errors.Is(err, ErrSlotTaken) {
		t.Fatalf("err = %v, want ErrSlotTaken", err)
	}
}

func TestBookSlotFreedByCancellation(t *testing.T) {
	f := newSchedulerFixture()
	ctx := context.Background()

	first, err := f.scheduler.Book(ctx, oneOffRequest())
	if err != nil {
		t.Fatalf("first booking: %v", err)
	}
	cancelled := StatusCancelled
	if _, err := f.scheduler.Update(ctx, first.Appointment.ID, UpdatePatch{Status: &cancelled}); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	req := oneOffRequest()
	req.Email = "other@example.com"
	if _, err := f.scheduler.Book(ctx, req); err != nil {
		t.Fatalf("rebooking freed slot: %v", err)
	}
}

func TestReactivateCancelledOntoOccupiedSlot(t *testing.T) {
	f := newSchedulerFixture()
	ctx := context.Background()

	first, err := f.scheduler.Book(ctx, oneOffRequest())
	if err != nil {
		t.Fatalf("first booking: %v", err)
	}
	cancelled := StatusCancelled
	if _, err := f.scheduler.Update(ctx, first.Appointment.ID, UpdatePatch{Status: &cancelled}); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	// Someone else takes the freed slot.
	req := oneOffRequest()
	req.Email = "other@example.com"
	second, err := f.scheduler.Book(ctx, req)
	if err != nil {
		t.Fatalf("rebooking freed slot: %v", err)
	}

	// Reactivating the cancelled appointment must re-contend for the slot.
	scheduled := StatusScheduled
	if _, err := f.scheduler.Update(ctx, first.Appointment.ID, UpdatePatch{Status: &scheduled}); !errors.Is(err, ErrSlotTaken) {
		t.Fatalf("err = %v, want ErrSlotTaken", err)
	}

	// The new holder keeps the slot.
	got, err := f.scheduler.repo.GetByID(ctx, second.Appointment.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != StatusPendingPayment {
		t.Errorf("holder status = %s, want pending_payment", got.Status)
	}
	stale, err := f.scheduler.repo.GetByID(ctx, first.Appointment.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stale.Status != StatusCancelled {
		t.Errorf("cancelled appointment status = %s, want cancelled", stale.Status)
	}
}

func TestBookConcurrentSameSlot(t *testing.T) {
	f := newSchedulerFixture()
	ctx := context.Background()

	const n = 16
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := oneOffRequest()
			req.Email = "racer" + string(rune('a'+i)) + "@example.com"
			_, errs[i] = f.scheduler.Book(ctx, req)
		}(i)
	}
	wg.Wait()

	var created, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			created++
		case errors.Is(err, ErrSlotTaken):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if created != 1 {
		t.Fatalf("created = %d, want exactly 1", created)
	}
	if conflicts != n-1 {
		t.Fatalf("conflicts = %d, want %d", conflicts, n-1)
	}
}

func TestBookSubscriptionCovered(t *testing.T) {
	f := newSchedulerFixture()
	ctx := context.Background()

	p, err := f.patients.Resolve(ctx, "member@example.com", patients.Profile{Name: "Member", Phone: "+15551230002"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	sub, err := f.ledger.Create(ctx, p.ID, "sub-basic")
	if err != nil {
		t.Fatalf("create subscription: %v", err)
	}

	req := oneOffRequest()
	req.Email = "member@example.com"
	req.ServiceID = "sub-basic"
	req.ServiceKind = KindSubscription

	result, err := f.scheduler.Book(ctx, req)
	if err != nil {
		t.Fatalf("Book: %v", err)
	}
	appt := result.Appointment
	if result.RequiresPayment {
		t.Error("subscription booking should not require payment")
	}
	if appt.Status != StatusScheduled {
		t.Errorf("status = %s, want %s", appt.Status, StatusScheduled)
	}
	if appt.PriceCents != 0 {
		t.Errorf("price = %d, want 0", appt.PriceCents)
	}
	if appt.SubscriptionID != sub.ID {
		t.Errorf("subscription id = %q, want %q", appt.SubscriptionID, sub.ID)
	}
	if f.alerts.count() != 1 {
		t.Errorf("alerts = %d, want 1", f.alerts.count())
	}

	usage, err := f.ledger.Usage(ctx, sub.ID)
	if err != nil {
		t.Fatalf("Usage: %v", err)
	}
	if usage.VisitsThisCycle != 1 {
		t.Errorf("visits = %d, want 1", usage.VisitsThisCycle)
	}
}

func TestBookSubscriptionWithoutActiveSubscription(t *testing.T) {
	f := newSchedulerFixture()

	req := oneOffRequest()
	req.ServiceKind = KindSubscription
	req.ServiceID = "sub-basic"
	_, err := f.scheduler.Book(context.Background(), req)
	if !errors.Is(err, subscriptions.ErrNoActiveSubscription) {
		t.Fatalf("err = %v, want ErrNoActiveSubscription", err)
	}
}

func TestBookSubscriptionReleasesVisitOnSlotRace(t *testing.T) {
	f := newSchedulerFixture()
	ctx := context.Background()

	// Occupy the slot first with a different patient.
	if _, err := f.scheduler.Book(ctx, oneOffRequest()); err != nil {
		t.Fatalf("blocker booking: %v", err)
	}

	p, err := f.patients.Resolve(ctx, "member@example.com", patients.Profile{Name: "Member", Phone: "+15551230002"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	sub, err := f.ledger.Create(ctx, p.ID, "sub-basic")
	if err != nil {
		t.Fatalf("create subscription: %v", err)
	}

	// Swap in a repo wrapper whose SlotTaken lies, to force the race past
	// the advisory check into the store conflict.
	f.scheduler.repo = &raceRepo{Repository: f.repo}

	req := oneOffRequest()
	req.Email = "member@example.com"
	req.ServiceID = "sub-basic"
	req.ServiceKind = KindSubscription
	if _, err := f.scheduler.Book(ctx, req); !errors.Is(err, ErrSlotTaken) {
		t.Fatalf("err = %v, want ErrSlotTaken", err)
	}

	usage, err := f.ledger.Usage(ctx, sub.ID)
	if err != nil {
		t.Fatalf("Usage: %v", err)
	}
	if usage.VisitsThisCycle != 0 {
		t.Errorf("visits = %d, want 0 after compensation", usage.VisitsThisCycle)
	}
}

// raceRepo reports every slot as free so the store-level check is the one
// that fires.
type raceRepo struct {
	Repository
}

func (r *raceRepo) SlotTaken(ctx context.Context, date, timeOfDay string) (bool, error) {
	return false, nil
}

func TestConfirmPayment(t *testing.T) {
	f := newSchedulerFixture()
	ctx := context.Background()

	result, err := f.scheduler.Book(ctx, oneOffRequest())
	if err != nil {
		t.Fatalf("Book: %v", err)
	}
	id := result.Appointment.ID

	appt, err := f.scheduler.ConfirmPayment(ctx, id, 17500, "cs_test_123")
	if err != nil {
		t.Fatalf("ConfirmPayment: %v", err)
	}
	if appt.Status != StatusScheduled {
		t.Errorf("status = %s, want %s", appt.Status, StatusScheduled)
	}
	if appt.PaymentStatus != PaymentPaid {
		t.Errorf("payment status = %s, want %s", appt.PaymentStatus, PaymentPaid)
	}
	if appt.PaymentSessionID != "cs_test_123" {
		t.Errorf("session id = %q", appt.PaymentSessionID)
	}
	if f.alerts.count() != 1 {
		t.Fatalf("alerts = %d, want 1", f.alerts.count())
	}

	// Second confirmation is a no-op: same state, no second alert.
	again, err := f.scheduler.ConfirmPayment(ctx, id, 17500, "cs_test_123")
	if err != nil {
		t.Fatalf("repeat ConfirmPayment: %v", err)
	}
	if again.Status != StatusScheduled {
		t.Errorf("repeat status = %s", again.Status)
	}
	if f.alerts.count() != 1 {
		t.Errorf("alerts = %d after repeat, want 1", f.alerts.count())
	}
}

func TestConfirmPaymentAmountMismatch(t *testing.T) {
	f := newSchedulerFixture()
	ctx := context.Background()

	result, err := f.scheduler.Book(ctx, oneOffRequest())
	if err != nil {
		t.Fatalf("Book: %v", err)
	}

	_, err = f.scheduler.ConfirmPayment(ctx, result.Appointment.ID, 17400, "cs_test_123")
	if !errors.Is(err, ErrPaymentMismatch) {
		t.Fatalf("err = %v, want ErrPaymentMismatch", err)
	}

	appt, err := f.scheduler.GetByID(ctx, result.Appointment.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if appt.Status != StatusPendingPayment {
		t.Errorf("status = %s, want unchanged %s", appt.Status, StatusPendingPayment)
	}
	if f.alerts.count() != 0 {
		t.Errorf("alerts = %d, want 0", f.alerts.count())
	}
}

func TestConfirmPaymentAlertFailureDoesNotUnwind(t *testing.T) {
	f := newSchedulerFixture()
	f.alerts.err = errors.New("sms gateway down")
	ctx := context.Background()

	result, err := f.scheduler.Book(ctx, oneOffRequest())
	if err != nil {
		t.Fatalf("Book: %v", err)
	}

	appt, err := f.scheduler.ConfirmPayment(ctx, result.Appointment.ID, 17500, "cs_test_123")
	if err != nil {
		t.Fatalf("ConfirmPayment: %v", err)
	}
	if appt.Status != StatusScheduled {
		t.Errorf("status = %s, want %s despite alert failure", appt.Status, StatusScheduled)
	}
}

func TestMarkPaymentFailedFreesSlot(t *testing.T) {
	f := newSchedulerFixture()
	ctx := context.Background()

	result, err := f.scheduler.Book(ctx, oneOffRequest())
	if err != nil {
		t.Fatalf("Book: %v", err)
	}

	appt, err := f.scheduler.MarkPaymentFailed(ctx, result.Appointment.ID)
	if err != nil {
		t.Fatalf("MarkPaymentFailed: %v", err)
	}
	if appt.Status != StatusCancelled {
		t.Errorf("status = %s, want %s", appt.Status, StatusCancelled)
	}
	if appt.PaymentStatus != PaymentFailed {
		t.Errorf("payment status = %s, want %s", appt.PaymentStatus, PaymentFailed)
	}

	req := oneOffRequest()
	req.Email = "other@example.com"
	if _, err := f.scheduler.Book(ctx, req); err != nil {
		t.Fatalf("slot should be free after failed payment: %v", err)
	}
}

func TestUpdateReschedule(t *testing.T) {
	f := newSchedulerFixture()
	ctx := context.Background()

	result, err := f.scheduler.Book(ctx, oneOffRequest())
	if err != nil {
		t.Fatalf("Book: %v", err)
	}

	newDate, newTime := "2030-01-16", "2:00 PM"
	appt, err := f.scheduler.Update(ctx, result.Appointment.ID, UpdatePatch{Date: &newDate, Time: &newTime})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if appt.Date != newDate || appt.Time != newTime {
		t.Errorf("slot = (%s, %s)", appt.Date, appt.Time)
	}

	// Old slot is free again, new slot is held.
	req := oneOffRequest()
	req.Email = "other@example.com"
	if _, err := f.scheduler.Book(ctx, req); err != nil {
		t.Fatalf("old slot should be free: %v", err)
	}
	req2 := oneOffRequest()
	req2.Email = "third@example.com"
	req2.Date, req2.Time = newDate, newTime
	if _, err := f.scheduler.Book(ctx, req2); !errors.Is(err, ErrSlotTaken) {
		t.Fatalf("err = %v, want ErrSlotTaken on new slot", err)
	}
}

func TestUpdateRescheduleConflict(t *testing.T) {
	f := newSchedulerFixture()
	ctx := context.Background()

	first, err := f.scheduler.Book(ctx, oneOffRequest())
	if err != nil {
		t.Fatalf("first booking: %v", err)
	}
	req := oneOffRequest()
	req.Email = "other@example.com"
	req.Time = "11:00 AM"
	second, err := f.scheduler.Book(ctx, req)
	if err != nil {
		t.Fatalf("second booking: %v", err)
	}

	clash := first.Appointment.Time
	_, err = f.scheduler.Update(ctx, second.Appointment.ID, UpdatePatch{Time: &clash})
	if !errors.Is(err, ErrSlotTaken) {
		t.Fatalf("err = %v, want ErrSlotTaken", err)
	}
}

func TestListByEmail(t *testing.T) {
	f := newSchedulerFixture()
	ctx := context.Background()

	if _, err := f.scheduler.Book(ctx, oneOffRequest()); err != nil {
		t.Fatalf("Book: %v", err)
	}
	req := oneOffRequest()
	req.Time = "11:00 AM"
	if _, err := f.scheduler.Book(ctx, req); err != nil {
		t.Fatalf("Book: %v", err)
	}

	appts, err := f.scheduler.ListByEmail(ctx, "Maria@Example.com")
	if err != nil {
		t.Fatalf("ListByEmail: %v", err)
	}
	if len(appts) != 2 {
		t.Fatalf("len = %d, want 2", len(appts))
	}

	none, err := f.scheduler.ListByEmail(ctx, "stranger@example.com")
	if err != nil {
		t.Fatalf("ListByEmail unknown: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("len = %d, want 0 for unknown email", len(none))
	}
}
