package service

import (
	"context"
	"io"
	"reflect"
	"testing"
	"time"

	"boxoffice/internal/bookings/repository"
	"boxoffice/internal/bookings/validator"
	"boxoffice/internal/catalog"
	"boxoffice/internal/events"
	"boxoffice/internal/inventory"
	"boxoffice/internal/payments"
	"boxoffice/pkg/clock"
	"boxoffice/pkg/config"
	apperrors "boxoffice/pkg/errors"
	"boxoffice/pkg/logger"
	"boxoffice/pkg/model"
)

var serviceTestStart = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	service   BookingService
	table     *inventory.Table
	catalog   *catalog.Memory
	processor *payments.Static
	clk       *clock.Manual
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	log := logger.New(logger.Config{Level: logger.ERROR, Format: logger.JSON, Output: io.Discard})
	cfg := &config.Config{
		HoldTTL:    time.Minute,
		MaxHoldTTL: time.Hour,
		Log:        log,
	}

	clk := clock.NewManual(serviceTestStart)
	table := inventory.NewTable(clk)
	catalogRepo := catalog.NewMemory(model.Show{
		ID:   "show-1",
		Name: "Test Show",
		Units: []model.InventoryUnit{
			{GroupID: "show-1", UnitID: "A1", Category: "premium", Price: 9000},
			{GroupID: "show-1", UnitID: "A2", Category: "standard", Price: 4500},
			{GroupID: "show-1", UnitID: "A3", Category: "standard", Price: 4500},
		},
	})
	processor := payments.NewStatic(true)
	processors := map[model.PaymentMethod]payments.Processor{
		model.PaymentCard: processor,
	}

	svc := NewBookingService(
		repository.NewMemoryBookingRepository(),
		table,
		catalogRepo,
		processors,
		events.Noop{},
		validator.NewBookingValidator(log),
		clk,
		cfg,
	)
	return &testEnv{
		service:   svc,
		table:     table,
		catalog:   catalogRepo,
		processor: processor,
		clk:       clk,
	}
}

func (e *testEnv) acquire(t *testing.T, owner string, units ...string) model.LockResult {
	t.Helper()
	res, err := e.service.AcquireHold(context.Background(), &model.AcquireHoldRequest{
		GroupID: "show-1",
		UnitIDs: units,
		OwnerID: owner,
		TTLMs:   60_000,
	})
	if err != nil {
		t.Fatalf("AcquireHold() error = %v", err)
	}
	return res
}

func (e *testEnv) createBooking(t *testing.T, owner string, units ...string) *model.Booking {
	t.Helper()
	booking, err := e.service.CreateBooking(context.Background(), &model.CreateBookingRequest{
		OwnerID: owner,
		GroupID: "show-1",
		UnitIDs: units,
	})
	if err != nil {
		t.Fatalf("CreateBooking() error = %v", err)
	}
	return booking
}

func errCode(t *testing.T, err error) string {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	return apperrors.AsAppError(err).Code
}

func TestSettleHappyPath(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if res := env.acquire(t, "alice", "A1", "A2"); !res.Granted {
		t.Fatalf("hold denied, conflicting = %v", res.Conflicting)
	}
	booking := env.createBooking(t, "alice", "A1", "A2")

	if booking.Status != model.BookingPending {
		t.Errorf("Status = %s, want PENDING", booking.Status)
	}
	if booking.TotalAmount != 13500 {
		t.Errorf("TotalAmount = %d, want 13500", booking.TotalAmount)
	}

	settled, err := env.service.Settle(ctx, booking.ID, "alice", model.PaymentCard)
	if err != nil {
		t.Fatalf("Settle() error = %v", err)
	}
	if settled.Status != model.BookingConfirmed {
		t.Errorf("Status = %s, want CONFIRMED", settled.Status)
	}
	if settled.SettledAt == nil {
		t.Error("SettledAt not set")
	}
	if got := env.processor.Charges(); len(got) != 1 || got[0] != booking.ID {
		t.Errorf("Charges = %v, want [%s]", got, booking.ID)
	}

	// Booked units are permanently gone, even to their former owner.
	res := env.acquire(t, "bob", "A1")
	if res.Granted {
		t.Error("booked unit granted to another owner")
	}
}

func TestSettleIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.acquire(t, "alice", "A1")
	booking := env.createBooking(t, "alice", "A1")
	if _, err := env.service.Settle(ctx, booking.ID, "alice", model.PaymentCard); err != nil {
		t.Fatalf("first Settle() error = %v", err)
	}

	again, err := env.service.Settle(ctx, booking.ID, "alice", model.PaymentCard)
	if err != nil {
		t.Fatalf("second Settle() error = %v", err)
	}
	if again.Status != model.BookingConfirmed {
		t.Errorf("Status = %s, want CONFIRMED", again.Status)
	}
	if n := len(env.processor.Charges()); n != 1 {
		t.Errorf("charges = %d, want 1 (no double charge)", n)
	}
}

func TestSettlePaymentDeclined(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.acquire(t, "alice", "A1", "A2")
	booking := env.createBooking(t, "alice", "A1", "A2")

	env.processor.Approve = false
	_, err := env.service.Settle(ctx, booking.ID, "alice", model.PaymentCard)
	if code := errCode(t, err); code != apperrors.CodePaymentFailed {
		t.Errorf("error code = %s, want PAYMENT_FAILED", code)
	}

	// Failed payment cancels the booking and frees the units.
	got, err := env.service.GetBooking(ctx, booking.ID)
	if err != nil {
		t.Fatalf("GetBooking() error = %v", err)
	}
	if got.Status != model.BookingCancelled {
		t.Errorf("Status = %s, want CANCELLED", got.Status)
	}
	env.processor.Approve = true
	if res := env.acquire(t, "bob", "A1", "A2"); !res.Granted {
		t.Errorf("units not freed after declined payment, conflicting = %v", res.Conflicting)
	}
}

func TestSettleInconsistencyWhenHoldExpiresMidPayment(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.acquire(t, "alice", "A1")
	booking := env.createBooking(t, "alice", "A1")

	// The hold lapses between booking creation and settlement. The charge
	// still succeeds, so it must be refunded.
	env.clk.Advance(2 * time.Minute)

	_, err := env.service.Settle(ctx, booking.ID, "alice", model.PaymentCard)
	if code := errCode(t, err); code != apperrors.CodeSettlementInconsistency {
		t.Errorf("error code = %s, want SETTLEMENT_INCONSISTENCY", code)
	}
	if got := env.processor.Refunds(); len(got) != 1 || got[0] != booking.ID {
		t.Errorf("Refunds = %v, want [%s]", got, booking.ID)
	}

	got, err := env.service.GetBooking(ctx, booking.ID)
	if err != nil {
		t.Fatalf("GetBooking() error = %v", err)
	}
	if got.Status != model.BookingCancelled {
		t.Errorf("Status = %s, want CANCELLED", got.Status)
	}
	if res := env.acquire(t, "bob", "A1"); !res.Granted {
		t.Error("unit not available after refunded settlement")
	}
}

func TestBookingAmountIsFrozenAtCreation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.acquire(t, "alice", "A1")
	booking := env.createBooking(t, "alice", "A1")
	if booking.TotalAmount != 9000 {
		t.Fatalf("TotalAmount = %d, want 9000", booking.TotalAmount)
	}

	// Price doubles after the booking exists; the settlement ignores it.
	env.catalog.ReplaceShow(model.Show{
		ID:   "show-1",
		Name: "Test Show",
		Units: []model.InventoryUnit{
			{GroupID: "show-1", UnitID: "A1", Category: "premium", Price: 18000},
		},
	})

	settled, err := env.service.Settle(ctx, booking.ID, "alice", model.PaymentCard)
	if err != nil {
		t.Fatalf("Settle() error = %v", err)
	}
	if settled.TotalAmount != 9000 {
		t.Errorf("TotalAmount = %d, want frozen 9000", settled.TotalAmount)
	}
}

func TestCreateBookingRequiresExactHold(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// No hold at all.
	_, err := env.service.CreateBooking(ctx, &model.CreateBookingRequest{
		OwnerID: "alice", GroupID: "show-1", UnitIDs: []string{"A1"},
	})
	if code := errCode(t, err); code != apperrors.CodeLockExpired {
		t.Errorf("no hold: error code = %s, want LOCK_EXPIRED", code)
	}

	// Hold over a different set than the booking asks for.
	env.acquire(t, "alice", "A1")
	_, err = env.service.CreateBooking(ctx, &model.CreateBookingRequest{
		OwnerID: "alice", GroupID: "show-1", UnitIDs: []string{"A1", "A2"},
	})
	if code := errCode(t, err); code != apperrors.CodeSeatUnavailable {
		t.Errorf("partial hold: error code = %s, want SEAT_UNAVAILABLE", code)
	}
	appErr := apperrors.AsAppError(err)
	if !reflect.DeepEqual(appErr.Details["conflicting"], []string{"A2"}) {
		t.Errorf("conflicting = %v, want [A2]", appErr.Details["conflicting"])
	}
}

func TestCreateBookingAfterExpiry(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.acquire(t, "alice", "A1")
	env.clk.Advance(2 * time.Minute)

	_, err := env.service.CreateBooking(ctx, &model.CreateBookingRequest{
		OwnerID: "alice", GroupID: "show-1", UnitIDs: []string{"A1"},
	})
	if code := errCode(t, err); code != apperrors.CodeLockExpired {
		t.Errorf("error code = %s, want LOCK_EXPIRED", code)
	}
}

func TestCancelReleasesUnits(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.acquire(t, "alice", "A1", "A2")
	booking := env.createBooking(t, "alice", "A1", "A2")

	cancelled, err := env.service.Cancel(ctx, booking.ID, "alice")
	if err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if cancelled.Status != model.BookingCancelled {
		t.Errorf("Status = %s, want CANCELLED", cancelled.Status)
	}
	if res := env.acquire(t, "bob", "A1", "A2"); !res.Granted {
		t.Errorf("units not freed after cancel, conflicting = %v", res.Conflicting)
	}

	// Cancelling again changes nothing.
	again, err := env.service.Cancel(ctx, booking.ID, "alice")
	if err != nil {
		t.Fatalf("repeat Cancel() error = %v", err)
	}
	if again.Status != model.BookingCancelled {
		t.Errorf("repeat Status = %s, want CANCELLED", again.Status)
	}
}

func TestCancelAfterConfirmIsNoop(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.acquire(t, "alice", "A1")
	booking := env.createBooking(t, "alice", "A1")
	if _, err := env.service.Settle(ctx, booking.ID, "alice", model.PaymentCard); err != nil {
		t.Fatalf("Settle() error = %v", err)
	}

	got, err := env.service.Cancel(ctx, booking.ID, "alice")
	if err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if got.Status != model.BookingConfirmed {
		t.Errorf("Status = %s, want CONFIRMED", got.Status)
	}
}

func TestSettleOwnershipAndLookup(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.acquire(t, "alice", "A1")
	booking := env.createBooking(t, "alice", "A1")

	_, err := env.service.Settle(ctx, booking.ID, "mallory", model.PaymentCard)
	if code := errCode(t, err); code != apperrors.CodeForbidden {
		t.Errorf("foreign settle: error code = %s, want FORBIDDEN", code)
	}

	_, err = env.service.Settle(ctx, "no-such-booking", "alice", model.PaymentCard)
	if code := errCode(t, err); code != apperrors.CodeNotFound {
		t.Errorf("missing booking: error code = %s, want NOT_FOUND", code)
	}

	_, err = env.service.Settle(ctx, booking.ID, "alice", model.PaymentMethod("barter"))
	if code := errCode(t, err); code != apperrors.CodeInvalidInput {
		t.Errorf("unknown method: error code = %s, want INVALID_INPUT", code)
	}
}

func TestAcquireHoldContention(t *testing.T) {
	env := newTestEnv(t)

	if res := env.acquire(t, "alice", "A1", "A2"); !res.Granted {
		t.Fatal("first hold denied")
	}
	res := env.acquire(t, "bob", "A2", "A3")
	if res.Granted {
		t.Fatal("overlapping hold granted")
	}
	if !reflect.DeepEqual(res.Conflicting, []string{"A2"}) {
		t.Errorf("Conflicting = %v, want [A2]", res.Conflicting)
	}

	// The denied request took nothing, so the disjoint retry succeeds.
	if res := env.acquire(t, "bob", "A3"); !res.Granted {
		t.Error("retry after denial failed")
	}
}

func TestAcquireHoldUnknownGroup(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.service.AcquireHold(context.Background(), &model.AcquireHoldRequest{
		GroupID: "no-such-show",
		UnitIDs: []string{"A1"},
		OwnerID: "alice",
		TTLMs:   60_000,
	})
	if code := errCode(t, err); code != apperrors.CodeNotFound {
		t.Errorf("error code = %s, want NOT_FOUND", code)
	}
}

func TestAcquireHoldValidation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		req  *model.AcquireHoldRequest
	}{
		{"missing owner", &model.AcquireHoldRequest{GroupID: "show-1", UnitIDs: []string{"A1"}, TTLMs: 60_000}},
		{"empty units", &model.AcquireHoldRequest{GroupID: "show-1", OwnerID: "alice", TTLMs: 60_000}},
		{"duplicate units", &model.AcquireHoldRequest{GroupID: "show-1", UnitIDs: []string{"A1", "A1"}, OwnerID: "alice", TTLMs: 60_000}},
		{"zero ttl", &model.AcquireHoldRequest{GroupID: "show-1", UnitIDs: []string{"A1"}, OwnerID: "alice"}},
		{"bad unit id", &model.AcquireHoldRequest{GroupID: "show-1", UnitIDs: []string{"seat one"}, OwnerID: "alice", TTLMs: 60_000}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.service.AcquireHold(context.Background(), tt.req)
			if code := errCode(t, err); code != apperrors.CodeValidation {
				t.Errorf("error code = %s, want VALIDATION_ERROR", code)
			}
		})
	}
}

func TestRenewHold(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.acquire(t, "alice", "A1")
	env.clk.Advance(50 * time.Second)

	res, err := env.service.RenewHold(ctx, &model.AcquireHoldRequest{
		GroupID: "show-1", UnitIDs: []string{"A1"}, OwnerID: "alice", TTLMs: 60_000,
	})
	if err != nil {
		t.Fatalf("RenewHold() error = %v", err)
	}
	if !res.Granted {
		t.Error("renew not granted")
	}

	env.clk.Advance(2 * time.Minute)
	_, err = env.service.RenewHold(ctx, &model.AcquireHoldRequest{
		GroupID: "show-1", UnitIDs: []string{"A1"}, OwnerID: "alice", TTLMs: 60_000,
	})
	if code := errCode(t, err); code != apperrors.CodeLockExpired {
		t.Errorf("expired renew: error code = %s, want LOCK_EXPIRED", code)
	}
}

func TestReleaseHold(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.acquire(t, "alice", "A1")

	released, err := env.service.ReleaseHold(ctx, &model.ReleaseHoldRequest{
		GroupID: "show-1", UnitIDs: []string{"A1"}, OwnerID: "alice",
	})
	if err != nil {
		t.Fatalf("ReleaseHold() error = %v", err)
	}
	if !released {
		t.Error("released = false, want true")
	}

	released, err = env.service.ReleaseHold(ctx, &model.ReleaseHoldRequest{
		GroupID: "show-1", UnitIDs: []string{"A1"}, OwnerID: "alice",
	})
	if err != nil {
		t.Fatalf("repeat ReleaseHold() error = %v", err)
	}
	if released {
		t.Error("repeat released = true, want false")
	}
}

func TestUnitSnapshots(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.acquire(t, "alice", "A1")

	available, err := env.service.AvailableUnits(ctx, "show-1")
	if err != nil {
		t.Fatalf("AvailableUnits() error = %v", err)
	}
	if !reflect.DeepEqual(available, []string{"A2", "A3"}) {
		t.Errorf("available = %v, want [A2 A3]", available)
	}

	locked, err := env.service.LockedUnits(ctx, "show-1")
	if err != nil {
		t.Fatalf("LockedUnits() error = %v", err)
	}
	if !reflect.DeepEqual(locked, []string{"A1"}) {
		t.Errorf("locked = %v, want [A1]", locked)
	}

	states, err := env.service.UnitStates(ctx, "show-1")
	if err != nil {
		t.Fatalf("UnitStates() error = %v", err)
	}
	want := map[string]model.UnitState{
		"A1": model.UnitLocked,
		"A2": model.UnitAvailable,
		"A3": model.UnitAvailable,
	}
	if !reflect.DeepEqual(states, want) {
		t.Errorf("states = %v, want %v", states, want)
	}
}
