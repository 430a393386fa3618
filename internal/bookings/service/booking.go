package service

import (
	"context"
	"errors"
	"sync"
	"time"

	bookingserrors "boxoffice/internal/bookings/errors"
	"boxoffice/internal/bookings/repository"
	"boxoffice/internal/bookings/validator"
	"boxoffice/internal/catalog"
	"boxoffice/internal/events"
	"boxoffice/internal/inventory"
	"boxoffice/internal/payments"
	"boxoffice/pkg/clock"
	"boxoffice/pkg/config"
	apperrors "boxoffice/pkg/errors"
	"boxoffice/pkg/model"

	"github.com/google/uuid"
)

// BookingService is the coordinator of the reservation flow: it owns the
// lifecycle lock -> booking -> settle/cancel and is the only caller of the
// lock table's mutating operations on behalf of bookings.
type BookingService interface {
	AcquireHold(ctx context.Context, req *model.AcquireHoldRequest) (model.LockResult, error)
	RenewHold(ctx context.Context, req *model.AcquireHoldRequest) (model.LockResult, error)
	ReleaseHold(ctx context.Context, req *model.ReleaseHoldRequest) (bool, error)
	CreateBooking(ctx context.Context, req *model.CreateBookingRequest) (*model.Booking, error)
	Settle(ctx context.Context, bookingID, ownerID string, method model.PaymentMethod) (*model.Booking, error)
	Cancel(ctx context.Context, bookingID, ownerID string) (*model.Booking, error)
	GetBooking(ctx context.Context, bookingID string) (*model.Booking, error)
	AvailableUnits(ctx context.Context, groupID string) ([]string, error)
	LockedUnits(ctx context.Context, groupID string) ([]string, error)
	UnitStates(ctx context.Context, groupID string) (map[string]model.UnitState, error)
}

type bookingService struct {
	repo       repository.BookingRepository
	table      *inventory.Table
	catalog    catalog.Repository
	processors map[model.PaymentMethod]payments.Processor
	publisher  events.Publisher
	validator  *validator.BookingValidator
	clk        clock.Clock
	cfg        *config.Config

	// settleLocks serializes settle/cancel per booking so a double settle
	// cannot double-charge. Inventory state stays consistent either way;
	// this only protects the payment call.
	settleLocks sync.Map
}

func NewBookingService(
	repo repository.BookingRepository,
	table *inventory.Table,
	catalogRepo catalog.Repository,
	processors map[model.PaymentMethod]payments.Processor,
	publisher events.Publisher,
	bookingValidator *validator.BookingValidator,
	clk clock.Clock,
	cfg *config.Config,
) BookingService {
	return &bookingService{
		repo:       repo,
		table:      table,
		catalog:    catalogRepo,
		processors: processors,
		publisher:  publisher,
		validator:  bookingValidator,
		clk:        clk,
		cfg:        cfg,
	}
}

func (s *bookingService) AcquireHold(ctx context.Context, req *model.AcquireHoldRequest) (model.LockResult, error) {
	if err := s.validate(req); err != nil {
		return model.LockResult{}, err
	}
	if err := s.ensureGroup(ctx, req.GroupID); err != nil {
		return model.LockResult{}, err
	}

	ttl := s.cfg.ClampHoldTTL(time.Duration(req.TTLMs) * time.Millisecond)
	result, err := s.table.TryLock(req.GroupID, req.UnitIDs, req.OwnerID, ttl)
	if err != nil {
		return model.LockResult{}, s.mapTableError(err, req.GroupID)
	}

	if result.Granted {
		s.publisher.HoldAcquired(ctx, model.Lock{
			OwnerID:   req.OwnerID,
			GroupID:   req.GroupID,
			UnitIDs:   req.UnitIDs,
			ExpiresAt: result.ExpiresAt,
			CreatedAt: s.clk.Now(),
		})
		s.cfg.Log.Info("Hold acquired",
			"group_id", req.GroupID,
			"owner_id", req.OwnerID,
			"units", len(req.UnitIDs),
			"expires_at", result.ExpiresAt,
		)
	} else {
		s.cfg.Log.Debug("Hold rejected",
			"group_id", req.GroupID,
			"owner_id", req.OwnerID,
			"conflicting", result.Conflicting,
		)
	}
	return result, nil
}

func (s *bookingService) RenewHold(ctx context.Context, req *model.AcquireHoldRequest) (model.LockResult, error) {
	if err := s.validate(req); err != nil {
		return model.LockResult{}, err
	}
	if err := s.ensureGroup(ctx, req.GroupID); err != nil {
		return model.LockResult{}, err
	}

	ttl := s.cfg.ClampHoldTTL(time.Duration(req.TTLMs) * time.Millisecond)
	if !s.table.Renew(req.GroupID, req.UnitIDs, req.OwnerID, ttl) {
		return model.LockResult{}, apperrors.LockExpired("Hold has expired or is not owned by this owner")
	}
	return model.LockResult{Granted: true, ExpiresAt: s.clk.Now().Add(ttl)}, nil
}

func (s *bookingService) ReleaseHold(ctx context.Context, req *model.ReleaseHoldRequest) (bool, error) {
	if err := s.validate(req); err != nil {
		return false, err
	}
	if err := s.ensureGroup(ctx, req.GroupID); err != nil {
		return false, err
	}

	released := s.table.Release(req.GroupID, req.UnitIDs, req.OwnerID)
	if released {
		s.publisher.HoldReleased(ctx, req.GroupID, req.OwnerID, req.UnitIDs)
		s.cfg.Log.Info("Hold released",
			"group_id", req.GroupID,
			"owner_id", req.OwnerID,
			"units", len(req.UnitIDs),
		)
	}
	return released, nil
}

func (s *bookingService) CreateBooking(ctx context.Context, req *model.CreateBookingRequest) (*model.Booking, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}
	if err := s.ensureGroup(ctx, req.GroupID); err != nil {
		return nil, err
	}

	// The caller must hold a live lock over exactly the units being booked.
	if !s.table.HoldsExactly(req.GroupID, req.UnitIDs, req.OwnerID) {
		owned := s.table.OwnedUnits(req.GroupID, req.OwnerID)
		if len(owned) == 0 {
			return nil, apperrors.LockExpired("Hold has expired or was never acquired")
		}
		return nil, apperrors.SeatUnavailable(missingFrom(req.UnitIDs, owned))
	}

	total, err := s.totalAmount(ctx, req.GroupID, req.UnitIDs)
	if err != nil {
		return nil, err
	}

	booking := &model.Booking{
		ID:          uuid.New().String(),
		OwnerID:     req.OwnerID,
		GroupID:     req.GroupID,
		UnitIDs:     append([]string(nil), req.UnitIDs...),
		TotalAmount: total,
		Status:      model.BookingPending,
		CreatedAt:   s.clk.Now(),
	}
	if err := s.repo.Create(ctx, booking); err != nil {
		return nil, apperrors.Internal("Failed to create booking", err)
	}

	s.publisher.BookingCreated(ctx, booking)
	s.cfg.Log.Info("Booking created",
		"id", booking.ID,
		"group_id", booking.GroupID,
		"owner_id", booking.OwnerID,
		"total_amount", booking.TotalAmount,
	)
	return booking, nil
}

// Settle exchanges a successful charge for permanent BOOKED units. The order
// is fixed: lock, charge, confirm. The charge runs without any inventory
// mutex held, so a slow gateway never blocks other callers' lock attempts.
func (s *bookingService) Settle(ctx context.Context, bookingID, ownerID string, method model.PaymentMethod) (*model.Booking, error) {
	processor, ok := s.processors[method]
	if !ok {
		return nil, apperrors.InvalidInput("Unsupported payment method: " + string(method))
	}

	unlock := s.lockBooking(bookingID)
	defer unlock()

	booking, err := s.findOwned(ctx, bookingID, ownerID)
	if err != nil {
		return nil, err
	}
	if booking.Status.Terminal() {
		// Settling twice returns the settled state unchanged.
		return booking, nil
	}

	if err := processor.Charge(ctx, booking.ID, booking.TotalAmount); err != nil {
		s.cancelAfterPaymentFailure(ctx, booking)
		if errors.Is(err, payments.ErrDeclined) {
			return booking, apperrors.PaymentFailed("Charge was declined", err)
		}
		return booking, apperrors.PaymentFailed("Charge could not be completed", err)
	}

	if !s.table.MarkBooked(booking.GroupID, booking.UnitIDs, booking.OwnerID) {
		// The hold lapsed while the charge was in flight. The charge must not
		// outlive the lost units: refund, cancel, and surface the race.
		if refundErr := processor.Refund(ctx, booking.ID, booking.TotalAmount); refundErr != nil {
			s.cfg.Log.Error("SETTLEMENT INCONSISTENCY: refund failed after lost hold, manual intervention required",
				"booking_id", booking.ID,
				"amount", booking.TotalAmount,
				"error", refundErr,
			)
		} else {
			s.cfg.Log.Error("Settlement inconsistency: hold expired mid-payment, charge refunded",
				"booking_id", booking.ID,
				"amount", booking.TotalAmount,
			)
		}
		booking.Status = model.BookingCancelled
		if err := s.repo.Update(ctx, booking); err != nil {
			s.cfg.Log.Error("Failed to persist cancelled booking", "booking_id", booking.ID, "error", err)
		}
		s.publisher.SettlementInconsistency(ctx, booking)
		s.publisher.BookingCancelled(ctx, booking)
		return booking, apperrors.SettlementInconsistency("Hold expired during payment; the charge was refunded")
	}

	now := s.clk.Now()
	booking.Status = model.BookingConfirmed
	booking.SettledAt = &now
	if err := s.repo.Update(ctx, booking); err != nil {
		return nil, apperrors.Internal("Failed to persist confirmed booking", err)
	}

	s.publisher.BookingConfirmed(ctx, booking)
	s.cfg.Log.Info("Booking confirmed",
		"id", booking.ID,
		"group_id", booking.GroupID,
		"total_amount", booking.TotalAmount,
	)
	return booking, nil
}

func (s *bookingService) Cancel(ctx context.Context, bookingID, ownerID string) (*model.Booking, error) {
	unlock := s.lockBooking(bookingID)
	defer unlock()

	booking, err := s.findOwned(ctx, bookingID, ownerID)
	if err != nil {
		return nil, err
	}
	if booking.Status.Terminal() {
		// Cancelling a terminal booking returns it unchanged.
		return booking, nil
	}

	s.table.Release(booking.GroupID, booking.UnitIDs, booking.OwnerID)
	booking.Status = model.BookingCancelled
	if err := s.repo.Update(ctx, booking); err != nil {
		return nil, apperrors.Internal("Failed to persist cancelled booking", err)
	}

	s.publisher.BookingCancelled(ctx, booking)
	s.cfg.Log.Info("Booking cancelled", "id", booking.ID, "owner_id", booking.OwnerID)
	return booking, nil
}

func (s *bookingService) GetBooking(ctx context.Context, bookingID string) (*model.Booking, error) {
	if bookingID == "" {
		return nil, apperrors.InvalidInput("Booking ID cannot be empty")
	}
	booking, err := s.repo.FindByID(ctx, bookingID)
	if err != nil {
		if errors.Is(err, bookingserrors.ErrNotFound) {
			return nil, apperrors.NotFoundWithID("Booking", bookingID)
		}
		return nil, apperrors.Internal("Failed to retrieve booking", err)
	}
	return booking, nil
}

func (s *bookingService) AvailableUnits(ctx context.Context, groupID string) ([]string, error) {
	if err := s.ensureGroup(ctx, groupID); err != nil {
		return nil, err
	}
	return s.table.SnapshotAvailable(groupID), nil
}

func (s *bookingService) LockedUnits(ctx context.Context, groupID string) ([]string, error) {
	if err := s.ensureGroup(ctx, groupID); err != nil {
		return nil, err
	}
	return s.table.SnapshotLocked(groupID), nil
}

func (s *bookingService) UnitStates(ctx context.Context, groupID string) (map[string]model.UnitState, error) {
	if err := s.ensureGroup(ctx, groupID); err != nil {
		return nil, err
	}
	return s.table.SnapshotStates(groupID), nil
}

// --- Helpers ---

func (s *bookingService) validate(req any) error {
	if err := s.validator.Validate(req); err != nil {
		s.cfg.Log.Warn("Request validation failed", "error", err)
		return apperrors.Validation("Request validation failed", map[string]any{"error": err.Error()})
	}
	return nil
}

// ensureGroup seeds the lock table with the group's units from the catalog.
func (s *bookingService) ensureGroup(ctx context.Context, groupID string) error {
	if s.table.HasGroup(groupID) {
		return nil
	}
	units, err := s.catalog.UnitsOf(ctx, groupID)
	if err != nil {
		if errors.Is(err, catalog.ErrShowNotFound) {
			return apperrors.NotFoundWithID("Group", groupID)
		}
		return apperrors.Internal("Failed to load group from catalog", err)
	}
	unitIDs := make([]string, len(units))
	for i, u := range units {
		unitIDs[i] = u.UnitID
	}
	s.table.EnsureGroup(groupID, unitIDs)
	return nil
}

// totalAmount freezes the price of the booking at creation time.
func (s *bookingService) totalAmount(ctx context.Context, groupID string, unitIDs []string) (int64, error) {
	var total int64
	for _, unitID := range unitIDs {
		price, err := s.catalog.UnitPrice(ctx, groupID, unitID)
		if err != nil {
			if errors.Is(err, catalog.ErrUnitNotFound) {
				return 0, apperrors.InvalidInput("Unknown unit: " + unitID)
			}
			return 0, apperrors.Internal("Failed to look up unit price", err)
		}
		total += price
	}
	return total, nil
}

func (s *bookingService) findOwned(ctx context.Context, bookingID, ownerID string) (*model.Booking, error) {
	if bookingID == "" || ownerID == "" {
		return nil, apperrors.InvalidInput("Booking ID and owner ID are required")
	}
	booking, err := s.repo.FindByID(ctx, bookingID)
	if err != nil {
		if errors.Is(err, bookingserrors.ErrNotFound) {
			return nil, apperrors.NotFoundWithID("Booking", bookingID)
		}
		return nil, apperrors.Internal("Failed to retrieve booking", err)
	}
	if booking.OwnerID != ownerID {
		return nil, apperrors.Forbidden("Booking belongs to a different owner")
	}
	return booking, nil
}

// cancelAfterPaymentFailure is the automatic compensation for a failed
// charge: the caller never has to remember to clean up.
func (s *bookingService) cancelAfterPaymentFailure(ctx context.Context, booking *model.Booking) {
	s.table.Release(booking.GroupID, booking.UnitIDs, booking.OwnerID)
	booking.Status = model.BookingCancelled
	if err := s.repo.Update(ctx, booking); err != nil {
		s.cfg.Log.Error("Failed to persist cancelled booking", "booking_id", booking.ID, "error", err)
	}
	s.publisher.BookingCancelled(ctx, booking)
	s.cfg.Log.Warn("Booking cancelled after payment failure",
		"id", booking.ID,
		"amount", booking.TotalAmount,
	)
}

// lockBooking serializes settle/cancel for one booking id.
func (s *bookingService) lockBooking(bookingID string) func() {
	m, _ := s.settleLocks.LoadOrStore(bookingID, &sync.Mutex{})
	mu := m.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (s *bookingService) mapTableError(err error, groupID string) error {
	switch {
	case errors.Is(err, inventory.ErrUnknownGroup):
		return apperrors.NotFoundWithID("Group", groupID)
	case errors.Is(err, inventory.ErrNoUnits), errors.Is(err, inventory.ErrInvalidTTL):
		return apperrors.InvalidInput(err.Error())
	default:
		return apperrors.Internal("Lock table failure", err)
	}
}

// missingFrom returns the requested units that are not in owned.
func missingFrom(requested, owned []string) []string {
	ownedSet := make(map[string]struct{}, len(owned))
	for _, id := range owned {
		ownedSet[id] = struct{}{}
	}
	var missing []string
	for _, id := range requested {
		if _, ok := ownedSet[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}
