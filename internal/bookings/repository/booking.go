package repository

import (
	"context"
	"sync"

	bookingserrors "boxoffice/internal/bookings/errors"
	"boxoffice/pkg/model"
)

// BookingRepository stores bookings. The engine does not promise durability;
// the in-memory implementation is the reference backend.
type BookingRepository interface {
	Create(ctx context.Context, booking *model.Booking) error
	FindByID(ctx context.Context, id string) (*model.Booking, error)
	Update(ctx context.Context, booking *model.Booking) error
}

type memoryBookingRepository struct {
	mu       sync.RWMutex
	bookings map[string]model.Booking
}

func NewMemoryBookingRepository() BookingRepository {
	return &memoryBookingRepository{
		bookings: make(map[string]model.Booking),
	}
}

func (r *memoryBookingRepository) Create(ctx context.Context, booking *model.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bookings[booking.ID] = cloneBooking(booking)
	return nil
}

func (r *memoryBookingRepository) FindByID(ctx context.Context, id string) (*model.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	booking, ok := r.bookings[id]
	if !ok {
		return nil, bookingserrors.ErrNotFound
	}
	copy := cloneBooking(&booking)
	return &copy, nil
}

func (r *memoryBookingRepository) Update(ctx context.Context, booking *model.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.bookings[booking.ID]; !ok {
		return bookingserrors.ErrNotFound
	}
	r.bookings[booking.ID] = cloneBooking(booking)
	return nil
}

// cloneBooking copies a booking so callers never share slices with the store.
func cloneBooking(b *model.Booking) model.Booking {
	clone := *b
	clone.UnitIDs = append([]string(nil), b.UnitIDs...)
	if b.SettledAt != nil {
		settledAt := *b.SettledAt
		clone.SettledAt = &settledAt
	}
	return clone
}
