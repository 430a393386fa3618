package model

import "time"

type BookingStatus string

const (
	BookingPending   BookingStatus = "PENDING"
	BookingConfirmed BookingStatus = "CONFIRMED"
	BookingCancelled BookingStatus = "CANCELLED"
)

// Terminal reports whether no further transition may leave this status.
func (s BookingStatus) Terminal() bool {
	return s == BookingConfirmed || s == BookingCancelled
}

type PaymentMethod string

const (
	PaymentCard   PaymentMethod = "card"
	PaymentWallet PaymentMethod = "wallet"
	PaymentUPI    PaymentMethod = "upi"
)

// Booking binds a granted lock to a settlement attempt. TotalAmount is frozen
// at creation time; later catalog price changes never touch it.
type Booking struct {
	ID          string        `json:"id" bson:"_id"`
	OwnerID     string        `json:"owner_id" bson:"owner_id"`
	GroupID     string        `json:"group_id" bson:"group_id"`
	UnitIDs     []string      `json:"unit_ids" bson:"unit_ids"`
	TotalAmount int64         `json:"total_amount" bson:"total_amount"`
	Status      BookingStatus `json:"status" bson:"status"`
	CreatedAt   time.Time     `json:"created_at" bson:"created_at"`
	SettledAt   *time.Time    `json:"settled_at,omitempty" bson:"settled_at,omitempty"`
}

// AcquireHoldRequest is the payload for taking (or renewing) a hold.
type AcquireHoldRequest struct {
	GroupID string   `json:"group_id" validate:"required,resource_id"`
	UnitIDs []string `json:"unit_ids" validate:"required,min=1,max=50,unique,dive,resource_id"`
	OwnerID string   `json:"owner_id" validate:"required,resource_id"`
	TTLMs   int64    `json:"ttl_ms" validate:"required,gt=0,lte=3600000"`
}

// ReleaseHoldRequest is the payload for giving a hold back.
type ReleaseHoldRequest struct {
	GroupID string   `json:"group_id" validate:"required,resource_id"`
	UnitIDs []string `json:"unit_ids" validate:"required,min=1,max=50,unique,dive,resource_id"`
	OwnerID string   `json:"owner_id" validate:"required,resource_id"`
}

// CreateBookingRequest turns an existing hold into a PENDING booking.
type CreateBookingRequest struct {
	OwnerID string   `json:"owner_id" validate:"required,resource_id"`
	GroupID string   `json:"group_id" validate:"required,resource_id"`
	UnitIDs []string `json:"unit_ids" validate:"required,min=1,max=50,unique,dive,resource_id"`
}

// SettleBookingRequest chooses who pays and how.
type SettleBookingRequest struct {
	OwnerID string        `json:"owner_id" validate:"required,resource_id"`
	Method  PaymentMethod `json:"method" validate:"required,oneof=card wallet upi"`
}

// CancelBookingRequest abandons a pending booking.
type CancelBookingRequest struct {
	OwnerID string `json:"owner_id" validate:"required,resource_id"`
}
