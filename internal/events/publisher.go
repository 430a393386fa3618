package events

import (
	"context"

	"boxoffice/pkg/kafka"
	"boxoffice/pkg/logger"
	"boxoffice/pkg/model"
)

const source = "reservations"

// Event types emitted on the booking lifecycle topic.
const (
	TypeHoldAcquired            = "hold.acquired"
	TypeHoldReleased            = "hold.released"
	TypeBookingCreated          = "booking.created"
	TypeBookingConfirmed        = "booking.confirmed"
	TypeBookingCancelled        = "booking.cancelled"
	TypeSettlementInconsistency = "booking.settlement_inconsistency"
)

// Publisher emits booking lifecycle events. Publishing is best-effort:
// failures are logged, never propagated into the booking flow.
type Publisher interface {
	HoldAcquired(ctx context.Context, lock model.Lock)
	HoldReleased(ctx context.Context, groupID, ownerID string, unitIDs []string)
	BookingCreated(ctx context.Context, booking *model.Booking)
	BookingConfirmed(ctx context.Context, booking *model.Booking)
	BookingCancelled(ctx context.Context, booking *model.Booking)
	SettlementInconsistency(ctx context.Context, booking *model.Booking)
}

type kafkaPublisher struct {
	producer *kafka.Producer
	log      *logger.Logger
}

func NewKafkaPublisher(producer *kafka.Producer, log *logger.Logger) Publisher {
	return &kafkaPublisher{producer: producer, log: log}
}

func (p *kafkaPublisher) publish(ctx context.Context, key, eventType string, payload any) {
	msg, err := kafka.NewEventMessage(key, eventType, source, payload)
	if err != nil {
		p.log.Error("Failed to encode event", "event_type", eventType, "error", err)
		return
	}
	if err := p.producer.Publish(ctx, msg); err != nil {
		p.log.Error("Failed to publish event", "event_type", eventType, "key", key, "error", err)
	}
}

type holdEvent struct {
	GroupID string   `json:"group_id"`
	OwnerID string   `json:"owner_id"`
	UnitIDs []string `json:"unit_ids"`
}

func (p *kafkaPublisher) HoldAcquired(ctx context.Context, lock model.Lock) {
	p.publish(ctx, lock.GroupID, TypeHoldAcquired, holdEvent{
		GroupID: lock.GroupID,
		OwnerID: lock.OwnerID,
		UnitIDs: lock.UnitIDs,
	})
}

func (p *kafkaPublisher) HoldReleased(ctx context.Context, groupID, ownerID string, unitIDs []string) {
	p.publish(ctx, groupID, TypeHoldReleased, holdEvent{
		GroupID: groupID,
		OwnerID: ownerID,
		UnitIDs: unitIDs,
	})
}

func (p *kafkaPublisher) BookingCreated(ctx context.Context, booking *model.Booking) {
	p.publish(ctx, booking.ID, TypeBookingCreated, booking)
}

func (p *kafkaPublisher) BookingConfirmed(ctx context.Context, booking *model.Booking) {
	p.publish(ctx, booking.ID, TypeBookingConfirmed, booking)
}

func (p *kafkaPublisher) BookingCancelled(ctx context.Context, booking *model.Booking) {
	p.publish(ctx, booking.ID, TypeBookingCancelled, booking)
}

func (p *kafkaPublisher) SettlementInconsistency(ctx context.Context, booking *model.Booking) {
	p.publish(ctx, booking.ID, TypeSettlementInconsistency, booking)
}

// Noop is the publisher used when no brokers are configured.
type Noop struct{}

func (Noop) HoldAcquired(ctx context.Context, lock model.Lock)                           {}
func (Noop) HoldReleased(ctx context.Context, groupID, ownerID string, unitIDs []string) {}
func (Noop) BookingCreated(ctx context.Context, booking *model.Booking)                  {}
func (Noop) BookingConfirmed(ctx context.Context, booking *model.Booking)                {}
func (Noop) BookingCancelled(ctx context.Context, booking *model.Booking)                {}
func (Noop) SettlementInconsistency(ctx context.Context, booking *model.Booking)         {}
