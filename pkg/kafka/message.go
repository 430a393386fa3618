package kafka

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Message is a Kafka message plus the metadata headers shared by every event
// the service emits.
type Message struct {
	Key       string            // Partition key (booking_id or group_id)
	Value     []byte            // JSON-encoded payload
	Headers   map[string]string // Message headers
	Timestamp time.Time
}

const (
	HeaderEventID   = "event-id"
	HeaderEventType = "event-type"
	HeaderSource    = "source"
	HeaderTimestamp = "timestamp"
)

// NewEventMessage builds a message for a lifecycle event. The payload is
// JSON-encoded; a uuid event id is stamped automatically.
func NewEventMessage(key, eventType, source string, payload any) (Message, error) {
	value, err := json.Marshal(payload)
	if err != nil {
		return Message{}, err
	}

	now := time.Now().UTC()
	return Message{
		Key:   key,
		Value: value,
		Headers: map[string]string{
			HeaderEventID:   uuid.New().String(),
			HeaderEventType: eventType,
			HeaderSource:    source,
			HeaderTimestamp: now.Format(time.RFC3339),
		},
		Timestamp: now,
	}, nil
}

// DecodeValue decodes the message value into the provided struct
func (m *Message) DecodeValue(v any) error {
	return json.Unmarshal(m.Value, v)
}

// GetHeader retrieves a header value
func (m *Message) GetHeader(key string) (string, bool) {
	value, exists := m.Headers[key]
	return value, exists
}
