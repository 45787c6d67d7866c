package outbox

import (
	"time"

	"github.com/google/uuid"
)

type Entry struct {
	ID            uuid.UUID
	AggregateType string
	AggregateID   uuid.UUID
	EventType     string
	Payload       map[string]any
	Status        Status
	RetryCount    int
	MaxRetries    int
	CreatedAt     time.Time
	PublishedAt   *time.Time
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusPublished Status = "published"
	StatusFailed    Status = "failed"
)

const defaultMaxRetries = 5

func NewEntry(aggregateType string, aggregateID uuid.UUID, eventType string, payload map[string]any) *Entry {
	return &Entry{
		ID:            uuid.New(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       payload,
		Status:        StatusPending,
		MaxRetries:    defaultMaxRetries,
		CreatedAt:     time.Now().UTC(),
	}
}

// CanRetry reports whether a failed publish will be attempted again.
func (e *Entry) CanRetry() bool {
	return e.RetryCount+1 < e.MaxRetries
}
