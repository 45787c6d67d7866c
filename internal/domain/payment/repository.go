package payment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for payment attempt persistence
type Repository interface {
	// Create inserts a new attempt. Returns ErrDuplicateCharge if the charge is already recorded.
	Create(ctx context.Context, attempt *Attempt) error

	// GetByID retrieves an attempt by ID
	GetByID(ctx context.Context, id uuid.UUID) (*Attempt, error)

	// GetByChargeID retrieves an attempt by the processor's charge reference
	GetByChargeID(ctx context.Context, chargeID string) (*Attempt, error)

	// Transition applies t only if the stored status equals t.From and
	// returns the number of rows changed (0 or 1).
	Transition(ctx context.Context, id uuid.UUID, t Transition) (int64, error)

	// ListStalePending lists pending attempts created before the cutoff
	ListStalePending(ctx context.Context, before time.Time, limit int) ([]*Attempt, error)

	// ListPaidWithoutEnrollment lists paid attempts whose (user, course) has no enrollment
	ListPaidWithoutEnrollment(ctx context.Context, limit int) ([]*Attempt, error)

	// AddEvent adds an attempt event for audit trail
	AddEvent(ctx context.Context, event *Event) error

	// LogCallback stores a raw processor callback before it is interpreted
	LogCallback(ctx context.Context, cb *Callback) error
}

// Event represents an event in the attempt lifecycle
type Event struct {
	ID        uuid.UUID
	AttemptID uuid.UUID
	EventType string
	EventData map[string]any
	CreatedAt time.Time
}

// NewEvent creates an audit event for an attempt.
func NewEvent(attemptID uuid.UUID, eventType string, data map[string]any) *Event {
	return &Event{
		ID:        uuid.New(),
		AttemptID: attemptID,
		EventType: eventType,
		EventData: data,
		CreatedAt: time.Now().UTC(),
	}
}

// Callback is the raw audit record of one inbound processor callback.
type Callback struct {
	ID         uuid.UUID
	Processor  string
	Signature  string
	Payload    []byte
	ReceivedAt time.Time
}
