package port

import (
	"context"

	"github.com/rl1809/event-inventory/internal/core/domain"
)

// EventRecords is the transaction-scoped view of events.
type EventRecords interface {
	Get(ctx context.Context, eventID string) (domain.Event, error)

	// SetAssignments replaces the event's embedded assignment list
	SetAssignments(ctx context.Context, eventID string, assignments []domain.EventAssignment) error

	// Delete removes the event only while its assignment list is empty and
	// returns domain.ErrEventHasInventory otherwise
	Delete(ctx context.Context, eventID string) error
}

type EventRepository interface {
	CreateEvent(ctx context.Context, event domain.Event) error
	GetEvent(ctx context.Context, eventID string) (domain.Event, error)
	ListEvents(ctx context.Context) ([]domain.Event, error)

	// UpdateEventDetails rewrites schedule, client and location fields, never the assignment list
	UpdateEventDetails(ctx context.Context, eventID string, details domain.EventDetails) (domain.Event, error)
}
