package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rl1809/event-inventory/internal/core/domain"
	"github.com/rl1809/event-inventory/internal/port"
)

// EventService manages the event catalogue. Inventory on an event is only
// ever changed through the ReservationService.
type EventService struct {
	events       port.EventRepository
	reservations *ReservationService
	logger       *zap.Logger
	location     *time.Location
	now          func() time.Time
}

func NewEventService(events port.EventRepository, reservations *ReservationService, logger *zap.Logger, location *time.Location) *EventService {
	if location == nil {
		location = time.UTC
	}
	return &EventService{
		events:       events,
		reservations: reservations,
		logger:       logger,
		location:     location,
		now:          time.Now,
	}
}

func (s *EventService) Location() *time.Location {
	return s.location
}

func (s *EventService) Create(ctx context.Context, ownerUID string, details domain.EventDetails) (domain.Event, error) {
	details = details.Normalize()
	if err := details.Validate(s.now().In(s.location)); err != nil {
		return domain.Event{}, err
	}

	now := s.now().UTC()
	event := domain.Event{
		ID:           uuid.NewString(),
		OwnerUID:     ownerUID,
		EventDetails: details,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.events.CreateEvent(ctx, event); err != nil {
		return domain.Event{}, fmt.Errorf("create event: %w", err)
	}

	s.logger.Info("event created",
		zap.String("event_id", event.ID),
		zap.String("owner_uid", ownerUID),
		zap.String("date", details.Date),
	)
	return event, nil
}

func (s *EventService) Get(ctx context.Context, eventID string) (domain.Event, error) {
	return s.events.GetEvent(ctx, eventID)
}

func (s *EventService) List(ctx context.Context) ([]domain.Event, error) {
	events, err := s.events.ListEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return events, nil
}

func (s *EventService) Update(ctx context.Context, eventID string, details domain.EventDetails) (domain.Event, error) {
	details = details.Normalize()
	if err := details.Validate(s.now().In(s.location)); err != nil {
		return domain.Event{}, err
	}

	event, err := s.events.UpdateEventDetails(ctx, eventID, details)
	if err != nil {
		return domain.Event{}, fmt.Errorf("update event: %w", err)
	}

	s.logger.Info("event updated", zap.String("event_id", eventID))
	return event, nil
}

// Delete returns the event's assigned inventory to stock and removes the event
// in the same transaction.
func (s *EventService) Delete(ctx context.Context, eventID string) error {
	result, err := s.reservations.ReleaseAndDelete(ctx, eventID)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}

	s.logger.Info("event deleted",
		zap.String("event_id", eventID),
		zap.Int("released_items", len(result.Released)),
	)
	return nil
}
