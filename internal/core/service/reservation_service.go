package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/rl1809/event-inventory/internal/core/domain"
	"github.com/rl1809/event-inventory/internal/port"
)

type ReserveResult struct {
	Assignments []domain.EventAssignment
	Items       []domain.StockItem
}

type ReleaseResult struct {
	Released         []domain.EventAssignment
	NothingToRelease bool
}

type ReservationService struct {
	tx        port.Transactor
	movements port.MovementLogger
	logger    *zap.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

func NewReservationService(tx port.Transactor, movements port.MovementLogger, logger *zap.Logger, tracer trace.Tracer) *ReservationService {
	return &ReservationService{
		tx:        tx,
		movements: movements,
		logger:    logger,
		tracer:    tracer,
		now:       time.Now,
	}
}

// Reserve decrements stock for every requested item and merges the
// quantities into the event's assignment list in one transaction.
func (s *ReservationService) Reserve(ctx context.Context, eventID string, requested map[string]int) (ReserveResult, error) {
	ctx, span := s.tracer.Start(ctx, "inventory.reserve")
	defer span.End()
	span.SetAttributes(
		attribute.String("event.id", eventID),
		attribute.Int("inventory.requested_items", len(requested)),
	)

	itemIDs, err := validateRequest(requested)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return ReserveResult{}, err
	}

	var result ReserveResult
	err = s.tx.WithinTx(ctx, func(ctx context.Context, scope port.TxScope) error {
		result = ReserveResult{}

		event, err := scope.Events().Get(ctx, eventID)
		if err != nil {
			return err
		}

		items := make([]domain.StockItem, 0, len(itemIDs))
		for _, id := range itemIDs {
			item, err := scope.Stock().Get(ctx, id)
			if err != nil {
				return err
			}
			quantity := requested[id]
			if quantity > item.AvailableQuantity {
				return fmt.Errorf("%w for %s: requested %d, available %d",
					domain.ErrInsufficientStock, item.Name, quantity, item.AvailableQuantity)
			}
			items = append(items, item)
		}

		for i, id := range itemIDs {
			if err := scope.Stock().Adjust(ctx, id, -requested[id]); err != nil {
				return err
			}
			items[i].AvailableQuantity -= requested[id]
		}

		merged := domain.MergeAssignments(event.AssignedInventory, requested)
		if err := scope.Events().SetAssignments(ctx, eventID, merged); err != nil {
			return err
		}

		result.Assignments = merged
		result.Items = items
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ReserveResult{}, err
	}

	now := s.now()
	for _, id := range itemIDs {
		s.appendMovement(ctx, domain.MovementRecord{
			ID:            uuid.NewString(),
			ItemID:        id,
			QuantityMoved: requested[id],
			MovementType:  domain.MovementTypeAssign,
			EventID:       eventID,
			Timestamp:     now,
		})
	}

	s.logger.Info("inventory reserved",
		zap.String("event_id", eventID),
		zap.Int("items", len(itemIDs)),
	)
	span.SetStatus(codes.Ok, "inventory reserved")
	return result, nil
}

// Release returns every assigned quantity to stock. Each item is released in
// its own transaction, so a retry after a partial failure only touches what
// is still listed on the event.
func (s *ReservationService) Release(ctx context.Context, eventID string) (ReleaseResult, error) {
	ctx, span := s.tracer.Start(ctx, "inventory.release")
	defer span.End()
	span.SetAttributes(attribute.String("event.id", eventID))

	var event domain.Event
	err := s.tx.WithinTx(ctx, func(ctx context.Context, scope port.TxScope) error {
		var err error
		event, err = scope.Events().Get(ctx, eventID)
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ReleaseResult{}, err
	}

	if len(event.AssignedInventory) == 0 {
		span.SetAttributes(attribute.Bool("inventory.nothing_to_release", true))
		return ReleaseResult{NothingToRelease: true}, nil
	}

	pending := make([]string, 0, len(event.AssignedInventory))
	for _, a := range event.AssignedInventory {
		pending = append(pending, a.ItemID)
	}
	sort.Strings(pending)

	var result ReleaseResult
	for _, itemID := range pending {
		released, ok, err := s.releaseItem(ctx, eventID, itemID)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return result, fmt.Errorf("release %s: %w", itemID, err)
		}
		if !ok {
			continue
		}

		result.Released = append(result.Released, released)
		s.appendMovement(ctx, domain.MovementRecord{
			ID:            uuid.NewString(),
			ItemID:        itemID,
			QuantityMoved: released.Quantity,
			MovementType:  domain.MovementTypeRelease,
			EventID:       eventID,
			Timestamp:     s.now(),
		})
	}

	if len(result.Released) == 0 {
		result.NothingToRelease = true
	}

	s.logger.Info("inventory released",
		zap.String("event_id", eventID),
		zap.Int("items", len(result.Released)),
	)
	span.SetStatus(codes.Ok, "inventory released")
	return result, nil
}

func (s *ReservationService) releaseItem(ctx context.Context, eventID, itemID string) (domain.EventAssignment, bool, error) {
	var (
		released domain.EventAssignment
		found    bool
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context, scope port.TxScope) error {
		found = false

		event, err := scope.Events().Get(ctx, eventID)
		if err != nil {
			return err
		}
		remaining, entry, ok := domain.WithoutAssignment(event.AssignedInventory, itemID)
		if !ok {
			return nil
		}
		if err := scope.Stock().Adjust(ctx, itemID, entry.Quantity); err != nil {
			return err
		}
		if err := scope.Events().SetAssignments(ctx, eventID, remaining); err != nil {
			return err
		}
		released, found = entry, true
		return nil
	})
	return released, found, err
}

// ReleaseAndDelete returns every assigned quantity to stock and removes the
// event in one transaction. A Reserve racing with it either commits first and
// is released here, or finds the event gone.
func (s *ReservationService) ReleaseAndDelete(ctx context.Context, eventID string) (ReleaseResult, error) {
	ctx, span := s.tracer.Start(ctx, "inventory.release_and_delete")
	defer span.End()
	span.SetAttributes(attribute.String("event.id", eventID))

	var result ReleaseResult
	err := s.tx.WithinTx(ctx, func(ctx context.Context, scope port.TxScope) error {
		result = ReleaseResult{}

		event, err := scope.Events().Get(ctx, eventID)
		if err != nil {
			return err
		}

		released := make([]domain.EventAssignment, len(event.AssignedInventory))
		copy(released, event.AssignedInventory)
		sort.Slice(released, func(i, j int) bool { return released[i].ItemID < released[j].ItemID })

		for _, a := range released {
			if err := scope.Stock().Adjust(ctx, a.ItemID, a.Quantity); err != nil {
				return fmt.Errorf("release %s: %w", a.ItemID, err)
			}
		}
		if len(released) > 0 {
			if err := scope.Events().SetAssignments(ctx, eventID, nil); err != nil {
				return err
			}
		}
		if err := scope.Events().Delete(ctx, eventID); err != nil {
			return err
		}

		result.Released = released
		result.NothingToRelease = len(released) == 0
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ReleaseResult{}, err
	}

	now := s.now()
	for _, a := range result.Released {
		s.appendMovement(ctx, domain.MovementRecord{
			ID:            uuid.NewString(),
			ItemID:        a.ItemID,
			QuantityMoved: a.Quantity,
			MovementType:  domain.MovementTypeRelease,
			EventID:       eventID,
			Timestamp:     now,
		})
	}

	span.SetAttributes(attribute.Int("inventory.released_items", len(result.Released)))
	span.SetStatus(codes.Ok, "event deleted")
	return result, nil
}

// appendMovement is best effort: the ledger has already committed.
func (s *ReservationService) appendMovement(ctx context.Context, record domain.MovementRecord) {
	if err := s.movements.Append(ctx, record); err != nil {
		s.logger.Error("failed to append movement record",
			zap.Error(err),
			zap.String("item_id", record.ItemID),
			zap.String("event_id", record.EventID),
			zap.String("movement_type", string(record.MovementType)),
			zap.Int("quantity", record.QuantityMoved),
		)
	}
}

func validateRequest(requested map[string]int) ([]string, error) {
	if len(requested) == 0 {
		return nil, fmt.Errorf("%w: no items requested", domain.ErrInvalidQuantity)
	}
	ids := make([]string, 0, len(requested))
	for id, quantity := range requested {
		if id == "" {
			return nil, fmt.Errorf("%w: empty item id", domain.ErrItemNotFound)
		}
		if quantity <= 0 {
			return nil, fmt.Errorf("%w for %s: %d", domain.ErrInvalidQuantity, id, quantity)
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
