package storage

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap/zaptest"

	"github.com/rl1809/event-inventory/internal/core/domain"
	"github.com/rl1809/event-inventory/internal/core/service"
	"github.com/rl1809/event-inventory/internal/port"
)

// runStoreContract exercises behaviour every backend must share. Ids are
// random so the suite can run against long-lived databases.
func runStoreContract(t *testing.T, open func(t *testing.T) port.Store) {
	t.Run("Items", func(t *testing.T) { testItems(t, open(t)) })
	t.Run("AdjustNeverNegative", func(t *testing.T) { testAdjustNeverNegative(t, open(t)) })
	t.Run("RollbackOnError", func(t *testing.T) { testRollbackOnError(t, open(t)) })
	t.Run("Events", func(t *testing.T) { testEvents(t, open(t)) })
	t.Run("Movements", func(t *testing.T) { testMovements(t, open(t)) })
	t.Run("ConcurrentOversell", func(t *testing.T) { testConcurrentOversell(t, open(t)) })
	t.Run("ConcurrentSingleUnits", func(t *testing.T) { testConcurrentSingleUnits(t, open(t)) })
	t.Run("DeleteRacesReserve", func(t *testing.T) { testDeleteRacesReserve(t, open(t)) })
}

func uniqueID(prefix string) string {
	return prefix + "-" + uuid.NewString()[:8]
}

func mustCreateItem(t *testing.T, store port.Store, id string, total int) {
	t.Helper()
	err := store.CreateItem(context.Background(), domain.StockItem{ID: id, Name: id, Category: "audio", TotalQuantity: total})
	if err != nil {
		t.Fatalf("create item %s: %v", id, err)
	}
}

func mustCreateEvent(t *testing.T, store port.Store) domain.Event {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Millisecond)
	ev := domain.Event{
		ID:       uniqueID("ev"),
		OwnerUID: "staff-1",
		EventDetails: domain.EventDetails{
			Service:   "Alquiler de sonido",
			Date:      "2026-04-01",
			StartTime: "18:00",
			EndTime:   "23:30",
			City:      "Tuluá",
			Client:    domain.Client{Name: "Ana", Phone: "3001234567", Email: "ana@example.com"},
			Location:  &domain.GeoPoint{Lat: 4.0847, Lng: -76.1954},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := store.CreateEvent(context.Background(), ev); err != nil {
		t.Fatalf("create event: %v", err)
	}
	return ev
}

func newContractReservations(t *testing.T, store port.Store) *service.ReservationService {
	return service.NewReservationService(store, store, zaptest.NewLogger(t), noop.NewTracerProvider().Tracer("test"))
}

func testItems(t *testing.T, store port.Store) {
	ctx := context.Background()
	id := uniqueID("speaker")
	mustCreateItem(t, store, id, 5)

	err := store.CreateItem(ctx, domain.StockItem{ID: id, Name: "again", TotalQuantity: 1})
	if !errors.Is(err, domain.ErrItemExists) {
		t.Errorf("expected ErrItemExists, got: %v", err)
	}

	item, err := store.GetItem(ctx, id)
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if item.TotalQuantity != 5 || item.AvailableQuantity != 5 {
		t.Errorf("expected 5/5, got %d/%d", item.AvailableQuantity, item.TotalQuantity)
	}

	if _, err := store.GetItem(ctx, uniqueID("missing")); !errors.Is(err, domain.ErrItemNotFound) {
		t.Errorf("expected ErrItemNotFound, got: %v", err)
	}

	items, err := store.ListItems(ctx)
	if err != nil {
		t.Fatalf("list items: %v", err)
	}
	found := false
	for _, it := range items {
		if it.ID == id {
			found = true
		}
	}
	if !found {
		t.Errorf("expected %s in list", id)
	}
}

func testAdjustNeverNegative(t *testing.T, store port.Store) {
	ctx := context.Background()
	id := uniqueID("lights")
	mustCreateItem(t, store, id, 5)

	err := store.WithinTx(ctx, func(ctx context.Context, scope port.TxScope) error {
		return scope.Stock().Adjust(ctx, id, -3)
	})
	if err != nil {
		t.Fatalf("adjust: %v", err)
	}

	err = store.WithinTx(ctx, func(ctx context.Context, scope port.TxScope) error {
		return scope.Stock().Adjust(ctx, id, -3)
	})
	if !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got: %v", err)
	}

	err = store.WithinTx(ctx, func(ctx context.Context, scope port.TxScope) error {
		return scope.Stock().Adjust(ctx, uniqueID("ghost"), 1)
	})
	if !errors.Is(err, domain.ErrItemNotFound) {
		t.Fatalf("expected ErrItemNotFound, got: %v", err)
	}

	item, _ := store.GetItem(ctx, id)
	if item.AvailableQuantity != 2 {
		t.Errorf("expected 2 available, got %d", item.AvailableQuantity)
	}
}

func testRollbackOnError(t *testing.T, store port.Store) {
	ctx := context.Background()
	id := uniqueID("chairs")
	mustCreateItem(t, store, id, 10)
	ev := mustCreateEvent(t, store)
	boom := errors.New("boom")

	err := store.WithinTx(ctx, func(ctx context.Context, scope port.TxScope) error {
		if err := scope.Stock().Adjust(ctx, id, -4); err != nil {
			return err
		}
		if err := scope.Events().SetAssignments(ctx, ev.ID, []domain.EventAssignment{{ItemID: id, Quantity: 4}}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got: %v", err)
	}

	item, _ := store.GetItem(ctx, id)
	if item.AvailableQuantity != 10 {
		t.Errorf("expected rollback to keep 10 available, got %d", item.AvailableQuantity)
	}
	got, _ := store.GetEvent(ctx, ev.ID)
	if len(got.AssignedInventory) != 0 {
		t.Errorf("expected no assignments after rollback, got %+v", got.AssignedInventory)
	}
}

func testEvents(t *testing.T, store port.Store) {
	ctx := context.Background()
	ev := mustCreateEvent(t, store)

	got, err := store.GetEvent(ctx, ev.ID)
	if err != nil {
		t.Fatalf("get event: %v", err)
	}
	if got.Client.Email != "ana@example.com" || got.Location == nil || got.Location.Lat != 4.0847 {
		t.Errorf("unexpected event: %+v", got)
	}
	if !got.CreatedAt.Equal(ev.CreatedAt) {
		t.Errorf("expected created_at %v, got %v", ev.CreatedAt, got.CreatedAt)
	}

	err = store.WithinTx(ctx, func(ctx context.Context, scope port.TxScope) error {
		return scope.Events().SetAssignments(ctx, ev.ID, []domain.EventAssignment{{ItemID: "x", Quantity: 2}})
	})
	if err != nil {
		t.Fatalf("set assignments: %v", err)
	}

	details := ev.EventDetails
	details.EndTime = "02:00"
	details.Location = nil
	updated, err := store.UpdateEventDetails(ctx, ev.ID, details)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.EndTime != "02:00" || updated.Location != nil {
		t.Errorf("update not applied: %+v", updated)
	}
	if len(updated.AssignedInventory) != 1 || updated.AssignedInventory[0].Quantity != 2 {
		t.Errorf("update touched assignments: %+v", updated.AssignedInventory)
	}

	if _, err := store.UpdateEventDetails(ctx, uniqueID("missing"), details); !errors.Is(err, domain.ErrEventNotFound) {
		t.Errorf("expected ErrEventNotFound on update, got: %v", err)
	}

	err = store.WithinTx(ctx, func(ctx context.Context, scope port.TxScope) error {
		return scope.Events().SetAssignments(ctx, ev.ID, []domain.EventAssignment{{ItemID: "x", Quantity: 0}})
	})
	if err == nil {
		t.Error("expected invalid assignment list to be rejected")
	}

	events, err := store.ListEvents(ctx)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) == 0 {
		t.Error("expected at least one event")
	}

	deleteEvent := func() error {
		return store.WithinTx(ctx, func(ctx context.Context, scope port.TxScope) error {
			return scope.Events().Delete(ctx, ev.ID)
		})
	}
	if err := deleteEvent(); !errors.Is(err, domain.ErrEventHasInventory) {
		t.Fatalf("expected ErrEventHasInventory while assigned, got: %v", err)
	}
	if _, err := store.GetEvent(ctx, ev.ID); err != nil {
		t.Fatalf("expected event to survive refused delete: %v", err)
	}

	err = store.WithinTx(ctx, func(ctx context.Context, scope port.TxScope) error {
		if err := scope.Events().SetAssignments(ctx, ev.ID, nil); err != nil {
			return err
		}
		return scope.Events().Delete(ctx, ev.ID)
	})
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := deleteEvent(); !errors.Is(err, domain.ErrEventNotFound) {
		t.Errorf("expected ErrEventNotFound on second delete, got: %v", err)
	}
}

func testMovements(t *testing.T, store port.Store) {
	ctx := context.Background()
	item := uniqueID("fog")
	eventID := uniqueID("ev")
	base := time.Now().UTC().Truncate(time.Millisecond)

	records := []domain.MovementRecord{
		{ID: uuid.NewString(), ItemID: item, QuantityMoved: 3, MovementType: domain.MovementTypeAssign, EventID: eventID, Timestamp: base},
		{ID: uuid.NewString(), ItemID: item, QuantityMoved: 2, MovementType: domain.MovementTypeAssign, EventID: uniqueID("ev"), Timestamp: base.Add(time.Second)},
		{ID: uuid.NewString(), ItemID: item, QuantityMoved: 3, MovementType: domain.MovementTypeRelease, EventID: eventID, Timestamp: base.Add(2 * time.Second)},
	}
	for _, r := range records {
		if err := store.Append(ctx, r); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if err := store.Append(ctx, domain.MovementRecord{ID: uuid.NewString(), ItemID: item, QuantityMoved: 1, MovementType: "transfer"}); err == nil {
		t.Error("expected unknown movement type to be rejected")
	}

	byItem, err := store.ListMovements(ctx, domain.MovementFilter{ItemID: item})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(byItem) != 3 {
		t.Fatalf("expected 3 movements, got %d", len(byItem))
	}
	if byItem[0].MovementType != domain.MovementTypeRelease {
		t.Errorf("expected newest first, got %+v", byItem[0])
	}

	byEvent, _ := store.ListMovements(ctx, domain.MovementFilter{ItemID: item, EventID: eventID})
	if len(byEvent) != 2 {
		t.Errorf("expected 2 movements for event, got %d", len(byEvent))
	}
	limited, _ := store.ListMovements(ctx, domain.MovementFilter{ItemID: item, Limit: 1})
	if len(limited) != 1 {
		t.Errorf("expected limit 1, got %d", len(limited))
	}

	totals, err := store.MovementTotals(ctx)
	if err != nil {
		t.Fatalf("totals: %v", err)
	}
	if got := totals[item]; got.Assigned != 5 || got.Released != 3 {
		t.Errorf("expected 5 assigned 3 released, got %+v", got)
	}
}

func testConcurrentOversell(t *testing.T, store port.Store) {
	ctx := context.Background()
	item := uniqueID("sound")
	mustCreateItem(t, store, item, 5)
	first := mustCreateEvent(t, store)
	second := mustCreateEvent(t, store)
	reservations := newContractReservations(t, store)

	var wg sync.WaitGroup
	var succeeded atomic.Int32
	for _, ev := range []domain.Event{first, second} {
		wg.Add(1)
		go func(eventID string) {
			defer wg.Done()
			_, err := reservations.Reserve(ctx, eventID, map[string]int{item: 3})
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, domain.ErrInsufficientStock):
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(ev.ID)
	}
	wg.Wait()

	if succeeded.Load() != 1 {
		t.Fatalf("expected exactly one reservation, got %d", succeeded.Load())
	}
	got, _ := store.GetItem(ctx, item)
	if got.AvailableQuantity != 2 {
		t.Errorf("expected 2 available, got %d", got.AvailableQuantity)
	}
}

func testConcurrentSingleUnits(t *testing.T, store port.Store) {
	ctx := context.Background()
	item := uniqueID("tables")
	mustCreateItem(t, store, item, 10)
	ev := mustCreateEvent(t, store)
	reservations := newContractReservations(t, store)

	var wg sync.WaitGroup
	var succeeded atomic.Int32
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := reservations.Reserve(ctx, ev.ID, map[string]int{item: 1}); err == nil {
				succeeded.Add(1)
			} else if !errors.Is(err, domain.ErrInsufficientStock) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if succeeded.Load() != 10 {
		t.Errorf("expected 10 successes, got %d", succeeded.Load())
	}
	got, _ := store.GetItem(ctx, item)
	if got.AvailableQuantity != 0 {
		t.Errorf("expected 0 available, got %d", got.AvailableQuantity)
	}
	stored, _ := store.GetEvent(ctx, ev.ID)
	if stored.ReservedQuantity(item) != 10 {
		t.Errorf("expected 10 assigned, got %d", stored.ReservedQuantity(item))
	}
}

func testDeleteRacesReserve(t *testing.T, store port.Store) {
	ctx := context.Background()
	item := uniqueID("chairs")
	mustCreateItem(t, store, item, 40)
	ev := mustCreateEvent(t, store)
	reservations := newContractReservations(t, store)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := reservations.Reserve(ctx, ev.ID, map[string]int{item: 2})
			if err != nil && !errors.Is(err, domain.ErrEventNotFound) && !errors.Is(err, domain.ErrTransactionConflict) {
				t.Errorf("unexpected reserve error: %v", err)
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for attempt := 0; attempt < 5; attempt++ {
			_, err := reservations.ReleaseAndDelete(ctx, ev.ID)
			if err == nil {
				return
			}
			if !errors.Is(err, domain.ErrTransactionConflict) {
				t.Errorf("delete: %v", err)
				return
			}
		}
		t.Error("delete kept conflicting")
	}()
	wg.Wait()

	if _, err := store.GetEvent(ctx, ev.ID); !errors.Is(err, domain.ErrEventNotFound) {
		t.Fatalf("expected event deleted, got: %v", err)
	}
	got, _ := store.GetItem(ctx, item)
	if got.AvailableQuantity != 40 {
		t.Errorf("expected all 40 back in stock, got %d", got.AvailableQuantity)
	}
}
