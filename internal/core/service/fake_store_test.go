package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap/zaptest"

	"github.com/rl1809/event-inventory/internal/core/domain"
	"github.com/rl1809/event-inventory/internal/port"
)

// memStore serializes transactions with a mutex and commits a copy of the
// state only when the body succeeds.
type memStore struct {
	mu         sync.Mutex
	items      map[string]domain.StockItem
	events     map[string]domain.Event
	movements  []domain.MovementRecord
	appendErr  error
	txAttempts int
}

func newMemStore() *memStore {
	return &memStore{
		items:  make(map[string]domain.StockItem),
		events: make(map[string]domain.Event),
	}
}

func (m *memStore) addItem(id string, quantity int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[id] = domain.StockItem{ID: id, Name: id, TotalQuantity: quantity, AvailableQuantity: quantity}
}

func (m *memStore) addEvent(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[id] = domain.Event{ID: id}
}

func (m *memStore) available(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.items[id].AvailableQuantity
}

func (m *memStore) assignments(eventID string) []domain.EventAssignment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneAssignments(m.events[eventID].AssignedInventory)
}

func (m *memStore) movementCount(t domain.MovementType) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.movements {
		if r.MovementType == t {
			n++
		}
	}
	return n
}

func (m *memStore) WithinTx(ctx context.Context, fn func(ctx context.Context, scope port.TxScope) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txAttempts++

	scope := &memScope{items: make(map[string]domain.StockItem, len(m.items)), events: make(map[string]domain.Event, len(m.events))}
	for k, v := range m.items {
		scope.items[k] = v
	}
	for k, v := range m.events {
		v.AssignedInventory = cloneAssignments(v.AssignedInventory)
		scope.events[k] = v
	}

	if err := fn(ctx, scope); err != nil {
		return err
	}
	m.items, m.events = scope.items, scope.events
	return nil
}

func (m *memStore) Append(ctx context.Context, record domain.MovementRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return m.appendErr
	}
	m.movements = append(m.movements, record)
	return nil
}

func (m *memStore) ListMovements(ctx context.Context, filter domain.MovementFilter) ([]domain.MovementRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.MovementRecord
	for _, r := range m.movements {
		if filter.ItemID != "" && r.ItemID != filter.ItemID {
			continue
		}
		if filter.EventID != "" && r.EventID != filter.EventID {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (m *memStore) MovementTotals(ctx context.Context) (map[string]domain.MovementTotals, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	totals := make(map[string]domain.MovementTotals)
	for _, r := range m.movements {
		t := totals[r.ItemID]
		if r.MovementType == domain.MovementTypeAssign {
			t.Assigned += r.QuantityMoved
		} else {
			t.Released += r.QuantityMoved
		}
		totals[r.ItemID] = t
	}
	return totals, nil
}

func (m *memStore) ListItems(ctx context.Context) ([]domain.StockItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.StockItem, 0, len(m.items))
	for _, v := range m.items {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) GetItem(ctx context.Context, itemID string) (domain.StockItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[itemID]
	if !ok {
		return domain.StockItem{}, domain.ErrItemNotFound
	}
	return item, nil
}

func (m *memStore) CreateItem(ctx context.Context, item domain.StockItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[item.ID]; ok {
		return domain.ErrItemExists
	}
	item.AvailableQuantity = item.TotalQuantity
	m.items[item.ID] = item
	return nil
}

func (m *memStore) CreateEvent(ctx context.Context, event domain.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[event.ID] = event
	return nil
}

func (m *memStore) GetEvent(ctx context.Context, eventID string) (domain.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[eventID]
	if !ok {
		return domain.Event{}, domain.ErrEventNotFound
	}
	ev.AssignedInventory = cloneAssignments(ev.AssignedInventory)
	return ev, nil
}

func (m *memStore) ListEvents(ctx context.Context) ([]domain.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Event, 0, len(m.events))
	for _, ev := range m.events {
		ev.AssignedInventory = cloneAssignments(ev.AssignedInventory)
		out = append(out, ev)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) UpdateEventDetails(ctx context.Context, eventID string, details domain.EventDetails) (domain.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[eventID]
	if !ok {
		return domain.Event{}, domain.ErrEventNotFound
	}
	ev.EventDetails = details
	m.events[eventID] = ev
	return ev, nil
}

type memScope struct {
	items  map[string]domain.StockItem
	events map[string]domain.Event
}

func (s *memScope) Stock() port.StockLedger  { return memLedger{s} }
func (s *memScope) Events() port.EventRecords { return memRecords{s} }

type memLedger struct{ s *memScope }

func (l memLedger) Get(ctx context.Context, itemID string) (domain.StockItem, error) {
	item, ok := l.s.items[itemID]
	if !ok {
		return domain.StockItem{}, fmt.Errorf("%w: %s", domain.ErrItemNotFound, itemID)
	}
	return item, nil
}

func (l memLedger) Adjust(ctx context.Context, itemID string, delta int) error {
	item, ok := l.s.items[itemID]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrItemNotFound, itemID)
	}
	if item.AvailableQuantity+delta < 0 {
		return domain.ErrInsufficientStock
	}
	item.AvailableQuantity += delta
	l.s.items[itemID] = item
	return nil
}

type memRecords struct{ s *memScope }

func (r memRecords) Get(ctx context.Context, eventID string) (domain.Event, error) {
	ev, ok := r.s.events[eventID]
	if !ok {
		return domain.Event{}, fmt.Errorf("%w: %s", domain.ErrEventNotFound, eventID)
	}
	ev.AssignedInventory = cloneAssignments(ev.AssignedInventory)
	return ev, nil
}

func (r memRecords) SetAssignments(ctx context.Context, eventID string, assignments []domain.EventAssignment) error {
	ev, ok := r.s.events[eventID]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrEventNotFound, eventID)
	}
	if err := domain.ValidateAssignments(assignments); err != nil {
		return err
	}
	ev.AssignedInventory = cloneAssignments(assignments)
	r.s.events[eventID] = ev
	return nil
}

func (r memRecords) Delete(ctx context.Context, eventID string) error {
	ev, ok := r.s.events[eventID]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrEventNotFound, eventID)
	}
	if len(ev.AssignedInventory) > 0 {
		return fmt.Errorf("%w: %s", domain.ErrEventHasInventory, eventID)
	}
	delete(r.s.events, eventID)
	return nil
}

func (m *memStore) hasEvent(eventID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.events[eventID]
	return ok
}

func cloneAssignments(in []domain.EventAssignment) []domain.EventAssignment {
	if in == nil {
		return nil
	}
	out := make([]domain.EventAssignment, len(in))
	copy(out, in)
	return out
}

func newTestReservationService(t *testing.T, store *memStore) *ReservationService {
	t.Helper()
	svc := NewReservationService(store, store, zaptest.NewLogger(t), noop.NewTracerProvider().Tracer("test"))
	svc.now = func() time.Time { return time.Date(2026, time.March, 14, 10, 0, 0, 0, time.UTC) }
	return svc
}
