package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/rl1809/event-inventory/internal/core/domain"
	"github.com/rl1809/event-inventory/internal/port"
)

// Drift describes an item whose three views of reserved quantity disagree.
type Drift struct {
	ItemID           string
	Name             string
	LedgerReserved   int
	JournalReserved  int
	AssignedReserved int
}

type Report struct {
	CheckedAt    time.Time
	ItemsChecked int
	Drifts       []Drift
}

func (r Report) Consistent() bool {
	return len(r.Drifts) == 0
}

type Reconciler struct {
	inventory port.InventoryRepository
	events    port.EventRepository
	movements port.MovementRepository
	logger    *zap.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

func NewReconciler(inventory port.InventoryRepository, events port.EventRepository, movements port.MovementRepository, logger *zap.Logger, tracer trace.Tracer) *Reconciler {
	return &Reconciler{
		inventory: inventory,
		events:    events,
		movements: movements,
		logger:    logger,
		tracer:    tracer,
		now:       time.Now,
	}
}

// Run compares ledger, movement journal and event assignments for every item
// the ledger or the journal knows about.
func (r *Reconciler) Run(ctx context.Context) (Report, error) {
	ctx, span := r.tracer.Start(ctx, "inventory.reconcile")
	defer span.End()

	items, err := r.inventory.ListItems(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("list items: %w", err)
	}
	totals, err := r.movements.MovementTotals(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("movement totals: %w", err)
	}
	events, err := r.events.ListEvents(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("list events: %w", err)
	}

	assigned := make(map[string]int)
	for _, ev := range events {
		for _, a := range ev.AssignedInventory {
			assigned[a.ItemID] += a.Quantity
		}
	}

	known := make(map[string]domain.StockItem, len(items))
	for _, item := range items {
		known[item.ID] = item
	}
	ids := make([]string, 0, len(known))
	for id := range known {
		ids = append(ids, id)
	}
	for id := range totals {
		if _, ok := known[id]; !ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	report := Report{CheckedAt: r.now().UTC(), ItemsChecked: len(ids)}
	for _, id := range ids {
		item := known[id]
		d := Drift{
			ItemID:           id,
			Name:             item.Name,
			LedgerReserved:   item.Reserved(),
			JournalReserved:  totals[id].Outstanding(),
			AssignedReserved: assigned[id],
		}
		if d.LedgerReserved == d.JournalReserved && d.LedgerReserved == d.AssignedReserved {
			continue
		}
		report.Drifts = append(report.Drifts, d)
		r.logger.Warn("inventory drift detected",
			zap.String("item_id", d.ItemID),
			zap.Int("ledger_reserved", d.LedgerReserved),
			zap.Int("journal_reserved", d.JournalReserved),
			zap.Int("assigned_reserved", d.AssignedReserved),
		)
	}

	span.SetAttributes(
		attribute.Int("inventory.items_checked", report.ItemsChecked),
		attribute.Int("inventory.drifts", len(report.Drifts)),
	)
	r.logger.Info("reconciliation finished",
		zap.Int("items_checked", report.ItemsChecked),
		zap.Int("drifts", len(report.Drifts)),
	)
	return report, nil
}
