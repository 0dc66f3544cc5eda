package service

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap/zaptest"
)

func TestReconciler_ConsistentAfterReserveAndRelease(t *testing.T) {
	store := newMemStore()
	store.addItem("lights", 4)
	store.addItem("chairs", 10)
	store.addEvent("event1")
	store.addEvent("event2")
	svc := newTestReservationService(t, store)
	ctx := context.Background()

	if _, err := svc.Reserve(ctx, "event1", map[string]int{"lights": 2, "chairs": 3}); err != nil {
		t.Fatalf("reserve event1: %v", err)
	}
	if _, err := svc.Reserve(ctx, "event2", map[string]int{"chairs": 5}); err != nil {
		t.Fatalf("reserve event2: %v", err)
	}
	if _, err := svc.Release(ctx, "event1"); err != nil {
		t.Fatalf("release event1: %v", err)
	}

	reconciler := NewReconciler(store, store, store, zaptest.NewLogger(t), noop.NewTracerProvider().Tracer("test"))
	report, err := reconciler.Run(ctx)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if !report.Consistent() {
		t.Errorf("expected no drift, got %+v", report.Drifts)
	}
	if report.ItemsChecked != 2 {
		t.Errorf("expected 2 items checked, got %d", report.ItemsChecked)
	}
}

func TestReconciler_DetectsLostMovement(t *testing.T) {
	store := newMemStore()
	store.addItem("lights", 4)
	store.addEvent("event1")
	svc := newTestReservationService(t, store)
	ctx := context.Background()

	store.appendErr = errTestSinkDown
	if _, err := svc.Reserve(ctx, "event1", map[string]int{"lights": 3}); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	reconciler := NewReconciler(store, store, store, zaptest.NewLogger(t), noop.NewTracerProvider().Tracer("test"))
	report, err := reconciler.Run(ctx)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if len(report.Drifts) != 1 {
		t.Fatalf("expected 1 drift, got %+v", report.Drifts)
	}
	d := report.Drifts[0]
	if d.ItemID != "lights" || d.LedgerReserved != 3 || d.JournalReserved != 0 || d.AssignedReserved != 3 {
		t.Errorf("unexpected drift: %+v", d)
	}
}
