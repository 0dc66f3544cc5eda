package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/rl1809/event-inventory/internal/adapter/storage"
	"github.com/rl1809/event-inventory/internal/config"
	"github.com/rl1809/event-inventory/internal/core/domain"
	"github.com/rl1809/event-inventory/internal/core/service"
)

const (
	initialStock  = 20
	totalRequests = 50
)

// Races one-unit reservations from many events against a single item on the
// configured store and checks that exactly the available stock is handed out.
func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	store, err := storage.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to open %s store: %v", cfg.StoreDriver, err)
	}
	defer store.Close()

	logger := zap.NewNop()
	tracer := noop.NewTracerProvider().Tracer("stress")
	reservations := service.NewReservationService(store, store, logger, tracer)
	events := service.NewEventService(store, reservations, logger, cfg.Location())
	reconciler := service.NewReconciler(store, store, store, logger, tracer)

	itemID := "stress-item-" + uuid.NewString()[:8]
	if err := store.CreateItem(ctx, domain.StockItem{ID: itemID, Name: itemID, Category: "stress", TotalQuantity: initialStock}); err != nil {
		log.Fatalf("failed to create item: %v", err)
	}

	eventIDs := make([]string, 0, totalRequests)
	date := time.Now().In(cfg.Location()).AddDate(0, 0, 30).Format(domain.DateLayout)
	for i := 0; i < totalRequests; i++ {
		ev, err := events.Create(ctx, "stress", domain.EventDetails{
			Service:   domain.Services[i%len(domain.Services)],
			Date:      date,
			StartTime: "19:00",
			EndTime:   "23:00",
			City:      "Tuluá",
			Client:    domain.Client{Name: fmt.Sprintf("Client %d", i), Phone: "3001234567", Email: "stress@example.com"},
		})
		if err != nil {
			log.Fatalf("failed to create event: %v", err)
		}
		eventIDs = append(eventIDs, ev.ID)
	}

	// Counters
	var successCount atomic.Int32
	var failCount atomic.Int32
	var unexpected atomic.Int32

	// Spawn concurrent requests
	var wg sync.WaitGroup
	start := time.Now()

	for _, id := range eventIDs {
		wg.Add(1)
		go func(eventID string) {
			defer wg.Done()

			_, err := reservations.Reserve(ctx, eventID, map[string]int{itemID: 1})
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, domain.ErrInsufficientStock):
				failCount.Add(1)
			default:
				unexpected.Add(1)
				log.Printf("event %s: %v", eventID, err)
			}
		}(id)
	}

	wg.Wait()
	elapsed := time.Since(start)

	// Results
	success := successCount.Load()
	fail := failCount.Load()

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Store:            %s\n", cfg.StoreDriver)
	fmt.Printf("Initial Stock:    %d\n", initialStock)
	fmt.Printf("Total Requests:   %d\n", totalRequests)
	fmt.Printf("Successful:       %d\n", success)
	fmt.Printf("Insufficient:     %d\n", fail)
	fmt.Printf("Other errors:     %d\n", unexpected.Load())
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	// Assertions
	if success == int32(initialStock) && fail == int32(totalRequests-initialStock) {
		fmt.Printf("PASS: Exactly %d reservations succeeded, %d failed\n", initialStock, totalRequests-initialStock)
	} else {
		fmt.Printf("FAIL: Expected %d success/%d fail, got %d/%d\n",
			initialStock, totalRequests-initialStock, success, fail)
	}

	item, err := store.GetItem(ctx, itemID)
	if err != nil {
		log.Fatalf("failed to read item: %v", err)
	}
	fmt.Printf("Final Available:  %d\n", item.AvailableQuantity)
	if item.AvailableQuantity == 0 {
		fmt.Println("PASS: Stock depleted to 0")
	} else {
		fmt.Printf("FAIL: Expected stock 0, got %d\n", item.AvailableQuantity)
	}

	report, err := reconciler.Run(ctx)
	if err != nil {
		log.Fatalf("reconciliation failed: %v", err)
	}
	if report.Consistent() {
		fmt.Println("PASS: Ledger, journal and assignments agree")
	} else {
		fmt.Printf("FAIL: %d items drifted\n", len(report.Drifts))
	}

	// Clean up so repeated runs do not pile up events
	for _, id := range eventIDs {
		if err := events.Delete(ctx, id); err != nil {
			log.Printf("cleanup %s: %v", id, err)
		}
	}
}
