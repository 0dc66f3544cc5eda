package port

import (
	"context"

	"github.com/rl1809/event-inventory/internal/core/domain"
)

// StockLedger is the transaction-scoped view of item availability.
type StockLedger interface {
	// Get reads the live item, locking it for the rest of the transaction where the backend supports it
	Get(ctx context.Context, itemID string) (domain.StockItem, error)

	// Adjust changes available quantity by delta; negative for reservation, positive for release
	Adjust(ctx context.Context, itemID string, delta int) error
}

type InventoryRepository interface {
	ListItems(ctx context.Context) ([]domain.StockItem, error)
	GetItem(ctx context.Context, itemID string) (domain.StockItem, error)

	// CreateItem inserts a new item with available quantity equal to its total
	CreateItem(ctx context.Context, item domain.StockItem) error
}
