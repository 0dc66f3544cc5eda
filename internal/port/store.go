package port

import "context"

// Store is implemented by every persistence backend.
type Store interface {
	Transactor
	InventoryRepository
	EventRepository
	MovementRepository

	Ping(ctx context.Context) error
	Close() error
}
