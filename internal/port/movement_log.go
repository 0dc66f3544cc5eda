package port

import (
	"context"

	"github.com/rl1809/event-inventory/internal/core/domain"
)

type MovementLogger interface {
	Append(ctx context.Context, record domain.MovementRecord) error
}

type MovementRepository interface {
	MovementLogger
	ListMovements(ctx context.Context, filter domain.MovementFilter) ([]domain.MovementRecord, error)
	MovementTotals(ctx context.Context) (map[string]domain.MovementTotals, error)
}
