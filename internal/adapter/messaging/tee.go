package messaging

import (
	"context"
	"errors"

	"github.com/rl1809/event-inventory/internal/core/domain"
	"github.com/rl1809/event-inventory/internal/port"
)

// Tee appends each record to every sink in order. A failing sink does not
// stop the ones after it; all failures are joined.
type Tee struct {
	sinks []port.MovementLogger
}

func NewTee(sinks ...port.MovementLogger) *Tee {
	return &Tee{sinks: sinks}
}

func (t *Tee) Append(ctx context.Context, record domain.MovementRecord) error {
	var errs []error
	for _, sink := range t.sinks {
		if err := sink.Append(ctx, record); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
