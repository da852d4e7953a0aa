package stats

import (
	"context"
	"errors"

	"github.com/efreitasn/stockserver/internal/domain"
)

// Recorder is implemented by every recorder in this package.
type Recorder interface {
	Record(ctx context.Context, ev domain.TradeEvent) error
}

// Multi records to every non-nil recorder and joins their errors.
type Multi []Recorder

// Record implements service.Recorder.
func (m Multi) Record(ctx context.Context, ev domain.TradeEvent) error {
	var errs []error
	for _, r := range m {
		if r == nil {
			continue
		}
		if err := r.Record(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
