package service

import (
	"context"
	"errors"

	"github.com/crabzie/workspace-fleet/internal/core/domain"
	"github.com/crabzie/workspace-fleet/internal/core/port"
)

// FanOut delivers every event to each broadcaster in order. All targets are
// attempted; their errors are joined.
type FanOut []port.Broadcaster

func (f FanOut) Broadcast(ctx context.Context, event domain.Event) error {
	var errs []error
	for _, b := range f {
		if b == nil {
			continue
		}
		if err := b.Broadcast(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
