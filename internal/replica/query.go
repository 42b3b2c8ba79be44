package replica

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/roach88/plos/internal/event"
	"github.com/roach88/plos/internal/meta"
	"github.com/roach88/plos/internal/projection"
)

// Events returns every event of the replica in total order.
func (r *Replica) Events(ctx context.Context) ([]event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	all, err := r.log.ReadAll()
	if err != nil {
		return nil, err
	}
	return event.Merge(all), nil
}

// State rebuilds the projection from every event.
func (r *Replica) State(ctx context.Context) (projection.State, error) {
	events, err := r.Events(ctx)
	if err != nil {
		return projection.State{}, err
	}
	state := projection.Rebuild(events)
	r.metrics.Conflicts.Set(float64(len(state.Unresolved())))
	return state, nil
}

// Conflicts returns the conflicts of the current projection, resolved ones
// included.
func (r *Replica) Conflicts(ctx context.Context) ([]projection.Conflict, error) {
	state, err := r.State(ctx)
	if err != nil {
		return nil, err
	}
	return state.Conflicts, nil
}

// Meta returns the allocator state.
func (r *Replica) Meta() (meta.Meta, error) {
	return r.meta.Load()
}

// Origin returns the replica's origin name.
func (r *Replica) Origin() (string, error) {
	m, err := r.meta.Load()
	if err != nil {
		return "", err
	}
	return m.Origin, nil
}

// SetOrigin renames the replica's origin and returns the normalized name.
// Events already written keep the origin they were stamped with.
func (r *Replica) SetOrigin(name string) (string, error) {
	origin, err := r.meta.SetOrigin(name)
	if err != nil {
		return "", err
	}
	r.logger.Info("origin set", "origin", origin)
	return origin, nil
}

// Reset removes the buffer and resets the allocator, keeping the origin.
// Sealed segments and keys are left alone.
func (r *Replica) Reset(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(r.log.BufferPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove buffer: %w", err)
	}

	origin, err := r.Origin()
	if err != nil {
		return err
	}
	if origin == "" {
		origin = meta.DefaultOrigin
	}
	if err := r.meta.Reset(origin); err != nil {
		return err
	}
	r.metrics.BufferedEvents.Set(0)

	if r.cfg.Index.Enabled {
		if _, err := r.RebuildIndex(ctx); err != nil {
			return err
		}
	}
	r.logger.Info("replica reset", "origin", origin)
	return nil
}
