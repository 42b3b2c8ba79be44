package replica

import (
	"context"
	"fmt"

	"github.com/roach88/plos/internal/event"
	"github.com/roach88/plos/internal/segment"
	"github.com/roach88/plos/internal/store"
)

// indexEvents adds events to the index when the index is maintained.
func (r *Replica) indexEvents(ctx context.Context, events []event.Event, segmentID string) error {
	if !r.cfg.Index.Enabled || len(events) == 0 {
		return nil
	}
	idx, err := r.openIndex(ctx)
	if err != nil {
		return err
	}
	if _, err := idx.WriteEvents(ctx, events, segmentID); err != nil {
		return fmt.Errorf("index events: %w", err)
	}
	return nil
}

// RebuildIndex drops the index and reloads it from the segments and the
// buffer. It returns the number of indexed events.
func (r *Replica) RebuildIndex(ctx context.Context) (int, error) {
	idx, err := r.openIndex(ctx)
	if err != nil {
		return 0, err
	}
	if err := idx.Reset(ctx); err != nil {
		return 0, err
	}

	ids, err := r.log.SegmentIDs()
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		events, _, err := r.log.ReadSegment(id)
		if err != nil {
			return 0, err
		}
		if _, err := idx.WriteEvents(ctx, events, id); err != nil {
			return 0, fmt.Errorf("index segment %s: %w", id, err)
		}

		data, err := r.log.ReadManifest(id)
		if err != nil {
			return 0, err
		}
		m, err := segment.ParseManifest(data)
		if err != nil {
			r.logger.Warn("skipping unreadable manifest in index", "segment", id, "error", err)
			continue
		}
		if err := idx.WriteSegment(ctx, store.Segment{
			ID:        id,
			Root:      m.Root,
			Events:    m.Events,
			CreatedAt: m.CreatedAt,
		}); err != nil {
			return 0, err
		}
	}

	buffered, err := r.log.ReadBuffer()
	if err != nil {
		return 0, err
	}
	if _, err := idx.WriteEvents(ctx, buffered, ""); err != nil {
		return 0, fmt.Errorf("index buffer: %w", err)
	}

	n, err := idx.Count(ctx)
	if err != nil {
		return 0, err
	}
	r.logger.Info("index rebuilt", "events", n, "segments", len(ids))
	return n, nil
}

// History returns the events of one entity in total order, each with the
// segment it was sealed in. An index that is not maintained on every write
// is rebuilt first.
func (r *Replica) History(ctx context.Context, entityID string) ([]store.Indexed, error) {
	if !r.cfg.Index.Enabled {
		if _, err := r.RebuildIndex(ctx); err != nil {
			return nil, err
		}
	}
	idx, err := r.openIndex(ctx)
	if err != nil {
		return nil, err
	}
	return idx.History(ctx, entityID)
}
