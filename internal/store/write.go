package store

import (
	"context"
	"fmt"

	"github.com/roach88/plos/internal/canonical"
	"github.com/roach88/plos/internal/event"
)

// Segment is the indexed summary of a sealed segment.
type Segment struct {
	ID        string
	Root      string
	Events    int64
	CreatedAt int64
}

// WriteEvents indexes events in one transaction and returns how many were
// new. segmentID is "" for buffered events.
func (s *Store) WriteEvents(ctx context.Context, events []event.Event, segmentID string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("write events: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO events
		(id, type, entity_id, timestamp, origin, seq, document, segment_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, NULLIF(?, ''))
		ON CONFLICT(id) DO UPDATE SET
			segment_id = COALESCE(events.segment_id, excluded.segment_id)
		WHERE events.segment_id IS NULL AND excluded.segment_id IS NOT NULL
	`)
	if err != nil {
		return 0, fmt.Errorf("write events: %w", err)
	}
	defer stmt.Close()

	var before int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM events").Scan(&before); err != nil {
		return 0, fmt.Errorf("write events: %w", err)
	}

	for _, e := range events {
		e = event.Normalize(e)
		doc, err := canonical.Marshal(e.Document())
		if err != nil {
			return 0, fmt.Errorf("write event %s: %w", e.ID, err)
		}
		if _, err := stmt.ExecContext(ctx,
			e.ID,
			string(e.Type),
			e.EntityID,
			e.TimestampValue(),
			e.Origin,
			e.SeqValue(),
			string(doc),
			segmentID,
		); err != nil {
			return 0, fmt.Errorf("write event %s: %w", e.ID, err)
		}
	}

	var after int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM events").Scan(&after); err != nil {
		return 0, fmt.Errorf("write events: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("write events: %w", err)
	}
	return after - before, nil
}

// WriteSegment records a sealed segment. Re-recording the same id is a no-op.
func (s *Store) WriteSegment(ctx context.Context, seg Segment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO segments (segment_id, root, events, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(segment_id) DO NOTHING
	`, seg.ID, seg.Root, seg.Events, seg.CreatedAt)
	if err != nil {
		return fmt.Errorf("write segment %s: %w", seg.ID, err)
	}
	return nil
}
