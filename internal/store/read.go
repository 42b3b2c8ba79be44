package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/plos/internal/event"
)

const orderBy = `ORDER BY timestamp ASC, origin COLLATE BINARY ASC, seq ASC, id COLLATE BINARY ASC`

// Indexed is an event with its segment assignment.
type Indexed struct {
	Event     event.Event
	SegmentID string
}

// Events returns every indexed event in total order.
func (s *Store) Events(ctx context.Context) ([]Indexed, error) {
	return s.queryEvents(ctx, `SELECT document, segment_id FROM events `+orderBy)
}

// History returns the events of one entity in total order.
func (s *Store) History(ctx context.Context, entityID string) ([]Indexed, error) {
	return s.queryEvents(ctx, `SELECT document, segment_id FROM events WHERE entity_id = ? `+orderBy, entityID)
}

// Count returns the number of indexed events.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM events").Scan(&n); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

// MaxSeqByOrigin returns the highest indexed seq per origin.
func (s *Store) MaxSeqByOrigin(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT origin, CAST(MAX(seq) AS INTEGER) FROM events GROUP BY origin ORDER BY origin COLLATE BINARY`)
	if err != nil {
		return nil, fmt.Errorf("query max seq: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var origin string
		var seq int64
		if err := rows.Scan(&origin, &seq); err != nil {
			return nil, fmt.Errorf("scan max seq: %w", err)
		}
		out[origin] = seq
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate max seq: %w", err)
	}
	return out, nil
}

// Segments returns the indexed segments in id order.
func (s *Store) Segments(ctx context.Context) ([]Segment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT segment_id, root, events, created_at
		FROM segments
		ORDER BY length(segment_id) ASC, segment_id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query segments: %w", err)
	}
	defer rows.Close()

	segments := []Segment{}
	for rows.Next() {
		var seg Segment
		if err := rows.Scan(&seg.ID, &seg.Root, &seg.Events, &seg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan segment: %w", err)
		}
		segments = append(segments, seg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate segments: %w", err)
	}
	return segments, nil
}

func (s *Store) queryEvents(ctx context.Context, query string, args ...any) ([]Indexed, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	out := []Indexed{}
	for rows.Next() {
		var doc string
		var segmentID sql.NullString
		if err := rows.Scan(&doc, &segmentID); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e, err := event.Decode([]byte(doc))
		if err != nil {
			return nil, fmt.Errorf("decode indexed event: %w", err)
		}
		out = append(out, Indexed{Event: e, SegmentID: segmentID.String})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}
