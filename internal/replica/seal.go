package replica

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/plos/internal/segment"
	"github.com/roach88/plos/internal/store"
)

// Seal seals the whole buffer into the next segment.
// It returns segment.ErrNothingToSeal for an empty buffer.
func (r *Replica) Seal(ctx context.Context) (*segment.Sealed, error) {
	sealed, err := r.sealer.Seal(ctx)
	if err != nil {
		return nil, err
	}
	r.metrics.Seals.Inc()
	r.metrics.SealedEvents.Add(float64(sealed.Manifest.Events))
	r.metrics.BufferedEvents.Set(0)

	if err := r.indexSegment(ctx, sealed.Manifest); err != nil {
		return nil, err
	}
	return sealed, nil
}

// MaybeSeal seals when the buffer holds at least the configured threshold
// of events. A threshold of 0 disables automatic sealing. It returns nil
// when nothing was sealed.
func (r *Replica) MaybeSeal(ctx context.Context) (*segment.Sealed, error) {
	threshold := r.cfg.Seal.Threshold
	buffered, err := r.log.ReadBuffer()
	if err != nil {
		return nil, err
	}
	r.metrics.BufferedEvents.Set(float64(len(buffered)))
	if threshold <= 0 || len(buffered) < threshold {
		return nil, nil
	}

	r.logger.Info("buffer over seal threshold",
		"buffered", len(buffered),
		"threshold", threshold,
	)
	sealed, err := r.Seal(ctx)
	if errors.Is(err, segment.ErrNothingToSeal) {
		return nil, nil
	}
	return sealed, err
}

// Verify checks the whole segment chain.
func (r *Replica) Verify(ctx context.Context) (segment.Report, error) {
	report, err := r.verifier.VerifyAll(ctx)
	if err != nil {
		return segment.Report{}, fmt.Errorf("verify: %w", err)
	}
	result := "ok"
	if !report.OK {
		result = "fail"
	}
	r.metrics.VerifyRuns.WithLabelValues(result).Inc()
	return report, nil
}

// indexSegment records a freshly sealed segment in the index when the
// index is maintained.
func (r *Replica) indexSegment(ctx context.Context, m segment.Manifest) error {
	if !r.cfg.Index.Enabled {
		return nil
	}
	events, _, err := r.log.ReadSegment(m.SegmentID)
	if err != nil {
		return err
	}
	if err := r.indexEvents(ctx, events, m.SegmentID); err != nil {
		return err
	}
	idx, err := r.openIndex(ctx)
	if err != nil {
		return err
	}
	return idx.WriteSegment(ctx, store.Segment{
		ID:        m.SegmentID,
		Root:      m.Root,
		Events:    m.Events,
		CreatedAt: m.CreatedAt,
	})
}
