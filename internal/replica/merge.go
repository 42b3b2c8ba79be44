package replica

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/roach88/plos/internal/bundle"
	"github.com/roach88/plos/internal/event"
	"github.com/roach88/plos/internal/fileutil"
	"github.com/roach88/plos/internal/segment"
)

// MergeResult summarizes a sync or bundle import.
type MergeResult struct {
	// Received is the number of well-formed events read from the source.
	Received int `json:"received"`
	// Skipped counts source lines that could not be decoded.
	Skipped int `json:"skipped"`
	// Added is the number of events that were new to this replica.
	Added int `json:"added"`
	// Total is the number of distinct events after the merge.
	Total int `json:"total"`

	Sealed *segment.Sealed `json:"-"`
}

// Sync unions the events of a peer's JSONL log into this replica.
func (r *Replica) Sync(ctx context.Context, path string) (MergeResult, error) {
	if err := ctx.Err(); err != nil {
		return MergeResult{}, err
	}
	incoming, skipped, err := r.log.ReadFile(path)
	if err != nil {
		return MergeResult{}, fmt.Errorf("read peer log: %w", err)
	}
	r.metrics.MalformedSkipped.Add(float64(skipped))

	res, err := r.absorb(ctx, incoming)
	if err != nil {
		return MergeResult{}, err
	}
	res.Skipped = skipped
	r.logger.Info("synced peer log",
		"path", path,
		"received", res.Received,
		"added", res.Added,
		"total", res.Total,
	)
	return res, nil
}

// ImportBundle unions the events of a bundle file into this replica.
func (r *Replica) ImportBundle(ctx context.Context, path string) (bundle.Header, MergeResult, error) {
	if err := ctx.Err(); err != nil {
		return bundle.Header{}, MergeResult{}, err
	}
	f, err := os.Open(path)
	if err != nil {
		return bundle.Header{}, MergeResult{}, fmt.Errorf("open bundle: %w", err)
	}
	defer f.Close()

	header, incoming, err := bundle.Read(f, r.logger)
	if err != nil {
		return bundle.Header{}, MergeResult{}, fmt.Errorf("read bundle %s: %w", path, err)
	}

	res, err := r.absorb(ctx, incoming)
	if err != nil {
		return bundle.Header{}, MergeResult{}, err
	}
	r.logger.Info("imported bundle",
		"bundle", header.BundleID,
		"from", header.Origin,
		"received", res.Received,
		"added", res.Added,
	)
	return header, res, nil
}

// WriteBundle writes every event of the replica as a bundle to w.
func (r *Replica) WriteBundle(ctx context.Context, w io.Writer) (bundle.Header, int, error) {
	events, err := r.Events(ctx)
	if err != nil {
		return bundle.Header{}, 0, err
	}
	origin, err := r.Origin()
	if err != nil {
		return bundle.Header{}, 0, err
	}

	header := bundle.NewHeader(r.ids.NewID(), r.now(), origin)
	if err := bundle.Write(w, header, events); err != nil {
		return bundle.Header{}, 0, fmt.Errorf("write bundle: %w", err)
	}
	return header, len(events), nil
}

// ExportBundle writes every event of the replica as a bundle file at path.
func (r *Replica) ExportBundle(ctx context.Context, path string) (bundle.Header, int, error) {
	var buf bytes.Buffer
	header, n, err := r.WriteBundle(ctx, &buf)
	if err != nil {
		return bundle.Header{}, 0, err
	}
	if err := fileutil.WriteAtomic(path, buf.Bytes(), 0o644); err != nil {
		return bundle.Header{}, 0, fmt.Errorf("write bundle: %w", err)
	}
	return header, n, nil
}

// absorb merges incoming into the local log: union by id, seen map raised
// to the merged per-origin maxima, buffer rewritten as every event that is
// not already sealed. Local copies win id collisions.
func (r *Replica) absorb(ctx context.Context, incoming []event.Event) (MergeResult, error) {
	sealed, err := r.log.ReadSealed()
	if err != nil {
		return MergeResult{}, err
	}
	buffered, err := r.log.ReadBuffer()
	if err != nil {
		return MergeResult{}, err
	}

	local := append(append([]event.Event{}, sealed...), buffered...)
	known := event.IDs(local)
	merged := event.Merge(incoming, local)

	var fresh []event.Event
	for _, e := range event.Merge(incoming) {
		if _, ok := known[e.ID]; !ok {
			fresh = append(fresh, e)
		}
	}

	if err := r.meta.MergeSeen(event.MaxSeqByOrigin(merged)); err != nil {
		return MergeResult{}, fmt.Errorf("merge seen: %w", err)
	}

	sealedIDs := event.IDs(sealed)
	buffer := make([]event.Event, 0, len(merged))
	for _, e := range merged {
		if _, ok := sealedIDs[e.ID]; !ok {
			buffer = append(buffer, e)
		}
	}
	if err := r.log.WriteBuffer(buffer); err != nil {
		return MergeResult{}, err
	}
	r.metrics.EventsMerged.Add(float64(len(fresh)))

	if err := r.indexEvents(ctx, fresh, ""); err != nil {
		return MergeResult{}, err
	}

	res := MergeResult{
		Received: len(incoming),
		Added:    len(fresh),
		Total:    len(merged),
	}
	res.Sealed, err = r.MaybeSeal(ctx)
	if err != nil {
		return MergeResult{}, err
	}
	return res, nil
}
