package eventlog

import (
	"cmp"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/roach88/plos/internal/event"
	"github.com/roach88/plos/internal/fileutil"
)

const (
	segmentPrefix  = "seg-"
	segmentSuffix  = ".jsonl"
	manifestSuffix = ".manifest.json"
)

// SegmentPath returns the JSONL file of segment id.
func (l *Log) SegmentPath(id string) string {
	return filepath.Join(l.SegmentsPath(), id+segmentSuffix)
}

// ManifestPath returns the manifest file of segment id.
func (l *Log) ManifestPath(id string) string {
	return filepath.Join(l.SegmentsPath(), id+manifestSuffix)
}

// SegmentIDs lists sealed segments in ascending id order. A segment exists
// once its manifest has been written.
func (l *Log) SegmentIDs() ([]string, error) {
	entries, err := os.ReadDir(l.SegmentsPath())
	if errors.Is(err, os.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list segments: %w", err)
	}

	ids := []string{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, segmentPrefix) || !strings.HasSuffix(name, manifestSuffix) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, manifestSuffix))
	}
	// seg-1000000 must follow seg-999999
	slices.SortFunc(ids, func(a, b string) int {
		if c := cmp.Compare(len(a), len(b)); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	})
	return ids, nil
}

// ReadSegment returns the events of segment id and the number of lines that
// failed to decode.
func (l *Log) ReadSegment(id string) ([]event.Event, int, error) {
	events, skipped, err := l.ReadFile(l.SegmentPath(id))
	if err != nil {
		return nil, 0, fmt.Errorf("read segment %s: %w", id, err)
	}
	return events, skipped, nil
}

// ReadManifest returns the raw manifest bytes of segment id.
func (l *Log) ReadManifest(id string) ([]byte, error) {
	data, err := os.ReadFile(l.ManifestPath(id))
	if err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", id, err)
	}
	return data, nil
}

// WriteSegment persists a sealed segment: the events first, then the
// manifest that makes the segment visible.
func (l *Log) WriteSegment(id string, events []event.Event, manifest []byte) error {
	data, err := encodeLines(events)
	if err != nil {
		return err
	}
	if err := fileutil.WriteAtomic(l.SegmentPath(id), data, 0o644); err != nil {
		return fmt.Errorf("write segment %s: %w", id, err)
	}
	if err := fileutil.WriteAtomic(l.ManifestPath(id), manifest, 0o644); err != nil {
		return fmt.Errorf("write manifest %s: %w", id, err)
	}
	return nil
}

// ReadSealed returns the events of every sealed segment, segments in
// ascending order.
func (l *Log) ReadSealed() ([]event.Event, error) {
	ids, err := l.SegmentIDs()
	if err != nil {
		return nil, err
	}

	all := []event.Event{}
	for _, id := range ids {
		events, _, err := l.ReadSegment(id)
		if err != nil {
			return nil, err
		}
		all = append(all, events...)
	}
	return all, nil
}

// ReadAll returns every event of the replica: sealed segments in ascending
// order, then the buffer.
func (l *Log) ReadAll() ([]event.Event, error) {
	sealed, err := l.ReadSealed()
	if err != nil {
		return nil, err
	}
	buffered, err := l.ReadBuffer()
	if err != nil {
		return nil, err
	}
	return append(sealed, buffered...), nil
}
