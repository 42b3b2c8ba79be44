// Package bundle moves events between replicas as a self-describing JSONL
// file: one header line followed by one line per event.
package bundle

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/Masterminds/semver/v3"

	"github.com/roach88/plos/internal/canonical"
	"github.com/roach88/plos/internal/event"
	"github.com/roach88/plos/internal/value"
)

// Version is the bundle format this package reads and writes.
const Version = "0.3.0"

// Line kinds.
const (
	KindHeader = "plos.bundle/header"
	KindEvent  = "plos.bundle/event"
)

// Errors
var (
	ErrEmptyBundle        = errors.New("bundle: empty bundle")
	ErrMissingHeader      = errors.New("bundle: first line is not a bundle header")
	ErrInvalidVersion     = errors.New("bundle: invalid bundleVersion")
	ErrUnsupportedVersion = errors.New("bundle: unsupported bundleVersion")
)

var supported = semver.MustParse(Version)

// Header is the first line of a bundle.
type Header struct {
	Kind          string `json:"kind"`
	BundleVersion string `json:"bundleVersion"`
	BundleID      string `json:"bundleId"`
	CreatedAt     int64  `json:"createdAt"`
	Origin        string `json:"origin"`
}

// NewHeader returns a header for a bundle written now by origin.
func NewHeader(bundleID string, createdAt int64, origin string) Header {
	return Header{
		Kind:          KindHeader,
		BundleVersion: Version,
		BundleID:      bundleID,
		CreatedAt:     createdAt,
		Origin:        origin,
	}
}

// Write emits the header and the events in total order.
func Write(w io.Writer, h Header, events []event.Event) error {
	bw := bufio.NewWriter(w)

	line, err := canonical.MarshalAny(h)
	if err != nil {
		return fmt.Errorf("encode header: %w", err)
	}
	bw.Write(line)
	bw.WriteByte('\n')

	for _, e := range event.Sorted(events) {
		line, err := canonical.Marshal(value.Object{
			"kind":  value.String(KindEvent),
			"event": e.Document(),
		})
		if err != nil {
			return fmt.Errorf("encode event %s: %w", e.ID, err)
		}
		bw.Write(line)
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

// Read parses a bundle. The header must come first and carry exactly
// Version. Event lines that do not decode are skipped with a warning; lines
// of other kinds are ignored.
func Read(r io.Reader, logger *slog.Logger) (Header, []event.Event, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var (
		header    Header
		gotHeader bool
		events    = []event.Event{}
		lineNo    int
	)
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		if !gotHeader {
			h, err := parseHeader(line)
			if err != nil {
				return Header{}, nil, err
			}
			header, gotHeader = h, true
			continue
		}

		v, err := value.Parse(line)
		if err != nil {
			logger.Warn("skipping malformed bundle line", "line", lineNo, "error", err)
			continue
		}
		obj, ok := v.(value.Object)
		if !ok || !value.Same(obj["kind"], value.String(KindEvent)) {
			continue
		}
		e, err := event.FromValue(obj["event"])
		if err != nil {
			logger.Warn("skipping malformed bundle event", "line", lineNo, "error", err)
			continue
		}
		events = append(events, e)
	}
	if err := scanner.Err(); err != nil {
		return Header{}, nil, fmt.Errorf("read bundle: %w", err)
	}
	if !gotHeader {
		return Header{}, nil, ErrEmptyBundle
	}
	return header, events, nil
}

func parseHeader(line []byte) (Header, error) {
	v, err := value.Parse(line)
	if err != nil {
		return Header{}, fmt.Errorf("%w: %v", ErrMissingHeader, err)
	}
	obj, ok := v.(value.Object)
	if !ok || !value.Same(obj["kind"], value.String(KindHeader)) {
		return Header{}, ErrMissingHeader
	}

	h := Header{Kind: KindHeader}
	if s, ok := obj["bundleVersion"].(value.String); ok {
		h.BundleVersion = string(s)
	}
	if s, ok := obj["bundleId"].(value.String); ok {
		h.BundleID = string(s)
	}
	if n, ok := obj["createdAt"].(value.Number); ok {
		h.CreatedAt = int64(n)
	}
	if s, ok := obj["origin"].(value.String); ok {
		h.Origin = string(s)
	}

	if err := checkVersion(h.BundleVersion); err != nil {
		return Header{}, err
	}
	return h, nil
}

func checkVersion(s string) error {
	v, err := semver.StrictNewVersion(s)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidVersion, s)
	}
	if s == Version {
		return nil
	}
	if v.GreaterThan(supported) {
		return fmt.Errorf("%w: %s is newer than %s", ErrUnsupportedVersion, s, Version)
	}
	return fmt.Errorf("%w: %s (expected %s)", ErrUnsupportedVersion, s, Version)
}
