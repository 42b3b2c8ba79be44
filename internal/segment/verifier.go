package segment

import (
	"context"
	"io"
	"log/slog"

	"github.com/roach88/plos/internal/eventlog"
	"github.com/roach88/plos/internal/keys"
	"github.com/roach88/plos/internal/merkle"
	"github.com/roach88/plos/internal/value"
)

// SegmentReport is the outcome of verifying one segment.
type SegmentReport struct {
	SegmentID string `json:"segmentId"`

	Events   int   `json:"events"`
	Declared int64 `json:"declared"`
	EventsOK bool  `json:"eventsOk"`

	RootOK       bool   `json:"rootOk"`
	ComputedRoot string `json:"computedRoot"`
	ManifestRoot string `json:"manifestRoot"`

	SigOK bool `json:"sigOk"`

	ChainOK      bool    `json:"chainOk"`
	ExpectedPrev *string `json:"expectedPrev"`
	ManifestPrev *string `json:"manifestPrev"`

	ManifestOK     bool     `json:"manifestOk"`
	ManifestErrors []string `json:"manifestErrors,omitempty"`

	// Error is set when the segment could not be read at all.
	Error string `json:"error,omitempty"`

	OK bool `json:"ok"`
}

// Report is the outcome of verifying the whole chain. Segments lists the
// segments checked, in order, up to and including the first failure.
type Report struct {
	Segments []SegmentReport `json:"segments"`
	OK       bool            `json:"ok"`
}

// Failed returns the failing segment report, if any.
func (r Report) Failed() (SegmentReport, bool) {
	for _, s := range r.Segments {
		if !s.OK {
			return s, true
		}
	}
	return SegmentReport{}, false
}

// Verifier checks sealed segments.
type Verifier struct {
	log    *eventlog.Log
	keys   *keys.Store
	logger *slog.Logger
}

// NewVerifier creates a Verifier. A nil logger discards output.
func NewVerifier(log *eventlog.Log, ks *keys.Store, logger *slog.Logger) *Verifier {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Verifier{log: log, keys: ks, logger: logger}
}

// VerifyAll checks every segment in ascending id order and stops after the
// first segment that fails. With no segments the chain is trivially valid.
// The error is reserved for failures to enumerate segments or a cancelled
// context; integrity problems are reported, not returned.
func (v *Verifier) VerifyAll(ctx context.Context) (Report, error) {
	ids, err := v.log.SegmentIDs()
	if err != nil {
		return Report{}, err
	}

	report := Report{Segments: []SegmentReport{}, OK: true}
	var prev *string
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return Report{}, err
		}

		seg, root := v.verifySegment(id, prev)
		report.Segments = append(report.Segments, seg)
		if !seg.OK {
			report.OK = false
			v.logger.Warn("segment verification failed", "segment", id)
			break
		}
		prev = root
	}
	return report, nil
}

// verifySegment checks one segment against the expected previous root and
// returns the report and the segment's own root for the next link.
func (v *Verifier) verifySegment(id string, expectedPrev *string) (SegmentReport, *string) {
	r := SegmentReport{SegmentID: id, ExpectedPrev: expectedPrev}

	data, err := v.log.ReadManifest(id)
	if err != nil {
		r.Error = err.Error()
		return r, nil
	}
	m, err := ParseManifest(data)
	if err != nil {
		r.Error = err.Error()
		return r, nil
	}
	doc, _ := m.Document()

	r.Declared = m.Events
	r.ManifestRoot = m.Root
	r.ManifestPrev = m.PrevSegmentRoot

	events, skipped, err := v.log.ReadSegment(id)
	if err != nil {
		r.Error = err.Error()
	} else {
		r.Events = len(events) + skipped
		_, declaredOK := doc["events"].(value.Number)
		r.EventsOK = declaredOK && skipped == 0 && int64(len(events)) == m.Events

		computed, err := merkle.RootForEvents(events)
		if err != nil {
			r.Error = err.Error()
		} else {
			r.ComputedRoot = computed
			r.RootOK = computed == m.Root
		}
	}

	r.SigOK = v.checkSignature(m)
	r.ChainOK = sameOptional(expectedPrev, m.PrevSegmentRoot)

	r.ManifestErrors = ValidateShape(doc)
	r.ManifestOK = len(r.ManifestErrors) == 0

	r.OK = r.Error == "" && r.EventsOK && r.RootOK && r.SigOK && r.ChainOK && r.ManifestOK

	var root *string
	if m.Root != "" {
		root = &m.Root
	}
	return r, root
}

func (v *Verifier) checkSignature(m Manifest) bool {
	pub, err := v.keys.ResolverFor(m.KeyID).PublicKey(m.KeyID)
	if err != nil {
		v.logger.Debug("cannot resolve signing key", "segment", m.SegmentID, "keyId", m.KeyID, "error", err)
		return false
	}
	msg, err := m.SigningMessage()
	if err != nil {
		return false
	}
	return keys.Verify(pub, msg, m.Signature)
}

func sameOptional(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
