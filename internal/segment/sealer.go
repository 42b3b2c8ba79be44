package segment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/plos/internal/event"
	"github.com/roach88/plos/internal/eventlog"
	"github.com/roach88/plos/internal/keys"
	"github.com/roach88/plos/internal/merkle"
	"github.com/roach88/plos/internal/meta"
)

// Sealing errors.
var (
	// ErrNothingToSeal is returned when the buffer is empty.
	ErrNothingToSeal = errors.New("segment: no events to seal")

	// ErrSelfVerify is returned when a freshly signed manifest does not
	// verify against the key its keyId resolves to. Nothing has been written.
	ErrSelfVerify = errors.New("segment: signature verification failed right after signing")
)

// Clock supplies manifest creation times.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Sealer turns the event buffer into the next segment of the chain.
type Sealer struct {
	log    *eventlog.Log
	keys   *keys.Store
	meta   *meta.Store
	clock  Clock
	logger *slog.Logger
}

// SealerOption configures a Sealer.
type SealerOption func(*Sealer)

// WithClock sets the clock used for createdAt.
func WithClock(c Clock) SealerOption {
	return func(s *Sealer) {
		s.clock = c
	}
}

// WithLogger sets the sealer's logger.
func WithLogger(l *slog.Logger) SealerOption {
	return func(s *Sealer) {
		s.logger = l
	}
}

// NewSealer creates a Sealer over the given log, key store and meta store.
func NewSealer(log *eventlog.Log, ks *keys.Store, ms *meta.Store, opts ...SealerOption) *Sealer {
	s := &Sealer{
		log:    log,
		keys:   ks,
		meta:   ms,
		clock:  systemClock{},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sealed describes a segment written by Seal.
type Sealed struct {
	Manifest     Manifest
	SegmentPath  string
	ManifestPath string
}

// Seal seals every buffered event into a new segment and empties the
// buffer. The segment file is written before the manifest, and the buffer
// is truncated only after both are on disk.
func (s *Sealer) Seal(ctx context.Context) (*Sealed, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	buffered, err := s.log.ReadBuffer()
	if err != nil {
		return nil, fmt.Errorf("read buffer: %w", err)
	}
	if len(buffered) == 0 {
		return nil, ErrNothingToSeal
	}
	sorted := event.Sorted(buffered)

	root, err := merkle.RootForEvents(sorted)
	if err != nil {
		return nil, err
	}

	ids, err := s.log.SegmentIDs()
	if err != nil {
		return nil, err
	}
	segmentID, err := NextID(ids)
	if err != nil {
		return nil, err
	}
	prev, err := s.prevRoot(ids)
	if err != nil {
		return nil, err
	}

	m, err := s.meta.Load()
	if err != nil {
		return nil, err
	}
	origin := m.Origin
	if origin == "" {
		origin = meta.DefaultOrigin
	}
	keyID, err := s.keys.ActiveKeyID(origin)
	if err != nil {
		return nil, err
	}

	first, last := sorted[0].ID, sorted[len(sorted)-1].ID
	manifest := Manifest{
		Version:         Version,
		SegmentID:       segmentID,
		CreatedAt:       s.clock.Now().UnixMilli(),
		Origin:          origin,
		KeyID:           keyID,
		Events:          int64(len(sorted)),
		FirstEventID:    &first,
		LastEventID:     &last,
		Root:            root,
		PrevSegmentRoot: prev,
		Algo:            SupportedAlgo,
	}

	if err := s.sign(&manifest); err != nil {
		return nil, err
	}

	encoded, err := manifest.Encode()
	if err != nil {
		return nil, err
	}
	if err := s.log.WriteSegment(segmentID, sorted, encoded); err != nil {
		return nil, err
	}
	if err := s.log.WriteBuffer(nil); err != nil {
		return nil, fmt.Errorf("clear buffer: %w", err)
	}

	s.logger.Info("sealed segment",
		"segment", segmentID,
		"events", manifest.Events,
		"root", manifest.Root,
	)

	return &Sealed{
		Manifest:     manifest,
		SegmentPath:  s.log.SegmentPath(segmentID),
		ManifestPath: s.log.ManifestPath(segmentID),
	}, nil
}

func (s *Sealer) sign(m *Manifest) error {
	priv, err := s.keys.PrivateKey()
	if err != nil {
		return err
	}

	msg, err := m.SigningMessage()
	if err != nil {
		return err
	}
	m.Signature = keys.Sign(priv, msg)

	pub, err := s.keys.ResolverFor(m.KeyID).PublicKey(m.KeyID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSelfVerify, err)
	}
	check, err := m.SigningMessage()
	if err != nil {
		return err
	}
	if !keys.Verify(pub, check, m.Signature) {
		return ErrSelfVerify
	}
	return nil
}

func (s *Sealer) prevRoot(ids []string) (*string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	data, err := s.log.ReadManifest(ids[len(ids)-1])
	if err != nil {
		return nil, err
	}
	m, err := ParseManifest(data)
	if err != nil {
		return nil, err
	}
	if m.Root == "" {
		return nil, nil
	}
	root := m.Root
	return &root, nil
}

// NextID returns the id following the highest of ids ("seg-000001" for
// none).
func NextID(ids []string) (string, error) {
	if len(ids) == 0 {
		return FormatID(1), nil
	}
	n, err := ParseID(ids[len(ids)-1])
	if err != nil {
		return "", err
	}
	return FormatID(n + 1), nil
}

// FormatID renders segment number n.
func FormatID(n int) string {
	return fmt.Sprintf("seg-%06d", n)
}

// ParseID extracts the number of a segment id.
func ParseID(id string) (int, error) {
	digits, ok := strings.CutPrefix(id, "seg-")
	if !ok {
		return 0, fmt.Errorf("invalid segment id %q", id)
	}
	n, err := strconv.Atoi(digits)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid segment id %q", id)
	}
	return n, nil
}
