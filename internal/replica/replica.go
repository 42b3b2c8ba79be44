package replica

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/roach88/plos/internal/config"
	"github.com/roach88/plos/internal/eventlog"
	"github.com/roach88/plos/internal/keys"
	"github.com/roach88/plos/internal/logging"
	"github.com/roach88/plos/internal/meta"
	"github.com/roach88/plos/internal/metrics"
	"github.com/roach88/plos/internal/segment"
	"github.com/roach88/plos/internal/store"
)

// MetaFile is the allocator state file inside the data directory.
const MetaFile = "meta.json"

// IDGenerator produces entity, event and bundle ids.
type IDGenerator interface {
	NewID() string
}

type uuidGenerator struct{}

func (uuidGenerator) NewID() string { return uuid.NewString() }

// Replica is one local replica rooted at a configured directory.
type Replica struct {
	cfg      *config.Config
	log      *eventlog.Log
	meta     *meta.Store
	keys     *keys.Store
	sealer   *segment.Sealer
	verifier *segment.Verifier
	metrics  *metrics.Metrics
	index    *store.Store

	clock  segment.Clock
	ids    IDGenerator
	logger *slog.Logger
}

// Option configures a Replica.
type Option func(*Replica)

// WithClock sets the clock used for event timestamps, manifest and bundle
// creation times.
func WithClock(c segment.Clock) Option {
	return func(r *Replica) {
		r.clock = c
	}
}

// WithIDGenerator sets the id source for new entities, events and bundles.
func WithIDGenerator(g IDGenerator) Option {
	return func(r *Replica) {
		r.ids = g
	}
}

// WithLogger sets the replica's logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Replica) {
		r.logger = l
	}
}

// WithMetrics sets the metrics the replica records into.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Replica) {
		r.metrics = m
	}
}

// Open wires a replica for cfg. Nothing is created on disk until the first
// operation that needs it.
func Open(cfg *config.Config, opts ...Option) (*Replica, error) {
	if cfg == nil {
		return nil, errors.New("replica: nil config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	r := &Replica{
		cfg:    cfg,
		clock:  realClock{},
		ids:    uuidGenerator{},
		logger: logging.Discard(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.metrics == nil {
		r.metrics = metrics.New()
	}

	dataDir := cfg.DataPath()
	r.log = eventlog.New(dataDir, r.logger)
	r.meta = meta.NewStore(filepath.Join(dataDir, MetaFile))
	r.keys = keys.NewStore(cfg.Root, cfg.KeysPath())
	r.sealer = segment.NewSealer(r.log, r.keys, r.meta,
		segment.WithClock(r.clock),
		segment.WithLogger(r.logger),
	)
	r.verifier = segment.NewVerifier(r.log, r.keys, r.logger)
	return r, nil
}

// Close releases the index and flushes metrics when a metrics file is
// configured.
func (r *Replica) Close() error {
	var errs []error
	if r.index != nil {
		errs = append(errs, r.index.Close())
		r.index = nil
	}
	errs = append(errs, r.FlushMetrics())
	return errors.Join(errs...)
}

// FlushMetrics writes the metrics textfile, if one is configured.
func (r *Replica) FlushMetrics() error {
	path := r.cfg.MetricsPath()
	if path == "" {
		return nil
	}
	return r.metrics.WriteTextfile(path)
}

// Config returns the replica's configuration.
func (r *Replica) Config() *config.Config { return r.cfg }

// Log returns the replica's event log.
func (r *Replica) Log() *eventlog.Log { return r.log }

// Metrics returns the replica's metrics.
func (r *Replica) Metrics() *metrics.Metrics { return r.metrics }

func (r *Replica) now() int64 {
	return r.clock.Now().UnixMilli()
}

// openIndex opens the SQLite index on first use.
func (r *Replica) openIndex(ctx context.Context) (*store.Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.index != nil {
		return r.index, nil
	}
	if err := ensureDir(r.cfg.IndexPath()); err != nil {
		return nil, err
	}
	s, err := store.Open(r.cfg.IndexPath())
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	r.index = s
	return s, nil
}
