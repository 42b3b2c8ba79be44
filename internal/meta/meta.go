// Package meta persists the replica's own bookkeeping: its origin name, the
// next sequence number it will assign, and the highest sequence it has seen
// from every origin.
//
// Every operation is a whole-file read-modify-write of data/meta.json.
// Nothing is cached in memory between calls, so separate CLI invocations
// always observe each other's writes.
package meta

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/plos/internal/event"
	"github.com/roach88/plos/internal/fileutil"
)

// DefaultOrigin names a replica that never chose an origin.
const DefaultOrigin = "default"

// ErrEmptyOrigin is returned when an origin name is blank.
var ErrEmptyOrigin = errors.New("meta: origin must not be empty")

// Meta is the persisted allocator state.
type Meta struct {
	Origin  string           `json:"origin"`
	NextSeq int64            `json:"nextSeq"`
	Seen    map[string]int64 `json:"seen"`
}

// Store reads and writes Meta at a fixed path.
type Store struct {
	path string
}

// NewStore returns a Store backed by path. The file is created on first use.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file.
func (s *Store) Path() string {
	return s.path
}

func defaultMeta() Meta {
	return Meta{Origin: DefaultOrigin, NextSeq: 1, Seen: map[string]int64{}}
}

// Load returns the current Meta, creating the default file when absent.
func (s *Store) Load() (Meta, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		m := defaultMeta()
		if err := s.Save(m); err != nil {
			return Meta{}, err
		}
		return m, nil
	}
	if err != nil {
		return Meta{}, fmt.Errorf("read meta: %w", err)
	}

	var m Meta
	if err := json.Unmarshal(data, &m); err != nil {
		return Meta{}, fmt.Errorf("parse meta %s: %w", s.path, err)
	}
	if m.Seen == nil {
		m.Seen = map[string]int64{}
	}
	return m, nil
}

// Save writes m as indented JSON.
func (s *Store) Save(m Meta) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal meta: %w", err)
	}
	data = append(data, '\n')
	if err := fileutil.WriteAtomic(s.path, data, 0o644); err != nil {
		return fmt.Errorf("save meta: %w", err)
	}
	return nil
}

// Allocate assigns the next (origin, seq) pair and returns it with a
// snapshot of the seen map taken before the new seq is folded in.
func (s *Store) Allocate() (event.Stamp, error) {
	m, err := s.Load()
	if err != nil {
		return event.Stamp{}, err
	}

	origin := m.Origin
	if origin == "" {
		origin = DefaultOrigin
	}
	if _, ok := m.Seen[origin]; !ok {
		m.Seen[origin] = 0
	}
	seq := m.NextSeq
	if seq < 1 {
		seq = 1
	}

	snapshot := make(map[string]int64, len(m.Seen))
	for k, v := range m.Seen {
		snapshot[k] = v
	}

	m.Seen[origin] = max(m.Seen[origin], seq)
	m.NextSeq = seq + 1
	if err := s.Save(m); err != nil {
		return event.Stamp{}, err
	}

	return event.Stamp{Origin: origin, Seq: seq, Seen: snapshot}, nil
}

// MergeSeen raises each origin's known maximum and keeps NextSeq ahead of
// the highest seq observed for our own origin.
func (s *Store) MergeSeen(maxByOrigin map[string]int64) error {
	m, err := s.Load()
	if err != nil {
		return err
	}

	for origin, seq := range maxByOrigin {
		m.Seen[origin] = max(m.Seen[origin], seq)
	}

	self := m.Origin
	if self == "" {
		self = DefaultOrigin
	}
	next := m.NextSeq
	if next < 1 {
		next = 1
	}
	m.NextSeq = max(next, m.Seen[self]+1)

	return s.Save(m)
}

// SetOrigin renames the local replica. The name is NFC-normalized so that
// visually identical names typed on different systems compare equal. The
// normalized name is returned.
func (s *Store) SetOrigin(name string) (string, error) {
	origin, err := NormalizeName(name)
	if err != nil {
		return "", err
	}

	m, err := s.Load()
	if err != nil {
		return "", err
	}
	m.Origin = origin
	if _, ok := m.Seen[origin]; !ok {
		m.Seen[origin] = 0
	}
	return origin, s.Save(m)
}

// Reset discards all bookkeeping and starts over as origin.
func (s *Store) Reset(origin string) error {
	if strings.TrimSpace(origin) == "" {
		origin = DefaultOrigin
	}
	origin, err := NormalizeName(origin)
	if err != nil {
		return err
	}
	return s.Save(Meta{Origin: origin, NextSeq: 1, Seen: map[string]int64{origin: 0}})
}

// NormalizeName trims and NFC-normalizes an origin name.
func NormalizeName(name string) (string, error) {
	name = norm.NFC.String(strings.TrimSpace(name))
	if name == "" {
		return "", ErrEmptyOrigin
	}
	return name, nil
}
