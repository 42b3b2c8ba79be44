package conformance

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"github.com/roach88/plos/internal/canonical"
	"github.com/roach88/plos/internal/event"
	"github.com/roach88/plos/internal/eventlog"
	"github.com/roach88/plos/internal/projection"
	"github.com/roach88/plos/internal/value"
)

// File names inside a case directory.
const (
	CaseLogA          = "a.jsonl"
	CaseLogB          = "b.jsonl"
	CaseExpectedState = "expected.state.json"
	CaseExpectedCount = "expected.merged.count.json"
)

// CaseResult is the outcome of one case directory.
type CaseResult struct {
	Name        string           `json:"name"`
	Pass        bool             `json:"pass"`
	MergedCount int              `json:"mergedCount"`
	Errors      []string         `json:"errors,omitempty"`
	State       projection.State `json:"-"`
}

func (r *CaseResult) addError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
	r.Pass = false
}

// RunCase runs the case in dir. The error is reserved for cases that
// cannot be read; mismatches are reported in the result.
func RunCase(dir string, logger *slog.Logger) (*CaseResult, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	log := eventlog.New(dir, logger)

	a, err := readOptional(log, filepath.Join(dir, CaseLogA))
	if err != nil {
		return nil, err
	}
	b, err := readOptional(log, filepath.Join(dir, CaseLogB))
	if err != nil {
		return nil, err
	}

	merged := event.Merge(a, b)
	state := projection.Rebuild(merged)
	result := &CaseResult{
		Name:        filepath.Base(dir),
		Pass:        true,
		MergedCount: len(merged),
		State:       state,
	}

	if want, ok, err := readCount(filepath.Join(dir, CaseExpectedCount)); err != nil {
		return nil, err
	} else if ok && want != len(merged) {
		result.addError("merged event count mismatch: expected %d, got %d", want, len(merged))
	}

	expected, err := os.ReadFile(filepath.Join(dir, CaseExpectedState))
	if err != nil {
		return nil, fmt.Errorf("read expected state: %w", err)
	}
	wantJSON, err := canonicalDocument(expected)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", CaseExpectedState, err)
	}
	gotJSON, err := canonical.MarshalAny(state)
	if err != nil {
		return nil, fmt.Errorf("canonicalize state: %w", err)
	}
	if !bytes.Equal(wantJSON, gotJSON) {
		result.addError("state mismatch:\n  expected: %s\n  actual:   %s", wantJSON, gotJSON)
	}
	return result, nil
}

// RunCases runs every case directory under base, in name order.
func RunCases(base string, logger *slog.Logger) ([]*CaseResult, error) {
	entries, err := os.ReadDir(base)
	if err != nil {
		return nil, fmt.Errorf("read cases: %w", err)
	}

	var dirs []string
	for _, entry := range entries {
		if entry.IsDir() {
			dirs = append(dirs, entry.Name())
		}
	}
	slices.Sort(dirs)

	results := make([]*CaseResult, 0, len(dirs))
	for _, name := range dirs {
		res, err := RunCase(filepath.Join(base, name), logger)
		if err != nil {
			return nil, fmt.Errorf("case %s: %w", name, err)
		}
		results = append(results, res)
	}
	return results, nil
}

// readOptional reads a case log; a missing log is an empty replica.
func readOptional(log *eventlog.Log, path string) ([]event.Event, error) {
	events, _, err := log.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return events, err
}

func readCount(path string) (int, bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	var doc struct {
		Count *int `json:"count"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return 0, false, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	if doc.Count == nil {
		return 0, false, fmt.Errorf("parse %s: missing count", filepath.Base(path))
	}
	return *doc.Count, true, nil
}

func canonicalDocument(data []byte) ([]byte, error) {
	v, err := value.Parse(data)
	if err != nil {
		return nil, err
	}
	return canonical.Marshal(v)
}
