package eventlog

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/roach88/plos/internal/canonical"
	"github.com/roach88/plos/internal/event"
	"github.com/roach88/plos/internal/fileutil"
)

// File and directory names under the data directory.
const (
	BufferFile  = "events.jsonl"
	SegmentsDir = "segments"
)

// Log is the file-backed event log of one replica.
type Log struct {
	dir    string
	logger *slog.Logger
}

// New returns a Log rooted at the data directory dir.
func New(dir string, logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Log{dir: dir, logger: logger}
}

// Dir returns the data directory.
func (l *Log) Dir() string { return l.dir }

// BufferPath returns the path of the unsealed buffer.
func (l *Log) BufferPath() string { return filepath.Join(l.dir, BufferFile) }

// SegmentsPath returns the segment directory.
func (l *Log) SegmentsPath() string { return filepath.Join(l.dir, SegmentsDir) }

// EncodeLine returns the canonical JSONL encoding of e, newline included.
func EncodeLine(e event.Event) ([]byte, error) {
	data, err := canonical.Marshal(e.Document())
	if err != nil {
		return nil, fmt.Errorf("encode event %s: %w", e.ID, err)
	}
	return append(data, '\n'), nil
}

func encodeLines(events []event.Event) ([]byte, error) {
	var buf bytes.Buffer
	for _, e := range events {
		line, err := EncodeLine(e)
		if err != nil {
			return nil, err
		}
		buf.Write(line)
	}
	return buf.Bytes(), nil
}

// ReadBuffer returns the buffered events in file order. A missing buffer is
// an empty one.
func (l *Log) ReadBuffer() ([]event.Event, error) {
	events, _, err := l.ReadFile(l.BufferPath())
	if errors.Is(err, os.ErrNotExist) {
		return []event.Event{}, nil
	}
	return events, err
}

// AppendBuffer appends events to the buffer.
func (l *Log) AppendBuffer(events ...event.Event) error {
	data, err := encodeLines(events)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	f, err := os.OpenFile(l.BufferPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open buffer: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("append buffer: %w", err)
	}
	return f.Close()
}

// WriteBuffer replaces the buffer with events.
func (l *Log) WriteBuffer(events []event.Event) error {
	data, err := encodeLines(events)
	if err != nil {
		return err
	}
	if err := fileutil.WriteAtomic(l.BufferPath(), data, 0o644); err != nil {
		return fmt.Errorf("write buffer: %w", err)
	}
	return nil
}

// ReadFile decodes a JSONL file. Malformed lines are skipped and counted.
func (l *Log) ReadFile(path string) ([]event.Event, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()
	return l.decode(f, path)
}

// Decode reads JSONL events from r with the same tolerance as ReadFile.
// name labels warnings.
func (l *Log) Decode(r io.Reader, name string) ([]event.Event, int, error) {
	return l.decode(r, name)
}

func (l *Log) decode(r io.Reader, name string) ([]event.Event, int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	events := []event.Event{}
	skipped := 0
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		e, err := event.Decode(line)
		if err != nil {
			skipped++
			l.logger.Warn("skipping malformed event line",
				"file", name,
				"line", lineNo,
				"error", err,
			)
			continue
		}
		events = append(events, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, skipped, fmt.Errorf("read %s: %w", name, err)
	}
	return events, skipped, nil
}
