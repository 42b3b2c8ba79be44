package event

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"

	"github.com/roach88/plos/internal/value"
)

// Decoding errors. Readers treat both as "skip this record".
var (
	ErrMalformed = errors.New("event: malformed record")
	ErrNotObject = errors.New("event: record is not a JSON object")
)

// New builds a fresh event with a random UUID.
func New(kind Type, entityID string, payload value.Object, timestamp int64, stamp Stamp) Event {
	return NewWithID(uuid.NewString(), kind, entityID, payload, timestamp, stamp)
}

// NewWithID is New with a caller-chosen id.
func NewWithID(id string, kind Type, entityID string, payload value.Object, timestamp int64, stamp Stamp) Event {
	if payload == nil {
		payload = value.Object{}
	}
	seen := make(map[string]int64, len(stamp.Seen))
	for k, v := range stamp.Seen {
		seen[k] = v
	}
	return Event{
		ID:        id,
		Type:      kind,
		EntityID:  entityID,
		Payload:   payload,
		Timestamp: timestamp,
		Origin:    stamp.Origin,
		Seq:       stamp.Seq,
		Seen:      seen,
	}
}

// Decode parses one JSON record into a normalized Event.
// The record must be an object with a string id, a string type and a numeric
// timestamp; everything else is tolerated and defaulted.
func Decode(data []byte) (Event, error) {
	v, err := value.Parse(data)
	if err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return FromValue(v)
}

// FromValue converts an already-parsed document to a normalized Event.
func FromValue(v value.Value) (Event, error) {
	doc, ok := v.(value.Object)
	if !ok {
		return Event{}, ErrNotObject
	}

	id, ok := doc["id"].(value.String)
	if !ok || id == "" {
		return Event{}, fmt.Errorf("%w: missing id", ErrMalformed)
	}
	typ, ok := doc["type"].(value.String)
	if !ok {
		return Event{}, fmt.Errorf("%w: event %s: missing type", ErrMalformed, id)
	}
	ts, ok := doc["timestamp"].(value.Number)
	if !ok || !finite(float64(ts)) {
		return Event{}, fmt.Errorf("%w: event %s: missing timestamp", ErrMalformed, id)
	}

	ev := Event{
		ID:        string(id),
		Type:      Type(typ),
		Timestamp: int64(ts),
		doc:       doc,
	}
	if entityID, ok := doc["entityId"].(value.String); ok {
		ev.EntityID = string(entityID)
	}
	if payload, ok := doc["payload"].(value.Object); ok {
		ev.Payload = payload
	}
	if origin, ok := doc["origin"].(value.String); ok {
		ev.Origin = string(origin)
	}
	if seq, ok := doc["seq"].(value.Number); ok && finite(float64(seq)) {
		ev.Seq = int64(seq)
	}
	if seen, ok := doc["seen"].(value.Object); ok {
		ev.Seen = make(map[string]int64, len(seen))
		for origin, n := range seen {
			if num, ok := n.(value.Number); ok && finite(float64(num)) {
				ev.Seen[origin] = int64(num)
			}
		}
	}

	return Normalize(ev), nil
}

// Normalize fills documented defaults for fields older records may lack.
// The retained document is not touched.
func Normalize(e Event) Event {
	e.Origin = NormalizeOrigin(e.Origin)
	if e.Seen == nil {
		e.Seen = map[string]int64{}
	}
	if e.Payload == nil {
		e.Payload = value.Object{}
	}
	return e
}

// NormalizeOrigin maps blank origins to LegacyOrigin.
func NormalizeOrigin(origin string) string {
	if strings.TrimSpace(origin) == "" {
		return LegacyOrigin
	}
	return origin
}

// Document returns the JSON document of the event: the decoded record when
// the event was read from storage, otherwise one built from its fields.
func (e Event) Document() value.Object {
	if e.doc != nil {
		return e.doc
	}

	seen := make(value.Object, len(e.Seen))
	for origin, n := range e.Seen {
		seen[origin] = value.Number(n)
	}
	payload := e.Payload
	if payload == nil {
		payload = value.Object{}
	}
	return value.Object{
		"id":        value.String(e.ID),
		"type":      value.String(e.Type),
		"entityId":  value.String(e.EntityID),
		"payload":   payload,
		"timestamp": value.Number(e.Timestamp),
		"origin":    value.String(e.Origin),
		"seq":       value.Number(e.Seq),
		"seen":      seen,
	}
}

// MarshalJSON implements json.Marshaler by writing the event's document.
func (e Event) MarshalJSON() ([]byte, error) {
	return e.Document().MarshalJSON()
}

// UnmarshalJSON implements json.Unmarshaler with the tolerant decoding rules.
func (e *Event) UnmarshalJSON(data []byte) error {
	ev, err := Decode(data)
	if err != nil {
		return err
	}
	*e = ev
	return nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
