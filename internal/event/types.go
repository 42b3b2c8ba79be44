package event

import (
	"strings"

	"github.com/roach88/plos/internal/value"
)

// CorePrefix namespaces the event kinds this package understands.
const CorePrefix = "plos.core/"

// LegacyOrigin is the origin assigned to events written before origins existed.
const LegacyOrigin = "legacy"

// Type identifies the kind of an event.
type Type string

// Core event kinds.
const (
	EntityCreated    Type = CorePrefix + "EntityCreated"
	StateUpdated     Type = CorePrefix + "StateUpdated"
	RelationAdded    Type = CorePrefix + "RelationAdded"
	RelationRemoved  Type = CorePrefix + "RelationRemoved"
	MetricRecorded   Type = CorePrefix + "MetricRecorded"
	ConflictResolved Type = CorePrefix + "ConflictResolved"
)

// IsCore reports whether t is in the core namespace. Kinds in the namespace
// that this version does not know are still core (forward compatibility);
// projection ignores them.
func (t Type) IsCore() bool {
	return strings.HasPrefix(string(t), CorePrefix)
}

// Event is the unit of change.
type Event struct {
	ID        string           `json:"id"`
	Type      Type             `json:"type"`
	EntityID  string           `json:"entityId"`
	Payload   value.Object     `json:"payload"`
	Timestamp int64            `json:"timestamp"` // epoch milliseconds
	Origin    string           `json:"origin"`
	Seq       int64            `json:"seq"`
	Seen      map[string]int64 `json:"seen"`

	// doc is the document the event was decoded from, if any.
	doc value.Object
}

// IsCore reports whether the event belongs to the core namespace.
func (e Event) IsCore() bool {
	return e.Type.IsCore()
}

// Stamp carries the per-origin bookkeeping assigned at emission time.
type Stamp struct {
	Origin string
	Seq    int64
	Seen   map[string]int64
}

// TimestampValue returns the timestamp at the precision it was decoded
// with. Decoded records may carry fractional milliseconds that the
// Timestamp field truncates.
func (e Event) TimestampValue() float64 {
	return e.exact("timestamp", e.Timestamp)
}

// SeqValue returns the seq at the precision it was decoded with.
func (e Event) SeqValue() float64 {
	return e.exact("seq", e.Seq)
}

// SeenValue returns the seen entry for origin at decoded precision.
func (e Event) SeenValue(origin string) (float64, bool) {
	n, ok := e.Seen[origin]
	if !ok {
		return 0, false
	}
	if seen, ok := e.doc["seen"].(value.Object); ok {
		if num, ok := seen[origin].(value.Number); ok && int64(num) == n {
			return float64(num), true
		}
	}
	return float64(n), true
}

// exact prefers the retained document's number for key as long as it still
// agrees with the truncated field.
func (e Event) exact(key string, field int64) float64 {
	if num, ok := e.doc[key].(value.Number); ok && int64(num) == field {
		return float64(num)
	}
	return float64(field)
}
