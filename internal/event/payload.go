package event

import "github.com/roach88/plos/internal/value"

// Payload is the typed view of an event's payload, one variant per kind.
type Payload interface {
	Kind() Type
}

// EntityCreatedPayload holds the initial fields of a new entity.
type EntityCreatedPayload struct {
	Fields value.Object
}

// StateUpdatedPayload holds the fields overwritten by an update.
type StateUpdatedPayload struct {
	Fields value.Object
}

// RelationAddedPayload is appended verbatim to the entity's relations.
type RelationAddedPayload struct {
	Relation value.Object
}

// RelationRemovedPayload names the relation id to drop.
type RelationRemovedPayload struct {
	ID value.Value
}

// MetricRecordedPayload is appended verbatim to the entity's metrics.
type MetricRecordedPayload struct {
	Metric value.Object
}

// ConflictResolvedPayload designates the event whose value wins for Field.
type ConflictResolvedPayload struct {
	Field         string
	ChosenEventID string
}

// UnknownPayload preserves the raw payload of kinds this version does not
// interpret.
type UnknownPayload struct {
	Type Type
	Raw  value.Object
}

func (EntityCreatedPayload) Kind() Type    { return EntityCreated }
func (StateUpdatedPayload) Kind() Type     { return StateUpdated }
func (RelationAddedPayload) Kind() Type    { return RelationAdded }
func (RelationRemovedPayload) Kind() Type  { return RelationRemoved }
func (MetricRecordedPayload) Kind() Type   { return MetricRecorded }
func (ConflictResolvedPayload) Kind() Type { return ConflictResolved }
func (p UnknownPayload) Kind() Type        { return p.Type }

// DecodePayload returns the typed payload variant for the event's kind.
func (e Event) DecodePayload() Payload {
	payload := e.Payload
	if payload == nil {
		payload = value.Object{}
	}

	switch e.Type {
	case EntityCreated:
		return EntityCreatedPayload{Fields: payload}
	case StateUpdated:
		return StateUpdatedPayload{Fields: payload}
	case RelationAdded:
		return RelationAddedPayload{Relation: payload}
	case RelationRemoved:
		id, ok := payload["id"]
		if !ok {
			id = value.Null{}
		}
		return RelationRemovedPayload{ID: id}
	case MetricRecorded:
		return MetricRecordedPayload{Metric: payload}
	case ConflictResolved:
		p := ConflictResolvedPayload{}
		if f, ok := payload["field"].(value.String); ok {
			p.Field = string(f)
		}
		if c, ok := payload["chosenEventId"].(value.String); ok {
			p.ChosenEventID = string(c)
		}
		return p
	default:
		return UnknownPayload{Type: e.Type, Raw: payload}
	}
}
