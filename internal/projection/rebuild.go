package projection

import (
	"github.com/roach88/plos/internal/event"
	"github.com/roach88/plos/internal/value"
)

type fieldKey struct {
	entityID string
	field    string
}

type resolution struct {
	chosenEventID     string
	resolvedByEventID string
}

type write struct {
	value value.Value
	event event.Event
}

// rebuilder holds the working tables of one Rebuild call.
type rebuilder struct {
	byID        map[string]event.Event
	resolutions map[fieldKey]resolution
	lastWrite   map[fieldKey]write
	entities    map[string]value.Object
	conflicts   []Conflict
}

// Rebuild projects events into State. Non-core events are ignored. The input
// slice is not modified.
func Rebuild(events []event.Event) State {
	core := event.FilterCore(events)
	for i := range core {
		core[i] = event.Normalize(core[i])
	}
	event.Sort(core)

	r := &rebuilder{
		byID:        make(map[string]event.Event, len(core)),
		resolutions: make(map[fieldKey]resolution),
		lastWrite:   make(map[fieldKey]write),
		entities:    make(map[string]value.Object),
	}

	// Pass 1: index and resolution table.
	for _, e := range core {
		r.byID[e.ID] = e
		if p, ok := e.DecodePayload().(event.ConflictResolvedPayload); ok {
			if p.Field == "" {
				continue
			}
			r.resolutions[fieldKey{e.EntityID, p.Field}] = resolution{
				chosenEventID:     p.ChosenEventID,
				resolvedByEventID: e.ID,
			}
		}
	}

	// Pass 2: apply in total order.
	for _, e := range core {
		r.apply(e)
	}

	conflicts := r.conflicts
	if conflicts == nil {
		conflicts = []Conflict{}
	}
	return State{Entities: r.entities, Conflicts: conflicts}
}

func (r *rebuilder) entity(id string) value.Object {
	ent, ok := r.entities[id]
	if !ok {
		ent = value.Object{"id": value.String(id)}
		r.entities[id] = ent
	}
	return ent
}

func (r *rebuilder) apply(e event.Event) {
	ent := r.entity(e.EntityID)

	switch p := e.DecodePayload().(type) {
	case event.EntityCreatedPayload:
		for _, k := range p.Fields.SortedKeys() {
			v := p.Fields[k]
			ent[k] = v
			r.lastWrite[fieldKey{e.EntityID, k}] = write{value: v, event: e}
			r.reapply(ent, e.EntityID, k)
		}

	case event.StateUpdatedPayload:
		for _, k := range p.Fields.SortedKeys() {
			r.update(ent, e, k, p.Fields[k])
		}

	case event.RelationAddedPayload:
		ent["relations"] = appendList(ent["relations"], p.Relation)

	case event.MetricRecordedPayload:
		ent["metrics"] = appendList(ent["metrics"], p.Metric)

	case event.RelationRemovedPayload:
		list, ok := ent["relations"].(value.Array)
		if !ok {
			return
		}
		kept := make(value.Array, 0, len(list))
		for _, rel := range list {
			if obj, ok := rel.(value.Object); ok {
				if id, ok := obj["id"]; ok && value.Same(id, p.ID) {
					continue
				}
			}
			kept = append(kept, rel)
		}
		ent["relations"] = kept
	}
}

func (r *rebuilder) update(ent value.Object, e event.Event, field string, v value.Value) {
	key := fieldKey{e.EntityID, field}

	if prev, ok := r.lastWrite[key]; ok {
		if prev.event.Origin != e.Origin && !value.Same(prev.value, v) && event.Concurrent(prev.event, e) {
			r.conflicts = append(r.conflicts, r.conflict(key, prev, write{value: v, event: e}))
		}
	}

	ent[field] = v
	r.lastWrite[key] = write{value: v, event: e}
	r.reapply(ent, e.EntityID, field)
}

// conflict builds the record for prev and cur, cur being later in total order.
func (r *rebuilder) conflict(key fieldKey, prev, cur write) Conflict {
	c := Conflict{
		EntityID:   key.entityID,
		Field:      key.field,
		Candidates: [2]Candidate{candidate(prev), candidate(cur)},
		Winner:     candidate(cur),
	}

	res, ok := r.resolutions[key]
	if !ok {
		return c
	}
	c.Resolved = true
	c.ResolvedByEventID = res.resolvedByEventID
	c.ChosenEventID = res.chosenEventID
	if chosen, v, ok := r.chosen(key, res); ok {
		c.Winner = candidate(write{value: v, event: chosen})
	}
	return c
}

// chosen looks up the value the resolution's chosen event assigned to the field.
func (r *rebuilder) chosen(key fieldKey, res resolution) (event.Event, value.Value, bool) {
	chosen, ok := r.byID[res.chosenEventID]
	if !ok {
		return event.Event{}, nil, false
	}
	v, ok := chosen.Payload[key.field]
	if !ok {
		return event.Event{}, nil, false
	}
	return chosen, v, true
}

// reapply overwrites the field with its resolved value, if any.
func (r *rebuilder) reapply(ent value.Object, entityID, field string) {
	key := fieldKey{entityID, field}
	res, ok := r.resolutions[key]
	if !ok {
		return
	}
	if _, v, ok := r.chosen(key, res); ok {
		ent[field] = v
	}
}

func candidate(w write) Candidate {
	return Candidate{
		Value:     w.value,
		EventID:   w.event.ID,
		Origin:    w.event.Origin,
		Seq:       w.event.Seq,
		Timestamp: w.event.Timestamp,
	}
}

func appendList(cur value.Value, item value.Object) value.Array {
	list, _ := cur.(value.Array)
	out := make(value.Array, len(list), len(list)+1)
	copy(out, list)
	return append(out, item)
}
