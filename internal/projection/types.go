package projection

import "github.com/roach88/plos/internal/value"

// State is the result of a projection.
type State struct {
	Entities  map[string]value.Object `json:"entities"`
	Conflicts []Conflict              `json:"conflicts"`
}

// Candidate is one side of a conflicting write.
type Candidate struct {
	Value     value.Value `json:"value"`
	EventID   string      `json:"eventId"`
	Origin    string      `json:"origin"`
	Seq       int64       `json:"seq"`
	Timestamp int64       `json:"timestamp"`
}

// Conflict records two concurrent writes from different origins to the same
// entity field.
type Conflict struct {
	EntityID   string       `json:"entityId"`
	Field      string       `json:"field"`
	Candidates [2]Candidate `json:"candidates"`
	Winner     Candidate    `json:"winner"`

	Resolved          bool   `json:"resolved,omitempty"`
	ResolvedByEventID string `json:"resolvedByEventId,omitempty"`
	ChosenEventID     string `json:"chosenEventId,omitempty"`
}

// Entity returns the projected entity and whether it exists.
func (s State) Entity(id string) (value.Object, bool) {
	e, ok := s.Entities[id]
	return e, ok
}

// ConflictsFor returns the conflicts recorded for one entity, in detection order.
func (s State) ConflictsFor(entityID string) []Conflict {
	var out []Conflict
	for _, c := range s.Conflicts {
		if c.EntityID == entityID {
			out = append(out, c)
		}
	}
	return out
}

// Unresolved returns the conflicts no ConflictResolved event has settled.
func (s State) Unresolved() []Conflict {
	var out []Conflict
	for _, c := range s.Conflicts {
		if !c.Resolved {
			out = append(out, c)
		}
	}
	return out
}
