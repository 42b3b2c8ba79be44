package conformance

import "github.com/roach88/plos/internal/projection"

// TraceEvent records what one flow step did.
type TraceEvent struct {
	Step     int    `json:"step"`
	Replica  string `json:"replica"`
	Op       string `json:"op"`
	EventID  string `json:"eventId,omitempty"`
	EntityID string `json:"entityId,omitempty"`
	Type     string `json:"type,omitempty"`
	Seq      int64  `json:"seq,omitempty"`
	Added    int    `json:"added,omitempty"`
	Total    int    `json:"total,omitempty"`
	Segment  string `json:"segment,omitempty"`
}

// Result is the outcome of a scenario.
type Result struct {
	// Pass is true if every assertion held.
	Pass bool `json:"pass"`

	// Trace lists the flow steps in execution order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains assertion failures. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// States holds each replica's final projection, keyed by origin.
	States map[string]projection.State `json:"states"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		States: map[string]projection.State{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
