package projection

import "github.com/roach88/plos/internal/event"

// Merge unions two replicas' events by id in total order.
func Merge(a, b []event.Event) []event.Event {
	return event.Merge(a, b)
}

// MergeAndRebuild is Rebuild(Merge(a, b)).
func MergeAndRebuild(a, b []event.Event) State {
	return Rebuild(Merge(a, b))
}
