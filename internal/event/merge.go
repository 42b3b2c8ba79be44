package event

// Merge unions event sets by id and returns them in total order.
// Ids are immutable by contract, so which side wins a collision does not
// matter; the right-hand side is kept.
func Merge(sets ...[]Event) []Event {
	byID := make(map[string]Event)
	for _, set := range sets {
		for _, e := range set {
			byID[e.ID] = e
		}
	}

	out := make([]Event, 0, len(byID))
	for _, e := range byID {
		out = append(out, e)
	}
	Sort(out)
	return out
}

// MaxSeqByOrigin returns the highest seq observed per normalized origin.
func MaxSeqByOrigin(events []Event) map[string]int64 {
	out := make(map[string]int64)
	for _, e := range events {
		origin := NormalizeOrigin(e.Origin)
		if cur, ok := out[origin]; !ok || e.Seq > cur {
			out[origin] = e.Seq
		}
	}
	return out
}

// IDs returns the set of ids present in events.
func IDs(events []Event) map[string]struct{} {
	out := make(map[string]struct{}, len(events))
	for _, e := range events {
		out[e.ID] = struct{}{}
	}
	return out
}

// FilterCore returns the events whose kind is in the core namespace.
func FilterCore(events []Event) []Event {
	out := make([]Event, 0, len(events))
	for _, e := range events {
		if e.IsCore() {
			out = append(out, e)
		}
	}
	return out
}
