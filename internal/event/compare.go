package event

import (
	"cmp"
	"slices"
	"strings"
)

// Compare imposes the global deterministic order over events.
//
// Keys, in priority order:
//  1. timestamp ascending
//  2. normalized origin, byte-lexicographic
//  3. normalized seq ascending
//  4. id, byte-lexicographic (final tie-break; ids are unique)
//
// Compare is pure. It is the only source of merge-order determinism between
// replicas that never talked to each other.
func Compare(a, b Event) int {
	if c := cmp.Compare(a.TimestampValue(), b.TimestampValue()); c != 0 {
		return c
	}
	if c := strings.Compare(NormalizeOrigin(a.Origin), NormalizeOrigin(b.Origin)); c != 0 {
		return c
	}
	if c := cmp.Compare(a.SeqValue(), b.SeqValue()); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}

// Less reports whether a sorts before b.
func Less(a, b Event) bool {
	return Compare(a, b) < 0
}

// Sort orders events in place by Compare.
func Sort(events []Event) {
	slices.SortStableFunc(events, Compare)
}

// Sorted returns a sorted copy of events; the input is not modified.
func Sorted(events []Event) []Event {
	out := slices.Clone(events)
	Sort(out)
	return out
}
