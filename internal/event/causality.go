package event

// Sees reports whether the author of a had observed b (or a later event from
// b's origin) when a was emitted.
func Sees(a, b Event) bool {
	seen, ok := a.SeenValue(NormalizeOrigin(b.Origin))
	return ok && seen >= b.SeqValue()
}

// Concurrent reports whether neither event's author had observed the other.
// Only concurrent writes are genuine conflicts; a write made with knowledge
// of the previous value is a plain overwrite.
func Concurrent(a, b Event) bool {
	return !Sees(a, b) && !Sees(b, a)
}
