package event

import (
	"math/rand"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ev(id string, ts int64, origin string, seq int64) Event {
	return Normalize(Event{ID: id, Type: StateUpdated, EntityID: "E", Timestamp: ts, Origin: origin, Seq: seq})
}

func ids(events []Event) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.ID
	}
	return out
}

func TestCompareKeyPriority(t *testing.T) {
	tests := []struct {
		name string
		a, b Event
	}{
		{"timestamp first", ev("z", 1, "Z", 9), ev("a", 2, "A", 1)},
		{"origin second", ev("z", 1, "A", 9), ev("a", 1, "B", 1)},
		{"seq third", ev("z", 1, "A", 1), ev("a", 1, "A", 2)},
		{"id last", ev("a", 1, "A", 1), ev("b", 1, "A", 1)},
		{"blank origin normalizes to legacy", ev("a", 1, "", 1), ev("b", 1, "m", 1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Negative(t, Compare(tt.a, tt.b))
			assert.Positive(t, Compare(tt.b, tt.a))
		})
	}
}

func TestCompareLexicographicNotLocale(t *testing.T) {
	// Byte order puts upper case before lower case.
	assert.Negative(t, Compare(ev("1", 1, "B", 1), ev("2", 1, "a", 1)))
}

func TestCompareIrreflexive(t *testing.T) {
	e := ev("x", 10, "A", 3)
	assert.Zero(t, Compare(e, e))
	assert.False(t, Less(e, e))
}

func TestSortPermutationIndependent(t *testing.T) {
	base := []Event{
		ev("e1", 100, "A", 1),
		ev("e2", 100, "B", 1),
		ev("e3", 100, "A", 2),
		ev("e4", 50, "C", 7),
		ev("e5", 100, "A", 2),
		ev("e6", 200, "", 0),
	}
	want := ids(Sorted(base))

	r := rand.New(rand.NewSource(1))
	for i := 0; i < 100; i++ {
		shuffled := append([]Event(nil), base...)
		r.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		assert.Equal(t, want, ids(Sorted(shuffled)))
	}
	assert.Equal(t, []string{"e4", "e1", "e3", "e5", "e2", "e6"}, want)
}

func TestSortedDoesNotMutateInput(t *testing.T) {
	in := []Event{ev("b", 2, "A", 1), ev("a", 1, "A", 1)}
	_ = Sorted(in)
	assert.Equal(t, []string{"b", "a"}, ids(in))
}

func TestCompareStrictWeakOrderProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	genEvent := gopter.CombineGens(
		gen.Int64Range(0, 3),
		gen.OneConstOf("A", "B", "", "legacy"),
		gen.Int64Range(0, 3),
		gen.OneConstOf("e1", "e2", "e3"),
	).Map(func(vals []interface{}) Event {
		return Event{
			ID:        vals[3].(string),
			Timestamp: vals[0].(int64),
			Origin:    vals[1].(string),
			Seq:       vals[2].(int64),
		}
	})

	properties.Property("antisymmetric", prop.ForAll(
		func(a, b Event) bool {
			return Compare(a, b) == -Compare(b, a)
		},
		genEvent, genEvent,
	))

	properties.Property("transitive", prop.ForAll(
		func(a, b, c Event) bool {
			if Compare(a, b) < 0 && Compare(b, c) < 0 {
				return Compare(a, c) < 0
			}
			return true
		},
		genEvent, genEvent, genEvent,
	))

	properties.TestingRun(t)
}

func TestCompareFractionalTimestamps(t *testing.T) {
	later, err := Decode([]byte(`{"id":"x","type":"plos.core/StateUpdated","entityId":"E","timestamp":1.7,"origin":"a","seq":1}`))
	require.NoError(t, err)
	earlier, err := Decode([]byte(`{"id":"y","type":"plos.core/StateUpdated","entityId":"E","timestamp":1.2,"origin":"b","seq":1}`))
	require.NoError(t, err)

	assert.Equal(t, 1.7, later.TimestampValue())
	assert.Positive(t, Compare(later, earlier))
	assert.Equal(t, []string{"y", "x"}, ids(Sorted([]Event{later, earlier})))

	// Seq compares at full precision too.
	s1, err := Decode([]byte(`{"id":"b","type":"plos.core/StateUpdated","timestamp":5,"origin":"a","seq":2.6}`))
	require.NoError(t, err)
	s2, err := Decode([]byte(`{"id":"a","type":"plos.core/StateUpdated","timestamp":5,"origin":"a","seq":2.4}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids(Sorted([]Event{s1, s2})))
}

func TestTimestampValueIgnoresStaleDocument(t *testing.T) {
	e, err := Decode([]byte(`{"id":"x","type":"plos.core/StateUpdated","timestamp":1.7}`))
	require.NoError(t, err)
	e.Timestamp = 9
	assert.Equal(t, 9.0, e.TimestampValue())
}
