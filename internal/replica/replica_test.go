package replica

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/plos/internal/config"
	"github.com/roach88/plos/internal/event"
	"github.com/roach88/plos/internal/keys"
	"github.com/roach88/plos/internal/segment"
	"github.com/roach88/plos/internal/testutil"
	"github.com/roach88/plos/internal/value"
)

// newTestReplica opens a replica with a deterministic clock and ids in a
// temp dir and names its origin.
func newTestReplica(t *testing.T, origin string, tune ...func(*config.Config)) *Replica {
	t.Helper()
	return newTestReplicaWithIDs(t, origin, strings.ToLower(origin), tune...)
}

func newTestReplicaWithIDs(t *testing.T, origin, idPrefix string, tune ...func(*config.Config)) *Replica {
	t.Helper()
	cfg := config.Default(t.TempDir())
	for _, f := range tune {
		f(cfg)
	}
	r, err := Open(cfg,
		WithClock(testutil.NewDeterministicClock()),
		WithIDGenerator(testutil.NewSequentialIDs(idPrefix)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })

	_, err = r.SetOrigin(origin)
	require.NoError(t, err)
	return r
}

func withThreshold(n int) func(*config.Config) {
	return func(c *config.Config) { c.Seal.Threshold = n }
}

func withIndex(c *config.Config) { c.Index.Enabled = true }

func TestCreate(t *testing.T) {
	ctx := context.Background()
	a := newTestReplica(t, "A")

	res, err := a.Create(ctx, "  Stabilise finances  ")
	require.NoError(t, err)
	assert.Nil(t, res.Sealed)

	e := res.Event
	assert.Equal(t, "a-0002", e.ID)
	assert.Equal(t, "a-0001", e.EntityID)
	assert.Equal(t, event.EntityCreated, e.Type)
	assert.Equal(t, "A", e.Origin)
	assert.Equal(t, int64(1), e.Seq)
	assert.Equal(t, map[string]int64{"A": 0}, e.Seen)
	assert.Equal(t, value.String("Stabilise finances"), e.Payload["name"])
	assert.Equal(t, value.String("active"), e.Payload["status"])
	assert.Equal(t, value.Number(float64(testutil.Epoch.UnixMilli())), e.Payload["createdAt"])
	assert.Equal(t, testutil.Epoch.UnixMilli(), e.Timestamp)

	state, err := a.State(ctx)
	require.NoError(t, err)
	ent, ok := state.Entity("a-0001")
	require.True(t, ok)
	assert.Equal(t, value.String("a-0001"), ent["id"])
	assert.Equal(t, value.String("active"), ent["status"])
}

func TestAppend_Validation(t *testing.T) {
	ctx := context.Background()
	a := newTestReplica(t, "A")

	_, err := a.Create(ctx, "   ")
	assert.ErrorIs(t, err, ErrEmptyName)
	_, err = a.Update(ctx, "", "status", value.String("x"))
	assert.ErrorIs(t, err, ErrEmptyEntity)
	_, err = a.Update(ctx, "E", "", value.String("x"))
	assert.ErrorIs(t, err, ErrEmptyField)
	_, err = a.Resolve(ctx, "E", "status", "")
	assert.Error(t, err)
	_, err = a.Relate(ctx, "E", value.Object{"kind": value.String("blocks")})
	assert.Error(t, err)

	events, err := a.Events(ctx)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestSeqsIncreasePerOrigin(t *testing.T) {
	ctx := context.Background()
	a := newTestReplica(t, "A")

	created, err := a.Create(ctx, "x")
	require.NoError(t, err)
	id := created.Event.EntityID

	for i := 0; i < 3; i++ {
		_, err := a.Update(ctx, id, "n", value.Number(float64(i)))
		require.NoError(t, err)
	}

	events, err := a.Events(ctx)
	require.NoError(t, err)
	require.Len(t, events, 4)
	for i, e := range events {
		assert.Equal(t, int64(i+1), e.Seq)
		assert.Equal(t, int64(i), e.Seen["A"])
	}
}

func TestRelationsAndMetrics(t *testing.T) {
	ctx := context.Background()
	a := newTestReplica(t, "A")

	created, err := a.Create(ctx, "x")
	require.NoError(t, err)
	id := created.Event.EntityID

	_, err = a.Relate(ctx, id, value.Object{"id": value.String("r1"), "to": value.String("y")})
	require.NoError(t, err)
	_, err = a.Relate(ctx, id, value.Object{"id": value.String("r2"), "to": value.String("z")})
	require.NoError(t, err)
	_, err = a.Unrelate(ctx, id, "r1")
	require.NoError(t, err)
	_, err = a.Record(ctx, id, value.Object{"name": value.String("hours"), "value": value.Number(2)})
	require.NoError(t, err)

	state, err := a.State(ctx)
	require.NoError(t, err)
	ent, ok := state.Entity(id)
	require.True(t, ok)

	rels, ok := ent["relations"].(value.Array)
	require.True(t, ok)
	require.Len(t, rels, 1)
	assert.Equal(t, value.String("r2"), rels[0].(value.Object)["id"])

	metrics, ok := ent["metrics"].(value.Array)
	require.True(t, ok)
	assert.Len(t, metrics, 1)
}

// TestConcurrentUpdates_ConflictAndResolution walks two replicas through a
// concurrent write to the same field and its resolution.
func TestConcurrentUpdates_ConflictAndResolution(t *testing.T) {
	ctx := context.Background()
	a := newTestReplica(t, "A")
	b := newTestReplica(t, "B")

	created, err := a.Create(ctx, "Plan")
	require.NoError(t, err)
	entity := created.Event.EntityID

	res, err := b.Sync(ctx, a.Log().BufferPath())
	require.NoError(t, err)
	assert.Equal(t, MergeResult{Received: 1, Added: 1, Total: 1}, res)

	fromA, err := a.Update(ctx, entity, "status", value.String("done"))
	require.NoError(t, err)
	fromB, err := b.Update(ctx, entity, "status", value.String("paused"))
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"A": 1, "B": 0}, fromB.Event.Seen)
	assert.True(t, event.Concurrent(fromA.Event, fromB.Event))

	_, err = a.Sync(ctx, b.Log().BufferPath())
	require.NoError(t, err)
	_, err = b.Sync(ctx, a.Log().BufferPath())
	require.NoError(t, err)

	stateA, err := a.State(ctx)
	require.NoError(t, err)
	stateB, err := b.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, stateA, stateB, "replicas converge after exchanging logs")

	require.Len(t, stateA.Conflicts, 1)
	c := stateA.Conflicts[0]
	assert.Equal(t, entity, c.EntityID)
	assert.Equal(t, "status", c.Field)
	assert.False(t, c.Resolved)
	// A's update is later in total order (E+1ms vs E+0ms).
	assert.Equal(t, fromA.Event.ID, c.Winner.EventID)
	ent, _ := stateA.Entity(entity)
	assert.Equal(t, value.String("done"), ent["status"])

	_, err = b.Resolve(ctx, entity, "status", fromB.Event.ID)
	require.NoError(t, err)
	_, err = a.Sync(ctx, b.Log().BufferPath())
	require.NoError(t, err)

	conflicts, err := a.Conflicts(ctx)
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.True(t, conflicts[0].Resolved)
	assert.Equal(t, fromB.Event.ID, conflicts[0].ChosenEventID)

	stateA, err = a.State(ctx)
	require.NoError(t, err)
	ent, _ = stateA.Entity(entity)
	assert.Equal(t, value.String("paused"), ent["status"])
}

func TestSync_Idempotent(t *testing.T) {
	ctx := context.Background()
	a := newTestReplica(t, "A")
	b := newTestReplica(t, "B")

	_, err := a.Create(ctx, "x")
	require.NoError(t, err)

	_, err = b.Sync(ctx, a.Log().BufferPath())
	require.NoError(t, err)
	before, err := os.ReadFile(b.Log().BufferPath())
	require.NoError(t, err)

	res, err := b.Sync(ctx, a.Log().BufferPath())
	require.NoError(t, err)
	assert.Zero(t, res.Added)
	assert.Equal(t, 1, res.Total)

	after, err := os.ReadFile(b.Log().BufferPath())
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))
}

func TestSync_AdvancesAllocator(t *testing.T) {
	ctx := context.Background()
	a := newTestReplica(t, "A")
	other := newTestReplicaWithIDs(t, "A", "other")

	for i := 0; i < 3; i++ {
		_, err := other.Create(ctx, "x")
		require.NoError(t, err)
	}

	// Same origin name on both sides: the next local seq must not reuse 1-3.
	_, err := a.Sync(ctx, other.Log().BufferPath())
	require.NoError(t, err)

	res, err := a.Create(ctx, "y")
	require.NoError(t, err)
	assert.Equal(t, int64(4), res.Event.Seq)
	assert.Equal(t, int64(3), res.Event.Seen["A"])
}

func TestSync_SkipsMalformedLines(t *testing.T) {
	ctx := context.Background()
	a := newTestReplica(t, "A")
	b := newTestReplica(t, "B")

	_, err := a.Create(ctx, "x")
	require.NoError(t, err)
	data, err := os.ReadFile(a.Log().BufferPath())
	require.NoError(t, err)

	peer := filepath.Join(t.TempDir(), "peer.jsonl")
	require.NoError(t, os.WriteFile(peer, append([]byte("{not json\n[1,2]\n"), data...), 0o644))

	res, err := b.Sync(ctx, peer)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Skipped)
	assert.Equal(t, 1, res.Added)
}

func TestSync_MissingFile(t *testing.T) {
	a := newTestReplica(t, "A")

	_, err := a.Sync(context.Background(), filepath.Join(t.TempDir(), "nope.jsonl"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestMaybeSeal_AtThreshold(t *testing.T) {
	ctx := context.Background()
	a := newTestReplica(t, "A", withThreshold(3))

	created, err := a.Create(ctx, "x")
	require.NoError(t, err)
	r2, err := a.Update(ctx, created.Event.EntityID, "k", value.Bool(true))
	require.NoError(t, err)
	assert.Nil(t, r2.Sealed)

	r3, err := a.Update(ctx, created.Event.EntityID, "k", value.Bool(false))
	require.NoError(t, err)
	require.NotNil(t, r3.Sealed)
	assert.Equal(t, "seg-000001", r3.Sealed.Manifest.SegmentID)
	assert.Equal(t, int64(3), r3.Sealed.Manifest.Events)
	assert.Equal(t, "A#ed25519-1", r3.Sealed.Manifest.KeyID)

	buffered, err := a.Log().ReadBuffer()
	require.NoError(t, err)
	assert.Empty(t, buffered)

	// Sealed events still project.
	state, err := a.State(ctx)
	require.NoError(t, err)
	ent, _ := state.Entity(created.Event.EntityID)
	assert.Equal(t, value.Bool(false), ent["k"])

	report, err := a.Verify(ctx)
	require.NoError(t, err)
	assert.True(t, report.OK)
	assert.Len(t, report.Segments, 1)
}

func TestMaybeSeal_Disabled(t *testing.T) {
	ctx := context.Background()
	a := newTestReplica(t, "A", withThreshold(0))

	for i := 0; i < 5; i++ {
		res, err := a.Create(ctx, "x")
		require.NoError(t, err)
		assert.Nil(t, res.Sealed)
	}
}

func TestSeal_ChainAndTamper(t *testing.T) {
	ctx := context.Background()
	a := newTestReplica(t, "A", withThreshold(0))

	_, err := a.Seal(ctx)
	assert.ErrorIs(t, err, segment.ErrNothingToSeal)

	for i := 0; i < 3; i++ {
		_, err := a.Create(ctx, "x")
		require.NoError(t, err)
		_, err = a.Seal(ctx)
		require.NoError(t, err)
	}

	report, err := a.Verify(ctx)
	require.NoError(t, err)
	require.True(t, report.OK)
	require.Len(t, report.Segments, 3)
	assert.Nil(t, report.Segments[0].ManifestPrev)
	assert.Equal(t, report.Segments[0].ManifestRoot, *report.Segments[1].ManifestPrev)

	// Flip one character of the second segment's only event.
	path := a.Log().SegmentPath("seg-000002")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte(strings.Replace(string(data), `"x"`, `"y"`, 1)), 0o644))

	report, err = a.Verify(ctx)
	require.NoError(t, err)
	assert.False(t, report.OK)
	require.Len(t, report.Segments, 2, "verification halts at the first failure")
	assert.False(t, report.Segments[1].RootOK)
}

func TestSync_DoesNotRebufferSealedEvents(t *testing.T) {
	ctx := context.Background()
	a := newTestReplica(t, "A", withThreshold(0))
	b := newTestReplica(t, "B", withThreshold(0))

	_, err := a.Create(ctx, "x")
	require.NoError(t, err)
	_, err = b.Sync(ctx, a.Log().BufferPath())
	require.NoError(t, err)

	_, err = a.Seal(ctx)
	require.NoError(t, err)
	// b's buffer still has the event a just sealed.
	_, err = b.Create(ctx, "y")
	require.NoError(t, err)

	res, err := a.Sync(ctx, b.Log().BufferPath())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Added)
	assert.Equal(t, 2, res.Total)

	buffered, err := a.Log().ReadBuffer()
	require.NoError(t, err)
	require.Len(t, buffered, 1)
	assert.Equal(t, "B", buffered[0].Origin)
}

func TestBundle_RoundTrip(t *testing.T) {
	ctx := context.Background()
	a := newTestReplica(t, "A", withThreshold(2))
	c := newTestReplica(t, "C")

	created, err := a.Create(ctx, "x")
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		_, err := a.Update(ctx, created.Event.EntityID, "n", value.Number(float64(i)))
		require.NoError(t, err)
	}

	path := filepath.Join(t.TempDir(), "out", "a.bundle.jsonl")
	header, n, err := a.ExportBundle(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 3, n, "sealed and buffered events are exported")
	assert.Equal(t, "A", header.Origin)
	assert.Equal(t, "0.3.0", header.BundleVersion)

	got, res, err := c.ImportBundle(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, header, got)
	assert.Equal(t, 3, res.Added)

	stateA, err := a.State(ctx)
	require.NoError(t, err)
	stateC, err := c.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, stateA, stateC)

	m, err := c.Meta()
	require.NoError(t, err)
	assert.Equal(t, int64(3), m.Seen["A"])
}

func TestImportBundle_BadVersion(t *testing.T) {
	c := newTestReplica(t, "C")
	path := filepath.Join(t.TempDir(), "b.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(`{"kind":"plos.bundle/header","bundleVersion":"0.2.0","bundleId":"x","createdAt":1,"origin":"A"}`+"\n"), 0o644))

	_, _, err := c.ImportBundle(context.Background(), path)
	assert.Error(t, err)
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	a := newTestReplica(t, "A")

	for i := 0; i < 2; i++ {
		_, err := a.Create(ctx, "x")
		require.NoError(t, err)
	}
	require.NoError(t, a.Reset(ctx))

	events, err := a.Events(ctx)
	require.NoError(t, err)
	assert.Empty(t, events)

	m, err := a.Meta()
	require.NoError(t, err)
	assert.Equal(t, "A", m.Origin)
	assert.Equal(t, int64(1), m.NextSeq)
	assert.Equal(t, map[string]int64{"A": 0}, m.Seen)

	// Reset on a replica with nothing on disk is fine.
	require.NoError(t, a.Reset(ctx))
}

func TestOrigin(t *testing.T) {
	a := newTestReplica(t, "A")

	origin, err := a.Origin()
	require.NoError(t, err)
	assert.Equal(t, "A", origin)

	got, err := a.SetOrigin("  laptop ")
	require.NoError(t, err)
	assert.Equal(t, "laptop", got)

	_, err = a.SetOrigin("   ")
	assert.Error(t, err)
}

func TestKeys_ListAndAdd(t *testing.T) {
	a := newTestReplica(t, "A")
	b := newTestReplica(t, "B")

	list, err := a.Keys()
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "A#ed25519-1", list[0].KeyID)
	assert.True(t, list[0].Active)
	assert.True(t, strings.HasPrefix(list[0].Fingerprint, "SHA256:"))
	assert.Empty(t, list[0].Error)

	_, err = b.Keys()
	require.NoError(t, err)
	bPub := filepath.Join(b.Config().KeysPath(), "ed25519.pub.pem")

	require.NoError(t, a.AddKey("B#ed25519-1", "B", bPub, false))

	list, err = a.Keys()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "B#ed25519-1", list[1].KeyID)
	assert.False(t, list[1].Active)
	assert.NotEqual(t, list[0].Fingerprint, list[1].Fingerprint)

	assert.Error(t, a.AddKey("C#ed25519-1", "C", filepath.Join(t.TempDir(), "missing.pem"), false))

	// A peer key cannot become the signing key; sealing keeps working.
	ctx := context.Background()
	assert.ErrorIs(t, a.AddKey("B#ed25519-1", "B", bPub, true), keys.ErrKeyMismatch)
	_, err = a.Create(ctx, "x")
	require.NoError(t, err)
	sealed, err := a.Seal(ctx)
	require.NoError(t, err)
	require.NotNil(t, sealed)
	assert.Equal(t, "A#ed25519-1", sealed.Manifest.KeyID)

	report, err := a.Verify(ctx)
	require.NoError(t, err)
	assert.True(t, report.OK)
}

func TestIndex_History(t *testing.T) {
	ctx := context.Background()
	a := newTestReplica(t, "A", withIndex, withThreshold(2))

	created, err := a.Create(ctx, "x")
	require.NoError(t, err)
	entity := created.Event.EntityID
	_, err = a.Create(ctx, "other")
	require.NoError(t, err)
	_, err = a.Update(ctx, entity, "k", value.String("v"))
	require.NoError(t, err)

	history, err := a.History(ctx, entity)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, created.Event.ID, history[0].Event.ID)
	assert.Equal(t, "seg-000001", history[0].SegmentID)
	assert.Empty(t, history[1].SegmentID)

	n, err := a.RebuildIndex(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	history, err = a.History(ctx, entity)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "seg-000001", history[0].SegmentID)
}

func TestIndex_HistoryWithoutMaintainedIndex(t *testing.T) {
	ctx := context.Background()
	a := newTestReplica(t, "A")

	created, err := a.Create(ctx, "x")
	require.NoError(t, err)

	history, err := a.History(ctx, created.Event.EntityID)
	require.NoError(t, err)
	require.Len(t, history, 1)
}

func TestMetricsFile(t *testing.T) {
	ctx := context.Background()
	a := newTestReplica(t, "A", func(c *config.Config) { c.Metrics.File = "plos.prom" })

	_, err := a.Create(ctx, "x")
	require.NoError(t, err)
	require.NoError(t, a.FlushMetrics())

	data, err := os.ReadFile(filepath.Join(a.Config().Root, "plos.prom"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `plos_events_appended_total{type="plos.core/EntityCreated"} 1`)
}

func TestWatch_SyncsOnWrite(t *testing.T) {
	a := newTestReplica(t, "A")
	b := newTestReplica(t, "B")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := a.Create(ctx, "first")
	require.NoError(t, err)

	results := make(chan MergeResult, 16)
	done := make(chan error, 1)
	go func() {
		done <- b.Watch(ctx, a.Log().BufferPath(), WatchOptions{
			Interval: 10 * time.Millisecond,
			OnSync:   func(r MergeResult) { results <- r },
		})
	}()

	select {
	case r := <-results:
		assert.Equal(t, 1, r.Added)
	case <-time.After(5 * time.Second):
		t.Fatal("no initial sync")
	}

	_, err = a.Create(ctx, "second")
	require.NoError(t, err)

	deadline := time.After(5 * time.Second)
	for {
		select {
		case r := <-results:
			if r.Total == 2 {
				cancel()
				assert.NoError(t, <-done)
				return
			}
		case <-deadline:
			t.Fatal("write to the peer log was not synced")
		}
	}
}
