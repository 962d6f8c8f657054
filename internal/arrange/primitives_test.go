package arrange

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tapelab/reclip/internal/host"
	"github.com/tapelab/reclip/internal/host/hosttest"
)

// memRecorder collects journal entries for assertions.
type memRecorder struct {
	mu      sync.Mutex
	entries []Entry
}

func (m *memRecorder) Record(_ context.Context, e Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
}

func (m *memRecorder) count(verb string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.entries {
		if e.Verb == verb {
			n++
		}
	}
	return n
}

func newTestOps(f *hosttest.Fake, rec Recorder) *ops {
	if rec == nil {
		rec = NopRecorder{}
	}
	return &ops{
		h:         f,
		rec:       rec,
		clock:     NewClock(),
		token:     "test-token",
		tolerance: 1e-3,
		attempts:  3,
		backoff:   time.Millisecond,
	}
}

func TestRescanSortsByStartTime(t *testing.T) {
	f := hosttest.NewFake()
	f.AddMIDIClip(1, 16, 4)
	f.AddMIDIClip(1, 0, 4)
	f.AddMIDIClip(1, 8, 4)
	o := newTestOps(f, nil)

	clips, err := o.rescan(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, clips, 3)
	assert.InDelta(t, 0.0, clips[0].Props.StartTime, 1e-9)
	assert.InDelta(t, 8.0, clips[1].Props.StartTime, 1e-9)
	assert.InDelta(t, 16.0, clips[2].Props.StartTime, 1e-9)
}

func TestResolveAfterMutationFindsClip(t *testing.T) {
	f := hosttest.NewFake()
	f.AddMIDIClip(1, 8, 4)
	o := newTestOps(f, nil)

	c, err := o.resolveAfterMutation(context.Background(), 1, 8)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.InDelta(t, 8.0, c.Props.StartTime, 1e-9)
}

func TestResolveAfterMutationReturnsNilWhenAbsent(t *testing.T) {
	f := hosttest.NewFake()
	f.AddMIDIClip(1, 8, 4)
	o := newTestOps(f, nil)

	// Nothing at beat 100: nil result, no error. Deliberate deletion is
	// a valid outcome, not a failure.
	c, err := o.resolveAfterMutation(context.Background(), 1, 100)
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestResolveAfterMutationRetriesThroughReadLag(t *testing.T) {
	f := hosttest.NewFake()
	id := f.AddMIDIClip(1, 0, 4)
	o := newTestOps(f, nil)
	ctx := context.Background()

	// Move the clip, then arm one stale read: the first rescan sees the
	// pre-move list, the retry sees the settled state.
	require.NoError(t, f.SetClip(ctx, id, host.PropPatch{
		StartTime: host.Float(16),
		EndTime:   host.Float(20),
	}))
	f.SetReadLag(1)

	c, err := o.resolveAfterMutation(ctx, 1, 16)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.InDelta(t, 16.0, c.Props.StartTime, 1e-9)
}

func TestResolveAfterMutationHonorsContext(t *testing.T) {
	f := hosttest.NewFake()
	o := newTestOps(f, nil)
	o.backoff = time.Hour // retry would hang without ctx cancellation

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := o.resolveAfterMutation(ctx, 1, 8)
	require.ErrorIs(t, err, context.Canceled)
}

func TestDeleteClipGoneIsNoOp(t *testing.T) {
	f := hosttest.NewFake()
	o := newTestOps(f, nil)

	assert.NoError(t, o.deleteClip(context.Background(), "clip-404", 1))
}

func TestTrimSkipsEmptyPatch(t *testing.T) {
	f := hosttest.NewFake()
	id := f.AddMIDIClip(1, 0, 4)
	rec := &memRecorder{}
	o := newTestOps(f, rec)

	c := Clip{ID: id, Track: 1, Props: f.Clips(1)[0]}
	require.NoError(t, o.trim(context.Background(), c, host.PropPatch{}))
	assert.Zero(t, rec.count("trim"), "an empty patch issues no host call")
}

func TestOpsJournalsEveryMutation(t *testing.T) {
	f := hosttest.NewFake()
	id := f.AddMIDIClip(1, 0, 8)
	rec := &memRecorder{}
	o := newTestOps(f, rec)
	ctx := context.Background()

	c := Clip{ID: id, Track: 1, Props: f.Clips(1)[0]}
	require.NoError(t, o.trim(ctx, c, host.PropPatch{EndTime: host.Float(4)}))
	_, err := o.duplicateTo(ctx, c, 16)
	require.NoError(t, err)
	require.NoError(t, o.deleteClip(ctx, c.ID, 1))
	_, err = o.rescan(ctx, 1)
	require.NoError(t, err)

	assert.Equal(t, 1, rec.count("trim"))
	assert.Equal(t, 1, rec.count("duplicate"))
	assert.Equal(t, 1, rec.count("delete"))
	assert.Equal(t, 1, rec.count("rescan"))

	// Sequence numbers are strictly increasing.
	for i := 1; i < len(rec.entries); i++ {
		assert.Greater(t, rec.entries[i].Seq, rec.entries[i-1].Seq)
	}
	for _, e := range rec.entries {
		assert.Equal(t, "test-token", e.RequestToken)
	}
}

func TestHoldingSlotSpacing(t *testing.T) {
	f := hosttest.NewFake()
	o := newTestOps(f, nil)
	hold := newHoldingArea(o, 1, DefaultHoldingStart)

	a := hold.slot(8)
	b := hold.slot(4)
	c := hold.slot(16)

	assert.InDelta(t, float64(DefaultHoldingStart), a, 1e-9)
	assert.GreaterOrEqual(t, b-a, 8.0, "second slot clears the first clip's width")
	assert.GreaterOrEqual(t, c-b, 4.0, "third slot clears the second clip's width")
}

func TestHoldingSweepDeletesOnlyStagedClips(t *testing.T) {
	f := hosttest.NewFake()
	f.AddMIDIClip(1, 0, 4)
	o := newTestOps(f, nil)
	ctx := context.Background()

	hold := newHoldingArea(o, 1, DefaultHoldingStart)
	slot := hold.slot(4)

	// Stage a copy at the slot, then sweep.
	clips, err := o.rescan(ctx, 1)
	require.NoError(t, err)
	_, err = o.duplicateTo(ctx, clips[0], slot)
	require.NoError(t, err)
	require.Len(t, f.Clips(1), 2)

	hold.sweep(ctx)

	clipsAfter := f.Clips(1)
	require.Len(t, clipsAfter, 1)
	assert.InDelta(t, 0.0, clipsAfter[0].StartTime, 1e-9)
}

func TestHoldingSweepDrainsMultipleStagedClips(t *testing.T) {
	f := hosttest.NewFake()
	f.AddMIDIClip(1, 0, 4)
	o := newTestOps(f, nil)
	ctx := context.Background()

	hold := newHoldingArea(o, 1, DefaultHoldingStart)
	slotA := hold.slot(4)
	slotB := hold.slot(4)

	clips, err := o.rescan(ctx, 1)
	require.NoError(t, err)
	_, err = o.duplicateTo(ctx, clips[0], slotA)
	require.NoError(t, err)
	_, err = o.duplicateTo(ctx, clips[0], slotB)
	require.NoError(t, err)
	require.Len(t, f.Clips(1), 3)

	hold.sweep(ctx)

	// Deleting the first staged clip recycles the second's handle; the
	// sweep must drain both anyway.
	clipsAfter := f.Clips(1)
	require.Len(t, clipsAfter, 1)
	assert.InDelta(t, 0.0, clipsAfter[0].StartTime, 1e-9)
}

func TestClockMonotonic(t *testing.T) {
	c := NewClock()
	assert.Equal(t, int64(1), c.Next())
	assert.Equal(t, int64(2), c.Next())
	assert.Equal(t, int64(2), c.Current())
}

func TestFixedGenerator(t *testing.T) {
	g := NewFixedGenerator("tok-a", "tok-b")
	assert.Equal(t, "tok-a", g.Generate())
	assert.Equal(t, "tok-b", g.Generate())
	assert.Panics(t, func() { g.Generate() })
}

func TestUUIDv7GeneratorUnique(t *testing.T) {
	g := UUIDv7Generator{}
	a, b := g.Generate(), g.Generate()
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}
