package hosttest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tapelab/reclip/internal/host"
)

func TestCrashLatches(t *testing.T) {
	f := NewFake()
	a := f.AddMIDIClip(1, 0, 8)
	f.AddMIDIClip(1, 12, 4)
	ctx := context.Background()

	// Duplicating a at beat 10 spans [10, 18) and lands on the clip at
	// [12, 16): the exact write the real host dies on.
	_, err := f.DuplicateClipToArrangement(ctx, a, 10)
	require.ErrorIs(t, err, ErrCrashed)
	assert.True(t, f.Crashed())

	// Every later call fails too.
	_, err = f.GetClip(ctx, a)
	assert.ErrorIs(t, err, ErrCrashed)
	_, err = f.ArrangementClips(ctx, 1)
	assert.ErrorIs(t, err, ErrCrashed)
}

func TestMoveOntoOccupiedSpanCrashes(t *testing.T) {
	f := NewFake()
	a := f.AddMIDIClip(1, 0, 4)
	f.AddMIDIClip(1, 8, 4)
	ctx := context.Background()

	err := f.SetClip(ctx, a, host.PropPatch{
		StartTime: host.Float(6),
		EndTime:   host.Float(10),
	})
	require.ErrorIs(t, err, ErrCrashed)
	assert.True(t, f.Crashed())
}

func TestTouchingSpansDoNotCrash(t *testing.T) {
	f := NewFake()
	a := f.AddMIDIClip(1, 0, 4)
	f.AddMIDIClip(1, 8, 4)
	ctx := context.Background()

	// [4, 8) exactly fills the gap; endpoints touch both neighbors.
	_, err := f.DuplicateClipToArrangement(ctx, a, 4)
	require.NoError(t, err)
	assert.False(t, f.Crashed())
	assert.Len(t, f.Clips(1), 3)
}

func TestDeleteRecyclesOtherHandles(t *testing.T) {
	f := NewFake()
	a := f.AddMIDIClip(1, 0, 4)
	b := f.AddMIDIClip(1, 8, 4)
	ctx := context.Background()

	require.NoError(t, f.DeleteClip(ctx, a))

	// b's old handle is gone, but its clip still exists under a new one.
	_, err := f.GetClip(ctx, b)
	assert.ErrorIs(t, err, host.ErrGone)

	ids, err := f.ArrangementClips(ctx, 1)
	require.NoError(t, err)
	require.Len(t, ids, 1)
	props, err := f.GetClip(ctx, ids[0])
	require.NoError(t, err)
	assert.InDelta(t, 8.0, props.StartTime, 1e-9)
}

func TestDisableHandleInvalidation(t *testing.T) {
	f := NewFake()
	f.DisableHandleInvalidation()
	a := f.AddMIDIClip(1, 0, 4)
	b := f.AddMIDIClip(1, 8, 4)
	ctx := context.Background()

	require.NoError(t, f.DeleteClip(ctx, a))
	_, err := f.GetClip(ctx, b)
	assert.NoError(t, err)
}

func TestSessionDuplicateAndDelete(t *testing.T) {
	f := NewFake()
	a := f.AddAudioClip(1, 0, 8, 8, true)
	ctx := context.Background()

	sid, err := f.DuplicateClipToSession(ctx, a, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, f.SessionClipCount())

	// Session clips never join the arrangement list.
	ids, err := f.ArrangementClips(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, ids, 1)

	// Deleting a session clip does not recycle arrangement handles.
	require.NoError(t, f.DeleteClip(ctx, sid))
	assert.Equal(t, 0, f.SessionClipCount())
	_, err = f.GetClip(ctx, a)
	assert.NoError(t, err)
}

func TestReadLagServesStaleList(t *testing.T) {
	f := NewFake()
	a := f.AddMIDIClip(1, 0, 4)
	ctx := context.Background()

	f.SetReadLag(1)
	require.NoError(t, f.DeleteClip(ctx, a))

	// First read: the pre-delete snapshot.
	ids, err := f.ArrangementClips(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, ids, 1)

	// Second read: the settled state.
	ids, err = f.ArrangementClips(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestFailDuplicates(t *testing.T) {
	f := NewFake()
	a := f.AddMIDIClip(1, 0, 4)
	ctx := context.Background()

	f.FailDuplicates(1)
	_, err := f.DuplicateClipToArrangement(ctx, a, 16)
	require.ErrorIs(t, err, host.ErrNoObject)
	assert.False(t, f.Crashed(), "a refused duplicate is not a crash")

	_, err = f.DuplicateClipToArrangement(ctx, a, 16)
	require.NoError(t, err)
	assert.Equal(t, 1, f.DupCount())
}

func TestSetClipAppliesPatchVerbatim(t *testing.T) {
	f := NewFake()
	a := f.AddMIDIClip(1, 0, 8)
	ctx := context.Background()

	name := "lead"
	require.NoError(t, f.SetClip(ctx, a, host.PropPatch{
		EndTime:   host.Float(4),
		EndMarker: host.Float(4),
		Name:      &name,
	}))

	props, err := f.GetClip(ctx, a)
	require.NoError(t, err)
	assert.InDelta(t, 4.0, props.EndTime, 1e-9)
	assert.InDelta(t, 4.0, props.EndMarker, 1e-9)
	assert.Equal(t, "lead", props.Name)
	// Untouched fields survive.
	assert.InDelta(t, 0.0, props.StartTime, 1e-9)
	assert.True(t, props.IsMIDI)
}
