package arrange

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tapelab/reclip/internal/host"
	"github.com/tapelab/reclip/internal/host/hosttest"
)

func TestUpdateRejectsEmptyRequest(t *testing.T) {
	eng := newTestEngine(hosttest.NewFake())

	_, err := eng.Update(context.Background(), Request{})
	require.Error(t, err)
	assert.True(t, IsRequestError(err))

	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, ErrCodeInvalidRequest, reqErr.Code)
}

func TestUpdateRejectsSplitAndSliceTogether(t *testing.T) {
	f := hosttest.NewFake()
	id := f.AddMIDIClip(1, 0, 8)
	eng := newTestEngine(f)

	_, err := eng.Update(context.Background(), Request{
		ClipIDs: []host.ClipID{id},
		Split:   "2|1",
		Slice:   "1:0",
	})
	require.Error(t, err)

	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, ErrCodeInvalidRequest, reqErr.Code)
	// Rejection happens before any mutation.
	assert.Len(t, f.Clips(1), 1)
}

func TestUpdateRejectsUnknownClip(t *testing.T) {
	eng := newTestEngine(hosttest.NewFake())

	_, err := eng.Update(context.Background(), Request{
		ClipIDs: []host.ClipID{"clip-999"},
	})
	require.Error(t, err)

	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, ErrCodeUnknownClip, reqErr.Code)
}

func TestUpdateRejectsBadPositionSyntax(t *testing.T) {
	f := hosttest.NewFake()
	id := f.AddMIDIClip(1, 0, 8)
	eng := newTestEngine(f)

	_, err := eng.Update(context.Background(), Request{
		ClipIDs:          []host.ClipID{id},
		ArrangementStart: "five bars in",
	})
	require.Error(t, err)

	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, ErrCodeInvalidPosition, reqErr.Code)
}

func TestUpdateRejectsBadIntervalSyntax(t *testing.T) {
	f := hosttest.NewFake()
	id := f.AddMIDIClip(1, 0, 8)
	eng := newTestEngine(f)

	_, err := eng.Update(context.Background(), Request{
		ClipIDs:           []host.ClipID{id},
		ArrangementLength: "eight",
	})
	require.Error(t, err)

	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, ErrCodeInvalidInterval, reqErr.Code)
}

func TestValidateFanOut(t *testing.T) {
	tests := []struct {
		name      string
		clips     int
		positions int
		wantErr   bool
	}{
		{"many clips one position stacks", 3, 1, false},
		{"pairwise", 3, 3, false},
		{"one clip fans out", 1, 4, false},
		{"single clip single position", 1, 1, false},
		{"mismatched counts", 2, 3, true},
		{"more clips than positions", 4, 2, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateFanOut(tt.clips, tt.positions)
			if tt.wantErr {
				require.Error(t, err)
				var reqErr *RequestError
				require.ErrorAs(t, err, &reqErr)
				assert.Equal(t, ErrCodeInvalidRequest, reqErr.Code)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestUpdateRejectsMixedTrackStack(t *testing.T) {
	f := hosttest.NewFake()
	a := f.AddMIDIClip(1, 0, 4)
	b := f.AddMIDIClip(2, 0, 4)
	eng := newTestEngine(f)

	_, err := eng.Update(context.Background(), Request{
		ClipIDs:          []host.ClipID{a, b},
		ArrangementStart: "5|1",
	})
	require.Error(t, err)

	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, ErrCodeInvalidRequest, reqErr.Code)

	// Rejection happens before anything mutates.
	require.Len(t, f.Clips(1), 1)
	require.Len(t, f.Clips(2), 1)
	assert.InDelta(t, 0.0, f.Clips(1)[0].StartTime, 1e-6)
	assert.InDelta(t, 0.0, f.Clips(2)[0].StartTime, 1e-6)
}

func TestUpdateMoveSingleClip(t *testing.T) {
	f := hosttest.NewFake()
	id := f.AddMIDIClip(1, 0, 4)
	eng := newTestEngine(f)

	res, err := eng.Update(context.Background(), Request{
		ClipIDs:          []host.ClipID{id},
		ArrangementStart: "5|1", // beat 16
	})
	require.NoError(t, err)
	require.False(t, f.Crashed())

	clips := f.Clips(1)
	require.Len(t, clips, 1)
	assert.InDelta(t, 16.0, clips[0].StartTime, 1e-6)
	assert.InDelta(t, 20.0, clips[0].EndTime, 1e-6)
	require.Len(t, res.Clips, 1)
}

func TestUpdateMoveOntoOccupiedSpan(t *testing.T) {
	f := hosttest.NewFake()
	mover := f.AddMIDIClip(1, 0, 8)
	f.AddMIDIClip(1, 10, 4)
	eng := newTestEngine(f)

	// Destination [6, 14) overlaps both the mover's own tail-adjacent
	// region and the bystander: the bystander's head must be trimmed
	// away before the duplicate lands, or the host dies.
	res, err := eng.Update(context.Background(), Request{
		ClipIDs:          []host.ClipID{mover},
		ArrangementStart: "2|3", // beat 6
	})
	require.NoError(t, err)
	require.False(t, f.Crashed())

	clips := f.Clips(1)
	require.Len(t, clips, 1)
	assert.InDelta(t, 6.0, clips[0].StartTime, 1e-6)
	assert.InDelta(t, 14.0, clips[0].EndTime, 1e-6)
	require.Len(t, res.Clips, 1)
}

func TestUpdateMoveOntoHeadOfLongerClip(t *testing.T) {
	f := hosttest.NewFake()
	f.AddMIDIClip(1, 0, 16)
	mover := f.AddMIDIClip(1, 20, 4)
	f.AddMIDIClip(1, 40, 4)
	eng := newTestEngine(f)

	// Landing exactly on the long clip's head. Its head must be carved
	// off first; the far clip stays out of the blast radius entirely.
	res, err := eng.Update(context.Background(), Request{
		ClipIDs:          []host.ClipID{mover},
		ArrangementStart: "1|1", // beat 0
	})
	require.NoError(t, err)
	require.False(t, f.Crashed())

	clips := f.Clips(1)
	require.Len(t, clips, 3)
	assert.InDelta(t, 0.0, clips[0].StartTime, 1e-6)
	assert.InDelta(t, 4.0, clips[0].EndTime, 1e-6)
	assert.InDelta(t, 4.0, clips[1].StartTime, 1e-6)
	assert.InDelta(t, 16.0, clips[1].EndTime, 1e-6)
	assert.InDelta(t, 40.0, clips[2].StartTime, 1e-6)
	require.Len(t, res.Clips, 1)
}

func TestUpdateMovePairwise(t *testing.T) {
	f := hosttest.NewFake()
	a := f.AddMIDIClip(1, 0, 4)
	b := f.AddMIDIClip(1, 8, 4)
	eng := newTestEngine(f)

	res, err := eng.Update(context.Background(), Request{
		ClipIDs:          []host.ClipID{a, b},
		ArrangementStart: "9|1, 13|1", // beats 32 and 48
	})
	require.NoError(t, err)
	require.False(t, f.Crashed())
	assert.Empty(t, res.Warnings)

	clips := f.Clips(1)
	require.Len(t, clips, 2)
	assert.InDelta(t, 32.0, clips[0].StartTime, 1e-6)
	assert.InDelta(t, 48.0, clips[1].StartTime, 1e-6)
	require.Len(t, res.Clips, 2)
}

func TestUpdateFanOut(t *testing.T) {
	f := hosttest.NewFake()
	id := f.AddMIDIClip(1, 0, 4)
	eng := newTestEngine(f)

	res, err := eng.Update(context.Background(), Request{
		ClipIDs:          []host.ClipID{id},
		ArrangementStart: "5|1, 9|1, 13|1", // beats 16, 32, 48
	})
	require.NoError(t, err)
	require.False(t, f.Crashed())
	assert.Empty(t, res.Warnings)

	// One clip moved to the first target, copies at the rest.
	clips := f.Clips(1)
	require.Len(t, clips, 3)
	assert.InDelta(t, 16.0, clips[0].StartTime, 1e-6)
	assert.InDelta(t, 32.0, clips[1].StartTime, 1e-6)
	assert.InDelta(t, 48.0, clips[2].StartTime, 1e-6)
	for _, p := range clips {
		assert.InDelta(t, 4.0, p.Length(), 1e-6)
	}
	require.Len(t, res.Clips, 3)
}

func TestUpdateNonArrangementClipPassesThrough(t *testing.T) {
	f := hosttest.NewFake()
	session := f.AddClip(2, host.ClipProps{
		StartTime:     0,
		EndTime:       4,
		IsMIDI:        true,
		IsArrangement: false,
	})
	eng := newTestEngine(f)

	res, err := eng.Update(context.Background(), Request{
		ClipIDs: []host.ClipID{session},
		Split:   "2|1",
	})
	require.NoError(t, err)

	// The session clip is returned untouched; the split stage then has
	// nothing to work on and says so.
	require.Len(t, res.Clips, 1)
	assert.Equal(t, session, res.Clips[0].ID)

	codes := make([]WarningCode, len(res.Warnings))
	for i, w := range res.Warnings {
		codes[i] = w.Code
	}
	assert.Contains(t, codes, WarnNotArrangement)
	assert.Contains(t, codes, WarnSplitNoArrangement)
}

func TestUpdateScalarProperties(t *testing.T) {
	f := hosttest.NewFake()
	id := f.AddMIDIClip(1, 0, 8)
	eng := newTestEngine(f)

	name := "Chorus B"
	color := 17
	res, err := eng.Update(context.Background(), Request{
		ClipIDs: []host.ClipID{id},
		Name:    &name,
		Color:   &color,
	})
	require.NoError(t, err)

	clips := f.Clips(1)
	require.Len(t, clips, 1)
	assert.Equal(t, "Chorus B", clips[0].Name)
	assert.Equal(t, 17, clips[0].Color)

	require.Len(t, res.Clips, 1)
	assert.Equal(t, "Chorus B", res.Clips[0].Props.Name)
	assert.Equal(t, 17, res.Clips[0].Props.Color)
}

func TestUpdateSplitThenRename(t *testing.T) {
	f := hosttest.NewFake()
	id := f.AddMIDIClip(1, 0, 8)
	eng := newTestEngine(f)

	name := "seg"
	res, err := eng.Update(context.Background(), Request{
		ClipIDs: []host.ClipID{id},
		Split:   "2|1",
		Name:    &name,
	})
	require.NoError(t, err)
	require.False(t, f.Crashed())

	// Scalar updates apply to every clip the structural work produced.
	clips := f.Clips(1)
	require.Len(t, clips, 2)
	for _, p := range clips {
		assert.Equal(t, "seg", p.Name)
	}
	require.Len(t, res.Clips, 2)
}

func TestUpdateMoveThenSplit(t *testing.T) {
	f := hosttest.NewFake()
	id := f.AddMIDIClip(1, 0, 8)
	eng := newTestEngine(f)

	res, err := eng.Update(context.Background(), Request{
		ClipIDs:          []host.ClipID{id},
		ArrangementStart: "5|1", // beat 16
		Split:            "6|1", // beat 20, inside the moved clip
	})
	require.NoError(t, err)
	require.False(t, f.Crashed())
	assert.Empty(t, res.Warnings)

	// Stages compose: the split point addresses the clip's position
	// after the move.
	clips := f.Clips(1)
	require.Len(t, clips, 2)
	assert.InDelta(t, 16.0, clips[0].StartTime, 1e-6)
	assert.InDelta(t, 20.0, clips[0].EndTime, 1e-6)
	assert.InDelta(t, 20.0, clips[1].StartTime, 1e-6)
	assert.InDelta(t, 24.0, clips[1].EndTime, 1e-6)
}

func TestWarningStringsFlatten(t *testing.T) {
	res := &Result{Warnings: []Warning{
		Warnf(WarnLengthenCapped, "short by %d beats", 2),
		Warnf(WarnDuplicateFailed, "segment skipped"),
	}}
	assert.Equal(t, []string{"short by 2 beats", "segment skipped"}, res.WarningStrings())
}
