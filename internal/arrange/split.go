package arrange

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/tapelab/reclip/internal/host"
	"github.com/tapelab/reclip/internal/notation"
)

// DefaultMaxSplitPoints caps how many cut points one split request may
// carry after normalization.
const DefaultMaxSplitPoints = 32

// planSplit turns a raw comma-separated position string into a sorted,
// deduplicated list of cut offsets relative to the clip's visible
// start. A nil offset list with a nil warning means no-op by request
// (empty input); a nil list with a warning means the plan was rejected.
//
// Validation order: empty input, parse, sort, dedupe, drop offsets at
// or before the clip start, cap check, emptiness check.
func (e *Engine) planSplit(props host.ClipProps, raw string) ([]float64, *Warning) {
	if raw == "" {
		return nil, nil
	}

	positions, err := notation.ParsePositionList(raw, e.meter)
	if err != nil {
		w := Warnf(WarnSplitInvalidFormat, "split: invalid position syntax: %v", err)
		return nil, &w
	}

	sort.Float64s(positions)

	offsets := make([]float64, 0, len(positions))
	for _, pos := range positions {
		off := pos - props.StartTime
		if off <= Eps {
			continue // at or before the clip's own start: no cut
		}
		if len(offsets) > 0 && off-offsets[len(offsets)-1] < Eps {
			continue // duplicate point
		}
		offsets = append(offsets, off)
	}

	if len(offsets) > e.maxSplitPoints {
		w := Warnf(WarnSplitMaxExceeded, "split: %d points exceeds the maximum of %d", len(offsets), e.maxSplitPoints)
		return nil, &w
	}
	if len(offsets) == 0 {
		w := Warnf(WarnSplitNoValidPoints, "split: no valid split points after the clip start")
		return nil, &w
	}
	return offsets, nil
}

// planSlice derives uniform cut offsets at every multiple of interval
// inside the clip, then rides the split path.
func (e *Engine) planSlice(props host.ClipProps, interval float64) ([]float64, *Warning) {
	length := props.Length()
	var offsets []float64
	for off := interval; off < length-Eps; off += interval {
		offsets = append(offsets, off)
	}
	if len(offsets) > e.maxSplitPoints {
		w := Warnf(WarnSplitMaxExceeded, "slice: %d points exceeds the maximum of %d", len(offsets), e.maxSplitPoints)
		return nil, &w
	}
	if len(offsets) == 0 {
		w := Warnf(WarnSplitNoValidPoints, "slice: interval %s yields no cut inside the clip", notation.FormatBeats(interval))
		return nil, &w
	}
	return offsets, nil
}

// executeSplit carves source into the contiguous segments defined by
// offsets. Segment boundaries cover the clip's visible span with no
// gaps and no overlaps; the union of produced content equals the
// original's content.
//
// Duplication shape: the first segment is the original clip trimmed in
// place (free), one untrimmed master copy is staged in the holding
// area (one duplication), each interior segment costs two duplications
// (carve a working copy from the master, then relocate it), and the
// final segment costs one (the master itself, trimmed, is placed).
// 2N-2 duplications for N segments.
//
// A failed duplication skips that segment with a warning; the rest of
// the plan continues.
func (e *Engine) executeSplit(ctx context.Context, o *ops, source Clip, offsets []float64) ([]Clip, []Warning) {
	// An earlier clip's cycle may have recycled this handle.
	if fresh, err := o.resolveAfterMutation(ctx, source.Track, source.Props.StartTime); err == nil && fresh != nil {
		source = *fresh
	}

	props := source.Props
	length := props.Length()

	// Offsets beyond the clip's content produce no cut, silently.
	bounds := []float64{0}
	for _, off := range offsets {
		if off < length-Eps {
			bounds = append(bounds, off)
		}
	}
	bounds = append(bounds, length)

	n := len(bounds) - 1
	if n < 2 {
		return []Clip{source}, nil
	}

	var warnings []Warning
	hold := newHoldingArea(o, source.Track, e.holdingStart)
	defer hold.sweep(ctx)

	master, err := e.stageMaster(ctx, o, hold, source)
	if err != nil {
		warnings = append(warnings, Warnf(WarnDuplicateFailed,
			"split: failed to stage a copy of clip %s; clip left unchanged", source.ID))
		return []Clip{source}, warnings
	}

	// Segment 0: the original, trimmed in place. Identity and position
	// preserved, zero duplications.
	if err := o.trim(ctx, source, tailTrimPatch(props, bounds[1])); err != nil {
		warnings = append(warnings, Warnf(WarnDuplicateFailed,
			"split: failed to trim clip %s to its first segment: %v", source.ID, err))
		return []Clip{source}, warnings
	}

	for i := 1; i < n-1; i++ {
		a, b := bounds[i], bounds[i+1]
		if err := e.placeInteriorSegment(ctx, o, hold, master, props, a, b); err != nil {
			slog.Warn("split: interior segment failed",
				"clip", source.ID,
				"segment", i,
				"error", err,
			)
			warnings = append(warnings, Warnf(WarnDuplicateFailed,
				"Failed to duplicate source for middle segment %d", i))
		}
	}

	// Final segment: the master itself, trimmed to the final bounds, is
	// placed directly. One duplication.
	a := bounds[n-1]
	if err := o.trim(ctx, master, contentWindowPatch(props, a, length, master.Props.StartTime)); err != nil {
		warnings = append(warnings, Warnf(WarnDuplicateFailed,
			"Failed to duplicate source for final segment: %v", err))
	} else {
		dest := Span{Start: props.StartTime + a, End: props.StartTime + length}
		trimmed := master
		trimmed.Props.EndTime = trimmed.Props.StartTime + (length - a)
		if err := e.placeSegment(ctx, o, hold, trimmed, dest); err != nil {
			warnings = append(warnings, Warnf(WarnDuplicateFailed,
				"Failed to duplicate source for final segment"))
		}
	}

	if err := o.deleteClip(ctx, master.ID, master.Track); err != nil {
		slog.Error("split: failed to delete holding master", "clip", master.ID, "error", err)
	}

	// All structural work is done; hand back authoritative handles.
	segments := make([]Clip, 0, n)
	for i := 0; i < n; i++ {
		resolved, err := o.resolveAfterMutation(ctx, source.Track, props.StartTime+bounds[i])
		if err != nil {
			slog.Error("split: segment resolve failed", "segment", i, "error", err)
			continue
		}
		if resolved != nil {
			segments = append(segments, *resolved)
		}
	}
	return segments, warnings
}

// placeInteriorSegment carves the content window [a, b) from the
// holding master into a working copy, then relocates that copy to its
// real timeline position. Two duplications.
func (e *Engine) placeInteriorSegment(ctx context.Context, o *ops, hold *holdingArea, master Clip, src host.ClipProps, a, b float64) error {
	// The working copy lands untrimmed, so the slot must fit the full
	// master length even though only [a, b) survives the trim.
	slot := hold.slot(master.Props.Length())
	workID, err := o.duplicateTo(ctx, master, slot)
	if err != nil {
		return fmt.Errorf("carve working copy: %w", err)
	}

	work := master
	work.ID = workID
	work.Props.StartTime = slot
	work.Props.EndTime = slot + master.Props.Length()
	if err := o.trim(ctx, work, contentWindowPatch(src, a, b, slot)); err != nil {
		return fmt.Errorf("trim working copy: %w", err)
	}
	work.Props.EndTime = slot + (b - a)

	dest := Span{Start: src.StartTime + a, End: src.StartTime + b}
	return e.placeSegment(ctx, o, hold, work, dest)
}

// placeSegment clears dest and duplicates the staged clip into it. The
// staged handle is recovered by slot position after the clear, which
// may have recycled it.
func (e *Engine) placeSegment(ctx context.Context, o *ops, hold *holdingArea, staged Clip, dest Span) error {
	if err := clearSpan(ctx, o, hold, staged.Track, dest); err != nil {
		return fmt.Errorf("clear destination: %w", err)
	}
	fresh, err := o.resolveAfterMutation(ctx, staged.Track, staged.Props.StartTime)
	if err != nil {
		return fmt.Errorf("recover staged segment: %w", err)
	}
	if fresh == nil {
		return fmt.Errorf("staged segment at %.3f no longer resolvable", staged.Props.StartTime)
	}
	if _, err := o.duplicateTo(ctx, *fresh, dest.Start); err != nil {
		return fmt.Errorf("place segment: %w", err)
	}
	return nil
}

// stageMaster duplicates an untrimmed copy of source into the holding
// area, preserving markers and loop phase so every later segment
// reveals the musically correct slice.
//
// Audio content cannot be created arrangement-side with a controlled
// length, so audio staging routes through a session-view intermediate
// clip that is deleted as soon as the arrangement copy exists.
func (e *Engine) stageMaster(ctx context.Context, o *ops, hold *holdingArea, source Clip) (Clip, error) {
	slot := hold.slot(source.Props.Length())

	var masterID host.ClipID
	var err error
	if source.Props.IsAudio {
		var sessionID host.ClipID
		sessionID, err = o.duplicateToSession(ctx, source, e.sessionSlot)
		if err != nil {
			return Clip{}, fmt.Errorf("stage audio via session: %w", err)
		}
		intermediate := source
		intermediate.ID = sessionID
		masterID, err = o.duplicateTo(ctx, intermediate, slot)
		if delErr := o.deleteClip(ctx, sessionID, source.Track); delErr != nil {
			slog.Error("failed to delete session intermediate", "clip", sessionID, "error", delErr)
		}
	} else {
		masterID, err = o.duplicateTo(ctx, source, slot)
	}
	if err != nil {
		if errors.Is(err, host.ErrNoObject) {
			return Clip{}, err
		}
		return Clip{}, fmt.Errorf("stage master: %w", err)
	}

	master := source
	master.ID = masterID
	master.Props.StartTime = slot
	master.Props.EndTime = slot + source.Props.Length()
	return master, nil
}
