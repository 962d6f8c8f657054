package arrange

import (
	"context"
	"log/slog"

	"github.com/tapelab/reclip/internal/host"
	"github.com/tapelab/reclip/internal/notation"
)

// LengthenMode says how a clip reaches a target length.
type LengthenMode int

const (
	// LengthenNoOp: nothing to do, or nothing to do it with.
	LengthenNoOp LengthenMode = iota

	// LengthenTile: repeat the clip by duplication until the covered
	// span reaches the target, trimming the final repeat to land
	// exactly on it. Looping clips only.
	LengthenTile

	// LengthenExtend: push the end boundary forward in place. Same
	// clip identity, no new clips. Possibly capped at the content
	// boundary.
	LengthenExtend

	// LengthenTrim: the target is shorter than the clip; pull the end
	// boundary back in place.
	LengthenTrim
)

// clipKind is the exhaustive tagged union of clip states the lengthen
// table is keyed on: looping x MIDI/audio x warped/unwarped. New
// combinations are new table rows, not new branches at call sites.
type clipKind int

const (
	kindLoopedMIDI clipKind = iota
	kindLoopedAudioWarped
	kindLoopedAudioUnwarped
	kindUnloopedMIDI
	kindUnloopedAudioWarped
	kindUnloopedAudioUnwarped
)

func kindOf(p host.ClipProps) clipKind {
	switch {
	case p.Looping && !p.IsAudio:
		return kindLoopedMIDI
	case p.Looping && p.Warped:
		return kindLoopedAudioWarped
	case p.Looping:
		return kindLoopedAudioUnwarped
	case !p.IsAudio:
		return kindUnloopedMIDI
	case p.Warped:
		return kindUnloopedAudioWarped
	default:
		return kindUnloopedAudioUnwarped
	}
}

// lengthenPlan is one decided row: the mode, the granted length, and
// an optional warning (capped short, or no content to extend with).
type lengthenPlan struct {
	Mode    LengthenMode
	Granted float64 // resulting visible length in beats
	Warning *Warning
}

// contentDesc names what ran out, for warning text.
var contentDesc = map[clipKind]string{
	kindUnloopedMIDI:          "generated",
	kindUnloopedAudioWarped:   "warped audio",
	kindUnloopedAudioUnwarped: "recorded",
}

// lengthenRules is the decision table. Looping kinds tile; unlooped
// kinds extend in place, bounded by how much material exists beyond
// the current end (flexible up to the file's natural duration when
// warped, fixed by the remaining samples when not).
var lengthenRules = map[clipKind]func(p host.ClipProps, target float64) lengthenPlan{
	kindLoopedMIDI:            tileRule,
	kindLoopedAudioWarped:     tileRule,
	kindLoopedAudioUnwarped:   tileRule,
	kindUnloopedMIDI:          extendRule(kindUnloopedMIDI),
	kindUnloopedAudioWarped:   extendRule(kindUnloopedAudioWarped),
	kindUnloopedAudioUnwarped: extendRule(kindUnloopedAudioUnwarped),
}

func tileRule(p host.ClipProps, target float64) lengthenPlan {
	return lengthenPlan{Mode: LengthenTile, Granted: target}
}

func extendRule(kind clipKind) func(p host.ClipProps, target float64) lengthenPlan {
	return func(p host.ClipProps, target float64) lengthenPlan {
		current := p.Length()
		avail := p.ContentLength - p.EndMarker
		if avail <= Eps {
			w := Warnf(WarnLengthenNoContent,
				"lengthen: clip has no additional %s content beyond its current end", contentDesc[kind])
			return lengthenPlan{Mode: LengthenNoOp, Granted: current, Warning: &w}
		}
		if current+avail < target-Eps {
			w := Warnf(WarnLengthenCapped,
				"lengthen: only %s beats of %s content available; result falls short of the requested %s",
				notation.FormatBeats(avail), contentDesc[kind], notation.FormatBeats(target))
			return lengthenPlan{Mode: LengthenExtend, Granted: current + avail, Warning: &w}
		}
		return lengthenPlan{Mode: LengthenExtend, Granted: target}
	}
}

// planLengthen decides how clip p reaches target beats. Shortening and
// the degenerate already-there case are handled ahead of the table;
// they apply uniformly to every clip kind.
func (e *Engine) planLengthen(p host.ClipProps, target float64) lengthenPlan {
	current := p.Length()
	switch {
	case abs(target-current) <= Eps:
		return lengthenPlan{Mode: LengthenNoOp, Granted: current}
	case target < current:
		return lengthenPlan{Mode: LengthenTrim, Granted: target}
	}
	return lengthenRules[kindOf(p)](p, target)
}

// lengthenOne takes one clip to the target length. Tiling produces new
// clips; the other modes keep the clip's identity and return it alone.
func (e *Engine) lengthenOne(ctx context.Context, o *ops, c Clip, target float64) ([]Clip, []Warning) {
	// An earlier clip's cycle may have recycled this handle.
	if fresh, err := o.resolveAfterMutation(ctx, c.Track, c.Props.StartTime); err == nil && fresh != nil {
		c = *fresh
	}

	plan := e.planLengthen(c.Props, target)

	var warnings []Warning
	if plan.Warning != nil {
		warnings = append(warnings, *plan.Warning)
	}

	switch plan.Mode {
	case LengthenNoOp:
		return []Clip{c}, warnings

	case LengthenTrim:
		if err := o.trim(ctx, c, tailTrimPatch(c.Props, plan.Granted)); err != nil {
			slog.Error("lengthen: trim failed", "clip", c.ID, "error", err)
			warnings = append(warnings, Warnf(WarnDuplicateFailed,
				"lengthen: failed to shorten clip %s", c.ID))
			return []Clip{c}, warnings
		}
		resolved, err := o.resolveAfterMutation(ctx, c.Track, c.Props.StartTime)
		if err != nil || resolved == nil {
			return []Clip{c}, warnings
		}
		return []Clip{*resolved}, warnings

	case LengthenExtend:
		grant := plan.Granted - c.Props.Length()
		// Growing the end boundary writes into [end, end+grant); that
		// span must be cleared like any duplication destination or the
		// grown clip lands on whatever sits there.
		hold := newHoldingArea(o, c.Track, e.holdingStart)
		defer hold.sweep(ctx)
		growth := Span{Start: c.Props.EndTime, End: c.Props.EndTime + grant}
		if err := clearSpan(ctx, o, hold, c.Track, growth); err != nil {
			slog.Error("lengthen: clear growth span failed", "clip", c.ID, "error", err)
			warnings = append(warnings, Warnf(WarnDuplicateFailed,
				"lengthen: failed to extend clip %s", c.ID))
			return []Clip{c}, warnings
		}
		// Clearing may have recycled the handle; recover it by position.
		if fresh, err := o.resolveAfterMutation(ctx, c.Track, c.Props.StartTime); err == nil && fresh != nil {
			c = *fresh
		}
		patch := host.PropPatch{
			EndTime:   host.Float(c.Props.EndTime + grant),
			EndMarker: host.Float(c.Props.EndMarker + grant),
		}
		if err := o.trim(ctx, c, patch); err != nil {
			slog.Error("lengthen: extend failed", "clip", c.ID, "error", err)
			warnings = append(warnings, Warnf(WarnDuplicateFailed,
				"lengthen: failed to extend clip %s", c.ID))
			return []Clip{c}, warnings
		}
		resolved, err := o.resolveAfterMutation(ctx, c.Track, c.Props.StartTime)
		if err != nil || resolved == nil {
			return []Clip{c}, warnings
		}
		return []Clip{*resolved}, warnings

	case LengthenTile:
		return e.tile(ctx, o, c, plan.Granted, warnings)
	}

	return []Clip{c}, warnings
}

// tile covers target beats by repeating the clip. Every repeat's full
// footprint is cleared before duplication - including the part of the
// final repeat that will be trimmed away, because the host writes the
// whole unit before we can shrink it.
func (e *Engine) tile(ctx context.Context, o *ops, c Clip, target float64, warnings []Warning) ([]Clip, []Warning) {
	unit := c.Props.Length()
	start := c.Props.StartTime
	end := start + target

	hold := newHoldingArea(o, c.Track, e.holdingStart)
	defer hold.sweep(ctx)

	var tileStarts []float64
	for pos := start + unit; pos < end-Eps; pos += unit {
		tileLen := unit
		if pos+unit > end {
			tileLen = end - pos
		}

		footprint := Span{Start: pos, End: pos + unit}
		if err := clearSpan(ctx, o, hold, c.Track, footprint); err != nil {
			slog.Warn("tile: clear failed", "clip", c.ID, "pos", pos, "error", err)
			warnings = append(warnings, Warnf(WarnDuplicateFailed,
				"lengthen: failed to place repeat at %s", notation.FormatPosition(pos, e.meter)))
			continue
		}
		// Clearing may have restructured the track and recycled the
		// source handle; recover it by position before duplicating.
		src, err := o.resolveAfterMutation(ctx, c.Track, start)
		if err != nil || src == nil {
			slog.Error("tile: source clip unresolvable", "clip", c.ID, "error", err)
			warnings = append(warnings, Warnf(WarnDuplicateFailed,
				"lengthen: failed to place repeat at %s", notation.FormatPosition(pos, e.meter)))
			continue
		}
		tileID, err := o.duplicateTo(ctx, *src, pos)
		if err != nil {
			warnings = append(warnings, Warnf(WarnDuplicateFailed,
				"lengthen: failed to place repeat at %s", notation.FormatPosition(pos, e.meter)))
			continue
		}
		if tileLen < unit-Eps {
			placed := c
			placed.ID = tileID
			placed.Props.StartTime = pos
			placed.Props.EndTime = pos + unit
			if err := o.trim(ctx, placed, tailTrimPatch(placed.Props, tileLen)); err != nil {
				slog.Error("tile: final repeat trim failed", "clip", tileID, "error", err)
			}
		}
		tileStarts = append(tileStarts, pos)
	}

	out := make([]Clip, 0, len(tileStarts)+1)
	for _, pos := range append([]float64{start}, tileStarts...) {
		resolved, err := o.resolveAfterMutation(ctx, c.Track, pos)
		if err != nil {
			slog.Error("tile: resolve failed", "pos", pos, "error", err)
			continue
		}
		if resolved != nil {
			out = append(out, *resolved)
		}
	}
	return out, warnings
}
