package arrange

import (
	"context"
	"log/slog"

	"github.com/tapelab/reclip/internal/host"
)

// classifySurvivors decides which of several clips bound for one
// shared destination remain observable after all of them stack there.
//
// Stacking follows input order: each later clip lands on top of the
// ones before it. Walking the list in reverse with a running maximum
// therefore identifies the hidden ones: a clip survives iff it is
// strictly longer than every clip after it. Anything else would end up
// entirely beneath a longer, later-placed clip - contributing nothing
// observable while adding crash-prone duplication work.
//
// Equal lengths keep only the last in input order.
func classifySurvivors(clips []Clip) []bool {
	survivors := make([]bool, len(clips))
	maxLen := 0.0
	for i := len(clips) - 1; i >= 0; i-- {
		length := clips[i].Length()
		if length > maxLen+Eps {
			survivors[i] = true
			maxLen = length
		}
	}
	return survivors
}

// stackTo moves every clip in the group to one shared target position.
// Non-survivors are deleted, never duplicated. Survivors are placed in
// input order, each placement preceded by clearSpan at the target so a
// new survivor never collides with the one placed just before it.
//
// All survivors are staged into the holding area before any original
// is disturbed: a survivor's original may itself sit inside the target
// span, where an earlier placement's clearSpan would destroy it.
func (e *Engine) stackTo(ctx context.Context, o *ops, clips []Clip, target float64) ([]Clip, []Warning) {
	if len(clips) == 0 {
		return nil, nil
	}
	track := clips[0].Track

	var warnings []Warning

	// Handles may be stale from earlier cycles in the same request;
	// re-resolve every input by position before planning.
	fresh := make([]Clip, 0, len(clips))
	for _, c := range clips {
		r, err := o.resolveAfterMutation(ctx, track, c.Props.StartTime)
		if err != nil || r == nil {
			warnings = append(warnings, Warnf(WarnDuplicateFailed,
				"stack: clip %s no longer resolvable; skipped", c.ID))
			continue
		}
		fresh = append(fresh, *r)
	}
	clips = fresh
	if len(clips) == 0 {
		return nil, warnings
	}
	survivors := classifySurvivors(clips)

	hold := newHoldingArea(o, track, e.holdingStart)
	defer hold.sweep(ctx)

	type staged struct {
		clip      Clip
		slot      float64
		origStart float64
	}
	var placeList []staged
	maxLen := 0.0

	for i, c := range clips {
		if !survivors[i] {
			continue
		}
		slot := hold.slot(c.Props.Length())
		if _, err := e.stageCopy(ctx, o, hold, c, slot); err != nil {
			slog.Warn("stack: staging failed", "clip", c.ID, "error", err)
			warnings = append(warnings, Warnf(WarnDuplicateFailed,
				"stack: failed to stage clip %s; left in place", c.ID))
			continue
		}
		placeList = append(placeList, staged{clip: c, slot: slot, origStart: c.Props.StartTime})
		if c.Props.Length() > maxLen {
			maxLen = c.Props.Length()
		}
	}

	for i, c := range clips {
		if survivors[i] {
			continue
		}
		fresh, err := o.resolveAfterMutation(ctx, track, c.Props.StartTime)
		if err != nil {
			slog.Error("stack: resolve non-survivor failed", "clip", c.ID, "error", err)
			continue
		}
		if fresh == nil {
			continue // already gone; deletion is idempotent in spirit
		}
		if err := o.deleteClip(ctx, fresh.ID, track); err != nil {
			slog.Error("stack: delete non-survivor failed", "clip", fresh.ID, "error", err)
		}
	}

	// Survivor placements collectively clear [target, target+maxLen).
	// An original inside that region is consumed by those clears, and
	// whatever resolves at its start afterwards is a remainder of a
	// placement, not the original. Only a start outside the region
	// still identifies the original, possibly tail-trimmed by a clear
	// but never moved.
	region := Span{Start: target, End: target + maxLen}

	for _, s := range placeList {
		dest := Span{Start: target, End: target + s.clip.Props.Length()}
		if err := clearSpan(ctx, o, hold, track, dest); err != nil {
			slog.Warn("stack: clear failed", "dest", dest.String(), "error", err)
			warnings = append(warnings, Warnf(WarnDuplicateFailed,
				"stack: failed to clear destination for clip %s", s.clip.ID))
			continue
		}

		// Deletes above - the non-survivor sweep and anything clearSpan
		// removed - have recycled handles; recover the staged copy by
		// its slot position only now.
		stagedClip, err := o.resolveAfterMutation(ctx, track, s.slot)
		if err != nil || stagedClip == nil {
			warnings = append(warnings, Warnf(WarnDuplicateFailed,
				"stack: staged copy of clip %s vanished; left in place", s.clip.ID))
			continue
		}
		if _, err := o.duplicateTo(ctx, *stagedClip, target); err != nil {
			warnings = append(warnings, Warnf(WarnDuplicateFailed,
				"stack: failed to duplicate clip %s to target", s.clip.ID))
			continue
		}

		// The move consumes the original, unless it lies in the stacked
		// region, which the clears consume.
		if !region.Contains(s.origStart) {
			orig, err := o.resolveAfterMutation(ctx, track, s.origStart)
			if err == nil && orig != nil && orig.Props.StartTime < e.holdingStart-Eps {
				if err := o.deleteClip(ctx, orig.ID, track); err != nil {
					slog.Error("stack: delete original failed", "clip", orig.ID, "error", err)
				}
			}
		}
	}

	// Report whatever is observable in the stacked region.
	result, err := collectRegion(ctx, o, track, Span{Start: target, End: target + maxLen}, e.holdingStart)
	if err != nil {
		slog.Error("stack: result rescan failed", "error", err)
		return nil, warnings
	}
	return result, warnings
}

// stageCopy duplicates c into the holding area at slot, routing audio
// through the session-view intermediate.
func (e *Engine) stageCopy(ctx context.Context, o *ops, hold *holdingArea, c Clip, slot float64) (host.ClipID, error) {
	if !c.Props.IsAudio {
		return o.duplicateTo(ctx, c, slot)
	}
	sessionID, err := o.duplicateToSession(ctx, c, e.sessionSlot)
	if err != nil {
		return "", err
	}
	intermediate := c
	intermediate.ID = sessionID
	id, err := o.duplicateTo(ctx, intermediate, slot)
	if delErr := o.deleteClip(ctx, sessionID, c.Track); delErr != nil {
		slog.Error("failed to delete session intermediate", "clip", sessionID, "error", delErr)
	}
	return id, err
}

// collectRegion returns the freshly resolved clips intersecting span,
// excluding holding-area scratch.
func collectRegion(ctx context.Context, o *ops, track host.TrackID, span Span, holdingStart float64) ([]Clip, error) {
	clips, err := o.rescan(ctx, track)
	if err != nil {
		return nil, err
	}
	var out []Clip
	for _, c := range clips {
		if c.Props.StartTime >= holdingStart-Eps {
			continue
		}
		if span.Intersects(SpanOf(c.Props)) {
			out = append(out, c)
		}
	}
	return out, nil
}
