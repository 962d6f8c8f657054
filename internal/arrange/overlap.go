package arrange

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tapelab/reclip/internal/host"
)

// maxClearPasses bounds the clear loop. A destination span can only
// intersect a finite set of clips and each pass removes one, so hitting
// the cap means the host is returning inconsistent state.
const maxClearPasses = 64

// clearSpan makes dest safe to duplicate into. It is the single
// chokepoint in front of every duplication that targets a possibly
// occupied span; it exists because duplicating onto an occupied
// position can crash the host outright.
//
// Each pass rescans the track, picks one clip intersecting dest,
// classifies it, and applies the minimal action:
//
//	contains  -> delete the clip
//	before    -> trim the clip's tail back to dest.Start
//	after     -> trim the clip's head forward to dest.End
//	straddles -> stage a copy in the holding area, trim the original
//	             to the before-piece, move the copy to the after-piece
//
// Rescanning between passes is not optional: every structural action
// may invalidate the other handles read in the same pass.
func clearSpan(ctx context.Context, o *ops, hold *holdingArea, track host.TrackID, dest Span) error {
	if dest.Empty() {
		return nil
	}

	for pass := 0; pass < maxClearPasses; pass++ {
		clips, err := o.rescan(ctx, track)
		if err != nil {
			return fmt.Errorf("clear span %s: %w", dest, err)
		}

		var target *Clip
		var category Overlap
		for i := range clips {
			if clips[i].Props.StartTime >= hold.origin-Eps {
				continue // staged scratch, not visible content
			}
			if cat := Classify(dest, SpanOf(clips[i].Props)); cat != OverlapNone {
				target = &clips[i]
				category = cat
				break
			}
		}
		if target == nil {
			return nil
		}

		slog.Debug("clearing overlap",
			"track", track,
			"dest", dest.String(),
			"clip", target.ID,
			"category", category.String(),
		)

		switch category {
		case OverlapContains:
			if err := o.deleteClip(ctx, target.ID, track); err != nil {
				return fmt.Errorf("clear span %s: %w", dest, err)
			}

		case OverlapBefore:
			keep := dest.Start - target.Props.StartTime
			if err := o.trim(ctx, *target, tailTrimPatch(target.Props, keep)); err != nil {
				return fmt.Errorf("clear span %s: %w", dest, err)
			}

		case OverlapAfter:
			skip := dest.End - target.Props.StartTime
			if err := o.trim(ctx, *target, headTrimPatch(target.Props, skip)); err != nil {
				return fmt.Errorf("clear span %s: %w", dest, err)
			}

		case OverlapStraddles:
			if err := splitAround(ctx, o, hold, *target, dest); err != nil {
				return fmt.Errorf("clear span %s: %w", dest, err)
			}
		}
	}

	return fmt.Errorf("clear span %s: track %d still occupied after %d passes", dest, track, maxClearPasses)
}

// splitAround carves dest out of the middle of clip c: the original is
// trimmed to the piece before dest and a single staged copy becomes
// the piece immediately after it.
//
// The copy is staged in the holding area first because duplicating it
// straight to its final position would overlap the still-untrimmed
// original - exactly the write the crash defect punishes.
func splitAround(ctx context.Context, o *ops, hold *holdingArea, c Clip, dest Span) error {
	length := c.Props.Length()
	beforeLen := dest.Start - c.Props.StartTime
	afterOff := dest.End - c.Props.StartTime

	slot := hold.slot(length)
	copyID, err := o.duplicateTo(ctx, c, slot)
	if err != nil {
		if errors.Is(err, host.ErrNoObject) {
			return fmt.Errorf("stage straddling clip %s: %w", c.ID, err)
		}
		return err
	}

	if err := o.trim(ctx, c, tailTrimPatch(c.Props, beforeLen)); err != nil {
		return err
	}

	// The copy still carries the original's markers; reveal the
	// after-piece and move it out of the holding area in one edit. Its
	// destination [dest.End, original end) is the original's own tail,
	// free by the non-overlap invariant now that the original is
	// trimmed.
	staged := Clip{ID: copyID, Track: c.Track, Props: c.Props}
	staged.Props.StartTime = slot
	staged.Props.EndTime = slot + length
	return o.trim(ctx, staged, contentWindowPatch(c.Props, afterOff, length, dest.End))
}
