package arrange

import (
	"context"
	"log/slog"

	"github.com/tapelab/reclip/internal/host"
)

// DefaultHoldingStart is the beat position of the scratch region used
// for staging intermediate copies: far beyond any musically meaningful
// content. Staged clips there can transiently overlap nothing real, so
// multi-step edits never risk the host's overlapping-duplicate crash,
// and an interrupted edit leaves nothing visible to the user.
const DefaultHoldingStart = 1 << 20

// holdingSlotGap separates staged clips inside the holding region so
// staged copies never overlap each other.
const holdingSlotGap = 8

// holdingArea allocates staging positions on one track and sweeps the
// region clean when the operation is over. Anything still in the
// region after an edit completes is a bug, so sweep is rescan-based:
// it deletes by position, not by possibly-stale handle.
type holdingArea struct {
	ops    *ops
	track  host.TrackID
	origin float64
	cursor float64
}

func newHoldingArea(o *ops, track host.TrackID, origin float64) *holdingArea {
	return &holdingArea{ops: o, track: track, origin: origin, cursor: origin}
}

// slot reserves the next staging position wide enough for width beats.
func (h *holdingArea) slot(width float64) float64 {
	pos := h.cursor
	h.cursor += width + holdingSlotGap
	return pos
}

// sweep deletes every clip at or beyond the region origin. Called in a
// defer so the region is consumed even when a step failed mid-plan.
// Sweep errors are logged, not returned: an orphaned staged clip is
// invisible and cheap, a masked operation error is not.
//
// Each delete recycles every other handle on the track, so the region
// drains one clip per pass with a rescan in between, the same shape as
// clearSpan.
func (h *holdingArea) sweep(ctx context.Context) {
	for pass := 0; pass < maxClearPasses; pass++ {
		clips, err := h.ops.rescan(ctx, h.track)
		if err != nil {
			slog.Error("holding sweep rescan failed", "track", h.track, "error", err)
			return
		}
		var target *Clip
		for i := range clips {
			if clips[i].Props.StartTime >= h.origin-Eps {
				target = &clips[i]
				break
			}
		}
		if target == nil {
			return
		}
		if err := h.ops.deleteClip(ctx, target.ID, h.track); err != nil {
			slog.Error("holding sweep delete failed",
				"track", h.track,
				"clip", target.ID,
				"start_time", target.Props.StartTime,
				"error", err,
			)
			return
		}
	}
	slog.Error("holding sweep did not drain", "track", h.track, "origin", h.origin)
}
