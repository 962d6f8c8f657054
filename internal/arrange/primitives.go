package arrange

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/tapelab/reclip/internal/host"
)

// Clip is a freshly resolved handle plus the property snapshot read at
// resolution time. A Clip is only trustworthy until the next structural
// mutation of its track.
type Clip struct {
	ID    host.ClipID
	Track host.TrackID
	Props host.ClipProps
}

// Length returns the clip's visible length in beats.
func (c Clip) Length() float64 { return c.Props.Length() }

// ops wraps the four host verbs with journaling and the rescan-based
// handle recovery the host's consistency model demands. Everything the
// engine does to the host goes through here.
type ops struct {
	h     host.Host
	rec   Recorder
	clock *Clock
	token string

	tolerance float64
	attempts  int
	backoff   time.Duration
}

func (o *ops) record(ctx context.Context, verb string, clip host.ClipID, track host.TrackID, beat float64, detail string) {
	o.rec.Record(ctx, Entry{
		RequestToken: o.token,
		Seq:          o.clock.Next(),
		Verb:         verb,
		Clip:         clip,
		Track:        track,
		Beat:         beat,
		Detail:       detail,
	})
}

// getClip reads a clip's current properties without journaling; reads
// are not mutations and would drown the journal.
func (o *ops) getClip(ctx context.Context, id host.ClipID) (host.ClipProps, error) {
	return o.h.GetClip(ctx, id)
}

// trim applies boundary/placement edits to a live handle.
func (o *ops) trim(ctx context.Context, c Clip, patch host.PropPatch) error {
	if patch.IsZero() {
		return nil
	}
	o.record(ctx, "trim", c.ID, c.Track, c.Props.StartTime, patchDetail(patch))
	if err := o.h.SetClip(ctx, c.ID, patch); err != nil {
		return fmt.Errorf("trim clip %s: %w", c.ID, err)
	}
	return nil
}

// duplicateTo clones a clip's content at an absolute beat. The caller
// is responsible for having cleared the destination span first; this
// wrapper only translates the host's no-object sentinel.
func (o *ops) duplicateTo(ctx context.Context, c Clip, beat float64) (host.ClipID, error) {
	o.record(ctx, "duplicate", c.ID, c.Track, beat, "")
	id, err := o.h.DuplicateClipToArrangement(ctx, c.ID, beat)
	if err != nil {
		if errors.Is(err, host.ErrNoObject) {
			slog.Warn("duplication returned no object", "clip", c.ID, "beat", beat)
			return "", err
		}
		return "", fmt.Errorf("duplicate clip %s to %.3f: %w", c.ID, beat, err)
	}
	return id, nil
}

// duplicateToSession copies a clip into a session slot, the required
// intermediate when staging audio content.
func (o *ops) duplicateToSession(ctx context.Context, c Clip, slot int) (host.ClipID, error) {
	o.record(ctx, "duplicate-session", c.ID, c.Track, float64(slot), "")
	id, err := o.h.DuplicateClipToSession(ctx, c.ID, slot)
	if err != nil {
		if errors.Is(err, host.ErrNoObject) {
			return "", err
		}
		return "", fmt.Errorf("duplicate clip %s to session slot %d: %w", c.ID, slot, err)
	}
	return id, nil
}

// deleteClip removes a clip. An already-gone handle is a no-op, which
// makes deletes safe to repeat after partial failures.
func (o *ops) deleteClip(ctx context.Context, id host.ClipID, track host.TrackID) error {
	o.record(ctx, "delete", id, track, 0, "")
	if err := o.h.DeleteClip(ctx, id); err != nil {
		if errors.Is(err, host.ErrGone) {
			return nil
		}
		return fmt.Errorf("delete clip %s: %w", id, err)
	}
	return nil
}

// rescan re-reads a track's arrangement clips and their properties,
// sorted by start time. Handles that vanish between the list read and
// the property read are skipped; they belong to a mutation racing this
// read and the next rescan will see the settled state.
func (o *ops) rescan(ctx context.Context, track host.TrackID) ([]Clip, error) {
	o.record(ctx, "rescan", "", track, 0, "")
	ids, err := o.h.ArrangementClips(ctx, track)
	if err != nil {
		return nil, fmt.Errorf("rescan track %d: %w", track, err)
	}

	clips := make([]Clip, 0, len(ids))
	for _, id := range ids {
		props, err := o.h.GetClip(ctx, id)
		if err != nil {
			if errors.Is(err, host.ErrGone) {
				continue
			}
			return nil, fmt.Errorf("rescan track %d: read clip %s: %w", track, id, err)
		}
		clips = append(clips, Clip{ID: id, Track: track, Props: props})
	}

	sort.Slice(clips, func(i, j int) bool {
		return clips[i].Props.StartTime < clips[j].Props.StartTime
	})
	return clips, nil
}

// resolveAfterMutation recovers a fresh handle for the clip at a known
// start time. Returns nil (not an error) when no clip matches after
// all attempts: deliberate deletion is a valid outcome.
//
// The retry loop absorbs the host's read-after-write lag; a structural
// mutation may not be visible on the first rescan.
func (o *ops) resolveAfterMutation(ctx context.Context, track host.TrackID, startTime float64) (*Clip, error) {
	attempts := o.attempts
	if attempts < 1 {
		attempts = 1
	}

	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(o.backoff):
			}
		}

		clips, err := o.rescan(ctx, track)
		if err != nil {
			return nil, err
		}
		for _, c := range clips {
			if abs(c.Props.StartTime-startTime) <= o.tolerance {
				return &c, nil
			}
		}
		slog.Debug("resolve miss, retrying",
			"track", track,
			"start_time", startTime,
			"attempt", i+1,
		)
	}
	return nil, nil
}

func patchDetail(p host.PropPatch) string {
	d := ""
	add := func(k string, v float64) {
		if d != "" {
			d += " "
		}
		d += fmt.Sprintf("%s=%.3f", k, v)
	}
	if p.StartTime != nil {
		add("start_time", *p.StartTime)
	}
	if p.EndTime != nil {
		add("end_time", *p.EndTime)
	}
	if p.StartMarker != nil {
		add("start_marker", *p.StartMarker)
	}
	if p.EndMarker != nil {
		add("end_marker", *p.EndMarker)
	}
	if p.LoopStart != nil {
		add("loop_start", *p.LoopStart)
	}
	if p.LoopEnd != nil {
		add("loop_end", *p.LoopEnd)
	}
	if p.Looping != nil {
		if d != "" {
			d += " "
		}
		d += fmt.Sprintf("looping=%t", *p.Looping)
	}
	return d
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
