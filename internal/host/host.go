// Package host defines the control surface the engine drives: the
// clip/track object model exposed by the DAW process and the small set
// of verbs the engine is allowed to issue against it.
//
// The host is an asynchronous, eventually-consistent external system.
// Two consequences shape this API:
//
//   - Clip identity is not stable. Any structural mutation (duplicate,
//     delete) may invalidate every previously issued ClipID on that
//     track. Callers recover handles by re-reading ArrangementClips and
//     matching by start time, never by trusting a cached ID.
//   - Duplicating a clip onto an occupied timeline span can crash the
//     host process. This is a documented host defect, not a recoverable
//     error; the engine must never issue such a duplication.
package host

import (
	"context"
	"errors"
)

// ClipID is an opaque handle to one clip inside the host. IDs are only
// valid until the next structural mutation of the owning track.
type ClipID string

// TrackID identifies a track by its index in the host's track list.
type TrackID int

// ClipProps is a point-in-time snapshot of one clip's properties.
// Times are absolute arrangement beats; markers are offsets into the
// clip's underlying content.
type ClipProps struct {
	StartTime   float64 `json:"start_time"`
	EndTime     float64 `json:"end_time"`
	LoopStart   float64 `json:"loop_start"`
	LoopEnd     float64 `json:"loop_end"`
	StartMarker float64 `json:"start_marker"`
	EndMarker   float64 `json:"end_marker"`

	Looping bool `json:"looping"`
	Warped  bool `json:"warped"`

	IsMIDI        bool `json:"is_midi_clip"`
	IsAudio       bool `json:"is_audio_clip"`
	IsArrangement bool `json:"is_arrangement_clip"`

	TrackIndex int `json:"track_index"`

	// ContentLength is the extent of recorded or generated material in
	// beats: note extent for MIDI, file duration for audio. Material
	// between EndMarker and ContentLength is hidden but recoverable by
	// extending the clip.
	ContentLength float64 `json:"content_length"`

	Name  string `json:"name"`
	Color int    `json:"color"`
}

// Length returns the clip's visible span on the timeline.
func (p ClipProps) Length() float64 {
	return p.EndTime - p.StartTime
}

// PropPatch is a partial property update. Nil fields are left alone.
type PropPatch struct {
	StartTime   *float64 `json:"start_time,omitempty"`
	EndTime     *float64 `json:"end_time,omitempty"`
	LoopStart   *float64 `json:"loop_start,omitempty"`
	LoopEnd     *float64 `json:"loop_end,omitempty"`
	StartMarker *float64 `json:"start_marker,omitempty"`
	EndMarker   *float64 `json:"end_marker,omitempty"`
	Looping     *bool    `json:"looping,omitempty"`
	Name        *string  `json:"name,omitempty"`
	Color       *int     `json:"color,omitempty"`
}

// IsZero reports whether the patch sets nothing.
func (p PropPatch) IsZero() bool {
	return p.StartTime == nil && p.EndTime == nil &&
		p.LoopStart == nil && p.LoopEnd == nil &&
		p.StartMarker == nil && p.EndMarker == nil &&
		p.Looping == nil && p.Name == nil && p.Color == nil
}

// Float returns a pointer for use in PropPatch literals.
func Float(v float64) *float64 { return &v }

// Bool returns a pointer for use in PropPatch literals.
func Bool(v bool) *bool { return &v }

// String returns a pointer for use in PropPatch literals.
func String(v string) *string { return &v }

// Int returns a pointer for use in PropPatch literals.
func Int(v int) *int { return &v }

var (
	// ErrNoObject is the host's sentinel for a duplication that
	// produced nothing. Observed in practice; callers treat it as a
	// per-step failure, not a request failure.
	ErrNoObject = errors.New("host returned no object")

	// ErrGone marks a handle the host no longer recognizes, either
	// because the clip was deleted or because a structural mutation
	// recycled its ID.
	ErrGone = errors.New("clip handle is gone")
)

// Host is the full verb set the engine ever issues. Implementations:
// Bridge (HTTP, production) and hosttest.Fake (in-memory, tests).
type Host interface {
	// GetClip reads a clip's current properties.
	GetClip(ctx context.Context, id ClipID) (ClipProps, error)

	// SetClip applies a partial property update. In-range marker and
	// placement edits never fail on a live handle.
	SetClip(ctx context.Context, id ClipID, patch PropPatch) error

	// ArrangementClips returns the track's current arrangement clips.
	// This is the only read that survives structural mutation.
	ArrangementClips(ctx context.Context, track TrackID) ([]ClipID, error)

	// DuplicateClipToArrangement clones a clip's content at an absolute
	// beat position and returns the new handle, or ErrNoObject.
	//
	// MUST only be called with a destination span known to be clear;
	// see the package comment on the crash defect.
	DuplicateClipToArrangement(ctx context.Context, id ClipID, beat float64) (ClipID, error)

	// DuplicateClipToSession copies a clip into a session slot. Used as
	// an intermediate when staging audio, because the host cannot
	// create a length-controlled audio clip directly in the
	// arrangement.
	DuplicateClipToSession(ctx context.Context, id ClipID, slot int) (ClipID, error)

	// CreateMIDIClip creates an empty MIDI clip on the arrangement.
	CreateMIDIClip(ctx context.Context, track TrackID, beat, length float64) (ClipID, error)

	// DeleteClip removes a clip. Deleting an already-gone handle is a
	// no-op.
	DeleteClip(ctx context.Context, id ClipID) error
}
