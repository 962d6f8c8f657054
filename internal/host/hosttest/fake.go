// Package hosttest provides an in-memory Host for tests.
//
// The fake reproduces the host behaviors the engine is built to
// survive:
//
//   - Duplicating (or moving) a clip onto an occupied span "crashes"
//     the fake: the call fails, a crashed flag latches, and every
//     later call errors. A test that trips this has found the exact
//     bug the overlap resolver exists to prevent.
//   - Deleting an arrangement clip recycles every other handle on the
//     track, so cached handles go stale the way they do against the
//     real host. Rescan-and-match is the only reliable recovery.
//   - Optional read lag serves stale clip lists, exercising the
//     engine's resolve retries.
package hosttest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/tapelab/reclip/internal/host"
)

// ErrCrashed is returned by every call after the fake host crashed.
var ErrCrashed = errors.New("host process crashed")

const eps = 1e-6

type fakeClip struct {
	id      host.ClipID
	track   host.TrackID
	session bool
	props   host.ClipProps
}

// Fake is an in-memory Host. Safe for concurrent use, though the
// engine is strictly sequential.
type Fake struct {
	mu      sync.Mutex
	nextID  int
	tracks  map[host.TrackID][]*fakeClip
	handles map[host.ClipID]*fakeClip

	crashed    bool
	crashCause string

	failDuplicates int
	dupCount       int

	lagRemaining int
	lagSnapshot  map[host.TrackID][]host.ClipID

	invalidateOnDelete bool
}

// NewFake creates an empty fake host with handle invalidation on
// delete enabled.
func NewFake() *Fake {
	return &Fake{
		tracks:             make(map[host.TrackID][]*fakeClip),
		handles:            make(map[host.ClipID]*fakeClip),
		invalidateOnDelete: true,
	}
}

// --- test setup -------------------------------------------------------

// AddMIDIClip places an unlooped MIDI clip whose content exactly fills
// its visible span.
func (f *Fake) AddMIDIClip(track host.TrackID, start, length float64) host.ClipID {
	return f.AddClip(track, host.ClipProps{
		StartTime:     start,
		EndTime:       start + length,
		StartMarker:   0,
		EndMarker:     length,
		LoopStart:     0,
		LoopEnd:       length,
		IsMIDI:        true,
		IsArrangement: true,
		TrackIndex:    int(track),
		ContentLength: length,
	})
}

// AddMIDIClipWithContent places an unlooped MIDI clip with material
// extending contentLength beats, possibly beyond its visible end.
func (f *Fake) AddMIDIClipWithContent(track host.TrackID, start, length, contentLength float64) host.ClipID {
	return f.AddClip(track, host.ClipProps{
		StartTime:     start,
		EndTime:       start + length,
		StartMarker:   0,
		EndMarker:     length,
		LoopStart:     0,
		LoopEnd:       contentLength,
		IsMIDI:        true,
		IsArrangement: true,
		TrackIndex:    int(track),
		ContentLength: contentLength,
	})
}

// AddLoopedMIDIClip places a looping MIDI clip with the given loop
// length.
func (f *Fake) AddLoopedMIDIClip(track host.TrackID, start, length, loopLength float64) host.ClipID {
	return f.AddClip(track, host.ClipProps{
		StartTime:     start,
		EndTime:       start + length,
		StartMarker:   0,
		EndMarker:     loopLength,
		LoopStart:     0,
		LoopEnd:       loopLength,
		Looping:       true,
		IsMIDI:        true,
		IsArrangement: true,
		TrackIndex:    int(track),
		ContentLength: loopLength,
	})
}

// AddAudioClip places an unlooped audio clip. contentLength is the
// file's duration in beats; warped marks it time-stretchable.
func (f *Fake) AddAudioClip(track host.TrackID, start, length, contentLength float64, warped bool) host.ClipID {
	return f.AddClip(track, host.ClipProps{
		StartTime:     start,
		EndTime:       start + length,
		StartMarker:   0,
		EndMarker:     length,
		LoopStart:     0,
		LoopEnd:       contentLength,
		Warped:        warped,
		IsAudio:       true,
		IsArrangement: true,
		TrackIndex:    int(track),
		ContentLength: contentLength,
	})
}

// AddClip places a clip with explicit properties.
func (f *Fake) AddClip(track host.TrackID, props host.ClipProps) host.ClipID {
	f.mu.Lock()
	defer f.mu.Unlock()
	props.TrackIndex = int(track)
	c := &fakeClip{id: f.allocID(), track: track, props: props}
	f.tracks[track] = append(f.tracks[track], c)
	f.handles[c.id] = c
	return c.id
}

// FailDuplicates makes the next n arrangement duplications return
// host.ErrNoObject.
func (f *Fake) FailDuplicates(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failDuplicates = n
}

// SetReadLag arms stale reads: the next n ArrangementClips calls
// return the clip lists as they are right now, regardless of later
// mutations.
func (f *Fake) SetReadLag(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lagRemaining = n
	f.lagSnapshot = make(map[host.TrackID][]host.ClipID, len(f.tracks))
	for track, clips := range f.tracks {
		ids := make([]host.ClipID, len(clips))
		for i, c := range clips {
			ids[i] = c.id
		}
		f.lagSnapshot[track] = ids
	}
}

// DisableHandleInvalidation keeps handles stable across deletes.
func (f *Fake) DisableHandleInvalidation() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidateOnDelete = false
}

// --- test inspection --------------------------------------------------

// Crashed reports whether an overlapping write took the host down.
func (f *Fake) Crashed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.crashed
}

// DupCount returns how many arrangement duplications succeeded.
func (f *Fake) DupCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dupCount
}

// Clips returns the track's arrangement clips sorted by start time.
func (f *Fake) Clips(track host.TrackID) []host.ClipProps {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]host.ClipProps, 0, len(f.tracks[track]))
	for _, c := range f.tracks[track] {
		out = append(out, c.props)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime < out[j].StartTime })
	return out
}

// ClipsIn returns the track's clips intersecting [start, end), sorted
// by start time.
func (f *Fake) ClipsIn(track host.TrackID, start, end float64) []host.ClipProps {
	var out []host.ClipProps
	for _, p := range f.Clips(track) {
		if p.StartTime < end-eps && start < p.EndTime-eps {
			out = append(out, p)
		}
	}
	return out
}

// SessionClipCount returns how many session clips currently exist.
func (f *Fake) SessionClipCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.handles {
		if c.session {
			n++
		}
	}
	return n
}

// --- host.Host --------------------------------------------------------

func (f *Fake) GetClip(_ context.Context, id host.ClipID) (host.ClipProps, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.crashed {
		return host.ClipProps{}, ErrCrashed
	}
	c, ok := f.handles[id]
	if !ok {
		return host.ClipProps{}, host.ErrGone
	}
	return c.props, nil
}

func (f *Fake) SetClip(_ context.Context, id host.ClipID, patch host.PropPatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.crashed {
		return ErrCrashed
	}
	c, ok := f.handles[id]
	if !ok {
		return host.ErrGone
	}

	if patch.StartTime != nil {
		c.props.StartTime = *patch.StartTime
	}
	if patch.EndTime != nil {
		c.props.EndTime = *patch.EndTime
	}
	if patch.StartMarker != nil {
		c.props.StartMarker = *patch.StartMarker
	}
	if patch.EndMarker != nil {
		c.props.EndMarker = *patch.EndMarker
	}
	if patch.LoopStart != nil {
		c.props.LoopStart = *patch.LoopStart
	}
	if patch.LoopEnd != nil {
		c.props.LoopEnd = *patch.LoopEnd
	}
	if patch.Looping != nil {
		c.props.Looping = *patch.Looping
	}
	if patch.Name != nil {
		c.props.Name = *patch.Name
	}
	if patch.Color != nil {
		c.props.Color = *patch.Color
	}

	if !c.session && (patch.StartTime != nil || patch.EndTime != nil) {
		if other := f.overlapping(c.track, c.props.StartTime, c.props.EndTime, c); other != nil {
			return f.crash(fmt.Sprintf("clip %s moved onto occupied span of %s", id, other.id))
		}
	}
	return nil
}

func (f *Fake) ArrangementClips(_ context.Context, track host.TrackID) ([]host.ClipID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.crashed {
		return nil, ErrCrashed
	}
	if f.lagRemaining > 0 {
		f.lagRemaining--
		return append([]host.ClipID(nil), f.lagSnapshot[track]...), nil
	}
	clips := append([]*fakeClip(nil), f.tracks[track]...)
	sort.Slice(clips, func(i, j int) bool { return clips[i].props.StartTime < clips[j].props.StartTime })
	ids := make([]host.ClipID, len(clips))
	for i, c := range clips {
		ids[i] = c.id
	}
	return ids, nil
}

func (f *Fake) DuplicateClipToArrangement(_ context.Context, id host.ClipID, beat float64) (host.ClipID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.crashed {
		return "", ErrCrashed
	}
	c, ok := f.handles[id]
	if !ok {
		return "", host.ErrGone
	}
	if f.failDuplicates > 0 {
		f.failDuplicates--
		return "", host.ErrNoObject
	}

	length := c.props.Length()
	if other := f.overlapping(c.track, beat, beat+length, nil); other != nil {
		return "", f.crash(fmt.Sprintf("duplicate of %s onto occupied span of %s at %.3f", id, other.id, beat))
	}

	props := c.props
	props.StartTime = beat
	props.EndTime = beat + length
	props.IsArrangement = true
	dup := &fakeClip{id: f.allocID(), track: c.track, props: props}
	f.tracks[c.track] = append(f.tracks[c.track], dup)
	f.handles[dup.id] = dup
	f.dupCount++
	return dup.id, nil
}

func (f *Fake) DuplicateClipToSession(_ context.Context, id host.ClipID, _ int) (host.ClipID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.crashed {
		return "", ErrCrashed
	}
	c, ok := f.handles[id]
	if !ok {
		return "", host.ErrGone
	}
	props := c.props
	props.IsArrangement = false
	dup := &fakeClip{id: f.allocID(), track: c.track, session: true, props: props}
	f.handles[dup.id] = dup
	return dup.id, nil
}

func (f *Fake) CreateMIDIClip(_ context.Context, track host.TrackID, beat, length float64) (host.ClipID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.crashed {
		return "", ErrCrashed
	}
	if other := f.overlapping(track, beat, beat+length, nil); other != nil {
		return "", f.crash(fmt.Sprintf("create onto occupied span of %s at %.3f", other.id, beat))
	}
	c := &fakeClip{
		id:    f.allocID(),
		track: track,
		props: host.ClipProps{
			StartTime:     beat,
			EndTime:       beat + length,
			EndMarker:     length,
			LoopEnd:       length,
			IsMIDI:        true,
			IsArrangement: true,
			TrackIndex:    int(track),
			ContentLength: length,
		},
	}
	f.tracks[track] = append(f.tracks[track], c)
	f.handles[c.id] = c
	return c.id, nil
}

func (f *Fake) DeleteClip(_ context.Context, id host.ClipID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.crashed {
		return ErrCrashed
	}
	c, ok := f.handles[id]
	if !ok {
		return host.ErrGone
	}
	delete(f.handles, id)
	if c.session {
		return nil
	}

	clips := f.tracks[c.track]
	for i, cc := range clips {
		if cc == c {
			f.tracks[c.track] = append(clips[:i], clips[i+1:]...)
			break
		}
	}

	// Deleting restructures the track's clip list; the real host may
	// recycle every handle on it.
	if f.invalidateOnDelete {
		for _, cc := range f.tracks[c.track] {
			delete(f.handles, cc.id)
			cc.id = f.allocID()
			f.handles[cc.id] = cc
		}
	}
	return nil
}

var _ host.Host = (*Fake)(nil)

// --- internals --------------------------------------------------------

func (f *Fake) allocID() host.ClipID {
	f.nextID++
	return host.ClipID(fmt.Sprintf("clip-%d", f.nextID))
}

// overlapping returns an arrangement clip on track whose span
// intersects [start, end), excluding skip. Touching endpoints do not
// intersect.
func (f *Fake) overlapping(track host.TrackID, start, end float64, skip *fakeClip) *fakeClip {
	for _, c := range f.tracks[track] {
		if c == skip {
			continue
		}
		if c.props.StartTime < end-eps && start < c.props.EndTime-eps {
			return c
		}
	}
	return nil
}

// crash latches the crashed state and returns the crash error. Callers
// must hold f.mu.
func (f *Fake) crash(cause string) error {
	f.crashed = true
	f.crashCause = cause
	return fmt.Errorf("%w: %s", ErrCrashed, cause)
}
