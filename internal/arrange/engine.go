package arrange

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tapelab/reclip/internal/host"
	"github.com/tapelab/reclip/internal/metrics"
	"github.com/tapelab/reclip/internal/notation"
)

// Engine plans and executes structural clip edits against the host:
// split/slice, lengthen/tile, overlap-clearing moves, and multi-clip
// stacking. Everything is built from four primitives (trim, duplicate,
// delete, rescan) applied through a scratch holding region.
//
// There is no internal parallelism. Every operation is a strictly
// sequential chain of host calls, and when a request covers several
// clips each clip's full plan-execute-resolve cycle completes before
// the next begins, so a failure in one cannot bleed into another's
// state. A failed step degrades to a scoped warning; the engine moves
// on to the next independent unit of work.
type Engine struct {
	h        host.Host
	meter    notation.Meter
	rec      Recorder
	tokens   TokenGenerator
	clock    *Clock
	reporter *metrics.Reporter

	holdingStart   float64
	maxSplitPoints int
	sessionSlot    int

	resolveTolerance float64
	resolveAttempts  int
	resolveBackoff   time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithMeter sets the time signature used to interpret bar|beat input.
func WithMeter(m notation.Meter) Option {
	return func(e *Engine) { e.meter = m }
}

// WithHoldingStart moves the scratch region origin. Must stay far
// beyond any musical content.
func WithHoldingStart(beat float64) Option {
	return func(e *Engine) { e.holdingStart = beat }
}

// WithMaxSplitPoints overrides the split point cap.
func WithMaxSplitPoints(n int) Option {
	return func(e *Engine) { e.maxSplitPoints = n }
}

// WithSessionSlot sets the session-view slot used as the audio staging
// intermediate.
func WithSessionSlot(slot int) Option {
	return func(e *Engine) { e.sessionSlot = slot }
}

// WithResolve tunes handle recovery: start-time match tolerance, rescan
// attempts, and the backoff between attempts.
func WithResolve(tolerance float64, attempts int, backoff time.Duration) Option {
	return func(e *Engine) {
		e.resolveTolerance = tolerance
		e.resolveAttempts = attempts
		e.resolveBackoff = backoff
	}
}

// WithRecorder journals every host verb the engine issues.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.rec = r }
}

// WithTokens overrides request token generation; tests pass a
// FixedGenerator for deterministic journals.
func WithTokens(g TokenGenerator) Option {
	return func(e *Engine) { e.tokens = g }
}

// WithReporter attaches optional telemetry.
func WithReporter(r *metrics.Reporter) Option {
	return func(e *Engine) { e.reporter = r }
}

// New creates an Engine bound to a host.
func New(h host.Host, opts ...Option) *Engine {
	e := &Engine{
		h:                h,
		meter:            notation.Common44,
		rec:              NopRecorder{},
		tokens:           UUIDv7Generator{},
		clock:            NewClock(),
		holdingStart:     DefaultHoldingStart,
		maxSplitPoints:   DefaultMaxSplitPoints,
		sessionSlot:      0,
		resolveTolerance: 1e-3,
		resolveAttempts:  3,
		resolveBackoff:   25 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Request is one caller-facing "update clip(s)" call: a set of clip
// handles plus zero or more structural operations and scalar property
// updates. Structural operations apply in a fixed order - move/stack,
// then split or slice, then lengthen - each consuming the clips the
// previous stage produced. Scalar updates apply to every clip the
// structural work leaves behind.
type Request struct {
	ClipIDs []host.ClipID

	// Split is a comma-separated list of bar|beat cut positions.
	Split string
	// Slice is a bar:beat interval for uniform cuts. Mutually
	// exclusive with Split.
	Slice string
	// ArrangementStart is one or more comma-separated bar|beat move
	// targets. Several clips with one target stack; one clip with
	// several targets fans out.
	ArrangementStart string
	// ArrangementLength is a bar:beat target length.
	ArrangementLength string

	Name  *string
	Color *int
}

// Result is the outcome of one update request. One resulting clip
// means the caller gets a single object; more means an array.
// Warnings are human-readable and never imply failure.
type Result struct {
	Clips    []Clip
	Warnings []Warning
}

// WarningStrings flattens warnings for the response envelope.
func (r *Result) WarningStrings() []string {
	out := make([]string, len(r.Warnings))
	for i, w := range r.Warnings {
		out[i] = w.String()
	}
	return out
}

func (r *Result) warn(reporter *metrics.Reporter, ws ...Warning) {
	for _, w := range ws {
		slog.Warn("operation warning", "code", string(w.Code), "message", w.Message)
		reporter.CaptureWarning(string(w.Code), w.Message)
		r.Warnings = append(r.Warnings, w)
	}
}

// Update executes one request. A returned error is a request-level
// rejection and implies no mutation happened; per-step failures show
// up as warnings on the Result instead.
func (e *Engine) Update(ctx context.Context, req Request) (*Result, error) {
	if len(req.ClipIDs) == 0 {
		return nil, NewRequestError(ErrCodeInvalidRequest, "no clip ids given")
	}
	if req.Split != "" && req.Slice != "" {
		return nil, NewRequestError(ErrCodeInvalidRequest, "split and slice cannot be combined")
	}

	token := e.tokens.Generate()
	o := &ops{
		h:         e.h,
		rec:       e.rec,
		clock:     e.clock,
		token:     token,
		tolerance: e.resolveTolerance,
		attempts:  e.resolveAttempts,
		backoff:   e.resolveBackoff,
	}

	ctx, finish := e.reporter.StartOperation(ctx, "update", token)
	defer finish()

	slog.Info("update starting",
		"request_token", token,
		"clips", len(req.ClipIDs),
		"split", req.Split != "",
		"slice", req.Slice != "",
		"move", req.ArrangementStart != "",
		"lengthen", req.ArrangementLength != "",
	)

	// Resolve every target up front; an unknown clip rejects the call
	// before anything mutates.
	var working, passthrough []Clip
	res := &Result{}
	for _, id := range req.ClipIDs {
		if id == "" {
			return nil, NewRequestError(ErrCodeInvalidClipID, "empty clip id")
		}
		props, err := o.getClip(ctx, id)
		if err != nil {
			return nil, WrapRequestError(ErrCodeUnknownClip, fmt.Sprintf("clip %s", id), err)
		}
		c := Clip{ID: id, Track: host.TrackID(props.TrackIndex), Props: props}
		if !props.IsArrangement {
			res.warn(e.reporter, Warnf(WarnNotArrangement,
				"clip %s is not an arrangement clip; returned unchanged", id))
			passthrough = append(passthrough, c)
			continue
		}
		working = append(working, c)
	}

	// Parse the remaining structural parameters at the request
	// boundary. Split offsets are deliberately not parsed here: their
	// validation vocabulary is warnings, handled per clip by planSplit.
	var positions []float64
	if req.ArrangementStart != "" {
		var err error
		positions, err = notation.ParsePositionList(req.ArrangementStart, e.meter)
		if err != nil {
			return nil, WrapRequestError(ErrCodeInvalidPosition, "arrangementStart", err)
		}
	}
	var sliceInterval float64
	if req.Slice != "" {
		var err error
		sliceInterval, err = notation.ParseInterval(req.Slice, e.meter)
		if err != nil {
			return nil, WrapRequestError(ErrCodeInvalidInterval, "slice", err)
		}
	}
	var targetLength float64
	if req.ArrangementLength != "" {
		var err error
		targetLength, err = notation.ParseInterval(req.ArrangementLength, e.meter)
		if err != nil {
			return nil, WrapRequestError(ErrCodeInvalidInterval, "arrangementLength", err)
		}
	}
	if req.ArrangementStart != "" {
		if err := validateFanOut(len(working), len(positions)); err != nil {
			return nil, err
		}
		// Stacking resolves survivors against one shared track; clips
		// from several tracks cannot share a destination.
		if len(positions) == 1 && len(working) > 1 {
			for _, c := range working[1:] {
				if c.Track != working[0].Track {
					return nil, NewRequestError(ErrCodeInvalidRequest,
						fmt.Sprintf("cannot stack clips from tracks %d and %d onto one position",
							working[0].Track, c.Track))
				}
			}
		}
	}

	// Stage 1: move / stack / fan-out.
	if len(positions) > 0 && len(working) > 0 {
		working = e.applyMove(ctx, o, res, working, positions)
	}

	// Stage 2: split or slice, one full cycle per clip.
	if req.Split != "" || req.Slice != "" {
		if len(working) == 0 {
			res.warn(e.reporter, Warnf(WarnSplitNoArrangement,
				"split: no arrangement clips among the targets"))
		} else {
			working = e.applySplit(ctx, o, res, working, req.Split, sliceInterval)
		}
	}

	// Stage 3: lengthen.
	if req.ArrangementLength != "" {
		var next []Clip
		for _, c := range working {
			produced, ws := e.lengthenOne(ctx, o, c, targetLength)
			res.warn(e.reporter, ws...)
			next = append(next, produced...)
		}
		working = next
	}

	// Structural stages recycle handles as they delete; re-resolve
	// everything once so property edits and the returned clips carry
	// live handles.
	if req.ArrangementStart != "" || req.Split != "" || req.Slice != "" || req.ArrangementLength != "" {
		for i := range working {
			fresh, err := o.resolveAfterMutation(ctx, working[i].Track, working[i].Props.StartTime)
			if err == nil && fresh != nil {
				working[i] = *fresh
			}
		}
	}

	// Stage 4: scalar property updates on everything produced.
	patch := host.PropPatch{Name: req.Name, Color: req.Color}
	if !patch.IsZero() {
		for i := range working {
			if err := o.trim(ctx, working[i], patch); err != nil {
				slog.Error("property update failed", "clip", working[i].ID, "error", err)
				continue
			}
			if req.Name != nil {
				working[i].Props.Name = *req.Name
			}
			if req.Color != nil {
				working[i].Props.Color = *req.Color
			}
		}
	}

	res.Clips = append(passthrough, working...)
	slog.Info("update finished",
		"request_token", token,
		"clips", len(res.Clips),
		"warnings", len(res.Warnings),
	)
	return res, nil
}

// validateFanOut enforces the clip/position pairing rules: one target
// for any number of clips (move or stack), pairwise targets, or one
// clip fanned out to many targets.
func validateFanOut(clips, positions int) error {
	switch {
	case positions == 1, clips == positions, clips == 1:
		return nil
	default:
		return NewRequestError(ErrCodeInvalidRequest,
			fmt.Sprintf("cannot pair %d clips with %d arrangement positions", clips, positions))
	}
}

func (e *Engine) applyMove(ctx context.Context, o *ops, res *Result, working []Clip, positions []float64) []Clip {
	switch {
	case len(positions) == 1 && len(working) > 1:
		// Stack: everything onto one shared position.
		out, ws := e.stackTo(ctx, o, working, positions[0])
		res.warn(e.reporter, ws...)
		return out

	case len(positions) == len(working):
		// Pairwise moves, each a complete cycle.
		var out []Clip
		for i, c := range working {
			moved, ws := e.stackTo(ctx, o, []Clip{c}, positions[i])
			res.warn(e.reporter, ws...)
			out = append(out, moved...)
		}
		return out

	default:
		// One clip, many positions: move to the first, copy to the
		// rest.
		c := working[0]
		out, ws := e.stackTo(ctx, o, []Clip{c}, positions[0])
		res.warn(e.reporter, ws...)
		for _, pos := range positions[1:] {
			if len(out) == 0 {
				break
			}
			copied, ws := e.placeCopy(ctx, o, out[0], pos)
			res.warn(e.reporter, ws...)
			out = append(out, copied...)
		}
		return out
	}
}

// placeCopy duplicates src at pos without disturbing the original.
func (e *Engine) placeCopy(ctx context.Context, o *ops, src Clip, pos float64) ([]Clip, []Warning) {
	var warnings []Warning
	hold := newHoldingArea(o, src.Track, e.holdingStart)
	defer hold.sweep(ctx)

	dest := Span{Start: pos, End: pos + src.Props.Length()}
	if err := clearSpan(ctx, o, hold, src.Track, dest); err != nil {
		warnings = append(warnings, Warnf(WarnDuplicateFailed,
			"copy: failed to clear destination %s", notation.FormatPosition(pos, e.meter)))
		return nil, warnings
	}

	// clearSpan may have restructured the track; re-resolve the source
	// before duplicating from it.
	fresh, err := o.resolveAfterMutation(ctx, src.Track, src.Props.StartTime)
	if err != nil || fresh == nil {
		warnings = append(warnings, Warnf(WarnDuplicateFailed,
			"copy: source clip %s no longer resolvable", src.ID))
		return nil, warnings
	}
	if _, err := o.duplicateTo(ctx, *fresh, pos); err != nil {
		warnings = append(warnings, Warnf(WarnDuplicateFailed,
			"copy: failed to duplicate clip %s to %s", src.ID, notation.FormatPosition(pos, e.meter)))
		return nil, warnings
	}

	placed, err := o.resolveAfterMutation(ctx, src.Track, pos)
	if err != nil || placed == nil {
		warnings = append(warnings, Warnf(WarnDuplicateFailed,
			"copy: placed clip at %s not resolvable", notation.FormatPosition(pos, e.meter)))
		return nil, warnings
	}
	return []Clip{*placed}, warnings
}

func (e *Engine) applySplit(ctx context.Context, o *ops, res *Result, working []Clip, raw string, sliceInterval float64) []Clip {
	var next []Clip
	for _, c := range working {
		var offsets []float64
		var w *Warning
		if raw != "" {
			offsets, w = e.planSplit(c.Props, raw)
		} else {
			offsets, w = e.planSlice(c.Props, sliceInterval)
		}
		if w != nil {
			res.warn(e.reporter, *w)
		}
		if len(offsets) == 0 {
			next = append(next, c)
			continue
		}
		segments, ws := e.executeSplit(ctx, o, c, offsets)
		res.warn(e.reporter, ws...)
		next = append(next, segments...)
	}
	return next
}
