package arrange

import (
	"fmt"

	"github.com/tapelab/reclip/internal/host"
)

// Eps is the geometry tolerance for beat arithmetic. Positions closer
// than Eps are the same position; spans shorter than Eps are empty.
const Eps = 1e-6

// Span is a half-open interval [Start, End) in absolute beats.
type Span struct {
	Start float64
	End   float64
}

// SpanOf returns a clip's visible timeline span.
func SpanOf(p host.ClipProps) Span {
	return Span{Start: p.StartTime, End: p.EndTime}
}

// Len returns the span's length in beats.
func (s Span) Len() float64 { return s.End - s.Start }

// Empty reports whether the span covers less than Eps beats.
func (s Span) Empty() bool { return s.Len() < Eps }

// Contains reports whether pos lies inside the half-open span.
func (s Span) Contains(pos float64) bool {
	return pos >= s.Start-Eps && pos < s.End-Eps
}

// Intersects reports whether the two half-open spans share any beats.
// Touching endpoints do not intersect.
func (s Span) Intersects(o Span) bool {
	return s.Start < o.End-Eps && o.Start < s.End-Eps
}

func (s Span) String() string {
	return fmt.Sprintf("[%.3f, %.3f)", s.Start, s.End)
}

// Overlap classifies how a destination span relates to one existing
// clip. The categories drive which trim/delete actions clear the
// destination before anything is duplicated into it.
type Overlap int

const (
	// OverlapNone: the clip does not intersect the destination.
	OverlapNone Overlap = iota

	// OverlapContains: the clip lies fully inside the destination.
	// The clip is deleted.
	OverlapContains

	// OverlapBefore: the destination's start falls inside the clip, so
	// the overlap is at the clip's tail. The clip is trimmed to keep
	// only its portion strictly before the destination.
	OverlapBefore

	// OverlapAfter: the destination's end falls inside the clip, so the
	// overlap is at the clip's head. The clip is trimmed to keep only
	// its portion strictly after the destination.
	OverlapAfter

	// OverlapStraddles: the clip properly contains the destination. The
	// clip is split into a before-piece and an after-piece and the
	// destination is inserted between them.
	OverlapStraddles
)

func (o Overlap) String() string {
	switch o {
	case OverlapNone:
		return "none"
	case OverlapContains:
		return "contains"
	case OverlapBefore:
		return "before"
	case OverlapAfter:
		return "after"
	case OverlapStraddles:
		return "straddles"
	default:
		return "unknown"
	}
}

// Classify categorizes one existing clip span against a destination
// span. Boundary contact within Eps is not an overlap.
func Classify(dest, clip Span) Overlap {
	if !dest.Intersects(clip) {
		return OverlapNone
	}

	startsInside := clip.Start >= dest.Start-Eps
	endsInside := clip.End <= dest.End+Eps

	switch {
	case startsInside && endsInside:
		return OverlapContains
	case !startsInside && !endsInside:
		return OverlapStraddles
	case !startsInside:
		return OverlapBefore
	default:
		return OverlapAfter
	}
}
