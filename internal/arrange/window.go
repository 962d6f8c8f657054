package arrange

import (
	"math"

	"github.com/tapelab/reclip/internal/host"
)

// Marker math shared by the overlap resolver and the split executor.
// Offsets are beats relative to a clip's current visible start; the
// patches reveal exactly the requested slice of underlying content at
// the requested placement, keeping loop phase continuous so adjacent
// slices of looped material join seamlessly.

// contentWindowPatch places the content window [offA, offB) of src at
// newStart on the timeline.
func contentWindowPatch(src host.ClipProps, offA, offB, newStart float64) host.PropPatch {
	patch := host.PropPatch{
		StartTime: host.Float(newStart),
		EndTime:   host.Float(newStart + (offB - offA)),
	}
	if src.Looping {
		patch.StartMarker = host.Float(loopPhaseMarker(src, offA))
	} else {
		patch.StartMarker = host.Float(src.StartMarker + offA)
		patch.EndMarker = host.Float(src.StartMarker + offB)
	}
	return patch
}

// tailTrimPatch keeps only the clip's first off beats in place.
func tailTrimPatch(src host.ClipProps, off float64) host.PropPatch {
	patch := host.PropPatch{
		EndTime: host.Float(src.StartTime + off),
	}
	if !src.Looping {
		patch.EndMarker = host.Float(src.StartMarker + off)
	}
	return patch
}

// headTrimPatch keeps only the clip's content from off beats onward,
// re-anchored so the surviving material stays where it was.
func headTrimPatch(src host.ClipProps, off float64) host.PropPatch {
	return contentWindowPatch(src, off, src.Length(), src.StartTime+off)
}

// loopPhaseMarker returns the start marker that reveals a looping
// clip's content at visible offset off, preserving loop phase.
func loopPhaseMarker(src host.ClipProps, off float64) float64 {
	loopLen := src.LoopEnd - src.LoopStart
	if loopLen < Eps {
		return src.StartMarker
	}
	phase := math.Mod(src.StartMarker-src.LoopStart+off, loopLen)
	if phase < 0 {
		phase += loopLen
	}
	return src.LoopStart + phase
}
