// Package arrange implements the arrangement timeline segment engine:
// splitting clips into segments, lengthening clips to a target
// duration, moving and duplicating clips onto occupied positions, and
// stacking several clips onto one shared position.
//
// ARCHITECTURE:
//
// Everything is built from four host primitives - trim, duplicate,
// delete, rescan - plus a reserved far-future holding region per track
// used as scratch space for staging intermediate copies.
//
// The host is treated as an asynchronous, eventually-consistent
// external object store, not a local data structure:
//
//   - A value just written may not be reflected in the next read, so
//     reads that depend on recent writes go through rescans with
//     retries rather than trusting a single read.
//   - A handle held across a structural mutation may be stale, so
//     handles are re-resolved by track rescan and start-time match.
//     "Not found after rescan" is a nil, not an error: deliberate
//     deletion is a valid outcome.
//
// CRITICAL: the host can crash outright when a clip is duplicated onto
// an occupied timeline span. Every write into a possibly-occupied span
// is therefore funneled through one chokepoint, clearSpan, which trims
// or deletes whatever intersects the destination first. No call site
// special-cases the defect.
//
// The host offers no transactions. Multi-step operations are designed
// so each step is safely repeatable or at worst leaves an orphaned
// clip in the invisible holding region, which a deferred sweep
// removes; they never leave a corrupted visible clip.
package arrange
