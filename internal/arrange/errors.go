package arrange

import (
	"errors"
	"fmt"
)

// Two error tiers, mirroring the caller contract: a RequestError
// rejects the whole call; a Warning records degraded work on a call
// that still succeeds.

// RequestErrorCode categorizes request-level rejections.
type RequestErrorCode string

const (
	// ErrCodeInvalidClipID indicates a malformed clip identifier.
	ErrCodeInvalidClipID RequestErrorCode = "INVALID_CLIP_ID"

	// ErrCodeUnknownClip indicates a reference to a nonexistent clip.
	ErrCodeUnknownClip RequestErrorCode = "UNKNOWN_CLIP"

	// ErrCodeInvalidPosition indicates unparseable position syntax.
	ErrCodeInvalidPosition RequestErrorCode = "INVALID_POSITION"

	// ErrCodeInvalidInterval indicates unparseable interval syntax.
	ErrCodeInvalidInterval RequestErrorCode = "INVALID_INTERVAL"

	// ErrCodeInvalidRequest indicates a structurally invalid request,
	// e.g. split and slice combined, or a clip/position count mismatch.
	ErrCodeInvalidRequest RequestErrorCode = "INVALID_REQUEST"
)

// RequestError rejects an entire update call before any mutation.
type RequestError struct {
	Code    RequestErrorCode
	Message string
	Err     error
}

func (e *RequestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *RequestError) Unwrap() error { return e.Err }

// NewRequestError creates a RequestError without a cause.
func NewRequestError(code RequestErrorCode, message string) *RequestError {
	return &RequestError{Code: code, Message: message}
}

// WrapRequestError creates a RequestError wrapping a cause.
func WrapRequestError(code RequestErrorCode, message string, err error) *RequestError {
	return &RequestError{Code: code, Message: message, Err: err}
}

// IsRequestError reports whether err is (or wraps) a RequestError.
func IsRequestError(err error) bool {
	var re *RequestError
	return errors.As(err, &re)
}

// WarningCode identifies an operation-level degradation.
type WarningCode string

const (
	// WarnSplitNoArrangement: no arrangement clips among the targets.
	WarnSplitNoArrangement WarningCode = "split-no-arrangement"

	// WarnSplitInvalidFormat: per-clip split offsets failed to parse.
	WarnSplitInvalidFormat WarningCode = "split-invalid-format"

	// WarnSplitMaxExceeded: more than MaxSplitPoints offsets remained
	// after normalization.
	WarnSplitMaxExceeded WarningCode = "split-max-exceeded"

	// WarnSplitNoValidPoints: every offset was filtered out.
	WarnSplitNoValidPoints WarningCode = "split-no-valid-points"

	// WarnDuplicateFailed: the host refused one duplication; that
	// segment, tile, or clip was skipped.
	WarnDuplicateFailed WarningCode = "duplicate-failed"

	// WarnLengthenCapped: extension stopped at the content boundary,
	// short of the requested target.
	WarnLengthenCapped WarningCode = "lengthen-capped"

	// WarnLengthenNoContent: no material exists beyond the clip's
	// current end; nothing to extend with.
	WarnLengthenNoContent WarningCode = "lengthen-no-content"

	// WarnNotArrangement: a session clip was targeted by an
	// arrangement-only operation and returned unchanged.
	WarnNotArrangement WarningCode = "not-arrangement"
)

// Warning is a human-readable note about work that was skipped or
// capped. Warnings accumulate on the result; they never fail a call.
type Warning struct {
	Code    WarningCode
	Message string
}

func (w Warning) String() string {
	return w.Message
}

// Warnf builds a Warning with a formatted message.
func Warnf(code WarningCode, format string, args ...any) Warning {
	return Warning{Code: code, Message: fmt.Sprintf(format, args...)}
}
