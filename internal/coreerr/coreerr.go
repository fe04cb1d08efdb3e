// Package coreerr defines the error taxonomy shared across the conversation
// core (spec §7): experts, the orchestrator and the chat pipeline all
// classify failures into one of these kinds instead of raising bare errors,
// mirroring the sentinel-error style the persistence layer already uses.
package coreerr

import "errors"

// Kind is one of the six recognized failure classes.
type Kind string

const (
	KindValidation Kind = "validation"
	KindAuth       Kind = "auth"
	KindTransient  Kind = "transient"
	KindTimeout    Kind = "timeout"
	KindConflict   Kind = "conflict"
	KindFatal      Kind = "fatal"
)

// Error wraps an underlying cause with a classification the orchestrator and
// chat pipeline can act on (retry once, compensate, surface to the caller).
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a classified error.
func New(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf extracts the Kind from err if it (or something it wraps) is a
// *Error; otherwise it classifies unknown errors as fatal, since an
// unclassified failure should never be silently treated as retryable.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindFatal
}

// Retryable reports whether the orchestrator should attempt one repair retry
// for this error, per spec §4.4's expert failure policy.
func Retryable(err error) bool {
	k := KindOf(err)
	return k == KindTransient || k == KindTimeout
}

var (
	ErrNotFound  = errors.New("not found")
	ErrForbidden = errors.New("forbidden")
)
