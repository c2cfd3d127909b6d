// Package apperr defines the error taxonomy shared by the builder and the
// query facade: NotFound, BadRequest, VectorStoreError, Transient, and
// Fatal. Callers match with errors.As/errors.Is instead of string
// comparison, the same way the teacher repo's huma handlers distinguish
// huma.Error404NotFound from huma.Error500InternalServerError.
package apperr

import "fmt"

// Kind classifies an error for HTTP-status and retry-policy mapping.
type Kind int

const (
	KindNotFound Kind = iota
	KindBadRequest
	KindVectorStore
	KindTransient
	KindFatal
)

// Error wraps an underlying cause with a Kind and a message.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target has the same Kind, so errors.Is(err,
// apperr.NotFound) works without comparing messages.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Sentinel errors for errors.Is comparisons.
var (
	NotFound     = &Error{Kind: KindNotFound, Message: "not found"}
	BadRequest   = &Error{Kind: KindBadRequest, Message: "bad request"}
	VectorStore  = &Error{Kind: KindVectorStore, Message: "vector store error"}
	Transient    = &Error{Kind: KindTransient, Message: "transient error"}
	Fatal        = &Error{Kind: KindFatal, Message: "fatal error"}
)

// NewNotFound builds a NotFound error, e.g. an unknown collection, an
// unknown primary key, or a nearest-neighbor search whose distance > 0.
func NewNotFound(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// NewBadRequest builds a BadRequest error: malformed indexes, unsupported
// dataset name.
func NewBadRequest(format string, args ...any) error {
	return &Error{Kind: KindBadRequest, Message: fmt.Sprintf(format, args...)}
}

// WrapVectorStore wraps any error surfaced by the vector store.
func WrapVectorStore(err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindVectorStore, Message: "vector store operation failed", Err: err}
}

// WrapTransient wraps a network blip during the build; the builder
// retries once before treating it as Fatal.
func WrapTransient(err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindTransient, Message: "transient store error", Err: err}
}

// WrapFatal wraps a violated invariant during the build (tile size,
// representative continuity, inserted-count mismatch).
func WrapFatal(format string, args ...any) error {
	return &Error{Kind: KindFatal, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the Kind of err, defaulting to KindVectorStore for
// unrecognized errors (conservative: surfaced as a 505, never silently
// retried).
func KindOf(err error) Kind {
	var e *Error
	if ok := As(err, &e); ok {
		return e.Kind
	}
	return KindVectorStore
}

// As is a tiny local wrapper so this package doesn't need to import
// "errors" in callers that already shadow it; kept trivial on purpose.
func As(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
