package app

import (
	"errors"
	"fmt"
)

// Kind classifies an operation failure for the protocol boundary. The
// transport maps each kind to an error code on the originating
// connection; nothing here is ever broadcast.
type Kind int

const (
	KindUnknown Kind = iota
	// KindValidation: malformed payload or invalid reference (e.g. a
	// reply target outside the room). Rejected before any mutation.
	KindValidation
	// KindAuthorization: a non-sender attempting edit/delete, or a
	// non-member touching a room.
	KindAuthorization
	// KindNotFound: the target message or room is missing or deleted.
	// Distinct from an idempotent no-op.
	KindNotFound
	// KindPersistence: the store failed; no broadcast was emitted.
	KindPersistence
	// KindExternal: an external resource (blob storage) failed. Logged,
	// non-fatal where the design says so.
	KindExternal
)

func (k Kind) Code() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthorization:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindPersistence:
		return "persistence"
	case KindExternal:
		return "external"
	default:
		return "internal"
	}
}

// Error carries the kind alongside the underlying cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind.Code(), e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// E builds a classified error from a message.
func E(kind Kind, op, msg string) error {
	return &Error{Kind: kind, Op: op, Err: errors.New(msg)}
}

// Wrap classifies an underlying error.
func Wrap(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf extracts the kind from anywhere in the chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
