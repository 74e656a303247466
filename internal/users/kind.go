package users

import "errors"

// Kind classifies account errors for the HTTP boundary.
type Kind int

const (
	KindNone Kind = iota
	KindDuplicate
	KindNotFound
	KindPasswordMismatch
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindDuplicate:
		return "duplicate"
	case KindNotFound:
		return "not_found"
	case KindPasswordMismatch:
		return "password_mismatch"
	default:
		return "internal"
	}
}

// KindOf classifies err. Anything unrecognized is internal.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrDuplicateEmail):
		return KindDuplicate
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrPasswordMismatch):
		return KindPasswordMismatch
	default:
		return KindInternal
	}
}
