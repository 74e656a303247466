package client

import "errors"

// Kind classifies a client error. The HTTP layer maps each kind to exactly one response.
type Kind int

const (
	KindNone Kind = iota
	KindBadRequest
	KindForbidden
	KindUnknown
	KindHTTPRequest
	KindIPExtraction
)

// String returns a stable label, also used for metrics.
func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindBadRequest:
		return "bad_request"
	case KindForbidden:
		return "forbidden"
	case KindUnknown:
		return "unknown"
	case KindHTTPRequest:
		return "http_request"
	case KindIPExtraction:
		return "ip_extraction"
	default:
		return "unknown"
	}
}

// KindOf classifies err. Errors outside the client taxonomy are KindUnknown.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrBadRequest):
		return KindBadRequest
	case errors.Is(err, ErrForbidden):
		return KindForbidden
	case errors.Is(err, ErrIPExtraction):
		return KindIPExtraction
	case errors.Is(err, ErrHTTPRequest):
		return KindHTTPRequest
	default:
		return KindUnknown
	}
}
