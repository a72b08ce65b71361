package backend

import (
	"errors"
	"fmt"
)

// Kind classifies why a backend call failed.
type Kind int

const (
	// NetworkUnreachable means the request never produced an HTTP response.
	NetworkUnreachable Kind = iota + 1
	// NonOKStatus means the backend answered with a status outside 2xx.
	NonOKStatus
	// MalformedBody means a 2xx response body could not be decoded.
	MalformedBody
)

func (k Kind) String() string {
	switch k {
	case NetworkUnreachable:
		return "network unreachable"
	case NonOKStatus:
		return "non-ok status"
	case MalformedBody:
		return "malformed body"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error is returned by every Client method that fails after a request was
// attempted. Op names the endpoint operation, e.g. "process-image".
type Error struct {
	Op         string
	Kind       Kind
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	switch e.Kind {
	case NonOKStatus:
		if e.Err != nil {
			return fmt.Sprintf("%s: backend returned status %d: %v", e.Op, e.StatusCode, e.Err)
		}
		return fmt.Sprintf("%s: backend returned status %d", e.Op, e.StatusCode)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
		}
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the failure classification of err, or 0 when err is not a
// backend error.
func KindOf(err error) Kind {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	return 0
}

// IsNetworkUnreachable reports whether err is a transport-level failure.
func IsNetworkUnreachable(err error) bool { return KindOf(err) == NetworkUnreachable }

// IsNonOKStatus reports whether err is an HTTP error status.
func IsNonOKStatus(err error) bool { return KindOf(err) == NonOKStatus }

// IsMalformedBody reports whether err is a response decoding failure.
func IsMalformedBody(err error) bool { return KindOf(err) == MalformedBody }
