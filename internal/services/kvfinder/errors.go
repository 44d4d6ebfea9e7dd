package kvfinder

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
)

// ErrorKind classifies a failed request to the detection service.
type ErrorKind int

const (
	KindOK ErrorKind = iota
	KindConnectionRefused
	KindTimeout
	KindPayloadTooLarge
	KindNotFound
	KindContentError
	KindServiceError
)

func (k ErrorKind) String() string {
	switch k {
	case KindOK:
		return "ok"
	case KindConnectionRefused:
		return "connection-refused"
	case KindTimeout:
		return "timeout"
	case KindPayloadTooLarge:
		return "payload-too-large"
	case KindNotFound:
		return "not-found"
	case KindContentError:
		return "content-error"
	default:
		return "service-error"
	}
}

// Transport reports whether the kind means the service itself is unreachable
// or misbehaving, as opposed to a problem with one job.
func (k ErrorKind) Transport() bool {
	return k == KindConnectionRefused || k == KindTimeout || k == KindServiceError
}

// Error is returned by every failing Client operation.
type Error struct {
	Kind    ErrorKind
	Op      string // "probe", "submit", "fetch"
	Message string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("kvfinder %s: %s: %s", e.Op, e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of err. A nil error is KindOK; an error that did
// not come from the client is a service error.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindOK
	}
	var kerr *Error
	if errors.As(err, &kerr) {
		return kerr.Kind
	}
	return KindServiceError
}

func newError(kind ErrorKind, op string, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...), Err: err}
}

// transportError maps an http.Client failure onto the taxonomy.
func transportError(op string, err error) *Error {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return newError(KindConnectionRefused, op, err, "%v", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return newError(KindTimeout, op, err, "%v", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return newError(KindTimeout, op, err, "%v", err)
	}
	return newError(KindServiceError, op, err, "%v", err)
}
