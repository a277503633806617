package dispatch

import (
	"errors"
	"fmt"
)

var (
	ErrNoProxyAvailable   = errors.New("no proxy available")
	ErrUpstreamTimeout    = errors.New("upstream timeout")
	ErrUpstreamConnection = errors.New("upstream connection error")
	ErrUpstreamStatus     = errors.New("upstream returned unexpected status")
	ErrCanceled           = errors.New("fetch canceled")
	ErrInvalidRequest     = errors.New("invalid fetch request")
	ErrResponseTooLarge   = errors.New("upstream response too large")
)

type Reason string

const (
	ReasonNoProxy    Reason = "no_proxy_available"
	ReasonTimeout    Reason = "upstream_timeout"
	ReasonConnection Reason = "upstream_connection_error"
	ReasonStatus     Reason = "upstream_http_error"
	ReasonCanceled   Reason = "canceled"
	ReasonInvalid    Reason = "invalid_request"
)

// Failure describes why a fetch produced no usable response. Reason is taken
// from the last attempt.
type Failure struct {
	Reason     Reason
	Attempts   int
	LastStatus int
	Err        error
}

func (f *Failure) Error() string {
	msg := fmt.Sprintf("fetch failed after %d attempt(s): %s", f.Attempts, f.Reason)
	if f.Reason == ReasonStatus && f.LastStatus != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, f.LastStatus)
	}
	if f.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, f.Err)
	}
	return msg
}

func (f *Failure) Unwrap() []error {
	errs := make([]error, 0, 2)
	if sentinel := f.sentinel(); sentinel != nil {
		errs = append(errs, sentinel)
	}
	if f.Err != nil {
		errs = append(errs, f.Err)
	}
	return errs
}

func (f *Failure) sentinel() error {
	switch f.Reason {
	case ReasonNoProxy:
		return ErrNoProxyAvailable
	case ReasonTimeout:
		return ErrUpstreamTimeout
	case ReasonConnection:
		return ErrUpstreamConnection
	case ReasonStatus:
		return ErrUpstreamStatus
	case ReasonCanceled:
		return ErrCanceled
	case ReasonInvalid:
		return ErrInvalidRequest
	default:
		return nil
	}
}

// AsFailure extracts the *Failure from err, if any.
func AsFailure(err error) (*Failure, bool) {
	var failure *Failure
	if errors.As(err, &failure) {
		return failure, true
	}
	return nil, false
}
