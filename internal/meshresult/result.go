// Package meshresult defines the tagged result/error vocabulary shared
// by the router, connection manager, and endpoint facade, and the HTTP
// status mapping the control-plane API uses to surface it.
package meshresult

import (
	"errors"
	"fmt"
)

// Kind tags why an operation failed. The zero value is never used for
// an actual failure; callers test for a specific Kind or compare
// against OK where a non-error Kind is expected.
type Kind string

const (
	OK                 Kind = "OK"
	InvalidAddress     Kind = "INVALID_ADDRESS"
	Unreachable        Kind = "UNREACHABLE"
	TXFail             Kind = "TX_FAIL"
	Timeout            Kind = "TIMEOUT"
	Refused            Kind = "REFUSED"
	QueueFull          Kind = "QUEUE_FULL"
	NotConfigured      Kind = "NOT_CONFIGURED"
	AlreadyConfigured  Kind = "ALREADY_CONFIGURED"
	Cancelled          Kind = "CANCELLED"
)

// Error is the concrete error type every public operation returns on
// failure. BindSite is the empty string when the failure isn't tied to
// one.
type Error struct {
	Kind     Kind
	BindSite string // string form to avoid an import cycle with addr; set via WithBindSite
	Detail   string
}

func (e *Error) Error() string {
	if e.BindSite != "" {
		return fmt.Sprintf("%s at %s: %s", e.Kind, e.BindSite, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

// New returns an *Error of the given kind with no associated bind site.
func New(kind Kind, detail string) *Error {
	return &Error{Kind: kind, Detail: detail}
}

// WithBindSite returns a copy of e tagged with the given bind site's
// String() form, for callbacks and alerts that need to name the site.
func (e *Error) WithBindSite(site fmt.Stringer) *Error {
	cp := *e
	cp.BindSite = site.String()
	return &cp
}

// KindOf extracts the Kind from err if it is (or wraps) a *Error,
// returning ok=false otherwise.
func KindOf(err error) (Kind, bool) {
	var merr *Error
	if !errors.As(err, &merr) {
		return "", false
	}
	return merr.Kind, true
}

// HTTPStatus maps a Kind to the status code the control-plane API
// responds with.
func HTTPStatus(k Kind) int {
	switch k {
	case InvalidAddress, NotConfigured, AlreadyConfigured, Cancelled:
		return 400
	case Unreachable, TXFail, QueueFull:
		return 503
	case Timeout:
		return 504
	case Refused:
		return 409
	default:
		return 500
	}
}
