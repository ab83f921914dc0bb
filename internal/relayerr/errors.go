// Package relayerr classifies the error kinds the webhook handler must map
// to a distinct HTTP response, so the dispatch path never has to string-match
// an error message to decide what status code to send.
package relayerr

import (
	"errors"
	"fmt"
)

// Kind identifies which §7 error-handling policy applies to an error.
type Kind int

const (
	KindInternal Kind = iota
	KindAuth
	KindDuplicate
	KindInvalidPayload
	KindGatedRegime
	KindGatedCooldown
	KindGatedDD
	KindGatedEdge
	KindSizingConstraint
	KindVenueTransient
	KindVenueOrder
)

var sentinels = map[Kind]error{
	KindInternal:         errors.New("internal error"),
	KindAuth:             errors.New("unauthorized"),
	KindDuplicate:        errors.New("duplicate signal"),
	KindInvalidPayload:   errors.New("invalid payload"),
	KindGatedRegime:      errors.New("blocked by regime"),
	KindGatedCooldown:    errors.New("blocked by cooldown"),
	KindGatedDD:          errors.New("blocked by daily drawdown"),
	KindGatedEdge:        errors.New("blocked by edge filter"),
	KindSizingConstraint: errors.New("sizing constraint"),
	KindVenueTransient:   errors.New("venue transient error"),
	KindVenueOrder:       errors.New("venue order error"),
}

// relayError wraps an underlying cause with a classification the handler can
// switch on via errors.Is / As without inspecting message text.
type relayError struct {
	kind  Kind
	cause error
}

func (e *relayError) Error() string {
	if e.cause == nil {
		return sentinels[e.kind].Error()
	}
	return fmt.Sprintf("%s: %v", sentinels[e.kind], e.cause)
}

func (e *relayError) Unwrap() error { return e.cause }

func (e *relayError) Is(target error) bool {
	return errors.Is(sentinels[e.kind], target)
}

// New wraps cause (may be nil) with the given classification.
func New(kind Kind, cause error) error {
	return &relayError{kind: kind, cause: cause}
}

// Newf builds a classified error from a format string.
func Newf(kind Kind, format string, args ...any) error {
	return &relayError{kind: kind, cause: fmt.Errorf(format, args...)}
}

// KindOf extracts the Kind from err, defaulting to KindInternal for
// unclassified errors (anything the dispatcher didn't explicitly wrap).
func KindOf(err error) Kind {
	var re *relayError
	if errors.As(err, &re) {
		return re.kind
	}
	return KindInternal
}

// ReleasesClaim reports whether the idempotency claim must be released when
// an error of this kind reaches the webhook handler's top-level dispatch.
func ReleasesClaim(k Kind) bool {
	switch k {
	case KindAuth, KindDuplicate:
		return false
	default:
		return true
	}
}
