// Package apperr defines the discriminated error taxonomy the pipeline
// raises and persists. Every external-call failure is translated into one
// of these kinds at its client boundary; the worker pattern-matches on Kind
// to choose the next status-manager transition, it never inspects a raw
// system error directly.
package apperr

import "fmt"

// Kind discriminates the terminal-state and retry-eligibility behaviour of
// an error as it propagates out of a pipeline component.
type Kind string

const (
	KindAnalyserTransient Kind = "AnalyserTransient"
	KindAnalyserPermanent Kind = "AnalyserPermanent"
	KindCatalogueTransient Kind = "CatalogueTransient"
	KindCataloguePermanent Kind = "CataloguePermanent"
	KindNoMatch           Kind = "NoMatch"
	KindPathInsufficient  Kind = "PathInsufficient"
	KindLinkConflict      Kind = "LinkConflict"
	KindLinkCrossDevice   Kind = "LinkCrossDevice"
	KindLinkMissingSource Kind = "LinkMissingSource"
	KindLinkUnknown       Kind = "LinkUnknown"
	KindCancelled         Kind = "Cancelled"
)

// notRetryable holds the kinds for which a user-initiated retry is pointless
// without a configuration or environment fix. Every other kind is retryable.
var notRetryable = map[Kind]bool{
	KindLinkCrossDevice:   true,
	KindLinkMissingSource: true,
}

// Error is the structured error type carried through the worker pipeline
// and serialised into MediaFile.ErrorMessage.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Retryable reports whether a user-initiated retry of the row could
// plausibly succeed without an operator intervening on configuration.
func (e *Error) Retryable() bool {
	return !notRetryable[e.Kind]
}

func newError(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func NewAnalyserTransient(message string, cause error) *Error {
	return newError(KindAnalyserTransient, message, cause)
}

func NewAnalyserPermanent(message string, cause error) *Error {
	return newError(KindAnalyserPermanent, message, cause)
}

func NewCatalogueTransient(message string, cause error) *Error {
	return newError(KindCatalogueTransient, message, cause)
}

func NewCataloguePermanent(message string, cause error) *Error {
	return newError(KindCataloguePermanent, message, cause)
}

func NewNoMatch(message string) *Error {
	return newError(KindNoMatch, message, nil)
}

func NewPathInsufficient(message string) *Error {
	return newError(KindPathInsufficient, message, nil)
}

func NewLinkConflict(message string) *Error {
	return newError(KindLinkConflict, message, nil)
}

func NewLinkCrossDevice(message string, cause error) *Error {
	return newError(KindLinkCrossDevice, message, cause)
}

func NewLinkMissingSource(message string) *Error {
	return newError(KindLinkMissingSource, message, nil)
}

func NewLinkUnknown(message string, cause error) *Error {
	return newError(KindLinkUnknown, message, cause)
}

func NewCancelled(message string) *Error {
	return newError(KindCancelled, message, nil)
}

// As extracts an *Error from err, mirroring the standard library's errors.As
// without requiring callers to import both packages at call sites that only
// need the taxonomy.
func As(err error) (*Error, bool) {
	var target *Error
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e, true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return target, false
}
