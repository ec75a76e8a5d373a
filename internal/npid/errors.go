// Package npid implements the protocol adapter for the legacy NPID
// dashboard backend: session persistence, CSRF token management, request
// translation, response normalization, bounded retry, and athlete
// identifier resolution.
//
// The backend is a multi-page Laravel application with no stable API
// contract. Every quirk it exposes (duplicated form fields, HTML-or-JSON
// responses, per-page CSRF tokens) is isolated in this package so the
// rest of the system can speak in clean operations.
package npid

import (
	"errors"
	"fmt"
)

// Kind classifies adapter failures. Every error crossing the adapter
// boundary carries exactly one of these.
type Kind string

const (
	// KindAuthenticationRequired means there is no usable session; the
	// caller must authenticate before retrying.
	KindAuthenticationRequired Kind = "AUTHENTICATION_REQUIRED"
	// KindUnknownOperation is a programming error: the operation name is
	// not in the registry, or a required parameter is missing.
	KindUnknownOperation Kind = "UNKNOWN_OPERATION"
	// KindLegacyProtocolFailure is a transient backend inconsistency that
	// survived the built-in single retry. Retryable by the caller after a
	// delay, never automatically.
	KindLegacyProtocolFailure Kind = "LEGACY_PROTOCOL_FAILURE"
	// KindMalformedResponse means the normalizer could not classify the
	// response body into any known format.
	KindMalformedResponse Kind = "MALFORMED_RESPONSE"
	// KindIndeterminate means a write timed out after dispatch: the
	// server-side effect is unknown, not failed. Requires explicit caller
	// confirmation before re-submission.
	KindIndeterminate Kind = "INDETERMINATE"
	// KindIdentityAmbiguous flags an identity resolved via the
	// primary-as-main fallback rather than an authoritative lookup.
	KindIdentityAmbiguous Kind = "IDENTITY_RESOLUTION_AMBIGUOUS"
)

// Error is the adapter's error type. Raw transport and parsing failures
// are always reclassified into one of these before leaving the package.
type Error struct {
	Kind      Kind
	Op        string // operation name, when applicable
	Signature string // detected failure signature, for diagnostics
	Raw       string // truncated raw body, for diagnostics
	Err       error  // wrapped cause
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg = fmt.Sprintf("%s: op %s", msg, e.Op)
	}
	if e.Signature != "" {
		msg = fmt.Sprintf("%s: signature %s", msg, e.Signature)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Hint returns a short actionable message suitable for end users. Raw
// diagnostic text never leaves the logs.
func (e *Error) Hint() string {
	switch e.Kind {
	case KindAuthenticationRequired:
		return "session expired, please re-authenticate"
	case KindUnknownOperation:
		return "unknown operation; this is a bug in the caller"
	case KindLegacyProtocolFailure:
		return "the legacy backend rejected the request, try again in a moment"
	case KindMalformedResponse:
		return "the legacy backend returned an unrecognizable response"
	case KindIndeterminate:
		return "the request timed out mid-flight; verify the result before resubmitting"
	case KindIdentityAmbiguous:
		return "athlete identity resolved by fallback, main id may be imprecise"
	}
	return "unexpected adapter failure"
}

// IsKind reports whether err is an adapter Error of the given kind.
func IsKind(err error, k Kind) bool {
	var ae *Error
	return errors.As(err, &ae) && ae.Kind == k
}

// truncate shortens raw bodies kept on errors for diagnostics.
func truncate(b []byte, maxLen int) string {
	if len(b) <= maxLen {
		return string(b)
	}
	return string(b[:maxLen]) + "..."
}
