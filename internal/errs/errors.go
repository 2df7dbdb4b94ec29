// Package errs defines the indexer's error taxonomy and propagation rules.
//
// Every error surfaced by an internal package is tagged with a Kind so the
// range driver can decide, without inspecting error strings, whether to log
// and continue with the rest of a range or abort the range outright.
package errs

import "github.com/pkg/errors"

// Kind classifies an error for the driver's propagation rules: whether a
// range aborts outright or logs and continues.
type Kind int

const (
	// KindTransport covers RPC timeouts, 5xx responses, and network
	// failures. The chain client already retries these with backoff;
	// a Transport error reaching the driver means the retry budget was
	// exhausted.
	KindTransport Kind = iota
	// KindDecode covers malformed logs: topic count mismatches, dynamic
	// array length mismatches in TransferBatch, unparseable words.
	KindDecode
	// KindClassification covers an emitter address that could not be
	// classified as any known standard.
	KindClassification
	// KindMetadata covers a reverted or missing metadata method call.
	// Never fatal; the caller records null and moves on.
	KindMetadata
	// KindDBTransient covers serialization failures and deadlocks that
	// are safe to retry with jittered backoff.
	KindDBTransient
	// KindDBIntegrity covers a uniqueness violation on a historical
	// insert, which is the expected shape of an idempotent replay and is
	// treated as success by the caller.
	KindDBIntegrity
	// KindFatal covers configuration and connectivity failures that
	// should abort the process without advancing the cursor.
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindDecode:
		return "decode"
	case KindClassification:
		return "classification"
	case KindMetadata:
		return "metadata"
	case KindDBTransient:
		return "db_transient"
	case KindDBIntegrity:
		return "db_integrity"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error wraps a cause with a Kind so callers can branch on classification
// without string matching.
type Error struct {
	kind  Kind
	cause error
}

func (e *Error) Error() string {
	return e.kind.String() + ": " + e.cause.Error()
}

func (e *Error) Cause() error { return e.cause }

func (e *Error) Unwrap() error { return e.cause }

// Kind returns the error's Kind, or a zero value and false if err does not
// carry one.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.kind, true
	}
	return 0, false
}

// Is reports whether err (or any error it wraps) was tagged with kind.
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

func Wrap(kind Kind, cause error, msg string) error {
	if cause == nil {
		return nil
	}
	return &Error{kind: kind, cause: errors.Wrap(cause, msg)}
}

func Wrapf(kind Kind, cause error, format string, args ...interface{}) error {
	if cause == nil {
		return nil
	}
	return &Error{kind: kind, cause: errors.Wrapf(cause, format, args...)}
}

func New(kind Kind, msg string) error {
	return &Error{kind: kind, cause: errors.New(msg)}
}

// Fatal returns true for errors that must abort the current range without
// advancing the cursor.
func Fatal(err error) bool {
	return Is(err, KindFatal)
}
