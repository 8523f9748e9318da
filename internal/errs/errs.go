// Package errs carries the error taxonomy that drives retry and abort
// policy across the scan pipeline.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error for policy decisions.
type Kind string

const (
	KindTransientFetch  Kind = "transient_fetch"  // timeout, 5xx, rate limited
	KindPermanentFetch  Kind = "permanent_fetch"  // 4xx, unknown symbol, bad payload
	KindStoreIO         Kind = "store_io"         // recoverable storage failure
	KindStoreCorruption Kind = "store_corruption" // halt, manual intervention
	KindConfig          Kind = "config"           // abort at startup
	KindInternal        Kind = "internal"         // bug; degrade and continue
)

// Error wraps a cause with its kind and the operation that produced it.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// E builds a classified error. Op names the failing operation, e.g.
// "binance: fetch candles".
func E(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Ef is E with a formatted message instead of a cause.
func Ef(kind Kind, op, format string, args ...interface{}) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf walks the wrap chain and returns the outermost classified kind.
// Unclassified errors report KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Kind == kind {
			return true
		}
		err = e.Err
	}
	return false
}

// Retryable reports whether the policy allows another attempt.
// Transient fetches retry with backoff; store I/O retries once.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindTransientFetch, KindStoreIO:
		return true
	default:
		return false
	}
}
