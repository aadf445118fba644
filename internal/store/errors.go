package store

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/surrealdb/surrealdb.go"
)

// Sentinel errors for the gateway. Use errors.Is() in calling code; the
// typed errors below carry the details and unwrap to these.
var (
	// ErrNotFound indicates the requested item or record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a conditional write lost a race: the stored
	// version token differs from the one supplied. Never auto-retried by
	// the gateway since retrying blindly could override a legitimate
	// concurrent change.
	ErrConflict = errors.New("version conflict")

	// ErrTransient indicates a timeout, rate-limit, or transport fault.
	// Absorbed by the gateway's retry policy; surfaced only when the
	// attempt budget is exhausted.
	ErrTransient = errors.New("transient store fault")

	// ErrCapacityExceeded indicates a limited-path fetch hit the in-memory
	// safeguard cap and results may be incomplete.
	ErrCapacityExceeded = errors.New("fetch cap exceeded")
)

// NotFoundError reports the missing record key.
type NotFoundError struct {
	Key string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("item %s: not found", e.Key)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// ConflictError reports a lost claim race together with the observed
// holder, so callers can decide whether to force or move on.
type ConflictError struct {
	Key           string
	Holder        string
	HolderSince   *time.Time
	StoredVersion string
}

func (e *ConflictError) Error() string {
	if e.Holder != "" {
		return fmt.Sprintf("item %s: version conflict, held by %s", e.Key, e.Holder)
	}
	return fmt.Sprintf("item %s: version conflict", e.Key)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// TransientError wraps a retryable store fault with the failing operation.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return ErrTransient }

// CapacityError reports a limited-path fetch that hit the safeguard cap.
// Operations returning it still carry the partial result.
type CapacityError struct {
	Cap int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("fetch cap of %d documents exceeded, results truncated", e.Cap)
}

func (e *CapacityError) Unwrap() error { return ErrCapacityExceeded }

// isTransient classifies faults the retry policy may absorb. Conflicts and
// not-found are business outcomes, never transient.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrConflict) || errors.Is(err, ErrNotFound) || errors.Is(err, ErrCapacityExceeded) {
		return false
	}
	if errors.Is(err, ErrTransient) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	// SurrealDB signals engine-level contention via query errors.
	var queryErr *surrealdb.QueryError
	if errors.As(err, &queryErr) {
		msg := strings.ToLower(queryErr.Message)
		return strings.Contains(msg, "transaction conflict") ||
			strings.Contains(msg, "rate limit") ||
			strings.Contains(msg, "timed out")
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "websocket: close")
}

// isUnknownOutcome reports whether a write error leaves the result
// undetermined: the request may have been applied even though the response
// was lost. Callers must re-read rather than assume failure.
func isUnknownOutcome(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled)
}
