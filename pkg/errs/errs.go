// Package errs defines the platform's error taxonomy: a small set of
// kinds (not type names) that every component returns instead of ad hoc
// sentinel errors, so callers can branch with errors.As regardless of
// which component raised the failure.
package errs

import "fmt"

// Validation means malformed input or a schema violation. Never retry.
type Validation struct {
	Field   string
	Message string
}

func (e *Validation) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// PolicyDeny means a PBAC or consent refusal. Audited by the caller;
// never converted into a success response.
type PolicyDeny struct {
	Reason string
}

func (e *PolicyDeny) Error() string { return "policy denied: " + e.Reason }

// NotFound means a missing entity or mapping, distinct from Validation.
type NotFound struct {
	Kind string
	ID   string
}

func (e *NotFound) Error() string { return fmt.Sprintf("%s not found: %s", e.Kind, e.ID) }

// Upstream means a provider or storage transient failure. Callers may
// retry with exponential backoff up to a small bound before surfacing it.
type Upstream struct {
	Provider string
	Err      error
}

func (e *Upstream) Error() string { return fmt.Sprintf("upstream %s: %v", e.Provider, e.Err) }
func (e *Upstream) Unwrap() error { return e.Err }

// Integrity means an audit-chain mismatch, checkpoint-hash mismatch, or
// other corrupted state. Fatal for the affected operation.
type Integrity struct {
	Message string
}

func (e *Integrity) Error() string { return "integrity violation: " + e.Message }

// RateLimit means a provider-imposed throttle. The LLM gateway treats it
// as a trigger to fail over; other callers back off.
type RateLimit struct {
	Provider   string
	RetryAfter string
}

func (e *RateLimit) Error() string { return fmt.Sprintf("rate limited by %s", e.Provider) }

// TimeoutCancelled means a deadline was reached or the caller cancelled.
// Surfaced unchanged, never retried automatically.
type TimeoutCancelled struct {
	Op  string
	Err error
}

func (e *TimeoutCancelled) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *TimeoutCancelled) Unwrap() error { return e.Err }
