// Package errs defines the engine's error taxonomy. Workers switch on these
// types to decide whether to retry, log-and-continue, or snapshot-and-exit.
package errs

import "fmt"

// ConfigError is fatal at startup — the process cannot proceed with a
// broken or missing configuration value.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error: %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// KeystoreError is fatal — the wallet's signing material could not be
// loaded or is unusable.
type KeystoreError struct {
	Err error
}

func (e *KeystoreError) Error() string {
	return fmt.Sprintf("keystore error: %v", e.Err)
}

func (e *KeystoreError) Unwrap() error { return e.Err }

// NetworkTransient marks a retryable network condition: a blip, a rate
// limit, a reset socket. Callers retry with backoff before giving up.
type NetworkTransient struct {
	Op  string
	Err error
}

func (e *NetworkTransient) Error() string {
	return fmt.Sprintf("transient network error during %s: %v", e.Op, e.Err)
}

func (e *NetworkTransient) Unwrap() error { return e.Err }

// NetworkPermanent marks a non-retryable failure: a 4xx, a malformed
// response. The caller decides what to do; no internal retry happens.
type NetworkPermanent struct {
	Op  string
	Err error
}

func (e *NetworkPermanent) Error() string {
	return fmt.Sprintf("permanent network error during %s: %v", e.Op, e.Err)
}

func (e *NetworkPermanent) Unwrap() error { return e.Err }

// BackendExecError means a transaction was submitted but failed on chain.
// The position is treated as still-open until the next update confirms
// the real on-chain state.
type BackendExecError struct {
	Op         string
	Signatures []string
	ProgramLog string
	Err        error
}

func (e *BackendExecError) Error() string {
	return fmt.Sprintf("backend exec error during %s (sigs=%v): %v", e.Op, e.Signatures, e.Err)
}

func (e *BackendExecError) Unwrap() error { return e.Err }

// ValidationFailure is not an error in the exceptional sense — it is a
// recorded rejection reason for a pool that failed admission.
type ValidationFailure struct {
	PoolID string
	Reason string
}

func (e *ValidationFailure) Error() string {
	return fmt.Sprintf("pool %s rejected: %s", e.PoolID, e.Reason)
}

// InvariantViolation is fatal inside the worker that detects it — e.g. a
// duplicate position for the same pool. State is persisted before exit.
type InvariantViolation struct {
	Invariant string
	Detail    string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("invariant violated (%s): %s", e.Invariant, e.Detail)
}

// IsFatal reports whether err should terminate the process (after a
// snapshot), per the propagation policy: only InvariantViolation,
// ConfigError and KeystoreError kill a worker.
func IsFatal(err error) bool {
	switch err.(type) {
	case *InvariantViolation, *ConfigError, *KeystoreError:
		return true
	default:
		return false
	}
}
