package errs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsFatalClassifiesInvariantConfigAndKeystoreAsFatal(t *testing.T) {
	assert.True(t, IsFatal(&InvariantViolation{Invariant: "x", Detail: "y"}))
	assert.True(t, IsFatal(&ConfigError{Field: "RPC_URL", Err: errors.New("missing")}))
	assert.True(t, IsFatal(&KeystoreError{Err: errors.New("bad password")}))
}

func TestIsFatalClassifiesTransientAndExecErrorsAsNonFatal(t *testing.T) {
	assert.False(t, IsFatal(&NetworkTransient{Op: "swap", Err: errors.New("timeout")}))
	assert.False(t, IsFatal(&NetworkPermanent{Op: "swap", Err: errors.New("bad request")}))
	assert.False(t, IsFatal(&BackendExecError{Op: "add_liquidity", Err: errors.New("reverted")}))
	assert.False(t, IsFatal(&ValidationFailure{PoolID: "p1", Reason: "burn too low"}))
	assert.False(t, IsFatal(errors.New("plain error")))
}

func TestErrorTypesUnwrapToUnderlyingCause(t *testing.T) {
	cause := errors.New("root cause")
	assert.ErrorIs(t, &ConfigError{Field: "f", Err: cause}, cause)
	assert.ErrorIs(t, &KeystoreError{Err: cause}, cause)
	assert.ErrorIs(t, &NetworkTransient{Op: "op", Err: cause}, cause)
	assert.ErrorIs(t, &NetworkPermanent{Op: "op", Err: cause}, cause)
	assert.ErrorIs(t, &BackendExecError{Op: "op", Err: cause}, cause)
}

func TestErrorMessagesIncludeContext(t *testing.T) {
	err := &ValidationFailure{PoolID: "p1", Reason: "burn too low"}
	assert.Contains(t, err.Error(), "p1")
	assert.Contains(t, err.Error(), "burn too low")
}
