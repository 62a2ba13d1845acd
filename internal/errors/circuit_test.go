package errors

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreaker_OpensAfterMaxFailures(t *testing.T) {
	cb := NewCircuitBreaker("websearch", WithMaxFailures(3))

	for i := 0; i < 3; i++ {
		assert.True(t, cb.Allow())
		cb.RecordFailure()
	}

	assert.Equal(t, StateOpen, cb.State())
	assert.False(t, cb.Allow())
	assert.Equal(t, 3, cb.Failures())
}

func TestCircuitBreaker_SuccessResets(t *testing.T) {
	cb := NewCircuitBreaker("websearch", WithMaxFailures(3))

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()

	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, 0, cb.Failures())
}

func TestCircuitBreaker_HalfOpenAfterTimeout(t *testing.T) {
	cb := NewCircuitBreaker("reranker",
		WithMaxFailures(1),
		WithResetTimeout(10*time.Millisecond))

	cb.RecordFailure()
	assert.Equal(t, StateOpen, cb.State())

	time.Sleep(15 * time.Millisecond)
	assert.Equal(t, StateHalfOpen, cb.State())
	assert.True(t, cb.Allow())
}

func TestCircuitBreaker_Execute(t *testing.T) {
	cb := NewCircuitBreaker("test", WithMaxFailures(2))

	require.NoError(t, cb.Execute(func() error { return nil }))

	err := cb.Execute(func() error { return fmt.Errorf("down") })
	assert.Error(t, err)
	err = cb.Execute(func() error { return fmt.Errorf("down") })
	assert.Error(t, err)

	// Circuit is open; fn must not run.
	err = cb.Execute(func() error {
		t.Fatal("must not be called while open")
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestExecuteWithFallback(t *testing.T) {
	cb := NewCircuitBreaker("test", WithMaxFailures(1))

	// Trip the circuit.
	_, err := ExecuteWithFallback(cb,
		func() ([]string, error) { return nil, fmt.Errorf("down") },
		func() ([]string, error) { return []string{"fallback"}, nil })
	assert.Error(t, err)

	// Open circuit routes straight to the fallback.
	result, err := ExecuteWithFallback(cb,
		func() ([]string, error) {
			t.Fatal("must not be called while open")
			return nil, nil
		},
		func() ([]string, error) { return []string{"fallback"}, nil })
	require.NoError(t, err)
	assert.Equal(t, []string{"fallback"}, result)
}

func TestCircuitBreaker_HalfOpenProbeRecovers(t *testing.T) {
	cb := NewCircuitBreaker("test",
		WithMaxFailures(1),
		WithResetTimeout(5*time.Millisecond))

	cb.RecordFailure()
	time.Sleep(10 * time.Millisecond)

	require.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.State())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
	assert.Equal(t, "unknown", State(99).String())
}
