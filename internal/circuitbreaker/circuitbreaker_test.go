package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func ok(context.Context) error { return nil }

func TestExecuteSuccess(t *testing.T) {
	cb := New(DefaultConfig())
	require.NoError(t, cb.Execute(context.Background(), ok))
	require.Equal(t, StateClosed, cb.State())
}

func TestOpensAfterThresholdAndRejects(t *testing.T) {
	cb := New(Config{FailureThreshold: 2, SuccessThreshold: 1, Timeout: time.Minute, Name: "test"})
	testErr := errors.New("test error")
	fail := func(context.Context) error { return testErr }

	require.ErrorIs(t, cb.Execute(context.Background(), fail), testErr)
	require.Equal(t, StateClosed, cb.State())

	require.ErrorIs(t, cb.Execute(context.Background(), fail), testErr)
	require.True(t, cb.IsOpen())

	called := false
	err := cb.Execute(context.Background(), func(context.Context) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, ErrCircuitOpen)
	require.False(t, called)
}

func TestRecoversThroughHalfOpen(t *testing.T) {
	clk := &clock{now: time.Unix(0, 0)}
	cb := New(Config{FailureThreshold: 1, SuccessThreshold: 2, Timeout: 30 * time.Second}, WithNow(clk.Now))
	fail := func(context.Context) error { return errors.New("boom") }

	require.Error(t, cb.Execute(context.Background(), fail))
	require.Equal(t, StateOpen, cb.State())

	clk.now = clk.now.Add(31 * time.Second)
	require.NoError(t, cb.Execute(context.Background(), ok))
	require.Equal(t, StateHalfOpen, cb.State())

	require.NoError(t, cb.Execute(context.Background(), ok))
	require.Equal(t, StateClosed, cb.State())
	require.True(t, cb.GetStats().IsHealthy)
}

func TestHalfOpenFailureReopens(t *testing.T) {
	clk := &clock{now: time.Unix(0, 0)}
	cb := New(Config{FailureThreshold: 1, Timeout: time.Second}, WithNow(clk.Now))
	fail := func(context.Context) error { return errors.New("boom") }

	require.Error(t, cb.Execute(context.Background(), fail))
	clk.now = clk.now.Add(2 * time.Second)
	require.Error(t, cb.Execute(context.Background(), fail))
	require.Equal(t, StateOpen, cb.State())
	require.ErrorIs(t, cb.Execute(context.Background(), ok), ErrCircuitOpen)
}

func TestIsFailureFiltersErrors(t *testing.T) {
	rejected := errors.New("422 unprocessable")
	cb := New(Config{
		FailureThreshold: 1,
		IsFailure: func(err error) bool {
			return !errors.Is(err, rejected)
		},
	})

	err := cb.Execute(context.Background(), func(context.Context) error { return rejected })
	require.ErrorIs(t, err, rejected)
	require.Equal(t, StateClosed, cb.State())
}
