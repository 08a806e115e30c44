package workerpool

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

func TestPool_RunAll(t *testing.T) {
	pool, err := New(2)
	require.NoError(t, err)
	defer pool.Release()

	assert.Equal(t, 2, pool.WorkerCount())

	errBroken := errors.New("broken")
	executed := atomic.NewInt32(0)

	results := pool.RunAll([]Task{
		{Name: "ok", Func: func() error {
			executed.Inc()
			return nil
		}},
		{Name: "failing", Func: func() error {
			executed.Inc()
			return errBroken
		}},
		{Name: "panicking", Func: func() error {
			executed.Inc()
			panic("boom")
		}},
		{Name: "ok2", Func: func() error {
			executed.Inc()
			return nil
		}},
	})

	require.Len(t, results, 4)
	assert.EqualValues(t, 4, executed.Load())
	assert.NoError(t, results[0])
	assert.ErrorIs(t, results[1], errBroken)
	assert.ErrorContains(t, results[2], "task panicking panicked: boom")
	assert.NoError(t, results[3])
}

func TestPool_Released(t *testing.T) {
	pool, err := New(1)
	require.NoError(t, err)
	pool.Release()

	results := pool.RunAll([]Task{{Name: "late", Func: func() error { return nil }}})
	assert.ErrorIs(t, results[0], ErrPoolReleased)
}
