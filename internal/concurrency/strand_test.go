package concurrency_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/fleetlink/internal/concurrency"
)

func TestExecutorRunsSubmittedTasks(t *testing.T) {
	exec := concurrency.NewExecutor(2, nil)
	defer exec.Close()

	var wg sync.WaitGroup
	var n atomic.Int32
	for i := 0; i < 100; i++ {
		wg.Add(1)
		require.NoError(t, exec.Submit(func() {
			defer wg.Done()
			n.Add(1)
		}))
	}
	wg.Wait()
	assert.Equal(t, int32(100), n.Load())
}

func TestExecutorSurvivesPanics(t *testing.T) {
	exec := concurrency.NewExecutor(1, nil)
	defer exec.Close()

	done := make(chan struct{})
	require.NoError(t, exec.Submit(func() { panic("boom") }))
	require.NoError(t, exec.Submit(func() { close(done) }))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not survive panic")
	}
	assert.Equal(t, int64(1), exec.Stats()["panics"])
}

func TestExecutorRejectsAfterClose(t *testing.T) {
	exec := concurrency.NewExecutor(1, nil)
	exec.Close()
	assert.ErrorIs(t, exec.Submit(func() {}), concurrency.ErrExecutorClosed)
}

func TestStrandPreservesOrderAndExclusion(t *testing.T) {
	exec := concurrency.NewExecutor(4, nil)
	defer exec.Close()
	s := concurrency.NewStrand(exec, nil)

	const total = 500
	var (
		got    []int
		inside atomic.Int32
		wg     sync.WaitGroup
	)
	wg.Add(total)
	for i := 0; i < total; i++ {
		i := i
		s.Post(func() {
			defer wg.Done()
			if inside.Add(1) != 1 {
				t.Error("strand tasks overlapped")
			}
			got = append(got, i)
			inside.Add(-1)
		})
	}
	wg.Wait()
	require.Len(t, got, total)
	for i, v := range got {
		require.Equal(t, i, v)
	}
}

func TestStrandDoBlocksUntilDone(t *testing.T) {
	s := concurrency.NewStrand(nil, nil)
	var ran bool
	s.Do(func() { ran = true })
	assert.True(t, ran)
	assert.Equal(t, 0, s.Pending())
}

func TestStrandDoReturnsAfterPanic(t *testing.T) {
	s := concurrency.NewStrand(nil, nil)
	s.Do(func() { panic("boom") })

	var ran bool
	s.Do(func() { ran = true })
	assert.True(t, ran)
}

func TestExecutorCloseRunsEveryAcceptedTask(t *testing.T) {
	for round := 0; round < 20; round++ {
		exec := concurrency.NewExecutor(2, nil)
		var accepted, ran atomic.Int64
		var wg sync.WaitGroup
		for g := 0; g < 8; g++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < 200; i++ {
					if exec.Submit(func() { ran.Add(1) }) == nil {
						accepted.Add(1)
					}
				}
			}()
		}
		exec.Close()
		wg.Wait()
		require.Equal(t, accepted.Load(), ran.Load(), "round %d", round)
	}
}

func TestStrandOnClosedExecutorStillDrains(t *testing.T) {
	exec := concurrency.NewExecutor(1, nil)
	exec.Close()
	s := concurrency.NewStrand(exec, nil)
	done := make(chan struct{})
	s.Post(func() { close(done) })
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("strand task did not run")
	}
}
