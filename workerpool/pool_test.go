package workerpool

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunVisitsEveryTaskOnce(t *testing.T) {
	p := New(4)
	defer p.Close()

	const n = 1000
	var counts [n]atomic.Int32
	p.Run(0, n, func(task, worker int) {
		counts[task].Add(1)
	})
	for i := range counts {
		require.Equal(t, int32(1), counts[i].Load(), "task %d", i)
	}
}

func TestRunRange(t *testing.T) {
	p := New(3)
	defer p.Close()

	var mu sync.Mutex
	var seen []int
	p.Run(5, 9, func(task, _ int) {
		mu.Lock()
		seen = append(seen, task)
		mu.Unlock()
	})
	assert.ElementsMatch(t, []int{5, 6, 7, 8}, seen)

	called := false
	p.Run(3, 3, func(int, int) { called = true })
	assert.False(t, called)
}

func TestWorkerIndexInRange(t *testing.T) {
	p := New(4)
	defer p.Close()
	assert.Equal(t, 4, p.Size())

	// Per-worker scratch without locks.
	sums := make([]int, p.Size())
	p.Run(0, 10000, func(task, worker int) {
		assert.GreaterOrEqual(t, worker, 0)
		assert.Less(t, worker, p.Size())
		sums[worker] += task
	})
	total := 0
	for _, s := range sums {
		total += s
	}
	assert.Equal(t, 10000*9999/2, total)
}

func TestRunErrFirstErrorWins(t *testing.T) {
	p := New(2)
	defer p.Close()

	boom := errors.New("boom")
	var ran atomic.Int32
	err := p.RunErr(0, 100000, func(task, _ int) error {
		ran.Add(1)
		if task == 10 {
			return boom
		}
		return nil
	})
	require.ErrorIs(t, err, boom)
	assert.Less(t, int(ran.Load()), 100000)
}

func TestDefaultSize(t *testing.T) {
	p := New(0)
	defer p.Close()
	assert.Positive(t, p.Size())
}

func TestClose(t *testing.T) {
	p := New(2)
	p.Close()
	p.Close()

	err := p.RunErr(0, 1, func(int, int) error { return nil })
	assert.ErrorIs(t, err, ErrClosed)

	ran := 0
	assert.PanicsWithError(t, ErrClosed.Error(), func() {
		p.Run(0, 10, func(int, int) { ran++ })
	})
	assert.Zero(t, ran)
}

func TestConcurrentRuns(t *testing.T) {
	p := New(4)
	defer p.Close()

	var wg sync.WaitGroup
	var total atomic.Int64
	for r := 0; r < 8; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Run(0, 100, func(task, _ int) { total.Add(int64(task)) })
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(8*4950), total.Load())
}
