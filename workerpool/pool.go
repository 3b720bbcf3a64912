// Package workerpool provides a fixed pool of goroutines for synchronous
// parallel-for loops.
//
// A Pool is an explicit execution context: it is created by the caller and
// passed to every bulk operation. There is no global pool.
package workerpool

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
)

// ErrClosed is returned by RunErr after Close.
var ErrClosed = errors.New("workerpool: closed")

// job is one Run call as seen by a single worker.
type job struct {
	next  *atomic.Int64
	end   int64
	fn    func(task, worker int) error
	stop  *atomic.Bool
	errMu *sync.Mutex
	err   *error
	wg    *sync.WaitGroup
}

// Pool is a fixed set of workers. Each worker has a stable index in
// [0, Size()) so callers can keep per-worker scratch without locking.
//
// Run must not be called from inside a task of the same pool.
type Pool struct {
	workers []chan job
	wg      sync.WaitGroup
	closed  atomic.Bool
	mu      sync.RWMutex
}

// New creates a pool with n workers. n <= 0 selects GOMAXPROCS.
func New(n int) *Pool {
	if n <= 0 {
		n = runtime.GOMAXPROCS(0)
	}

	p := &Pool{workers: make([]chan job, n)}
	p.wg.Add(n)
	for i := range p.workers {
		ch := make(chan job, 1)
		p.workers[i] = ch
		go p.worker(i, ch)
	}
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return len(p.workers)
}

func (p *Pool) worker(idx int, ch chan job) {
	defer p.wg.Done()

	for j := range ch {
		for !j.stop.Load() {
			task := j.next.Add(1) - 1
			if task >= j.end {
				break
			}
			if err := j.fn(int(task), idx); err != nil {
				j.errMu.Lock()
				if *j.err == nil {
					*j.err = err
				}
				j.errMu.Unlock()
				j.stop.Store(true)
			}
		}
		j.wg.Done()
	}
}

// Run calls fn for every task in [begin, end) and blocks until all have
// returned. worker identifies the executing worker. Tasks run in no
// particular order. Run panics if the pool is closed.
func (p *Pool) Run(begin, end int, fn func(task, worker int)) {
	err := p.RunErr(begin, end, func(task, worker int) error {
		fn(task, worker)
		return nil
	})
	if err != nil {
		panic(err)
	}
}

// RunErr is Run for fallible tasks. The first error is returned and no
// further tasks are started; tasks already running finish.
func (p *Pool) RunErr(begin, end int, fn func(task, worker int) error) error {
	if begin >= end {
		return nil
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed.Load() {
		return ErrClosed
	}

	var (
		next  atomic.Int64
		stop  atomic.Bool
		errMu sync.Mutex
		err   error
		wg    sync.WaitGroup
	)
	next.Store(int64(begin))

	// No point waking more workers than there are tasks.
	n := min(len(p.workers), end-begin)
	wg.Add(n)
	j := job{next: &next, end: int64(end), fn: fn, stop: &stop, errMu: &errMu, err: &err, wg: &wg}
	for i := 0; i < n; i++ {
		p.workers[i] <- j
	}
	wg.Wait()

	return err
}

// Close stops the workers after in-flight Run calls return. It is
// idempotent.
func (p *Pool) Close() {
	if !p.closed.CompareAndSwap(false, true) {
		return
	}

	p.mu.Lock()
	for _, ch := range p.workers {
		close(ch)
	}
	p.mu.Unlock()

	p.wg.Wait()
}
