package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var errWorkerStopped = errors.New("worker stopped")

// job is a unit of work executed on the worker goroutine.
type job struct {
	fn   func() any
	done chan jobResult
}

// jobResult holds the return value of a job.
type jobResult struct {
	value any
	err   error
}

// Worker runs jobs one at a time on a dedicated goroutine. Run requests go
// through it so a busy server executes a single program at a time.
type Worker struct {
	jobs chan job
	quit chan struct{}
	stop sync.Once
}

// NewWorker creates a Worker and starts its goroutine.
func NewWorker() *Worker {
	w := &Worker{
		jobs: make(chan job, 64),
		quit: make(chan struct{}),
	}
	go w.loop()
	return w
}

func (w *Worker) loop() {
	for {
		select {
		case j := <-w.jobs:
			j.done <- w.execute(j.fn)
		case <-w.quit:
			return
		}
	}
}

// execute runs fn, converting a panic into an error.
func (w *Worker) execute(fn func() any) (result jobResult) {
	defer func() {
		if r := recover(); r != nil {
			result.err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	result.value = fn()
	return result
}

// Do submits fn and blocks until it completes or ctx is done. A job
// abandoned after submission still runs; its result is dropped.
func (w *Worker) Do(ctx context.Context, fn func() any) (any, error) {
	j := job{fn: fn, done: make(chan jobResult, 1)}
	select {
	case w.jobs <- j:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-w.quit:
		return nil, errWorkerStopped
	}
	select {
	case r := <-j.done:
		return r.value, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-w.quit:
		return nil, errWorkerStopped
	}
}

// Stop shuts down the worker goroutine. Pending jobs are not run.
func (w *Worker) Stop() {
	w.stop.Do(func() { close(w.quit) })
}
