package worker

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"flint/src/capture"
)

// ErrBusy is returned when a capture is already queued.
var ErrBusy = errors.New("capture worker busy")

// settleGrace is how long a cancelled capture may take to report its own
// terminal error before the context error is returned instead.
var settleGrace = 2 * time.Second

// ResultCallback is invoked when a capture finishes, from a worker goroutine.
// The event loop should pass a closure that posts back into the loop.
type ResultCallback func(res *capture.Result, err error)

// Pool runs capture requests off the UI thread with a 1-slot input queue
// (strict back-pressure). A capturer only ever talks to the display server
// from one goroutine at a time, so the pool has a single worker.
type Pool struct {
	capturer capture.Capturer
	jobs     chan job
	wg       sync.WaitGroup
}

type job struct {
	ctx context.Context
	req capture.Request
	cb  ResultCallback
}

// New starts a pool that serves requests through c.
func New(c capture.Capturer) *Pool {
	p := &Pool{capturer: c, jobs: make(chan job, 1)}
	p.wg.Add(1)
	go p.run()
	return p
}

func (p *Pool) run() {
	defer p.wg.Done()
	for j := range p.jobs {
		log.Printf("Worker: starting %s capture", j.req.Mode)
		res, err := captureWithContext(j.ctx, p.capturer, j.req)
		if err != nil {
			log.Printf("Worker: capture failed: %v", err)
		} else {
			log.Printf("Worker: capture completed %dx%d via %s", res.Width(), res.Height(), res.Backend)
		}
		j.cb(res, err)
	}
}

// Submit enqueues a capture if the single-slot queue is free. Returns false
// if the job was dropped.
func (p *Pool) Submit(ctx context.Context, req capture.Request, cb ResultCallback) bool {
	select {
	case p.jobs <- job{ctx: ctx, req: req, cb: cb}:
		return true
	default:
		return false
	}
}

// Close stops the pool after draining current work.
func (p *Pool) Close() {
	close(p.jobs)
	p.wg.Wait()
}

// captureWithContext returns the backend's own outcome when it settles after
// ctx ends (the portal reports a timed-out request as PermissionDenied).
// A synchronous read that ignores ctx gets settleGrace before ctx.Err() is
// returned.
func captureWithContext(ctx context.Context, c capture.Capturer, req capture.Request) (*capture.Result, error) {
	if _, ok := ctx.Deadline(); !ok && ctx.Done() == nil {
		return c.Capture(ctx, req)
	}
	type outcome struct {
		res *capture.Result
		err error
	}
	resCh := make(chan outcome, 1)
	go func() {
		res, err := c.Capture(ctx, req)
		resCh <- outcome{res, err}
	}()
	select {
	case r := <-resCh:
		return r.res, r.err
	case <-ctx.Done():
	}
	t := time.NewTimer(settleGrace)
	defer t.Stop()
	select {
	case r := <-resCh:
		return r.res, r.err
	case <-t.C:
		// The backend call finishes in the background; its result is dropped.
		log.Printf("Worker: capture did not settle after %v", ctx.Err())
		return nil, ctx.Err()
	}
}

// Capture runs req on the worker and waits for it, so the pool can stand in
// wherever a capture.Capturer is expected. It fails with ErrBusy when the
// queue slot is taken.
func (p *Pool) Capture(ctx context.Context, req capture.Request) (*capture.Result, error) {
	type outcome struct {
		res *capture.Result
		err error
	}
	done := make(chan outcome, 1)
	if !p.Submit(ctx, req, func(res *capture.Result, err error) { done <- outcome{res, err} }) {
		return nil, ErrBusy
	}
	// The worker bounds the wait, so the backend's terminal error reaches
	// the caller even after ctx ends.
	o := <-done
	return o.res, o.err
}
