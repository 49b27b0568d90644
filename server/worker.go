package server

import (
	"errors"
	"fmt"
	"sync"

	"github.com/chazu/pyaot/codegen"
	"github.com/chazu/pyaot/pyast"
)

// ErrStopped is returned by Do after Stop.
var ErrStopped = errors.New("worker stopped")

// genRequest is a unit of work to be executed on the worker goroutine.
type genRequest struct {
	fn   func(codegen.Options) any
	done chan genResult
}

type genResult struct {
	value any
	err   error
}

// Worker runs generation requests one at a time on a dedicated goroutine.
// The options it hands out share a loader and a cache, neither of which is
// required to be safe for concurrent use.
type Worker struct {
	opts     codegen.Options
	requests chan genRequest
	quit     chan struct{}
	stopped  chan struct{}
	stop     sync.Once
}

// NewWorker creates a Worker and starts the processing goroutine.
func NewWorker(opts codegen.Options) *Worker {
	w := &Worker{
		opts:     opts,
		requests: make(chan genRequest, 64),
		quit:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	go w.loop()
	return w
}

func (w *Worker) loop() {
	defer close(w.stopped)
	for {
		select {
		case req := <-w.requests:
			req.done <- w.execute(req.fn)
		case <-w.quit:
			return
		}
	}
}

// execute runs fn, recovering from panics.
func (w *Worker) execute(fn func(codegen.Options) any) (result genResult) {
	defer func() {
		if r := recover(); r != nil {
			result.err = fmt.Errorf("%v", r)
		}
	}()
	result.value = fn(w.opts)
	return result
}

// Do submits fn and blocks until it completes. Returns the result and any
// error, including a recovered panic.
func (w *Worker) Do(fn func(codegen.Options) any) (any, error) {
	select {
	case <-w.quit:
		return nil, ErrStopped
	default:
	}
	req := genRequest{fn: fn, done: make(chan genResult, 1)}
	select {
	case w.requests <- req:
	case <-w.quit:
		return nil, ErrStopped
	}
	select {
	case result := <-req.done:
		return result.value, result.err
	case <-w.quit:
		return nil, ErrStopped
	}
}

// Stop shuts down the worker goroutine and waits for it to exit.
// Stopping twice is harmless.
func (w *Worker) Stop() {
	w.stop.Do(func() { close(w.quit) })
	<-w.stopped
}

// generation is the outcome of lowering one document.
type generation struct {
	result *codegen.Result
	err    error // decode or malformed-tree error
}

// Generate decodes text as the syntax tree of module and lowers it.
func (w *Worker) Generate(module, text string) (*codegen.Result, error) {
	v, err := w.Do(func(opts codegen.Options) any {
		tree, err := pyast.Decode([]byte(text), module)
		if err != nil {
			return generation{err: err}
		}
		res, err := codegen.Generate(tree, opts)
		return generation{result: res, err: err}
	})
	if err != nil {
		return nil, err
	}
	g := v.(generation)
	return g.result, g.err
}
