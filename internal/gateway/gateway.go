// Package gateway serialises inbound turns per thread while allowing
// independent threads to execute in parallel.
package gateway

import (
	"context"
	"fmt"
	"sync"

	"github.com/user/synapse/internal/types"
)

// Processor executes one queued turn and returns the final assistant answer.
type Processor interface {
	RunTurn(ctx context.Context, threadID types.ThreadID, userText, attachedDocument string) (string, error)
}

// Gateway wraps a turn Processor in a per-thread FIFO queue. Turns on the
// same thread never overlap; turns on different threads run concurrently up
// to the configured limit.
type Gateway struct {
	Queue *Queue

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Gateway driving the given processor with the given limit on
// simultaneous turn execution.
func New(processor Processor, maxConcurrent int64) *Gateway {
	if maxConcurrent <= 0 {
		maxConcurrent = 2
	}
	g := &Gateway{Queue: NewQueue(maxConcurrent)}
	g.Queue.SetProcessor(func(run *Run) error {
		answer, err := processor.RunTurn(run.Ctx, run.ThreadID, run.Text, run.Document)
		if err != nil {
			if run.OnError != nil {
				run.OnError(err)
			}
			return err
		}
		if run.OnComplete != nil {
			run.OnComplete(answer)
		}
		return nil
	})
	return g
}

// Start initialises the gateway's context and starts the internal queue.
func (g *Gateway) Start(ctx context.Context) {
	g.ctx, g.cancel = context.WithCancel(ctx)
	g.Queue.Start(g.ctx)
}

// Stop cancels the gateway context and stops the queue.
func (g *Gateway) Stop() {
	if g.cancel != nil {
		g.cancel()
	}
	g.Queue.Stop()
}

// RunOption configures optional behavior on a Run.
type RunOption func(*Run)

// WithOnComplete sets a callback invoked with the run's final answer.
func WithOnComplete(fn func(string)) RunOption {
	return func(r *Run) { r.OnComplete = fn }
}

// WithDocument attaches a document path to the run's thread before the turn
// executes.
func WithDocument(path string) RunOption {
	return func(r *Run) { r.Document = path }
}

// Submit enqueues a turn on the thread's lane and returns without waiting
// for it to execute.
func (g *Gateway) Submit(threadID types.ThreadID, text string, opts ...RunOption) (*Run, error) {
	run := NewRun(threadID, text)
	for _, opt := range opts {
		opt(run)
	}
	if err := g.Queue.Enqueue(run); err != nil {
		return nil, err
	}
	return run, nil
}

// SubmitWait enqueues a turn and blocks until it completes, returning the
// final assistant answer. It respects ctx for the wait itself; the turn
// keeps the gateway's context so shutdown remains the only way to abort an
// executing run.
func (g *Gateway) SubmitWait(ctx context.Context, threadID types.ThreadID, text string, opts ...RunOption) (string, error) {
	type result struct {
		answer string
		err    error
	}
	done := make(chan result, 1)
	var once sync.Once
	settle := func(r result) { once.Do(func() { done <- r }) }

	opts = append(opts,
		WithOnComplete(func(answer string) { settle(result{answer: answer}) }),
		func(r *Run) {
			r.OnError = func(err error) {
				settle(result{err: fmt.Errorf("run %s failed: %w", r.ID, err)})
			}
		},
	)

	if _, err := g.Submit(threadID, text, opts...); err != nil {
		return "", err
	}

	select {
	case r := <-done:
		return r.answer, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	case <-g.ctx.Done():
		return "", g.ctx.Err()
	}
}
