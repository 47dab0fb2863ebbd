// Package streamutil provides a small channel pipeline for moving
// streaming frames from a producer goroutine to a consumer with proper
// lifecycle control.
package streamutil

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Frame is a single unit of streaming data or a terminal error.
type Frame struct {
	Data []byte
	Err  error
}

// Pipeline couples one or more producer goroutines with a buffered
// output channel. Producers run in an errgroup so a failing producer
// cancels the rest; the output channel closes once all producers return.
type Pipeline struct {
	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group
	output chan Frame
}

// NewPipeline creates a pipeline whose producers observe parent's
// cancellation.
func NewPipeline(parent context.Context, bufferSize int) *Pipeline {
	if bufferSize <= 0 {
		bufferSize = 128
	}
	ctx, cancel := context.WithCancel(parent)
	g, gctx := errgroup.WithContext(ctx)
	return &Pipeline{
		ctx:    gctx,
		cancel: cancel,
		group:  g,
		output: make(chan Frame, bufferSize),
	}
}

// Output returns the read-only frame channel. It closes after all
// producers finish.
func (p *Pipeline) Output() <-chan Frame {
	return p.output
}

// Go starts a producer goroutine.
func (p *Pipeline) Go(f func(ctx context.Context) error) {
	p.group.Go(func() error {
		return f(p.ctx)
	})
}

// Send delivers a frame to the consumer. Returns false if the pipeline
// was cancelled before the frame could be delivered.
func (p *Pipeline) Send(frame Frame) bool {
	select {
	case p.output <- frame:
		return true
	case <-p.ctx.Done():
		return false
	}
}

// Start closes the output channel in the background once every producer
// has returned. Call after all Go calls.
func (p *Pipeline) Start() {
	go func() {
		_ = p.group.Wait()
		close(p.output)
	}()
}

// Cancel aborts all producers.
func (p *Pipeline) Cancel() {
	p.cancel()
}
