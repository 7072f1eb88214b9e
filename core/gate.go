package core

import (
	"context"
	"time"

	"pkt.systems/stevedore/schema"
)

const defaultGatePoll = time.Second

// RunGate bounds how many container processes may run at once. The
// composition root owns one gate per process and injects it into the
// backend; capacity 1 serializes all runs.
type RunGate struct {
	slots chan struct{}
	poll  time.Duration
}

// NewRunGate returns a gate admitting at most capacity concurrent runs.
// Capacity below 1 is treated as 1.
func NewRunGate(capacity int) *RunGate {
	if capacity < 1 {
		capacity = 1
	}
	return &RunGate{slots: make(chan struct{}, capacity), poll: defaultGatePoll}
}

// Acquire blocks until a slot frees, ctx ends, or terminating reports true.
// terminating may be nil; it is re-checked once per poll interval so a
// queued task can abort without waiting for a slot to open.
func (g *RunGate) Acquire(ctx context.Context, terminating func() bool) error {
	for {
		if terminating != nil && terminating() {
			return schema.ErrTerminationRequested
		}
		select {
		case g.slots <- struct{}{}:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(g.poll):
		}
	}
}

// Release frees a slot. It must follow a successful Acquire.
func (g *RunGate) Release() {
	<-g.slots
}
