package dockerrun

import (
	"sync/atomic"

	"pkt.systems/stevedore/core"
	"pkt.systems/stevedore/schema"
)

// fakeTask is a minimal core.Task for exercising the backend without a host
// engine driving it.
type fakeTask struct {
	id           schema.RunID
	hostDir      string
	containerDir string
	inputs       map[string]string
	params       schema.RuntimeParams

	copied      atomic.Bool
	terminating atomic.Bool
	running     atomic.Int32
	polls       atomic.Int32

	onRunning func()
	onPoll    func()
}

var _ core.Task = (*fakeTask)(nil)

func newFakeTask(hostDir string) *fakeTask {
	return &fakeTask{
		id:           "run-test",
		hostDir:      hostDir,
		containerDir: "/mnt/task",
		inputs:       map[string]string{},
		params:       schema.RuntimeParams{Image: "alpine:3.20"},
	}
}

func (f *fakeTask) ID() schema.RunID              { return f.id }
func (f *fakeTask) HostDir() string               { return f.hostDir }
func (f *fakeTask) ContainerDir() string          { return f.containerDir }
func (f *fakeTask) Inputs() map[string]string     { return f.inputs }
func (f *fakeTask) Runtime() schema.RuntimeParams { return f.params }
func (f *fakeTask) InputsCopied() bool            { return f.copied.Load() }
func (f *fakeTask) MarkInputsCopied()             { f.copied.Store(true) }
func (f *fakeTask) Terminating() bool             { return f.terminating.Load() }

func (f *fakeTask) NotifyRunning() {
	f.running.Add(1)
	if f.onRunning != nil {
		f.onRunning()
	}
}

func (f *fakeTask) PollStderr() {
	f.polls.Add(1)
	if f.onPoll != nil {
		f.onPoll()
	}
}
