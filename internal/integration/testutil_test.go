package integration_test

import (
	"os"
	"os/exec"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"pkt.systems/stevedore/core"
	"pkt.systems/stevedore/internal/dockerrun"
	"pkt.systems/stevedore/schema"
)

const defaultTestImage = "alpine:3.20"

func requireLong(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
}

func requireDocker(t *testing.T) string {
	t.Helper()
	binary := os.Getenv("STEVEDORE_TEST_ENGINE")
	if strings.TrimSpace(binary) == "" {
		binary = "docker"
	}
	if _, err := exec.LookPath(binary); err != nil {
		t.Skipf("container engine %q not available: %v", binary, err)
	}
	return binary
}

func testImage() string {
	image := os.Getenv("STEVEDORE_TEST_IMAGE")
	if strings.TrimSpace(image) == "" {
		image = defaultTestImage
	}
	return image
}

func newTestRunner(t *testing.T, maxConcurrent int) *dockerrun.Runner {
	t.Helper()
	binary := requireDocker(t)
	runner, err := dockerrun.NewRunner(dockerrun.Config{
		Binary:         binary,
		PollInterval:   200 * time.Millisecond,
		TerminateGrace: 3 * time.Second,
	}, core.NewRunGate(maxConcurrent))
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}
	return runner
}

// integTask is the engine-collaborator stand-in for end-to-end runs.
type integTask struct {
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
}

func newIntegTask(t *testing.T, id string) *integTask {
	t.Helper()
	return &integTask{
		id:           schema.RunID(id),
		hostDir:      t.TempDir(),
		containerDir: "/mnt/task",
		params:       schema.RuntimeParams{Image: testImage()},
	}
}

var _ core.Task = (*integTask)(nil)

func (t *integTask) ID() schema.RunID              { return t.id }
func (t *integTask) HostDir() string               { return t.hostDir }
func (t *integTask) ContainerDir() string          { return t.containerDir }
func (t *integTask) Inputs() map[string]string     { return t.inputs }
func (t *integTask) Runtime() schema.RuntimeParams { return t.params }
func (t *integTask) InputsCopied() bool            { return t.copied.Load() }
func (t *integTask) MarkInputsCopied()             { t.copied.Store(true) }
func (t *integTask) Terminating() bool             { return t.terminating.Load() }
func (t *integTask) PollStderr()                   { t.polls.Add(1) }

func (t *integTask) NotifyRunning() {
	t.running.Add(1)
	if t.onRunning != nil {
		t.onRunning()
	}
}
