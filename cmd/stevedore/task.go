package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"strings"
	"sync"

	"pkt.systems/pslog"
	"pkt.systems/stevedore/internal/appconfig"
	"pkt.systems/stevedore/internal/dockerrun"
	"pkt.systems/stevedore/internal/logx"
	"pkt.systems/stevedore/schema"
)

// cliTask adapts one command-line invocation to the backend's task
// contract. Interrupt-driven shutdown arrives through the context, which
// psi cancels on SIGINT and SIGTERM.
type cliTask struct {
	ctx          context.Context
	id           schema.RunID
	hostDir      string
	containerDir string
	inputs       map[string]string
	params       schema.RuntimeParams
	copied       bool
	log          pslog.Logger
	runningOnce  sync.Once
	tail         stderrTail
}

func newCLITask(ctx context.Context, id schema.RunID, hostDir string, cfg appconfig.Config, inputs map[string]string) *cliTask {
	return &cliTask{
		ctx:          ctx,
		id:           id,
		hostDir:      hostDir,
		containerDir: cfg.Task.ContainerDir,
		inputs:       inputs,
		params: schema.RuntimeParams{
			CPU:               cfg.Task.CPU,
			MemoryLimit:       cfg.Task.MemoryLimitBytes,
			MemoryReservation: cfg.Task.MemoryReservationBytes,
			Image:             cfg.Task.Image,
		},
		log:  logx.WithRun(ctx, id),
		tail: stderrTail{path: dockerrun.StderrPath(hostDir)},
	}
}

func (t *cliTask) ID() schema.RunID              { return t.id }
func (t *cliTask) HostDir() string               { return t.hostDir }
func (t *cliTask) ContainerDir() string          { return t.containerDir }
func (t *cliTask) Inputs() map[string]string     { return t.inputs }
func (t *cliTask) Runtime() schema.RuntimeParams { return t.params }
func (t *cliTask) InputsCopied() bool            { return t.copied }
func (t *cliTask) MarkInputsCopied()             { t.copied = true }

func (t *cliTask) Terminating() bool { return t.ctx.Err() != nil }

func (t *cliTask) NotifyRunning() {
	t.runningOnce.Do(func() {
		t.log.Info("task running", "dir", t.hostDir)
	})
}

func (t *cliTask) PollStderr() {
	t.tail.poll(func(line string) {
		t.log.Info("task stderr", "text", line)
	})
}

// stderrTail forwards complete lines appended to the task's stderr file
// since the previous poll. Partial lines stay buffered until their newline
// arrives.
type stderrTail struct {
	path   string
	offset int64
	buf    []byte
}

func (s *stderrTail) poll(emit func(string)) {
	file, err := os.Open(s.path)
	if err != nil {
		// The file appears once the first mount plan touches it.
		return
	}
	defer file.Close()
	if _, err := file.Seek(s.offset, io.SeekStart); err != nil {
		return
	}
	data, err := io.ReadAll(file)
	if err != nil && len(data) == 0 {
		return
	}
	s.offset += int64(len(data))
	s.buf = append(s.buf, data...)
	for {
		idx := bytes.IndexByte(s.buf, '\n')
		if idx < 0 {
			return
		}
		line := strings.TrimRight(string(s.buf[:idx]), "\r")
		s.buf = s.buf[idx+1:]
		if line != "" {
			emit(line)
		}
	}
}
