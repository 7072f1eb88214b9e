package main

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"pkt.systems/stevedore/internal/appconfig"
)

func testTaskConfig() appconfig.Config {
	return appconfig.Config{
		RunsRoot: "/tmp/stevedore-test-runs",
		Engine: appconfig.EngineConfig{
			Binary:                "docker",
			PollIntervalSeconds:   1,
			TerminateGraceSeconds: 10,
			MaxConcurrent:         1,
		},
		Task: appconfig.TaskConfig{
			Image:            "alpine:3.20",
			ContainerDir:     "/mnt/task",
			CPU:              2,
			MemoryLimitBytes: 1 << 30,
		},
	}
}

func TestCLITaskMirrorsConfig(t *testing.T) {
	cfg := testTaskConfig()
	hostDir := t.TempDir()
	task := newCLITask(context.Background(), "run-1", hostDir, cfg, map[string]string{"/data/in.txt": "/mnt/task/work/in.txt"})

	if task.ID() != "run-1" {
		t.Fatalf("unexpected run id %q", task.ID())
	}
	if task.HostDir() != hostDir {
		t.Fatalf("unexpected host dir %q", task.HostDir())
	}
	if task.ContainerDir() != "/mnt/task" {
		t.Fatalf("unexpected container dir %q", task.ContainerDir())
	}
	params := task.Runtime()
	if params.Image != "alpine:3.20" || params.CPU != 2 || params.MemoryLimit != 1<<30 {
		t.Fatalf("unexpected runtime params %#v", params)
	}
	if task.InputsCopied() {
		t.Fatalf("inputs-copied flag should start clear")
	}
	task.MarkInputsCopied()
	if !task.InputsCopied() {
		t.Fatalf("inputs-copied flag did not stick")
	}
}

func TestCLITaskTerminatingFollowsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	task := newCLITask(ctx, "run-1", t.TempDir(), testTaskConfig(), nil)

	if task.Terminating() {
		t.Fatalf("fresh task should not be terminating")
	}
	cancel()
	if !task.Terminating() {
		t.Fatalf("canceled context should mark the task terminating")
	}
}

func TestStderrTailEmitsCompleteLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stderr.txt")
	tail := stderrTail{path: path}

	var got []string
	emit := func(line string) { got = append(got, line) }

	// Missing file: the first poll can run before the mount plan touches it.
	tail.poll(emit)
	if len(got) != 0 {
		t.Fatalf("expected no lines before the file exists, got %v", got)
	}

	if err := os.WriteFile(path, []byte("first\npart"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	tail.poll(emit)
	if want := []string{"first"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v after partial line, got %v", want, got)
	}

	appendFile(t, path, "ial\r\nsecond\n\nthird\n")
	tail.poll(emit)
	want := []string{"first", "partial", "second", "third"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}

	// Nothing new: no repeat emissions.
	tail.poll(emit)
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected no new lines, got %v", got)
	}
}

func appendFile(t *testing.T, path, text string) {
	t.Helper()
	file, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0)
	if err != nil {
		t.Fatalf("open for append: %v", err)
	}
	defer file.Close()
	if _, err := file.WriteString(text); err != nil {
		t.Fatalf("append: %v", err)
	}
}
