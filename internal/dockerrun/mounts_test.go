package dockerrun

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"pkt.systems/stevedore/core"
)

func TestPlanMountsFixedOrder(t *testing.T) {
	host := t.TempDir()
	task := newFakeTask(host)
	mounts, err := PlanMounts(task, "echo hello")
	if err != nil {
		t.Fatalf("plan mounts: %v", err)
	}
	want := []MountSpec{
		{HostPath: filepath.Join(host, "stdout.txt"), ContainerPath: "/mnt/task/stdout.txt", Writable: true},
		{HostPath: filepath.Join(host, "stderr.txt"), ContainerPath: "/mnt/task/stderr.txt", Writable: true},
		{HostPath: filepath.Join(host, "work") + "/", ContainerPath: "/mnt/task/work/", Writable: true},
		{HostPath: filepath.Join(host, "command"), ContainerPath: "/mnt/task/command", Writable: false},
	}
	if !reflect.DeepEqual(mounts, want) {
		t.Fatalf("unexpected mounts:\nwant: %#v\ngot:  %#v", want, mounts)
	}
}

func TestPlanMountsCreatesPlaceholders(t *testing.T) {
	host := t.TempDir()
	task := newFakeTask(host)
	if _, err := PlanMounts(task, "true"); err != nil {
		t.Fatalf("plan mounts: %v", err)
	}
	for _, name := range []string{"stdout.txt", "stderr.txt", "command"} {
		info, err := os.Stat(filepath.Join(host, name))
		if err != nil {
			t.Fatalf("stat %s: %v", name, err)
		}
		if info.IsDir() {
			t.Fatalf("%s should be a file", name)
		}
	}
	info, err := os.Stat(filepath.Join(host, "work"))
	if err != nil {
		t.Fatalf("stat work: %v", err)
	}
	if !info.IsDir() {
		t.Fatalf("work should be a directory")
	}
}

func TestPlanMountsWritesCommandVerbatim(t *testing.T) {
	host := t.TempDir()
	task := newFakeTask(host)
	command := "set -e\necho 'héllo wörld'\nexit 3\n"
	if _, err := PlanMounts(task, command); err != nil {
		t.Fatalf("plan mounts: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(host, "command"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != command {
		t.Fatalf("command file mismatch: %q", data)
	}
}

func TestPlanMountsAppendsInputsSorted(t *testing.T) {
	host := t.TempDir()
	src := t.TempDir()
	fileA := filepath.Join(src, "a.txt")
	fileB := filepath.Join(src, "b.txt")
	for _, p := range []string{fileA, fileB} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	task := newFakeTask(host)
	task.inputs = map[string]string{
		fileB: "/mnt/task/work/_inputs/0/b.txt",
		fileA: "/mnt/task/work/_inputs/1/a.txt",
	}
	mounts, err := PlanMounts(task, "true")
	if err != nil {
		t.Fatalf("plan mounts: %v", err)
	}
	if len(mounts) != 6 {
		t.Fatalf("expected 6 mounts, got %d", len(mounts))
	}
	if mounts[4].HostPath != fileA || mounts[4].ContainerPath != "/mnt/task/work/_inputs/1/a.txt" {
		t.Fatalf("unexpected first input mount: %#v", mounts[4])
	}
	if mounts[5].HostPath != fileB {
		t.Fatalf("unexpected second input mount: %#v", mounts[5])
	}
	for _, m := range mounts[4:] {
		if m.Writable {
			t.Fatalf("input mount %q should be read-only", m.ContainerPath)
		}
	}
	for _, rel := range []string{"work/_inputs/0/b.txt", "work/_inputs/1/a.txt"} {
		if _, err := os.Stat(filepath.Join(host, rel)); err != nil {
			t.Fatalf("placeholder %s: %v", rel, err)
		}
	}
}

func TestPlanMountsDirectoryInput(t *testing.T) {
	host := t.TempDir()
	srcDir := t.TempDir()
	task := newFakeTask(host)
	task.inputs = map[string]string{srcDir + "/": "/mnt/task/work/_inputs/0/data/"}
	mounts, err := PlanMounts(task, "true")
	if err != nil {
		t.Fatalf("plan mounts: %v", err)
	}
	last := mounts[len(mounts)-1]
	if last.HostPath != srcDir || last.ContainerPath != "/mnt/task/work/_inputs/0/data" {
		t.Fatalf("unexpected directory mount: %#v", last)
	}
	info, err := os.Stat(filepath.Join(host, "work", "_inputs", "0", "data"))
	if err != nil {
		t.Fatalf("stat reflected directory: %v", err)
	}
	if !info.IsDir() {
		t.Fatalf("reflected mount point should be a directory")
	}
}

func TestPlanMountsRejectsMissingInputDirectory(t *testing.T) {
	host := t.TempDir()
	task := newFakeTask(host)
	task.inputs = map[string]string{filepath.Join(host, "nope") + "/": "/mnt/task/work/_inputs/0/nope/"}
	if _, err := PlanMounts(task, "true"); !core.IsInvalidMount(err) {
		t.Fatalf("expected invalid mount error, got %v", err)
	}
}

func TestPlanMountsRejectsEscapingInput(t *testing.T) {
	host := t.TempDir()
	src := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(src, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	for _, target := range []string{
		"/etc/passwd",
		"/mnt/task",
		"/mnt/other/file.txt",
		"/mnt/task/../task2/file.txt",
	} {
		task := newFakeTask(host)
		task.inputs = map[string]string{src: target}
		if _, err := PlanMounts(task, "true"); !core.IsInvalidMount(err) {
			t.Fatalf("target %q: expected invalid mount error, got %v", target, err)
		}
	}
}

func TestPlanMountsRejectsColonPaths(t *testing.T) {
	host := t.TempDir()
	src := filepath.Join(t.TempDir(), "weird:name.txt")
	if err := os.WriteFile(src, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	task := newFakeTask(host)
	task.inputs = map[string]string{src: "/mnt/task/work/_inputs/0/weird.txt"}
	if _, err := PlanMounts(task, "true"); !core.IsInvalidMount(err) {
		t.Fatalf("expected invalid mount error for host colon, got %v", err)
	}
	task = newFakeTask(host)
	task.inputs = map[string]string{"/tmp/ok.txt": "/mnt/task/work/_inputs/0/we:ird.txt"}
	if _, err := PlanMounts(task, "true"); !core.IsInvalidMount(err) {
		t.Fatalf("expected invalid mount error for container colon, got %v", err)
	}
}

func TestPlanMountsRejectsDuplicateTarget(t *testing.T) {
	host := t.TempDir()
	task := newFakeTask(host)
	task.inputs = map[string]string{"/tmp/shadow.txt": "/mnt/task/stdout.txt"}
	if _, err := PlanMounts(task, "true"); !core.IsInvalidMount(err) {
		t.Fatalf("expected invalid mount error, got %v", err)
	}
}

func TestPlanMountsSkipsInputsWhenCopied(t *testing.T) {
	host := t.TempDir()
	task := newFakeTask(host)
	task.inputs = map[string]string{"/tmp/in.txt": "/mnt/task/work/_inputs/0/in.txt"}
	task.MarkInputsCopied()
	mounts, err := PlanMounts(task, "true")
	if err != nil {
		t.Fatalf("plan mounts: %v", err)
	}
	if len(mounts) != 4 {
		t.Fatalf("expected 4 mounts, got %d", len(mounts))
	}
}

func TestPlanMountsRequiresAbsolutePaths(t *testing.T) {
	task := newFakeTask("relative/dir")
	if _, err := PlanMounts(task, "true"); !core.IsInvalidMount(err) {
		t.Fatalf("expected invalid mount error for host dir, got %v", err)
	}
	task = newFakeTask(t.TempDir())
	task.containerDir = "mnt/task"
	if _, err := PlanMounts(task, "true"); !core.IsInvalidMount(err) {
		t.Fatalf("expected invalid mount error for container dir, got %v", err)
	}
}

func TestPlanMountsRepeatable(t *testing.T) {
	host := t.TempDir()
	task := newFakeTask(host)
	first, err := PlanMounts(task, "true")
	if err != nil {
		t.Fatalf("first plan: %v", err)
	}
	second, err := PlanMounts(task, "true")
	if err != nil {
		t.Fatalf("second plan: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("plans differ:\nfirst:  %#v\nsecond: %#v", first, second)
	}
}
