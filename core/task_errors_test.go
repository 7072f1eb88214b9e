package core

import (
	"errors"
	"testing"

	"pkt.systems/stevedore/schema"
)

func TestTaskErrorMessageFallbacks(t *testing.T) {
	err := &TaskError{Kind: TaskErrorRuntime, Op: "run"}
	if err.Error() != "task run failed" {
		t.Fatalf("expected op fallback, got %q", err.Error())
	}
	err.Err = errors.New("boom")
	if err.Error() != "boom" {
		t.Fatalf("expected wrapped message, got %q", err.Error())
	}
	err.Message = "custom"
	if err.Error() != "custom" {
		t.Fatalf("expected explicit message, got %q", err.Error())
	}
}

func TestNewTaskErrorDefaultsKind(t *testing.T) {
	err := NewTaskError("", "run", errors.New("x"))
	if err.Kind != TaskErrorUnknown {
		t.Fatalf("expected unknown kind, got %q", err.Kind)
	}
}

func TestCanceledClassification(t *testing.T) {
	err := NewCanceled("run", true)
	if !IsCanceled(err) {
		t.Fatalf("expected canceled classification")
	}
	if !IsQuietCancel(err) {
		t.Fatalf("expected quiet cancel")
	}
	if !errors.Is(err, schema.ErrTerminationRequested) {
		t.Fatalf("expected termination sentinel in chain")
	}
	loud := NewCanceled("run", false)
	if IsQuietCancel(loud) {
		t.Fatalf("did not expect quiet cancel")
	}
	if IsInvalidMount(err) {
		t.Fatalf("did not expect invalid mount classification")
	}
}

func TestInvalidMountClassification(t *testing.T) {
	err := NewInvalidMount("plan", "container path contains ':'")
	if !IsInvalidMount(err) {
		t.Fatalf("expected invalid mount classification")
	}
	if IsCanceled(err) {
		t.Fatalf("did not expect cancellation classification")
	}
	if err.Error() != "container path contains ':'" {
		t.Fatalf("expected message passthrough, got %q", err.Error())
	}
}

func TestRuntimeWrapsCause(t *testing.T) {
	cause := errors.New("engine missing")
	err := NewRuntime("spawn", cause)
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause in chain")
	}
	if IsCanceled(err) || IsInvalidMount(err) {
		t.Fatalf("unexpected classification for runtime error")
	}
}
