package appconfig

import "testing"

func TestDefaultConfigSerializesRuns(t *testing.T) {
	cfg, err := DefaultConfig()
	if err != nil {
		t.Fatalf("default config: %v", err)
	}
	if cfg.Engine.MaxConcurrent != 1 {
		t.Fatalf("expected one concurrent run by default, got %d", cfg.Engine.MaxConcurrent)
	}
	if cfg.Task.CopyInputs {
		t.Fatalf("expected input mounts by default")
	}
}
