package logx

import (
	"context"

	"pkt.systems/pslog"
	"pkt.systems/stevedore/schema"
)

type contextKey int

const runKey contextKey = iota

// Ctx returns the logger bound to the provided context.
func Ctx(ctx context.Context) pslog.Logger {
	return pslog.Ctx(ctx)
}

// WithRun annotates the logger with the run id if present.
func WithRun(ctx context.Context, runID schema.RunID) pslog.Logger {
	log := pslog.Ctx(ctx)
	if runID != "" {
		if current, ok := ctx.Value(runKey).(schema.RunID); ok && current == runID {
			return log
		}
		log = log.With("run", runID)
	}
	return log
}

// WithImage annotates the logger with the container image when set.
func WithImage(log pslog.Logger, image string) pslog.Logger {
	if image != "" {
		log = log.With("image", image)
	}
	return log
}

// ContextWithRun stores the run marker on the context for log de-duplication.
func ContextWithRun(ctx context.Context, runID schema.RunID) context.Context {
	if ctx == nil || runID == "" {
		return ctx
	}
	return context.WithValue(ctx, runKey, runID)
}

// ContextWithRunLogger attaches the logger and run marker to the context.
func ContextWithRunLogger(ctx context.Context, log pslog.Logger, runID schema.RunID) context.Context {
	ctx = pslog.ContextWithLogger(ctx, log)
	return ContextWithRun(ctx, runID)
}
