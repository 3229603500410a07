package toolexecutor

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type execContextKey struct{}

// ExecutionContext provides runtime information for tool execution
type ExecutionContext struct {
	SessionID string
	CallID    string
	Timeout   time.Duration
}

// logger returns the global logger tagged with the ids of this call
func (e *ExecutionContext) logger() zerolog.Logger {
	if e == nil {
		return log.Logger
	}

	c := log.Logger.With()
	if e.SessionID != "" {
		c = c.Str("session_id", e.SessionID)
	}
	if e.CallID != "" {
		c = c.Str("tool_call_id", e.CallID)
	}
	return c.Logger()
}

func withExecContext(ctx context.Context, execCtx *ExecutionContext) context.Context {
	if execCtx == nil {
		return ctx
	}
	return context.WithValue(ctx, execContextKey{}, execCtx)
}

// ExecContextFromContext returns the execution context of the running tool
// call, or nil outside one.
func ExecContextFromContext(ctx context.Context) *ExecutionContext {
	if ctx == nil {
		return nil
	}
	execCtx, _ := ctx.Value(execContextKey{}).(*ExecutionContext)
	return execCtx
}

// Logger returns the logger a tool handler should write to. Lines carry the
// session and tool call ids of the call in ctx.
func Logger(ctx context.Context) zerolog.Logger {
	return ExecContextFromContext(ctx).logger()
}
