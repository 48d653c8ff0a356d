package core

import (
	"context"
	"time"
)

// Logger is the minimal structured logging surface the service emits to.
// Implementations receive alternating key/value pairs after the message.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// MetricsRecorder aggregates per-operation outcomes.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// Tracer opens a span per service operation.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// TraceSpan terminates a started span.
type TraceSpan interface {
	End(err error)
}

// Notifier receives out-of-band alerts. The engine calls it after every
// committed override mutation; delivery (mail, chat) is an external
// collaborator's concern.
type Notifier interface {
	NotifyOverride(ctx context.Context, alert OverrideAlert)
}

// OverrideAlert names the actor, action, and entity of an admin-override
// mutation that was accepted despite existing downstream data.
type OverrideAlert struct {
	CaseID    string      `json:"case_id"`
	Action    AuditAction `json:"action"`
	Kind      StageKind   `json:"kind"`
	RecordID  string      `json:"record_id"`
	Actor     string      `json:"actor"`
	ActorRole Role        `json:"actor_role"`
	Reason    string      `json:"reason"`
}

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() time.Time

// Now invokes the wrapped function.
func (f ClockFunc) Now() time.Time { return f() }

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

type noopMetricsRecorder struct{}

func (noopMetricsRecorder) Observe(context.Context, string, bool, time.Duration) {}

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End(error) {}

type noopNotifier struct{}

func (noopNotifier) NotifyOverride(context.Context, OverrideAlert) {}

// LogNotifier routes override alerts to the service logger. Deployments that
// deliver real notifications supply their own Notifier.
type LogNotifier struct {
	Logger Logger
}

// NotifyOverride logs the alert at warn level.
func (n LogNotifier) NotifyOverride(_ context.Context, alert OverrideAlert) {
	if n.Logger == nil {
		return
	}
	n.Logger.Warn("admin override mutation accepted",
		"case_id", alert.CaseID,
		"action", string(alert.Action),
		"kind", string(alert.Kind),
		"record_id", alert.RecordID,
		"actor", alert.Actor,
		"actor_role", string(alert.ActorRole),
		"reason", alert.Reason,
	)
}
