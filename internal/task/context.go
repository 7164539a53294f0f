package task

import "context"

type taskKey struct{}

type payloadKey struct{}

func withTask(ctx context.Context, t *Task) context.Context {
	return context.WithValue(ctx, taskKey{}, t)
}

// FromContext returns the task executing in this context, or nil.
func FromContext(ctx context.Context) *Task {
	if t, ok := ctx.Value(taskKey{}).(*Task); ok {
		return t
	}
	return nil
}

// Cancelled is the cooperative cancellation check work bodies call
// voluntarily, typically before or after a suspension point. It reports the
// advisory flag of the context's task; false when no task is attached.
func Cancelled(ctx context.Context) bool {
	if t := FromContext(ctx); t != nil {
		return t.IsCancelled()
	}
	return false
}

// CheckCancelled returns ErrCancelled when the context's task has been
// cancelled, letting work turn the advisory flag into its outcome with a
// single early return.
func CheckCancelled(ctx context.Context) error {
	if Cancelled(ctx) {
		return ErrCancelled
	}
	return nil
}

func withPayload(ctx context.Context, payload any) context.Context {
	if payload == nil {
		return ctx
	}
	return context.WithValue(ctx, payloadKey{}, payload)
}

// PayloadFromContext returns the payload the task was spawned with, or nil.
func PayloadFromContext(ctx context.Context) any {
	return ctx.Value(payloadKey{})
}
