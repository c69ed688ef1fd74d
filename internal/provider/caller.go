package provider

import "context"

// Caller identifies the package on whose behalf an operation runs.
type Caller struct {
	Package string
	// Privileged callers may read and write the rows of every source package.
	Privileged bool
}

type callerKey struct{}

// WithCaller returns a copy of ctx carrying caller.
func WithCaller(ctx context.Context, caller Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

// CallerFromContext returns the caller stored in ctx by WithCaller.
func CallerFromContext(ctx context.Context) (Caller, bool) {
	caller, ok := ctx.Value(callerKey{}).(Caller)
	if !ok || caller.Package == "" {
		return Caller{}, false
	}

	return caller, true
}
