package ports

import "context"

// InvokeRequest is the payload of one external call. The engine passes it
// through untouched; routing between providers and response parsing are the
// caller's responsibility.
type InvokeRequest struct {
	NodeID  string
	Payload any
}

// InvokeResponse is the outcome of one external call. The engine consumes
// only success/failure, timing, and usage accounting.
type InvokeResponse struct {
	Payload any
	Tokens  int
}

// Invoker is the single asynchronous external-call contract consumed by
// nodes. Invoke blocks until the call resolves or ctx is cancelled;
// cancellation must propagate to the underlying call.
type Invoker interface {
	Invoke(ctx context.Context, req InvokeRequest) (*InvokeResponse, error)
}

// InvokerFunc adapts a function to the Invoker interface.
type InvokerFunc func(ctx context.Context, req InvokeRequest) (*InvokeResponse, error)

func (f InvokerFunc) Invoke(ctx context.Context, req InvokeRequest) (*InvokeResponse, error) {
	return f(ctx, req)
}
