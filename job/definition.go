package job

import "context"

// Definition is a typed job definition with a handler function.
// T is the payload type (must be JSON-serializable).
type Definition[T any] struct {
	// Kind is the job kind this definition handles.
	Kind Kind

	// Handler is the function that processes the decoded payload.
	Handler func(ctx context.Context, payload T) error

	// Opts configures attempts, queue, and timeout.
	Opts Options
}

// NewDefinition creates a typed job definition.
func NewDefinition[T any](kind Kind, handler func(ctx context.Context, payload T) error, opts ...Option) *Definition[T] {
	def := &Definition[T]{
		Kind:    kind,
		Handler: handler,
		Opts:    DefaultOptions(),
	}
	for _, opt := range opts {
		opt(&def.Opts)
	}
	return def
}
