package job

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/flowtidehq/flowtide"
)

// HandlerFunc is a type-erased job handler that accepts a raw JSON
// payload. The typed Definition[T] is converted to a HandlerFunc at
// registration time by closing over JSON decode + the typed handler.
type HandlerFunc func(ctx context.Context, payload []byte) error

// Registry maps job kinds to type-erased handler functions and the
// enqueue options their definitions declared. It is safe for
// concurrent use.
type Registry struct {
	mu       sync.RWMutex
	handlers map[Kind]HandlerFunc
	options  map[Kind]Options
}

// NewRegistry creates an empty job registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[Kind]HandlerFunc),
		options:  make(map[Kind]Options),
	}
}

// RegisterDefinition registers a typed job definition. The generic
// handler is wrapped in a closure that decodes the payload into T
// before calling the typed handler. A payload that fails to decode is
// a permanent error: retrying cannot make bad JSON parse.
//
// This is a package-level generic function because Go does not allow
// generic methods on non-generic receiver types.
func RegisterDefinition[T any](r *Registry, def *Definition[T]) {
	handler := func(ctx context.Context, payload []byte) error {
		var t T
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &t); err != nil {
				return fmt.Errorf("decode payload for job kind %q: %v: %w",
					def.Kind, err, flowtide.ErrPermanent)
			}
		}
		return def.Handler(ctx, t)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[def.Kind] = handler
	r.options[def.Kind] = def.Opts
}

// Get returns the handler for the given job kind.
// Returns false if no handler is registered.
func (r *Registry) Get(kind Kind) (HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[kind]
	return h, ok
}

// Options returns the enqueue options the definition for the given
// kind was registered with. Returns false if the kind has no
// registered definition.
func (r *Registry) Options(kind Kind) (Options, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.options[kind]
	return o, ok
}

// Validate checks that every kind in Kinds() has a handler. The engine
// calls this once at startup so a forgotten registration fails the
// process immediately instead of failing jobs at dispatch time.
func (r *Registry) Validate() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var missing []Kind
	for _, k := range Kinds() {
		if _, ok := r.handlers[k]; !ok {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("job registry missing handlers for kinds %v", missing)
	}
	return nil
}

// RegisteredKinds returns all kinds that currently have handlers.
func (r *Registry) RegisteredKinds() []Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]Kind, 0, len(r.handlers))
	for k := range r.handlers {
		kinds = append(kinds, k)
	}
	return kinds
}
