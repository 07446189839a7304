package breaker

import (
	"log/slog"
	"time"
)

// Dependency names for the external services the orchestrator calls.
// One breaker per name; handlers look them up at construction time.
const (
	DepTracker  = "tracker"  // issue-tracker REST API
	DepCodeHost = "codehost" // code-host REST API (pull requests, CI)
	DepLLM      = "llm"      // briefing/chat generation backend
	DepChat     = "chat"     // chat/notification delivery API
)

// Registry owns one Breaker per external dependency. It is constructed
// inside the owning Service and injected where needed, so tests can
// substitute their own registry without cross-test state leakage.
type Registry struct {
	breakers map[string]*Breaker
}

// RegistryOption configures a Registry.
type RegistryOption func(*registryConfig)

type registryConfig struct {
	logger   *slog.Logger
	onChange StateChangeFunc
	settings map[string]Settings
}

// WithRegistryLogger sets the logger passed to every breaker.
func WithRegistryLogger(l *slog.Logger) RegistryOption {
	return func(c *registryConfig) { c.logger = l }
}

// WithRegistryStateChange sets the transition callback for every breaker.
func WithRegistryStateChange(fn StateChangeFunc) RegistryOption {
	return func(c *registryConfig) { c.onChange = fn }
}

// WithSettings overrides the settings for one dependency.
func WithSettings(name string, s Settings) RegistryOption {
	return func(c *registryConfig) { c.settings[name] = s }
}

// NewRegistry creates breakers for all known dependencies.
//
// REST dependencies (tracker, codehost, chat) use DefaultSettings. The
// LLM dependency trips on fewer failures and stays open longer: a
// struggling model backend needs a real cooldown, and briefings can
// wait.
func NewRegistry(opts ...RegistryOption) *Registry {
	cfg := &registryConfig{
		logger: slog.Default(),
		settings: map[string]Settings{
			DepTracker:  DefaultSettings(),
			DepCodeHost: DefaultSettings(),
			DepChat:     DefaultSettings(),
			DepLLM: {
				FailureThreshold: 3,
				SuccessThreshold: 2,
				VolumeThreshold:  5,
				Timeout:          2 * time.Minute,
			},
		},
	}
	for _, opt := range opts {
		opt(cfg)
	}

	r := &Registry{breakers: make(map[string]*Breaker, len(cfg.settings))}
	for name, s := range cfg.settings {
		bopts := []Option{WithLogger(cfg.logger)}
		if cfg.onChange != nil {
			bopts = append(bopts, WithStateChange(cfg.onChange))
		}
		r.breakers[name] = New(name, s, bopts...)
	}
	return r
}

// Get returns the breaker for the named dependency, or nil if unknown.
func (r *Registry) Get(name string) *Breaker {
	return r.breakers[name]
}

// All returns every breaker, for health and metrics surfaces.
func (r *Registry) All() []*Breaker {
	out := make([]*Breaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		out = append(out, b)
	}
	return out
}
