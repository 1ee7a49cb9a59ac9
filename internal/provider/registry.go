// SPDX-License-Identifier: AGPL-3.0-only
package provider

import (
	"context"
	"sync"

	"github.com/jolks/pipetask/internal/errors"
	"github.com/jolks/pipetask/internal/logging"
)

// Factory constructs a provider instance from a configuration
type Factory func(cfg Config, notify Notify) Provider

// Registry discovers, catalogs and exclusively activates providers.
// At most one provider instance is active at a time: activating a new one
// always stops the previous one first.
type Registry struct {
	notify Notify
	logger *logging.Logger

	// activateMu serializes the whole stop-create-start-record sequence
	// so two activations cannot interleave and leak a running provider
	activateMu sync.Mutex

	mu        sync.Mutex
	factories map[string]Factory
	order     []string
	active    Provider
}

// NewRegistry creates an empty registry. notify receives provider lifecycle
// events from every instance the registry constructs.
func NewRegistry(notify Notify, logger *logging.Logger) *Registry {
	if logger == nil {
		logger = logging.GetDefaultLogger()
	}
	return &Registry{
		notify:    notify,
		logger:    logger,
		factories: make(map[string]Factory),
	}
}

// Register adds a named provider constructor. Re-registering a name
// replaces its factory.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[name]; !exists {
		r.order = append(r.order, name)
	}
	r.factories[name] = f
}

// Discover probes each known provider kind and registers those whose
// command resolves on the host. The null provider is registered
// unconditionally so at least one provider is always present.
func (r *Registry) Discover() {
	for _, kind := range []string{KindClaude, KindOllama, KindOpenAI} {
		if !IsAvailable(kindSpecs[kind].command) {
			r.logger.Debugf("provider %s not available on this host", kind)
			continue
		}
		switch kind {
		case KindClaude:
			r.Register(KindClaude, NewClaudeProvider)
		case KindOllama:
			r.Register(KindOllama, NewOllamaProvider)
		case KindOpenAI:
			r.Register(KindOpenAI, NewOpenAIProvider)
		}
		r.logger.Infof("discovered provider %s", kind)
	}
	r.Register(KindNull, NewNullProvider)
}

// Available returns the registered provider names in registration order
func (r *Registry) Available() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// Create constructs a new, not yet started instance of a registered provider
func (r *Registry) Create(name string, cfg Config) (Provider, error) {
	r.mu.Lock()
	f, ok := r.factories[name]
	r.mu.Unlock()
	if !ok {
		return nil, errors.UnknownProvider(name)
	}
	return f(cfg, r.notify), nil
}

// Activate constructs and starts the named provider and records it as the
// sole active instance. A previously active provider is stopped first;
// stop failures never block activation. On any failure there is no active
// provider. Concurrent calls run one at a time.
func (r *Registry) Activate(ctx context.Context, name string, cfg Config) (Provider, error) {
	r.activateMu.Lock()
	defer r.activateMu.Unlock()

	r.mu.Lock()
	prev := r.active
	r.active = nil
	r.mu.Unlock()

	if prev != nil {
		if err := prev.Stop(); err != nil {
			r.logger.Warnf("stopping previous provider %s: %v", prev.Name(), err)
		}
	}

	p, err := r.Create(name, cfg)
	if err != nil {
		return nil, err
	}
	if err := p.Start(ctx); err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.active = p
	r.mu.Unlock()

	r.logger.Infof("activated provider %s", name)
	return p, nil
}

// Active returns the currently active provider
func (r *Registry) Active() (Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == nil {
		return nil, errors.NoActiveProvider()
	}
	return r.active, nil
}

// ActiveName returns the active provider's name, or empty when none
func (r *Registry) ActiveName() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == nil {
		return ""
	}
	return r.active.Name()
}

// Cleanup stops the active provider if any and clears the reference.
// Safe to call repeatedly, including concurrently with Activate.
func (r *Registry) Cleanup() {
	r.activateMu.Lock()
	defer r.activateMu.Unlock()

	r.mu.Lock()
	p := r.active
	r.active = nil
	r.mu.Unlock()

	if p != nil {
		if err := p.Stop(); err != nil {
			r.logger.Warnf("stopping provider %s: %v", p.Name(), err)
		}
	}
}
