package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/jonwraymond/stageflow/resilience"
	"github.com/jonwraymond/stageflow/workflow"
)

// FallbackFunc produces a substitute stage result when the guarded stage
// fails. It matches the coordinator's fallback operation shape.
type FallbackFunc = resilience.Operation[workflow.State, workflow.State]

// Registry binds the names a config file uses to the Go functions behind
// them. Stage, route, and fallback functions cannot be expressed in YAML;
// the file names them and the embedding program registers the
// implementations before Build runs.
type Registry struct {
	mu        sync.RWMutex
	stages    map[string]workflow.StageFunc
	routes    map[string]workflow.RouteFunc
	fallbacks map[string]FallbackFunc
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		stages:    make(map[string]workflow.StageFunc),
		routes:    make(map[string]workflow.RouteFunc),
		fallbacks: make(map[string]FallbackFunc),
	}
}

// RegisterStage binds a stage key to its implementation. Registering a
// key twice is an error so wiring mistakes surface at startup.
func (r *Registry) RegisterStage(key string, fn workflow.StageFunc) error {
	if key == "" {
		return errors.New("config: stage key must not be empty")
	}
	if fn == nil {
		return fmt.Errorf("config: stage %q function must not be nil", key)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.stages[key]; exists {
		return fmt.Errorf("config: stage %q is already registered", key)
	}
	r.stages[key] = fn
	return nil
}

// RegisterRoute binds a route name to its implementation.
func (r *Registry) RegisterRoute(name string, fn workflow.RouteFunc) error {
	if name == "" {
		return errors.New("config: route name must not be empty")
	}
	if fn == nil {
		return fmt.Errorf("config: route %q function must not be nil", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.routes[name]; exists {
		return fmt.Errorf("config: route %q is already registered", name)
	}
	r.routes[name] = fn
	return nil
}

// RegisterFallback binds a fallback name to its implementation. The name
// "last_good" is reserved for the coordinator's cached results.
func (r *Registry) RegisterFallback(name string, fn FallbackFunc) error {
	if name == "" {
		return errors.New("config: fallback name must not be empty")
	}
	if name == FallbackLastGood {
		return fmt.Errorf("config: fallback name %q is reserved", FallbackLastGood)
	}
	if fn == nil {
		return fmt.Errorf("config: fallback %q function must not be nil", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.fallbacks[name]; exists {
		return fmt.Errorf("config: fallback %q is already registered", name)
	}
	r.fallbacks[name] = fn
	return nil
}

func (r *Registry) stage(key string) (workflow.StageFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.stages[key]
	return fn, ok
}

func (r *Registry) route(name string) (workflow.RouteFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.routes[name]
	return fn, ok
}

func (r *Registry) fallback(name string) (FallbackFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.fallbacks[name]
	return fn, ok
}
