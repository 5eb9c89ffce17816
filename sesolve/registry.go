// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sesolve

import (
	"fmt"
	"maps"
	"slices"
	"sync"
)

// Names of the built-in strategies.
const (
	// NewtonBacktrackName selects Newton-Raphson with a backtracking line search.
	NewtonBacktrackName = "newton_raphson_backtrack"
	// FixedPointName selects fixed-point iteration on the update rule.
	FixedPointName      = "fixed_point"
)

// Factory creates a fresh strategy for one solve.
type Factory func(relTol, absTol float64, maxIter int) Strategy

// Registry maps strategy names to factories. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns a registry holding the built-in strategies.
func NewRegistry() *Registry {
	return &Registry{factories: map[string]Factory{
		NewtonBacktrackName: NewNewtonBacktrack,
		FixedPointName:      NewFixedPoint,
	}}
}

var defaultRegistry = NewRegistry()

// Default returns the process-wide registry used when Options.Registry is nil.
func Default() *Registry { return defaultRegistry }

// Register adds a factory under name. Names are unique; re-registering one fails.
func (r *Registry) Register(name string, f Factory) error {
	if name == "" || f == nil {
		return fmt.Errorf("%w: strategy needs a name and a factory", ErrBadArgument)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.factories == nil {
		r.factories = make(map[string]Factory)
	}
	if _, dup := r.factories[name]; dup {
		return fmt.Errorf("%w: strategy %q is already registered", ErrBadArgument, name)
	}
	r.factories[name] = f
	return nil
}

// Lookup returns the factory registered under name.
func (r *Registry) Lookup(name string) (Factory, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q was given as a strategy name, but no strategy with that name could be found",
			ErrUnknownStrategy, name)
	}
	return f, nil
}

// Create looks up name and builds a strategy with the given settings.
func (r *Registry) Create(name string, relTol, absTol float64, maxIter int) (Strategy, error) {
	f, err := r.Lookup(name)
	if err != nil {
		return nil, err
	}
	s := f(relTol, absTol, maxIter)
	if s == nil {
		return nil, fmt.Errorf("%w: factory for strategy %q returned nil", ErrBadArgument, name)
	}
	return s, nil
}

// Names lists the registered strategies in lexical order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.factories))
}

// Register adds a strategy to the default registry.
func Register(name string, f Factory) error { return defaultRegistry.Register(name, f) }

// Strategies lists the strategies of the default registry.
func Strategies() []string { return defaultRegistry.Names() }
