package repository

import "fmt"

// Factory creates empty entity instances for hydration.
type Factory[T Entity] interface {
	Create() T
}

// FactoryFunc adapts a plain constructor to Factory.
type FactoryFunc[T Entity] func() T

// Create calls f
func (f FactoryFunc[T]) Create() T {
	return f()
}

// Provider resolves named services, typically a DI container.
type Provider interface {
	Resolve(name string) (any, error)
}

// resolver is a Factory that can explain why it produced no entity.
type resolver[T Entity] interface {
	Resolve() (T, error)
}

// ContainerFactory builds entities by resolving them from a Provider on
// every Create. Resolution failures produce a nil entity; New resolves a
// sample up front and reports the failure as a configuration error.
type ContainerFactory[T Entity] struct {
	provider Provider
	name     string
}

// NewContainerFactory creates a factory resolving name from provider
func NewContainerFactory[T Entity](provider Provider, name string) *ContainerFactory[T] {
	return &ContainerFactory[T]{provider: provider, name: name}
}

// Create resolves a fresh entity from the provider
func (f *ContainerFactory[T]) Create() T {
	entity, _ := f.Resolve()
	return entity
}

// Resolve is Create with the resolution error exposed
func (f *ContainerFactory[T]) Resolve() (T, error) {
	var zero T
	if f.provider == nil {
		return zero, &ConfigurationError{Entity: f.name, Reason: "no provider"}
	}
	resolved, err := f.provider.Resolve(f.name)
	if err != nil {
		return zero, &ConfigurationError{Entity: f.name, Reason: fmt.Sprintf("provider failed: %v", err)}
	}
	entity, ok := resolved.(T)
	if !ok {
		return zero, &ConfigurationError{Entity: f.name, Reason: fmt.Sprintf("provider returned %T", resolved)}
	}
	return entity, nil
}
