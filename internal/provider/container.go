package provider

import (
	"encoding/json"
	"fmt"
	"iter"
)

// Container is a total map from Provider to T. Every provider always holds a value;
// the zero Container holds T's zero value for each of them.
type Container[T any] struct {
	inner [Count]T
}

// Of builds a container from one value per provider, in ordinal order.
func Of[T any](solend, port, jet T) Container[T] {
	return Container[T]{inner: [Count]T{solend, port, jet}}
}

// Get returns the value held for p. An unknown provider is a programming error.
func (c Container[T]) Get(p Provider) T {
	mustValid(p)
	return c.inner[p]
}

func (c *Container[T]) Set(p Provider, v T) {
	mustValid(p)
	c.inner[p] = v
}

// Ptr returns a pointer to the slot for p, for in-place updates.
func (c *Container[T]) Ptr(p Provider) *T {
	mustValid(p)
	return &c.inner[p]
}

func (c Container[T]) Len() int {
	return Count
}

// All yields (provider, value) pairs in provider order.
func (c Container[T]) All() iter.Seq2[Provider, T] {
	return func(yield func(Provider, T) bool) {
		for p := range Providers() {
			if !yield(p, c.inner[p]) {
				return
			}
		}
	}
}

// Values returns the values in provider order.
func (c Container[T]) Values() []T {
	out := make([]T, Count)
	copy(out, c.inner[:])
	return out
}

// Map applies f to every entry and collects the results into a new container.
func Map[T, U any](c Container[T], f func(Provider, T) U) Container[U] {
	var out Container[U]
	for p, v := range c.All() {
		out.inner[p] = f(p, v)
	}
	return out
}

// TryMap is Map for fallible transforms. It stops at the first error and returns it as is.
func TryMap[T, U any](c Container[T], f func(Provider, T) (U, error)) (Container[U], error) {
	var out Container[U]
	for p, v := range c.All() {
		u, err := f(p, v)
		if err != nil {
			return Container[U]{}, err
		}
		out.inner[p] = u
	}
	return out, nil
}

// Fold reduces the container in provider order.
func Fold[T, A any](c Container[T], init A, f func(A, Provider, T) A) A {
	acc := init
	for p, v := range c.All() {
		acc = f(acc, p, v)
	}
	return acc
}

// TryFold is Fold for fallible reducers.
func TryFold[T, A any](c Container[T], init A, f func(A, Provider, T) (A, error)) (A, error) {
	acc := init
	for p, v := range c.All() {
		next, err := f(acc, p, v)
		if err != nil {
			return acc, err
		}
		acc = next
	}
	return acc, nil
}

// FromPairs builds a container from (provider, value) pairs. Providers missing from
// pairs keep T's zero value; when a provider repeats, the later value wins.
func FromPairs[T any](pairs iter.Seq2[Provider, T]) Container[T] {
	var out Container[T]
	for p, v := range pairs {
		out.Set(p, v)
	}
	return out
}

// MarshalJSON encodes the container as an object keyed by provider name.
func (c Container[T]) MarshalJSON() ([]byte, error) {
	m := make(map[string]T, Count)
	for p, v := range c.All() {
		m[p.String()] = v
	}
	return json.Marshal(m)
}

func (c *Container[T]) UnmarshalJSON(data []byte) error {
	var m map[string]T
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	var out Container[T]
	for name, v := range m {
		p, err := ParseProvider(name)
		if err != nil {
			return err
		}
		out.inner[p] = v
	}
	*c = out
	return nil
}

func mustValid(p Provider) {
	if !p.Valid() {
		panic(fmt.Sprintf("missing index %d in provider container", uint8(p)))
	}
}
