package interceptors

import (
	"reflect"

	"github.com/glimte/aspect-go/binding"
	"github.com/glimte/aspect-go/contracts"
)

// Discoverer yields the instantiated bindings of a type. *binding.Catalog implements it.
type Discoverer interface {
	Discover(t reflect.Type) (*binding.Discovery, error)
}

// Registry maps every intercepted method to its interceptors, ascending by
// priority. It is immutable once resolved and safe for concurrent use.
type Registry struct {
	entries map[contracts.MethodIdentity][]contracts.BoundInterceptor
	methods []contracts.MethodIdentity
}

// Resolve builds the registry for t and any additional interfaces proxied
// alongside it. Each type is resolved on its own and the results are unioned;
// method identities of different declaring types stay distinct.
func Resolve(d Discoverer, t reflect.Type, additional ...reflect.Type) (*Registry, error) {
	r := &Registry{
		entries: make(map[contracts.MethodIdentity][]contracts.BoundInterceptor),
	}

	seen := make(map[reflect.Type]bool)
	for _, typ := range append([]reflect.Type{t}, additional...) {
		normalized, err := binding.Normalize(typ)
		if err != nil {
			return nil, err
		}
		if seen[normalized] {
			continue
		}
		seen[normalized] = true

		if err := r.resolveType(d, normalized); err != nil {
			return nil, err
		}
	}

	return r, nil
}

func (r *Registry) resolveType(d Discoverer, t reflect.Type) error {
	disc, err := d.Discover(t)
	if err != nil {
		return err
	}

	for _, method := range disc.Methods {
		var list []contracts.BoundInterceptor
		if methodLevel, ok := disc.MethodLevel[method]; ok && len(methodLevel) > 0 {
			list = append(list, methodLevel...)
			list = contracts.AppendUnique(list, disc.TypeLevel...)
		} else {
			list = append(list, disc.TypeLevel...)
		}
		contracts.SortByPriority(list)

		if _, exists := r.entries[method]; !exists {
			r.methods = append(r.methods, method)
		}
		r.entries[method] = list
	}
	return nil
}

// For returns a copy of the interceptors bound to method
func (r *Registry) For(method contracts.MethodIdentity) ([]contracts.BoundInterceptor, bool) {
	list, exists := r.entries[method]
	if !exists {
		return nil, false
	}
	return append([]contracts.BoundInterceptor(nil), list...), true
}

// Lookup merges the lists of every distinct identity in methods, keeping
// ascending priority order across all of them.
func (r *Registry) Lookup(methods ...contracts.MethodIdentity) []contracts.BoundInterceptor {
	var merged []contracts.BoundInterceptor
	seen := make(map[contracts.MethodIdentity]bool, len(methods))

	for _, m := range methods {
		if m.IsZero() || seen[m] {
			continue
		}
		seen[m] = true
		merged = append(merged, r.entries[m]...)
	}

	contracts.SortByPriority(merged)
	return merged
}

// Methods returns the intercepted methods in resolution order
func (r *Registry) Methods() []contracts.MethodIdentity {
	return append([]contracts.MethodIdentity(nil), r.methods...)
}

// Len returns the number of intercepted methods
func (r *Registry) Len() int {
	return len(r.methods)
}

// Befores filters list to before interceptors, preserving order
func Befores(list []contracts.BoundInterceptor) []contracts.BeforeInterceptor {
	var out []contracts.BeforeInterceptor
	for _, b := range list {
		if i, ok := b.Interceptor.(contracts.BeforeInterceptor); ok {
			out = append(out, i)
		}
	}
	return out
}

// Afters filters list to after interceptors, preserving order
func Afters(list []contracts.BoundInterceptor) []contracts.AfterInterceptor {
	var out []contracts.AfterInterceptor
	for _, b := range list {
		if i, ok := b.Interceptor.(contracts.AfterInterceptor); ok {
			out = append(out, i)
		}
	}
	return out
}
