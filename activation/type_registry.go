package activation

import (
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/glimte/aspect-go/contracts"
)

// TypeRegistry manages name <-> type registrations
type TypeRegistry struct {
	types map[string]reflect.Type
	names map[reflect.Type]string
	mu    sync.RWMutex
}

// NewTypeRegistry creates a new type registry
func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{
		types: make(map[string]reflect.Type),
		names: make(map[reflect.Type]string),
	}
}

// Register registers t under typeName
func (r *TypeRegistry) Register(typeName string, t reflect.Type) error {
	if typeName == "" {
		return fmt.Errorf("type name cannot be empty")
	}
	if t == nil {
		return fmt.Errorf("type cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, exists := r.types[typeName]; exists {
		if existing == t {
			return nil
		}
		return fmt.Errorf("type name %s already registered to %v", typeName, existing)
	}

	r.types[typeName] = t
	r.names[t] = typeName
	return nil
}

// RegisterType registers t under its package-qualified name
func (r *TypeRegistry) RegisterType(t reflect.Type) error {
	if t == nil {
		return fmt.Errorf("type cannot be nil")
	}

	named := t
	if named.Kind() == reflect.Pointer {
		named = named.Elem()
	}
	if named.Name() == "" {
		return fmt.Errorf("cannot determine type name for %v", t)
	}

	return r.Register(contracts.TypeName(t), t)
}

// RegisterFor registers T under typeName. Works for interface types.
func RegisterFor[T any](r *TypeRegistry, typeName string) error {
	return r.Register(typeName, reflect.TypeFor[T]())
}

// Get retrieves the type registered under typeName
func (r *TypeRegistry) Get(typeName string) (reflect.Type, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, exists := r.types[typeName]
	if !exists {
		return nil, fmt.Errorf("type %s not registered", typeName)
	}
	return t, nil
}

// GetTypeName returns the name t was registered under
func (r *TypeRegistry) GetTypeName(t reflect.Type) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	name, exists := r.names[t]
	if !exists {
		return "", fmt.Errorf("type %v not registered", t)
	}
	return name, nil
}

// IsRegistered checks if a name is registered
func (r *TypeRegistry) IsRegistered(typeName string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.types[typeName]
	return exists
}

// ListTypes returns all registered type names, sorted
func (r *TypeRegistry) ListTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.types))
	for typeName := range r.types {
		types = append(types, typeName)
	}
	sort.Strings(types)
	return types
}
