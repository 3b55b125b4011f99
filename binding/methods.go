package binding

import (
	"fmt"
	"reflect"

	"github.com/glimte/aspect-go/contracts"
)

// Normalize maps t to the type whose method set is proxied: interfaces stay
// as they are, structs become pointers to structs.
func Normalize(t reflect.Type) (reflect.Type, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: nil type", contracts.ErrInvalidType)
	}

	switch t.Kind() {
	case reflect.Interface:
		return t, nil
	case reflect.Struct:
		return reflect.PointerTo(t), nil
	case reflect.Pointer:
		if t.Elem().Kind() == reflect.Struct {
			return t, nil
		}
	}
	return nil, fmt.Errorf("%w: %v is neither an interface nor a struct", contracts.ErrInvalidType, t)
}

// EligibleMethods lists the interceptable methods of t. Every exported method
// of an interface is eligible; for structs, the exported methods of the
// pointer method set are.
func EligibleMethods(t reflect.Type) ([]contracts.MethodIdentity, error) {
	t, err := Normalize(t)
	if err != nil {
		return nil, err
	}

	methods := make([]contracts.MethodIdentity, 0, t.NumMethod())
	for i := 0; i < t.NumMethod(); i++ {
		m := t.Method(i)
		if !m.IsExported() {
			continue
		}
		methods = append(methods, contracts.NewMethodIdentity(t, m))
	}
	return methods, nil
}

// MethodByName returns the identity of the named eligible method of t
func MethodByName(t reflect.Type, name string) (contracts.MethodIdentity, bool) {
	t, err := Normalize(t)
	if err != nil {
		return contracts.MethodIdentity{}, false
	}
	m, ok := t.MethodByName(name)
	if !ok || !m.IsExported() {
		return contracts.MethodIdentity{}, false
	}
	return contracts.NewMethodIdentity(t, m), true
}
