package activation

import (
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/glimte/aspect-go/contracts"
)

// Instantiator creates interceptor instances from a registered name and
// constructor arguments.
type Instantiator interface {
	Instantiate(name string, args []any) (any, error)
}

// InstantiatorFunc is a function adapter for Instantiator
type InstantiatorFunc func(name string, args []any) (any, error)

// Instantiate implements Instantiator
func (f InstantiatorFunc) Instantiate(name string, args []any) (any, error) {
	return f(name, args)
}

var errorType = reflect.TypeFor[error]()

type constructor struct {
	fn        reflect.Value // constructor function, invalid for prototypes
	prototype reflect.Type  // pointed-to struct type for prototypes
}

// Constructors is a registry of named constructors
type Constructors struct {
	entries map[string]constructor
	mu      sync.RWMutex
}

// NewConstructors creates an empty constructor registry
func NewConstructors() *Constructors {
	return &Constructors{
		entries: make(map[string]constructor),
	}
}

// RegisterConstructor registers fn under name. fn must be a function
// returning one value, or one value and an error.
func (c *Constructors) RegisterConstructor(name string, fn any) error {
	if name == "" {
		return fmt.Errorf("constructor name cannot be empty")
	}
	v := reflect.ValueOf(fn)
	if !v.IsValid() || v.Kind() != reflect.Func || v.IsNil() {
		return fmt.Errorf("constructor for %s must be a non-nil function, got %T", name, fn)
	}
	t := v.Type()
	switch {
	case t.NumOut() == 1:
	case t.NumOut() == 2 && t.Out(1) == errorType:
	default:
		return fmt.Errorf("constructor for %s must return (T) or (T, error), got %v", name, t)
	}
	return c.add(name, constructor{fn: v})
}

// RegisterPrototype registers a zero-argument interceptor whose instances are
// fresh zero values of sample's type. sample must be a pointer to a struct.
func (c *Constructors) RegisterPrototype(name string, sample any) error {
	if name == "" {
		return fmt.Errorf("constructor name cannot be empty")
	}
	t := reflect.TypeOf(sample)
	if t == nil || t.Kind() != reflect.Pointer || t.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("prototype for %s must be a pointer to a struct, got %T", name, sample)
	}
	return c.add(name, constructor{prototype: t.Elem()})
}

func (c *Constructors) add(name string, ctor constructor) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[name]; exists {
		return fmt.Errorf("constructor %s already registered", name)
	}
	c.entries[name] = ctor
	return nil
}

// IsRegistered checks if a constructor is registered under name
func (c *Constructors) IsRegistered(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	_, exists := c.entries[name]
	return exists
}

// Names returns the registered constructor names, sorted
func (c *Constructors) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.entries))
	for name := range c.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Instantiate implements Instantiator. Errors returned by the constructor
// itself are passed through unchanged.
func (c *Constructors) Instantiate(name string, args []any) (any, error) {
	c.mu.RLock()
	ctor, exists := c.entries[name]
	c.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: %s", contracts.ErrInterceptorNotRegistered, name)
	}

	if ctor.prototype != nil {
		if len(args) > 0 {
			return nil, &contracts.ConstructorError{
				Interceptor: name,
				ArgTypes:    argTypeNames(args),
				Err:         contracts.ErrNoMatchingConstructor,
			}
		}
		return reflect.New(ctor.prototype).Interface(), nil
	}

	in, ok := bindArguments(ctor.fn.Type(), args)
	if !ok {
		return nil, &contracts.ConstructorError{
			Interceptor: name,
			ArgTypes:    argTypeNames(args),
			Err:         fmt.Errorf("%w: constructor is %v", contracts.ErrNoMatchingConstructor, ctor.fn.Type()),
		}
	}

	out := ctor.fn.Call(in)
	if len(out) == 2 && !out[1].IsNil() {
		return nil, out[1].Interface().(error)
	}
	if isNilValue(out[0]) {
		return nil, nil
	}
	return out[0].Interface(), nil
}

// bindArguments converts args into call values for fn, or reports false when
// no conversion exists.
func bindArguments(fn reflect.Type, args []any) ([]reflect.Value, bool) {
	numIn := fn.NumIn()
	if fn.IsVariadic() {
		if len(args) < numIn-1 {
			return nil, false
		}
	} else if len(args) != numIn {
		return nil, false
	}

	in := make([]reflect.Value, len(args))
	for i, arg := range args {
		var param reflect.Type
		if fn.IsVariadic() && i >= numIn-1 {
			param = fn.In(numIn - 1).Elem()
		} else {
			param = fn.In(i)
		}

		v, ok := ConvertArgument(arg, param)
		if !ok {
			return nil, false
		}
		in[i] = v
	}
	return in, true
}

// ConvertArgument converts arg to a value of type param. Assignable values
// pass through, numeric values convert between numeric kinds, and nil
// becomes the zero value of nilable parameter types.
func ConvertArgument(arg any, param reflect.Type) (reflect.Value, bool) {
	if arg == nil {
		switch param.Kind() {
		case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
			return reflect.Zero(param), true
		default:
			return reflect.Value{}, false
		}
	}

	v := reflect.ValueOf(arg)
	if v.Type().AssignableTo(param) {
		return v, true
	}
	if isNumeric(v.Kind()) && isNumeric(param.Kind()) {
		return v.Convert(param), true
	}
	if v.Kind() == reflect.Slice && param.Kind() == reflect.Slice {
		out := reflect.MakeSlice(param, v.Len(), v.Len())
		for i := 0; i < v.Len(); i++ {
			elem, ok := ConvertArgument(v.Index(i).Interface(), param.Elem())
			if !ok {
				return reflect.Value{}, false
			}
			out.Index(i).Set(elem)
		}
		return out, true
	}
	return reflect.Value{}, false
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	default:
		return false
	}
}

func isNilValue(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return v.IsNil()
	default:
		return false
	}
}

func argTypeNames(args []any) []string {
	names := make([]string, len(args))
	for i, arg := range args {
		names[i] = fmt.Sprintf("%T", arg)
	}
	return names
}
