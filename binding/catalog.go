package binding

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/glimte/aspect-go/activation"
	"github.com/glimte/aspect-go/contracts"
	"github.com/glimte/aspect-go/logging"
)

// Catalog holds binding declarations per type
type Catalog struct {
	instantiator activation.Instantiator
	logger       logging.Logger
	lenient      bool
	types        map[reflect.Type]*TypeDeclaration
	mu           sync.RWMutex
}

// Option configures a Catalog
type Option func(*Catalog)

// WithLogger sets the logger used for warnings
func WithLogger(logger logging.Logger) Option {
	return func(c *Catalog) {
		c.logger = logger
	}
}

// WithLenient makes Discover skip bindings whose interceptor instantiates as
// nil instead of failing. Each skipped binding is logged as a warning.
func WithLenient() Option {
	return func(c *Catalog) {
		c.lenient = true
	}
}

// NewCatalog creates an empty catalog that instantiates interceptors with instantiator
func NewCatalog(instantiator activation.Instantiator, opts ...Option) *Catalog {
	c := &Catalog{
		instantiator: instantiator,
		logger:       logging.Nop(),
		types:        make(map[reflect.Type]*TypeDeclaration),
	}

	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.OrNop(c.logger)

	return c
}

// Type returns the declaration for t, creating it on first use. Struct types
// are normalised to their pointer type.
func (c *Catalog) Type(t reflect.Type) *TypeDeclaration {
	if n, err := Normalize(t); err == nil {
		t = n
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	decl, exists := c.types[t]
	if !exists {
		decl = &TypeDeclaration{
			catalog: c,
			typ:     t,
			methods: make(map[string]*MethodDeclaration),
		}
		c.types[t] = decl
	}
	return decl
}

// Declare returns the declaration for T
func Declare[T any](c *Catalog) *TypeDeclaration {
	return c.Type(reflect.TypeFor[T]())
}

// Types returns every declared type
func (c *Catalog) Types() []reflect.Type {
	c.mu.RLock()
	defer c.mu.RUnlock()

	types := make([]reflect.Type, 0, len(c.types))
	for t := range c.types {
		types = append(types, t)
	}
	return types
}

// Annotations returns the annotations declared on the method named by id
func (c *Catalog) Annotations(id contracts.MethodIdentity) []any {
	if id.DeclaringType == nil {
		return nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	decl, exists := c.types[id.DeclaringType]
	if !exists {
		return nil
	}
	method, exists := decl.methods[id.Name]
	if !exists || len(method.annotations) == 0 {
		return nil
	}

	out := make([]any, len(method.annotations))
	copy(out, method.annotations)
	return out
}

// Discovery is the instantiated binding set of one type
type Discovery struct {
	Type reflect.Type

	// Methods lists the eligible methods of Type in declaration order
	Methods []contracts.MethodIdentity

	// TypeLevel holds the interceptors bound to the type itself
	TypeLevel []contracts.BoundInterceptor

	// MethodLevel holds, per method, the interceptors bound directly to it
	MethodLevel map[contracts.MethodIdentity][]contracts.BoundInterceptor
}

// Discover instantiates every binding declared on t and its eligible methods
// and validates the method annotations.
func (c *Catalog) Discover(t reflect.Type) (*Discovery, error) {
	t, err := Normalize(t)
	if err != nil {
		return nil, err
	}

	methods, err := EligibleMethods(t)
	if err != nil {
		return nil, err
	}

	d := &Discovery{
		Type:        t,
		Methods:     methods,
		MethodLevel: make(map[contracts.MethodIdentity][]contracts.BoundInterceptor),
	}

	typeBindings, methodDecls := c.snapshot(t)

	d.TypeLevel, err = c.instantiateAll(t, "", typeBindings)
	if err != nil {
		return nil, err
	}

	byName := make(map[string]contracts.MethodIdentity, len(methods))
	for _, m := range methods {
		byName[m.Name] = m
	}

	for _, decl := range methodDecls {
		id, eligible := byName[decl.name]
		if !eligible {
			return nil, &contracts.BindingError{
				Op:     "declare",
				Type:   contracts.TypeName(t),
				Method: decl.name,
				Err:    contracts.ErrUnknownMethod,
			}
		}

		if err := validateAnnotations(decl.annotations); err != nil {
			return nil, &contracts.BindingError{
				Op:     "annotate",
				Type:   contracts.TypeName(t),
				Method: decl.name,
				Err:    err,
			}
		}

		bound, err := c.instantiateAll(t, decl.name, decl.bindings)
		if err != nil {
			return nil, err
		}
		if len(bound) > 0 {
			d.MethodLevel[id] = bound
		}
	}

	return d, nil
}

// snapshot copies the declarations of t under the read lock
func (c *Catalog) snapshot(t reflect.Type) ([]contracts.Binding, []MethodDeclaration) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	decl, exists := c.types[t]
	if !exists {
		return nil, nil
	}

	bindings := append([]contracts.Binding(nil), decl.bindings...)
	methods := make([]MethodDeclaration, 0, len(decl.order))
	for _, name := range decl.order {
		m := decl.methods[name]
		methods = append(methods, MethodDeclaration{
			name:        m.name,
			bindings:    append([]contracts.Binding(nil), m.bindings...),
			annotations: append([]any(nil), m.annotations...),
		})
	}
	return bindings, methods
}

func (c *Catalog) instantiateAll(t reflect.Type, method string, bindings []contracts.Binding) ([]contracts.BoundInterceptor, error) {
	var bound []contracts.BoundInterceptor

	for _, b := range bindings {
		if b.Interceptor == "" {
			continue
		}

		instance, err := c.instantiator.Instantiate(b.Interceptor, b.Args)
		if err != nil {
			return nil, err
		}

		if instance == nil {
			if c.lenient {
				logging.Writef(c.logger, logging.LevelWarn,
					"interceptor %q bound on %s%s instantiated as nil; binding skipped",
					b.Interceptor, contracts.TypeName(t), methodSuffix(method))
				continue
			}
			return nil, &contracts.BindingError{
				Op:          "instantiate",
				Type:        contracts.TypeName(t),
				Method:      method,
				Interceptor: b.Interceptor,
				Err:         contracts.ErrNilInterceptor,
			}
		}

		if !contracts.IsInterceptor(instance) {
			return nil, &contracts.BindingError{
				Op:          "instantiate",
				Type:        contracts.TypeName(t),
				Method:      method,
				Interceptor: b.Interceptor,
				Err:         fmt.Errorf("%w: %T", contracts.ErrNotAnInterceptor, instance),
			}
		}

		bound = contracts.AppendUnique(bound, contracts.BoundInterceptor{
			Priority:    b.Priority,
			Interceptor: instance,
		})
	}

	return bound, nil
}

func validateAnnotations(annotations []any) error {
	timings := 0
	for _, a := range annotations {
		switch p := a.(type) {
		case *contracts.HandleError:
			if p == nil || p.ErrorType == nil {
				return fmt.Errorf("%w: error policy without error type", contracts.ErrInvalidPolicy)
			}
		case *contracts.WriteLog:
			if p == nil {
				return fmt.Errorf("%w: nil log policy", contracts.ErrInvalidPolicy)
			}
		case *contracts.NoteElapsedTime:
			if p == nil {
				return fmt.Errorf("%w: nil timing policy", contracts.ErrInvalidPolicy)
			}
			timings++
		}
	}
	if timings > 1 {
		return contracts.ErrDuplicateTiming
	}
	return nil
}

func methodSuffix(method string) string {
	if method == "" {
		return ""
	}
	return "." + method
}
