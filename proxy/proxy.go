package proxy

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/glimte/aspect-go/activation"
	"github.com/glimte/aspect-go/binding"
	"github.com/glimte/aspect-go/contracts"
)

// Dispatcher runs one intercepted call. *dispatch.Dispatcher implements it.
type Dispatcher interface {
	Intercept(call contracts.Call) error
}

type proxiedMethod struct {
	id      contracts.MethodIdentity
	aliases []contracts.MethodIdentity // same name on additional interfaces
	fnType  reflect.Type               // without receiver
	target  contracts.MethodIdentity
	bound   reflect.Value // target method value, invalid without target
}

// Proxy routes calls of a type's eligible methods through a Dispatcher. It is
// immutable after New and safe for concurrent use.
type Proxy struct {
	typ        reflect.Type
	types      []reflect.Type
	target     reflect.Value
	dispatcher Dispatcher
	methods    map[string]*proxiedMethod
}

// Option configures a Proxy
type Option func(*settings)

type settings struct {
	target     any
	additional []reflect.Type
}

// WithTarget forwards real calls to target, which must implement every proxied type
func WithTarget(target any) Option {
	return func(s *settings) {
		s.target = target
	}
}

// WithAdditionalInterfaces proxies the methods of further interfaces alongside the primary type
func WithAdditionalInterfaces(types ...reflect.Type) Option {
	return func(s *settings) {
		s.additional = append(s.additional, types...)
	}
}

// New creates a proxy for typ. Without WithTarget the proxy is a pure
// stand-in: return values must come from interceptors or error policies.
func New(typ reflect.Type, dispatcher Dispatcher, opts ...Option) (*Proxy, error) {
	var s settings
	for _, opt := range opts {
		opt(&s)
	}

	primary, err := binding.Normalize(typ)
	if err != nil {
		return nil, &contracts.ProxyError{Op: "create", Type: fmt.Sprint(typ), Err: err}
	}
	if dispatcher == nil {
		return nil, &contracts.ProxyError{Op: "create", Type: contracts.TypeName(primary), Err: fmt.Errorf("dispatcher cannot be nil")}
	}

	p := &Proxy{
		typ:        primary,
		types:      []reflect.Type{primary},
		dispatcher: dispatcher,
		methods:    make(map[string]*proxiedMethod),
	}

	for _, extra := range s.additional {
		if extra == nil || extra.Kind() != reflect.Interface {
			return nil, &contracts.ProxyError{
				Op:   "create",
				Type: contracts.TypeName(primary),
				Err:  fmt.Errorf("%w: additional type %v is not an interface", contracts.ErrInvalidType, extra),
			}
		}
		if !containsType(p.types, extra) {
			p.types = append(p.types, extra)
		}
	}

	if s.target != nil {
		p.target = reflect.ValueOf(s.target)
		if err := p.checkTarget(); err != nil {
			return nil, err
		}
	}

	for _, t := range p.types {
		if err := p.addMethods(t); err != nil {
			return nil, err
		}
	}

	return p, nil
}

func containsType(types []reflect.Type, t reflect.Type) bool {
	for _, existing := range types {
		if existing == t {
			return true
		}
	}
	return false
}

func containsIdentity(ids []contracts.MethodIdentity, id contracts.MethodIdentity) bool {
	for _, existing := range ids {
		if existing == id {
			return true
		}
	}
	return false
}

func (p *Proxy) checkTarget() error {
	tt := p.target.Type()
	for _, t := range p.types {
		ok := tt == t
		if t.Kind() == reflect.Interface {
			ok = tt.Implements(t)
		}
		if !ok {
			return &contracts.ProxyError{
				Op:   "create",
				Type: contracts.TypeName(p.typ),
				Err:  fmt.Errorf("%w: %s does not implement %s", contracts.ErrTargetMismatch, contracts.TypeName(tt), contracts.TypeName(t)),
			}
		}
	}
	return nil
}

func (p *Proxy) addMethods(t reflect.Type) error {
	ids, err := binding.EligibleMethods(t)
	if err != nil {
		return &contracts.ProxyError{Op: "create", Type: contracts.TypeName(t), Err: err}
	}

	for _, id := range ids {
		// the primary type's signature and target win; later types only add
		// their identity so their bindings apply
		if existing, exists := p.methods[id.Name]; exists {
			if id != existing.id && !containsIdentity(existing.aliases, id) {
				existing.aliases = append(existing.aliases, id)
			}
			continue
		}

		m, _ := t.MethodByName(id.Name)
		fnType := m.Type
		if t.Kind() != reflect.Interface {
			fnType = withoutReceiver(fnType)
		}

		pm := &proxiedMethod{id: id, fnType: fnType}
		if p.target.IsValid() {
			pm.bound = p.target.MethodByName(id.Name)
			if tm, ok := p.target.Type().MethodByName(id.Name); ok && p.target.Type() != t {
				pm.target = contracts.NewMethodIdentity(p.target.Type(), tm)
			}
		}
		p.methods[id.Name] = pm
	}
	return nil
}

func withoutReceiver(fn reflect.Type) reflect.Type {
	in := make([]reflect.Type, 0, fn.NumIn()-1)
	for i := 1; i < fn.NumIn(); i++ {
		in = append(in, fn.In(i))
	}
	out := make([]reflect.Type, 0, fn.NumOut())
	for i := 0; i < fn.NumOut(); i++ {
		out = append(out, fn.Out(i))
	}
	return reflect.FuncOf(in, out, fn.IsVariadic())
}

// Type returns the primary proxied type
func (p *Proxy) Type() reflect.Type {
	return p.typ
}

// Types returns the primary type followed by the additional interfaces
func (p *Proxy) Types() []reflect.Type {
	return append([]reflect.Type(nil), p.types...)
}

// Target returns the forwarding target, or nil
func (p *Proxy) Target() any {
	if !p.target.IsValid() {
		return nil
	}
	return p.target.Interface()
}

// Methods returns the proxied method identities sorted by name
func (p *Proxy) Methods() []contracts.MethodIdentity {
	ids := make([]contracts.MethodIdentity, 0, len(p.methods))
	for _, m := range p.methods {
		ids = append(ids, m.id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Name < ids[j].Name })
	return ids
}

// Call invokes the named method through the dispatcher. The result is the
// method's single non-error result, a []any of all non-error results when
// there are several, or nil. A trailing error result is returned as err.
func (p *Proxy) Call(method string, args ...any) (any, error) {
	return p.CallGeneric(method, nil, args...)
}

// CallGeneric is Call with generic type arguments made visible to interceptors
func (p *Proxy) CallGeneric(method string, generics []reflect.Type, args ...any) (any, error) {
	pm, exists := p.methods[method]
	if !exists {
		return nil, &contracts.ProxyError{
			Op:   "call",
			Type: contracts.TypeName(p.typ),
			Err:  fmt.Errorf("%w: %s", contracts.ErrMethodNotFound, method),
		}
	}

	if err := checkArity(pm.fnType, len(args)); err != nil {
		return nil, &contracts.ProxyError{Op: "call " + method, Type: contracts.TypeName(p.typ), Err: err}
	}

	c := &call{
		proxy:    p,
		method:   pm,
		args:     append([]any(nil), args...),
		generics: generics,
	}

	err := p.dispatcher.Intercept(c)
	if err != nil {
		return c.ret, err
	}

	if !c.retSet && hasResults(pm.fnType) {
		return nil, &contracts.ProxyError{
			Op:   "call " + method,
			Type: contracts.TypeName(p.typ),
			Err:  contracts.ErrNoReturnValue,
		}
	}
	return c.ret, nil
}

func checkArity(fn reflect.Type, n int) error {
	if fn.IsVariadic() {
		if n < fn.NumIn()-1 {
			return fmt.Errorf("%w: want at least %d, got %d", contracts.ErrArgumentCount, fn.NumIn()-1, n)
		}
		return nil
	}
	if n != fn.NumIn() {
		return fmt.Errorf("%w: want %d, got %d", contracts.ErrArgumentCount, fn.NumIn(), n)
	}
	return nil
}

var errorType = reflect.TypeFor[error]()

// resultTypes returns the non-error results of fn
func resultTypes(fn reflect.Type) []reflect.Type {
	var out []reflect.Type
	for i := 0; i < fn.NumOut(); i++ {
		if i == fn.NumOut()-1 && fn.Out(i) == errorType {
			continue
		}
		out = append(out, fn.Out(i))
	}
	return out
}

func hasResults(fn reflect.Type) bool {
	return len(resultTypes(fn)) > 0
}

// Return converts a Call result to T
func Return[T any](v any, err error) (T, error) {
	var zero T
	if v == nil {
		return zero, err
	}
	if t, ok := v.(T); ok {
		return t, err
	}
	if converted, ok := activation.ConvertArgument(v, reflect.TypeFor[T]()); ok {
		return converted.Interface().(T), err
	}
	if err != nil {
		return zero, err
	}
	return zero, fmt.Errorf("%w: %T is not %v", contracts.ErrReturnType, v, reflect.TypeFor[T]())
}
