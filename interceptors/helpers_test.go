package interceptors

import (
	"reflect"

	"github.com/glimte/aspect-go/contracts"
	"github.com/glimte/aspect-go/logging"
)

type shop interface {
	Price(item string) (int, error)
	Stock(item string) int
}

var shopType = reflect.TypeFor[shop]()

func shopMethod(name string) contracts.MethodIdentity {
	m, _ := shopType.MethodByName(name)
	return contracts.NewMethodIdentity(shopType, m)
}

// fakeInvocation satisfies both interceptor views
type fakeInvocation struct {
	id       string
	method   contracts.MethodIdentity
	args     []any
	markers  []contracts.Marker
	values   *contracts.Values
	proceed  bool
	abortErr error
	ret      any
}

func newFakeInvocation(method string, args ...any) *fakeInvocation {
	return &fakeInvocation{
		id:      "inv-1",
		method:  shopMethod(method),
		args:    args,
		values:  contracts.NewValues(),
		proceed: true,
	}
}

func (f *fakeInvocation) ID() string                       { return f.id }
func (f *fakeInvocation) Method() contracts.MethodIdentity { return f.method }
func (f *fakeInvocation) Arguments() []any                 { return append([]any(nil), f.args...) }
func (f *fakeInvocation) Argument(i int) any               { return f.args[i] }
func (f *fakeInvocation) GenericArguments() []reflect.Type { return nil }
func (f *fakeInvocation) Markers() []contracts.Marker      { return f.markers }
func (f *fakeInvocation) Logger() logging.Logger           { return logging.Nop() }
func (f *fakeInvocation) Values() *contracts.Values        { return f.values }
func (f *fakeInvocation) SetArgument(i int, v any)         { f.args[i] = v }
func (f *fakeInvocation) CanProceed() bool                 { return f.proceed }
func (f *fakeInvocation) SetProceed(p bool)                { f.proceed = f.proceed && p }
func (f *fakeInvocation) SetReturnValue(v any)             { f.ret = v }
func (f *fakeInvocation) ReturnValue() any                 { return f.ret }

func (f *fakeInvocation) Abort(err error) {
	f.proceed = false
	f.abortErr = err
}

var (
	_ contracts.BeforeInvocation = (*fakeInvocation)(nil)
	_ contracts.AfterInvocation  = (*fakeInvocation)(nil)
)

type roleMarker struct {
	contracts.MarkerBase
	Role string
}
