package dispatch

import (
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/glimte/aspect-go/activation"
	"github.com/glimte/aspect-go/binding"
	"github.com/glimte/aspect-go/contracts"
	"github.com/glimte/aspect-go/interceptors"
	"github.com/glimte/aspect-go/logging"
	"github.com/stretchr/testify/require"
)

type calculator interface {
	Add(a, b int) (int, error)
	Reset()
}

type calculatorImpl struct{}

func (c *calculatorImpl) Add(a, b int) (int, error) { return a + b, nil }
func (c *calculatorImpl) Reset()                    {}

var calculatorType = reflect.TypeFor[calculator]()

type overflowError struct {
	contracts.ErrorData
	msg string
}

func (e *overflowError) Error() string { return e.msg }

type underflowError struct{}

func (e *underflowError) Error() string { return "underflow" }

type scopeMarker struct {
	contracts.MarkerBase
	Scope string
}

// trail records the order in which interceptors and the real call ran
type trail struct {
	mu    sync.Mutex
	steps []string
}

func (t *trail) add(step string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.steps = append(t.steps, step)
}

func (t *trail) list() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.steps...)
}

type firstInterceptor struct{ trail *trail }

func (i *firstInterceptor) InterceptBefore(contracts.BeforeInvocation) { i.trail.add("first.before") }
func (i *firstInterceptor) InterceptAfter(contracts.AfterInvocation)   { i.trail.add("first.after") }

type secondInterceptor struct{ trail *trail }

func (i *secondInterceptor) InterceptBefore(contracts.BeforeInvocation) { i.trail.add("second.before") }
func (i *secondInterceptor) InterceptAfter(contracts.AfterInvocation)   { i.trail.add("second.after") }

type stopInterceptor struct{ trail *trail }

func (i *stopInterceptor) InterceptBefore(inv contracts.BeforeInvocation) {
	i.trail.add("stop.before")
	inv.SetReturnValue(-1)
	inv.SetProceed(false)
}

type resumeInterceptor struct{ trail *trail }

func (i *resumeInterceptor) InterceptBefore(inv contracts.BeforeInvocation) {
	i.trail.add("resume.before")
	inv.SetProceed(true)
}

func (i *resumeInterceptor) InterceptAfter(contracts.AfterInvocation) { i.trail.add("resume.after") }

type abortInterceptor struct{ err error }

func (i *abortInterceptor) InterceptBefore(inv contracts.BeforeInvocation) {
	inv.Abort(i.err)
}

type doubleInterceptor struct{}

func (i *doubleInterceptor) InterceptBefore(inv contracts.BeforeInvocation) {
	if v, ok := inv.Argument(0).(int); ok {
		inv.SetArgument(0, v*2)
	}
}

type observerInterceptor struct {
	trail *trail
	seen  []string
}

func (i *observerInterceptor) InterceptBefore(inv contracts.BeforeInvocation) {
	inv.Values().Set("started", inv.ID())
	for _, m := range inv.Markers() {
		if s, ok := m.(*scopeMarker); ok {
			i.seen = append(i.seen, s.Scope)
		}
	}
}

func (i *observerInterceptor) InterceptAfter(inv contracts.AfterInvocation) {
	if id, ok := inv.Values().GetString("started"); ok && id == inv.ID() {
		i.trail.add("observer.shared")
	}
	if v, ok := inv.ReturnValue().(int); ok {
		inv.SetReturnValue(v + 100)
	}
}

type fakeCall struct {
	method    contracts.MethodIdentity
	aliases   []contracts.MethodIdentity
	target    contracts.MethodIdentity
	hasTarget bool
	args      []any
	generics  []reflect.Type
	ret       any
	proceeded int
	run       func(args []any) (any, error)
}

func (c *fakeCall) Method() contracts.MethodIdentity { return c.method }

func (c *fakeCall) TargetMethod() (contracts.MethodIdentity, bool) {
	return c.target, !c.target.IsZero()
}

func (c *fakeCall) Aliases() []contracts.MethodIdentity { return c.aliases }

func (c *fakeCall) HasTarget() bool                  { return c.hasTarget }
func (c *fakeCall) Arguments() []any                 { return c.args }
func (c *fakeCall) SetArgument(i int, v any)         { c.args[i] = v }
func (c *fakeCall) GenericArguments() []reflect.Type { return c.generics }
func (c *fakeCall) ReturnValue() any                 { return c.ret }
func (c *fakeCall) SetReturnValue(v any)             { c.ret = v }

func (c *fakeCall) Proceed() error {
	c.proceeded++
	if c.run == nil {
		return nil
	}
	ret, err := c.run(c.args)
	if err != nil {
		return err
	}
	c.ret = ret
	return nil
}

type logEntry struct {
	Level logging.Level
	Msg   string
}

type recordingLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *recordingLogger) Enabled(logging.Level) bool { return true }

func (l *recordingLogger) Log(level logging.Level, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{Level: level, Msg: msg})
}

func (l *recordingLogger) messages(level logging.Level) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	for _, e := range l.entries {
		if e.Level == level {
			out = append(out, e.Msg)
		}
	}
	return out
}

type harness struct {
	catalog  *binding.Catalog
	logger   *recordingLogger
	trail    *trail
	observer *observerInterceptor
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		logger: &recordingLogger{},
		trail:  &trail{},
	}
	h.observer = &observerInterceptor{trail: h.trail}

	c := activation.NewConstructors()
	require.NoError(t, c.RegisterConstructor("first", func(tr *trail) *firstInterceptor {
		return &firstInterceptor{trail: tr}
	}))
	require.NoError(t, c.RegisterConstructor("second", func(tr *trail) *secondInterceptor {
		return &secondInterceptor{trail: tr}
	}))
	require.NoError(t, c.RegisterConstructor("stop", func(tr *trail) *stopInterceptor {
		return &stopInterceptor{trail: tr}
	}))
	require.NoError(t, c.RegisterConstructor("resume", func(tr *trail) *resumeInterceptor {
		return &resumeInterceptor{trail: tr}
	}))
	require.NoError(t, c.RegisterConstructor("abort", func(err error) *abortInterceptor {
		return &abortInterceptor{err: err}
	}))
	require.NoError(t, c.RegisterPrototype("double", &doubleInterceptor{}))
	require.NoError(t, c.RegisterConstructor("observer", func() *observerInterceptor { return h.observer }))

	h.catalog = binding.NewCatalog(c)
	return h
}

func (h *harness) dispatcher(t *testing.T, opts ...Option) *Dispatcher {
	t.Helper()
	registry, err := interceptors.Resolve(h.catalog, calculatorType)
	require.NoError(t, err)
	return New(registry, h.catalog, append([]Option{WithLogger(h.logger)}, opts...)...)
}

func (h *harness) call(t *testing.T, method string, args ...any) *fakeCall {
	t.Helper()
	id, ok := binding.MethodByName(calculatorType, method)
	require.True(t, ok)
	return &fakeCall{
		method:    id,
		hasTarget: true,
		args:      args,
		run: func(args []any) (any, error) {
			h.trail.add("real")
			if len(args) == 2 {
				return args[0].(int) + args[1].(int), nil
			}
			return nil, nil
		},
	}
}

func failingWith(h *harness, err error) func([]any) (any, error) {
	return func([]any) (any, error) {
		h.trail.add("real")
		return nil, err
	}
}

// steppingClock advances by step on every reading
func steppingClock(step time.Duration) func() time.Time {
	var mu sync.Mutex
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(step)
		return now
	}
}
