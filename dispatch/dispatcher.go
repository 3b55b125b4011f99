package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/glimte/aspect-go/contracts"
	"github.com/glimte/aspect-go/interceptors"
	"github.com/glimte/aspect-go/logging"
	"github.com/google/uuid"
)

// AnnotationSource yields the annotations declared on a method.
// *binding.Catalog implements it.
type AnnotationSource interface {
	Annotations(id contracts.MethodIdentity) []any
}

// Dispatcher drives intercepted calls for one proxied type set. It holds no
// per-call state and is safe for concurrent use.
type Dispatcher struct {
	registry    *interceptors.Registry
	annotations AnnotationSource
	logger      logging.Logger
	variant     contracts.Variant
	recorder    TimingRecorder
	now         func() time.Time
}

// Option configures a Dispatcher
type Option func(*Dispatcher)

// WithLogger sets the logger handed to interceptors and used for policy output
func WithLogger(logger logging.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithVariant sets the build variant policies are gated against
func WithVariant(variant contracts.Variant) Option {
	return func(d *Dispatcher) {
		d.variant = variant
	}
}

// WithTimingRecorder sets the sink for contracts.TimingRecord policies
func WithTimingRecorder(recorder TimingRecorder) Option {
	return func(d *Dispatcher) {
		d.recorder = recorder
	}
}

// WithClock replaces time.Now for elapsed time measurement
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

// New creates a dispatcher over a resolved registry. annotations may be nil
// when no policies are declared.
func New(registry *interceptors.Registry, annotations AnnotationSource, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry:    registry,
		annotations: annotations,
		logger:      logging.Nop(),
		variant:     contracts.VariantRelease,
		now:         time.Now,
	}

	for _, opt := range opts {
		opt(d)
	}
	d.logger = logging.OrNop(d.logger)

	return d
}

// Variant returns the build variant the dispatcher gates policies against
func (d *Dispatcher) Variant() contracts.Variant {
	return d.variant
}

// Intercept runs call through the before chain, the real call and the after
// chain. The returned error is the real call's error after policy handling,
// or the error passed to BeforeInvocation.Abort.
func (d *Dispatcher) Intercept(call contracts.Call) error {
	ids := identities(call)
	p := classify(collectAnnotations(d.annotations, ids))

	var bound []contracts.BoundInterceptor
	if d.registry != nil {
		bound = d.registry.Lookup(ids...)
	}

	inv := newInvocation(call, p.markers, d.logger)

	before := beforeView{inv}
	for _, interceptor := range interceptors.Befores(bound) {
		interceptor.InterceptBefore(before)
	}

	if !inv.proceed {
		return inv.abortErr
	}

	if call.HasTarget() {
		if err := d.proceed(call, inv, p); err != nil {
			return err
		}
	}

	after := afterView{inv}
	for _, interceptor := range interceptors.Afters(bound) {
		interceptor.InterceptAfter(after)
	}

	return nil
}

// proceed runs the real call under the declared logging, timing and error policies
func (d *Dispatcher) proceed(call contracts.Call, inv *invocation, p policies) error {
	method := call.Method().Name

	d.writeLogs(p.logs, contracts.MomentBefore)

	if p.timing == nil {
		if _, err := d.invoke(call, method, p.errorPolicies); err != nil {
			return err
		}
	} else {
		started := d.now()
		suppressed, err := d.invoke(call, method, p.errorPolicies)
		elapsed := d.now().Sub(started)
		if err != nil {
			return err
		}
		d.noteElapsed(inv, p.timing, started, elapsed, suppressed)
	}

	d.writeLogs(p.logs, contracts.MomentAfter)
	return nil
}

// invoke performs the real call. suppressed reports an error that a policy ignored.
func (d *Dispatcher) invoke(call contracts.Call, method string, handlers []*contracts.HandleError) (suppressed bool, err error) {
	raised := call.Proceed()
	if raised == nil {
		return false, nil
	}
	err = d.handleError(call, method, raised, handlers)
	return err == nil, err
}

func (d *Dispatcher) writeLogs(logs []*contracts.WriteLog, moment contracts.LogMoment) {
	for _, entry := range logs {
		if entry.Moment != moment || !entry.Variant.ActiveIn(d.variant) {
			continue
		}
		logging.Write(d.logger, logging.LevelInfo, entry.Content)
	}
}

func (d *Dispatcher) noteElapsed(inv *invocation, timing *contracts.NoteElapsedTime, started time.Time, elapsed time.Duration, failed bool) {
	if !timing.Variant.ActiveIn(d.variant) {
		return
	}

	method := inv.Method().Name
	logging.Writef(d.logger, logging.LevelInfo, "method %s() elapsed: [%d] ms", method, elapsed.Milliseconds())

	if timing.Mode != contracts.TimingRecord || d.recorder == nil {
		return
	}

	record := newTimingRecord(inv, d.variant, started, elapsed, failed)
	if err := d.recorder.RecordTiming(context.Background(), record); err != nil {
		logging.Write(d.logger, logging.LevelWarn, fmt.Sprintf("failed to record timing of method %s: %v", method, err))
	}
}

// identities lists the distinct method identities reachable from call: the
// invoked method, its aliases on additional interfaces and the target method
func identities(call contracts.Call) []contracts.MethodIdentity {
	ids := []contracts.MethodIdentity{call.Method()}
	add := func(id contracts.MethodIdentity) {
		if id.IsZero() {
			return
		}
		for _, existing := range ids {
			if existing == id {
				return
			}
		}
		ids = append(ids, id)
	}

	for _, alias := range call.Aliases() {
		add(alias)
	}
	if target, ok := call.TargetMethod(); ok {
		add(target)
	}
	return ids
}

func newRecordID() string {
	return uuid.New().String()
}
