package dispatch

import (
	"reflect"

	"github.com/glimte/aspect-go/contracts"
	"github.com/glimte/aspect-go/logging"
	"github.com/google/uuid"
)

// invocation is the live state of one call, shared by both views
type invocation struct {
	id      string
	call    contracts.Call
	markers []contracts.Marker
	logger  logging.Logger
	values  *contracts.Values

	proceed  bool
	abortErr error
}

func newInvocation(call contracts.Call, markers []contracts.Marker, logger logging.Logger) *invocation {
	return &invocation{
		id:      uuid.New().String(),
		call:    call,
		markers: markers,
		logger:  logger,
		values:  contracts.NewValues(),
		proceed: true,
	}
}

func (i *invocation) ID() string {
	return i.id
}

func (i *invocation) Method() contracts.MethodIdentity {
	return i.call.Method()
}

func (i *invocation) Arguments() []any {
	args := i.call.Arguments()
	out := make([]any, len(args))
	copy(out, args)
	return out
}

func (i *invocation) Argument(index int) any {
	args := i.call.Arguments()
	if index < 0 || index >= len(args) {
		return nil
	}
	return args[index]
}

func (i *invocation) GenericArguments() []reflect.Type {
	return append([]reflect.Type(nil), i.call.GenericArguments()...)
}

func (i *invocation) Markers() []contracts.Marker {
	return append([]contracts.Marker(nil), i.markers...)
}

func (i *invocation) Logger() logging.Logger {
	return i.logger
}

func (i *invocation) Values() *contracts.Values {
	return i.values
}

// beforeView narrows an invocation to what before interceptors may touch
type beforeView struct {
	*invocation
}

var _ contracts.BeforeInvocation = beforeView{}

func (v beforeView) SetArgument(index int, value any) {
	v.call.SetArgument(index, value)
}

func (v beforeView) CanProceed() bool {
	return v.proceed
}

// SetProceed only ever clears the flag; a stopped call stays stopped
func (v beforeView) SetProceed(proceed bool) {
	if !proceed {
		v.proceed = false
	}
}

func (v beforeView) SetReturnValue(value any) {
	v.call.SetReturnValue(value)
}

func (v beforeView) Abort(err error) {
	v.proceed = false
	v.abortErr = err
}

// afterView narrows an invocation to what after interceptors may touch
type afterView struct {
	*invocation
}

var _ contracts.AfterInvocation = afterView{}

func (v afterView) ReturnValue() any {
	return v.call.ReturnValue()
}

func (v afterView) SetReturnValue(value any) {
	v.call.SetReturnValue(value)
}
