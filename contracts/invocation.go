package contracts

import (
	"reflect"

	"github.com/glimte/aspect-go/logging"
)

// Call is the dispatch callback surface a proxy provider hands to the
// dispatcher for each intercepted call.
type Call interface {
	// Method returns the identity of the invoked method as declared on the proxied type
	Method() MethodIdentity

	// TargetMethod returns the concrete method on the forwarding target, if any
	TargetMethod() (MethodIdentity, bool)

	// HasTarget reports whether Proceed forwards to a real object
	HasTarget() bool

	// Aliases returns the identities of same-named methods on additional
	// proxied interfaces. Their bindings and policies apply to this call too.
	Aliases() []MethodIdentity

	Arguments() []any
	SetArgument(index int, value any)
	GenericArguments() []reflect.Type

	ReturnValue() any
	SetReturnValue(value any)

	// Proceed performs the forwarding call. It must be called at most once.
	Proceed() error
}

// Invocation is the part shared by both interceptor views
type Invocation interface {
	// ID is unique per call
	ID() string
	Method() MethodIdentity

	// Arguments returns a copy of the current argument values
	Arguments() []any
	Argument(index int) any
	GenericArguments() []reflect.Type

	// Markers returns the user annotations matched on the method
	Markers() []Marker

	// Logger returns the configured logger; never nil
	Logger() logging.Logger

	// Values is shared by every interceptor of this call
	Values() *Values
}

// BeforeInvocation is the view handed to before interceptors
type BeforeInvocation interface {
	Invocation

	SetArgument(index int, value any)

	// CanProceed reports whether the real call will run
	CanProceed() bool

	// SetProceed(false) skips the real call and the after chain. Once any
	// before interceptor has cleared it, SetProceed(true) has no effect.
	SetProceed(proceed bool)

	// SetReturnValue pre-empts the real call's result
	SetReturnValue(value any)

	// Abort stops the real call and after chain and makes the call return err
	Abort(err error)
}

// AfterInvocation is the view handed to after interceptors
type AfterInvocation interface {
	Invocation

	ReturnValue() any
	SetReturnValue(value any)
}
