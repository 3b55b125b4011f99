package contracts

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// Binding errors
	ErrInterceptorNotRegistered = errors.New("aspect: interceptor not registered")
	ErrNoMatchingConstructor    = errors.New("aspect: no matching constructor")
	ErrNilInterceptor           = errors.New("aspect: interceptor instantiated as nil")
	ErrNotAnInterceptor         = errors.New("aspect: value implements neither before nor after interceptor")
	ErrUnknownMethod            = errors.New("aspect: method is not eligible on type")

	// Policy errors
	ErrInvalidVariant  = errors.New("aspect: invalid build variant")
	ErrInvalidPolicy   = errors.New("aspect: invalid policy")
	ErrDuplicateTiming = errors.New("aspect: more than one elapsed-time policy on method")

	// Proxy errors
	ErrInvalidType    = errors.New("aspect: type cannot be proxied")
	ErrMethodNotFound = errors.New("aspect: method not found on proxy")
	ErrArgumentCount  = errors.New("aspect: wrong number of arguments")
	ErrArgumentType   = errors.New("aspect: argument not assignable to parameter")
	ErrTargetMismatch = errors.New("aspect: target does not implement proxied type")
	ErrNoTarget       = errors.New("aspect: proxy has no target to forward to")
	ErrNoReturnValue  = errors.New("aspect: no return value supplied for skipped call")
	ErrReturnType     = errors.New("aspect: return value not assignable to result type")
	ErrProceeded      = errors.New("aspect: call already proceeded")
)

// ExtraMessageKey is the DataCarrier key under which HandleError.ExtraMessage is attached
const ExtraMessageKey = "ExtraMsg"

// DataCarrier is implemented by errors that carry side-channel data
type DataCarrier interface {
	Data() map[string]any
}

// ErrorData can be embedded in error types to satisfy DataCarrier
type ErrorData struct {
	data map[string]any
}

// Data implements DataCarrier
func (d *ErrorData) Data() map[string]any {
	if d.data == nil {
		d.data = make(map[string]any)
	}
	return d.data
}

// ConstructorError reports that an interceptor has no constructor accepting the declared arguments
type ConstructorError struct {
	Interceptor string
	ArgTypes    []string
	Err         error
}

func (e *ConstructorError) Error() string {
	return fmt.Sprintf("aspect: no constructor for interceptor %q accepting (%s): %v",
		e.Interceptor, strings.Join(e.ArgTypes, ", "), e.Err)
}

func (e *ConstructorError) Unwrap() error {
	return e.Err
}

// BindingError reports a failure resolving a declared binding
type BindingError struct {
	Op          string
	Type        string
	Method      string
	Interceptor string
	Err         error
}

func (e *BindingError) Error() string {
	target := e.Type
	if e.Method != "" {
		target += "." + e.Method
	}
	if e.Interceptor != "" {
		return fmt.Sprintf("aspect binding error: %s %q on %s: %v", e.Op, e.Interceptor, target, e.Err)
	}
	return fmt.Sprintf("aspect binding error: %s on %s: %v", e.Op, target, e.Err)
}

func (e *BindingError) Unwrap() error {
	return e.Err
}

// ProxyError reports a failure creating or calling through a proxy
type ProxyError struct {
	Op   string
	Type string
	Err  error
}

func (e *ProxyError) Error() string {
	return fmt.Sprintf("aspect proxy error: %s %s: %v", e.Op, e.Type, e.Err)
}

func (e *ProxyError) Unwrap() error {
	return e.Err
}
