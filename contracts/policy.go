package contracts

import (
	"fmt"
	"reflect"
	"strings"
)

// ErrorStrategy decides what happens to an error matched by a HandleError policy
type ErrorStrategy int

const (
	// StrategyIgnore suppresses the error; the call completes normally
	StrategyIgnore ErrorStrategy = iota
	// StrategyRethrow returns the error to the caller
	StrategyRethrow
)

// String implements fmt.Stringer
func (s ErrorStrategy) String() string {
	switch s {
	case StrategyIgnore:
		return "ignore"
	case StrategyRethrow:
		return "rethrow"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// UnmarshalText implements encoding.TextUnmarshaler
func (s *ErrorStrategy) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "ignore":
		*s = StrategyIgnore
	case "rethrow", "throw", "":
		*s = StrategyRethrow
	default:
		return fmt.Errorf("%w: unknown error strategy %q", ErrInvalidPolicy, text)
	}
	return nil
}

// HandleError declares how errors of exactly ErrorType raised by the real
// call are handled. Matching is by dynamic type equality, not assignability.
type HandleError struct {
	ErrorType    reflect.Type
	Strategy     ErrorStrategy
	Log          bool
	ReturnValue  any
	ExtraMessage string
	Variant      Variant
}

// NewHandleError creates a policy for errors whose dynamic type is errType.
// Logging on catch is enabled by default.
func NewHandleError(errType reflect.Type, strategy ErrorStrategy) *HandleError {
	return &HandleError{
		ErrorType: errType,
		Strategy:  strategy,
		Log:       true,
	}
}

// HandleErrorOf creates a policy for errors of dynamic type E
func HandleErrorOf[E error](strategy ErrorStrategy) *HandleError {
	return NewHandleError(reflect.TypeFor[E](), strategy)
}

// Matches reports whether err's dynamic type is exactly the policy's type
func (h *HandleError) Matches(err error) bool {
	return err != nil && h.ErrorType != nil && reflect.TypeOf(err) == h.ErrorType
}

// LogMoment says whether a WriteLog entry fires before or after the real call
type LogMoment int

const (
	// MomentBefore logs before the real call
	MomentBefore LogMoment = iota
	// MomentAfter logs after the real call
	MomentAfter
)

// String implements fmt.Stringer
func (m LogMoment) String() string {
	if m == MomentAfter {
		return "after"
	}
	return "before"
}

// UnmarshalText implements encoding.TextUnmarshaler
func (m *LogMoment) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "before", "":
		*m = MomentBefore
	case "after":
		*m = MomentAfter
	default:
		return fmt.Errorf("%w: unknown log moment %q", ErrInvalidPolicy, text)
	}
	return nil
}

// WriteLog declares a fixed log line emitted around the real call
type WriteLog struct {
	Moment  LogMoment
	Content string
	Variant Variant
}

// TimingMode selects where elapsed time is reported
type TimingMode int

const (
	// TimingLog writes elapsed time to the logger
	TimingLog TimingMode = iota
	// TimingRecord writes to the logger and hands a record to the timing recorder
	TimingRecord
)

// String implements fmt.Stringer
func (m TimingMode) String() string {
	if m == TimingRecord {
		return "record"
	}
	return "log"
}

// UnmarshalText implements encoding.TextUnmarshaler
func (m *TimingMode) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "log", "":
		*m = TimingLog
	case "record":
		*m = TimingRecord
	default:
		return fmt.Errorf("%w: unknown timing mode %q", ErrInvalidPolicy, text)
	}
	return nil
}

// NoteElapsedTime declares that the real call is timed. At most one per method.
type NoteElapsedTime struct {
	Mode    TimingMode
	Variant Variant
}
