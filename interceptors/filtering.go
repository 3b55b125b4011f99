package interceptors

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/glimte/aspect-go/contracts"
)

// ErrCallFiltered is returned to the caller when a SkipWithError filter rejects a call
var ErrCallFiltered = errors.New("call filtered")

// CallFilter defines the interface for call filtering
type CallFilter interface {
	// ShouldProceed returns true if the real call should run
	ShouldProceed(inv contracts.Invocation) (bool, error)
}

// CallFilterFunc is a function adapter for CallFilter
type CallFilterFunc func(inv contracts.Invocation) (bool, error)

// ShouldProceed implements CallFilter
func (f CallFilterFunc) ShouldProceed(inv contracts.Invocation) (bool, error) {
	return f(inv)
}

// SkipBehavior defines what happens when a call is filtered out
type SkipBehavior int

const (
	// SkipSilently skips the call without error
	SkipSilently SkipBehavior = iota
	// SkipWithError returns ErrCallFiltered to the caller
	SkipWithError
	// SkipWithLog logs that the call was skipped
	SkipWithLog
)

// FilteringInterceptor skips calls rejected by a filter
type FilteringInterceptor struct {
	filter       CallFilter
	skipBehavior SkipBehavior
	logger       *slog.Logger
}

// FilteringOption configures a FilteringInterceptor
type FilteringOption func(*FilteringInterceptor)

// WithFilterLogger sets the logger used by SkipWithLog
func WithFilterLogger(logger *slog.Logger) FilteringOption {
	return func(i *FilteringInterceptor) {
		if logger != nil {
			i.logger = logger
		}
	}
}

// NewFilteringInterceptor creates a new filtering interceptor
func NewFilteringInterceptor(filter CallFilter, skipBehavior SkipBehavior, opts ...FilteringOption) *FilteringInterceptor {
	i := &FilteringInterceptor{
		filter:       filter,
		skipBehavior: skipBehavior,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// InterceptBefore implements contracts.BeforeInterceptor
func (i *FilteringInterceptor) InterceptBefore(inv contracts.BeforeInvocation) {
	shouldProceed, err := i.filter.ShouldProceed(inv)
	if err != nil {
		inv.Abort(fmt.Errorf("filter error: %w", err))
		return
	}

	if shouldProceed {
		return
	}

	switch i.skipBehavior {
	case SkipWithError:
		inv.Abort(fmt.Errorf("%w: method=%s, invocation=%s", ErrCallFiltered, inv.Method().Name, inv.ID()))
	case SkipWithLog:
		i.logger.Info("call skipped by filter",
			"method", inv.Method().String(),
			"invocationId", inv.ID(),
		)
		inv.SetProceed(false)
	default: // SkipSilently
		inv.SetProceed(false)
	}
}

// CompositeFilter combines multiple filters with AND logic
type CompositeFilter struct {
	filters []CallFilter
}

// NewCompositeFilter creates a new composite filter
func NewCompositeFilter(filters ...CallFilter) *CompositeFilter {
	return &CompositeFilter{filters: filters}
}

// ShouldProceed implements CallFilter - all filters must return true
func (f *CompositeFilter) ShouldProceed(inv contracts.Invocation) (bool, error) {
	for _, filter := range f.filters {
		shouldProceed, err := filter.ShouldProceed(inv)
		if err != nil {
			return false, err
		}
		if !shouldProceed {
			return false, nil
		}
	}
	return true, nil
}

// OrFilter combines multiple filters with OR logic
type OrFilter struct {
	filters []CallFilter
}

// NewOrFilter creates a new OR filter
func NewOrFilter(filters ...CallFilter) *OrFilter {
	return &OrFilter{filters: filters}
}

// ShouldProceed implements CallFilter - at least one filter must return true
func (f *OrFilter) ShouldProceed(inv contracts.Invocation) (bool, error) {
	for _, filter := range f.filters {
		shouldProceed, err := filter.ShouldProceed(inv)
		if err != nil {
			return false, err
		}
		if shouldProceed {
			return true, nil
		}
	}
	return false, nil
}

// MethodNameFilter allows only the named methods
type MethodNameFilter struct {
	allowed map[string]bool
}

// NewMethodNameFilter creates a filter that only allows specific method names
func NewMethodNameFilter(names ...string) *MethodNameFilter {
	allowed := make(map[string]bool)
	for _, n := range names {
		allowed[n] = true
	}
	return &MethodNameFilter{allowed: allowed}
}

// ShouldProceed implements CallFilter
func (f *MethodNameFilter) ShouldProceed(inv contracts.Invocation) (bool, error) {
	return f.allowed[inv.Method().Name], nil
}

// MarkerFilter allows calls whose method carries a marker accepted by match
type MarkerFilter struct {
	match func(contracts.Marker) bool
}

// NewMarkerFilter creates a filter over the method's markers
func NewMarkerFilter(match func(contracts.Marker) bool) *MarkerFilter {
	return &MarkerFilter{match: match}
}

// ShouldProceed implements CallFilter
func (f *MarkerFilter) ShouldProceed(inv contracts.Invocation) (bool, error) {
	for _, m := range inv.Markers() {
		if f.match(m) {
			return true, nil
		}
	}
	return false, nil
}

// ValueFilter checks a value set by an earlier interceptor of the same call
type ValueFilter struct {
	key      string
	expected any
}

// NewValueFilter creates a filter that checks per-call values
func NewValueFilter(key string, expected any) *ValueFilter {
	return &ValueFilter{
		key:      key,
		expected: expected,
	}
}

// ShouldProceed implements CallFilter
func (f *ValueFilter) ShouldProceed(inv contracts.Invocation) (bool, error) {
	value, exists := inv.Values().Get(f.key)
	if !exists {
		return false, nil
	}
	return value == f.expected, nil
}

// ConditionalInterceptor runs an interceptor only for calls accepted by condition
type ConditionalInterceptor struct {
	condition   CallFilter
	interceptor any
}

// NewConditionalInterceptor wraps interceptor, which must implement at least
// one of contracts.BeforeInterceptor and contracts.AfterInterceptor.
func NewConditionalInterceptor(condition CallFilter, interceptor any) (*ConditionalInterceptor, error) {
	if !contracts.IsInterceptor(interceptor) {
		return nil, fmt.Errorf("%w: %T", contracts.ErrNotAnInterceptor, interceptor)
	}
	return &ConditionalInterceptor{
		condition:   condition,
		interceptor: interceptor,
	}, nil
}

func (i *ConditionalInterceptor) accepts(inv contracts.Invocation) bool {
	ok, err := i.condition.ShouldProceed(inv)
	return err == nil && ok
}

// InterceptBefore implements contracts.BeforeInterceptor
func (i *ConditionalInterceptor) InterceptBefore(inv contracts.BeforeInvocation) {
	if before, ok := i.interceptor.(contracts.BeforeInterceptor); ok && i.accepts(inv) {
		before.InterceptBefore(inv)
	}
}

// InterceptAfter implements contracts.AfterInterceptor
func (i *ConditionalInterceptor) InterceptAfter(inv contracts.AfterInvocation) {
	if after, ok := i.interceptor.(contracts.AfterInterceptor); ok && i.accepts(inv) {
		after.InterceptAfter(inv)
	}
}
