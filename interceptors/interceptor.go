package interceptors

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/glimte/aspect-go/activation"
	"github.com/glimte/aspect-go/contracts"
)

const startedAtKey = "aspect:startedAt"

// Names under which the builder registers the built-in interceptors
const (
	NameLogging       = "aspect.logging"
	NameMetrics       = "aspect.metrics"
	NameValidation    = "aspect.validation"
	NameAuthorization = "aspect.authorization"
	NameRateLimit     = "aspect.ratelimit"
	NameCaching       = "aspect.caching"
	NameDeduplication = "aspect.deduplication"
	NameFiltering     = "aspect.filtering"
)

// BuiltinNames returns the names of every built-in interceptor
func BuiltinNames() []string {
	return []string{
		NameLogging, NameMetrics, NameValidation, NameAuthorization,
		NameRateLimit, NameCaching, NameDeduplication, NameFiltering,
	}
}

// Built-in interceptors

// LoggingInterceptor logs every intercepted call and its duration
type LoggingInterceptor struct {
	logger *slog.Logger
}

// NewLoggingInterceptor creates a new logging interceptor
func NewLoggingInterceptor(logger *slog.Logger) *LoggingInterceptor {
	if logger == nil {
		logger = slog.Default()
	}

	return &LoggingInterceptor{logger: logger}
}

// InterceptBefore implements contracts.BeforeInterceptor
func (i *LoggingInterceptor) InterceptBefore(inv contracts.BeforeInvocation) {
	inv.Values().Set(startedAtKey, time.Now())

	i.logger.Info("invoking method",
		"invocationId", inv.ID(),
		"method", inv.Method().String(),
		"arguments", len(inv.Arguments()),
	)
}

// InterceptAfter implements contracts.AfterInterceptor
func (i *LoggingInterceptor) InterceptAfter(inv contracts.AfterInvocation) {
	attrs := []any{
		"invocationId", inv.ID(),
		"method", inv.Method().String(),
	}
	if started, ok := inv.Values().GetTime(startedAtKey); ok {
		attrs = append(attrs, "duration", time.Since(started))
	}

	i.logger.Info("method invoked successfully", attrs...)
}

// MetricsInterceptor collects call counts and durations per method
type MetricsInterceptor struct {
	collector MetricsCollector
}

// MetricsCollector defines the interface for collecting metrics
type MetricsCollector interface {
	IncrementCallCount(method string)
	RecordCallTime(method string, duration time.Duration)
	IncrementSkipCount(method string)
}

// NewMetricsInterceptor creates a new metrics interceptor
func NewMetricsInterceptor(collector MetricsCollector) *MetricsInterceptor {
	return &MetricsInterceptor{collector: collector}
}

// InterceptBefore implements contracts.BeforeInterceptor. It must be bound
// with the highest priority number of the method so that it observes the
// final proceed decision.
func (i *MetricsInterceptor) InterceptBefore(inv contracts.BeforeInvocation) {
	method := inv.Method().String()
	i.collector.IncrementCallCount(method)

	if !inv.CanProceed() {
		i.collector.IncrementSkipCount(method)
		return
	}
	inv.Values().Set(startedAtKey, time.Now())
}

// InterceptAfter implements contracts.AfterInterceptor
func (i *MetricsInterceptor) InterceptAfter(inv contracts.AfterInvocation) {
	if started, ok := inv.Values().GetTime(startedAtKey); ok {
		i.collector.RecordCallTime(inv.Method().String(), time.Since(started))
	}
}

// ValidationInterceptor validates arguments before the real call
type ValidationInterceptor struct {
	validator ArgumentValidator
}

// ArgumentValidator defines the interface for argument validation
type ArgumentValidator interface {
	Validate(method contracts.MethodIdentity, args []any) error
}

// ArgumentValidatorFunc is a function adapter for ArgumentValidator
type ArgumentValidatorFunc func(method contracts.MethodIdentity, args []any) error

// Validate implements ArgumentValidator
func (f ArgumentValidatorFunc) Validate(method contracts.MethodIdentity, args []any) error {
	return f(method, args)
}

// NewValidationInterceptor creates a new validation interceptor
func NewValidationInterceptor(validator ArgumentValidator) *ValidationInterceptor {
	return &ValidationInterceptor{validator: validator}
}

// InterceptBefore implements contracts.BeforeInterceptor
func (i *ValidationInterceptor) InterceptBefore(inv contracts.BeforeInvocation) {
	if err := i.validator.Validate(inv.Method(), inv.Arguments()); err != nil {
		inv.Abort(fmt.Errorf("argument validation failed: %w", err))
	}
}

// AuthorizationInterceptor authorizes calls using the method's markers
type AuthorizationInterceptor struct {
	authorizer Authorizer
}

// Authorizer defines the interface for call authorization
type Authorizer interface {
	Authorize(method contracts.MethodIdentity, markers []contracts.Marker) error
}

// NewAuthorizationInterceptor creates a new authorization interceptor
func NewAuthorizationInterceptor(authorizer Authorizer) *AuthorizationInterceptor {
	return &AuthorizationInterceptor{authorizer: authorizer}
}

// InterceptBefore implements contracts.BeforeInterceptor
func (i *AuthorizationInterceptor) InterceptBefore(inv contracts.BeforeInvocation) {
	if err := i.authorizer.Authorize(inv.Method(), inv.Markers()); err != nil {
		inv.Abort(fmt.Errorf("call authorization failed: %w", err))
	}
}

// RateLimitingInterceptor implements rate limiting per method
type RateLimitingInterceptor struct {
	limiter RateLimiter
}

// RateLimiter defines the interface for rate limiting
type RateLimiter interface {
	Allow(key string) error
}

// NewRateLimitingInterceptor creates a new rate limiting interceptor
func NewRateLimitingInterceptor(limiter RateLimiter) *RateLimitingInterceptor {
	return &RateLimitingInterceptor{limiter: limiter}
}

// InterceptBefore implements contracts.BeforeInterceptor
func (i *RateLimitingInterceptor) InterceptBefore(inv contracts.BeforeInvocation) {
	// Use method identity as rate limiting key
	key := inv.Method().String()

	if err := i.limiter.Allow(key); err != nil {
		inv.Abort(fmt.Errorf("rate limit exceeded for method %s: %w", key, err))
	}
}

// Builtins builder

// BuiltinsBuilder registers built-in interceptors as named constructors so
// that catalogs and manifests can bind them by name.
type BuiltinsBuilder struct {
	constructors *activation.Constructors
	logger       *slog.Logger
	err          error
}

// NewBuiltinsBuilder creates a builder registering into constructors
func NewBuiltinsBuilder(constructors *activation.Constructors, logger *slog.Logger) *BuiltinsBuilder {
	if logger == nil {
		logger = slog.Default()
	}

	return &BuiltinsBuilder{
		constructors: constructors,
		logger:       logger,
	}
}

func (b *BuiltinsBuilder) register(name string, fn any) *BuiltinsBuilder {
	if b.err != nil {
		return b
	}
	if err := b.constructors.RegisterConstructor(name, fn); err != nil {
		b.err = fmt.Errorf("failed to register built-in interceptor %s: %w", name, err)
	}
	return b
}

// WithLogging registers the logging interceptor
func (b *BuiltinsBuilder) WithLogging() *BuiltinsBuilder {
	logger := b.logger
	return b.register(NameLogging, func() *LoggingInterceptor {
		return NewLoggingInterceptor(logger)
	})
}

// WithMetrics registers the metrics interceptor
func (b *BuiltinsBuilder) WithMetrics(collector MetricsCollector) *BuiltinsBuilder {
	return b.register(NameMetrics, func() *MetricsInterceptor {
		return NewMetricsInterceptor(collector)
	})
}

// WithValidation registers the validation interceptor
func (b *BuiltinsBuilder) WithValidation(validator ArgumentValidator) *BuiltinsBuilder {
	return b.register(NameValidation, func() *ValidationInterceptor {
		return NewValidationInterceptor(validator)
	})
}

// WithAuthorization registers the authorization interceptor
func (b *BuiltinsBuilder) WithAuthorization(authorizer Authorizer) *BuiltinsBuilder {
	return b.register(NameAuthorization, func() *AuthorizationInterceptor {
		return NewAuthorizationInterceptor(authorizer)
	})
}

// WithRateLimit registers the rate limiting interceptor
func (b *BuiltinsBuilder) WithRateLimit(limiter RateLimiter) *BuiltinsBuilder {
	return b.register(NameRateLimit, func() *RateLimitingInterceptor {
		return NewRateLimitingInterceptor(limiter)
	})
}

// WithCaching registers the caching interceptor. The binding may pass a TTL
// in seconds as its only argument.
func (b *BuiltinsBuilder) WithCaching(cache Cache) *BuiltinsBuilder {
	return b.register(NameCaching, func(ttlSeconds ...int) *CachingInterceptor {
		var opts []CachingOption
		if len(ttlSeconds) > 0 {
			opts = append(opts, WithCacheTTL(time.Duration(ttlSeconds[0])*time.Second))
		}
		return NewCachingInterceptor(cache, opts...)
	})
}

// WithDeduplication registers the duplicate detection interceptor
func (b *BuiltinsBuilder) WithDeduplication(detector DuplicateDetector) *BuiltinsBuilder {
	return b.register(NameDeduplication, func() *DuplicateDetectionInterceptor {
		return NewDuplicateDetectionInterceptor(detector)
	})
}

// WithFiltering registers the filtering interceptor
func (b *BuiltinsBuilder) WithFiltering(filter CallFilter, behavior SkipBehavior) *BuiltinsBuilder {
	logger := b.logger
	return b.register(NameFiltering, func() *FilteringInterceptor {
		return NewFilteringInterceptor(filter, behavior, WithFilterLogger(logger))
	})
}

// WithCustom registers a custom interceptor constructor
func (b *BuiltinsBuilder) WithCustom(name string, constructor any) *BuiltinsBuilder {
	return b.register(name, constructor)
}

// Build returns the first registration error, if any
func (b *BuiltinsBuilder) Build() error {
	return b.err
}
