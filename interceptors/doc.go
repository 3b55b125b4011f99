// Package interceptors resolves which interceptors run for each method of a
// proxied type and provides built-in interceptors for common concerns.
//
// Resolve merges the method-level and type-level bindings discovered by a
// binding.Catalog into a Registry: one list per eligible method, ordered by
// ascending priority. The list is fixed once resolved and is read
// concurrently by every call through the proxy.
//
// Interceptors implement contracts.BeforeInterceptor, contracts.AfterInterceptor
// or both. Before interceptors may rewrite arguments, pre-empt the return
// value, or stop the real call with SetProceed(false) or Abort(err). After
// interceptors only run when the real call phase was entered.
//
// Built-in interceptors:
//   - LoggingInterceptor: Logs each call with its duration
//   - MetricsInterceptor: Collects call counts and durations per method
//   - ValidationInterceptor: Validates arguments before the real call
//   - AuthorizationInterceptor: Authorizes calls using the method's markers
//   - RateLimitingInterceptor: Implements rate limiting per method
//   - CachingInterceptor: Answers repeated calls from a Cache
//   - DuplicateDetectionInterceptor: Skips calls already processed
//   - FilteringInterceptor: Skips calls rejected by a CallFilter
//
// Example usage:
//
//	constructors := activation.NewConstructors()
//	err := interceptors.NewBuiltinsBuilder(constructors, logger).
//		WithLogging().
//		WithCaching(interceptors.NewMemoryCache()).
//		Build()
//
//	catalog := binding.NewCatalog(constructors)
//	binding.Declare[Prices](catalog).
//		Bind(contracts.Bind(interceptors.NameLogging).WithPriority(1)).
//		Method("Quote").Bind(contracts.Bind(interceptors.NameCaching, 60))
//
//	registry, err := interceptors.Resolve(catalog, reflect.TypeFor[Prices]())
package interceptors
