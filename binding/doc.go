// Package binding is the declarative binding surface of the interception
// engine. A Catalog records, per proxied type, the interceptor bindings
// declared on the type and on each of its methods, together with the
// policy and marker annotations attached to methods, and turns bindings into
// instantiated interceptors on request.
//
// Example usage:
//
//	catalog := binding.NewCatalog(constructors)
//	orders := binding.Declare[OrderService](catalog).
//		Bind(contracts.Bind("logging").WithPriority(10))
//	orders.Method("Place").
//		Bind(contracts.Bind("validation", "amount")).
//		Annotate(contracts.HandleErrorOf[*ErrOutOfStock](contracts.StrategyIgnore))
package binding
