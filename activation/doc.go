// Package activation resolves names to types and instantiates registered
// interceptors with declared constructor arguments.
//
// TypeRegistry maps stable names to reflect.Types so that declarative
// manifests can refer to proxied types and error types. Constructors maps
// interceptor names to constructor functions or prototype types and
// implements Instantiator.
package activation
