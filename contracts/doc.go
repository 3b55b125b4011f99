// Package contracts defines the types shared by every part of the interception engine.
//
// This package contains:
//   - MethodIdentity: the comparable key naming one declared method slot
//   - Binding and BoundInterceptor: declared and instantiated interceptor bindings
//   - HandleError, WriteLog, NoteElapsedTime: declarative per-method policies
//   - Marker: capability implemented by user-defined annotations
//   - Call: the dispatch callback surface supplied by a proxy provider
//   - BeforeInvocation and AfterInvocation: the two narrowed views handed to interceptors
//
// Nothing in this package performs dispatch; see the dispatch package for that.
package contracts
