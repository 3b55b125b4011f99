// Package dispatch runs one intercepted call: it resolves the policies
// declared on the method, drives the before chain, performs the real call
// under the declared error, logging and timing policies, and drives the
// after chain.
package dispatch
