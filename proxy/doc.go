// Package proxy is a reflection based proxy provider. A Proxy stands in for
// an interface or struct type and routes every Call through a dispatcher,
// forwarding to an optional target object.
//
// Go cannot synthesise a type implementing an interface at run time, so a
// typed facade is a few lines of hand-written forwarding:
//
//	type pricesProxy struct{ p *proxy.Proxy }
//
//	func (x pricesProxy) Quote(item string) (int, error) {
//		return proxy.Return[int](x.p.Call("Quote", item))
//	}
package proxy
