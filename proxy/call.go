package proxy

import (
	"fmt"
	"reflect"

	"github.com/glimte/aspect-go/activation"
	"github.com/glimte/aspect-go/contracts"
)

// call is the contracts.Call of one proxied invocation
type call struct {
	proxy     *Proxy
	method    *proxiedMethod
	args      []any
	generics  []reflect.Type
	ret       any
	retSet    bool
	proceeded bool
}

var _ contracts.Call = (*call)(nil)

func (c *call) Method() contracts.MethodIdentity {
	return c.method.id
}

func (c *call) TargetMethod() (contracts.MethodIdentity, bool) {
	return c.method.target, !c.method.target.IsZero()
}

func (c *call) Aliases() []contracts.MethodIdentity {
	return c.method.aliases
}

func (c *call) HasTarget() bool {
	return c.method.bound.IsValid()
}

func (c *call) Arguments() []any {
	return c.args
}

func (c *call) SetArgument(index int, value any) {
	if index >= 0 && index < len(c.args) {
		c.args[index] = value
	}
}

func (c *call) GenericArguments() []reflect.Type {
	return c.generics
}

func (c *call) ReturnValue() any {
	return c.ret
}

func (c *call) SetReturnValue(value any) {
	c.ret = value
	c.retSet = true
}

// Proceed forwards the current arguments to the target
func (c *call) Proceed() error {
	if !c.HasTarget() {
		return c.fail(contracts.ErrNoTarget)
	}
	if c.proceeded {
		return c.fail(contracts.ErrProceeded)
	}
	c.proceeded = true

	in, err := c.inputs()
	if err != nil {
		return c.fail(err)
	}

	out := c.method.bound.Call(in)

	if n := len(out); n > 0 && c.method.fnType.Out(n-1) == errorType {
		if errValue := out[n-1]; !errValue.IsNil() {
			return errValue.Interface().(error)
		}
		out = out[:n-1]
	}

	switch len(out) {
	case 0:
	case 1:
		c.SetReturnValue(out[0].Interface())
	default:
		results := make([]any, len(out))
		for i, v := range out {
			results[i] = v.Interface()
		}
		c.SetReturnValue(results)
	}
	return nil
}

func (c *call) inputs() ([]reflect.Value, error) {
	fn := c.method.fnType
	in := make([]reflect.Value, len(c.args))
	for i, arg := range c.args {
		var param reflect.Type
		if fn.IsVariadic() && i >= fn.NumIn()-1 {
			param = fn.In(fn.NumIn() - 1).Elem()
		} else {
			param = fn.In(i)
		}

		v, ok := activation.ConvertArgument(arg, param)
		if !ok {
			return nil, fmt.Errorf("%w: argument %d is %T, want %v", contracts.ErrArgumentType, i, arg, param)
		}
		in[i] = v
	}
	return in, nil
}

func (c *call) fail(err error) error {
	return &contracts.ProxyError{
		Op:   "proceed " + c.method.id.Name,
		Type: contracts.TypeName(c.proxy.typ),
		Err:  err,
	}
}
