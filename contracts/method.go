package contracts

import (
	"reflect"
	"strings"
)

// MethodIdentity identifies a declared method slot on a type or interface.
// Two identities are equal iff they denote the same declared method.
type MethodIdentity struct {
	DeclaringType reflect.Type
	Name          string
	Signature     string
}

// NewMethodIdentity builds the identity of method as declared on declaring.
// For concrete types the receiver is dropped from the signature so that an
// interface method and its implementation render the same signature text.
func NewMethodIdentity(declaring reflect.Type, method reflect.Method) MethodIdentity {
	return MethodIdentity{
		DeclaringType: declaring,
		Name:          method.Name,
		Signature:     signatureOf(declaring, method.Type),
	}
}

// IsZero reports whether the identity is unset
func (m MethodIdentity) IsZero() bool {
	return m.DeclaringType == nil && m.Name == ""
}

// String renders the identity as Type.Method(signature)
func (m MethodIdentity) String() string {
	if m.DeclaringType == nil {
		return m.Name
	}
	return TypeName(m.DeclaringType) + "." + m.Name + strings.TrimPrefix(m.Signature, "func")
}

// TypeName returns a readable name for t, keeping the pointer marker.
func TypeName(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	if t.Kind() == reflect.Pointer {
		return "*" + TypeName(t.Elem())
	}
	if t.Name() == "" {
		return t.String()
	}
	if t.PkgPath() == "" {
		return t.Name()
	}
	return t.PkgPath() + "." + t.Name()
}

func signatureOf(declaring reflect.Type, fn reflect.Type) string {
	skip := 0
	if declaring.Kind() != reflect.Interface {
		skip = 1
	}

	var b strings.Builder
	b.WriteString("func(")
	for i := skip; i < fn.NumIn(); i++ {
		if i > skip {
			b.WriteString(", ")
		}
		if fn.IsVariadic() && i == fn.NumIn()-1 {
			b.WriteString("..." + fn.In(i).Elem().String())
			continue
		}
		b.WriteString(fn.In(i).String())
	}
	b.WriteString(")")

	switch fn.NumOut() {
	case 0:
	case 1:
		b.WriteString(" " + fn.Out(0).String())
	default:
		b.WriteString(" (")
		for i := 0; i < fn.NumOut(); i++ {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(fn.Out(i).String())
		}
		b.WriteString(")")
	}
	return b.String()
}
