package activation

import (
	"errors"
	"testing"
	"time"

	"github.com/glimte/aspect-go/contracts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type auditInterceptor struct {
	prefix string
	limit  int
}

func (a *auditInterceptor) InterceptBefore(contracts.BeforeInvocation) {}

type plainInterceptor struct {
	calls int
}

func (p *plainInterceptor) InterceptAfter(contracts.AfterInvocation) { p.calls++ }

func newAudit(prefix string, limit int) *auditInterceptor {
	return &auditInterceptor{prefix: prefix, limit: limit}
}

func TestConstructors_Register(t *testing.T) {
	t.Run("rejects non-function", func(t *testing.T) {
		c := NewConstructors()
		err := c.RegisterConstructor("audit", 42)
		assert.Error(t, err)
	})

	t.Run("rejects bad return signature", func(t *testing.T) {
		c := NewConstructors()
		err := c.RegisterConstructor("audit", func() (int, int) { return 0, 0 })
		assert.Error(t, err)
	})

	t.Run("rejects non-struct prototype", func(t *testing.T) {
		c := NewConstructors()
		assert.Error(t, c.RegisterPrototype("p", plainInterceptor{}))
		assert.Error(t, c.RegisterPrototype("p", nil))
	})

	t.Run("rejects duplicates", func(t *testing.T) {
		c := NewConstructors()
		require.NoError(t, c.RegisterPrototype("plain", &plainInterceptor{}))
		assert.Error(t, c.RegisterPrototype("plain", &plainInterceptor{}))
	})

	t.Run("lists names", func(t *testing.T) {
		c := NewConstructors()
		require.NoError(t, c.RegisterPrototype("b", &plainInterceptor{}))
		require.NoError(t, c.RegisterConstructor("a", newAudit))
		assert.Equal(t, []string{"a", "b"}, c.Names())
		assert.True(t, c.IsRegistered("a"))
		assert.False(t, c.IsRegistered("c"))
	})
}

func TestConstructors_Instantiate(t *testing.T) {
	c := NewConstructors()
	require.NoError(t, c.RegisterConstructor("audit", newAudit))
	require.NoError(t, c.RegisterPrototype("plain", &plainInterceptor{}))

	t.Run("prototype creates fresh instances", func(t *testing.T) {
		a, err := c.Instantiate("plain", nil)
		require.NoError(t, err)
		b, err := c.Instantiate("plain", nil)
		require.NoError(t, err)

		assert.IsType(t, &plainInterceptor{}, a)
		assert.NotSame(t, a, b)
	})

	t.Run("constructor receives arguments", func(t *testing.T) {
		v, err := c.Instantiate("audit", []any{"orders", 3})
		require.NoError(t, err)

		audit := v.(*auditInterceptor)
		assert.Equal(t, "orders", audit.prefix)
		assert.Equal(t, 3, audit.limit)
	})

	t.Run("numeric arguments convert", func(t *testing.T) {
		v, err := c.Instantiate("audit", []any{"orders", int64(7)})
		require.NoError(t, err)
		assert.Equal(t, 7, v.(*auditInterceptor).limit)
	})

	t.Run("mismatched arguments name the supplied types", func(t *testing.T) {
		_, err := c.Instantiate("audit", []any{true})

		var ctorErr *contracts.ConstructorError
		require.ErrorAs(t, err, &ctorErr)
		assert.Equal(t, "audit", ctorErr.Interceptor)
		assert.Equal(t, []string{"bool"}, ctorErr.ArgTypes)
		assert.ErrorIs(t, err, contracts.ErrNoMatchingConstructor)
		assert.Contains(t, err.Error(), "(bool)")
	})

	t.Run("prototype with arguments has no constructor", func(t *testing.T) {
		_, err := c.Instantiate("plain", []any{"x", 1})

		var ctorErr *contracts.ConstructorError
		require.ErrorAs(t, err, &ctorErr)
		assert.Equal(t, []string{"string", "int"}, ctorErr.ArgTypes)
	})

	t.Run("unknown name", func(t *testing.T) {
		_, err := c.Instantiate("missing", nil)
		assert.ErrorIs(t, err, contracts.ErrInterceptorNotRegistered)
	})
}

func TestConstructors_ConstructorFailures(t *testing.T) {
	boom := errors.New("boom")

	c := NewConstructors()
	require.NoError(t, c.RegisterConstructor("failing", func() (*plainInterceptor, error) {
		return nil, boom
	}))
	require.NoError(t, c.RegisterConstructor("nil", func() *plainInterceptor {
		return nil
	}))
	require.NoError(t, c.RegisterConstructor("variadic", func(names ...string) *auditInterceptor {
		return &auditInterceptor{limit: len(names)}
	}))
	require.NoError(t, c.RegisterConstructor("timeout", func(d time.Duration) *auditInterceptor {
		return &auditInterceptor{limit: int(d / time.Second)}
	}))

	t.Run("constructor error propagates unchanged", func(t *testing.T) {
		_, err := c.Instantiate("failing", nil)
		assert.Same(t, boom, err)
	})

	t.Run("nil instance is returned as nil", func(t *testing.T) {
		v, err := c.Instantiate("nil", nil)
		assert.NoError(t, err)
		assert.Nil(t, v)
	})

	t.Run("variadic constructor", func(t *testing.T) {
		v, err := c.Instantiate("variadic", []any{"a", "b", "c"})
		require.NoError(t, err)
		assert.Equal(t, 3, v.(*auditInterceptor).limit)
	})

	t.Run("duration from integer", func(t *testing.T) {
		v, err := c.Instantiate("timeout", []any{int64(2 * time.Second)})
		require.NoError(t, err)
		assert.Equal(t, 2, v.(*auditInterceptor).limit)
	})
}

func TestInstantiatorFunc(t *testing.T) {
	var f Instantiator = InstantiatorFunc(func(name string, args []any) (any, error) {
		return name, nil
	})
	v, err := f.Instantiate("x", nil)
	require.NoError(t, err)
	assert.Equal(t, "x", v)
}
