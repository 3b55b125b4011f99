package interceptors

import (
	"reflect"
	"testing"

	"github.com/glimte/aspect-go/activation"
	"github.com/glimte/aspect-go/binding"
	"github.com/glimte/aspect-go/contracts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type alphaInterceptor struct{}

func (alphaInterceptor) InterceptBefore(contracts.BeforeInvocation) {}

type betaInterceptor struct{}

func (betaInterceptor) InterceptAfter(contracts.AfterInvocation) {}

type gammaInterceptor struct{}

func (gammaInterceptor) InterceptBefore(contracts.BeforeInvocation) {}
func (gammaInterceptor) InterceptAfter(contracts.AfterInvocation)   {}

type auditor interface {
	Audit(entry string)
}

func newTestCatalog(t *testing.T) *binding.Catalog {
	t.Helper()
	c := activation.NewConstructors()
	require.NoError(t, c.RegisterConstructor("alpha", func() alphaInterceptor { return alphaInterceptor{} }))
	require.NoError(t, c.RegisterConstructor("beta", func() betaInterceptor { return betaInterceptor{} }))
	require.NoError(t, c.RegisterConstructor("gamma", func() gammaInterceptor { return gammaInterceptor{} }))
	return binding.NewCatalog(c)
}

func typesOf(list []contracts.BoundInterceptor) []string {
	out := make([]string, len(list))
	for i, b := range list {
		out[i] = reflect.TypeOf(b.Interceptor).Name()
	}
	return out
}

func TestResolve(t *testing.T) {
	t.Run("empty declarations give every method an empty list", func(t *testing.T) {
		registry, err := Resolve(newTestCatalog(t), shopType)
		require.NoError(t, err)

		assert.Equal(t, 2, registry.Len())
		for _, m := range registry.Methods() {
			list, ok := registry.For(m)
			assert.True(t, ok)
			assert.Empty(t, list)
		}
	})

	t.Run("type-level bindings reach every method", func(t *testing.T) {
		catalog := newTestCatalog(t)
		catalog.Type(shopType).Bind(contracts.Bind("alpha"))

		registry, err := Resolve(catalog, shopType)
		require.NoError(t, err)

		for _, m := range registry.Methods() {
			list, _ := registry.For(m)
			assert.Equal(t, []string{"alphaInterceptor"}, typesOf(list))
		}
	})

	t.Run("method list is merged with type list and sorted", func(t *testing.T) {
		catalog := newTestCatalog(t)
		decl := catalog.Type(shopType)
		decl.Bind(contracts.Bind("alpha").WithPriority(3), contracts.Bind("gamma").WithPriority(1))
		decl.Method("Price").Bind(contracts.Bind("beta").WithPriority(3), contracts.Bind("alpha").WithPriority(3))

		registry, err := Resolve(catalog, shopType)
		require.NoError(t, err)

		price, _ := registry.For(shopMethod("Price"))
		assert.Equal(t, []string{"gammaInterceptor", "betaInterceptor", "alphaInterceptor"}, typesOf(price))

		stock, _ := registry.For(shopMethod("Stock"))
		assert.Equal(t, []string{"gammaInterceptor", "alphaInterceptor"}, typesOf(stock))
	})

	t.Run("same type at different priority is kept twice", func(t *testing.T) {
		catalog := newTestCatalog(t)
		decl := catalog.Type(shopType)
		decl.Bind(contracts.Bind("alpha").WithPriority(9))
		decl.Method("Stock").Bind(contracts.Bind("alpha").WithPriority(2))

		registry, err := Resolve(catalog, shopType)
		require.NoError(t, err)

		stock, _ := registry.For(shopMethod("Stock"))
		require.Len(t, stock, 2)
		assert.Equal(t, uint8(2), stock[0].Priority)
		assert.Equal(t, uint8(9), stock[1].Priority)
	})

	t.Run("additional interfaces are unioned", func(t *testing.T) {
		catalog := newTestCatalog(t)
		catalog.Type(reflect.TypeFor[auditor]()).Bind(contracts.Bind("beta"))

		registry, err := Resolve(catalog, shopType, reflect.TypeFor[auditor](), shopType)
		require.NoError(t, err)

		assert.Equal(t, 3, registry.Len())
		audit, ok := binding.MethodByName(reflect.TypeFor[auditor](), "Audit")
		require.True(t, ok)
		list, ok := registry.For(audit)
		require.True(t, ok)
		assert.Equal(t, []string{"betaInterceptor"}, typesOf(list))
	})

	t.Run("rejects non proxyable types", func(t *testing.T) {
		_, err := Resolve(newTestCatalog(t), reflect.TypeFor[int]())
		assert.ErrorIs(t, err, contracts.ErrInvalidType)
	})

	t.Run("propagates discovery errors", func(t *testing.T) {
		catalog := newTestCatalog(t)
		catalog.Type(shopType).Bind(contracts.Bind("missing"))

		_, err := Resolve(catalog, shopType)
		assert.ErrorIs(t, err, contracts.ErrInterceptorNotRegistered)
	})
}

func TestRegistry_Lookup(t *testing.T) {
	catalog := newTestCatalog(t)
	catalog.Type(shopType).Method("Price").Bind(contracts.Bind("alpha").WithPriority(5))
	catalog.Type(reflect.TypeFor[auditor]()).Method("Audit").Bind(contracts.Bind("beta").WithPriority(1))

	registry, err := Resolve(catalog, shopType, reflect.TypeFor[auditor]())
	require.NoError(t, err)

	audit, _ := binding.MethodByName(reflect.TypeFor[auditor](), "Audit")

	t.Run("merges lists in priority order", func(t *testing.T) {
		merged := registry.Lookup(shopMethod("Price"), audit)
		assert.Equal(t, []string{"betaInterceptor", "alphaInterceptor"}, typesOf(merged))
	})

	t.Run("ignores repeated and zero identities", func(t *testing.T) {
		merged := registry.Lookup(shopMethod("Price"), shopMethod("Price"), contracts.MethodIdentity{})
		assert.Len(t, merged, 1)
	})

	t.Run("unknown identity yields nothing", func(t *testing.T) {
		assert.Empty(t, registry.Lookup(contracts.MethodIdentity{Name: "Nope"}))
		_, ok := registry.For(contracts.MethodIdentity{Name: "Nope"})
		assert.False(t, ok)
	})

	t.Run("filters by capability", func(t *testing.T) {
		list := []contracts.BoundInterceptor{
			{Interceptor: alphaInterceptor{}},
			{Interceptor: betaInterceptor{}},
			{Interceptor: gammaInterceptor{}},
		}
		assert.Len(t, Befores(list), 2)
		assert.Len(t, Afters(list), 2)
	})
}
