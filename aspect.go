// Copyright 2024 Mmate Contributors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package aspect

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"reflect"

	"github.com/glimte/aspect-go/activation"
	"github.com/glimte/aspect-go/binding"
	"github.com/glimte/aspect-go/contracts"
	"github.com/glimte/aspect-go/dispatch"
	"github.com/glimte/aspect-go/interceptors"
	"github.com/glimte/aspect-go/internal/config"
	"github.com/glimte/aspect-go/internal/rabbitmq"
	"github.com/glimte/aspect-go/internal/reliability"
	"github.com/glimte/aspect-go/logging"
	"github.com/glimte/aspect-go/manifest"
	"github.com/glimte/aspect-go/proxy"
	rabbitmqTransport "github.com/glimte/aspect-go/transports/rabbitmq"
)

// Factory provides the main entry point for aspect-go. It owns the binding
// catalog proxies are resolved from.
type Factory struct {
	logger       *slog.Logger
	variant      contracts.Variant
	constructors *activation.Constructors
	types        *activation.TypeRegistry
	catalog      *binding.Catalog
	recorder     dispatch.TimingRecorder
	closers      []io.Closer
}

// NewFactory creates a new proxy factory with options
func NewFactory(options ...FactoryOption) (*Factory, error) {
	cfg := &factoryConfig{
		logger:  slog.Default(),
		variant: contracts.VariantRelease,
	}

	for _, opt := range options {
		opt(cfg)
	}

	if cfg.constructors == nil {
		cfg.constructors = activation.NewConstructors()
	}
	if cfg.types == nil {
		cfg.types = activation.NewTypeRegistry()
	}

	catalogOpts := []binding.Option{binding.WithLogger(logging.Slog(cfg.logger))}
	if cfg.lenient {
		catalogOpts = append(catalogOpts, binding.WithLenient())
	}

	f := &Factory{
		logger:       cfg.logger,
		variant:      cfg.variant,
		constructors: cfg.constructors,
		types:        cfg.types,
		catalog:      binding.NewCatalog(cfg.constructors, catalogOpts...),
		recorder:     cfg.recorder,
		closers:      cfg.closers,
	}

	if cfg.builtins != nil {
		builder := interceptors.NewBuiltinsBuilder(f.constructors, f.logger)
		cfg.builtins(builder)
		if err := builder.Build(); err != nil {
			f.logger.Error("failed to register built-in interceptors", "error", err)
			return nil, err
		}
	}

	for _, m := range cfg.manifests {
		if err := m.Apply(f.catalog, f.types); err != nil {
			f.logger.Error("failed to apply binding manifest", "error", err)
			return nil, fmt.Errorf("failed to apply manifest: %w", err)
		}
	}

	return f, nil
}

// NewFactoryFromEnv creates a factory configured from ASPECT_* environment
// variables. Options are applied after the environment and win over it.
func NewFactoryFromEnv(options ...FactoryOption) (*Factory, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	envOptions := []FactoryOption{
		WithLogger(logger),
		WithVariant(cfg.Variant),
	}
	if !cfg.StrictBindings {
		envOptions = append(envOptions, WithLenient())
	}
	if cfg.Manifest != "" {
		m, err := manifest.Load(cfg.Manifest)
		if err != nil {
			logger.Error("failed to load binding manifest", "path", cfg.Manifest, "error", err)
			return nil, err
		}
		envOptions = append(envOptions, WithManifest(m))
	}
	var owned io.Closer
	if cfg.TimingEnabled() {
		publisher, err := rabbitmqTransport.NewTimingPublisher(context.Background(), cfg.TimingAMQPURL,
			rabbitmqTransport.WithExchange(cfg.TimingExchange),
			rabbitmqTransport.WithRoutingKey(cfg.TimingRoutingKey),
			rabbitmqTransport.WithLogger(logger),
			rabbitmqTransport.WithPublisherOptions(rabbitmq.WithPublishTimeout(cfg.TimingPublishTimeout)),
			rabbitmqTransport.WithQueue(cfg.TimingQueueSize),
			rabbitmqTransport.WithCircuitBreaker(reliability.NewCircuitBreaker(
				reliability.WithName("timing:"+cfg.TimingExchange),
				reliability.WithFailureThreshold(cfg.TimingBreakerFailures),
				reliability.WithTimeout(cfg.TimingBreakerCooldown),
				reliability.WithStateChange(func(name string, from, to reliability.State, reason string) {
					logger.Warn("timing publisher circuit changed", "breaker", name, "to", to.String(), "reason", reason)
				}),
			)),
		)
		if err != nil {
			logger.Error("failed to create timing publisher", "error", err)
			return nil, err
		}
		envOptions = append(envOptions, WithTimingRecorder(publisher), withCloser(publisher))
		owned = publisher
	}

	f, err := NewFactory(append(envOptions, options...)...)
	if err != nil {
		if owned != nil {
			owned.Close()
		}
		return nil, err
	}
	return f, nil
}

// Catalog returns the catalog bindings are declared in
func (f *Factory) Catalog() *binding.Catalog {
	return f.catalog
}

// Constructors returns the registry interceptors and targets are built from
func (f *Factory) Constructors() *activation.Constructors {
	return f.constructors
}

// Types returns the registry manifest names are resolved against
func (f *Factory) Types() *activation.TypeRegistry {
	return f.types
}

// Variant returns the build variant of every dispatcher the factory creates
func (f *Factory) Variant() contracts.Variant {
	return f.variant
}

// ApplyManifest declares a manifest's bindings in the factory's catalog
func (f *Factory) ApplyManifest(m *manifest.Manifest) error {
	if err := m.Apply(f.catalog, f.types); err != nil {
		f.logger.Error("failed to apply binding manifest", "error", err)
		return err
	}
	return nil
}

// NewProxy creates a proxy for typ. Bindings are resolved once here; later
// declarations only affect proxies created afterwards.
func (f *Factory) NewProxy(typ reflect.Type, options ...ProxyOption) (*proxy.Proxy, error) {
	var cfg proxyConfig
	for _, opt := range options {
		opt(&cfg)
	}

	p, err := f.newProxy(typ, &cfg)
	if err != nil {
		f.logger.Error("failed to create proxy", "type", fmt.Sprint(typ), "error", err)
		return nil, err
	}
	return p, nil
}

func (f *Factory) newProxy(typ reflect.Type, cfg *proxyConfig) (*proxy.Proxy, error) {
	target := cfg.target
	if cfg.construct {
		built, err := f.construct(typ, cfg.constructorArgs)
		if err != nil {
			return nil, err
		}
		target = built
	}

	registry, err := interceptors.Resolve(f.catalog, typ, cfg.additional...)
	if err != nil {
		return nil, err
	}

	dispatchOpts := []dispatch.Option{
		dispatch.WithLogger(logging.Slog(f.logger)),
		dispatch.WithVariant(f.variant),
	}
	if f.recorder != nil {
		dispatchOpts = append(dispatchOpts, dispatch.WithTimingRecorder(f.recorder))
	}
	dispatcher := dispatch.New(registry, f.catalog, dispatchOpts...)

	proxyOpts := []proxy.Option{proxy.WithAdditionalInterfaces(cfg.additional...)}
	if target != nil {
		proxyOpts = append(proxyOpts, proxy.WithTarget(target))
	}
	return proxy.New(typ, dispatcher, proxyOpts...)
}

// construct builds a target for typ from the constructor registered under its
// type name, or as a zero value when no constructor is registered and no
// arguments are given
func (f *Factory) construct(typ reflect.Type, args []any) (any, error) {
	normalized, err := binding.Normalize(typ)
	if err != nil {
		return nil, &contracts.ProxyError{Op: "construct", Type: fmt.Sprint(typ), Err: err}
	}
	name := contracts.TypeName(normalized)

	if f.constructors.IsRegistered(name) {
		target, err := f.constructors.Instantiate(name, args)
		if err != nil {
			return nil, &contracts.ProxyError{Op: "construct", Type: name, Err: err}
		}
		if target == nil {
			return nil, &contracts.ProxyError{Op: "construct", Type: name, Err: fmt.Errorf("constructor returned nil")}
		}
		return target, nil
	}

	if len(args) == 0 && normalized.Kind() == reflect.Pointer {
		return reflect.New(normalized.Elem()).Interface(), nil
	}
	return nil, &contracts.ProxyError{
		Op:   "construct",
		Type: name,
		Err:  fmt.Errorf("%w: no constructor registered under %s", contracts.ErrNoMatchingConstructor, name),
	}
}

// Close releases resources the factory opened, such as the timing publisher
func (f *Factory) Close() error {
	var firstErr error
	for _, c := range f.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// New creates a proxy for T
func New[T any](f *Factory, options ...ProxyOption) (*proxy.Proxy, error) {
	return f.NewProxy(reflect.TypeFor[T](), options...)
}

// factoryConfig holds factory configuration
type factoryConfig struct {
	logger       *slog.Logger
	variant      contracts.Variant
	constructors *activation.Constructors
	types        *activation.TypeRegistry
	recorder     dispatch.TimingRecorder
	lenient      bool
	manifests    []*manifest.Manifest
	builtins     func(*interceptors.BuiltinsBuilder)
	closers      []io.Closer
}

// FactoryOption configures the factory
type FactoryOption func(*factoryConfig)

// WithLogger sets the logger for all components
func WithLogger(logger *slog.Logger) FactoryOption {
	return func(cfg *factoryConfig) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// WithDefaultLogger uses the default logger
func WithDefaultLogger() FactoryOption {
	return func(cfg *factoryConfig) {
		cfg.logger = slog.Default()
	}
}

// WithVariant sets the build variant; the default is release
func WithVariant(variant contracts.Variant) FactoryOption {
	return func(cfg *factoryConfig) {
		cfg.variant = variant
	}
}

// WithConstructors shares a constructor registry with the factory
func WithConstructors(constructors *activation.Constructors) FactoryOption {
	return func(cfg *factoryConfig) {
		cfg.constructors = constructors
	}
}

// WithTypeRegistry shares a type registry with the factory
func WithTypeRegistry(types *activation.TypeRegistry) FactoryOption {
	return func(cfg *factoryConfig) {
		cfg.types = types
	}
}

// WithTimingRecorder receives timing records of methods timed in record mode
func WithTimingRecorder(recorder dispatch.TimingRecorder) FactoryOption {
	return func(cfg *factoryConfig) {
		cfg.recorder = recorder
	}
}

// WithLenient skips bindings whose interceptor constructor returns nil
func WithLenient() FactoryOption {
	return func(cfg *factoryConfig) {
		cfg.lenient = true
	}
}

// WithManifest applies a binding manifest when the factory is created
func WithManifest(m *manifest.Manifest) FactoryOption {
	return func(cfg *factoryConfig) {
		cfg.manifests = append(cfg.manifests, m)
	}
}

// WithBuiltins registers the built-in interceptors configure selects. They
// are registered before manifests are applied.
func WithBuiltins(configure func(*interceptors.BuiltinsBuilder)) FactoryOption {
	return func(cfg *factoryConfig) {
		cfg.builtins = configure
	}
}

func withCloser(c io.Closer) FactoryOption {
	return func(cfg *factoryConfig) {
		cfg.closers = append(cfg.closers, c)
	}
}

// proxyConfig holds per-proxy configuration
type proxyConfig struct {
	target          any
	additional      []reflect.Type
	construct       bool
	constructorArgs []any
}

// ProxyOption configures a proxy created by the factory
type ProxyOption func(*proxyConfig)

// WithTarget forwards real calls to target
func WithTarget(target any) ProxyOption {
	return func(cfg *proxyConfig) {
		cfg.target = target
	}
}

// WithAdditionalInterfaces proxies further interfaces alongside the primary type
func WithAdditionalInterfaces(types ...reflect.Type) ProxyOption {
	return func(cfg *proxyConfig) {
		cfg.additional = append(cfg.additional, types...)
	}
}

// WithConstructorArgs builds the target from the constructor registered under
// the proxied type's name. Without a registered constructor and with no args,
// a struct type's zero value is used.
func WithConstructorArgs(args ...any) ProxyOption {
	return func(cfg *proxyConfig) {
		cfg.construct = true
		cfg.constructorArgs = args
	}
}
