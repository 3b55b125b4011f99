package interceptors

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/glimte/aspect-go/contracts"
	"github.com/glimte/aspect-go/logging"
)

const (
	cacheKeyKey = "aspect:cache:key"
	cacheHitKey = "aspect:cache:hit"
)

// ShortCircuitResult describes a call answered without the real call
type ShortCircuitResult struct {
	Result any
	Reason string
}

// ShortCircuitInterceptor can skip the real call based on conditions
type ShortCircuitInterceptor struct {
	evaluator ShortCircuitEvaluator
}

// ShortCircuitEvaluator determines if the real call should be skipped
type ShortCircuitEvaluator interface {
	// ShouldShortCircuit returns true if the real call should be skipped.
	// The result, when non-nil, becomes the call's return value.
	ShouldShortCircuit(inv contracts.Invocation) (bool, *ShortCircuitResult, error)
}

// NewShortCircuitInterceptor creates a new short-circuit interceptor
func NewShortCircuitInterceptor(evaluator ShortCircuitEvaluator) *ShortCircuitInterceptor {
	return &ShortCircuitInterceptor{evaluator: evaluator}
}

// InterceptBefore implements contracts.BeforeInterceptor
func (i *ShortCircuitInterceptor) InterceptBefore(inv contracts.BeforeInvocation) {
	shouldShortCircuit, result, err := i.evaluator.ShouldShortCircuit(inv)
	if err != nil {
		inv.Abort(err)
		return
	}

	if shouldShortCircuit {
		if result != nil {
			inv.SetReturnValue(result.Result)
		}
		inv.SetProceed(false)
	}
}

// Cache defines the interface for return value caching
type Cache interface {
	Get(key string) (any, bool)
	Set(key string, value any, ttl time.Duration)
}

// KeyFunc derives a cache key from a call
type KeyFunc func(method contracts.MethodIdentity, args []any) string

// DefaultKey keys a call by method identity and formatted arguments
func DefaultKey(method contracts.MethodIdentity, args []any) string {
	var b strings.Builder
	b.WriteString(method.String())
	for _, arg := range args {
		fmt.Fprintf(&b, "|%#v", arg)
	}
	return b.String()
}

// CachingInterceptor answers repeated calls from a cache, skipping the real call on a hit
type CachingInterceptor struct {
	cache Cache
	key   KeyFunc
	ttl   time.Duration
}

// CachingOption configures a CachingInterceptor
type CachingOption func(*CachingInterceptor)

// WithCacheTTL sets how long results stay cached; zero keeps them forever
func WithCacheTTL(ttl time.Duration) CachingOption {
	return func(i *CachingInterceptor) {
		i.ttl = ttl
	}
}

// WithCacheKey replaces DefaultKey
func WithCacheKey(key KeyFunc) CachingOption {
	return func(i *CachingInterceptor) {
		if key != nil {
			i.key = key
		}
	}
}

// NewCachingInterceptor creates a new caching interceptor
func NewCachingInterceptor(cache Cache, opts ...CachingOption) *CachingInterceptor {
	i := &CachingInterceptor{
		cache: cache,
		key:   DefaultKey,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// InterceptBefore implements contracts.BeforeInterceptor
func (i *CachingInterceptor) InterceptBefore(inv contracts.BeforeInvocation) {
	key := i.key(inv.Method(), inv.Arguments())
	inv.Values().Set(cacheKeyKey, key)

	cached, found := i.cache.Get(key)
	if !found {
		return
	}

	// Short-circuit with cached result
	inv.Values().Set(cacheHitKey, true)
	inv.SetReturnValue(cached)
	inv.SetProceed(false)
}

// InterceptAfter implements contracts.AfterInterceptor
func (i *CachingInterceptor) InterceptAfter(inv contracts.AfterInvocation) {
	if hit, _ := inv.Values().Get(cacheHitKey); hit == true {
		return
	}
	key, ok := inv.Values().GetString(cacheKeyKey)
	if !ok {
		return
	}
	i.cache.Set(key, inv.ReturnValue(), i.ttl)
}

type cacheEntry struct {
	value     any
	expiresAt time.Time
}

// MemoryCache is an in-process Cache safe for concurrent use
type MemoryCache struct {
	entries map[string]cacheEntry
	now     func() time.Time
	mu      sync.RWMutex
}

// NewMemoryCache creates an empty memory cache
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

// Get implements Cache
func (c *MemoryCache) Get(key string) (any, bool) {
	c.mu.RLock()
	entry, exists := c.entries[key]
	c.mu.RUnlock()

	if !exists {
		return nil, false
	}
	if !entry.expiresAt.IsZero() && !c.now().Before(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, false
	}
	return entry.value, true
}

// Set implements Cache
func (c *MemoryCache) Set(key string, value any, ttl time.Duration) {
	entry := cacheEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = c.now().Add(ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry
}

// Len returns the number of stored entries, expired ones included
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// DuplicateDetectionInterceptor skips calls whose key was already processed
type DuplicateDetectionInterceptor struct {
	detector DuplicateDetector
	key      KeyFunc
}

// DuplicateDetector defines the interface for duplicate detection
type DuplicateDetector interface {
	IsDuplicate(key string) (bool, error)
	MarkProcessed(key string) error
}

// NewDuplicateDetectionInterceptor creates a new duplicate detection interceptor
func NewDuplicateDetectionInterceptor(detector DuplicateDetector) *DuplicateDetectionInterceptor {
	return &DuplicateDetectionInterceptor{
		detector: detector,
		key:      DefaultKey,
	}
}

const duplicateKeyKey = "aspect:dedup:key"

// InterceptBefore implements contracts.BeforeInterceptor
func (i *DuplicateDetectionInterceptor) InterceptBefore(inv contracts.BeforeInvocation) {
	key := i.key(inv.Method(), inv.Arguments())

	isDuplicate, err := i.detector.IsDuplicate(key)
	if err != nil {
		inv.Abort(err)
		return
	}

	if isDuplicate {
		// Short-circuit for duplicate
		inv.SetProceed(false)
		return
	}
	inv.Values().Set(duplicateKeyKey, key)
}

// InterceptAfter implements contracts.AfterInterceptor
func (i *DuplicateDetectionInterceptor) InterceptAfter(inv contracts.AfterInvocation) {
	key, ok := inv.Values().GetString(duplicateKeyKey)
	if !ok {
		return
	}
	if err := i.detector.MarkProcessed(key); err != nil {
		logging.Writef(inv.Logger(), logging.LevelWarn, "failed to mark call %s processed: %v", key, err)
	}
}

// MemoryDuplicateDetector remembers processed keys for the life of the process
type MemoryDuplicateDetector struct {
	processed map[string]struct{}
	mu        sync.RWMutex
}

// NewMemoryDuplicateDetector creates an empty detector
func NewMemoryDuplicateDetector() *MemoryDuplicateDetector {
	return &MemoryDuplicateDetector{
		processed: make(map[string]struct{}),
	}
}

// IsDuplicate implements DuplicateDetector
func (d *MemoryDuplicateDetector) IsDuplicate(key string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, exists := d.processed[key]
	return exists, nil
}

// MarkProcessed implements DuplicateDetector
func (d *MemoryDuplicateDetector) MarkProcessed(key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.processed[key] = struct{}{}
	return nil
}
