package contracts

import (
	"sync"
	"time"
)

// Values holds data shared between the interceptors of one call
type Values struct {
	values map[string]any
	mu     sync.RWMutex
}

// NewValues creates an empty value bag
func NewValues() *Values {
	return &Values{
		values: make(map[string]any),
	}
}

// Set stores a value
func (v *Values) Set(key string, value any) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.values[key] = value
}

// Get retrieves a value
func (v *Values) Get(key string) (any, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	value, exists := v.values[key]
	return value, exists
}

// GetString retrieves a string value
func (v *Values) GetString(key string) (string, bool) {
	value, exists := v.Get(key)
	if !exists {
		return "", false
	}
	s, ok := value.(string)
	return s, ok
}

// GetTime retrieves a time value
func (v *Values) GetTime(key string) (time.Time, bool) {
	value, exists := v.Get(key)
	if !exists {
		return time.Time{}, false
	}
	t, ok := value.(time.Time)
	return t, ok
}

// Delete removes a value
func (v *Values) Delete(key string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.values, key)
}
