package contracts

import (
	"math"
	"reflect"
	"sort"
)

// DefaultPriority is the priority of a binding that does not set one.
// Lower values run first, so the default has the lowest precedence.
const DefaultPriority uint8 = math.MaxUint8

// Binding declares that the interceptor registered under Interceptor applies
// to a type or a method. Args are handed to the interceptor's constructor.
type Binding struct {
	Interceptor string
	Priority    uint8
	Args        []any
}

// Bind creates a binding at DefaultPriority
func Bind(interceptor string, args ...any) Binding {
	return Binding{
		Interceptor: interceptor,
		Priority:    DefaultPriority,
		Args:        args,
	}
}

// WithPriority returns a copy of the binding with the given priority
func (b Binding) WithPriority(priority uint8) Binding {
	b.Priority = priority
	return b
}

// BoundInterceptor is an instantiated binding
type BoundInterceptor struct {
	Priority    uint8
	Interceptor any
}

// Equal reports whether two bound interceptors are duplicates: same priority
// and same dynamic interceptor type.
func (b BoundInterceptor) Equal(other BoundInterceptor) bool {
	return b.Priority == other.Priority &&
		reflect.TypeOf(b.Interceptor) == reflect.TypeOf(other.Interceptor)
}

// ContainsBound reports whether list already holds a duplicate of b
func ContainsBound(list []BoundInterceptor, b BoundInterceptor) bool {
	for _, existing := range list {
		if existing.Equal(b) {
			return true
		}
	}
	return false
}

// AppendUnique appends every entry of more that is not already present
func AppendUnique(list []BoundInterceptor, more ...BoundInterceptor) []BoundInterceptor {
	for _, b := range more {
		if !ContainsBound(list, b) {
			list = append(list, b)
		}
	}
	return list
}

// SortByPriority orders list ascending by priority, keeping discovery order for ties
func SortByPriority(list []BoundInterceptor) {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].Priority < list[j].Priority
	})
}
