package contracts

// BeforeInterceptor runs before the real call
type BeforeInterceptor interface {
	InterceptBefore(inv BeforeInvocation)
}

// AfterInterceptor runs after the real call
type AfterInterceptor interface {
	InterceptAfter(inv AfterInvocation)
}

// IsInterceptor reports whether v implements at least one interceptor capability
func IsInterceptor(v any) bool {
	switch v.(type) {
	case BeforeInterceptor, AfterInterceptor:
		return true
	default:
		return false
	}
}
