package contracts

import (
	"fmt"
	"strings"
)

// Variant names the build variant a policy is active in
type Variant int

const (
	// VariantAll makes a policy active in every build
	VariantAll Variant = iota
	// VariantDebug makes a policy active in debug builds only
	VariantDebug
	// VariantRelease makes a policy active in release builds only
	VariantRelease
)

// String implements fmt.Stringer
func (v Variant) String() string {
	switch v {
	case VariantAll:
		return "all"
	case VariantDebug:
		return "debug"
	case VariantRelease:
		return "release"
	default:
		return fmt.Sprintf("variant(%d)", int(v))
	}
}

// ActiveIn reports whether a policy scoped to v fires in the current build
func (v Variant) ActiveIn(current Variant) bool {
	return v == VariantAll || v == current
}

// ParseVariant parses "all", "debug" or "release"
func ParseVariant(s string) (Variant, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all":
		return VariantAll, nil
	case "debug":
		return VariantDebug, nil
	case "release":
		return VariantRelease, nil
	default:
		return VariantAll, fmt.Errorf("%w: %q", ErrInvalidVariant, s)
	}
}

// UnmarshalText implements encoding.TextUnmarshaler
func (v *Variant) UnmarshalText(text []byte) error {
	parsed, err := ParseVariant(string(text))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler
func (v Variant) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}
