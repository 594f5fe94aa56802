package enums

import "fmt"

// CartStatus tracks the lifecycle of a buyer cart. Only one active cart may exist per identity.
type CartStatus string

const (
	CartStatusActive    CartStatus = "active"
	CartStatusMerged    CartStatus = "merged"
	CartStatusConverted CartStatus = "converted"
	CartStatusAbandoned CartStatus = "abandoned"
)

var validCartStatuses = []CartStatus{
	CartStatusActive,
	CartStatusMerged,
	CartStatusConverted,
	CartStatusAbandoned,
}

// String implements fmt.Stringer.
func (v CartStatus) String() string {
	return string(v)
}

// IsValid reports whether the value is a known CartStatus.
func (v CartStatus) IsValid() bool {
	for _, candidate := range validCartStatuses {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseCartStatus converts raw input into a CartStatus.
func ParseCartStatus(value string) (CartStatus, error) {
	for _, candidate := range validCartStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid cart status %q", value)
}

// IsTerminal reports whether the cart can no longer accept items.
func (v CartStatus) IsTerminal() bool {
	return v != CartStatusActive
}
