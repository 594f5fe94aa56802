package enums

import "fmt"

// CouponDiscountType describes how a coupon value is interpreted.
type CouponDiscountType string

const (
	CouponDiscountPercentage CouponDiscountType = "percentage"
	CouponDiscountFixed      CouponDiscountType = "fixed"
)

var validCouponDiscountTypes = []CouponDiscountType{
	CouponDiscountPercentage,
	CouponDiscountFixed,
}

// String implements fmt.Stringer.
func (v CouponDiscountType) String() string {
	return string(v)
}

// IsValid reports whether the value is a known CouponDiscountType.
func (v CouponDiscountType) IsValid() bool {
	for _, candidate := range validCouponDiscountTypes {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseCouponDiscountType converts raw input into a CouponDiscountType.
func ParseCouponDiscountType(value string) (CouponDiscountType, error) {
	for _, candidate := range validCouponDiscountTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid coupon discount type %q", value)
}

// CouponScope limits which cart items a coupon applies to.
type CouponScope string

const (
	CouponScopeAll      CouponScope = "all"
	CouponScopeProducts CouponScope = "products"
)

func (v CouponScope) IsValid() bool {
	return v == CouponScopeAll || v == CouponScopeProducts
}
