package orders

// Keys stored in Order.Metadata.
const (
	MetadataCartID       = "cart_id"
	MetadataCouponCode   = "coupon_code"
	MetadataAffiliateRef = "affiliate_ref"
)

func metadataString(meta map[string]any, key string) string {
	if meta == nil {
		return ""
	}
	if v, ok := meta[key].(string); ok {
		return v
	}
	return ""
}
