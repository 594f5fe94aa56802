package checkout

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// PurchaseType tags sessions created by this service so the webhook
// reconciler can ignore every other checkout on the account.
const PurchaseType = "digital_purchase"

const (
	metaType         = "type"
	metaUserID       = "userId"
	metaCartID       = "cartId"
	metaCartItemIDs  = "cartItemIds"
	metaCouponCode   = "couponCode"
	metaAffiliateRef = "affiliateRef"

	// Stripe rejects metadata values longer than 500 characters.
	metadataValueLimit = 500
)

// SessionMetadata is what a checkout session carries from initiation to the
// completion webhook.
type SessionMetadata struct {
	UserID       uuid.UUID
	CartID       uuid.UUID
	CartItemIDs  []uuid.UUID
	CouponCode   string
	AffiliateRef string
}

// Encode flattens the metadata, spreading the item ids over cartItemIds,
// cartItemIds_1, ... so no value passes the processor limit.
func (m SessionMetadata) Encode() map[string]string {
	out := map[string]string{
		metaType:   PurchaseType,
		metaUserID: m.UserID.String(),
		metaCartID: m.CartID.String(),
	}
	for i, chunk := range chunkIDs(m.CartItemIDs, metadataValueLimit) {
		out[chunkKey(i)] = chunk
	}
	if m.CouponCode != "" {
		out[metaCouponCode] = m.CouponCode
	}
	if m.AffiliateRef != "" {
		out[metaAffiliateRef] = m.AffiliateRef
	}
	return out
}

// IsPurchase reports whether raw metadata belongs to a session created here.
func IsPurchase(raw map[string]string) bool {
	return raw[metaType] == PurchaseType
}

// DecodeSessionMetadata reverses Encode.
func DecodeSessionMetadata(raw map[string]string) (*SessionMetadata, error) {
	if !IsPurchase(raw) {
		return nil, fmt.Errorf("metadata type %q is not %q", raw[metaType], PurchaseType)
	}
	userID, err := uuid.Parse(raw[metaUserID])
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", metaUserID, err)
	}
	cartID, err := uuid.Parse(raw[metaCartID])
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", metaCartID, err)
	}

	var joined []string
	for i := 0; ; i++ {
		chunk, ok := raw[chunkKey(i)]
		if !ok {
			break
		}
		if chunk != "" {
			joined = append(joined, chunk)
		}
	}
	if len(joined) == 0 {
		return nil, fmt.Errorf("%s missing", metaCartItemIDs)
	}

	var itemIDs []uuid.UUID
	for _, part := range strings.Split(strings.Join(joined, ","), ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := uuid.Parse(part)
		if err != nil {
			return nil, fmt.Errorf("parse cart item id %q: %w", part, err)
		}
		itemIDs = append(itemIDs, id)
	}

	return &SessionMetadata{
		UserID:       userID,
		CartID:       cartID,
		CartItemIDs:  itemIDs,
		CouponCode:   raw[metaCouponCode],
		AffiliateRef: raw[metaAffiliateRef],
	}, nil
}

func chunkKey(i int) string {
	if i == 0 {
		return metaCartItemIDs
	}
	return fmt.Sprintf("%s_%d", metaCartItemIDs, i)
}

func chunkIDs(ids []uuid.UUID, limit int) []string {
	var (
		chunks []string
		b      strings.Builder
	)
	for _, id := range ids {
		s := id.String()
		if b.Len() > 0 && b.Len()+1+len(s) > limit {
			chunks = append(chunks, b.String())
			b.Reset()
		}
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s)
	}
	if b.Len() > 0 {
		chunks = append(chunks, b.String())
	}
	return chunks
}
