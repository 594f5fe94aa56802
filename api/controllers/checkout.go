package controllers

import (
	"net/http"

	"github.com/angelmondragon/assetdrop-backend/api/middleware"
	"github.com/angelmondragon/assetdrop-backend/api/responses"
	"github.com/angelmondragon/assetdrop-backend/api/validators"
	checkoutsvc "github.com/angelmondragon/assetdrop-backend/internal/checkout"
	pkgerrors "github.com/angelmondragon/assetdrop-backend/pkg/errors"
	"github.com/angelmondragon/assetdrop-backend/pkg/logger"
)

type checkoutSessionRequest struct {
	SuccessURL   string `json:"success_url,omitempty" validate:"omitempty,url,max=2048"`
	CancelURL    string `json:"cancel_url,omitempty" validate:"omitempty,url,max=2048"`
	CouponCode   string `json:"coupon_code,omitempty" validate:"omitempty,max=64"`
	AffiliateRef string `json:"affiliate_ref,omitempty" validate:"omitempty,max=128"`
}

// CheckoutSession starts a hosted payment session for the user's cart.
func CheckoutSession(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}
		userID, err := userIDFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload checkoutSessionRequest
		if err := validators.DecodeOptionalJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.CreateSession(r.Context(), checkoutsvc.Input{
			UserID:       userID,
			Email:        middleware.EmailFromContext(r.Context()),
			SuccessURL:   payload.SuccessURL,
			CancelURL:    payload.CancelURL,
			CouponCode:   validators.SanitizeString(payload.CouponCode, 64),
			AffiliateRef: validators.SanitizeString(payload.AffiliateRef, 128),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}
