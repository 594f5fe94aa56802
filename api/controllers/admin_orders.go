package controllers

import (
	"net/http"

	"github.com/angelmondragon/assetdrop-backend/api/responses"
	ordersvc "github.com/angelmondragon/assetdrop-backend/internal/orders"
	pkgerrors "github.com/angelmondragon/assetdrop-backend/pkg/errors"
	"github.com/angelmondragon/assetdrop-backend/pkg/logger"
)

// AdminOrdersList returns orders across all buyers, with the same filters as
// the buyer listing.
func AdminOrdersList(svc ordersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		query, err := parseOrderQuery(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		list, err := svc.List(r.Context(), query)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// AdminOrderRefund refunds a completed order and revokes its downloads.
func AdminOrderRefund(svc ordersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		orderID, err := orderIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.AdminRefund(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if logg != nil {
			logg.Info(logg.WithOrderID(r.Context(), orderID.String()), "admin refund applied")
		}
		responses.WriteSuccess(w, order)
	}
}
