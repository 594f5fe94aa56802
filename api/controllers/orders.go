package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/assetdrop-backend/api/responses"
	"github.com/angelmondragon/assetdrop-backend/api/validators"
	ordersvc "github.com/angelmondragon/assetdrop-backend/internal/orders"
	"github.com/angelmondragon/assetdrop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/assetdrop-backend/pkg/errors"
	"github.com/angelmondragon/assetdrop-backend/pkg/logger"
	"github.com/angelmondragon/assetdrop-backend/pkg/pagination"
)

const maxSearchLength = 128

// OrdersList returns the caller's orders, newest first.
func OrdersList(svc ordersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		userID, err := userIDFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		query, err := parseOrderQuery(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		query.UserID = &userID

		list, err := svc.List(r.Context(), query)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// OrderGet returns one of the caller's orders with its download links.
func OrderGet(svc ordersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		userID, err := userIDFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := orderIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.Get(r.Context(), userID, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

func parseOrderQuery(r *http.Request) (ordersvc.Query, error) {
	limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return ordersvc.Query{}, err
	}
	query := ordersvc.Query{
		Limit:  limit,
		Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		Search: validators.ParseQueryString(r, "q", maxSearchLength),
	}

	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status, err := enums.ParseOrderStatus(raw)
		if err != nil {
			return ordersvc.Query{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status").WithDetails(map[string]any{"field": "status"})
		}
		query.Status = &status
	}
	if query.From, err = parseQueryTime(r, "from"); err != nil {
		return ordersvc.Query{}, err
	}
	if query.To, err = parseQueryTime(r, "to"); err != nil {
		return ordersvc.Query{}, err
	}
	if query.From != nil && query.To != nil && query.To.Before(*query.From) {
		return ordersvc.Query{}, pkgerrors.New(pkgerrors.CodeValidation, "to must not be before from")
	}
	return query, nil
}

func parseQueryTime(r *http.Request, key string) (*time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return nil, nil
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "timestamp must be RFC3339").WithDetails(map[string]any{"field": key})
	}
	ts = ts.UTC()
	return &ts, nil
}

// orderIDParam reads the {orderId} path segment shared by buyer and admin routes.
func orderIDParam(r *http.Request) (uuid.UUID, error) {
	return validators.ParseUUIDParam(r, "orderId")
}
