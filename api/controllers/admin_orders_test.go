package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	ordersvc "github.com/angelmondragon/assetdrop-backend/internal/orders"
	"github.com/angelmondragon/assetdrop-backend/pkg/db/models"
	"github.com/angelmondragon/assetdrop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/assetdrop-backend/pkg/errors"
)

type stubOrdersService struct {
	query    ordersvc.Query
	list     *ordersvc.ListResult
	order    *ordersvc.OrderDTO
	err      error
	getUser  uuid.UUID
	getOrder uuid.UUID
	refunded uuid.UUID
}

func (s *stubOrdersService) List(ctx context.Context, q ordersvc.Query) (*ordersvc.ListResult, error) {
	s.query = q
	return s.list, s.err
}

func (s *stubOrdersService) Get(ctx context.Context, userID, orderID uuid.UUID) (*ordersvc.OrderDTO, error) {
	s.getUser = userID
	s.getOrder = orderID
	return s.order, s.err
}

func (s *stubOrdersService) AdminRefund(ctx context.Context, orderID uuid.UUID) (*ordersvc.OrderDTO, error) {
	s.refunded = orderID
	return s.order, s.err
}

func (s *stubOrdersService) ApplyRefund(ctx context.Context, paymentIntentID string) (*models.Order, error) {
	return nil, s.err
}

func (s *stubOrdersService) MarkFailed(ctx context.Context, sessionID, reason string) (bool, error) {
	return false, s.err
}

func (s *stubOrdersService) InvalidateListCaches(ctx context.Context, userID uuid.UUID) {}

func withOrderParam(req *http.Request, orderID string) *http.Request {
	rc := chi.NewRouteContext()
	rc.URLParams.Add("orderId", orderID)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
}

func TestAdminOrdersListParsesFilters(t *testing.T) {
	svc := &stubOrdersService{list: &ordersvc.ListResult{Orders: []ordersvc.OrderDTO{}}}
	handler := AdminOrdersList(svc, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/v1/orders?status=completed&q=jane&limit=10&from=2026-01-01T00:00:00Z&to=2026-02-01T00:00:00Z", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.query.UserID != nil {
		t.Fatalf("admin listing must not scope to a user")
	}
	if svc.query.Status == nil || *svc.query.Status != enums.OrderStatusCompleted {
		t.Fatalf("expected completed status filter, got %v", svc.query.Status)
	}
	if svc.query.Search != "jane" || svc.query.Limit != 10 {
		t.Fatalf("unexpected query %+v", svc.query)
	}
	wantFrom := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if svc.query.From == nil || !svc.query.From.Equal(wantFrom) {
		t.Fatalf("unexpected from %v", svc.query.From)
	}
}

func TestAdminOrdersListRejectsBadFilters(t *testing.T) {
	handler := AdminOrdersList(&stubOrdersService{list: &ordersvc.ListResult{}}, nil)
	for _, target := range []string{
		"/api/admin/v1/orders?status=shipped",
		"/api/admin/v1/orders?from=yesterday",
		"/api/admin/v1/orders?from=2026-02-01T00:00:00Z&to=2026-01-01T00:00:00Z",
		"/api/admin/v1/orders?limit=0",
	} {
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, target, nil))
		if resp.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400 got %d", target, resp.Code)
		}
	}
}

func TestAdminOrderRefund(t *testing.T) {
	orderID := uuid.New()
	svc := &stubOrdersService{order: &ordersvc.OrderDTO{ID: orderID, Status: enums.OrderStatusRefunded}}
	handler := AdminOrderRefund(svc, nil)

	req := withOrderParam(httptest.NewRequest(http.MethodPost, "/api/admin/v1/orders/"+orderID.String()+"/refund", nil), orderID.String())
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if svc.refunded != orderID {
		t.Fatalf("expected refund of %s got %s", orderID, svc.refunded)
	}
}

func TestAdminOrderRefundErrors(t *testing.T) {
	tests := []struct {
		name    string
		orderID string
		err     error
		status  int
	}{
		{"bad id", "42", nil, http.StatusBadRequest},
		{"not completed", uuid.NewString(), pkgerrors.New(pkgerrors.CodeStateConflict, "only completed orders can be refunded"), http.StatusUnprocessableEntity},
		{"missing", uuid.NewString(), pkgerrors.New(pkgerrors.CodeNotFound, "order not found"), http.StatusNotFound},
		{"gateway", uuid.NewString(), pkgerrors.New(pkgerrors.CodeDependency, "refund failed"), http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		svc := &stubOrdersService{err: tt.err}
		req := withOrderParam(httptest.NewRequest(http.MethodPost, "/refund", nil), tt.orderID)
		resp := httptest.NewRecorder()
		AdminOrderRefund(svc, nil).ServeHTTP(resp, req)
		if resp.Code != tt.status {
			t.Fatalf("%s: expected %d got %d", tt.name, tt.status, resp.Code)
		}
	}
}
