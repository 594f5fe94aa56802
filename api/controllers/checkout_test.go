package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/angelmondragon/assetdrop-backend/api/middleware"
	checkoutsvc "github.com/angelmondragon/assetdrop-backend/internal/checkout"
	pkgerrors "github.com/angelmondragon/assetdrop-backend/pkg/errors"
)

type stubCheckoutService struct {
	input  checkoutsvc.Input
	result *checkoutsvc.Result
	err    error
}

func (s *stubCheckoutService) CreateSession(ctx context.Context, input checkoutsvc.Input) (*checkoutsvc.Result, error) {
	s.input = input
	return s.result, s.err
}

func authedRequest(method, target, body string, userID uuid.UUID) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	ctx := middleware.WithUserID(req.Context(), userID.String())
	ctx = middleware.WithEmail(ctx, "buyer@example.com")
	return req.WithContext(ctx)
}

func TestCheckoutSessionCreated(t *testing.T) {
	svc := &stubCheckoutService{result: &checkoutsvc.Result{SessionID: "cs_1", RedirectURL: "https://checkout.stripe.com/c/cs_1"}}
	handler := CheckoutSession(svc, nil)
	userID := uuid.New()

	req := authedRequest(http.MethodPost, "/api/v1/checkout/sessions", `{"coupon_code":" SAVE10 ","affiliate_ref":"creator-7"}`, userID)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.input.UserID != userID || svc.input.Email != "buyer@example.com" {
		t.Fatalf("unexpected caller %+v", svc.input)
	}
	if svc.input.CouponCode != "SAVE10" || svc.input.AffiliateRef != "creator-7" {
		t.Fatalf("unexpected metadata %+v", svc.input)
	}
	var envelope struct {
		Data checkoutsvc.Result `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.SessionID != "cs_1" {
		t.Fatalf("unexpected session %s", envelope.Data.SessionID)
	}
}

func TestCheckoutSessionAllowsEmptyBody(t *testing.T) {
	svc := &stubCheckoutService{result: &checkoutsvc.Result{SessionID: "cs_2"}}
	resp := httptest.NewRecorder()
	CheckoutSession(svc, nil).ServeHTTP(resp, authedRequest(http.MethodPost, "/api/v1/checkout/sessions", "", uuid.New()))
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d", resp.Code)
	}
}

func TestCheckoutSessionErrors(t *testing.T) {
	tests := []struct {
		name   string
		req    *http.Request
		err    error
		status int
	}{
		{
			name:   "anonymous",
			req:    httptest.NewRequest(http.MethodPost, "/api/v1/checkout/sessions", nil),
			status: http.StatusUnauthorized,
		},
		{
			name:   "bad redirect url",
			req:    authedRequest(http.MethodPost, "/api/v1/checkout/sessions", `{"success_url":"not a url"}`, uuid.New()),
			status: http.StatusBadRequest,
		},
		{
			name:   "empty cart",
			req:    authedRequest(http.MethodPost, "/api/v1/checkout/sessions", "", uuid.New()),
			err:    pkgerrors.New(pkgerrors.CodeValidation, "cart is empty"),
			status: http.StatusBadRequest,
		},
		{
			name:   "gateway down",
			req:    authedRequest(http.MethodPost, "/api/v1/checkout/sessions", "", uuid.New()),
			err:    pkgerrors.New(pkgerrors.CodeDependency, "payment provider unavailable"),
			status: http.StatusServiceUnavailable,
		},
	}
	for _, tt := range tests {
		svc := &stubCheckoutService{err: tt.err, result: &checkoutsvc.Result{}}
		resp := httptest.NewRecorder()
		CheckoutSession(svc, nil).ServeHTTP(resp, tt.req)
		if resp.Code != tt.status {
			t.Fatalf("%s: expected %d got %d", tt.name, tt.status, resp.Code)
		}
	}
}
