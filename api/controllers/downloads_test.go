package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	downloadsvc "github.com/angelmondragon/assetdrop-backend/internal/downloads"
	pkgerrors "github.com/angelmondragon/assetdrop-backend/pkg/errors"
)

type stubRedeemer struct {
	token    string
	callerIP string
	result   *downloadsvc.Redemption
	err      error
}

func (s *stubRedeemer) Redeem(ctx context.Context, token, callerIP string) (*downloadsvc.Redemption, error) {
	s.token = token
	s.callerIP = callerIP
	return s.result, s.err
}

func downloadRequest(token string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/downloads/"+token, nil)
	rc := chi.NewRouteContext()
	rc.URLParams.Add("token", token)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
}

func TestDownloadRedeemRedirects(t *testing.T) {
	svc := &stubRedeemer{result: &downloadsvc.Redemption{URL: "https://storage.example.com/signed", RemainingDownloads: 4}}
	req := downloadRequest("tok")
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")

	resp := httptest.NewRecorder()
	DownloadRedeem(svc, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusFound {
		t.Fatalf("expected 302 got %d", resp.Code)
	}
	if resp.Header().Get("Location") != "https://storage.example.com/signed" {
		t.Fatalf("unexpected location %s", resp.Header().Get("Location"))
	}
	if svc.token != "tok" || svc.callerIP != "203.0.113.7" {
		t.Fatalf("unexpected redeem args %s %s", svc.token, svc.callerIP)
	}
}

func TestDownloadRedeemJSON(t *testing.T) {
	svc := &stubRedeemer{result: &downloadsvc.Redemption{URL: "https://cdn.example.com/f.zip", FileName: "f.zip", RemainingDownloads: 2}}
	req := downloadRequest("tok")
	req.Header.Set("Accept", "application/json")
	req.RemoteAddr = "198.51.100.2:4444"

	resp := httptest.NewRecorder()
	DownloadRedeem(svc, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if svc.callerIP != "198.51.100.2" {
		t.Fatalf("expected remote addr host, got %s", svc.callerIP)
	}
	var envelope struct {
		Data downloadsvc.Redemption `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if envelope.Data.RemainingDownloads != 2 || envelope.Data.FileName != "f.zip" {
		t.Fatalf("unexpected payload %+v", envelope.Data)
	}
}

func TestDownloadRedeemErrorStatuses(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{pkgerrors.New(pkgerrors.CodeNotFound, "download link not found"), http.StatusNotFound},
		{pkgerrors.New(pkgerrors.CodeGone, "download link expired"), http.StatusGone},
		{pkgerrors.New(pkgerrors.CodeForbidden, "download limit reached"), http.StatusForbidden},
	}
	for _, tt := range tests {
		resp := httptest.NewRecorder()
		DownloadRedeem(&stubRedeemer{err: tt.err}, nil).ServeHTTP(resp, downloadRequest("tok"))
		if resp.Code != tt.status {
			t.Fatalf("%v: expected %d got %d", tt.err, tt.status, resp.Code)
		}
	}
}
