package controllers

import (
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/assetdrop-backend/api/middleware"
	cartsvc "github.com/angelmondragon/assetdrop-backend/internal/cart"
	pkgerrors "github.com/angelmondragon/assetdrop-backend/pkg/errors"
)

func userIDFromContext(r *http.Request) (uuid.UUID, error) {
	raw := middleware.UserIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user id")
	}
	return id, nil
}

// cartIdentity prefers the authenticated user and falls back to the guest
// session header.
func cartIdentity(r *http.Request) (cartsvc.Identity, error) {
	var identity cartsvc.Identity
	if raw := middleware.UserIDFromContext(r.Context()); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return identity, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user id")
		}
		identity.UserID = &id
	}
	identity.SessionID = middleware.GuestSessionFromContext(r.Context())
	if identity.UserID == nil && identity.SessionID == "" {
		return identity, pkgerrors.New(pkgerrors.CodeValidation, "authentication or "+middleware.GuestSessionHeader+" header required")
	}
	return identity, nil
}

func clientIP(r *http.Request) string {
	if header := r.Header.Get("X-Forwarded-For"); header != "" {
		for _, part := range strings.Split(header, ",") {
			if ip := strings.TrimSpace(part); ip != "" {
				return ip
			}
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}
