package middleware

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/assetdrop-backend/api/responses"
	pkgerrors "github.com/angelmondragon/assetdrop-backend/pkg/errors"
	"github.com/angelmondragon/assetdrop-backend/pkg/logger"
)

const (
	GuestSessionHeader = "X-Session-Id"

	maxGuestSessionLength = 128
)

// GuestSession carries the storefront's anonymous session id into the
// request context. Ids are opaque; only length and printable characters are
// checked.
func GuestSession(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sessionID := strings.TrimSpace(r.Header.Get(GuestSessionHeader))
			if sessionID == "" {
				next.ServeHTTP(w, r)
				return
			}
			if !validGuestSession(sessionID) {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid session id"))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithGuestSession(r.Context(), sessionID)))
		})
	}
}

func validGuestSession(id string) bool {
	if len(id) > maxGuestSessionLength {
		return false
	}
	for _, c := range id {
		if c < 0x21 || c > 0x7e {
			return false
		}
	}
	return true
}
