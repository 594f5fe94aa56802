package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/assetdrop-backend/api/responses"
	downloadsvc "github.com/angelmondragon/assetdrop-backend/internal/downloads"
	pkgerrors "github.com/angelmondragon/assetdrop-backend/pkg/errors"
	"github.com/angelmondragon/assetdrop-backend/pkg/logger"
)

type downloadRedeemer interface {
	Redeem(ctx context.Context, token, callerIP string) (*downloadsvc.Redemption, error)
}

// DownloadRedeem spends one download of a token. Browsers following a link
// get a redirect to the file; API clients asking for JSON get the location.
func DownloadRedeem(svc downloadRedeemer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "downloads service unavailable"))
			return
		}
		token := strings.TrimSpace(chi.URLParam(r, "token"))
		if token == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "download link not found"))
			return
		}

		redemption, err := svc.Redeem(r.Context(), token, clientIP(r))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		w.Header().Set("Cache-Control", "no-store")
		if wantsJSON(r) {
			responses.WriteSuccess(w, redemption)
			return
		}
		http.Redirect(w, r, redemption.URL, http.StatusFound)
	}
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}
