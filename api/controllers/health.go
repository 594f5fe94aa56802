package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/angelmondragon/assetdrop-backend/api/responses"
	"github.com/angelmondragon/assetdrop-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/assetdrop-backend/pkg/errors"
	"github.com/angelmondragon/assetdrop-backend/pkg/logger"
)

const readinessTimeout = 2 * time.Second

type pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-AssetDrop-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady reports ready only when the database and Redis answer.
func HealthReady(cfg *config.Config, db, cache pinger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-AssetDrop-Env", cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		checks := map[string]string{"database": "ok", "redis": "ok"}
		var failed error
		if db == nil {
			checks["database"] = "unavailable"
			failed = pkgerrors.New(pkgerrors.CodeDependency, "database unavailable")
		} else if err := db.Ping(ctx); err != nil {
			checks["database"] = "unavailable"
			failed = pkgerrors.Wrap(pkgerrors.CodeDependency, err, "database unavailable")
		}
		if cache == nil {
			checks["redis"] = "unavailable"
			failed = pkgerrors.New(pkgerrors.CodeDependency, "redis unavailable")
		} else if err := cache.Ping(ctx); err != nil {
			checks["redis"] = "unavailable"
			failed = pkgerrors.Wrap(pkgerrors.CodeDependency, err, "redis unavailable")
		}

		if failed != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.As(failed).WithDetails(checks))
			return
		}
		responses.WriteSuccess(w, map[string]any{"status": "ready", "checks": checks})
	}
}
