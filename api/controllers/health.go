package controllers

import (
	"context"
	"net/http"

	"github.com/mverdugo-dev/tempora-backend/api/responses"
	"github.com/mverdugo-dev/tempora-backend/pkg/config"
	pkgerrors "github.com/mverdugo-dev/tempora-backend/pkg/errors"
	"github.com/mverdugo-dev/tempora-backend/pkg/logger"
)

const envHeader = "X-Tempora-Env"

// Pinger is the minimal health contract dependencies expose.
type Pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

func HealthReady(cfg *config.Config, logg *logger.Logger, deps map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		for name, dep := range deps {
			if dep == nil {
				continue
			}
			if err := dep.Ping(r.Context()); err != nil {
				responses.WriteError(r.Context(), logg, w,
					pkgerrors.Wrap(pkgerrors.CodeDependency, err, name+" unavailable"))
				return
			}
		}
		responses.WriteSuccess(w, map[string]string{"status": "ready"})
	}
}
