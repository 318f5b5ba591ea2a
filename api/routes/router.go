package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mverdugo-dev/tempora-backend/api/controllers"
	"github.com/mverdugo-dev/tempora-backend/api/middleware"
	"github.com/mverdugo-dev/tempora-backend/internal/syncsession"
	"github.com/mverdugo-dev/tempora-backend/pkg/config"
	"github.com/mverdugo-dev/tempora-backend/pkg/logger"
)

// NewRouter wires the HTTP surface: health probes, the sync session API, and
// the outbox inspection endpoints.
func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	readiness map[string]controllers.Pinger,
	syncService syncsession.Service,
	outboxReader controllers.OutboxReader,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readiness))
	})

	r.Route("/api/v1/sync/sessions", func(r chi.Router) {
		r.Get("/", controllers.ListSyncSessions(syncService, logg))
		r.Post("/", controllers.StartManualSync(syncService, logg))
		r.Get("/stats", controllers.SyncSessionStats(syncService, logg))
		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", controllers.GetSyncSession(syncService, logg))
			r.Post("/complete", controllers.CompleteSyncSession(syncService, logg))
			r.Post("/fail", controllers.FailSyncSession(syncService, logg))
		})
	})

	r.Route("/api/v1/outbox", func(r chi.Router) {
		r.Get("/stats", controllers.OutboxStats(outboxReader, logg))
		r.Get("/aggregates/{aggregateID}/events", controllers.ListAggregateEvents(outboxReader, logg))
	})

	return r
}
