package controllers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mverdugo-dev/tempora-backend/api/responses"
	"github.com/mverdugo-dev/tempora-backend/pkg/db/models"
	"github.com/mverdugo-dev/tempora-backend/pkg/enums"
	pkgerrors "github.com/mverdugo-dev/tempora-backend/pkg/errors"
	"github.com/mverdugo-dev/tempora-backend/pkg/logger"
)

// OutboxReader is the slice of the outbox repository the HTTP surface needs.
type OutboxReader interface {
	CountByStatus() (map[enums.OutboxStatus]int64, error)
	FindByAggregateID(aggregateID uuid.UUID) ([]models.OutboxEvent, error)
}

type outboxStatsView struct {
	Pending   int64 `json:"pending"`
	Published int64 `json:"published"`
	Failed    int64 `json:"failed"`
}

type outboxEventView struct {
	ID            uuid.UUID  `json:"id"`
	EventID       uuid.UUID  `json:"eventId"`
	AggregateType string     `json:"aggregateType"`
	AggregateID   uuid.UUID  `json:"aggregateId"`
	EventType     string     `json:"eventType"`
	EventAction   string     `json:"eventAction"`
	Status        string     `json:"status"`
	OccurredAt    time.Time  `json:"occurredAt"`
	PublishedAt   *time.Time `json:"publishedAt,omitempty"`
	RetryCount    int        `json:"retryCount"`
	ErrorMessage  *string    `json:"errorMessage,omitempty"`
}

// OutboxStats reports how many events sit in each delivery status. A growing
// PENDING count means the publisher is behind; FAILED rows need manual replay.
func OutboxStats(reader OutboxReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		counts, err := reader.CountByStatus()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, outboxStatsView{
			Pending:   counts[enums.OutboxStatusPending],
			Published: counts[enums.OutboxStatusPublished],
			Failed:    counts[enums.OutboxStatusFailed],
		})
	}
}

// ListAggregateEvents returns the delivery record of one aggregate in the
// order its events occurred.
func ListAggregateEvents(reader OutboxReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "aggregateID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid aggregate id"))
			return
		}

		rows, err := reader.FindByAggregateID(id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		views := make([]outboxEventView, 0, len(rows))
		for _, row := range rows {
			views = append(views, outboxEventView{
				ID:            row.ID,
				EventID:       row.EventID,
				AggregateType: string(row.AggregateType),
				AggregateID:   row.AggregateID,
				EventType:     string(row.EventType),
				EventAction:   row.EventAction,
				Status:        string(row.Status),
				OccurredAt:    row.OccurredAt,
				PublishedAt:   row.PublishedAt,
				RetryCount:    row.RetryCount,
				ErrorMessage:  row.ErrorMessage,
			})
		}
		responses.WriteSuccess(w, map[string]any{"items": views})
	}
}
