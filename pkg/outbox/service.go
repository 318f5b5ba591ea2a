package outbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	apperrors "github.com/mverdugo-dev/tempora-backend/pkg/errors"
	"github.com/mverdugo-dev/tempora-backend/pkg/enums"
	"github.com/mverdugo-dev/tempora-backend/pkg/db/models"
	"github.com/mverdugo-dev/tempora-backend/pkg/logger"
)

// DomainEvent is what callers hand to Save. Data may be any JSON-marshalable
// value; it is wrapped in a PayloadEnvelope before hitting the table.
type DomainEvent struct {
	EventType     enums.OutboxEventType
	EventAction   string
	AggregateType enums.OutboxAggregateType
	AggregateID   uuid.UUID
	Actor         *ActorRef
	Data          interface{}
	PartitionKey  string
	Version       int
	OccurredAt    time.Time
}

type Service struct {
	repo *Repository
	logg *logger.Logger
}

func NewService(repo *Repository, logg *logger.Logger) *Service {
	return &Service{repo: repo, logg: logg}
}

// Save serializes the event and inserts it inside the caller's transaction so
// the outbox row commits or rolls back with the business change.
func (s *Service) Save(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	if tx == nil {
		return apperrors.New(apperrors.CodeInternal, "transaction required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if !event.EventType.IsValid() {
		return apperrors.New(apperrors.CodeValidation, "unknown event type").
			WithDetails(map[string]any{"event_type": string(event.EventType)})
	}
	if !event.AggregateType.IsValid() {
		return apperrors.New(apperrors.CodeValidation, "unknown aggregate type").
			WithDetails(map[string]any{"aggregate_type": string(event.AggregateType)})
	}
	if event.AggregateID == uuid.Nil {
		return apperrors.New(apperrors.CodeValidation, "aggregate id is required")
	}

	payload, err := json.Marshal(event.Data)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeSerialization, err, "serialize event data")
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	if event.Version <= 0 {
		event.Version = 1
	}
	partitionKey := event.PartitionKey
	if partitionKey == "" {
		partitionKey = event.AggregateID.String()
	}

	envelope := PayloadEnvelope{
		Version:    event.Version,
		EventID:    uuid.NewString(),
		OccurredAt: event.OccurredAt,
		Actor:      event.Actor,
		Data:       payload,
	}
	payloadJSON, err := json.Marshal(envelope)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeSerialization, err, "serialize event envelope")
	}

	row := models.OutboxEvent{
		EventID:       uuid.MustParse(envelope.EventID),
		EventType:     event.EventType,
		EventAction:   event.EventAction,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       json.RawMessage(payloadJSON),
		Status:        enums.OutboxStatusPending,
		PartitionKey:  partitionKey,
		OccurredAt:    event.OccurredAt,
	}
	if err := s.repo.Insert(tx, row); err != nil {
		return err
	}
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"event_id":       envelope.EventID,
			"event_type":     event.EventType,
			"aggregate_id":   event.AggregateID.String(),
			"aggregate_type": event.AggregateType,
		})
		s.logg.Info(logCtx, "outbox event queued")
	}
	return nil
}
