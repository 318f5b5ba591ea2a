package controllers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/mverdugo-dev/tempora-backend/pkg/db/models"
	"github.com/mverdugo-dev/tempora-backend/pkg/enums"
)

type testOutboxReader struct {
	countFn func() (map[enums.OutboxStatus]int64, error)
	findFn  func(aggregateID uuid.UUID) ([]models.OutboxEvent, error)
}

func (r *testOutboxReader) CountByStatus() (map[enums.OutboxStatus]int64, error) {
	if r.countFn != nil {
		return r.countFn()
	}
	return map[enums.OutboxStatus]int64{}, nil
}

func (r *testOutboxReader) FindByAggregateID(aggregateID uuid.UUID) ([]models.OutboxEvent, error) {
	if r.findFn != nil {
		return r.findFn(aggregateID)
	}
	return nil, nil
}

func TestOutboxStatsReportsCounts(t *testing.T) {
	reader := &testOutboxReader{
		countFn: func() (map[enums.OutboxStatus]int64, error) {
			return map[enums.OutboxStatus]int64{
				enums.OutboxStatusPending:   7,
				enums.OutboxStatusPublished: 120,
			}, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/outbox/stats", nil)
	resp := httptest.NewRecorder()
	OutboxStats(reader, testLogger()).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}

	var envelope struct {
		Data outboxStatsView `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if envelope.Data.Pending != 7 {
		t.Fatalf("expected 7 pending got %d", envelope.Data.Pending)
	}
	if envelope.Data.Published != 120 {
		t.Fatalf("expected 120 published got %d", envelope.Data.Published)
	}
	if envelope.Data.Failed != 0 {
		t.Fatalf("expected 0 failed got %d", envelope.Data.Failed)
	}
}

func TestOutboxStatsReaderError(t *testing.T) {
	reader := &testOutboxReader{
		countFn: func() (map[enums.OutboxStatus]int64, error) {
			return nil, errors.New("connection reset")
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/outbox/stats", nil)
	resp := httptest.NewRecorder()
	OutboxStats(reader, testLogger()).ServeHTTP(resp, req)

	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", resp.Code)
	}
}

func TestListAggregateEvents(t *testing.T) {
	aggID := uuid.New()
	published := time.Date(2026, 3, 1, 10, 5, 0, 0, time.UTC)
	var askedFor uuid.UUID
	reader := &testOutboxReader{
		findFn: func(aggregateID uuid.UUID) ([]models.OutboxEvent, error) {
			askedFor = aggregateID
			return []models.OutboxEvent{
				{
					ID:            uuid.New(),
					EventID:       uuid.New(),
					AggregateID:   aggregateID,
					AggregateType: enums.AggregateTimesheet,
					EventType:     enums.EventTimesheetSubmitted,
					Status:        enums.OutboxStatusPublished,
					OccurredAt:    published.Add(-time.Minute),
					PublishedAt:   &published,
				},
			}, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/outbox/aggregates/"+aggID.String()+"/events", nil)
	req = addRouteParam(req, "aggregateID", aggID.String())
	resp := httptest.NewRecorder()
	ListAggregateEvents(reader, testLogger()).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if askedFor != aggID {
		t.Fatalf("expected reader asked for %s got %s", aggID, askedFor)
	}

	var envelope struct {
		Data struct {
			Items []outboxEventView `json:"items"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(envelope.Data.Items) != 1 {
		t.Fatalf("expected 1 event got %d", len(envelope.Data.Items))
	}
	got := envelope.Data.Items[0]
	if got.Status != string(enums.OutboxStatusPublished) {
		t.Fatalf("expected PUBLISHED got %s", got.Status)
	}
	if got.PublishedAt == nil || !got.PublishedAt.Equal(published) {
		t.Fatalf("expected publishedAt %s got %v", published, got.PublishedAt)
	}
}

func TestListAggregateEventsInvalidID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/outbox/aggregates/not-a-uuid/events", nil)
	req = addRouteParam(req, "aggregateID", "not-a-uuid")
	resp := httptest.NewRecorder()
	ListAggregateEvents(&testOutboxReader{}, testLogger()).ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}
