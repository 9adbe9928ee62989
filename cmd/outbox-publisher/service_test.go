package main

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cargoline/tracking-backend/pkg/config"
	"github.com/cargoline/tracking-backend/pkg/db/models"
	"github.com/cargoline/tracking-backend/pkg/enums"
	"github.com/cargoline/tracking-backend/pkg/logger"
)

type stubPinger struct{ err error }

func (s stubPinger) Ping(ctx context.Context) error { return s.err }

type stubRepo struct {
	events    []models.OutboxEvent
	fetchErr  error
	published []uuid.UUID
	failed    []uuid.UUID

	gotLimit       int
	gotMaxAttempts int
}

func (s *stubRepo) FetchUnpublished(limit, maxAttempts int) ([]models.OutboxEvent, error) {
	s.gotLimit = limit
	s.gotMaxAttempts = maxAttempts
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	return s.events, nil
}

func (s *stubRepo) MarkPublished(id uuid.UUID) error {
	s.published = append(s.published, id)
	return nil
}

func (s *stubRepo) MarkFailed(id uuid.UUID, err error) error {
	s.failed = append(s.failed, id)
	return nil
}

type stubPublishResult struct {
	id  string
	err error
}

func (s stubPublishResult) Get(ctx context.Context) (string, error) { return s.id, s.err }

type stubPublisher struct {
	messages []*gcppubsub.Message
	errFor   map[int]error
}

func (s *stubPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	index := len(s.messages)
	s.messages = append(s.messages, msg)
	if err, ok := s.errFor[index]; ok {
		return stubPublishResult{err: err}
	}
	return stubPublishResult{id: "server-id"}
}

func testService(t *testing.T, repo *stubRepo, pub *stubPublisher) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Config:    &config.Config{Outbox: config.OutboxConfig{BatchSize: 10, PollIntervalMS: 10, MaxAttempts: 5}},
		Logger:    logger.New(logger.Options{ServiceName: "test", Level: zerolog.ErrorLevel}),
		DB:        stubPinger{},
		PubSub:    stubPinger{},
		Repo:      repo,
		Publisher: pub,
	})
	require.NoError(t, err)
	return svc
}

func outboxRow(t *testing.T) models.OutboxEvent {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"version":    1,
		"eventId":    uuid.NewString(),
		"occurredAt": time.Now().UTC(),
		"data":       map[string]any{"routeId": uuid.NewString()},
	})
	require.NoError(t, err)
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventRouteDelayed,
		AggregateType: enums.AggregateRoute,
		AggregateID:   uuid.New(),
		Payload:       payload,
		CreatedAt:     time.Now().UTC(),
	}
}

func TestProcessBatchPublishesAndMarks(t *testing.T) {
	first := outboxRow(t)
	second := outboxRow(t)
	repo := &stubRepo{events: []models.OutboxEvent{first, second}}
	pub := &stubPublisher{}
	svc := testService(t, repo, pub)

	processed, err := svc.processBatch(context.Background())
	require.NoError(t, err)
	assert.True(t, processed)

	assert.Equal(t, 10, repo.gotLimit)
	assert.Equal(t, 5, repo.gotMaxAttempts)
	assert.Equal(t, []uuid.UUID{first.ID, second.ID}, repo.published)
	assert.Empty(t, repo.failed)

	require.Len(t, pub.messages, 2)
	msg := pub.messages[0]
	assert.Equal(t, []byte(first.Payload), msg.Data)
	assert.Equal(t, string(enums.EventRouteDelayed), msg.Attributes["event_type"])
	assert.Equal(t, first.AggregateID.String(), msg.Attributes["aggregate_id"])
	assert.NotEmpty(t, msg.Attributes["event_id"])
}

func TestProcessBatchMarksFailedAndContinues(t *testing.T) {
	first := outboxRow(t)
	second := outboxRow(t)
	repo := &stubRepo{events: []models.OutboxEvent{first, second}}
	pub := &stubPublisher{errFor: map[int]error{0: errors.New("topic unavailable")}}
	svc := testService(t, repo, pub)

	processed, err := svc.processBatch(context.Background())
	require.NoError(t, err)
	assert.True(t, processed)

	assert.Equal(t, []uuid.UUID{first.ID}, repo.failed)
	assert.Equal(t, []uuid.UUID{second.ID}, repo.published)
}

func TestProcessBatchEmptyQueue(t *testing.T) {
	repo := &stubRepo{}
	svc := testService(t, repo, &stubPublisher{})

	processed, err := svc.processBatch(context.Background())
	require.NoError(t, err)
	assert.False(t, processed)
}

func TestProcessBatchFetchError(t *testing.T) {
	repo := &stubRepo{fetchErr: errors.New("db down")}
	svc := testService(t, repo, &stubPublisher{})

	_, err := svc.processBatch(context.Background())
	require.Error(t, err)
}

func TestNextBackoffCapsAtMax(t *testing.T) {
	base := 500 * time.Millisecond
	backoff := nextBackoff(base, base, maxBackoff)
	assert.Equal(t, time.Second, backoff)

	for i := 0; i < 10; i++ {
		backoff = nextBackoff(backoff, base, maxBackoff)
	}
	assert.Equal(t, maxBackoff, backoff)
}
