package locations

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cargoline/tracking-backend/internal/tracking"
	"github.com/cargoline/tracking-backend/pkg/db/models"
	"github.com/cargoline/tracking-backend/pkg/enums"
	pkgerrors "github.com/cargoline/tracking-backend/pkg/errors"
	"github.com/cargoline/tracking-backend/pkg/logger"
)

type stubTracker struct {
	result *tracking.TrackingResult
	err    error
	inputs []tracking.LocationUpdate
}

func (s *stubTracker) ProcessLocationUpdate(ctx context.Context, input tracking.LocationUpdate) (*tracking.TrackingResult, error) {
	s.inputs = append(s.inputs, input)
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Level: zerolog.ErrorLevel})
}

func newConsumer(t *testing.T, trk *stubTracker) *Consumer {
	t.Helper()
	c, err := NewConsumer(trk, &pubsub.Subscriber{}, testLogger())
	require.NoError(t, err)
	return c
}

func pingPayload(t *testing.T, carrierID string, ts time.Time) []byte {
	t.Helper()
	data, err := json.Marshal(map[string]any{
		"carrierId": carrierID,
		"lat":       40.1,
		"lng":       -3.7,
		"timestamp": ts,
	})
	require.NoError(t, err)
	return data
}

func TestProcessValidPing(t *testing.T) {
	carrierID := uuid.New()
	ts := time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)
	trk := &stubTracker{result: &tracking.TrackingResult{
		Route: &models.Route{ID: uuid.New(), Status: enums.RouteStatusActive},
	}}
	c := newConsumer(t, trk)

	result := c.process(context.Background(), "m-1", pingPayload(t, carrierID.String(), ts))

	assert.True(t, result.ack)
	assert.False(t, result.nack)
	require.Len(t, trk.inputs, 1)
	assert.Equal(t, carrierID, trk.inputs[0].CarrierID)
	assert.Equal(t, 40.1, trk.inputs[0].Lat)
	assert.True(t, ts.Equal(trk.inputs[0].Timestamp))
}

func TestProcessMalformedPayloadAcks(t *testing.T) {
	trk := &stubTracker{}
	c := newConsumer(t, trk)

	result := c.process(context.Background(), "m-1", []byte("{not json"))

	assert.True(t, result.ack)
	assert.Empty(t, trk.inputs, "malformed pings never reach the tracker")
}

func TestProcessInvalidCarrierIDAcks(t *testing.T) {
	trk := &stubTracker{}
	c := newConsumer(t, trk)

	result := c.process(context.Background(), "m-1", pingPayload(t, "not-a-uuid", time.Now()))

	assert.True(t, result.ack)
	assert.Empty(t, trk.inputs)
}

func TestProcessStalePingAcks(t *testing.T) {
	trk := &stubTracker{result: &tracking.TrackingResult{
		Route: &models.Route{ID: uuid.New()},
		Stale: true,
	}}
	c := newConsumer(t, trk)

	result := c.process(context.Background(), "m-1", pingPayload(t, uuid.NewString(), time.Now()))

	assert.True(t, result.ack)
}

func TestProcessErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		nack bool
	}{
		{"no active route acks", pkgerrors.New(pkgerrors.CodeNotFound, "no active route for carrier"), false},
		{"validation acks", pkgerrors.New(pkgerrors.CodeValidation, "coordinates out of range"), false},
		{"carrier busy nacks", pkgerrors.New(pkgerrors.CodeConflict, "carrier location update already in progress"), true},
		{"routing outage nacks", pkgerrors.New(pkgerrors.CodeDependency, "routing unavailable"), true},
		{"internal nacks", pkgerrors.New(pkgerrors.CodeInternal, "db down"), true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newConsumer(t, &stubTracker{err: tc.err})

			result := c.process(context.Background(), "m-1", pingPayload(t, uuid.NewString(), time.Now()))

			assert.Equal(t, tc.nack, result.nack)
			assert.Equal(t, !tc.nack, result.ack)
		})
	}
}
