package locations

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/cargoline/tracking-backend/internal/tracking"
	pkgerrors "github.com/cargoline/tracking-backend/pkg/errors"
	"github.com/cargoline/tracking-backend/pkg/logger"
)

type tracker interface {
	ProcessLocationUpdate(ctx context.Context, input tracking.LocationUpdate) (*tracking.TrackingResult, error)
}

// locationMessage is the wire shape of one GPS ping published by the mobile
// fleet gateway.
type locationMessage struct {
	CarrierID string    `json:"carrierId"`
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Timestamp time.Time `json:"timestamp"`
}

type processResult struct {
	ack  bool
	nack bool
}

// Consumer feeds carrier GPS pings from Pub/Sub into the tracking cycle.
type Consumer struct {
	tracker      tracker
	subscription *pubsub.Subscriber
	logg         *logger.Logger
}

// NewConsumer wires the location ping consumer.
func NewConsumer(tracker tracker, subscription *pubsub.Subscriber, logg *logger.Logger) (*Consumer, error) {
	if tracker == nil {
		return nil, errors.New("tracking service is required")
	}
	if subscription == nil {
		return nil, errors.New("location subscription is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &Consumer{
		tracker:      tracker,
		subscription: subscription,
		logg:         logg,
	}, nil
}

// Run processes location pings until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := c.process(ctx, msg.ID, msg.Data)
		if result.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

func (c *Consumer) process(ctx context.Context, messageID string, data []byte) processResult {
	logCtx := c.logg.WithFields(ctx, map[string]any{"message_id": messageID})

	var payload locationMessage
	if err := json.Unmarshal(data, &payload); err != nil {
		c.logg.Error(logCtx, "failed to decode location ping", err)
		return processResult{ack: true}
	}

	carrierID, err := uuid.Parse(payload.CarrierID)
	if err != nil {
		c.logg.Error(logCtx, "invalid carrier id in location ping", err)
		return processResult{ack: true}
	}
	logCtx = c.logg.WithCarrierID(logCtx, carrierID.String())

	result, err := c.tracker.ProcessLocationUpdate(ctx, tracking.LocationUpdate{
		CarrierID: carrierID,
		Lat:       payload.Lat,
		Lng:       payload.Lng,
		Timestamp: payload.Timestamp,
	})
	if err != nil {
		return c.handleProcessError(logCtx, err)
	}

	if result.Stale {
		c.logg.Info(logCtx, "stale location ping ignored")
		return processResult{ack: true}
	}

	c.logg.Info(c.logg.WithRouteID(logCtx, result.Route.ID.String()), "location ping processed")
	return processResult{ack: true}
}

// handleProcessError maps cycle errors onto ack/nack. Malformed and
// terminally-unprocessable pings are acked so they never poison the
// subscription; contended and dependency failures are nacked for redelivery.
func (c *Consumer) handleProcessError(ctx context.Context, err error) processResult {
	switch {
	case pkgerrors.IsCode(err, pkgerrors.CodeValidation),
		pkgerrors.IsCode(err, pkgerrors.CodeNotFound),
		pkgerrors.IsCode(err, pkgerrors.CodeStateConflict):
		c.logg.Warn(ctx, "dropping unprocessable location ping: "+err.Error())
		return processResult{ack: true}

	case pkgerrors.IsCode(err, pkgerrors.CodeConflict):
		// Another instance holds the carrier; redeliver later.
		c.logg.Info(ctx, "carrier busy, requeueing location ping")
		return processResult{nack: true}

	default:
		c.logg.Error(ctx, "location ping processing failed", err)
		return processResult{nack: true}
	}
}
