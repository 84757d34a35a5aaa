// Cruise Control - Music Discovery and Acquisition Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cruisecontrol

package events

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/cruisecontrol/internal/logging"
)

// Event types, also used as websocket message types.
const (
	EventRunProgress     = "run_progress"
	EventQueueReconciled = "queue_reconciled"
	EventCacheRefreshed  = "cache_refreshed"
)

// Broadcaster fans a message out to connected clients.
type Broadcaster interface {
	BroadcastJSON(messageType string, data interface{})
}

// RelayConfig tunes the relay's router.
type RelayConfig struct {
	// CloseTimeout bounds how long in-flight handlers may run on shutdown.
	CloseTimeout time.Duration
	// ThrottlePerSecond caps forwarded messages per second. Zero disables it.
	ThrottlePerSecond int64
}

// Relay forwards bus events to a Broadcaster through a Watermill router,
// one consumer handler per topic. It implements suture.Service.
type Relay struct {
	bus    *Bus
	out    Broadcaster
	topics []string
	config RelayConfig
	logger zerolog.Logger
}

// NewRelay creates a relay for every topic in Topics.
func NewRelay(bus *Bus, out Broadcaster) *Relay {
	return NewRelayWithConfig(bus, out, RelayConfig{})
}

// NewRelayWithConfig creates a relay with explicit router settings.
func NewRelayWithConfig(bus *Bus, out Broadcaster, cfg RelayConfig) *Relay {
	if cfg.CloseTimeout <= 0 {
		cfg.CloseTimeout = 5 * time.Second
	}
	return &Relay{
		bus:    bus,
		out:    out,
		topics: Topics,
		config: cfg,
		logger: logging.WithComponent("event-relay"),
	}
}

// Serve builds a fresh router and runs it until ctx is canceled. A router
// cannot be restarted, so each supervisor restart gets a new one.
func (r *Relay) Serve(ctx context.Context) error {
	router, err := message.NewRouter(message.RouterConfig{CloseTimeout: r.config.CloseTimeout}, r.bus.logger)
	if err != nil {
		return fmt.Errorf("create event router: %w", err)
	}
	router.AddMiddleware(middleware.Recoverer)
	if r.config.ThrottlePerSecond > 0 {
		router.AddMiddleware(middleware.NewThrottle(r.config.ThrottlePerSecond, time.Second).Middleware)
	}

	for _, topic := range r.topics {
		router.AddConsumerHandler("relay."+topic, topic, routerSubscriber{pubsub: r.bus.pubsub}, r.handle(topic))
	}

	r.logger.Info().Strs("topics", r.topics).Msg("Event relay started")
	err = router.Run(ctx)
	r.logger.Info().Msg("Event relay stopped")
	if err != nil {
		return fmt.Errorf("event router: %w", err)
	}
	return ctx.Err()
}

// handle forwards one message. Undecodable messages are logged and acked;
// redelivery would fail the same way.
func (r *Relay) handle(topic string) message.NoPublishHandlerFunc {
	return func(msg *message.Message) error {
		if err := r.forward(msg); err != nil {
			r.logger.Warn().Err(err).Str("topic", topic).Str("message_uuid", msg.UUID).Msg("Dropping undecodable event")
		}
		return nil
	}
}

func (r *Relay) forward(msg *message.Message) error {
	eventType := msg.Metadata.Get(MetadataEventType)
	if eventType == "" {
		return fmt.Errorf("missing %s metadata", MetadataEventType)
	}
	var payload json.RawMessage
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	r.out.BroadcastJSON(eventType, payload)
	return nil
}

// String names the service in supervisor logs.
func (r *Relay) String() string {
	return "event-relay"
}
