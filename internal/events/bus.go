// Cruise Control - Music Discovery and Acquisition Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cruisecontrol

/*
Package events carries in-process notifications (run progress, queue
reconciliation, cache refreshes) over a Watermill GoChannel pub/sub.

Producers publish typed events on a Bus; the Relay service subscribes and
forwards them to the websocket hub. Publishing never blocks a producer on a
slow consumer: the GoChannel is created with an output buffer and messages
published with no subscriber are dropped.
*/
package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/cruisecontrol/internal/logging"
	"github.com/tomtom215/cruisecontrol/internal/models"
)

// Topics.
const (
	TopicRunProgress    = "cruisecontrol.run.progress"
	TopicQueueReconcile = "cruisecontrol.queue.reconciled"
	TopicCacheRefresh   = "cruisecontrol.cache.refreshed"
)

// Metadata keys set on every message.
const (
	MetadataEventType = "event_type"
	MetadataEngine    = "engine"
)

// Topics lists every topic the relay forwards.
var Topics = []string{TopicRunProgress, TopicQueueReconcile, TopicCacheRefresh}

// Config tunes the bus.
type Config struct {
	// OutputBuffer is the per-subscriber channel buffer (default 256).
	OutputBuffer int64
}

// Bus is the in-process event bus.
type Bus struct {
	pubsub *gochannel.GoChannel
	logger watermill.LoggerAdapter

	mu     sync.RWMutex
	closed bool
}

// NewBus creates a bus backed by a non-persistent GoChannel.
func NewBus(cfg Config) *Bus {
	if cfg.OutputBuffer <= 0 {
		cfg.OutputBuffer = 256
	}
	logger := watermill.NewSlogLogger(logging.NewSlogLoggerWithComponent("events"))
	return &Bus{
		pubsub: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer:            cfg.OutputBuffer,
			Persistent:                     false,
			BlockPublishUntilSubscriberAck: false,
		}, logger),
		logger: logger,
	}
}

// Publish encodes payload as JSON and publishes it on topic.
func (b *Bus) Publish(topic, eventType string, payload any, metadata map[string]string) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return fmt.Errorf("event bus is closed")
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", eventType, err)
	}
	msg := message.NewMessage(uuid.NewString(), data)
	msg.Metadata.Set(MetadataEventType, eventType)
	for k, v := range metadata {
		msg.Metadata.Set(k, v)
	}
	if err := b.pubsub.Publish(topic, msg); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// PublishStatus publishes a run status snapshot. Failures are logged; a run
// never fails because nobody is listening.
func (b *Bus) PublishStatus(st models.RunStatus) {
	err := b.Publish(TopicRunProgress, EventRunProgress, st, map[string]string{
		MetadataEngine: string(st.Engine),
	})
	if err != nil {
		logging.Debug().Err(err).Str("engine", string(st.Engine)).Msg("Run progress not published")
	}
}

// PublishReconcile publishes a reconciliation report.
func (b *Bus) PublishReconcile(report models.ReconcileReport) {
	if err := b.Publish(TopicQueueReconcile, EventQueueReconciled, report, nil); err != nil {
		logging.Debug().Err(err).Msg("Reconcile report not published")
	}
}

// PublishCacheRefresh publishes a release cache refresh report.
func (b *Bus) PublishCacheRefresh(report any) {
	if err := b.Publish(TopicCacheRefresh, EventCacheRefreshed, report, nil); err != nil {
		logging.Debug().Err(err).Msg("Cache refresh report not published")
	}
}

// Subscribe returns the message channel for topic. It is closed when ctx
// is canceled or the bus is closed.
func (b *Bus) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return b.pubsub.Subscribe(ctx, topic)
}

// routerSubscriber lets a watermill router subscribe to the bus. The router
// closes its subscribers when it stops; the bus outlives any one router, so
// Close is a no-op and subscriptions end with their context.
type routerSubscriber struct {
	pubsub *gochannel.GoChannel
}

func (s routerSubscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return s.pubsub.Subscribe(ctx, topic)
}

func (s routerSubscriber) Close() error {
	return nil
}

// Close shuts the bus down. Subscribers' channels are closed.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.pubsub.Close()
}
