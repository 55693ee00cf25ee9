// xbltracker - Xbox Live Achievement Overlay Core
// Copyright 2026 xbltracker contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/xbltracker/xbltracker

// Package dispatch publishes tracker events to host subscribers over an
// in-process watermill pub/sub.
//
// Three topics exist: connection changes, game changes, and achievement
// progress. Per-topic ordering follows publish order from a single
// publisher goroutine (the RTA worker); no cross-topic ordering is
// promised. Subscribers live for the process lifetime; there is no
// unsubscribe.
package dispatch

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"

	"github.com/xbltracker/xbltracker/internal/logging"
	"github.com/xbltracker/xbltracker/internal/metrics"
	"github.com/xbltracker/xbltracker/internal/models"
)

// Topic names.
const (
	TopicConnectionChanged      = "tracker.connection.changed"
	TopicGamePlayed             = "tracker.game.played"
	TopicAchievementsProgressed = "tracker.achievements.progressed"
)

// ConnectionChange reports RTA connection transitions. Reason is empty on
// connect and carries the close cause on disconnect.
type ConnectionChange struct {
	Connected bool   `json:"connected"`
	Reason    string `json:"reason,omitempty"`
}

// GamePlayed reports the user switching to a new title.
type GamePlayed struct {
	Game models.Game `json:"game"`
}

// AchievementsProgressed reports an achievement unlock together with the
// updated session gamerscore.
type AchievementsProgressed struct {
	Gamerscore models.Gamerscore          `json:"gamerscore"`
	Progress   models.AchievementProgress `json:"progress"`
}

// Dispatcher is the pub/sub fan-out for tracker events.
type Dispatcher struct {
	pubsub *gochannel.GoChannel
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Dispatcher. Publishes block until every subscriber has
// processed the message, which keeps delivery synchronous with the
// publisher goroutine.
func New() *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{
				BlockPublishUntilSubscriberAck: true,
			},
			logging.NewWatermillAdapter(),
		),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Close tears down every subscription. Used on process shutdown only.
func (d *Dispatcher) Close() error {
	d.cancel()
	return d.pubsub.Close()
}

// PublishConnectionChanged publishes to the connection topic.
func (d *Dispatcher) PublishConnectionChanged(connected bool, reason string) {
	d.publish(TopicConnectionChanged, ConnectionChange{Connected: connected, Reason: reason})
}

// PublishGamePlayed publishes to the game topic.
func (d *Dispatcher) PublishGamePlayed(game models.Game) {
	d.publish(TopicGamePlayed, GamePlayed{Game: game})
}

// PublishAchievementsProgressed publishes to the achievements topic.
func (d *Dispatcher) PublishAchievementsProgressed(gs models.Gamerscore, progress models.AchievementProgress) {
	d.publish(TopicAchievementsProgressed, AchievementsProgressed{Gamerscore: gs, Progress: progress})
}

func (d *Dispatcher) publish(topic string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		logging.Error().Err(err).Str("topic", topic).Msg("event marshal failed")
		return
	}

	msg := message.NewMessage(watermill.NewUUID(), data)
	if err := d.pubsub.Publish(topic, msg); err != nil {
		logging.Error().Err(err).Str("topic", topic).Msg("event publish failed")
		return
	}
	metrics.EventsPublished.WithLabelValues(topic).Inc()
}

// SubscribeConnectionChanged registers a callback for connection events.
func (d *Dispatcher) SubscribeConnectionChanged(fn func(ConnectionChange)) error {
	return subscribe(d, TopicConnectionChanged, fn)
}

// SubscribeGamePlayed registers a callback for game events.
func (d *Dispatcher) SubscribeGamePlayed(fn func(GamePlayed)) error {
	return subscribe(d, TopicGamePlayed, fn)
}

// SubscribeAchievementsProgressed registers a callback for achievement
// progress events.
func (d *Dispatcher) SubscribeAchievementsProgressed(fn func(AchievementsProgressed)) error {
	return subscribe(d, TopicAchievementsProgressed, fn)
}

// subscribe wires a typed callback onto a topic. Each subscription gets
// one goroutine that decodes and acks sequentially, preserving publish
// order for that subscriber.
func subscribe[T any](d *Dispatcher, topic string, fn func(T)) error {
	ch, err := d.pubsub.Subscribe(d.ctx, topic)
	if err != nil {
		return err
	}

	go func() {
		for msg := range ch {
			var payload T
			if err := json.Unmarshal(msg.Payload, &payload); err != nil {
				logging.Warn().Err(err).Str("topic", topic).Msg("event decode failed")
				msg.Ack()
				continue
			}
			fn(payload)
			msg.Ack()
		}
	}()

	return nil
}
