// xbltracker - Xbox Live Achievement Overlay Core
// Copyright 2026 xbltracker contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/xbltracker/xbltracker

package monitor

import (
	"context"
	"fmt"

	"github.com/xbltracker/xbltracker/internal/dispatch"
	"github.com/xbltracker/xbltracker/internal/logging"
	"github.com/xbltracker/xbltracker/internal/models"
	"github.com/xbltracker/xbltracker/internal/rta"
	"github.com/xbltracker/xbltracker/internal/session"
)

// XboxClient is the slice of the REST client the monitor needs.
// *xbox.BreakerClient satisfies it.
type XboxClient interface {
	session.CatalogSource
	FetchGamerscore(ctx context.Context) (int64, error)
	CurrentGame(ctx context.Context) (*models.Game, error)
	GameCover(ctx context.Context, game models.Game) (string, error)
}

// CoverCache stores the tracked game's cover art on disk.
// *assets.Cache satisfies it.
type CoverCache interface {
	Download(ctx context.Context, url, assetType, id string) (string, error)
}

// IdentitySource supplies a non-expired identity for the RTA handshake.
type IdentitySource interface {
	Identity(ctx context.Context) (models.Identity, error)
}

// Transport is the slice of the RTA transport the monitor drives.
type Transport interface {
	Connect(ctx context.Context) error
	Close() error
}

// TransportFactory builds a fresh transport per connection attempt.
// Production wires rta.NewTransport; tests substitute fakes.
type TransportFactory func(identity models.Identity, onMessage func([]byte), onStateChange func(bool, string)) Transport

// Monitor owns the realtime pipeline: it connects the RTA transport,
// classifies events, drives the session state machine, and publishes
// the results. It implements suture.Service; every disconnect surfaces
// as a Serve error so the supervisor reconnects with backoff.
type Monitor struct {
	ids          IdentitySource
	client       XboxClient
	session      *session.Session
	covers       CoverCache
	dispatcher   *dispatch.Dispatcher
	newTransport TransportFactory
}

// New creates a Monitor. The session must be dedicated to this monitor:
// all session mutations happen on the transport's reader goroutine.
func New(ids IdentitySource, client XboxClient, sess *session.Session, covers CoverCache, dispatcher *dispatch.Dispatcher, factory TransportFactory) *Monitor {
	if factory == nil {
		factory = func(identity models.Identity, onMessage func([]byte), onStateChange func(bool, string)) Transport {
			return rta.NewTransport(rta.DefaultURL, identity, onMessage, onStateChange)
		}
	}
	return &Monitor{
		ids:          ids,
		client:       client,
		session:      sess,
		covers:       covers,
		dispatcher:   dispatcher,
		newTransport: factory,
	}
}

// Serve implements suture.Service. It runs one connection lifetime:
// resolve identity, seed the session from REST, then relay realtime
// events until the socket drops or ctx is cancelled.
func (m *Monitor) Serve(ctx context.Context) error {
	identity, err := m.ids.Identity(ctx)
	if err != nil {
		return fmt.Errorf("monitor: resolve identity: %w", err)
	}

	m.seedSession(ctx)

	disconnected := make(chan string, 1)
	transport := m.newTransport(identity,
		func(data []byte) { m.handleMessage(ctx, data) },
		func(connected bool, reason string) {
			m.dispatcher.PublishConnectionChanged(connected, reason)
			if !connected {
				select {
				case disconnected <- reason:
				default:
				}
			}
		})

	if err := transport.Connect(ctx); err != nil {
		return fmt.Errorf("monitor: %w", err)
	}
	defer transport.Close()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case reason := <-disconnected:
		return fmt.Errorf("monitor: rta disconnected: %s", reason)
	}
}

// String implements fmt.Stringer; suture uses it in log messages.
func (m *Monitor) String() string {
	return "rta-monitor"
}

// seedSession primes the session from REST state: the profile's base
// gamerscore and whatever title is already being played. Both are best
// effort; realtime events correct the picture as they arrive.
func (m *Monitor) seedSession(ctx context.Context) {
	if score, err := m.client.FetchGamerscore(ctx); err != nil {
		logging.Warn().Err(err).Msg("could not fetch base gamerscore")
	} else {
		m.session.SetBaseScore(score)
	}

	game, err := m.client.CurrentGame(ctx)
	if err != nil {
		logging.Warn().Err(err).Msg("could not fetch current presence")
		return
	}
	if game != nil {
		m.applyGame(ctx, *game)
	}
}

// handleMessage runs on the transport's reader goroutine; it is the
// only place session mutations happen while the monitor serves.
func (m *Monitor) handleMessage(ctx context.Context, data []byte) {
	event, err := rta.ParseEvent(data)
	if err != nil {
		logging.Warn().Err(err).Msg("dropping undecodable rta message")
		return
	}

	switch event.Type {
	case rta.EventPresence:
		if event.Game == nil {
			// Offline or back on the Home screen: the session ends.
			if m.session.Game() != nil {
				logging.Info().Msg("presence lost, clearing session")
				m.session.Clear()
			}
			return
		}
		m.applyGame(ctx, *event.Game)

	case rta.EventAchievement:
		if _, ok := m.session.UnlockAchievement(event.Progress); ok {
			m.dispatcher.PublishAchievementsProgressed(m.session.Gamerscore(), event.Progress)
		}

	default:
		logging.Warn().Msg("dropping rta message with unknown shape")
	}
}

func (m *Monitor) applyGame(ctx context.Context, game models.Game) {
	if m.session.IsGamePlayed(game) {
		return
	}
	if err := m.session.ChangeGame(ctx, game, nil); err != nil {
		logging.Warn().Err(err).Str("title", game.Title).Msg("could not load achievement catalog")
		return
	}
	m.dispatcher.PublishGamePlayed(game)
	if m.covers != nil {
		go m.fetchCover(ctx, game)
	}
}

// fetchCover caches the new game's cover art. Best effort: the overlay
// renders without an image when the title has none or the fetch fails.
func (m *Monitor) fetchCover(ctx context.Context, game models.Game) {
	url, err := m.client.GameCover(ctx, game)
	if err != nil {
		logging.Debug().Err(err).Str("title", game.Title).Msg("no cover art")
		return
	}
	if _, err := m.covers.Download(ctx, url, "game_cover", game.ID); err != nil {
		logging.Warn().Err(err).Str("title", game.Title).Msg("cover download failed")
	}
}
