// xbltracker - Xbox Live Achievement Overlay Core
// Copyright 2026 xbltracker contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/xbltracker/xbltracker

// Command tracker authenticates against Xbox Live and follows the
// signed-in user's realtime activity, logging game changes and
// achievement unlocks as they happen. It is the headless counterpart of
// the streaming overlay: everything the overlay would render is
// published on the dispatcher and mirrored to the log.
package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"

	"github.com/xbltracker/xbltracker/internal/assets"
	"github.com/xbltracker/xbltracker/internal/auth"
	"github.com/xbltracker/xbltracker/internal/config"
	"github.com/xbltracker/xbltracker/internal/dispatch"
	"github.com/xbltracker/xbltracker/internal/logging"
	"github.com/xbltracker/xbltracker/internal/models"
	"github.com/xbltracker/xbltracker/internal/monitor"
	"github.com/xbltracker/xbltracker/internal/rta"
	"github.com/xbltracker/xbltracker/internal/session"
	"github.com/xbltracker/xbltracker/internal/state"
	"github.com/xbltracker/xbltracker/internal/xbox"
	"github.com/xbltracker/xbltracker/internal/xhttp"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("configuration failed")
	}
	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

	store, err := state.Open(cfg.State.Dir)
	if err != nil {
		logging.Fatal().Err(err).Msg("could not open state store")
	}

	httpClient := xhttp.NewWithTimeout(cfg.HTTP.Timeout)
	authenticator := auth.New(store, auth.Config{HTTP: httpClient})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	identity, err := authenticate(ctx, authenticator)
	if err != nil {
		logging.Fatal().Err(err).Msg("authentication failed")
	}

	dispatcher := dispatch.New()
	defer dispatcher.Close()
	subscribeLoggers(dispatcher)

	client := xbox.NewBreakerClient(xbox.NewClient(authenticator, xbox.Config{
		HTTP:     httpClient,
		Language: cfg.HTTP.Language,
	}))
	cache := assets.New(cfg.Cache.Dir, httpClient)
	sess := session.New(client, cache)
	go cacheGamerpic(ctx, client, cache, identity.XID)

	mon := monitor.New(authenticator, client, sess, cache, dispatcher,
		func(identity models.Identity, onMessage func([]byte), onStateChange func(bool, string)) monitor.Transport {
			return rta.NewTransport(cfg.RTA.URL, identity, onMessage, onStateChange)
		})

	handler := &sutureslog.Handler{Logger: logging.NewSlogLogger()}
	root := suture.New("xbltracker", suture.Spec{
		EventHook:        handler.MustHook(),
		FailureThreshold: 5,
		FailureDecay:     30,
		FailureBackoff:   15 * time.Second,
		Timeout:          10 * time.Second,
	})
	root.Add(mon)
	if cfg.Metrics.Enabled {
		root.Add(newMetricsService(cfg.Metrics.Addr))
	}

	if err := root.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Fatal().Err(err).Msg("supervisor exited")
	}
	logging.Info().Msg("shut down")
}

// authenticate runs the ladder and blocks until the completion callback
// fires. The user code prompt is logged by the authenticator as part of
// the device code flow.
func authenticate(ctx context.Context, a *auth.Authenticator) (models.Identity, error) {
	type outcome struct {
		identity models.Identity
		err      error
	}
	done := make(chan outcome, 1)
	a.Authenticate(ctx, true, func(identity models.Identity, err error) {
		done <- outcome{identity, err}
	})

	select {
	case <-ctx.Done():
		return models.Identity{}, ctx.Err()
	case out := <-done:
		if out.err != nil {
			return models.Identity{}, out.err
		}
		logging.Info().Str("gamertag", out.identity.Gamertag).Msg("signed in")
		return out.identity, nil
	}
}

// cacheGamerpic stores the signed-in user's avatar for the overlay.
// Best effort; the overlay renders a placeholder when absent.
func cacheGamerpic(ctx context.Context, client *xbox.BreakerClient, cache *assets.Cache, xid string) {
	url, err := client.FetchGamerpic(ctx)
	if err != nil {
		logging.Warn().Err(err).Msg("could not fetch gamerpic url")
		return
	}
	if _, err := cache.Download(ctx, url, "gamerpic", xid); err != nil {
		logging.Warn().Err(err).Msg("gamerpic download failed")
	}
}

// subscribeLoggers mirrors every dispatched event to the log, standing
// in for the overlay renderer.
func subscribeLoggers(d *dispatch.Dispatcher) {
	if err := d.SubscribeConnectionChanged(func(e dispatch.ConnectionChange) {
		if e.Connected {
			logging.Info().Msg("realtime connection up")
		} else {
			logging.Warn().Str("reason", e.Reason).Msg("realtime connection down")
		}
	}); err != nil {
		logging.Fatal().Err(err).Msg("subscribe failed")
	}
	if err := d.SubscribeGamePlayed(func(e dispatch.GamePlayed) {
		logging.Info().Str("title", e.Game.Title).Str("id", e.Game.ID).Msg("now playing")
	}); err != nil {
		logging.Fatal().Err(err).Msg("subscribe failed")
	}
	if err := d.SubscribeAchievementsProgressed(func(e dispatch.AchievementsProgressed) {
		logging.Info().
			Str("achievement", e.Progress.ID).
			Int64("gamerscore", e.Gamerscore.Total()).
			Msg("achievement unlocked")
	}); err != nil {
		logging.Fatal().Err(err).Msg("subscribe failed")
	}
}

// metricsService serves the Prometheus endpoint under the supervisor.
type metricsService struct {
	addr string
}

func newMetricsService(addr string) *metricsService {
	return &metricsService{addr: addr}
}

func (m *metricsService) Serve(ctx context.Context) error {
	router := chi.NewRouter()
	router.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              m.addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (m *metricsService) String() string {
	return "metrics-server"
}
