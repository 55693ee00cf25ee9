// xbltracker - Xbox Live Achievement Overlay Core
// Copyright 2026 xbltracker contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/xbltracker/xbltracker

package auth

import (
	"context"
	"os/exec"
	"runtime"
	"sync"
	"time"

	"github.com/xbltracker/xbltracker/internal/logging"
	"github.com/xbltracker/xbltracker/internal/models"
	"github.com/xbltracker/xbltracker/internal/state"
	"github.com/xbltracker/xbltracker/internal/xerrors"
	"github.com/xbltracker/xbltracker/internal/xhttp"
)

// Authenticator climbs the Xbox token ladder: OAuth user token, signed
// device token, SISU authorization token. Each rung is cached in the
// state store and only re-earned when missing or expired.
//
// All ladder runs are serialized behind a mutex so concurrent callers
// never race the store or trigger duplicate interactive flows.
type Authenticator struct {
	store     state.Store
	http      *xhttp.Client
	clientID  string
	endpoints Endpoints
	openURL   func(url string) error
	now       func() time.Time

	mu sync.Mutex
}

// Config carries the optional knobs of an Authenticator. The zero value
// selects production endpoints, the real clock, and the system browser.
type Config struct {
	ClientID  string
	Endpoints Endpoints
	HTTP      *xhttp.Client
	OpenURL   func(url string) error
	Now       func() time.Time
}

// New returns an Authenticator over the given store.
func New(store state.Store, cfg Config) *Authenticator {
	if cfg.ClientID == "" {
		cfg.ClientID = ClientID
	}
	if cfg.Endpoints == (Endpoints{}) {
		cfg.Endpoints = DefaultEndpoints()
	}
	if cfg.HTTP == nil {
		cfg.HTTP = xhttp.New()
	}
	if cfg.OpenURL == nil {
		cfg.OpenURL = openBrowser
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Authenticator{
		store:     store,
		http:      cfg.HTTP,
		clientID:  cfg.ClientID,
		endpoints: cfg.Endpoints,
		openURL:   cfg.OpenURL,
		now:       cfg.Now,
	}
}

// Authenticate runs the full ladder on a worker goroutine and invokes
// onCompleted exactly once with the outcome. With allowCache set, fresh
// cached tokens short-circuit their rung; without it every rung is
// re-earned.
func (a *Authenticator) Authenticate(ctx context.Context, allowCache bool, onCompleted func(models.Identity, error)) {
	go func() {
		id, err := a.run(ctx, allowCache)
		if err != nil {
			logging.Err(err).Msg("authentication failed")
		} else {
			logging.Info().Str("gamertag", id.Gamertag).Msg("authenticated")
		}
		if onCompleted != nil {
			onCompleted(id, err)
		}
	}()
}

// Identity returns the stored identity, transparently re-running the
// non-interactive part of the ladder when the SISU token has expired.
// Returns KindUnavailable when no identity has ever been established.
func (a *Authenticator) Identity(ctx context.Context) (models.Identity, error) {
	id, ok := a.store.Identity()
	if !ok {
		return models.Identity{}, xerrors.New(xerrors.KindUnavailable, "identity", "not authenticated")
	}
	if !id.Token.ExpiredAt(a.now()) {
		return id, nil
	}

	logging.Debug().Msg("sisu token expired, refreshing identity")
	if _, err := a.run(ctx, false); err != nil {
		return models.Identity{}, err
	}
	id, ok = a.store.Identity()
	if !ok {
		return models.Identity{}, xerrors.New(xerrors.KindUnavailable, "identity", "refresh produced no identity")
	}
	return id, nil
}

// run climbs the ladder synchronously. The user token rung prefers, in
// order: the cached access token, the refresh grant, and finally the
// interactive device-code flow.
func (a *Authenticator) run(ctx context.Context, allowCache bool) (models.Identity, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	device, err := a.store.Device()
	if err != nil {
		return models.Identity{}, err
	}

	userToken, err := a.userToken(ctx, allowCache)
	if err != nil {
		return models.Identity{}, err
	}

	deviceToken, err := a.retrieveDeviceToken(ctx, device, allowCache)
	if err != nil {
		return models.Identity{}, err
	}

	return a.retrieveSisuToken(ctx, device, userToken, deviceToken)
}

func (a *Authenticator) userToken(ctx context.Context, allowCache bool) (models.Token, error) {
	if cached := a.store.UserToken(); allowCache && !cached.IsZero() && !cached.ExpiredAt(a.now()) {
		return cached, nil
	}

	tok, err := a.refreshUserToken(ctx)
	if err == nil {
		return tok, nil
	}
	if xerrors.KindOf(err) == xerrors.KindCancelled {
		return models.Token{}, err
	}
	logging.Debug().Err(err).Msg("refresh grant failed, falling back to device code flow")
	return a.deviceCodeFlow(ctx)
}

// openBrowser hands the URL to the platform launcher.
func openBrowser(url string) error {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", url).Start()
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	default:
		return exec.Command("xdg-open", url).Start()
	}
}
