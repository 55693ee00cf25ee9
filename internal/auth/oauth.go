// xbltracker - Xbox Live Achievement Overlay Core
// Copyright 2026 xbltracker contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/xbltracker/xbltracker

package auth

import (
	"context"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/xbltracker/xbltracker/internal/logging"
	"github.com/xbltracker/xbltracker/internal/metrics"
	"github.com/xbltracker/xbltracker/internal/models"
	"github.com/xbltracker/xbltracker/internal/xerrors"
)

// connectResponse is the device-code flow bootstrap.
type connectResponse struct {
	UserCode        string `json:"user_code"`
	DeviceCode      string `json:"device_code"`
	VerificationURI string `json:"verification_uri"`
	Interval        int64  `json:"interval"`   // seconds between polls
	ExpiresIn       int64  `json:"expires_in"` // seconds until the codes die
}

// tokenResponse is the OAuth token document for both the device-code
// poll and the refresh grant. ExpiresIn is in milliseconds, matching the
// connect endpoint's behavior for this client.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// deviceCodeFlow runs the full interactive OAuth grant: request codes,
// hand the user code to the browser, poll until the user consents or the
// codes expire. On success the tokens are persisted before returning.
func (a *Authenticator) deviceCodeFlow(ctx context.Context) (models.Token, error) {
	var connect connectResponse
	form := url.Values{
		"client_id":     {a.clientID},
		"response_type": {"device_code"},
		"scope":         {Scope},
	}
	if err := a.http.PostForm(ctx, a.endpoints.Connect, form, &connect); err != nil {
		metrics.AuthStageTotal.WithLabelValues("device_code", "failure").Inc()
		return models.Token{}, err
	}
	if connect.UserCode == "" || connect.DeviceCode == "" {
		metrics.AuthStageTotal.WithLabelValues("device_code", "failure").Inc()
		return models.Token{}, xerrors.New(xerrors.KindDecode, "oauth connect", "response missing user_code or device_code")
	}
	if connect.Interval <= 0 {
		connect.Interval = 5
	}

	a.store.SetDeviceCode(connect.DeviceCode)

	logging.Info().Str("user_code", connect.UserCode).Msg("waiting for user consent")
	if err := a.openURL(a.endpoints.Register + connect.UserCode); err != nil {
		// Consent can still be granted from another device; log and
		// keep polling.
		logging.Warn().Err(err).Msg("could not open browser for device registration")
	}

	deadline := a.now().Add(time.Duration(connect.ExpiresIn) * time.Second)
	tok, err := a.pollForToken(ctx, connect.DeviceCode, connect.Interval, deadline)
	if err != nil {
		metrics.AuthStageTotal.WithLabelValues("device_code", "failure").Inc()
		return models.Token{}, err
	}
	metrics.AuthStageTotal.WithLabelValues("device_code", "success").Inc()
	return tok, nil
}

// pollForToken polls the token endpoint at the server-mandated interval
// until consent arrives or the deadline passes. Pending polls answer
// with 4xx; any non-200 keeps the loop alive.
func (a *Authenticator) pollForToken(ctx context.Context, deviceCode string, interval int64, deadline time.Time) (models.Token, error) {
	limiter := rate.NewLimiter(rate.Every(time.Duration(interval)*time.Second), 1)

	form := url.Values{
		"client_id":   {a.clientID},
		"grant_type":  {"urn:ietf:params:oauth:grant-type:device_code"},
		"device_code": {deviceCode},
	}

	for {
		if err := limiter.Wait(ctx); err != nil {
			return models.Token{}, xerrors.Wrap(xerrors.KindCancelled, "oauth poll", err)
		}
		if a.now().After(deadline) {
			return models.Token{}, xerrors.New(xerrors.KindExpired, "oauth poll", "device code expired before consent")
		}

		var tok tokenResponse
		err := a.http.PostForm(ctx, a.endpoints.Token, form, &tok)
		switch {
		case err == nil && tok.AccessToken != "" && tok.RefreshToken != "":
			return a.persistUserTokens(tok), nil
		case err == nil:
			return models.Token{}, xerrors.New(xerrors.KindDecode, "oauth poll", "token response missing access_token or refresh_token")
		case xerrors.KindOf(err) == xerrors.KindCancelled:
			return models.Token{}, err
		default:
			// Pending consent or transient failure; keep polling until
			// the device code dies.
			logging.Debug().Err(err).Msg("token poll pending")
		}
	}
}

// refreshUserToken redeems the persisted refresh token for a fresh
// access token. The old refresh token is retained on failure: it may
// still be valid, only the expiry clock is suspect.
func (a *Authenticator) refreshUserToken(ctx context.Context) (models.Token, error) {
	refresh := a.store.UserRefreshToken()
	if refresh == "" {
		return models.Token{}, xerrors.New(xerrors.KindUnavailable, "oauth refresh", "no refresh token")
	}

	form := url.Values{
		"client_id":     {a.clientID},
		"grant_type":    {"refresh_token"},
		"refresh_token": {refresh},
		"scope":         {Scope},
	}

	var tok tokenResponse
	if err := a.http.PostForm(ctx, a.endpoints.Token, form, &tok); err != nil {
		metrics.AuthStageTotal.WithLabelValues("refresh", "failure").Inc()
		return models.Token{}, err
	}
	if tok.AccessToken == "" || tok.RefreshToken == "" {
		metrics.AuthStageTotal.WithLabelValues("refresh", "failure").Inc()
		return models.Token{}, xerrors.New(xerrors.KindDecode, "oauth refresh", "token response missing access_token or refresh_token")
	}

	metrics.AuthStageTotal.WithLabelValues("refresh", "success").Inc()
	return a.persistUserTokens(tok), nil
}

// persistUserTokens converts the wire document into a Token with an
// absolute expiry and stores it together with the rotated refresh token.
// ExpiresIn arrives in milliseconds.
func (a *Authenticator) persistUserTokens(tok tokenResponse) models.Token {
	access := models.Token{
		Value:   tok.AccessToken,
		Expires: a.now().Unix() + tok.ExpiresIn/1000,
	}
	a.store.SetUserTokens(access, tok.RefreshToken)
	return access
}
