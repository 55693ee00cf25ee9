// xbltracker - Xbox Live Achievement Overlay Core
// Copyright 2026 xbltracker contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/xbltracker/xbltracker

package auth

import (
	"context"

	"github.com/goccy/go-json"

	"github.com/xbltracker/xbltracker/internal/codec"
	"github.com/xbltracker/xbltracker/internal/metrics"
	"github.com/xbltracker/xbltracker/internal/models"
	"github.com/xbltracker/xbltracker/internal/state"
	"github.com/xbltracker/xbltracker/internal/xerrors"
)

// deviceAuthRequest proves possession of the device key. The ProofKey is
// the public JWK whose private half signs the request.
type deviceAuthRequest struct {
	Properties   deviceAuthProperties `json:"Properties"`
	RelyingParty string               `json:"RelyingParty"`
	TokenType    string               `json:"TokenType"`
}

type deviceAuthProperties struct {
	AuthMethod   string            `json:"AuthMethod"`
	ID           string            `json:"Id"`
	DeviceType   string            `json:"DeviceType"`
	SerialNumber string            `json:"SerialNumber"`
	Version      string            `json:"Version"`
	ProofKey     map[string]string `json:"ProofKey"`
}

type deviceAuthResponse struct {
	Token    string `json:"Token"`
	NotAfter string `json:"NotAfter"`
}

// sisuRequest asks the SISU service to mint the final authorization
// token from the user and device tokens.
type sisuRequest struct {
	AccessToken  string            `json:"AccessToken"`
	AppID        string            `json:"AppId"`
	DeviceToken  string            `json:"DeviceToken"`
	Sandbox      string            `json:"Sandbox"`
	SiteName     string            `json:"SiteName"`
	ProofKey     map[string]string `json:"ProofKey"`
	RelyingParty string            `json:"RelyingParty"`
}

type sisuResponse struct {
	AuthorizationToken struct {
		Token         string `json:"Token"`
		NotAfter      string `json:"NotAfter"`
		DisplayClaims struct {
			Xui []map[string]string `json:"xui"`
		} `json:"DisplayClaims"`
	} `json:"AuthorizationToken"`
}

// retrieveDeviceToken returns a device token, reusing the cached one
// when it is still fresh and allowCache permits.
func (a *Authenticator) retrieveDeviceToken(ctx context.Context, device state.Device, allowCache bool) (models.Token, error) {
	if cached := a.store.DeviceToken(); allowCache && !cached.IsZero() && !cached.ExpiredAt(a.now()) {
		return cached, nil
	}

	req := deviceAuthRequest{
		Properties: deviceAuthProperties{
			AuthMethod:   "ProofOfPossession",
			ID:           "{" + device.UUID + "}",
			DeviceType:   "Win32",
			SerialNumber: device.SerialNumber,
			Version:      "10.0.18363",
			ProofKey:     device.Keys.ProofKey(),
		},
		RelyingParty: "http://auth.xboxlive.com",
		TokenType:    "JWT",
	}

	var resp deviceAuthResponse
	if err := a.signedPost(ctx, device, a.endpoints.DeviceAuth, req, &resp); err != nil {
		metrics.AuthStageTotal.WithLabelValues("device_token", "failure").Inc()
		return models.Token{}, err
	}
	if resp.Token == "" {
		metrics.AuthStageTotal.WithLabelValues("device_token", "failure").Inc()
		return models.Token{}, xerrors.New(xerrors.KindDecode, "device auth", "response missing Token")
	}

	expires, _, err := codec.ParseISO8601(resp.NotAfter)
	if err != nil {
		metrics.AuthStageTotal.WithLabelValues("device_token", "failure").Inc()
		return models.Token{}, xerrors.Wrap(xerrors.KindDecode, "device auth NotAfter", err)
	}

	tok := models.Token{Value: resp.Token, Expires: expires}
	a.store.SetDeviceToken(tok)
	metrics.AuthStageTotal.WithLabelValues("device_token", "success").Inc()
	return tok, nil
}

// retrieveSisuToken runs the final ladder stage and persists the
// resulting identity. Nothing is written until every required field has
// parsed.
func (a *Authenticator) retrieveSisuToken(ctx context.Context, device state.Device, userToken, deviceToken models.Token) (models.Identity, error) {
	req := sisuRequest{
		AccessToken:  "t=" + userToken.Value,
		AppID:        a.clientID,
		DeviceToken:  deviceToken.Value,
		Sandbox:      "RETAIL",
		SiteName:     "user.auth.xboxlive.com",
		ProofKey:     device.Keys.ProofKey(),
		RelyingParty: "http://xboxlive.com",
	}

	var resp sisuResponse
	if err := a.signedPost(ctx, device, a.endpoints.Sisu, req, &resp); err != nil {
		metrics.AuthStageTotal.WithLabelValues("sisu", "failure").Inc()
		return models.Identity{}, err
	}

	authTok := resp.AuthorizationToken
	if authTok.Token == "" || len(authTok.DisplayClaims.Xui) == 0 {
		metrics.AuthStageTotal.WithLabelValues("sisu", "failure").Inc()
		return models.Identity{}, xerrors.New(xerrors.KindDecode, "sisu", "response missing AuthorizationToken or display claims")
	}

	claims := authTok.DisplayClaims.Xui[0]
	id := models.Identity{
		Gamertag: claims["gtg"],
		XID:      claims["xid"],
		UHS:      claims["uhs"],
		Token:    models.Token{Value: authTok.Token},
	}
	if authTok.NotAfter != "" {
		expires, _, err := codec.ParseISO8601(authTok.NotAfter)
		if err != nil {
			metrics.AuthStageTotal.WithLabelValues("sisu", "failure").Inc()
			return models.Identity{}, xerrors.Wrap(xerrors.KindDecode, "sisu NotAfter", err)
		}
		id.Token.Expires = expires
	}
	if !id.Complete() {
		metrics.AuthStageTotal.WithLabelValues("sisu", "failure").Inc()
		return models.Identity{}, xerrors.New(xerrors.KindDecode, "sisu", "display claims missing gtg, xid, or uhs")
	}

	a.store.SetSisuToken(id.Token.Value)
	a.store.SetIdentity(id)
	metrics.AuthStageTotal.WithLabelValues("sisu", "success").Inc()
	return id, nil
}

// signedPost marshals req, signs it with the device key, and posts it
// with the signature and contract-version headers Xbox requires.
func (a *Authenticator) signedPost(ctx context.Context, device state.Device, endpoint string, req, out any) error {
	body, err := json.Marshal(req)
	if err != nil {
		return xerrors.Wrap(xerrors.KindDecode, "marshal signed request", err)
	}

	signature, err := device.Keys.SignRequest(endpoint, "", body, a.now())
	if err != nil {
		return err
	}

	headers := map[string]string{
		"signature":              signature,
		"x-xbl-contract-version": "1",
	}
	return a.http.PostJSON(ctx, endpoint, body, headers, out)
}
