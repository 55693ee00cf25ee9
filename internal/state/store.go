// xbltracker - Xbox Live Achievement Overlay Core
// Copyright 2026 xbltracker contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/xbltracker/xbltracker

// Package state persists the device identity and the token ladder in a
// single JSON document, replaced atomically on every mutation.
//
// The store is the single writer of the document. Getters never fail: a
// missing value yields a zero value, and a save failure keeps the
// in-memory state authoritative until the next mutation retries the
// write.
package state

import (
	"github.com/xbltracker/xbltracker/internal/models"
	"github.com/xbltracker/xbltracker/internal/signing"
)

// Device is the stable proof-of-ownership bundle. Created on first access,
// persisted, and never rotated unless the whole state is wiped.
type Device struct {
	UUID         string
	SerialNumber string
	Keys         *signing.Keypair
}

// Store owns every persisted key. Implementations are safe for
// concurrent use; all getters copy values out.
type Store interface {
	// Device returns the persisted device bundle, generating and
	// persisting a fresh one when any part is missing.
	Device() (Device, error)

	UserToken() models.Token
	// SetUserTokens stores the OAuth access token together with its
	// refresh token; the pair always rotates together.
	SetUserTokens(access models.Token, refresh string)
	UserRefreshToken() string

	DeviceToken() models.Token
	SetDeviceToken(models.Token)

	SisuToken() string
	SetSisuToken(string)

	DeviceCode() string
	SetDeviceCode(string)

	Identity() (models.Identity, bool)
	SetIdentity(models.Identity)

	// Clear wipes tokens and identity but retains the device
	// UUID/serial/keys: the service treats those as the stable device
	// fingerprint.
	Clear()
}
