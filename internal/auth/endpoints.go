// xbltracker - Xbox Live Achievement Overlay Core
// Copyright 2026 xbltracker contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/xbltracker/xbltracker

package auth

// ClientID is the Microsoft application id the tracker authenticates as.
const ClientID = "000000004c12ae6f"

// Scope is the OAuth scope that yields tokens accepted by Xbox services.
const Scope = "service::user.auth.xboxlive.com::MBI_SSL"

// Endpoints collects the service URLs of one authentication run. Tests
// point these at httptest servers.
type Endpoints struct {
	// Connect starts the OAuth device-code flow.
	Connect string
	// Token exchanges device codes and refresh tokens for access tokens.
	Token string
	// Register is the page the user visits to enter the user code; the
	// user code is appended verbatim.
	Register string
	// DeviceAuth issues device tokens against the ProofKey.
	DeviceAuth string
	// Sisu issues the final authorization token with display claims.
	Sisu string
}

// DefaultEndpoints returns the production service URLs.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		Connect:    "https://login.live.com/oauth20_connect.srf",
		Token:      "https://login.live.com/oauth20_token.srf",
		Register:   "https://www.microsoft.com/link?otc=",
		DeviceAuth: "https://device.auth.xboxlive.com/device/authenticate",
		Sisu:       "https://sisu.xboxlive.com/authorize",
	}
}
