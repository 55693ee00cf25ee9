// xbltracker - Xbox Live Achievement Overlay Core
// Copyright 2026 xbltracker contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/xbltracker/xbltracker

// Package auth implements the Xbox Live authentication ladder.
//
// The ladder has three rungs, each persisted in the state store:
//
//  1. User token: an OAuth access token obtained through the
//     device-code flow (interactive) or the refresh grant.
//  2. Device token: issued against the device's ECDSA proof key via a
//     signed proof-of-possession request.
//  3. SISU token: the authorization token plus display claims
//     (gamertag, XID, user hash) required on every Xbox REST call.
//
// Authenticate runs the ladder asynchronously with a completion
// callback; Identity is the synchronous accessor that transparently
// re-runs the non-interactive rungs when the SISU token has expired.
package auth
