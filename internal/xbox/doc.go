// xbltracker - Xbox Live Achievement Overlay Core
// Copyright 2026 xbltracker contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/xbltracker/xbltracker

// Package xbox is the authorized Xbox Live REST client: presence,
// profile settings, title art, and paginated achievement catalogs.
// Every call draws a fresh identity from an IdentitySource, so token
// refresh stays the authenticator's problem. BreakerClient adds
// circuit-breaker protection for callers on the hot realtime path.
package xbox
