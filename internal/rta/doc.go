// xbltracker - Xbox Live Achievement Overlay Core
// Copyright 2026 xbltracker contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/xbltracker/xbltracker

// Package rta connects to the Xbox Realtime Activity service and turns
// its websocket pushes into typed presence and achievement events.
//
// Transport is deliberately single-use: it reports disconnects and
// stays down. Restart policy belongs to the supervisor owning the
// monitor, not to the connection itself.
package rta
