// xbltracker - Xbox Live Achievement Overlay Core
// Copyright 2026 xbltracker contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/xbltracker/xbltracker

// Package monitor glues the realtime pipeline together: RTA transport
// in, session state machine in the middle, dispatcher events out. The
// Monitor is a suture service; reconnect policy is the supervisor's.
package monitor
