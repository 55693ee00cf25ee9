// xbltracker - Xbox Live Achievement Overlay Core
// Copyright 2026 xbltracker contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/xbltracker/xbltracker

// Package session tracks the currently played game: its achievement
// catalog, realtime unlocks, and the gamerscore earned while watching.
// Icon prefetching runs on a detached worker over a deep copy of the
// catalog, paced to be polite to the image CDN.
package session
