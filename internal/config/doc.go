// xbltracker - Xbox Live Achievement Overlay Core
// Copyright 2026 xbltracker contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/xbltracker/xbltracker

// Package config loads tracker configuration with koanf, layering
// environment variables over an optional YAML file over built-in
// defaults, and validates the result before anything starts.
package config
