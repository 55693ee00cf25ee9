// xbltracker - Xbox Live Achievement Overlay Core
// Copyright 2026 xbltracker contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/xbltracker/xbltracker

package config

import "strings"

// envTransform maps XBL_-prefixed environment variables to koanf paths:
// XBL_LOGGING_LEVEL -> logging.level, XBL_HTTP_TIMEOUT -> http.timeout.
// The first underscore separates section from key; keys keep their
// remaining underscores.
func envTransform(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, "XBL_"))
	section, rest, found := strings.Cut(key, "_")
	if !found {
		return section
	}
	return section + "." + rest
}
