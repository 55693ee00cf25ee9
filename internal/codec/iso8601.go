// xbltracker - Xbox Live Achievement Overlay Core
// Copyright 2026 xbltracker contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/xbltracker/xbltracker

// Package codec holds small encoding helpers shared by the authentication
// and signing layers: strict ISO-8601 timestamp parsing, Windows FILETIME
// conversion, and base64 wrappers.
package codec

import (
	"fmt"
	"strings"
	"time"
)

// ParseISO8601 parses a UTC ISO-8601 timestamp like the NotAfter values
// Xbox services return ("2024-07-01T12:34:56.789Z") into Unix seconds and
// a nanosecond remainder.
//
// Parsing is strict: the timestamp must end in "Z" (numeric offsets are
// rejected), fractional seconds may carry at most nine digits, and no
// trailing bytes are allowed.
func ParseISO8601(s string) (secs int64, nanos int64, err error) {
	if !strings.HasSuffix(s, "Z") {
		return 0, 0, fmt.Errorf("timestamp %q: missing Z suffix", s)
	}
	body := strings.TrimSuffix(s, "Z")

	frac := ""
	if dot := strings.IndexByte(body, '.'); dot >= 0 {
		frac = body[dot+1:]
		body = body[:dot]
		if frac == "" {
			return 0, 0, fmt.Errorf("timestamp %q: empty fractional seconds", s)
		}
		if len(frac) > 9 {
			return 0, 0, fmt.Errorf("timestamp %q: fractional seconds exceed nanosecond precision", s)
		}
	}

	// time.Parse rejects trailing bytes, so this also catches offsets
	// like "+01:00" that survived the suffix check above.
	t, err := time.Parse("2006-01-02T15:04:05", body)
	if err != nil {
		return 0, 0, fmt.Errorf("timestamp %q: %w", s, err)
	}

	for _, c := range frac {
		if c < '0' || c > '9' {
			return 0, 0, fmt.Errorf("timestamp %q: non-digit in fractional seconds", s)
		}
		nanos = nanos*10 + int64(c-'0')
	}
	// Scale to nanoseconds: ".5" means 500ms.
	for i := len(frac); i < 9; i++ {
		nanos *= 10
	}

	return t.Unix(), nanos, nil
}

// filetimeEpochDelta is the number of seconds between the Windows FILETIME
// epoch (1601-01-01) and the Unix epoch (1970-01-01).
const filetimeEpochDelta = 11644473600

// Filetime converts t into a Windows FILETIME: 100-nanosecond ticks since
// 1601-01-01 UTC. Xbox request signatures embed this value.
func Filetime(t time.Time) uint64 {
	secs := uint64(t.Unix()) + filetimeEpochDelta
	return secs*10_000_000 + uint64(t.Nanosecond())/100
}
