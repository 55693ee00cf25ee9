// xbltracker - Xbox Live Achievement Overlay Core
// Copyright 2026 xbltracker contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/xbltracker/xbltracker

// Package models defines the domain types shared across the tracker:
// tokens, the authenticated identity, games, achievements, and the
// session gamerscore ledger.
//
// All sequence fields are plain slices with value semantics; copying a
// struct copies everything a caller is allowed to mutate.
package models

import "time"

// TokenExpiryMargin is subtracted from a token's expiry before comparing
// against the clock, to absorb clock skew between us and the service.
const TokenExpiryMargin = 15 * time.Minute

// Token is an opaque service token with an absolute expiry.
// A zero Expires means the expiry is unknown (refresh tokens).
type Token struct {
	Value   string `json:"value"`
	Expires int64  `json:"expires"` // Unix seconds; 0 = non-expiring
}

// IsZero reports whether the token is absent.
func (t Token) IsZero() bool {
	return t.Value == ""
}

// ExpiredAt reports whether the token is effectively expired at now,
// applying the safety margin. Tokens with unknown expiry never report
// expired.
func (t Token) ExpiredAt(now time.Time) bool {
	if t.Expires == 0 {
		return false
	}
	return now.Unix() >= t.Expires-int64(TokenExpiryMargin.Seconds())
}

// Identity is the fully authorized Xbox identity: the SISU authorization
// token plus the display claims required on every authorized call.
// An Identity is either complete (all four fields set) or absent.
type Identity struct {
	Gamertag string `json:"gamertag"`
	XID      string `json:"xid"`
	UHS      string `json:"uhs"`
	Token    Token  `json:"token"`
}

// Complete reports whether every required field is present.
func (i Identity) Complete() bool {
	return i.Gamertag != "" && i.XID != "" && i.UHS != "" && !i.Token.IsZero()
}

// Game identifies an Xbox title.
type Game struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Reward is an achievement reward; Value is a decimal gamerscore amount
// for the reward types the tracker cares about.
type Reward struct {
	Value string `json:"value"`
}

// MediaAsset is an achievement art asset.
type MediaAsset struct {
	URL string `json:"url"`
}

// Achievement is one entry of a title's achievement catalog.
// UnlockedTimestamp of zero means locked.
type Achievement struct {
	ID                string       `json:"id"`
	ServiceConfigID   string       `json:"service_config_id"`
	Name              string       `json:"name"`
	Description       string       `json:"description"`
	LockedDescription string       `json:"locked_description"`
	ProgressState     string       `json:"progress_state"`
	IconURL           string       `json:"icon_url"`
	IsSecret          bool         `json:"is_secret"`
	UnlockedTimestamp int64        `json:"unlocked_timestamp"`
	Rewards           []Reward     `json:"rewards,omitempty"`
	MediaAssets       []MediaAsset `json:"media_assets,omitempty"`
}

// Unlocked reports whether the achievement has been earned.
func (a Achievement) Unlocked() bool {
	return a.UnlockedTimestamp > 0
}

// Clone deep-copies the achievement, detaching the reward and asset
// slices from the receiver.
func (a Achievement) Clone() Achievement {
	c := a
	c.Rewards = append([]Reward(nil), a.Rewards...)
	c.MediaAssets = append([]MediaAsset(nil), a.MediaAssets...)
	return c
}

// UnlockedAchievement is one gamerscore ledger entry earned this session.
type UnlockedAchievement struct {
	ID    string `json:"id"`
	Value int64  `json:"value"`
}

// Gamerscore tracks the profile's base score plus this session's unlocks.
type Gamerscore struct {
	BaseValue            int64                 `json:"base_value"`
	UnlockedAchievements []UnlockedAchievement `json:"unlocked_achievements,omitempty"`
}

// Total returns base score plus every session unlock.
func (g Gamerscore) Total() int64 {
	total := g.BaseValue
	for _, ua := range g.UnlockedAchievements {
		total += ua.Value
	}
	return total
}

// AchievementProgress is the payload of a realtime achievement event.
type AchievementProgress struct {
	ServiceConfigID   string `json:"service_config_id"`
	ID                string `json:"id"`
	ProgressState     string `json:"progress_state"`
	UnlockedTimestamp int64  `json:"unlocked_timestamp"`
}
