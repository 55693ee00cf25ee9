// xbltracker - Xbox Live Achievement Overlay Core
// Copyright 2026 xbltracker contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/xbltracker/xbltracker

package session

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/xbltracker/xbltracker/internal/logging"
	"github.com/xbltracker/xbltracker/internal/metrics"
	"github.com/xbltracker/xbltracker/internal/models"
)

// PrefetchInterval spaces icon downloads so the image CDN is never
// hammered when a large catalog loads.
const PrefetchInterval = 5 * time.Second

// CatalogSource fetches a title's full achievement catalog.
type CatalogSource interface {
	GameAchievements(ctx context.Context, game models.Game) ([]models.Achievement, error)
}

// IconCache stores achievement icons on disk keyed by (type, id).
type IconCache interface {
	Download(ctx context.Context, url, assetType, id string) (string, error)
}

// Session is the per-game in-memory state: the current game, its sorted
// achievement catalog, and the gamerscore earned while tracking.
//
// A Session is not internally synchronized. All mutations must come
// from a single goroutine, in practice the realtime monitor's event
// loop; the prefetch worker only ever touches its own deep copy.
type Session struct {
	catalog CatalogSource
	icons   IconCache

	prefetchInterval time.Duration

	game         *models.Game
	achievements []models.Achievement
	gamerscore   models.Gamerscore
}

// New creates an empty Session.
func New(catalog CatalogSource, icons IconCache) *Session {
	return &Session{
		catalog:          catalog,
		icons:            icons,
		prefetchInterval: PrefetchInterval,
	}
}

// Game returns the current game, or nil when none is tracked.
func (s *Session) Game() *models.Game {
	if s.game == nil {
		return nil
	}
	g := *s.game
	return &g
}

// Achievements returns the sorted catalog. The slice is a copy; the
// achievements share no mutable state with the session.
func (s *Session) Achievements() []models.Achievement {
	out := make([]models.Achievement, 0, len(s.achievements))
	for _, a := range s.achievements {
		out = append(out, a.Clone())
	}
	return out
}

// Gamerscore returns a copy of the session's score ledger.
func (s *Session) Gamerscore() models.Gamerscore {
	gs := s.gamerscore
	gs.UnlockedAchievements = append([]models.UnlockedAchievement(nil), gs.UnlockedAchievements...)
	return gs
}

// SetBaseScore records the profile's lifetime gamerscore as the base
// the session's unlocks add onto.
func (s *Session) SetBaseScore(score int64) {
	s.gamerscore.BaseValue = score
}

// IsGamePlayed reports whether game is the one currently tracked,
// matching ids case-insensitively.
func (s *Session) IsGamePlayed(game models.Game) bool {
	return s.game != nil && strings.EqualFold(s.game.ID, game.ID)
}

// ChangeGame replaces the tracked game: the previous catalog is
// dropped, the new title's full catalog is fetched and sorted, and a
// detached worker starts prefetching icons over a deep copy of the
// list. onReady, if non-nil, fires when the prefetch worker finishes.
func (s *Session) ChangeGame(ctx context.Context, game models.Game, onReady func()) error {
	s.game = nil
	s.achievements = nil

	achievements, err := s.catalog.GameAchievements(ctx, game)
	if err != nil {
		return err
	}

	g := game
	s.game = &g
	s.achievements = sortAchievements(achievements)
	metrics.AchievementsTracked.Set(float64(len(s.achievements)))

	logging.Info().Str("title", game.Title).Int("achievements", len(s.achievements)).Msg("tracking new game")

	go s.prefetchIcons(ctx, s.Achievements(), onReady)
	return nil
}

// UnlockAchievement applies realtime progress to the catalog: the
// achievement is updated in place, the catalog re-sorted, and the first
// reward's value credited to the session gamerscore. Returns the
// updated achievement and false when no catalog entry matches.
func (s *Session) UnlockAchievement(progress models.AchievementProgress) (models.Achievement, bool) {
	idx := -1
	for i := range s.achievements {
		if strings.EqualFold(s.achievements[i].ID, progress.ID) {
			idx = i
			break
		}
	}
	if idx < 0 {
		logging.Warn().Str("id", progress.ID).Msg("progress for achievement not in catalog")
		return models.Achievement{}, false
	}

	s.achievements[idx].ProgressState = progress.ProgressState
	s.achievements[idx].UnlockedTimestamp = progress.UnlockedTimestamp
	updated := s.achievements[idx].Clone()
	s.achievements = sortAchievements(s.achievements)

	value := firstRewardValue(updated)
	s.gamerscore.UnlockedAchievements = append(s.gamerscore.UnlockedAchievements,
		models.UnlockedAchievement{ID: updated.ID, Value: value})
	metrics.AchievementsUnlocked.Inc()

	logging.Info().Str("name", updated.Name).Int64("value", value).Msg("achievement unlocked")
	return updated, true
}

// Clear drops the game, catalog, and gamerscore ledger. The Session
// itself stays usable.
func (s *Session) Clear() {
	s.game = nil
	s.achievements = nil
	s.gamerscore = models.Gamerscore{}
	metrics.AchievementsTracked.Set(0)
}

// prefetchIcons downloads every achievement icon with a pause between
// successful downloads. Failures are skipped without delaying the rest.
func (s *Session) prefetchIcons(ctx context.Context, achievements []models.Achievement, onReady func()) {
	limiter := rate.NewLimiter(rate.Every(s.prefetchInterval), 1)
	limiter.Allow() // drain the initial token so every pause is a full interval
	paced := false
	for _, a := range achievements {
		if a.IconURL == "" {
			continue
		}
		// Failures skip the pause; only successful downloads pace the
		// loop.
		if paced {
			if err := limiter.Wait(ctx); err != nil {
				return
			}
		}
		id := a.ServiceConfigID + "_" + a.ID
		if _, err := s.icons.Download(ctx, a.IconURL, "achievement_icon", id); err != nil {
			logging.Debug().Err(err).Str("id", id).Msg("icon prefetch failed")
			continue
		}
		paced = true
	}
	if onReady != nil {
		onReady()
	}
}

// firstRewardValue parses the first reward's decimal value, defaulting
// to 0 on absence or malformed input.
func firstRewardValue(a models.Achievement) int64 {
	if len(a.Rewards) == 0 {
		return 0
	}
	value, err := strconv.ParseInt(a.Rewards[0].Value, 10, 64)
	if err != nil {
		return 0
	}
	return value
}

// sortAchievements orders unlocked achievements first, newest unlock
// leading, and preserves the input order of locked achievements.
func sortAchievements(achievements []models.Achievement) []models.Achievement {
	sort.SliceStable(achievements, func(i, j int) bool {
		a, b := achievements[i], achievements[j]
		switch {
		case a.Unlocked() && !b.Unlocked():
			return true
		case a.Unlocked() && b.Unlocked():
			return a.UnlockedTimestamp > b.UnlockedTimestamp
		default:
			return false
		}
	})
	return achievements
}
