// xbltracker - Xbox Live Achievement Overlay Core
// Copyright 2026 xbltracker contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/xbltracker/xbltracker

package xbox

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/xbltracker/xbltracker/internal/codec"
	"github.com/xbltracker/xbltracker/internal/logging"
	"github.com/xbltracker/xbltracker/internal/models"
	"github.com/xbltracker/xbltracker/internal/xerrors"
	"github.com/xbltracker/xbltracker/internal/xhttp"
)

// contractVersion is required on every authorized Xbox REST call.
const contractVersion = "2"

// IdentitySource supplies a non-expired identity for authorized calls.
// The authenticator is the production implementation.
type IdentitySource interface {
	Identity(ctx context.Context) (models.Identity, error)
}

// Endpoints are the Xbox service base URLs. Tests point these at
// httptest servers.
type Endpoints struct {
	Presence     string
	Profile      string
	TitleHub     string
	Achievements string
}

// DefaultEndpoints returns the production Xbox service URLs.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		Presence:     "https://userpresence.xboxlive.com",
		Profile:      "https://profile.xboxlive.com",
		TitleHub:     "https://titlehub.xboxlive.com",
		Achievements: "https://achievements.xboxlive.com",
	}
}

// Client performs authorized Xbox REST calls: presence, profile
// settings, title art, and achievement catalogs.
type Client struct {
	http      *xhttp.Client
	ids       IdentitySource
	endpoints Endpoints
	language  string
}

// Config carries the optional knobs of a Client.
type Config struct {
	Endpoints Endpoints
	HTTP      *xhttp.Client
	Language  string
}

// NewClient returns a Client drawing identities from ids.
func NewClient(ids IdentitySource, cfg Config) *Client {
	if cfg.Endpoints == (Endpoints{}) {
		cfg.Endpoints = DefaultEndpoints()
	}
	if cfg.HTTP == nil {
		cfg.HTTP = xhttp.New()
	}
	if cfg.Language == "" {
		cfg.Language = "en-US"
	}
	return &Client{
		http:      cfg.HTTP,
		ids:       ids,
		endpoints: cfg.Endpoints,
		language:  cfg.Language,
	}
}

func (c *Client) headers(id models.Identity) map[string]string {
	return map[string]string{
		"Authorization":          "XBL3.0 x=" + id.UHS + ";" + id.Token.Value,
		"x-xbl-contract-version": contractVersion,
		"Accept-Language":        c.language,
	}
}

type profileSettingsRequest struct {
	Settings []string `json:"settings"`
	UserIDs  []string `json:"userIds"`
}

type profileSettingsResponse struct {
	ProfileUsers []struct {
		Settings []struct {
			ID    string `json:"id"`
			Value string `json:"value"`
		} `json:"settings"`
	} `json:"profileUsers"`
}

// fetchProfileSetting posts a single-setting profile batch and returns
// the first returned value.
func (c *Client) fetchProfileSetting(ctx context.Context, setting string) (string, error) {
	id, err := c.ids.Identity(ctx)
	if err != nil {
		return "", err
	}

	body, err := json.Marshal(profileSettingsRequest{
		Settings: []string{setting},
		UserIDs:  []string{id.XID},
	})
	if err != nil {
		return "", xerrors.Wrap(xerrors.KindDecode, "profile settings", err)
	}

	var resp profileSettingsResponse
	endpoint := c.endpoints.Profile + "/users/batch/profile/settings"
	if err := c.http.PostJSON(ctx, endpoint, body, c.headers(id), &resp); err != nil {
		return "", err
	}
	if len(resp.ProfileUsers) == 0 || len(resp.ProfileUsers[0].Settings) == 0 {
		return "", xerrors.New(xerrors.KindDecode, "profile settings", "response has no %s setting", setting)
	}
	return resp.ProfileUsers[0].Settings[0].Value, nil
}

// FetchGamerscore returns the profile's lifetime gamerscore.
func (c *Client) FetchGamerscore(ctx context.Context) (int64, error) {
	value, err := c.fetchProfileSetting(ctx, "Gamerscore")
	if err != nil {
		return 0, err
	}
	score, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, xerrors.Wrap(xerrors.KindDecode, "gamerscore", err)
	}
	return score, nil
}

// FetchGamerpic returns the profile picture URL. Xbox occasionally
// returns the URL with a literal "u0026" where "&" belongs; that is
// fixed up here.
func (c *Client) FetchGamerpic(ctx context.Context) (string, error) {
	value, err := c.fetchProfileSetting(ctx, "GameDisplayPicRaw")
	if err != nil {
		return "", err
	}
	return strings.ReplaceAll(value, "u0026", "&"), nil
}

type presenceResponse struct {
	State   string `json:"state"`
	Devices []struct {
		Titles []struct {
			ID    string `json:"id"`
			Name  string `json:"name"`
			State string `json:"state"`
		} `json:"titles"`
	} `json:"devices"`
}

// CurrentGame returns the title the user is actively playing, or nil
// when the user is offline, idle, or sitting on the Home screen.
func (c *Client) CurrentGame(ctx context.Context) (*models.Game, error) {
	id, err := c.ids.Identity(ctx)
	if err != nil {
		return nil, err
	}

	var resp presenceResponse
	endpoint := fmt.Sprintf("%s/users/xuid(%s)", c.endpoints.Presence, id.XID)
	if err := c.http.GetJSON(ctx, endpoint, c.headers(id), &resp); err != nil {
		return nil, err
	}

	if resp.State == "Offline" || len(resp.Devices) == 0 {
		return nil, nil
	}
	for _, title := range resp.Devices[0].Titles {
		if title.Name == "Home" || title.State != "Active" {
			continue
		}
		return &models.Game{ID: title.ID, Title: title.Name}, nil
	}
	return nil, nil
}

type titleImageResponse struct {
	Titles []struct {
		DisplayImage string `json:"displayImage"`
		Images       []struct {
			URL  string `json:"url"`
			Type string `json:"type"`
		} `json:"images"`
	} `json:"titles"`
}

// GameCover returns the cover art URL for a title, preferring poster
// art, then boxart, then the plain display image.
func (c *Client) GameCover(ctx context.Context, game models.Game) (string, error) {
	id, err := c.ids.Identity(ctx)
	if err != nil {
		return "", err
	}

	var resp titleImageResponse
	endpoint := fmt.Sprintf("%s/users/xuid(%s)/titles/titleId(%s)/decoration/image",
		c.endpoints.TitleHub, id.XID, game.ID)
	if err := c.http.GetJSON(ctx, endpoint, c.headers(id), &resp); err != nil {
		return "", err
	}
	if len(resp.Titles) == 0 {
		return "", xerrors.New(xerrors.KindDecode, "game cover", "response has no titles")
	}

	title := resp.Titles[0]
	for _, want := range []string{"poster", "boxart"} {
		for _, img := range title.Images {
			if strings.EqualFold(img.Type, want) && img.URL != "" {
				return img.URL, nil
			}
		}
	}
	if title.DisplayImage == "" {
		return "", xerrors.New(xerrors.KindDecode, "game cover", "response has no usable image")
	}
	return title.DisplayImage, nil
}

type achievementsResponse struct {
	Achievements []wireAchievement `json:"achievements"`
	PagingInfo   struct {
		ContinuationToken string `json:"continuationToken"`
	} `json:"pagingInfo"`
}

type wireAchievement struct {
	ID                string `json:"id"`
	ServiceConfigID   string `json:"serviceConfigId"`
	Name              string `json:"name"`
	Description       string `json:"description"`
	LockedDescription string `json:"lockedDescription"`
	ProgressState     string `json:"progressState"`
	IsSecret          bool   `json:"isSecret"`
	Progression       struct {
		TimeUnlocked string `json:"timeUnlocked"`
	} `json:"progression"`
	Rewards []struct {
		Value string `json:"value"`
	} `json:"rewards"`
	MediaAssets []struct {
		URL string `json:"url"`
	} `json:"mediaAssets"`
}

func (w wireAchievement) toModel() models.Achievement {
	a := models.Achievement{
		ID:                w.ID,
		ServiceConfigID:   w.ServiceConfigID,
		Name:              w.Name,
		Description:       w.Description,
		LockedDescription: w.LockedDescription,
		ProgressState:     w.ProgressState,
		IsSecret:          w.IsSecret,
	}
	if w.ProgressState == "Achieved" && w.Progression.TimeUnlocked != "" {
		if secs, _, err := codec.ParseISO8601(w.Progression.TimeUnlocked); err == nil && secs > 0 {
			a.UnlockedTimestamp = secs
		}
	}
	for _, r := range w.Rewards {
		a.Rewards = append(a.Rewards, models.Reward{Value: r.Value})
	}
	for _, m := range w.MediaAssets {
		a.MediaAssets = append(a.MediaAssets, models.MediaAsset{URL: m.URL})
	}
	if len(a.MediaAssets) > 0 {
		a.IconURL = a.MediaAssets[0].URL
	}
	return a
}

// GameAchievements returns the full achievement catalog for a title,
// following continuation tokens until the service stops returning them.
func (c *Client) GameAchievements(ctx context.Context, game models.Game) ([]models.Achievement, error) {
	id, err := c.ids.Identity(ctx)
	if err != nil {
		return nil, err
	}

	var all []models.Achievement
	continuation := ""
	for {
		endpoint := fmt.Sprintf("%s/users/xuid(%s)/achievements?titleId=%s",
			c.endpoints.Achievements, id.XID, game.ID)
		if continuation != "" {
			endpoint += "&continuationToken=" + url.QueryEscape(continuation)
		}

		var resp achievementsResponse
		if err := c.http.GetJSON(ctx, endpoint, c.headers(id), &resp); err != nil {
			return nil, err
		}
		for _, w := range resp.Achievements {
			all = append(all, w.toModel())
		}

		if resp.PagingInfo.ContinuationToken == "" {
			break
		}
		continuation = resp.PagingInfo.ContinuationToken
	}

	logging.Debug().Str("title_id", game.ID).Int("achievements", len(all)).Msg("fetched achievement catalog")
	return all, nil
}
