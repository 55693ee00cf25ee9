// xbltracker - Xbox Live Achievement Overlay Core
// Copyright 2026 xbltracker contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/xbltracker/xbltracker

package xbox

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"

	"github.com/xbltracker/xbltracker/internal/models"
	"github.com/xbltracker/xbltracker/internal/xerrors"
)

type staticIdentity struct {
	id models.Identity
}

func (s staticIdentity) Identity(ctx context.Context) (models.Identity, error) {
	return s.id, nil
}

func testIdentity() models.Identity {
	return models.Identity{
		Gamertag: "TestGamer",
		XID:      "2814000000000000",
		UHS:      "uhs-1",
		Token:    models.Token{Value: "sisu-1", Expires: 1<<62 - 1},
	}
}

func newTestClient(srv *httptest.Server) *Client {
	return NewClient(staticIdentity{testIdentity()}, Config{
		Endpoints: Endpoints{
			Presence:     srv.URL,
			Profile:      srv.URL,
			TitleHub:     srv.URL,
			Achievements: srv.URL,
		},
	})
}

func checkAuthHeaders(t *testing.T, r *http.Request) {
	t.Helper()
	if got := r.Header.Get("Authorization"); got != "XBL3.0 x=uhs-1;sisu-1" {
		t.Errorf("Authorization = %q", got)
	}
	if got := r.Header.Get("x-xbl-contract-version"); got != "2" {
		t.Errorf("x-xbl-contract-version = %q, want 2", got)
	}
	if got := r.Header.Get("Accept-Language"); got != "en-US" {
		t.Errorf("Accept-Language = %q, want en-US", got)
	}
}

func profileSettingsBody(setting, value string) map[string]any {
	return map[string]any{
		"profileUsers": []map[string]any{{
			"settings": []map[string]string{{"id": setting, "value": value}},
		}},
	}
}

func TestFetchGamerscore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		checkAuthHeaders(t, r)
		if r.URL.Path != "/users/batch/profile/settings" {
			t.Errorf("path = %q", r.URL.Path)
		}
		var req profileSettingsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if len(req.Settings) != 1 || req.Settings[0] != "Gamerscore" {
			t.Errorf("settings = %v", req.Settings)
		}
		if len(req.UserIDs) != 1 || req.UserIDs[0] != "2814000000000000" {
			t.Errorf("userIds = %v", req.UserIDs)
		}
		json.NewEncoder(w).Encode(profileSettingsBody("Gamerscore", "12345"))
	}))
	defer srv.Close()

	score, err := newTestClient(srv).FetchGamerscore(context.Background())
	if err != nil {
		t.Fatalf("FetchGamerscore: %v", err)
	}
	if score != 12345 {
		t.Errorf("score = %d, want 12345", score)
	}
}

func TestFetchGamerscoreMalformedValue(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(profileSettingsBody("Gamerscore", "not-a-number"))
	}))
	defer srv.Close()

	_, err := newTestClient(srv).FetchGamerscore(context.Background())
	if err == nil {
		t.Fatal("expected error for malformed gamerscore")
	}
	if kind := xerrors.KindOf(err); kind != xerrors.KindDecode {
		t.Errorf("error kind = %v, want KindDecode", kind)
	}
}

func TestFetchGamerpicFixesEscapedAmpersands(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(profileSettingsBody("GameDisplayPicRaw",
			"https://images.test/pic?format=pngu0026width=64"))
	}))
	defer srv.Close()

	url, err := newTestClient(srv).FetchGamerpic(context.Background())
	if err != nil {
		t.Fatalf("FetchGamerpic: %v", err)
	}
	if want := "https://images.test/pic?format=png&width=64"; url != want {
		t.Errorf("url = %q, want %q", url, want)
	}
}

func TestCurrentGame(t *testing.T) {
	tests := []struct {
		name string
		resp map[string]any
		want *models.Game
	}{
		{
			name: "offline user yields no game",
			resp: map[string]any{"state": "Offline"},
			want: nil,
		},
		{
			name: "no devices yields no game",
			resp: map[string]any{"state": "Online"},
			want: nil,
		},
		{
			name: "home and inactive titles are skipped",
			resp: map[string]any{
				"state": "Online",
				"devices": []map[string]any{{
					"titles": []map[string]string{
						{"id": "1", "name": "Home", "state": "Active"},
						{"id": "42", "name": "Halo", "state": "Inactive"},
						{"id": "43", "name": "Forza", "state": "Active"},
					},
				}},
			},
			want: &models.Game{ID: "43", Title: "Forza"},
		},
		{
			name: "all titles filtered yields no game",
			resp: map[string]any{
				"state": "Online",
				"devices": []map[string]any{{
					"titles": []map[string]string{
						{"id": "1", "name": "Home", "state": "Active"},
					},
				}},
			},
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				checkAuthHeaders(t, r)
				if want := "/users/xuid(2814000000000000)"; r.URL.Path != want {
					t.Errorf("path = %q, want %q", r.URL.Path, want)
				}
				json.NewEncoder(w).Encode(tt.resp)
			}))
			defer srv.Close()

			game, err := newTestClient(srv).CurrentGame(context.Background())
			if err != nil {
				t.Fatalf("CurrentGame: %v", err)
			}
			switch {
			case tt.want == nil && game != nil:
				t.Errorf("game = %+v, want nil", game)
			case tt.want != nil && (game == nil || *game != *tt.want):
				t.Errorf("game = %+v, want %+v", game, tt.want)
			}
		})
	}
}

func TestGameCover(t *testing.T) {
	tests := []struct {
		name    string
		title   map[string]any
		want    string
		wantErr bool
	}{
		{
			name: "poster preferred over boxart",
			title: map[string]any{
				"displayImage": "https://img.test/display.png",
				"images": []map[string]string{
					{"url": "https://img.test/box.png", "type": "BoxArt"},
					{"url": "https://img.test/poster.png", "type": "Poster"},
				},
			},
			want: "https://img.test/poster.png",
		},
		{
			name: "boxart when no poster",
			title: map[string]any{
				"displayImage": "https://img.test/display.png",
				"images": []map[string]string{
					{"url": "https://img.test/box.png", "type": "BoxArt"},
					{"url": "https://img.test/hero.png", "type": "SuperHeroArt"},
				},
			},
			want: "https://img.test/box.png",
		},
		{
			name: "display image fallback",
			title: map[string]any{
				"displayImage": "https://img.test/display.png",
				"images": []map[string]string{
					{"url": "https://img.test/hero.png", "type": "SuperHeroArt"},
				},
			},
			want: "https://img.test/display.png",
		},
		{
			name:    "no usable image",
			title:   map[string]any{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if want := "/users/xuid(2814000000000000)/titles/titleId(42)/decoration/image"; r.URL.Path != want {
					t.Errorf("path = %q, want %q", r.URL.Path, want)
				}
				json.NewEncoder(w).Encode(map[string]any{"titles": []map[string]any{tt.title}})
			}))
			defer srv.Close()

			url, err := newTestClient(srv).GameCover(context.Background(), models.Game{ID: "42", Title: "Halo"})
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("GameCover: %v", err)
			}
			if url != tt.want {
				t.Errorf("url = %q, want %q", url, tt.want)
			}
		})
	}
}

func TestGameAchievementsPagination(t *testing.T) {
	const pages, perPage = 3, 5

	var served int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		checkAuthHeaders(t, r)
		if got := r.URL.Query().Get("titleId"); got != "42" {
			t.Errorf("titleId = %q", got)
		}

		page := 0
		if ct := r.URL.Query().Get("continuationToken"); ct != "" {
			fmt.Sscanf(ct, "page-%d", &page)
		}
		if page != served {
			t.Errorf("page requested out of order: got %d, want %d", page, served)
		}
		served++

		var items []map[string]any
		for i := 0; i < perPage; i++ {
			items = append(items, map[string]any{
				"id":              fmt.Sprintf("a-%d-%d", page, i),
				"serviceConfigId": "scid-1",
				"name":            fmt.Sprintf("Achievement %d.%d", page, i),
				"progressState":   "NotStarted",
				"rewards":         []map[string]string{{"value": "10"}},
				"mediaAssets":     []map[string]string{{"url": "https://img.test/icon.png"}},
			})
		}
		resp := map[string]any{"achievements": items}
		if page < pages-1 {
			resp["pagingInfo"] = map[string]string{"continuationToken": fmt.Sprintf("page-%d", page+1)}
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	got, err := newTestClient(srv).GameAchievements(context.Background(), models.Game{ID: "42"})
	if err != nil {
		t.Fatalf("GameAchievements: %v", err)
	}
	if len(got) != pages*perPage {
		t.Fatalf("got %d achievements, want %d", len(got), pages*perPage)
	}
	// Page order must be preserved.
	for i, a := range got {
		want := fmt.Sprintf("a-%d-%d", i/perPage, i%perPage)
		if a.ID != want {
			t.Errorf("achievements[%d].ID = %q, want %q", i, a.ID, want)
		}
	}
	if got[0].IconURL != "https://img.test/icon.png" {
		t.Errorf("IconURL = %q", got[0].IconURL)
	}
	if len(got[0].Rewards) != 1 || got[0].Rewards[0].Value != "10" {
		t.Errorf("rewards = %+v", got[0].Rewards)
	}
}

func TestGameAchievementsEscapesContinuationToken(t *testing.T) {
	// Tokens can carry reserved characters; they must round-trip through
	// the query string intact.
	const token = "v2;token+with spaces&reserved=chars"

	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		checkAuthHeaders(t, r)
		calls++
		resp := map[string]any{"achievements": []map[string]any{}}
		switch calls {
		case 1:
			resp["pagingInfo"] = map[string]string{"continuationToken": token}
		default:
			if got := r.URL.Query().Get("continuationToken"); got != token {
				t.Errorf("continuationToken = %q, want %q", got, token)
			}
			if got := r.URL.Query().Get("reserved"); got != "" {
				t.Errorf("token leaked a query parameter: reserved=%q", got)
			}
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	if _, err := newTestClient(srv).GameAchievements(context.Background(), models.Game{ID: "42"}); err != nil {
		t.Fatalf("GameAchievements: %v", err)
	}
	if calls != 2 {
		t.Fatalf("server saw %d requests, want 2", calls)
	}
}

func TestGameAchievementsUnlockedTimestamp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"achievements": []map[string]any{
				{
					"id":            "unlocked",
					"progressState": "Achieved",
					"progression":   map[string]string{"timeUnlocked": "2023-11-14T22:13:20Z"},
				},
				{
					"id":            "locked",
					"progressState": "NotStarted",
					"progression":   map[string]string{"timeUnlocked": "0001-01-01T00:00:00Z"},
				},
			},
		})
	}))
	defer srv.Close()

	got, err := newTestClient(srv).GameAchievements(context.Background(), models.Game{ID: "42"})
	if err != nil {
		t.Fatalf("GameAchievements: %v", err)
	}
	if got[0].UnlockedTimestamp != 1700000000 {
		t.Errorf("unlocked timestamp = %d, want 1700000000", got[0].UnlockedTimestamp)
	}
	if !got[0].Unlocked() {
		t.Error("achievement with timestamp should report unlocked")
	}
	if got[1].UnlockedTimestamp != 0 {
		t.Errorf("locked timestamp = %d, want 0", got[1].UnlockedTimestamp)
	}
}
