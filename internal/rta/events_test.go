// xbltracker - Xbox Live Achievement Overlay Core
// Copyright 2026 xbltracker contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/xbltracker/xbltracker

package rta

import (
	"testing"

	"github.com/xbltracker/xbltracker/internal/models"
)

func TestParseEventPresence(t *testing.T) {
	tests := []struct {
		name string
		data string
		want *models.Game
	}{
		{
			name: "active title",
			data: `[3,7,{"state":"Online","devices":[{"titles":[{"id":"42","name":"Halo","state":"Active"}]}]}]`,
			want: &models.Game{ID: "42", Title: "Halo"},
		},
		{
			name: "offline",
			data: `[3,7,{"state":"Offline"}]`,
			want: nil,
		},
		{
			name: "home title only",
			data: `[3,7,{"state":"Online","devices":[{"titles":[{"id":"1","name":"Home","state":"Active"}]}]}]`,
			want: nil,
		},
		{
			name: "inactive titles skipped",
			data: `[3,7,{"state":"Online","devices":[{"titles":[{"id":"42","name":"Halo","state":"Inactive"},{"id":"43","name":"Forza","state":"Active"}]}]}]`,
			want: &models.Game{ID: "43", Title: "Forza"},
		},
		{
			name: "unframed payload",
			data: `{"state":"Online","devices":[{"titles":[{"id":"42","name":"Halo","state":"Active"}]}]}`,
			want: &models.Game{ID: "42", Title: "Halo"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := ParseEvent([]byte(tt.data))
			if err != nil {
				t.Fatalf("ParseEvent: %v", err)
			}
			if ev.Type != EventPresence {
				t.Fatalf("type = %v, want EventPresence", ev.Type)
			}
			switch {
			case tt.want == nil && ev.Game != nil:
				t.Errorf("game = %+v, want nil", ev.Game)
			case tt.want != nil && (ev.Game == nil || *ev.Game != *tt.want):
				t.Errorf("game = %+v, want %+v", ev.Game, tt.want)
			}
		})
	}
}

func TestParseEventAchievement(t *testing.T) {
	data := `[3,8,{"serviceConfigId":"scid-1","achievements":[{"id":"A7","progressState":"Achieved","progression":{"timeUnlocked":"2023-11-14T22:13:20Z"}}]}]`
	ev, err := ParseEvent([]byte(data))
	if err != nil {
		t.Fatalf("ParseEvent: %v", err)
	}
	if ev.Type != EventAchievement {
		t.Fatalf("type = %v, want EventAchievement", ev.Type)
	}
	want := models.AchievementProgress{
		ServiceConfigID:   "scid-1",
		ID:                "A7",
		ProgressState:     "Achieved",
		UnlockedTimestamp: 1700000000,
	}
	if ev.Progress != want {
		t.Errorf("progress = %+v, want %+v", ev.Progress, want)
	}
}

func TestParseEventAchievementOwnScid(t *testing.T) {
	// A per-achievement serviceConfigId wins over the envelope's.
	data := `{"serviceConfigId":"outer","achievements":[{"id":"A1","serviceConfigId":"inner","progressState":"InProgress"}]}`
	ev, err := ParseEvent([]byte(data))
	if err != nil {
		t.Fatalf("ParseEvent: %v", err)
	}
	if ev.Progress.ServiceConfigID != "inner" {
		t.Errorf("scid = %q, want inner", ev.Progress.ServiceConfigID)
	}
	if ev.Progress.UnlockedTimestamp != 0 {
		t.Errorf("timestamp = %d, want 0", ev.Progress.UnlockedTimestamp)
	}
}

func TestParseEventUnknown(t *testing.T) {
	ev, err := ParseEvent([]byte(`{"something":"else"}`))
	if err != nil {
		t.Fatalf("ParseEvent: %v", err)
	}
	if ev.Type != EventUnknown {
		t.Errorf("type = %v, want EventUnknown", ev.Type)
	}
}

func TestParseEventRejects(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"short frame", `[3,7]`},
		{"non-event frame", `[1,1,"https://userpresence.xboxlive.com"]`},
		{"malformed json", `{"state":`},
		{"empty achievements", `{"achievements":[]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseEvent([]byte(tt.data)); err == nil {
				t.Error("expected error")
			}
		})
	}
}
