// xbltracker - Xbox Live Achievement Overlay Core
// Copyright 2026 xbltracker contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/xbltracker/xbltracker

package rta

import (
	"github.com/goccy/go-json"

	"github.com/xbltracker/xbltracker/internal/codec"
	"github.com/xbltracker/xbltracker/internal/metrics"
	"github.com/xbltracker/xbltracker/internal/models"
	"github.com/xbltracker/xbltracker/internal/xerrors"
)

// frameTypeEvent is the RTA V2 frame discriminator for subscription
// event pushes; other frame types (subscribe acks, resync) carry no
// session-relevant payload.
const frameTypeEvent = 3

// EventType classifies a parsed RTA message.
type EventType int

const (
	// EventUnknown marks a message with no recognizable shape.
	EventUnknown EventType = iota
	// EventPresence carries the user's current title, or no title when
	// the user is offline or on the Home screen.
	EventPresence
	// EventAchievement carries achievement progress.
	EventAchievement
)

// String implements fmt.Stringer for log fields and metrics labels.
func (t EventType) String() string {
	switch t {
	case EventPresence:
		return "presence"
	case EventAchievement:
		return "achievement"
	default:
		return "unknown"
	}
}

// Event is one classified RTA message.
type Event struct {
	Type EventType
	// Game is set for presence events; nil means offline or Home.
	Game *models.Game
	// Progress is set for achievement events.
	Progress models.AchievementProgress
}

type presencePayload struct {
	State   string `json:"state"`
	Devices []struct {
		Titles []struct {
			ID    string `json:"id"`
			Name  string `json:"name"`
			State string `json:"state"`
		} `json:"titles"`
	} `json:"devices"`
}

type achievementPayload struct {
	ServiceConfigID string `json:"serviceConfigId"`
	Achievements    []struct {
		ID              string `json:"id"`
		ServiceConfigID string `json:"serviceConfigId"`
		ProgressState   string `json:"progressState"`
		Progression     struct {
			TimeUnlocked string `json:"timeUnlocked"`
		} `json:"progression"`
	} `json:"achievements"`
}

// ParseEvent classifies a complete RTA text message. Frames other than
// event pushes, and payloads with no recognizable shape, classify as
// EventUnknown; the caller drops those with a warning.
func ParseEvent(data []byte) (Event, error) {
	payload, err := eventPayload(data)
	if err != nil {
		return Event{}, err
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(payload, &probe); err != nil {
		return Event{}, xerrors.Wrap(xerrors.KindDecode, "rta event", err)
	}

	switch {
	case hasKey(probe, "devices") || hasKey(probe, "state"):
		ev, err := parsePresence(payload)
		if err == nil {
			metrics.RTAMessagesTotal.WithLabelValues(ev.Type.String()).Inc()
		}
		return ev, err
	case hasKey(probe, "achievements"):
		ev, err := parseAchievement(payload)
		if err == nil {
			metrics.RTAMessagesTotal.WithLabelValues(ev.Type.String()).Inc()
		}
		return ev, err
	default:
		metrics.RTAMessagesTotal.WithLabelValues(EventUnknown.String()).Inc()
		return Event{Type: EventUnknown}, nil
	}
}

// eventPayload unwraps RTA's array framing: [3, <subscription>, <payload>].
// Bare objects pass through unchanged for subscriptions that deliver
// unframed payloads.
func eventPayload(data []byte) (json.RawMessage, error) {
	var frame []json.RawMessage
	if err := json.Unmarshal(data, &frame); err != nil {
		// Not an array; treat the message itself as the payload.
		return data, nil
	}
	if len(frame) < 3 {
		return nil, xerrors.New(xerrors.KindDecode, "rta frame", "array frame has %d elements, want at least 3", len(frame))
	}
	var frameType int
	if err := json.Unmarshal(frame[0], &frameType); err != nil {
		return nil, xerrors.Wrap(xerrors.KindDecode, "rta frame", err)
	}
	if frameType != frameTypeEvent {
		return nil, xerrors.New(xerrors.KindDecode, "rta frame", "frame type %d is not an event push", frameType)
	}
	return frame[len(frame)-1], nil
}

func hasKey(m map[string]json.RawMessage, key string) bool {
	_, ok := m[key]
	return ok
}

func parsePresence(payload json.RawMessage) (Event, error) {
	var p presencePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return Event{}, xerrors.Wrap(xerrors.KindDecode, "rta presence", err)
	}

	ev := Event{Type: EventPresence}
	if p.State == "Offline" || len(p.Devices) == 0 {
		return ev, nil
	}
	for _, title := range p.Devices[0].Titles {
		if title.Name == "Home" || title.State != "Active" {
			continue
		}
		ev.Game = &models.Game{ID: title.ID, Title: title.Name}
		break
	}
	return ev, nil
}

func parseAchievement(payload json.RawMessage) (Event, error) {
	var p achievementPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return Event{}, xerrors.Wrap(xerrors.KindDecode, "rta achievement", err)
	}
	if len(p.Achievements) == 0 {
		return Event{}, xerrors.New(xerrors.KindDecode, "rta achievement", "event carries no achievements")
	}

	a := p.Achievements[0]
	progress := models.AchievementProgress{
		ServiceConfigID: a.ServiceConfigID,
		ID:              a.ID,
		ProgressState:   a.ProgressState,
	}
	if progress.ServiceConfigID == "" {
		progress.ServiceConfigID = p.ServiceConfigID
	}
	if a.Progression.TimeUnlocked != "" {
		if secs, _, err := codec.ParseISO8601(a.Progression.TimeUnlocked); err == nil && secs > 0 {
			progress.UnlockedTimestamp = secs
		}
	}
	return Event{Type: EventAchievement, Progress: progress}, nil
}
