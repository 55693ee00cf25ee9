// xbltracker - Xbox Live Achievement Overlay Core
// Copyright 2026 xbltracker contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/xbltracker/xbltracker

package state

import (
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/xbltracker/xbltracker/internal/models"
	"github.com/xbltracker/xbltracker/internal/signing"
)

// MemoryStore is an in-memory Store for tests and hosts that manage
// persistence themselves.
type MemoryStore struct {
	mu sync.Mutex

	device     Device
	userToken  models.Token
	refresh    string
	devToken   models.Token
	sisu       string
	deviceCode string
	identity   models.Identity
	hasID      bool
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Device() (Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.device.UUID == "" {
		keys, err := signing.GenerateKeypair()
		if err != nil {
			return Device{}, err
		}
		s.device = Device{
			UUID:         uuid.NewString(),
			SerialNumber: strings.ReplaceAll(uuid.NewString(), "-", ""),
			Keys:         keys,
		}
	}
	return s.device, nil
}

func (s *MemoryStore) UserToken() models.Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userToken
}

func (s *MemoryStore) SetUserTokens(access models.Token, refresh string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userToken = access
	s.refresh = refresh
}

func (s *MemoryStore) UserRefreshToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refresh
}

func (s *MemoryStore) DeviceToken() models.Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.devToken
}

func (s *MemoryStore) SetDeviceToken(t models.Token) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devToken = t
}

func (s *MemoryStore) SisuToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sisu
}

func (s *MemoryStore) SetSisuToken(tok string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sisu = tok
}

func (s *MemoryStore) DeviceCode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deviceCode
}

func (s *MemoryStore) SetDeviceCode(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deviceCode = code
}

func (s *MemoryStore) Identity() (models.Identity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasID {
		return models.Identity{}, false
	}
	return s.identity, true
}

func (s *MemoryStore) SetIdentity(id models.Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity = id
	s.hasID = id.Complete()
}

func (s *MemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userToken = models.Token{}
	s.refresh = ""
	s.devToken = models.Token{}
	s.sisu = ""
	s.deviceCode = ""
	s.identity = models.Identity{}
	s.hasID = false
}
