// xbltracker - Xbox Live Achievement Overlay Core
// Copyright 2026 xbltracker contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/xbltracker/xbltracker

package state

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/xbltracker/xbltracker/internal/logging"
	"github.com/xbltracker/xbltracker/internal/models"
	"github.com/xbltracker/xbltracker/internal/signing"
	"github.com/xbltracker/xbltracker/internal/xerrors"
)

// StateFileName is the document name inside the config directory.
const StateFileName = "achievements-tracker-state.json"

// document is the on-disk schema. Every field is optional; absent fields
// unmarshal to zero values.
type document struct {
	DeviceUUID         string `json:"device_uuid,omitempty"`
	DeviceSerialNumber string `json:"device_serial_number,omitempty"`
	DeviceKeys         string `json:"device_keys,omitempty"` // JWK JSON string

	DeviceToken       string `json:"device_token,omitempty"`
	DeviceTokenExpiry int64  `json:"device_token_expiry,omitempty"`

	SisuToken string `json:"sisu_token,omitempty"`

	UserAccessToken       string `json:"user_access_token,omitempty"`
	UserAccessTokenExpiry int64  `json:"user_access_token_expiry,omitempty"`
	UserRefreshToken      string `json:"user_refresh_token,omitempty"`
	DeviceCode            string `json:"device_code,omitempty"`

	XboxGamertag    string `json:"xbox_gamertag,omitempty"`
	XboxID          string `json:"xbox_id,omitempty"`
	XboxUHS         string `json:"xbox_uhs,omitempty"`
	XboxToken       string `json:"xbox_token,omitempty"`
	XboxTokenExpiry int64  `json:"xbox_token_expiry,omitempty"`
}

// FileStore is the production Store backed by a JSON file.
type FileStore struct {
	mu   sync.Mutex
	path string
	doc  document

	// cached parsed keypair; rebuilt from doc.DeviceKeys on load
	keys *signing.Keypair
}

var _ Store = (*FileStore)(nil)

// Open loads (or initializes) the state document under configDir.
// A corrupt document is logged and replaced with an empty one; the
// previous bytes survive in the .bak file.
func Open(configDir string) (*FileStore, error) {
	if err := os.MkdirAll(configDir, 0o700); err != nil {
		return nil, xerrors.Wrap(xerrors.KindPersistence, "open state", err)
	}

	s := &FileStore{path: filepath.Join(configDir, StateFileName)}

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		// A crash during replace may have left only the backup
		// generation behind.
		data, err = os.ReadFile(s.path + ".bak")
	}
	switch {
	case os.IsNotExist(err):
		// First run; start empty.
	case err != nil:
		return nil, xerrors.Wrap(xerrors.KindPersistence, "open state", err)
	default:
		if err := json.Unmarshal(data, &s.doc); err != nil {
			logging.Warn().Err(err).Str("path", s.path).Msg("state file corrupt, starting fresh")
			s.doc = document{}
		}
	}

	if s.doc.DeviceKeys != "" {
		keys, err := signing.ParseJWK(s.doc.DeviceKeys)
		if err != nil {
			logging.Warn().Err(err).Msg("persisted device keys unreadable, will regenerate")
		} else {
			s.keys = keys
		}
	}

	return s, nil
}

// save writes the document atomically: temp file, fsync, rename, with a
// copy of the previous document kept as .bak. Must be called with mu
// held. Failures are logged and the in-memory document stays
// authoritative.
func (s *FileStore) save() {
	data, err := json.MarshalIndent(&s.doc, "", "  ")
	if err != nil {
		logging.Error().Err(err).Msg("state marshal failed")
		return
	}

	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		logging.Error().Err(err).Str("path", tmp).Msg("state save failed")
		return
	}
	if _, err := f.Write(data); err != nil {
		logging.Error().Err(err).Str("path", tmp).Msg("state write failed")
		_ = f.Close()
		return
	}
	if err := f.Sync(); err != nil {
		logging.Error().Err(err).Str("path", tmp).Msg("state fsync failed")
		_ = f.Close()
		return
	}
	if err := f.Close(); err != nil {
		logging.Error().Err(err).Str("path", tmp).Msg("state close failed")
		return
	}

	// Keep the previous generation as a copy so the rename below is the
	// only mutation of the live path; the document stays readable at
	// every point of the replace.
	if prev, err := os.ReadFile(s.path); err == nil {
		if err := os.WriteFile(s.path+".bak", prev, 0o600); err != nil {
			logging.Warn().Err(err).Msg("state backup failed")
		}
	} else if !os.IsNotExist(err) {
		logging.Warn().Err(err).Msg("state backup failed")
	}

	if err := os.Rename(tmp, s.path); err != nil {
		logging.Error().Err(err).Str("path", s.path).Msg("state rename failed")
	}
}

// Device implements Store. Missing parts are generated and persisted
// before returning; a key generation failure is the only error path.
func (s *FileStore) Device() (Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dirty := false

	if s.doc.DeviceUUID == "" {
		s.doc.DeviceUUID = uuid.NewString()
		dirty = true
	}
	if s.doc.DeviceSerialNumber == "" {
		// Serial numbers are opaque to the service; a second UUID
		// without dashes matches what consoles report.
		s.doc.DeviceSerialNumber = strings.ReplaceAll(uuid.NewString(), "-", "")
		dirty = true
	}
	if s.keys == nil {
		keys, err := signing.GenerateKeypair()
		if err != nil {
			return Device{}, err
		}
		jwk, err := keys.MarshalJWK(true)
		if err != nil {
			return Device{}, err
		}
		s.keys = keys
		s.doc.DeviceKeys = jwk
		dirty = true
	}

	if dirty {
		s.save()
	}

	return Device{
		UUID:         s.doc.DeviceUUID,
		SerialNumber: s.doc.DeviceSerialNumber,
		Keys:         s.keys,
	}, nil
}

func (s *FileStore) UserToken() models.Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	return models.Token{Value: s.doc.UserAccessToken, Expires: s.doc.UserAccessTokenExpiry}
}

func (s *FileStore) SetUserTokens(access models.Token, refresh string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.UserAccessToken = access.Value
	s.doc.UserAccessTokenExpiry = access.Expires
	s.doc.UserRefreshToken = refresh
	s.save()
}

func (s *FileStore) UserRefreshToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.UserRefreshToken
}

func (s *FileStore) DeviceToken() models.Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	return models.Token{Value: s.doc.DeviceToken, Expires: s.doc.DeviceTokenExpiry}
}

func (s *FileStore) SetDeviceToken(t models.Token) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.DeviceToken = t.Value
	s.doc.DeviceTokenExpiry = t.Expires
	s.save()
}

func (s *FileStore) SisuToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.SisuToken
}

func (s *FileStore) SetSisuToken(tok string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.SisuToken = tok
	s.save()
}

func (s *FileStore) DeviceCode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.DeviceCode
}

func (s *FileStore) SetDeviceCode(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.DeviceCode = code
	s.save()
}

func (s *FileStore) Identity() (models.Identity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := models.Identity{
		Gamertag: s.doc.XboxGamertag,
		XID:      s.doc.XboxID,
		UHS:      s.doc.XboxUHS,
		Token:    models.Token{Value: s.doc.XboxToken, Expires: s.doc.XboxTokenExpiry},
	}
	if !id.Complete() {
		return models.Identity{}, false
	}
	return id, true
}

func (s *FileStore) SetIdentity(id models.Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.XboxGamertag = id.Gamertag
	s.doc.XboxID = id.XID
	s.doc.XboxUHS = id.UHS
	s.doc.XboxToken = id.Token.Value
	s.doc.XboxTokenExpiry = id.Token.Expires
	s.save()
}

// Clear implements Store. Device identity survives.
func (s *FileStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	device := document{
		DeviceUUID:         s.doc.DeviceUUID,
		DeviceSerialNumber: s.doc.DeviceSerialNumber,
		DeviceKeys:         s.doc.DeviceKeys,
	}
	s.doc = device
	s.save()
}

// Path returns the state file location, mainly for diagnostics.
func (s *FileStore) Path() string {
	return s.path
}
