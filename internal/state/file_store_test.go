// xbltracker - Xbox Live Achievement Overlay Core
// Copyright 2026 xbltracker contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/xbltracker/xbltracker

package state

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"

	"github.com/xbltracker/xbltracker/internal/models"
)

func TestDeviceGeneratedOnceAndPersisted(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	d1, err := s.Device()
	if err != nil {
		t.Fatalf("Device: %v", err)
	}
	if d1.UUID == "" || d1.SerialNumber == "" || d1.Keys == nil {
		t.Fatalf("incomplete generated device: %+v", d1)
	}
	if !d1.Keys.CanSign() {
		t.Fatal("generated device keys cannot sign")
	}

	d2, err := s.Device()
	if err != nil {
		t.Fatalf("Device (second call): %v", err)
	}
	if d2.UUID != d1.UUID || d2.SerialNumber != d1.SerialNumber {
		t.Error("second Device() call rotated identity")
	}

	// A fresh store on the same directory must see the same device.
	reopened, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	d3, err := reopened.Device()
	if err != nil {
		t.Fatalf("Device after reopen: %v", err)
	}
	if d3.UUID != d1.UUID {
		t.Errorf("device UUID changed across reopen: %s != %s", d3.UUID, d1.UUID)
	}
	if !d3.Keys.CanSign() {
		t.Error("reloaded device keys cannot sign")
	}
}

func TestTokenPersistence(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	s.SetUserTokens(models.Token{Value: "A", Expires: 1000}, "R")
	s.SetDeviceToken(models.Token{Value: "D", Expires: 2000})
	s.SetDeviceCode("dc")
	s.SetSisuToken("ss")
	s.SetIdentity(models.Identity{
		Gamertag: "Gamer", XID: "1", UHS: "u",
		Token: models.Token{Value: "X", Expires: 3000},
	})

	reopened, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}

	if tok := reopened.UserToken(); tok.Value != "A" || tok.Expires != 1000 {
		t.Errorf("user token = %+v", tok)
	}
	if rt := reopened.UserRefreshToken(); rt != "R" {
		t.Errorf("refresh token = %q", rt)
	}
	if tok := reopened.DeviceToken(); tok.Value != "D" || tok.Expires != 2000 {
		t.Errorf("device token = %+v", tok)
	}
	if dc := reopened.DeviceCode(); dc != "dc" {
		t.Errorf("device code = %q", dc)
	}
	if ss := reopened.SisuToken(); ss != "ss" {
		t.Errorf("sisu session token = %q", ss)
	}
	id, ok := reopened.Identity()
	if !ok {
		t.Fatal("identity missing after reopen")
	}
	if id.Gamertag != "Gamer" || id.XID != "1" || id.UHS != "u" || id.Token.Value != "X" {
		t.Errorf("identity = %+v", id)
	}
}

func TestClearRetainsDevice(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	d, err := s.Device()
	if err != nil {
		t.Fatalf("Device: %v", err)
	}
	s.SetUserTokens(models.Token{Value: "A", Expires: 1}, "R")
	s.SetIdentity(models.Identity{Gamertag: "G", XID: "1", UHS: "u", Token: models.Token{Value: "X"}})

	s.Clear()

	if tok := s.UserToken(); !tok.IsZero() {
		t.Errorf("user token survived Clear: %+v", tok)
	}
	if _, ok := s.Identity(); ok {
		t.Error("identity survived Clear")
	}
	d2, err := s.Device()
	if err != nil {
		t.Fatalf("Device after Clear: %v", err)
	}
	if d2.UUID != d.UUID || d2.SerialNumber != d.SerialNumber {
		t.Error("Clear rotated the device identity")
	}
}

func TestPartialIdentityIsAbsent(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	s.SetIdentity(models.Identity{Gamertag: "G"}) // missing xid/uhs/token
	if _, ok := s.Identity(); ok {
		t.Error("partial identity reported present")
	}
}

func TestAtomicReplaceKeepsBackup(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	s.SetDeviceCode("first")
	s.SetDeviceCode("second")

	bak, err := os.ReadFile(filepath.Join(dir, StateFileName+".bak"))
	if err != nil {
		t.Fatalf("backup missing: %v", err)
	}
	var prev map[string]any
	if err := json.Unmarshal(bak, &prev); err != nil {
		t.Fatalf("backup not valid JSON: %v", err)
	}
	if prev["device_code"] != "first" {
		t.Errorf("backup device_code = %v, want first", prev["device_code"])
	}

	cur, err := os.ReadFile(filepath.Join(dir, StateFileName))
	if err != nil {
		t.Fatalf("state file missing: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(cur, &doc); err != nil {
		t.Fatalf("state not valid JSON: %v", err)
	}
	if doc["device_code"] != "second" {
		t.Errorf("state device_code = %v, want second", doc["device_code"])
	}
}

func TestStrayTmpFileDoesNotShadowState(t *testing.T) {
	// A crash after writing .tmp but before rename must leave the
	// previous state readable.
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	s.SetDeviceCode("survivor")

	tmp := filepath.Join(dir, StateFileName+".tmp")
	if err := os.WriteFile(tmp, []byte("{garbage"), 0o600); err != nil {
		t.Fatalf("write stray tmp: %v", err)
	}

	reopened, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen with stray tmp: %v", err)
	}
	if dc := reopened.DeviceCode(); dc != "survivor" {
		t.Errorf("device code = %q, want survivor", dc)
	}
}

func TestBackupRestoresStateWhenPrimaryLost(t *testing.T) {
	// A crash can leave only the backup generation and a stray .tmp on
	// disk. Reopening must recover the previous state rather than start
	// empty and mint a fresh device identity.
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	d, err := s.Device()
	if err != nil {
		t.Fatalf("Device: %v", err)
	}
	s.SetUserTokens(models.Token{Value: "A", Expires: 1000}, "R")

	primary := filepath.Join(dir, StateFileName)
	if err := os.Rename(primary, primary+".bak"); err != nil {
		t.Fatalf("simulate lost primary: %v", err)
	}
	if err := os.WriteFile(primary+".tmp", []byte("{garbage"), 0o600); err != nil {
		t.Fatalf("write stray tmp: %v", err)
	}

	reopened, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen from backup: %v", err)
	}
	if tok := reopened.UserToken(); tok.Value != "A" {
		t.Errorf("user token = %q, want A", tok.Value)
	}
	d2, err := reopened.Device()
	if err != nil {
		t.Fatalf("Device after reopen: %v", err)
	}
	if d2.UUID != d.UUID || d2.SerialNumber != d.SerialNumber {
		t.Errorf("device identity rotated: %s -> %s", d.UUID, d2.UUID)
	}
}

func TestCorruptStateStartsFresh(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, StateFileName), []byte("not json"), 0o600); err != nil {
		t.Fatalf("seed corrupt file: %v", err)
	}

	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open on corrupt state: %v", err)
	}
	if tok := s.UserToken(); !tok.IsZero() {
		t.Errorf("corrupt state produced a token: %+v", tok)
	}
}
