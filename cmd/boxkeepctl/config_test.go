/*
boxkeep mailbox registry and storage engine.
Copyright © 2024 boxkeep contributors

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSettingsFromFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "boxkeepctl.conf")
	body := `
config_dir ` + dir + `/state
lock_dir ` + dir + `/lock
default_partition default
hash_mode partial
partition default ` + dir + `/default
partition archive ` + dir + `/archive
peer_sock ` + dir + `/peer.sock
notify_sock ` + dir + `/notify.sock
peer_retry_backoff 200ms
debug yes
`
	if err := os.WriteFile(cfgPath, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	s, err := settingsFromFile(cfgPath)
	if err != nil {
		t.Fatalf("settingsFromFile failed: %v", err)
	}

	if s.configDir != dir+"/state" {
		t.Errorf("configDir = %q", s.configDir)
	}
	if s.hashMode != "partial" {
		t.Errorf("hashMode = %q, want partial", s.hashMode)
	}
	if s.partitions["default"] != dir+"/default" || s.partitions["archive"] != dir+"/archive" {
		t.Errorf("unexpected partitions: %+v", s.partitions)
	}
	if s.peerSock != dir+"/peer.sock" {
		t.Errorf("peerSock = %q", s.peerSock)
	}
	if s.notifySock != dir+"/notify.sock" {
		t.Errorf("notifySock = %q", s.notifySock)
	}
	if s.peerRetryBackoff != 200*time.Millisecond {
		t.Errorf("peerRetryBackoff = %v, want 200ms", s.peerRetryBackoff)
	}
	if !s.debug {
		t.Errorf("debug = false, want true")
	}
}

func TestSettingsFromFile_PeerDSN(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "boxkeepctl.conf")
	body := `
config_dir ` + dir + `/state
lock_dir ` + dir + `/lock
partition default ` + dir + `/default
peer_dsn postgres://boxkeep@db/boxkeep?sslmode=disable
`
	if err := os.WriteFile(cfgPath, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	s, err := settingsFromFile(cfgPath)
	if err != nil {
		t.Fatalf("settingsFromFile failed: %v", err)
	}
	if s.peerDSN != "postgres://boxkeep@db/boxkeep?sslmode=disable" {
		t.Errorf("peerDSN = %q", s.peerDSN)
	}
	if s.peerSock != "" {
		t.Errorf("peerSock = %q, want empty", s.peerSock)
	}
}

func TestSettingsFromFile_MissingRequired(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "boxkeepctl.conf")
	if err := os.WriteFile(cfgPath, []byte("lock_dir /var/lib/boxkeep/lock\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := settingsFromFile(cfgPath); err == nil {
		t.Fatal("expected error for missing config_dir directive")
	}
}
