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

package registry

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/boxkeep/boxkeep/framework/log"
	"github.com/boxkeep/boxkeep/internal/notify"
)

var testLogger = log.Logger{}

// TestPeerReserveActivateDeleteRoundTrip exercises the cross-node update
// peer end to end: regA creates and then deletes a mailbox, regB (a
// separate registry standing in for a peer node sharing no on-disk state)
// observes those updates over a UnixPipe and applies them via
// ApplyPeerUpdate, giving Record's REMOTE/RESERVE bits a real writer.
func TestPeerReserveActivateDeleteRoundTrip(t *testing.T) {
	root := t.TempDir()
	sock := filepath.Join(root, "peer.sock")

	regB := newTestRegistry(t)
	regB.Peer = notify.NewPeer(&notify.UnixPipe{SockPath: sock, Log: testLogger}, testLogger)
	t.Cleanup(func() { regB.Peer.Close() })

	servingDone := make(chan error, 1)
	go func() { servingDone <- regB.ServePeerUpdates() }()

	waitForSocketFile(t, sock)

	regA := newTestRegistry(t)
	regA.Peer = notify.NewPeer(&notify.UnixPipe{SockPath: sock, Log: testLogger}, testLogger)
	t.Cleanup(func() { regA.Peer.Close() })

	admin := Identity{UserID: "root", Admin: true}
	if err := regA.Create("user.alice", admin, CreateOptions{}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	rec := waitForRecord(t, regB, "user.alice")
	if !rec.Type.Has(TypeRemote) {
		t.Fatalf("regB record.Type = %v, want TypeRemote set", rec.Type)
	}
	if rec.Type.Placeholder() {
		t.Fatalf("regB record.Type = %v, want not a placeholder after ACTIVATE", rec.Type)
	}

	if err := regA.Delete("user.alice", admin, false, false, false); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	waitForNotFound(t, regB, "user.alice")
}

func waitForSocketFile(t *testing.T, path string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(path); err == nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("peer socket %q never appeared", path)
}

func waitForRecord(t *testing.T, r *Registry, name string) Record {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if rec, ok, err := r.fetchRecord(name); err == nil && ok {
			return rec
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("record %q never appeared on peer", name)
	return Record{}
}

func waitForNotFound(t *testing.T, r *Registry, name string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok, err := r.fetchRecord(name); err == nil && !ok {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("record %q never disappeared on peer", name)
}
