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

package mboxstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/boxkeep/boxkeep/framework/buffer"
	"github.com/boxkeep/boxkeep/framework/log"
	"github.com/boxkeep/boxkeep/internal/mboxlock"
	"github.com/boxkeep/boxkeep/internal/notify"
)

func testPaths(t *testing.T, name string) (Paths, string) {
	t.Helper()
	root := t.TempDir()
	paths := MailboxPaths(root, mboxlock.HashFull, name)
	return paths, filepath.Join(root, "lock")
}

// TestActionsQueueOrdering is spec.md §8 scenario 1: three post_action calls
// against an empty mailbox, then one open_iwl/close drains all 3 (in order),
// and a second open_iwl/close drains 0.
func TestActionsQueueOrdering(t *testing.T) {
	name := "user.smurf"
	paths, lockDir := testPaths(t, name)
	locks := mboxlock.NewTable()

	mbx, err := Create(paths, lockDir, mboxlock.HashFull, locks, name, "", "", 0)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := mbx.Commit("smurf", "test", "s1"); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	tags := []uint64{0xdeadbeef, 0x00c0ffee, 0xcafebabe}
	for _, tag := range tags {
		if err := PostAction(paths, tag); err != nil {
			t.Fatalf("PostAction(%#x): %v", tag, err)
		}
	}

	var drained []uint64
	mbx, err = Open(paths, lockDir, mboxlock.HashFull, locks, name, IWL, func(tag uint64) {
		drained = append(drained, tag)
	})
	if err != nil {
		t.Fatalf("Open(iwl): %v", err)
	}
	if err := mbx.Commit(name, "test", "s2"); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if len(drained) != 3 {
		t.Fatalf("drained %d actions, want 3: %v", len(drained), drained)
	}
	if drained[len(drained)-1] != 0xcafebabe {
		t.Fatalf("last drained tag = %#x, want 0xcafebabe", drained[len(drained)-1])
	}

	drained = nil
	mbx, err = Open(paths, lockDir, mboxlock.HashFull, locks, name, IWL, func(tag uint64) {
		drained = append(drained, tag)
	})
	if err != nil {
		t.Fatalf("second Open(iwl): %v", err)
	}
	if err := mbx.Commit(name, "test", "s3"); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if len(drained) != 0 {
		t.Fatalf("second drain = %d actions, want 0: %v", len(drained), drained)
	}
}

// TestEndToEndAppendAndNotify is spec.md §8 scenario 6.
func TestEndToEndAppendAndNotify(t *testing.T) {
	name := "user.smurf"
	paths, lockDir := testPaths(t, name)
	locks := mboxlock.NewTable()

	mbx, err := Create(paths, lockDir, mboxlock.HashFull, locks, name, "", "", 0)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	sockPath := filepath.Join(t.TempDir(), "notify.sock")
	listener, err := notify.ListenDelivery(sockPath)
	if err != nil {
		t.Fatalf("ListenDelivery: %v", err)
	}
	defer listener.Close()

	notifier, err := notify.NewDeliveryNotifier(sockPath, log.Logger{})
	if err != nil {
		t.Fatalf("NewDeliveryNotifier: %v", err)
	}
	mbx.SetNotifier(notifier)

	body := []byte("From: a@b\r\nSubject: hi\r\n\r\nbody\r\n")
	rec := Record{
		InternalDate: 1,
		Size:         uint32(len(body)),
		SystemFlags:  FlagSeen,
	}
	rec, err = mbx.AppendRecord(rec, []byte("cache-blob"), buffer.MemoryBuffer{Slice: body})
	if err != nil {
		t.Fatalf("AppendRecord: %v", err)
	}
	if rec.UID != 1 {
		t.Fatalf("UID = %d, want 1", rec.UID)
	}

	recvCh := make(chan notify.DeliveryNotification, 1)
	recvErrCh := make(chan error, 1)
	go func() {
		buf := make([]byte, 65536)
		note, err := listener.Recv(buf)
		if err != nil {
			recvErrCh <- err
			return
		}
		recvCh <- note
	}()

	if err := mbx.Commit(name, "lmtp", "sess1"); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	select {
	case err := <-recvErrCh:
		t.Fatalf("Recv: %v", err)
	case note := <-recvCh:
		if len(note.Mailboxes) != 1 {
			t.Fatalf("Mailboxes = %v, want 1 entry", note.Mailboxes)
		}
		state := note.Mailboxes[0]
		if state.MailboxName != name {
			t.Fatalf("MailboxName = %q, want %q", state.MailboxName, name)
		}
		if state.UIDNext != 2 {
			t.Fatalf("UIDNext = %d, want 2", state.UIDNext)
		}
	}

	reopened, err := Open(paths, lockDir, mboxlock.HashFull, locks, name, IRL, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.locks.Release(name)

	h := reopened.Header()
	if h.ExistsCount != 1 {
		t.Fatalf("ExistsCount = %d, want 1", h.ExistsCount)
	}
	if h.LastUID != 1 {
		t.Fatalf("LastUID = %d, want 1", h.LastUID)
	}

	msgPath := paths.MessagePath(1)
	data, err := os.ReadFile(msgPath)
	if err != nil {
		t.Fatalf("read message file: %v", err)
	}
	if len(data) != len(body) {
		t.Fatalf("message file is %d bytes, want %d", len(data), len(body))
	}
}
