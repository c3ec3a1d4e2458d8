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

package kv

import (
	"os"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T, flags Flag) *SkiplistStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, flags|Create)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreFetchDelete(t *testing.T) {
	s := openTestStore(t, 0)

	if err := s.Store([]byte("user.fred"), []byte("record-1"), nil); err != nil {
		t.Fatalf("Store: %v", err)
	}

	v, err := s.Fetch([]byte("user.fred"))
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(v) != "record-1" {
		t.Fatalf("Fetch = %q, want %q", v, "record-1")
	}

	if err := s.Delete([]byte("user.fred"), nil); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Fetch([]byte("user.fred")); !ErrNotFound(err) {
		t.Fatalf("Fetch after delete = %v, want NotFound", err)
	}
}

func TestMailboxCollationOrdering(t *testing.T) {
	s := openTestStore(t, SortedMbox)

	names := []string{"user.fredjr", "user.fred.INBOX", "user.fred"}
	for _, n := range names {
		if err := s.Store([]byte(n), []byte("x"), nil); err != nil {
			t.Fatalf("Store(%q): %v", n, err)
		}
	}

	var got []string
	err := s.Foreach([]byte("user."), AcceptAll, func(k, v []byte) bool {
		got = append(got, string(k))
		return false
	})
	if err != nil {
		t.Fatalf("Foreach: %v", err)
	}

	want := []string{"user.fred", "user.fred.INBOX", "user.fredjr"}
	if len(got) != len(want) {
		t.Fatalf("Foreach order = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Foreach order = %v, want %v", got, want)
		}
	}
}

func TestForeachPrefixAndStop(t *testing.T) {
	s := openTestStore(t, SortedMbox)
	for _, n := range []string{"user.fred.Drafts", "user.fred.Sent", "user.jane.Sent", "shared.Gossip"} {
		if err := s.Store([]byte(n), []byte("x"), nil); err != nil {
			t.Fatalf("Store(%q): %v", n, err)
		}
	}

	var got []string
	err := s.Foreach([]byte("user.fred."), AcceptAll, func(k, v []byte) bool {
		got = append(got, string(k))
		return false
	})
	if err != nil {
		t.Fatalf("Foreach: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Foreach(prefix=user.fred.) = %v, want 2 entries", got)
	}
}

func TestTxConflictSurfacesAgain(t *testing.T) {
	s := openTestStore(t, 0)
	if err := s.Store([]byte("k"), []byte("v0"), nil); err != nil {
		t.Fatalf("Store: %v", err)
	}

	tx1, err := s.Begin()
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if _, err := tx1.Fetch([]byte("k")); err != nil {
		t.Fatalf("tx1.Fetch: %v", err)
	}

	// A concurrent writer lands outside tx1's view.
	if err := s.Store([]byte("k"), []byte("v1"), nil); err != nil {
		t.Fatalf("Store: %v", err)
	}

	if err := tx1.Store([]byte("k"), []byte("v2")); err != nil {
		t.Fatalf("tx1.Store: %v", err)
	}
	err = tx1.Commit()
	if !ErrAgain(err) {
		t.Fatalf("tx1.Commit = %v, want AGAIN", err)
	}
}

func TestTxCommitAppliesWrites(t *testing.T) {
	s := openTestStore(t, 0)

	tx, err := s.Begin()
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := tx.Store([]byte("a"), []byte("1")); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	v, err := s.Fetch([]byte("a"))
	if err != nil || string(v) != "1" {
		t.Fatalf("Fetch after commit = (%q, %v), want (1, nil)", v, err)
	}
}

func TestOpenUserStore(t *testing.T) {
	dir := t.TempDir()

	subs, err := OpenUserStore(dir, "alice")
	if err != nil {
		t.Fatalf("OpenUserStore: %v", err)
	}
	defer subs.Close()

	if err := subs.Store([]byte("user.alice.Lists.golang"), []byte("1"), nil); err != nil {
		t.Fatalf("Store: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "alice.subs")); err != nil {
		t.Fatalf("expected backing file: %v", err)
	}
}
