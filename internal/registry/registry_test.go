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
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/boxkeep/boxkeep/internal/kv"
	"github.com/boxkeep/boxkeep/internal/mboxlock"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	root := t.TempDir()

	store, err := kv.Open(filepath.Join(root, "mailboxes.db"), kv.Create|kv.SortedMbox)
	if err != nil {
		t.Fatalf("kv.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return &Registry{
		MBList:           store,
		Locks:            mboxlock.NewTable(),
		LockDir:          filepath.Join(root, "lock"),
		HashMode:         mboxlock.HashFull,
		Partitions:       map[string]string{"default": filepath.Join(root, "spool")},
		DefaultPartition: "default",
		DeletedPrefix:    "DELETED",
		DefaultACL:       "anyone l",
	}
}

func TestCreateLookupDelete(t *testing.T) {
	r := newTestRegistry(t)
	admin := Identity{UserID: "root", Admin: true}

	if err := r.Create("user.alice", admin, CreateOptions{}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	rec, err := r.Lookup("user.alice", admin)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if rec.Partition != "default" {
		t.Fatalf("Partition = %q, want default", rec.Partition)
	}

	alice := Identity{UserID: "alice"}
	if err := r.Create("user.alice.Drafts", alice, CreateOptions{}); err != nil {
		t.Fatalf("Create child: %v", err)
	}

	nonOwner := Identity{UserID: "mallory"}
	if err := r.Create("user.alice.Hacked", nonOwner, CreateOptions{}); err == nil {
		t.Fatalf("expected permission denied for non-owner create under user.alice")
	} else if !Is(err, KindPermissionDenied) {
		t.Fatalf("err kind = %v, want PermissionDenied", err)
	}

	if err := r.Delete("user.alice.Drafts", alice, true, true, false); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := r.Lookup("user.alice.Drafts", admin); !Is(err, KindNotFound) {
		t.Fatalf("Lookup after delete = %v, want NotFound", err)
	}
}

func TestCreateRequiresAdminForTopLevel(t *testing.T) {
	r := newTestRegistry(t)
	alice := Identity{UserID: "alice"}

	if err := r.Create("user.alice", alice, CreateOptions{}); err == nil {
		t.Fatalf("expected permission denied creating own inbox as non-admin")
	} else if !Is(err, KindPermissionDenied) {
		t.Fatalf("err kind = %v, want PermissionDenied", err)
	}
}

func TestSetACLAndFindAll(t *testing.T) {
	r := newTestRegistry(t)
	admin := Identity{UserID: "root", Admin: true}

	if err := r.Create("shared", admin, CreateOptions{ACL: "root a"}); err != nil {
		t.Fatalf("Create top-level shared: %v", err)
	}
	if err := r.Create("shared.news", admin, CreateOptions{ACL: "root a"}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := r.SetACL("shared.news", "bob", "lr", admin); err != nil {
		t.Fatalf("SetACL: %v", err)
	}

	bob := Identity{UserID: "bob"}
	var seen []string
	if err := r.FindAll("shared.*", bob, func(name string) bool {
		seen = append(seen, name)
		return false
	}); err != nil {
		t.Fatalf("FindAll: %v", err)
	}
	if len(seen) != 1 || seen[0] != "shared.news" {
		t.Fatalf("FindAll for bob = %v, want [shared.news]", seen)
	}

	mallory := Identity{UserID: "mallory"}
	seen = nil
	if err := r.FindAll("shared.*", mallory, func(name string) bool {
		seen = append(seen, name)
		return false
	}); err != nil {
		t.Fatalf("FindAll: %v", err)
	}
	if len(seen) != 0 {
		t.Fatalf("FindAll for mallory = %v, want none", seen)
	}
}

func TestRenameOrdinaryMove(t *testing.T) {
	r := newTestRegistry(t)
	admin := Identity{UserID: "root", Admin: true}
	alice := Identity{UserID: "alice"}

	if err := r.Create("user.alice", admin, CreateOptions{}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := r.Create("user.alice.Old", alice, CreateOptions{}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := r.Rename("user.alice.Old", "user.alice.New", alice, "", false, false); err != nil {
		t.Fatalf("Rename: %v", err)
	}

	if _, err := r.Lookup("user.alice.Old", admin); !Is(err, KindNotFound) {
		t.Fatalf("Lookup(old) = %v, want NotFound", err)
	}
	if _, err := r.Lookup("user.alice.New", admin); err != nil {
		t.Fatalf("Lookup(new): %v", err)
	}
}

func TestDelayedDelete(t *testing.T) {
	r := newTestRegistry(t)
	admin := Identity{UserID: "root", Admin: true}
	alice := Identity{UserID: "alice"}

	if err := r.Create("user.alice", admin, CreateOptions{}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := r.Create("user.alice.Old", alice, CreateOptions{}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	now := time.Unix(1700000000, 0)

	if err := r.DelayedDelete("user.alice.Old", alice, now, true); !Is(err, KindPermissionDenied) {
		t.Fatalf("force DelayedDelete by non-admin = %v, want PermissionDenied", err)
	}

	if err := r.DelayedDelete("user.alice.Old", alice, now, false); err != nil {
		t.Fatalf("DelayedDelete: %v", err)
	}
	if _, err := r.Lookup("user.alice.Old", admin); !Is(err, KindNotFound) {
		t.Fatalf("Lookup(old) = %v, want NotFound", err)
	}

	var deletedName string
	r.MBList.Foreach([]byte(r.DeletedPrefix+"."), kv.AcceptAll, func(key, val []byte) bool {
		if strings.Contains(string(key), r.DeletedPrefix) {
			deletedName = string(key)
		}
		return false
	})
	if deletedName == "" {
		t.Fatalf("no DELETED.* key found after DelayedDelete")
	}
	if _, err := r.Lookup(deletedName, admin); err != nil {
		t.Fatalf("Lookup(%q): %v", deletedName, err)
	}
}

func TestFindSub(t *testing.T) {
	r := newTestRegistry(t)
	admin := Identity{UserID: "root", Admin: true}

	if err := r.Create("shared.news", admin, CreateOptions{ACL: "anyone lr"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := r.Create("shared.sports", admin, CreateOptions{ACL: "anyone lr"}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	subsPath := filepath.Join(t.TempDir(), "alice.subs")
	subs, err := kv.Open(subsPath, kv.Create|kv.SortedMbox)
	if err != nil {
		t.Fatalf("kv.Open: %v", err)
	}
	defer subs.Close()
	if err := subs.Store([]byte("shared.news"), []byte("1"), nil); err != nil {
		t.Fatalf("Store: %v", err)
	}

	var seen []string
	if err := r.FindSub(subs, "shared.*", func(name string) bool {
		seen = append(seen, name)
		return false
	}); err != nil {
		t.Fatalf("FindSub: %v", err)
	}
	if len(seen) != 1 || seen[0] != "shared.news" {
		t.Fatalf("FindSub = %v, want [shared.news]", seen)
	}
}
