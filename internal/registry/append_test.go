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
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/boxkeep/boxkeep/framework/buffer"
	"github.com/boxkeep/boxkeep/internal/quota"
)

func TestAppendSingleDestination(t *testing.T) {
	r := newTestRegistry(t)
	admin := Identity{UserID: "root", Admin: true}
	alice := Identity{UserID: "alice"}

	if err := r.Create("user.alice", admin, CreateOptions{}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	body := buffer.MemoryBuffer{Slice: []byte("From: a@example.com\r\n\r\nhello\r\n")}
	recs, err := r.Append(context.Background(), []AppendDestination{
		{Name: "user.alice", Flags: []string{`\Seen`}},
	}, alice, time.Now(), body, nil)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("len(recs) = %d, want 1", len(recs))
	}
	if recs[0].UID != 1 {
		t.Fatalf("UID = %d, want 1", recs[0].UID)
	}
	if recs[0].Size != uint32(body.Len()) {
		t.Fatalf("Size = %d, want %d", recs[0].Size, body.Len())
	}
}

func TestAppendFansOutAcrossMailboxesSharingOneStage(t *testing.T) {
	r := newTestRegistry(t)
	admin := Identity{UserID: "root", Admin: true}
	alice := Identity{UserID: "alice"}

	if err := r.Create("user.alice", admin, CreateOptions{}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := r.Create("user.alice.Sent", alice, CreateOptions{}); err != nil {
		t.Fatalf("Create Sent: %v", err)
	}

	body := buffer.MemoryBuffer{Slice: []byte("hello world")}
	recs, err := r.Append(context.Background(), []AppendDestination{
		{Name: "user.alice", Flags: nil},
		{Name: "user.alice.Sent", Flags: []string{`\Seen`}},
	}, alice, time.Now(), body, nil)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("len(recs) = %d, want 2", len(recs))
	}
	for _, rec := range recs {
		if rec.GUID != recs[0].GUID {
			t.Fatalf("destinations disagree on GUID: %v vs %v", rec.GUID, recs[0].GUID)
		}
	}
}

func TestAppendRejectsWithoutPostRight(t *testing.T) {
	r := newTestRegistry(t)
	admin := Identity{UserID: "root", Admin: true}
	mallory := Identity{UserID: "mallory"}

	if err := r.Create("user.alice", admin, CreateOptions{}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	body := buffer.MemoryBuffer{Slice: []byte("hi")}
	_, err := r.Append(context.Background(), []AppendDestination{
		{Name: "user.alice"},
	}, mallory, time.Now(), body, nil)
	if !Is(err, KindPermissionDenied) {
		t.Fatalf("err = %v, want PermissionDenied", err)
	}
}

func TestAppendEnforcesQuota(t *testing.T) {
	r := newTestRegistry(t)
	admin := Identity{UserID: "root", Admin: true}
	alice := Identity{UserID: "alice"}

	r.Quota = quota.NewFileStore(filepath.Join(t.TempDir(), "quota"))

	if err := r.Create("user.alice", admin, CreateOptions{}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := r.SetQuota("user.alice", 4, false); err != nil {
		t.Fatalf("SetQuota: %v", err)
	}

	body := buffer.MemoryBuffer{Slice: []byte("this message is longer than 4 bytes")}
	_, err := r.Append(context.Background(), []AppendDestination{
		{Name: "user.alice"},
	}, alice, time.Now(), body, nil)
	if !Is(err, KindQuotaExceeded) {
		t.Fatalf("err = %v, want QuotaExceeded", err)
	}
}
