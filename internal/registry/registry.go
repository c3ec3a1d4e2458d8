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
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/boxkeep/boxkeep/framework/log"
	"github.com/boxkeep/boxkeep/internal/kv"
	"github.com/boxkeep/boxkeep/internal/mboxlock"
	"github.com/boxkeep/boxkeep/internal/mboxname"
	"github.com/boxkeep/boxkeep/internal/mboxstore"
	"github.com/boxkeep/boxkeep/internal/notify"
	"github.com/boxkeep/boxkeep/internal/quota"
)

// Registry implements spec.md §4.2 on top of internal/kv's mblist store,
// internal/mboxname's name handling, and internal/mboxstore for the on-disk
// side of create/delete/rename.
type Registry struct {
	MBList kv.Store

	Locks    *mboxlock.Table
	LockDir  string
	HashMode mboxlock.HashMode

	// Partitions maps a partition name to its on-disk root. DefaultPartition
	// names the entry Create falls back to when none is chosen explicitly.
	Partitions       map[string]string
	DefaultPartition string

	DeletedPrefix string

	// Peer is the optional cross-node update protocol of spec.md §6; nil
	// when this deployment is single-node.
	Peer *notify.Peer
	// Notifier is passed through to every mboxstore.Mailbox this registry
	// opens, so commits emit delivery datagrams.
	Notifier *notify.DeliveryNotifier

	Quota quota.Store

	// DefaultACL is used when a new top-level shared mailbox has no
	// inherited ACL to fall back on.
	DefaultACL string

	Log log.Logger
}

func (r *Registry) partitionDir(name string) (string, error) {
	if name == "" {
		name = r.DefaultPartition
	}
	dir, ok := r.Partitions[name]
	if !ok {
		return "", wrapErr("partition", name, KindUnknownPartition, nil)
	}
	return dir, nil
}

// Lookup returns name's record, per spec.md §4.2. INBOX (case-insensitively)
// for identity's own namespace resolves to that identity's inbox name first;
// any other name is looked up exactly as given.
func (r *Registry) Lookup(name string, identity Identity) (Record, error) {
	name = r.resolveAlias(name, identity)

	raw, err := r.MBList.Fetch([]byte(name))
	if err != nil {
		if kv.ErrNotFound(err) {
			return Record{}, wrapErr("lookup", name, KindNotFound, nil)
		}
		return Record{}, wrapErr("lookup", name, KindIOError, err)
	}

	rec, err := decodeRecord(raw)
	if err != nil {
		return Record{}, wrapErr("lookup", name, KindIOError, err)
	}
	if rec.Type.Placeholder() {
		return Record{}, wrapErr("lookup", name, KindReserved, nil)
	}
	return rec, nil
}

// resolveAlias maps the case-insensitive "INBOX" alias to identity's own
// inbox name, per spec.md §4.2's findall note ("INBOX is visible to the
// owner under its alias INBOX").
func (r *Registry) resolveAlias(name string, identity Identity) string {
	if strings.EqualFold(name, "INBOX") && identity.UserID != "" {
		if inbox, ok := mboxname.UserInbox(identity.UserID); ok {
			return inbox
		}
	}
	return name
}

func parentName(internal string) (parent string, ok bool) {
	p := mboxname.ToParts(internal)
	if p.UserID != "" && p.Box == "" {
		// Exactly "user.<uid>": top of that user's hierarchy, no parent.
		return "", false
	}
	if p.UserID == "" && !strings.Contains(p.Box, mboxname.Sep) {
		// Top-level shared mailbox, no parent.
		return "", false
	}

	segs := strings.Split(p.Box, mboxname.Sep)
	if len(segs) <= 1 {
		return mboxname.ToInternal(mboxname.Parts{Domain: p.Domain, UserID: p.UserID}), true
	}
	parentBox := strings.Join(segs[:len(segs)-1], mboxname.Sep)
	return mboxname.ToInternal(mboxname.Parts{Domain: p.Domain, UserID: p.UserID, Box: parentBox}), true
}

func (r *Registry) fetchRecord(name string) (Record, bool, error) {
	raw, err := r.MBList.Fetch([]byte(name))
	if err != nil {
		if kv.ErrNotFound(err) {
			return Record{}, false, nil
		}
		return Record{}, false, err
	}
	rec, err := decodeRecord(raw)
	return rec, true, err
}

// CreateOptions configures Create beyond the mandatory name+identity.
type CreateOptions struct {
	Partition       string
	ACL             string
	UniqueID        string
	UIDValidity     uint32
	ForceUserCreate bool
}

// Create implements spec.md §4.2's create.
func (r *Registry) Create(name string, identity Identity, opts CreateOptions) error {
	if err := mboxname.PolicyCheck(name); err != nil {
		return wrapErr("create", name, KindBadName, err)
	}

	parts := mboxname.ToParts(name)
	parent, hasParent := parentName(name)

	var parentRec Record
	if hasParent {
		rec, ok, err := r.fetchRecord(parent)
		if err != nil {
			return wrapErr("create", name, KindIOError, err)
		}
		if !ok && !opts.ForceUserCreate {
			return wrapErr("create", name, KindPermissionDenied, fmt.Errorf("parent %q does not exist", parent))
		}
		parentRec = rec
		if ok && !identity.Admin {
			rights := effectiveRights(rec.ACL, parentOwner(parent), identity.UserID, identity.Admin)
			if !rights.Has(RightCreate) {
				return wrapErr("create", name, KindPermissionDenied, nil)
			}
		}
	} else if !identity.Admin {
		// Either "user.<uid>" or a top-level shared name: admin required.
		return wrapErr("create", name, KindPermissionDenied, nil)
	}

	if _, exists, err := r.fetchRecord(name); err != nil {
		return wrapErr("create", name, KindIOError, err)
	} else if exists {
		return wrapErr("create", name, KindExists, nil)
	}

	partition := opts.Partition
	if partition == "" {
		partition = parentRec.Partition
	}
	if partition == "" {
		partition = r.DefaultPartition
	}
	partitionDir, err := r.partitionDir(partition)
	if err != nil {
		return err
	}

	acl := opts.ACL
	if acl == "" {
		switch {
		case parentRec.ACL != "":
			acl = parentRec.ACL
		case parts.UserID != "":
			acl = fmt.Sprintf("%s all", ownerIdentifier(parts))
		default:
			acl = r.DefaultACL
		}
	}

	uniqueID := opts.UniqueID
	if uniqueID == "" {
		uniqueID = uuid.NewString()
	}

	hostPart := fmt.Sprintf("local!%s", partition)
	if r.Peer != nil {
		reserveRec := Record{Type: TypeReserve, Partition: partition, ACL: acl, UniqueID: uniqueID}
		encodedReserve, err := encodeRecord(reserveRec)
		if err != nil {
			return wrapErr("create", name, KindInternal, err)
		}
		if err := r.MBList.Store([]byte(name), encodedReserve, nil); err != nil {
			return wrapErr("create", name, KindIOError, err)
		}
		if err := r.Peer.Reserve(name, hostPart); err != nil {
			r.MBList.Delete([]byte(name), nil)
			return wrapErr("create", name, KindIOError, err)
		}
	}

	paths := mboxstore.MailboxPaths(partitionDir, r.HashMode, name)
	mbx, err := mboxstore.Create(paths, r.LockDir, r.HashMode, r.Locks, name, acl, uniqueID, opts.UIDValidity)
	if err != nil {
		return wrapErr("create", name, KindIOError, err)
	}
	mbx.SetNotifier(r.Notifier)
	if err := mbx.Commit(identity.UserID, "registry", "create"); err != nil {
		r.Log.Error("post-commit notify failed", err, "mailbox", name)
	}

	rec := Record{
		Partition:   partition,
		ACL:         acl,
		UniqueID:    uniqueID,
		UIDValidity: mbx.Header().UIDValidity,
	}
	encoded, err := encodeRecord(rec)
	if err != nil {
		return wrapErr("create", name, KindInternal, err)
	}
	if err := r.MBList.Store([]byte(name), encoded, nil); err != nil {
		return wrapErr("create", name, KindIOError, err)
	}

	if r.Peer != nil {
		if err := r.Peer.Activate(name, hostPart, acl); err != nil {
			// Best-effort rollback per spec.md §4.2: the on-disk mailbox is
			// kept and the key is put back in RESERVE state rather than left
			// as a record the peer never acknowledged.
			reserveRec := Record{Type: TypeReserve, Partition: partition, ACL: acl, UniqueID: uniqueID}
			encodedReserve, encErr := encodeRecord(reserveRec)
			if encErr != nil {
				r.Log.Error("create rollback: re-encode reserve record failed", encErr, "mailbox", name)
				return wrapErr("create", name, KindIOError, err)
			}
			if storeErr := r.MBList.Store([]byte(name), encodedReserve, nil); storeErr != nil {
				r.Log.Error("create rollback failed, mailbox left activated without peer ack", storeErr, "mailbox", name)
			} else {
				r.Log.Error("create activate failed, left mailbox in RESERVE state", err, "mailbox", name)
			}
			return wrapErr("create", name, KindIOError, err)
		}
	}

	return nil
}

func removeAll(dir string) error {
	if dir == "" {
		return nil
	}
	return os.RemoveAll(dir)
}

func ownerIdentifier(p mboxname.Parts) string {
	if p.Domain == "" {
		return p.UserID
	}
	return p.UserID + "@" + p.Domain
}

func parentOwner(parent string) string {
	owner, ok := mboxname.ToUserID(parent)
	if !ok {
		return ""
	}
	return owner
}

// Delete implements spec.md §4.2's delete (immediate).
func (r *Registry) Delete(name string, identity Identity, checkACL, localOnly, force bool) error {
	parts := mboxname.ToParts(name)
	if parts.UserID != "" && parts.Box == "" && !identity.Admin {
		return wrapErr("delete", name, KindPermissionDenied, nil)
	}

	rec, exists, err := r.fetchRecord(name)
	if err != nil {
		return wrapErr("delete", name, KindIOError, err)
	}
	if !exists {
		return wrapErr("delete", name, KindNotFound, nil)
	}

	if checkACL && !identity.Admin {
		rights := effectiveRights(rec.ACL, parentOwner(name), identity.UserID, identity.Admin)
		if !rights.Has(RightDeleteMbox) {
			return wrapErr("delete", name, KindPermissionDenied, nil)
		}
	}

	if err := r.Locks.Acquire(r.LockDir, r.HashMode, name, mboxlock.Exclusive); err != nil {
		return wrapErr("delete", name, KindLocked, err)
	}
	defer r.Locks.Release(name)

	if r.Peer != nil && !localOnly {
		if err := r.Peer.Delete(name); err != nil && !force {
			return wrapErr("delete", name, KindIOError, err)
		} else if err != nil {
			r.Log.Error("peer delete failed, continuing (force)", err, "mailbox", name)
		}
	}

	if err := r.MBList.Delete([]byte(name), nil); err != nil && !force {
		return wrapErr("delete", name, KindIOError, err)
	}

	partitionDir, err := r.partitionDir(rec.Partition)
	if err == nil {
		paths := mboxstore.MailboxPaths(partitionDir, r.HashMode, name)
		if rmErr := removeAll(paths.Dir); rmErr != nil && !force {
			return wrapErr("delete", name, KindIOError, rmErr)
		}
	} else if !force {
		return err
	}

	return nil
}

// DelayedDelete implements spec.md §4.2's delayed_delete: functionally a
// rename to the deleted-prefix name. The destination-parent existence check
// is always skipped, so the DP.* hierarchy need not already exist; per the
// stricter reading of spec.md's open question on this point, force requires
// an admin identity and has no other effect.
func (r *Registry) DelayedDelete(name string, identity Identity, now time.Time, force bool) error {
	if force && !identity.Admin {
		return wrapErr("delayed_delete", name, KindPermissionDenied, fmt.Errorf("force requires admin"))
	}
	deleted := mboxname.DeletedName(r.DeletedPrefix, name, now)
	return r.Rename(name, deleted, identity, "", true, true)
}
