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

	"github.com/boxkeep/boxkeep/internal/kv"
	"github.com/boxkeep/boxkeep/internal/mboxlock"
	"github.com/boxkeep/boxkeep/internal/mboxname"
	"github.com/boxkeep/boxkeep/internal/mboxstore"
)

// Rename implements spec.md §4.2's rename across all four documented cases
// (partition move, inbox rename, user move, ordinary hierarchy move).
func (r *Registry) Rename(old, new string, identity Identity, newPartition string, forceUserCreate, ignoreQuota bool) error {
	_ = ignoreQuota // accounting is re-derived by the append engine, not re-checked at rename time

	oldParts := mboxname.ToParts(old)
	newParts := mboxname.ToParts(new)

	sameUserInbox := oldParts.UserID != "" && newParts.UserID != "" && oldParts.UserID == newParts.UserID &&
		oldParts.Box == "" && newParts.Box == ""
	isPartitionMove := old == new && newPartition != ""
	isUserMove := oldParts.UserID != "" && newParts.UserID != "" && oldParts.UserID != newParts.UserID

	if isPartitionMove && !identity.Admin {
		return wrapErr("rename", old, KindPermissionDenied, fmt.Errorf("partition move requires admin"))
	}
	if isUserMove && !identity.Admin {
		return wrapErr("rename", old, KindPermissionDenied, fmt.Errorf("cross-user rename requires admin"))
	}

	oldRec, exists, err := r.fetchRecord(old)
	if err != nil {
		return wrapErr("rename", old, KindIOError, err)
	}
	if !exists {
		return wrapErr("rename", old, KindNotFound, nil)
	}

	if !identity.Admin {
		rights := effectiveRights(oldRec.ACL, parentOwner(old), identity.UserID, identity.Admin)
		if !rights.Has(RightDeleteMbox) {
			return wrapErr("rename", old, KindPermissionDenied, nil)
		}
	}

	if !sameUserInbox || old != new {
		if _, exists, err := r.fetchRecord(new); err != nil {
			return wrapErr("rename", new, KindIOError, err)
		} else if exists {
			return wrapErr("rename", new, KindExists, nil)
		}
		if err := mboxname.PolicyCheck(new); err != nil {
			return wrapErr("rename", new, KindBadName, err)
		}
		if parent, hasParent := parentName(new); hasParent {
			if _, ok, err := r.fetchRecord(parent); err != nil {
				return wrapErr("rename", new, KindIOError, err)
			} else if !ok && !forceUserCreate {
				return wrapErr("rename", new, KindPermissionDenied, fmt.Errorf("parent %q does not exist", parent))
			}
		}
	}

	partition := oldRec.Partition
	if newPartition != "" {
		partition = newPartition
	}
	srcDir, err := r.partitionDir(oldRec.Partition)
	if err != nil {
		return err
	}
	dstDir, err := r.partitionDir(partition)
	if err != nil {
		return err
	}

	// Acquire old, then new — the fixed order spec.md §5 requires to avoid
	// deadlocking against a concurrent rename in the other direction.
	if err := r.Locks.Acquire(r.LockDir, r.HashMode, old, mboxlock.Exclusive); err != nil {
		return wrapErr("rename", old, KindLocked, err)
	}
	defer r.Locks.Release(old)
	if old != new {
		if err := r.Locks.Acquire(r.LockDir, r.HashMode, new, mboxlock.Exclusive); err != nil {
			return wrapErr("rename", new, KindLocked, err)
		}
		defer r.Locks.Release(new)
	}

	if old != new {
		// Mark the destination key MOVING for the duration of the on-disk
		// copy, per spec.md §3's placeholder states: a concurrent lookup of
		// new must see KindReserved rather than a half-copied mailbox.
		placeholder := Record{Type: TypeMoving, Partition: partition}
		encodedPlaceholder, err := encodeRecord(placeholder)
		if err != nil {
			return wrapErr("rename", new, KindInternal, err)
		}
		if err := r.MBList.Store([]byte(new), encodedPlaceholder, nil); err != nil {
			return wrapErr("rename", new, KindIOError, err)
		}
	}

	srcPaths := mboxstore.MailboxPaths(srcDir, r.HashMode, old)
	dstPaths := mboxstore.MailboxPaths(dstDir, r.HashMode, new)
	if err := mboxstore.RenameCopy(srcPaths, dstPaths, r.LockDir, r.HashMode, r.Locks, old, new); err != nil {
		if old != new {
			r.MBList.Delete([]byte(new), nil)
		}
		return wrapErr("rename", old, KindIOError, err)
	}

	newRec := oldRec
	newRec.Partition = partition
	encoded, err := encodeRecord(newRec)
	if err != nil {
		return wrapErr("rename", new, KindInternal, err)
	}

	tx, err := r.MBList.Begin()
	if err != nil {
		return wrapErr("rename", old, KindIOError, err)
	}
	if err := tx.Store([]byte(new), encoded); err != nil {
		tx.Rollback()
		return wrapErr("rename", new, KindIOError, err)
	}
	if !sameUserInbox {
		if err := tx.Delete([]byte(old)); err != nil {
			tx.Rollback()
			return wrapErr("rename", old, KindIOError, err)
		}
	}
	if err := tx.Commit(); err != nil {
		if kv.ErrAgain(err) {
			return wrapErr("rename", old, KindInternal, fmt.Errorf("conflicting concurrent write, retry: %w", err))
		}
		return wrapErr("rename", old, KindIOError, err)
	}

	if r.Peer != nil {
		hostPart := fmt.Sprintf("local!%s", partition)
		if err := r.Peer.Activate(new, hostPart, newRec.ACL); err != nil {
			r.Log.Error("rename peer activate failed", err, "old", old, "new", new)
		}
		if !sameUserInbox {
			if err := r.Peer.Delete(old); err != nil {
				r.Log.Error("rename peer delete failed", err, "old", old)
			}
		}
	}

	if !sameUserInbox {
		removeAll(srcPaths.Dir)
	}

	return nil
}

// SetACL implements spec.md §4.2's setacl.
func (r *Registry) SetACL(name, identifier, rights string, identity Identity) error {
	rec, exists, err := r.fetchRecord(name)
	if err != nil {
		return wrapErr("setacl", name, KindIOError, err)
	}
	if !exists {
		return wrapErr("setacl", name, KindNotFound, nil)
	}

	if !identity.Admin {
		have := effectiveRights(rec.ACL, parentOwner(name), identity.UserID, identity.Admin)
		if !have.Has(RightAdmin) {
			return wrapErr("setacl", name, KindPermissionDenied, nil)
		}
	}

	domain := mboxname.ToParts(name).Domain
	canonID, err := canonicalIdentifier(domain, identifier)
	if err != nil {
		return wrapErr("setacl", name, KindBadIdentifier, err)
	}

	parsed := parseACL(rec.ACL)
	parsed.applyRights(canonID, rights)

	if owner := parentOwner(name); owner != "" {
		parsed.applyRights(owner, ownerRights.String())
	}

	rec.ACL = parsed.String()
	encoded, err := encodeRecord(rec)
	if err != nil {
		return wrapErr("setacl", name, KindInternal, err)
	}

	oldRaw, err := r.MBList.Fetch([]byte(name))
	if err != nil {
		return wrapErr("setacl", name, KindIOError, err)
	}
	if err := r.MBList.Store([]byte(name), encoded, nil); err != nil {
		return wrapErr("setacl", name, KindIOError, err)
	}

	partitionDir, err := r.partitionDir(rec.Partition)
	if err == nil {
		paths := mboxstore.MailboxPaths(partitionDir, r.HashMode, name)
		mbx, openErr := mboxstore.Open(paths, r.LockDir, r.HashMode, r.Locks, name, mboxstore.IWL, nil)
		if openErr == nil {
			mbx.SetHeaderACL(rec.ACL)
			if err := mbx.Commit(identity.UserID, "registry", "setacl"); err != nil {
				r.Log.Error("setacl header backup commit failed", err, "mailbox", name)
			}
		}
	}

	if r.Peer != nil {
		hostPart := fmt.Sprintf("local!%s", rec.Partition)
		if err := r.Peer.Activate(name, hostPart, rec.ACL); err != nil {
			r.MBList.Store([]byte(name), oldRaw, nil)
			return wrapErr("setacl", name, KindIOError, err)
		}
	}

	return nil
}

// SetQuota implements spec.md §4.2's setquota: creates/updates root and
// retargets root itself and every mailbox under the prefix "<root>.".
func (r *Registry) SetQuota(root string, limit uint64, force bool) error {
	if r.Quota == nil {
		return wrapErr("setquota", root, KindNotSupported, nil)
	}
	if err := r.Quota.Set(root, limit, force); err != nil {
		return wrapErr("setquota", root, KindQuotaExceeded, err)
	}
	return r.retargetQuotaRoot(root, root)
}

// UnsetQuota implements spec.md §4.2's unsetquota.
func (r *Registry) UnsetQuota(root string) error {
	if r.Quota == nil {
		return wrapErr("unsetquota", root, KindNotSupported, nil)
	}
	if err := r.Quota.Unset(root); err != nil {
		return wrapErr("unsetquota", root, KindIOError, err)
	}
	return r.retargetQuotaRoot(root, "")
}

func (r *Registry) retargetQuotaRoot(prefix, newRoot string) error {
	// Foreach holds the store's read lock while it runs, so the updated
	// records are collected first and stored once the scan is over.
	var walkErr error
	updates := make(map[string][]byte)
	r.MBList.Foreach([]byte(prefix), kv.AcceptAll, func(key, val []byte) bool {
		if k := string(key); k != prefix && k[len(prefix):len(prefix)+1] != mboxname.Sep {
			return false
		}
		rec, err := decodeRecord(val)
		if err != nil {
			walkErr = err
			return true
		}
		if rec.QuotaRoot == newRoot {
			return false
		}
		rec.QuotaRoot = newRoot
		encoded, err := encodeRecord(rec)
		if err != nil {
			walkErr = err
			return true
		}
		updates[string(key)] = encoded
		return false
	})
	if walkErr != nil {
		return walkErr
	}
	for key, encoded := range updates {
		if err := r.MBList.Store([]byte(key), encoded, nil); err != nil {
			return err
		}
	}
	return nil
}
