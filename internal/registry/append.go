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
	"encoding/hex"
	"fmt"
	"time"

	"github.com/boxkeep/boxkeep/framework/buffer"
	msgappend "github.com/boxkeep/boxkeep/internal/append"
	"github.com/boxkeep/boxkeep/internal/mboxstore"
)

// AppendDestination names one mailbox an Append call delivers into, along
// with the flags/annotations that mailbox's copy should carry before any
// annotation callout directive is folded in, per spec.md §4.4.
type AppendDestination struct {
	Name        string
	Flags       []string
	Annotations map[string]string
}

type resolvedAppendDest struct {
	dest AppendDestination
	rec  Record
}

// Append implements spec.md §4.4's single-instance-store delivery: body is
// staged once per partition touched by dests, then fanned out via
// internal/append.FromStage into every destination mailbox, with callout
// (if non-nil) given a chance to add/remove flags and annotations before
// each destination's index record is appended. Every destination must
// already exist; Append does not create mailboxes.
func (r *Registry) Append(ctx context.Context, dests []AppendDestination, identity Identity, internalDate time.Time, body buffer.Buffer, callout *msgappend.Callout) ([]mboxstore.Record, error) {
	if len(dests) == 0 {
		return nil, wrapErr("append", "", KindBadName, fmt.Errorf("no destinations"))
	}

	byPartition := map[string][]resolvedAppendDest{}

	for _, dest := range dests {
		name := r.resolveAlias(dest.Name, identity)

		rec, exists, err := r.fetchRecord(name)
		if err != nil {
			return nil, wrapErr("append", name, KindIOError, err)
		}
		if !exists {
			return nil, wrapErr("append", name, KindNotFound, nil)
		}
		if rec.Type.Placeholder() {
			return nil, wrapErr("append", name, KindReserved, nil)
		}

		if !identity.Admin {
			rights := effectiveRights(rec.ACL, parentOwner(name), identity.UserID, identity.Admin)
			if !rights.Has(RightPost) {
				return nil, wrapErr("append", name, KindPermissionDenied, nil)
			}
		}

		partitionDir, err := r.partitionDir(rec.Partition)
		if err != nil {
			return nil, err
		}

		dest.Name = name
		byPartition[partitionDir] = append(byPartition[partitionDir], resolvedAppendDest{dest: dest, rec: rec})
	}

	var reserved []string
	releaseReserved := func(size uint64) {
		for _, root := range reserved {
			r.Quota.Release(root, size)
		}
	}

	var opened []*mboxstore.Mailbox
	abortOpened := func() {
		for _, mbx := range opened {
			mbx.Abort()
		}
	}

	var allRecs []mboxstore.Record

	for partitionDir, group := range byPartition {
		stage, err := msgappend.NewStage(partitionDir, internalDate, body)
		if err != nil {
			abortOpened()
			return allRecs, wrapErr("append", partitionDir, KindIOError, err)
		}
		stagedSize := uint64(stage.Size())

		partitionQuotaRoots := map[string]bool{}
		for _, res := range group {
			if res.rec.QuotaRoot != "" {
				partitionQuotaRoots[res.rec.QuotaRoot] = true
			}
		}

		if r.Quota != nil {
			for root := range partitionQuotaRoots {
				if err := r.Quota.Reserve(root, stagedSize); err != nil {
					stage.Remove()
					abortOpened()
					releaseReserved(stagedSize)
					return allRecs, wrapErr("append", root, KindQuotaExceeded, err)
				}
				reserved = append(reserved, root)
			}
		}

		var appendDests []msgappend.Destination
		for _, res := range group {
			paths := mboxstore.MailboxPaths(partitionDir, r.HashMode, res.dest.Name)
			mbx, err := mboxstore.Open(paths, r.LockDir, r.HashMode, r.Locks, res.dest.Name, mboxstore.IWL, nil)
			if err != nil {
				stage.Remove()
				abortOpened()
				releaseReserved(stagedSize)
				return allRecs, wrapErr("append", res.dest.Name, KindIOError, err)
			}
			mbx.SetNotifier(r.Notifier)
			opened = append(opened, mbx)

			flags, annotations := res.dest.Flags, res.dest.Annotations
			if callout != nil {
				guid := stage.GUID()
				directives := callout.Run(ctx, msgappend.CalloutRequest{
					Filename:    stage.Path(),
					Annotations: annotations,
					Flags:       flags,
					GUID:        hex.EncodeToString(guid[:]),
				})
				flags, annotations = msgappend.ApplyDirectives(flags, annotations, directives)
			}

			appendDests = append(appendDests, msgappend.Destination{
				Mailbox:     mbx,
				Flags:       flags,
				Annotations: annotations,
			})
		}

		recs, err := msgappend.FromStage(stage, appendDests)
		if err != nil {
			abortOpened()
			releaseReserved(stagedSize)
			return allRecs, wrapErr("append", partitionDir, KindIOError, err)
		}
		allRecs = append(allRecs, recs...)
	}

	for _, mbx := range opened {
		if err := mbx.Commit(identity.UserID, "registry", "append"); err != nil {
			r.Log.Error("append post-commit notify failed", err, "mailbox", mbx.Name)
		}
	}

	return allRecs, nil
}
