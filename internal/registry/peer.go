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
	"github.com/boxkeep/boxkeep/internal/notify"
)

// ApplyPeerUpdate gives a RESERVE/ACTIVATE/DELETE notification received from
// another node (via Peer.Listen) a genuine write path into this node's own
// mblist, per spec.md §3: the receiving node records the other host's claim
// as a REMOTE pointer so its own Lookup/findall see it rather than treating
// the name as free. VerbCommit updates carry no mblist-relevant bookkeeping
// here; they exist for peers mirroring delivery state and are ignored.
func (r *Registry) ApplyPeerUpdate(upd notify.Update) error {
	switch upd.Verb {
	case notify.VerbReserve:
		rec := Record{Type: TypeRemote | TypeReserve, Partition: upd.HostPart}
		encoded, err := encodeRecord(rec)
		if err != nil {
			return wrapErr("peer-update", upd.Name, KindInternal, err)
		}
		if err := r.MBList.Store([]byte(upd.Name), encoded, nil); err != nil {
			return wrapErr("peer-update", upd.Name, KindIOError, err)
		}

	case notify.VerbActivate:
		rec := Record{Type: TypeRemote, Partition: upd.HostPart, ACL: upd.ACL}
		encoded, err := encodeRecord(rec)
		if err != nil {
			return wrapErr("peer-update", upd.Name, KindInternal, err)
		}
		if err := r.MBList.Store([]byte(upd.Name), encoded, nil); err != nil {
			return wrapErr("peer-update", upd.Name, KindIOError, err)
		}

	case notify.VerbDelete:
		existing, ok, err := r.fetchRecord(upd.Name)
		if err != nil {
			return wrapErr("peer-update", upd.Name, KindIOError, err)
		}
		if !ok || !existing.Type.Has(TypeRemote) {
			// Never let a remote DELETE clobber a mailbox this node owns
			// locally; that can only happen through this node's own Delete.
			return nil
		}
		if err := r.MBList.Delete([]byte(upd.Name), nil); err != nil {
			return wrapErr("peer-update", upd.Name, KindIOError, err)
		}

	case notify.VerbCommit:
		// No mblist bookkeeping: commit fan-out is the delivery notifier's job.
	}
	return nil
}

// ServePeerUpdates binds r.Peer's Pipe for listening (synchronously, so a
// returning error means the caller never started receiving updates) and
// then applies every Update it delivers until the underlying Pipe is
// closed. Callers run it in its own goroutine and stop it by closing r.Peer.
func (r *Registry) ServePeerUpdates() error {
	upds := make(chan notify.Update)
	if err := r.Peer.Listen(upds); err != nil {
		return err
	}

	for upd := range upds {
		if err := r.ApplyPeerUpdate(upd); err != nil {
			r.Log.Error("apply peer update failed", err, "mailbox", upd.Name, "verb", string(upd.Verb))
		}
	}
	return nil
}
