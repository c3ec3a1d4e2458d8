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

// Package notify implements the two out-of-band signalling paths the
// registry and storage engine rely on: the local delivery notifier (commit
// tells interested listeners that a mailbox moved to a new modseq/uidnext)
// and the cross-node update peer (RESERVE/ACTIVATE/DELETE verbs exchanged
// between registry instances sharing a partition).
//
// The update peer is expressed in terms of a small Pipe abstraction,
// mirroring the way the teacher's updatepipe package let a single interface
// serve both a push-only CLI tool and a replicating server. The delivery
// notifier (DeliveryNotifier) writes datagrams directly and does not use
// Pipe.
package notify

// Verb identifies a cross-node update-peer message.
type Verb string

const (
	// VerbCommit carries a post-commit (modseq, uidnext, uidvalidity)
	// triple for one mailbox, as sent by Peer.Commit.
	VerbCommit Verb = "COMMIT"
	// VerbReserve announces a RESERVE record was written for name on
	// host!part, forbidding creation elsewhere until ACTIVATE or DELETE.
	VerbReserve Verb = "RESERVE"
	// VerbActivate announces the on-disk mailbox for name now exists at
	// host!part with the given ACL and the record is no longer RESERVE.
	VerbActivate Verb = "ACTIVATE"
	// VerbDelete announces name was removed from the registry.
	VerbDelete Verb = "DELETE"
)

// Update is the single wire object exchanged over a Pipe. Which fields are
// meaningful depends on Verb: VerbCommit uses ModSeq/UIDNext/UIDValidity,
// VerbReserve/VerbActivate use HostPart (and ACL, for VerbActivate), and
// VerbDelete uses only Name.
type Update struct {
	Verb Verb   `json:"verb"`
	Name string `json:"name"`

	ModSeq      uint64 `json:"modseq,omitempty"`
	UIDNext     uint32 `json:"uidnext,omitempty"`
	UIDValidity uint32 `json:"uidvalidity,omitempty"`

	HostPart string `json:"hostpart,omitempty"`
	ACL      string `json:"acl,omitempty"`
}

// Pipe is the transport-agnostic handle for a medium carrying Update
// objects between processes or machines. It is implemented by UnixPipe
// (single host, one or more listening processes) and PqPipe (multiple
// hosts sharing a Postgres instance for coordination).
type Pipe interface {
	// Listen starts the pull side: updates read from the pipe are sent to
	// upds. Updates pushed by this same Pipe are never echoed back.
	//
	// Listen may be called at most once per Pipe.
	Listen(upds chan<- Update) error

	// InitPush prepares the Pipe for use as an update source. It is called
	// implicitly by the first Push, but calling it eagerly surfaces
	// connection errors before the caller commits to relying on the pipe.
	InitPush() error

	// Push writes upd to the pipe. It is not delivered back to this Pipe's
	// own Listen channel.
	Push(upd Update) error

	Close() error
}
