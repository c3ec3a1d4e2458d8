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

package notify

import (
	"fmt"
	"sync"
	"time"

	"github.com/boxkeep/boxkeep/framework/exterrors"
	"github.com/boxkeep/boxkeep/framework/log"
)

// Peer is the cross-node update peer named in spec.md §6: an opaque RPC
// exchanging RESERVE/ACTIVATE/DELETE verbs, ordered per mailbox name, with
// best-effort retry on transient failure. It wraps a Pipe so the same
// RESERVE→create-on-disk→ACTIVATE sequencing registry.Create needs works
// whether the other nodes are reached over a local socket (UnixPipe) or a
// shared Postgres instance (PqPipe).
type Peer struct {
	Pipe Pipe
	Log  log.Logger

	// InitialBackoff is pushOrdered's starting retry delay, doubled on each
	// of its 8 attempts. Zero selects the default of 50ms.
	InitialBackoff time.Duration

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewPeer(p Pipe, l log.Logger) *Peer {
	return &Peer{Pipe: p, Log: l, locks: make(map[string]*sync.Mutex)}
}

// NewPeerWithBackoff is NewPeer with an operator-configured initial retry
// backoff, per the peer_retry_backoff directive boxkeepctl exposes.
func NewPeerWithBackoff(p Pipe, l log.Logger, initialBackoff time.Duration) *Peer {
	peer := NewPeer(p, l)
	peer.InitialBackoff = initialBackoff
	return peer
}

func (p *Peer) nameLock(name string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.locks[name]
	if !ok {
		l = &sync.Mutex{}
		p.locks[name] = l
	}
	return l
}

// Reserve announces that name is claimed on hostPart, forbidding other
// nodes from creating it until Activate or Delete follows.
func (p *Peer) Reserve(name, hostPart string) error {
	return p.pushOrdered(name, Update{Verb: VerbReserve, Name: name, HostPart: hostPart})
}

// Activate announces the mailbox for name now exists on hostPart with acl.
func (p *Peer) Activate(name, hostPart, acl string) error {
	return p.pushOrdered(name, Update{Verb: VerbActivate, Name: name, HostPart: hostPart, ACL: acl})
}

// Delete announces name was removed from the registry.
func (p *Peer) Delete(name string) error {
	return p.pushOrdered(name, Update{Verb: VerbDelete, Name: name})
}

// Commit announces a post-commit (modseq, uidnext, uidvalidity) triple, for
// peers that also want to mirror local delivery notifications.
func (p *Peer) Commit(name string, modseq uint64, uidnext, uidvalidity uint32) error {
	return p.pushOrdered(name, Update{
		Verb: VerbCommit, Name: name,
		ModSeq: modseq, UIDNext: uidnext, UIDValidity: uidvalidity,
	})
}

// pushOrdered serialises pushes for the same name and retries transient
// failures with bounded exponential backoff, per spec.md §9's "retry:"
// note.
func (p *Peer) pushOrdered(name string, upd Update) error {
	lock := p.nameLock(name)
	lock.Lock()
	defer lock.Unlock()

	const maxAttempts = 8
	delay := p.InitialBackoff
	if delay <= 0 {
		delay = 50 * time.Millisecond
	}
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(delay)
			delay *= 2
		}

		lastErr = p.Pipe.Push(upd)
		if lastErr == nil {
			return nil
		}
		if !exterrors.IsTemporaryOrUnspec(lastErr) {
			return lastErr
		}
		p.Log.Error("update peer push failed, retrying", lastErr, "name", name, "verb", string(upd.Verb), "attempt", attempt+1)
	}
	return fmt.Errorf("notify: push %s for %s: giving up after %d attempts: %w", upd.Verb, name, maxAttempts, lastErr)
}

// Listen forwards every Update read from the underlying Pipe to upds.
func (p *Peer) Listen(upds chan<- Update) error {
	return p.Pipe.Listen(upds)
}

func (p *Peer) Close() error {
	return p.Pipe.Close()
}
