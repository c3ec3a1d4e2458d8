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
	"context"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/boxkeep/boxkeep/framework/log"
	"github.com/boxkeep/boxkeep/internal/notify/pubsub"
)

// PqPipe adapts a pubsub.PubSub (in practice pubsub.PqPubSub) to the Pipe
// interface, keyed by mailbox name. Unlike UnixPipe it works across
// machines, which makes it the right choice for the cross-node update peer
// in a multi-host deployment; UnixPipe serves the same peer on a single
// host.
type PqPipe struct {
	PubSub pubsub.PubSub
	Log    log.Logger

	seqCounter uint64
	dedup      seqTracker
}

var _ Pipe = (*PqPipe)(nil)

func (p *PqPipe) myID() string {
	return fmt.Sprintf("%d-%p", os.Getpid(), p)
}

func (p *PqPipe) Listen(upds chan<- Update) error {
	go func() {
		for m := range p.PubSub.Listener() {
			id, seq, upd, err := parseUpdate(m.Payload)
			if err != nil {
				p.Log.Error("failed to parse update", err)
				continue
			}
			if id == p.myID() {
				continue
			}
			if p.dedup.seen(id, seq) {
				continue
			}
			upds <- *upd
		}
	}()
	return nil
}

func (p *PqPipe) InitPush() error {
	return nil
}

// Subscribe joins the channel for name so Listen starts receiving its
// updates. Unlike UnixPipe, a PqPipe must subscribe per name explicitly
// since Postgres LISTEN is channel-scoped.
func (p *PqPipe) Subscribe(name string) {
	if err := p.PubSub.Subscribe(context.Background(), name); err != nil {
		p.Log.Error("pubsub subscribe failed", err, "name", name)
	}
}

func (p *PqPipe) Unsubscribe(name string) {
	if err := p.PubSub.Unsubscribe(context.Background(), name); err != nil {
		p.Log.Error("pubsub unsubscribe failed", err, "name", name)
	}
}

func (p *PqPipe) Push(upd Update) error {
	seq := atomic.AddUint64(&p.seqCounter, 1)
	blob, err := formatUpdate(p.myID(), seq, upd)
	if err != nil {
		return err
	}
	return p.PubSub.Publish(upd.Name, blob)
}

func (p *PqPipe) Close() error {
	return p.PubSub.Close()
}
