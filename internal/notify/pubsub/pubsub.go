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

// Package pubsub provides a channel-keyed publish/subscribe transport, used
// by notify.PqPipe to carry cross-node update-peer traffic between boxkeep
// instances that do not share a filesystem (and so cannot use a UNIX
// socket) but do share a Postgres instance for coordination.
package pubsub

import "context"

type Msg struct {
	Key     string
	Payload string
}

type PubSub interface {
	Subscribe(ctx context.Context, key string) error
	Unsubscribe(ctx context.Context, key string) error
	Publish(key, payload string) error
	Listener() chan Msg
	Close() error
}
