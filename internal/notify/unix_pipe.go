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
	"bufio"
	"fmt"
	"io"
	"net"
	"os"
	"sync/atomic"

	"github.com/boxkeep/boxkeep/framework/log"
)

// UnixPipe implements Pipe over a stream-oriented UNIX domain socket, with
// updates delimited by newlines like the teacher's equivalent. It is the
// same-host transport of the cross-node update peer, for processes that
// share a partition directory but run as separate instances. Delivery
// notifications do not go through it; DeliveryNotifier sends those.
//
// Only one Listen goroutine can be running per UnixPipe, matching the
// one-listener-per-socket constraint of UNIX sockets.
type UnixPipe struct {
	SockPath string
	Log      log.Logger

	listener net.Listener
	sender   net.Conn

	seqCounter uint64
	dedup      seqTracker
}

var _ Pipe = (*UnixPipe)(nil)

func (up *UnixPipe) myID() string {
	return fmt.Sprintf("%d-%p", os.Getpid(), up)
}

func (up *UnixPipe) readUpdates(conn net.Conn, updCh chan<- Update) {
	scnr := bufio.NewScanner(conn)
	for scnr.Scan() {
		id, seq, upd, err := parseUpdate(scnr.Text())
		if err != nil {
			up.Log.Error("malformed update received", err, "str", scnr.Text())
			continue
		}
		if id == up.myID() {
			continue
		}
		if up.dedup.seen(id, seq) {
			continue
		}
		updCh <- *upd
	}
}

func (up *UnixPipe) Listen(upd chan<- Update) error {
	l, err := net.Listen("unix", up.SockPath)
	if err != nil {
		return err
	}
	up.listener = l
	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			go up.readUpdates(conn, upd)
		}
	}()
	return nil
}

func (up *UnixPipe) InitPush() error {
	sock, err := net.Dial("unix", up.SockPath)
	if err != nil {
		return err
	}
	up.sender = sock
	return nil
}

func (up *UnixPipe) Push(upd Update) error {
	if up.sender == nil {
		if err := up.InitPush(); err != nil {
			return err
		}
	}

	seq := atomic.AddUint64(&up.seqCounter, 1)
	updStr, err := formatUpdate(up.myID(), seq, upd)
	if err != nil {
		return err
	}

	_, err = io.WriteString(up.sender, updStr)
	return err
}

func (up *UnixPipe) Close() error {
	if up.sender != nil {
		up.sender.Close()
	}
	if up.listener != nil {
		up.listener.Close()
		os.Remove(up.SockPath)
	}
	return nil
}
