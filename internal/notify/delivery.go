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
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net"
	"os"

	"github.com/boxkeep/boxkeep/framework/log"
)

// MailboxState is one entry of a DeliveryNotification, describing a
// mailbox's position after a commit.
type MailboxState struct {
	MailboxName string `json:"mailboxname"`
	ModSeq      uint64 `json:"modseq"`
	UIDNext     uint32 `json:"uidnext"`
	UIDValidity uint32 `json:"uidvalidity"`
}

// DeliveryNotification is the payload sent to the delivery notifier socket
// by commit. Session and Service identify the writer (e.g. "lmtp"/"<pid>")
// for logging on the receiving side; they carry no protocol meaning here.
type DeliveryNotification struct {
	User      string         `json:"user"`
	Service   string         `json:"service"`
	Session   string         `json:"session"`
	Mailboxes []MailboxState `json:"mailboxes"`
}

// DeliveryNotifier sends length-prefixed, JSON-encoded DeliveryNotification
// messages over a UNIX datagram socket, per spec.md §6's wire format. It is
// not a Pipe, and unlike UnixPipe/PqPipe it is strictly one-directional:
// commit calls Notify, nothing reads a response.
type DeliveryNotifier struct {
	SockPath string
	Log      log.Logger

	conn *net.UnixConn
}

// NewDeliveryNotifier dials the notification socket. A nil *DeliveryNotifier
// receiver's Notify is a no-op, so callers may leave Notifier unset when no
// socket is configured.
func NewDeliveryNotifier(sockPath string, l log.Logger) (*DeliveryNotifier, error) {
	addr, err := net.ResolveUnixAddr("unixgram", sockPath)
	if err != nil {
		return nil, fmt.Errorf("notify: resolve %s: %w", sockPath, err)
	}
	conn, err := net.DialUnix("unixgram", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("notify: dial %s: %w", sockPath, err)
	}
	return &DeliveryNotifier{SockPath: sockPath, Log: l, conn: conn}, nil
}

// Notify sends one length-prefixed datagram. Errors are the caller's to
// decide whether to log-and-swallow (commit does, per spec.md §7's
// post-commit-failure policy) or propagate.
func (n *DeliveryNotifier) Notify(note DeliveryNotification) error {
	if n == nil || n.conn == nil {
		return nil
	}

	body, err := json.Marshal(note)
	if err != nil {
		return fmt.Errorf("notify: marshal: %w", err)
	}

	buf := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(buf[:4], uint32(len(body)))
	copy(buf[4:], body)

	_, err = n.conn.Write(buf)
	return err
}

func (n *DeliveryNotifier) Close() error {
	if n == nil || n.conn == nil {
		return nil
	}
	return n.conn.Close()
}

// DeliveryListener receives DeliveryNotification datagrams, e.g. for test
// harnesses asserting on §8's "one notifier datagram was emitted" scenarios.
type DeliveryListener struct {
	SockPath string
	conn     *net.UnixConn
}

func ListenDelivery(sockPath string) (*DeliveryListener, error) {
	os.Remove(sockPath)
	addr, err := net.ResolveUnixAddr("unixgram", sockPath)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUnixgram("unixgram", addr)
	if err != nil {
		return nil, err
	}
	return &DeliveryListener{SockPath: sockPath, conn: conn}, nil
}

// Recv blocks for one datagram and decodes it. buf must be large enough for
// the 4-byte length prefix plus the encoded body; a generously sized scratch
// buffer (e.g. 64KiB) is appropriate given mailboxes lists stay small.
func (l *DeliveryListener) Recv(buf []byte) (DeliveryNotification, error) {
	var note DeliveryNotification
	n, err := l.conn.Read(buf)
	if err != nil {
		return note, err
	}
	if n < 4 {
		return note, fmt.Errorf("notify: short datagram (%d bytes)", n)
	}
	size := binary.BigEndian.Uint32(buf[:4])
	if int(4+size) > n {
		return note, fmt.Errorf("notify: truncated datagram: want %d have %d", size, n-4)
	}
	if err := json.Unmarshal(buf[4:4+size], &note); err != nil {
		return note, fmt.Errorf("notify: unmarshal: %w", err)
	}
	return note, nil
}

func (l *DeliveryListener) Close() error {
	err := l.conn.Close()
	os.Remove(l.SockPath)
	return err
}
