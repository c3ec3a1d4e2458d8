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

package mboxstore

import (
	"encoding/binary"
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// PendingQueue implements spec.md §4.3.1's deferred-write queue: a reader
// holding only a shared lock can record a side effect by tag; the next
// process to acquire the exclusive lock drains and applies the tags in
// FIFO order. The queue file itself is protected by its own flock, so
// post_action does not require the caller to hold the mailbox's iwl/irl
// lock at all — only Drain is expected to run under iwl.
type PendingQueue struct {
	path string
}

func newPendingQueue(path string) *PendingQueue {
	return &PendingQueue{path: path}
}

// Post appends tag to the queue. Tags are opaque 64-bit values; the append
// engine and annotation callout encode whatever they need into them.
// Duplicate tags across crashes are tolerated by design — applying the same
// tag's effect twice must be a no-op at the call site (spec.md §4.3.1's
// "exactly-once semantics... duplicates are detected by a monotonically
// increasing tag counter").
func (q *PendingQueue) Post(tag uint64) error {
	f, err := os.OpenFile(q.path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := flockRetry(f, unix.LOCK_EX); err != nil {
		return err
	}
	defer unix.Flock(int(f.Fd()), unix.LOCK_UN)

	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], tag)
	_, err = f.Write(buf[:])
	return err
}

// Drain reads every queued tag in FIFO order and truncates the queue, so a
// subsequent Drain before any new Post returns an empty slice (spec.md §8
// scenario 1's "a second open_iwl; close() drains 0 actions").
func (q *PendingQueue) Drain() ([]uint64, error) {
	f, err := os.OpenFile(q.path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if err := flockRetry(f, unix.LOCK_EX); err != nil {
		return nil, err
	}
	defer unix.Flock(int(f.Fd()), unix.LOCK_UN)

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}

	tags := make([]uint64, 0, len(data)/8)
	for off := 0; off+8 <= len(data); off += 8 {
		tags = append(tags, binary.BigEndian.Uint64(data[off:off+8]))
	}

	if err := f.Truncate(0); err != nil {
		return nil, err
	}

	return tags, nil
}

func flockRetry(f *os.File, how int) error {
	for {
		err := unix.Flock(int(f.Fd()), how)
		if err == unix.EINTR {
			continue
		}
		return err
	}
}
