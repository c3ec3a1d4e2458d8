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

package mboxlock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sys/unix"
)

// Mode is the acquisition intent of Table.Acquire.
type Mode int

const (
	Shared Mode = iota
	Exclusive
	NonblockExclusive
)

// ErrLocked is returned when a NonblockExclusive acquisition is contested,
// or when a recursive acquisition under a different mode is attempted.
var ErrLocked = errors.New("mboxlock: mailbox locked")

type entry struct {
	mu       sync.Mutex
	refcount int
	mode     Mode
	fd       *os.File
}

// Table is the process-wide table of spec.md §4.6, keyed by canonical
// mailbox name. A Table's zero value is usable.
type Table struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// NewTable constructs an empty lock table.
func NewTable() *Table {
	return &Table{entries: make(map[string]*entry)}
}

func (t *Table) getEntry(name string) *entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.entries == nil {
		t.entries = make(map[string]*entry)
	}
	e, ok := t.entries[name]
	if !ok {
		e = &entry{}
		t.entries[name] = e
	}
	return e
}

// Acquire opens (creating if necessary) the lockfile for name under
// lockDir, applies flock with the mode's semantics, and increments the
// table entry's refcount. Recursive acquisition of an already-held name
// must use the same mode, or it fails with ErrLocked (spec.md §4.6).
func (t *Table) Acquire(lockDir string, hashMode HashMode, name string, mode Mode) error {
	e := t.getEntry(name)
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.refcount > 0 {
		if e.mode != mode {
			return ErrLocked
		}
		e.refcount++
		return nil
	}

	path := LockPath(lockDir, hashMode, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("mboxlock: mkdir for %s: %w", name, err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return fmt.Errorf("mboxlock: open lockfile for %s: %w", name, err)
	}

	flockMode := unix.LOCK_SH
	if mode != Shared {
		flockMode = unix.LOCK_EX
	}
	if mode == NonblockExclusive {
		flockMode |= unix.LOCK_NB
	}

	for {
		err := unix.Flock(int(f.Fd()), flockMode)
		if err == unix.EINTR {
			continue
		}
		if err == unix.EWOULDBLOCK {
			f.Close()
			return ErrLocked
		}
		if err != nil {
			f.Close()
			return fmt.Errorf("mboxlock: flock for %s: %w", name, err)
		}
		break
	}

	e.fd = f
	e.mode = mode
	e.refcount = 1
	return nil
}

// Release decrements name's refcount; at zero it unlocks and closes the
// file descriptor and removes the table entry.
func (t *Table) Release(name string) error {
	t.mu.Lock()
	e, ok := t.entries[name]
	t.mu.Unlock()
	if !ok {
		return fmt.Errorf("mboxlock: release %s: not held", name)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.refcount <= 0 {
		return fmt.Errorf("mboxlock: release %s: not held", name)
	}

	e.refcount--
	if e.refcount > 0 {
		return nil
	}

	err := unix.Flock(int(e.fd.Fd()), unix.LOCK_UN)
	e.fd.Close()
	e.fd = nil

	t.mu.Lock()
	delete(t.entries, name)
	t.mu.Unlock()

	if err != nil {
		return fmt.Errorf("mboxlock: unlock %s: %w", name, err)
	}
	return nil
}
