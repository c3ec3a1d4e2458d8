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

package kv

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	skiplist "github.com/ryszard/goskiplist/skiplist"
	"golang.org/x/sys/unix"
)

// SkiplistStore implements Store as an in-memory ryszard/goskiplist index,
// durable via an append-only write-ahead log replayed on Open. A Store owns
// its backing file exclusively for its whole lifetime (an OS flock taken at
// Open and released at Close) — the backend is "process-wide" per
// spec.md §2, so there is exactly one writer/reader of a given path at a
// time, not a shared multi-process database file.
type SkiplistStore struct {
	path string
	less Less

	mu   sync.RWMutex
	list *skiplist.SkipList

	lockFile *os.File
	walFile  *os.File

	// version tracks the commit number each key was last written at, for
	// the optimistic-concurrency check transactions use to detect
	// conflicting writers (surfaced as KindAgain per spec.md §4.1).
	version    uint64
	keyVersion map[string]uint64

	// label identifies this store in metrics: the backing file's base name
	// (e.g. "mailboxes.db").
	label string
}

const (
	opPut byte = iota
	opDel
)

var _ Store = (*SkiplistStore)(nil)

// Open opens or creates the store at path. flags ∈ {Create, SortedMbox}
// select file-creation and collation behavior per spec.md §4.1.
func Open(path string, flags Flag) (*SkiplistStore, error) {
	less := ByteCompare
	if flags&SortedMbox != 0 {
		less = MailboxCollation
	}

	openFlags := os.O_RDWR
	if flags&Create != 0 {
		openFlags |= os.O_CREATE
	}
	f, err := os.OpenFile(path, openFlags, 0o600)
	if err != nil {
		return nil, newErr(KindIO, fmt.Errorf("kv: open %s: %w", path, err))
	}

	for {
		err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			f.Close()
			return nil, newErr(KindIO, fmt.Errorf("kv: flock %s: %w", path, err))
		}
		break
	}

	s := &SkiplistStore{
		path:       path,
		less:       less,
		list:       skiplist.NewCustomMap(func(l, r interface{}) bool { return less(l.([]byte), r.([]byte)) }),
		lockFile:   f,
		walFile:    f,
		keyVersion: make(map[string]uint64),
		label:      filepath.Base(path),
	}

	if err := s.replay(); err != nil {
		f.Close()
		return nil, err
	}

	return s, nil
}

func (s *SkiplistStore) replay() error {
	if _, err := s.walFile.Seek(0, io.SeekStart); err != nil {
		return newErr(KindIO, err)
	}
	r := bufio.NewReader(s.walFile)

	for {
		op, err := r.ReadByte()
		if err == io.EOF {
			break
		}
		if err != nil {
			return newErr(KindIO, fmt.Errorf("kv: replay %s: %w", s.path, err))
		}

		key, err := readChunk(r)
		if err != nil {
			return newErr(KindIO, fmt.Errorf("kv: replay %s: %w", s.path, err))
		}

		switch op {
		case opPut:
			val, err := readChunk(r)
			if err != nil {
				return newErr(KindIO, fmt.Errorf("kv: replay %s: %w", s.path, err))
			}
			s.list.Set(key, val)
		case opDel:
			s.list.Delete(key)
		default:
			return newErr(KindIO, fmt.Errorf("kv: replay %s: corrupt record", s.path))
		}

		s.version++
		s.keyVersion[string(key)] = s.version
	}

	if _, err := s.walFile.Seek(0, io.SeekEnd); err != nil {
		return newErr(KindIO, err)
	}
	return nil
}

func readChunk(r *bufio.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func appendChunk(w io.Writer, b []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(b)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func (s *SkiplistStore) appendRecord(op byte, key, val []byte) error {
	if _, err := s.walFile.Write([]byte{op}); err != nil {
		return newErr(KindIO, err)
	}
	if err := appendChunk(s.walFile, key); err != nil {
		return newErr(KindIO, err)
	}
	if op == opPut {
		if err := appendChunk(s.walFile, val); err != nil {
			return newErr(KindIO, err)
		}
	}
	return nil
}

func (s *SkiplistStore) Fetch(key []byte) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.list.Get(key)
	if !ok {
		return nil, newErr(KindNotFound, nil)
	}
	return v.([]byte), nil
}

func (s *SkiplistStore) FetchLocked(key []byte, tx Tx) ([]byte, error) {
	if tx == nil {
		return s.Fetch(key)
	}
	return tx.Fetch(key)
}

func (s *SkiplistStore) Store(key, val []byte, tx Tx) error {
	if tx != nil {
		return tx.Store(key, val)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.appendRecord(opPut, key, val); err != nil {
		return err
	}
	s.list.Set(append([]byte(nil), key...), append([]byte(nil), val...))
	s.version++
	s.keyVersion[string(key)] = s.version
	return nil
}

func (s *SkiplistStore) Delete(key []byte, tx Tx) error {
	if tx != nil {
		return tx.Delete(key)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.list.Get(key); !ok {
		return newErr(KindNotFound, nil)
	}
	if err := s.appendRecord(opDel, key, nil); err != nil {
		return err
	}
	s.list.Delete(key)
	s.version++
	s.keyVersion[string(key)] = s.version
	return nil
}

// Foreach iterates in collation order over every key carrying prefix. It
// takes a read lock for the duration of the scan, matching the mailbox
// registry's use of foreach for consistent findall/findsub snapshots.
func (s *SkiplistStore) Foreach(prefix []byte, p Predicate, cb VisitFunc) error {
	if p == nil {
		p = AcceptAll
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	it := s.list.Iterator()
	defer it.Close()

	for ok := it.Seek(prefix); ok; ok = it.Next() {
		key := it.Key().([]byte)
		if !hasPrefix(key, prefix) {
			if s.less(prefix, key) {
				break
			}
			continue
		}
		foreachScanned.WithLabelValues(s.label).Inc()
		val := it.Value().([]byte)
		if !p(key, val) {
			continue
		}
		if cb(key, val) {
			break
		}
	}
	return nil
}

func (s *SkiplistStore) Begin() (Tx, error) {
	s.mu.RLock()
	baseVersion := s.version
	seen := make(map[string]uint64, len(s.keyVersion))
	for k, v := range s.keyVersion {
		seen[k] = v
	}
	s.mu.RUnlock()

	return &tx{
		store:       s,
		baseVersion: baseVersion,
		seenVersion: seen,
		reads:       make(map[string]struct{}),
		writes:      make(map[string][]byte),
		deletes:     make(map[string]struct{}),
	}, nil
}

func (s *SkiplistStore) Sync() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.walFile.Sync()
}

func (s *SkiplistStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	unix.Flock(int(s.lockFile.Fd()), unix.LOCK_UN)
	return s.lockFile.Close()
}
