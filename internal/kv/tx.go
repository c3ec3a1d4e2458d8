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

import "fmt"

// tx implements Tx with optimistic concurrency: it records the commit
// version of every key it reads, and at Commit time fails with KindAgain if
// any of those keys were written by another transaction since. This is
// spec.md §4.1's "a transaction may see its own writes; other transactions
// see a snapshot from their first read. Conflicts surface as AGAIN".
type tx struct {
	store *SkiplistStore

	baseVersion uint64
	seenVersion map[string]uint64

	reads   map[string]struct{}
	writes  map[string][]byte
	deletes map[string]struct{}

	done bool
}

var _ Tx = (*tx)(nil)

func (t *tx) Fetch(key []byte) ([]byte, error) {
	k := string(key)

	if v, ok := t.writes[k]; ok {
		return v, nil
	}
	if _, ok := t.deletes[k]; ok {
		return nil, newErr(KindNotFound, nil)
	}

	t.reads[k] = struct{}{}
	if _, ok := t.seenVersion[k]; !ok {
		t.store.mu.RLock()
		if v, ok := t.store.keyVersion[k]; ok {
			t.seenVersion[k] = v
		} else {
			t.seenVersion[k] = 0
		}
		t.store.mu.RUnlock()
	}

	return t.store.Fetch(key)
}

func (t *tx) Store(key, val []byte) error {
	k := string(key)
	delete(t.deletes, k)
	t.writes[k] = append([]byte(nil), val...)
	return nil
}

func (t *tx) Delete(key []byte) error {
	k := string(key)
	delete(t.writes, k)
	t.deletes[k] = struct{}{}
	return nil
}

// Commit validates every key the transaction read against the store's
// current version, then applies all staged writes/deletes atomically under
// the store's write lock.
func (t *tx) Commit() error {
	if t.done {
		return fmt.Errorf("kv: tx already closed")
	}
	t.done = true

	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	for k := range t.reads {
		seenAt := t.seenVersion[k]
		if cur, ok := t.store.keyVersion[k]; ok && cur != seenAt {
			txConflicts.WithLabelValues(t.store.label).Inc()
			return newErr(KindAgain, fmt.Errorf("kv: conflicting write to %q", k))
		}
	}

	for k := range t.deletes {
		key := []byte(k)
		if err := t.store.appendRecord(opDel, key, nil); err != nil {
			return err
		}
		t.store.list.Delete(key)
		t.store.version++
		t.store.keyVersion[k] = t.store.version
	}
	for k, v := range t.writes {
		key := []byte(k)
		if err := t.store.appendRecord(opPut, key, v); err != nil {
			return err
		}
		t.store.list.Set(key, v)
		t.store.version++
		t.store.keyVersion[k] = t.store.version
	}

	return nil
}

func (t *tx) Rollback() error {
	t.done = true
	t.writes = nil
	t.deletes = nil
	return nil
}
