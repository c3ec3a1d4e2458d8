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
	"bytes"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/boxkeep/boxkeep/framework/buffer"
)

// System flag bits, per spec.md §3's index record system_flags bitset.
const (
	FlagSeen uint32 = 1 << iota
	FlagDeleted
	FlagDraft
	FlagFlagged
	FlagAnswered
)

// UserFlagWords is the width of the user_flags bitset, matching
// MaxFlagNames (128 bits = 4 x uint32), per spec.md §6.
const UserFlagWords = 4

// RecordSize is the fixed width of one index record, per spec.md §6:
// (uid, internaldate, sentdate, size, header_size, content_lines,
// cache_version, cache_offset, last_updated, system_flags, user_flags[4],
// guid[20], modseq).
const RecordSize = 4 + 8 + 8 + 4 + 4 + 4 + 4 + 8 + 8 + 4 + UserFlagWords*4 + buffer.GUIDSize + 8

// Record is one message's fixed-width index entry.
type Record struct {
	UID          uint32
	InternalDate int64
	SentDate     int64
	Size         uint32
	HeaderSize   uint32
	ContentLines uint32
	CacheVersion uint32
	CacheOffset  uint64
	LastUpdated  int64
	SystemFlags  uint32
	UserFlags    [UserFlagWords]uint32
	GUID         buffer.GUID
	ModSeq       uint64
}

func (r Record) encode() []byte {
	buf := make([]byte, 0, RecordSize)
	b := bytes.NewBuffer(buf)

	fields := []interface{}{
		r.UID, r.InternalDate, r.SentDate, r.Size, r.HeaderSize,
		r.ContentLines, r.CacheVersion, r.CacheOffset, r.LastUpdated,
		r.SystemFlags, r.UserFlags,
	}
	for _, f := range fields {
		binary.Write(b, binary.BigEndian, f) //nolint:errcheck // bytes.Buffer never errors
	}
	b.Write(r.GUID[:])
	binary.Write(b, binary.BigEndian, r.ModSeq) //nolint:errcheck

	return b.Bytes()
}

func decodeRecord(data []byte) (Record, error) {
	var r Record
	if len(data) != RecordSize {
		return r, fmt.Errorf("mboxstore: index record is %d bytes, want %d", len(data), RecordSize)
	}

	b := bytes.NewReader(data)
	fields := []interface{}{
		&r.UID, &r.InternalDate, &r.SentDate, &r.Size, &r.HeaderSize,
		&r.ContentLines, &r.CacheVersion, &r.CacheOffset, &r.LastUpdated,
		&r.SystemFlags, &r.UserFlags,
	}
	for _, f := range fields {
		if err := binary.Read(b, binary.BigEndian, f); err != nil {
			return r, err
		}
	}
	if _, err := b.Read(r.GUID[:]); err != nil {
		return r, err
	}
	if err := binary.Read(b, binary.BigEndian, &r.ModSeq); err != nil {
		return r, err
	}

	return r, nil
}

// Index is the open, fixed-record message index of a mailbox. Records are
// append-only at the tail; expunge marks DELETED in place rather than
// removing the record (spec.md §4.3's expunge).
type Index struct {
	path    string
	records []Record
}

func loadIndex(path string) (*Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Index{path: path}, nil
		}
		return nil, err
	}

	if len(data)%RecordSize != 0 {
		return nil, fmt.Errorf("mboxstore: index %s has truncated trailing record", path)
	}

	idx := &Index{path: path, records: make([]Record, 0, len(data)/RecordSize)}
	for off := 0; off < len(data); off += RecordSize {
		rec, err := decodeRecord(data[off : off+RecordSize])
		if err != nil {
			return nil, fmt.Errorf("mboxstore: decode index %s at offset %d: %w", path, off, err)
		}
		idx.records = append(idx.records, rec)
	}
	return idx, nil
}

// Records returns the live (not-yet-flushed-away) records in UID order.
// Callers must not mutate the returned slice in place.
func (idx *Index) Records() []Record {
	return idx.records
}

// Append adds rec to the tail. Callers are responsible for assigning
// rec.UID and rec.ModSeq per spec.md §4.3's append_record contract before
// calling Append.
func (idx *Index) Append(rec Record) {
	idx.records = append(idx.records, rec)
}

// ExpungeMatching sets FlagDeleted on every record for which predicate
// returns true, per spec.md §4.3's expunge. It returns the UIDs marked.
func (idx *Index) ExpungeMatching(predicate func(Record) bool) []uint32 {
	var marked []uint32
	for i := range idx.records {
		if idx.records[i].SystemFlags&FlagDeleted != 0 {
			continue
		}
		if predicate(idx.records[i]) {
			idx.records[i].SystemFlags |= FlagDeleted
			marked = append(marked, idx.records[i].UID)
		}
	}
	return marked
}

// flush writes every record to path, in order, overwriting any prior
// contents. It does not fsync; callers sequence that via commit().
func (idx *Index) flush() error {
	f, err := os.OpenFile(idx.path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()

	for _, rec := range idx.records {
		if _, err := f.Write(rec.encode()); err != nil {
			return err
		}
	}
	return nil
}
