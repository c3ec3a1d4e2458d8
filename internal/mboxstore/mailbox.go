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
	"time"

	"github.com/boxkeep/boxkeep/framework/buffer"
	"github.com/boxkeep/boxkeep/internal/mboxlock"
	"github.com/boxkeep/boxkeep/internal/notify"
)

// OpenMode is the intent a caller opens a Mailbox with, per spec.md §4.3.
type OpenMode int

const (
	// IRL is a shared index-read lock.
	IRL OpenMode = iota
	// IWL is an exclusive index-write lock.
	IWL
)

// Mailbox is one mailbox's open on-disk state: header, index, cache and the
// pending-action queue, held under the per-mailbox advisory lock for the
// duration of the session.
type Mailbox struct {
	Name string
	Mode OpenMode

	paths Paths
	locks *mboxlock.Table

	header Header
	index  *Index
	cache  *Cache
	queue  *PendingQueue

	createdFiles []string // message files created this session, for abort()
	appliedTags  []uint64
	dirty        bool

	notifier *notify.DeliveryNotifier
}

// Create initialises a brand-new mailbox at paths: directory, empty header
// (uidvalidity = given or now, highestmodseq = 1), empty index/cache, per
// spec.md §4.2's create on-success path.
func Create(paths Paths, lockDir string, hashMode mboxlock.HashMode, locks *mboxlock.Table, name, acl, uniqueID string, uidvalidity uint32) (*Mailbox, error) {
	if err := os.MkdirAll(paths.Dir, 0o700); err != nil {
		return nil, wrapErr(KindIOError, err)
	}

	if uidvalidity == 0 {
		uidvalidity = uint32(time.Now().Unix())
	}

	h := Header{
		Generation:    headerGeneration,
		MinorVersion:  headerMinorVersion,
		UIDValidity:   uidvalidity,
		HighestModSeq: 1,
		ACL:           acl,
		UniqueID:      uniqueID,
	}
	if err := writeHeaderFile(paths.Header, h); err != nil {
		return nil, wrapErr(KindIOError, err)
	}

	idx := &Index{path: paths.Index}
	if err := idx.flush(); err != nil {
		return nil, wrapErr(KindIOError, err)
	}

	cache, err := openCache(paths.Cache)
	if err != nil {
		return nil, wrapErr(KindIOError, err)
	}

	return &Mailbox{
		Name:   name,
		Mode:   IWL,
		paths:  paths,
		locks:  locks,
		header: h,
		index:  idx,
		cache:  cache,
		queue:  newPendingQueue(paths.Pending),
	}, nil
}

// Open acquires the per-mailbox lock with the intent matching mode, then
// loads header/index/cache, per spec.md §4.3. On IWL, it drains and applies
// the pending-action queue (spec.md §4.3.1) before returning; applyTag is
// invoked once per drained tag so the caller can fold its side effect into
// the record set before the caller's own writes land.
func Open(paths Paths, lockDir string, hashMode mboxlock.HashMode, locks *mboxlock.Table, name string, mode OpenMode, applyTag func(tag uint64)) (*Mailbox, error) {
	lockMode := mboxlock.Shared
	if mode == IWL {
		lockMode = mboxlock.Exclusive
	}
	if err := locks.Acquire(lockDir, hashMode, name, lockMode); err != nil {
		return nil, wrapErr(KindLocked, err)
	}

	h, err := readHeaderFile(paths.Header)
	if err != nil {
		locks.Release(name)
		if os.IsNotExist(err) {
			return nil, wrapErr(KindNotFound, err)
		}
		return nil, wrapErr(KindIOError, err)
	}

	idx, err := loadIndex(paths.Index)
	if err != nil {
		locks.Release(name)
		return nil, wrapErr(KindIOError, err)
	}

	cache, err := openCache(paths.Cache)
	if err != nil {
		locks.Release(name)
		return nil, wrapErr(KindIOError, err)
	}

	mbx := &Mailbox{
		Name:   name,
		Mode:   mode,
		paths:  paths,
		locks:  locks,
		header: h,
		index:  idx,
		cache:  cache,
		queue:  newPendingQueue(paths.Pending),
	}

	if mode == IWL {
		tags, err := mbx.queue.Drain()
		if err != nil {
			locks.Release(name)
			return nil, wrapErr(KindIOError, err)
		}
		mbx.appliedTags = tags
		if applyTag != nil {
			for _, tag := range tags {
				applyTag(tag)
			}
		}
	}

	return mbx, nil
}

// SetNotifier configures the delivery notifier Commit invokes on success.
func (m *Mailbox) SetNotifier(n *notify.DeliveryNotifier) { m.notifier = n }

// AppendRecord requires IWL. It assigns UID and ModSeq, appends the index
// record, stages the cache blob, and writes the message body from body if
// the message file does not already exist (single-instance staging already
// having hard-linked it in the common case), per spec.md §4.3.
func (m *Mailbox) AppendRecord(rec Record, cacheBlob []byte, body buffer.Buffer) (Record, error) {
	return m.appendRecord(rec, cacheBlob, func(path string) error {
		return writeMessageFile(path, body)
	})
}

// AppendStaged behaves like AppendRecord, but takes the path of a message
// already written to the partition's stage directory (spec.md §4.4's
// fromstage) and hard-links it into place instead of re-reading it through a
// Buffer — one on-disk copy per partition regardless of recipient count.
func (m *Mailbox) AppendStaged(rec Record, cacheBlob []byte, stagePath string) (Record, error) {
	return m.appendRecord(rec, cacheBlob, func(path string) error {
		return linkOrCopy(stagePath, path)
	})
}

func (m *Mailbox) appendRecord(rec Record, cacheBlob []byte, writeBody func(path string) error) (Record, error) {
	if m.Mode != IWL {
		return Record{}, wrapErr(KindInternal, nil)
	}

	rec.UID = m.header.LastUID + 1
	rec.ModSeq = m.header.HighestModSeq + 1

	off, err := m.cache.Append(cacheBlob)
	if err != nil {
		return Record{}, wrapErr(KindIOError, err)
	}
	rec.CacheOffset = off
	rec.CacheVersion = 1

	msgPath := m.paths.MessagePath(rec.UID)
	if _, statErr := os.Stat(msgPath); os.IsNotExist(statErr) {
		if err := writeBody(msgPath); err != nil {
			return Record{}, wrapErr(KindIOError, err)
		}
		m.createdFiles = append(m.createdFiles, msgPath)
	}

	m.index.Append(rec)
	m.header.LastUID = rec.UID
	m.header.HighestModSeq = rec.ModSeq
	m.header.ExistsCount++
	m.header.LastAppendDate = time.Now().Unix()
	m.dirty = true

	return rec, nil
}

func writeMessageFile(path string, body buffer.Buffer) error {
	r, err := body.Open()
	if err != nil {
		return err
	}
	defer r.Close()

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = io.Copy(f, r)
	return err
}

// Commit fsyncs cache, index, header in that order (spec.md §4.3), notifies
// the delivery notifier with (modseq, uidnext, uidvalidity), and releases
// the lock.
func (m *Mailbox) Commit(user, service, session string) error {
	defer m.locks.Release(m.Name)

	if m.dirty {
		syncPath := func(p string) error {
			f, err := os.OpenFile(p, os.O_RDWR, 0)
			if err != nil {
				return err
			}
			defer f.Close()
			return f.Sync()
		}
		if err := m.cache.sync(); err != nil {
			return wrapErr(KindIOError, err)
		}
		if err := m.index.flush(); err != nil {
			return wrapErr(KindIOError, err)
		}
		if err := syncPath(m.paths.Index); err != nil {
			return wrapErr(KindIOError, err)
		}
		if err := writeHeaderFile(m.paths.Header, m.header); err != nil {
			return wrapErr(KindIOError, err)
		}
		if err := syncPath(m.paths.Header); err != nil {
			return wrapErr(KindIOError, err)
		}
	}

	commitTotal.WithLabelValues(boolLabel(m.dirty)).Inc()

	// Post-commit notification failures are logged-and-swallowed by the
	// caller (registry/append engine), per spec.md §7 — Commit itself just
	// reports the error so the caller can decide.
	if m.notifier != nil {
		err := m.notifier.Notify(notify.DeliveryNotification{
			User:    user,
			Service: service,
			Session: session,
			Mailboxes: []notify.MailboxState{{
				MailboxName: m.Name,
				ModSeq:      m.header.HighestModSeq,
				UIDNext:     m.header.LastUID + 1,
				UIDValidity: m.header.UIDValidity,
			}},
		})
		return err
	}

	return nil
}

func boolLabel(b bool) string {
	if b {
		return "dirty"
	}
	return "clean"
}

// Abort discards staged changes and removes message files created this
// session, per spec.md §4.3.
func (m *Mailbox) Abort() error {
	defer m.locks.Release(m.Name)

	for _, p := range m.createdFiles {
		os.Remove(p)
	}
	return nil
}

// Expunge marks every record matching predicate DELETED, under IWL, and
// records the expunged UIDs to the expunge journal (spec.md §4.3). It does
// not unlink message files; that happens in a later cleanup pass.
func (m *Mailbox) Expunge(predicate func(Record) bool) ([]uint32, error) {
	if m.Mode != IWL {
		return nil, wrapErr(KindInternal, nil)
	}

	uids := m.index.ExpungeMatching(predicate)
	if len(uids) == 0 {
		return nil, nil
	}
	m.dirty = true
	m.header.DeletedCount += uint32(len(uids))

	f, err := os.OpenFile(m.paths.Expunge, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600)
	if err != nil {
		return nil, wrapErr(KindIOError, err)
	}
	defer f.Close()
	for _, uid := range uids {
		if _, err := f.Write(journalLine(uid)); err != nil {
			return nil, wrapErr(KindIOError, err)
		}
	}

	expungeTotal.WithLabelValues().Add(float64(len(uids)))

	return uids, nil
}

func journalLine(uid uint32) []byte {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uid)
	return buf[:]
}

// RenameCopy relocates a mailbox's message files and cache/index data from
// src to dst, minting a fresh UIDValidity (so clients must re-sync UIDs per
// RFC 3501) while carrying LastUID and HighestModSeq forward so UIDs and
// modseqs never go backwards across the rename, per spec.md §4.3's rename.
// Message files are hard-linked when dst is on the same device as src,
// falling back to a copy otherwise.
func RenameCopy(srcPaths, dstPaths Paths, lockDir string, hashMode mboxlock.HashMode, locks *mboxlock.Table, srcName, dstName string) error {
	src, err := Open(srcPaths, lockDir, hashMode, locks, srcName, IWL, nil)
	if err != nil {
		return err
	}
	defer locks.Release(srcName)

	if err := os.MkdirAll(dstPaths.Dir, 0o700); err != nil {
		return wrapErr(KindIOError, err)
	}

	for _, rec := range src.index.Records() {
		srcMsg := srcPaths.MessagePath(rec.UID)
		dstMsg := dstPaths.MessagePath(rec.UID)
		if err := linkOrCopy(srcMsg, dstMsg); err != nil && !os.IsNotExist(err) {
			return wrapErr(KindIOError, err)
		}
	}

	cacheData, err := os.ReadFile(srcPaths.Cache)
	if err != nil && !os.IsNotExist(err) {
		return wrapErr(KindIOError, err)
	}
	if err := os.WriteFile(dstPaths.Cache, cacheData, 0o600); err != nil {
		return wrapErr(KindIOError, err)
	}

	dstIdx := &Index{path: dstPaths.Index, records: append([]Record(nil), src.index.Records()...)}
	if err := dstIdx.flush(); err != nil {
		return wrapErr(KindIOError, err)
	}

	dstHeader := src.header
	dstHeader.UIDValidity = uint32(time.Now().Unix())
	if err := writeHeaderFile(dstPaths.Header, dstHeader); err != nil {
		return wrapErr(KindIOError, err)
	}

	renameTotal.WithLabelValues().Inc()
	return nil
}

func linkOrCopy(src, dst string) error {
	if err := os.Link(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}

// Header exposes the current (possibly staged) header, for callers that
// need e.g. UIDValidity/ACL/QuotaRoot without a full reopen.
func (m *Mailbox) Header() Header { return m.header }

// SetHeaderACL updates the header's backup copy of the ACL, per spec.md
// §4.2's setacl writing "mblist, then mailbox header (backup copy), then
// peer". The mblist record, not this copy, is authoritative.
func (m *Mailbox) SetHeaderACL(acl string) {
	m.header.ACL = acl
	m.dirty = true
}

// Records exposes the current record set.
func (m *Mailbox) Records() []Record { return m.index.Records() }

// PostAction appends tag to this mailbox's pending-action queue without
// requiring the caller to hold any lock beyond whatever read access let it
// resolve Name in the first place (spec.md §4.3.1's post_action).
func PostAction(paths Paths, tag uint64) error {
	return newPendingQueue(paths.Pending).Post(tag)
}
