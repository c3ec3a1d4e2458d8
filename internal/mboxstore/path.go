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

// Package mboxstore implements the per-mailbox on-disk state machine of
// spec.md §4.3: header + fixed-record index + append-only cache + one
// message file per UID, opened under the per-mailbox advisory lock.
//
// Keyed-file layout under a partition root is grounded on the teacher's
// internal/storage/blob/fs.FSStore (a flat, hash-sharded directory of
// content-addressed files); mboxstore adapts the same "directory sharded by
// a digest of the key" idea to shard by mailbox name instead, and to a
// directory-per-mailbox rather than file-per-blob layout, since a mailbox
// needs several named files living together.
package mboxstore

import (
	"fmt"
	"path/filepath"

	"github.com/boxkeep/boxkeep/internal/mboxlock"
)

const (
	headerFile  = "cyrus.header"
	indexFile   = "cyrus.index"
	cacheFile   = "cyrus.cache"
	expungeFile = "cyrus.expunge"
	pendingFile = "cyrus.pending"
)

// Paths collects every filesystem location a Mailbox needs, derived once at
// Open time from the partition root and the canonical name.
type Paths struct {
	Dir      string
	Header   string
	Index    string
	Cache    string
	Expunge  string
	Pending  string
	StageDir string
}

// MailboxPaths derives the on-disk layout for internal under partitionDir,
// per spec.md §6's "<partition_dir>/<hash>/<name>/" convention.
func MailboxPaths(partitionDir string, hashMode mboxlock.HashMode, internal string) Paths {
	dir := mboxlock.HashedPath(partitionDir, hashMode, internal, internal)
	return Paths{
		Dir:      dir,
		Header:   filepath.Join(dir, headerFile),
		Index:    filepath.Join(dir, indexFile),
		Cache:    filepath.Join(dir, cacheFile),
		Expunge:  filepath.Join(dir, expungeFile),
		Pending:  filepath.Join(dir, pendingFile),
		StageDir: filepath.Join(partitionDir, "stage."),
	}
}

// MessagePath returns "<mailbox>/<uid>." for uid, per spec.md §6.
func (p Paths) MessagePath(uid uint32) string {
	return filepath.Join(p.Dir, fmt.Sprintf("%d.", uid))
}

// StagePath returns the unique staged-file path for (pid, internaldate,
// msgnum), per spec.md §4.4's newstage.
func StagePath(partitionDir string, pid int, internalDateUnix int64, msgnum int) string {
	return filepath.Join(partitionDir, "stage.", fmt.Sprintf("%d-%d-%d", pid, internalDateUnix, msgnum))
}
