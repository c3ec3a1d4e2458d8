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

// Package append implements the single-instance-store append engine of
// spec.md §4.4 on top of internal/mboxstore: a message is staged once per
// partition, then hard-linked (or copied, across partitions) into every
// destination mailbox, with an optional annotation callout that can still
// mutate flags/annotations per recipient before the index record lands.
//
// Grounded on the teacher's internal/storage/imapsql/delivery.go
// multi-recipient Delivery (one Body() call fanning out to several
// UserMailbox() targets via go-imap-sql's own single-copy storage), adapted
// here to the registry's explicit stage/fromstage filesystem primitives
// instead of a SQL backend doing the deduplication internally.
package append

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/boxkeep/boxkeep/framework/buffer"
	"github.com/boxkeep/boxkeep/internal/mboxstore"
)

var msgnumCounter uint64

// Stage is a staged message body awaiting fromstage into one or more
// mailboxes, per spec.md §4.4's newstage/fromstage pair.
type Stage struct {
	path    string
	guid    buffer.GUID
	size    int
	removed bool
}

// NewStage creates a uniquely named file in partitionDir's stage directory,
// writes body to it once, and computes its content digest — the "one
// on-disk copy per partition" invariant starts here, before any
// destination mailbox is touched.
func NewStage(partitionDir string, internalDate time.Time, body buffer.Buffer) (*Stage, error) {
	if err := os.MkdirAll(filepath.Join(partitionDir, "stage."), 0o700); err != nil {
		return nil, fmt.Errorf("append: mkdir stage dir: %w", err)
	}

	msgnum := atomic.AddUint64(&msgnumCounter, 1)
	path := mboxstore.StagePath(partitionDir, os.Getpid(), internalDate.Unix(), int(msgnum))

	r, err := body.Open()
	if err != nil {
		return nil, fmt.Errorf("append: open body: %w", err)
	}
	defer r.Close()

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("append: create stage file: %w", err)
	}

	guid, err := buffer.Digest(body)
	if err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("append: digest body: %w", err)
	}

	r2, err := body.Open()
	if err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("append: reopen body: %w", err)
	}
	defer r2.Close()

	n, err := io.Copy(f, r2)
	f.Close()
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("append: write stage file: %w", err)
	}

	stagesTotal.Inc()
	return &Stage{path: path, guid: guid, size: int(n)}, nil
}

// GUID returns the staged body's content digest, for single-instance
// duplicate suppression at the caller's discretion.
func (s *Stage) GUID() buffer.GUID { return s.guid }

// Size returns the staged body's length in bytes.
func (s *Stage) Size() int { return s.size }

// Path exposes the staged file's location, for the annotation callout's
// FILENAME field.
func (s *Stage) Path() string { return s.path }

// Remove deletes the stage file if it is still present. fromstage calls this
// once the last destination has linked it; it is idempotent.
func (s *Stage) Remove() error {
	if s.removed {
		return nil
	}
	s.removed = true
	err := os.Remove(s.path)
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}

// Destination names one mailbox fromstage delivers into, along with the
// flags and annotations to apply in that mailbox specifically — each
// recipient can receive different flags (e.g. \Seen only for the Sent
// folder copy) despite sharing the same on-disk body.
type Destination struct {
	Mailbox     *mboxstore.Mailbox
	Flags       []string
	Annotations map[string]string
}

// FromStage hard-links (or copies, if linking fails — e.g. across devices)
// the staged body into every destination's mailbox directory, appends one
// index record per destination, and removes the stage file once every
// destination has a durable copy. Each destination must already be open
// under mboxstore.IWL; FromStage does not commit — the caller sequences
// Commit per spec.md §4.3 after any annotation callout has run.
func FromStage(stage *Stage, dests []Destination) ([]mboxstore.Record, error) {
	recs := make([]mboxstore.Record, 0, len(dests))

	for _, dest := range dests {
		rec := mboxstore.Record{
			InternalDate: time.Now().Unix(),
			SentDate:     time.Now().Unix(),
			Size:         uint32(stage.size),
			GUID:         stage.guid,
			SystemFlags:  flagsToBits(dest.Flags),
		}

		cacheBlob := encodeCacheEntry(dest.Annotations)

		out, err := dest.Mailbox.AppendStaged(rec, cacheBlob, stage.path)
		if err != nil {
			return recs, fmt.Errorf("append: fromstage into %s: %w", dest.Mailbox.Name, err)
		}
		fanoutTotal.Inc()
		recs = append(recs, out)
	}

	if err := stage.Remove(); err != nil {
		return recs, fmt.Errorf("append: remove stage file: %w", err)
	}

	return recs, nil
}

func flagsToBits(flags []string) uint32 {
	var bits uint32
	for _, f := range flags {
		switch f {
		case `\Seen`:
			bits |= mboxstore.FlagSeen
		case `\Deleted`:
			bits |= mboxstore.FlagDeleted
		case `\Draft`:
			bits |= mboxstore.FlagDraft
		case `\Flagged`:
			bits |= mboxstore.FlagFlagged
		case `\Answered`:
			bits |= mboxstore.FlagAnswered
		}
	}
	return bits
}

// encodeCacheEntry is a minimal placeholder cache-section record; a full
// MIME-structure cache (sections, envelope, body structure) is out of this
// engine's scope per spec.md §1 — message parsing is an external
// collaborator. Annotations are folded in so at least the delivery-time
// metadata survives the cache round trip.
func encodeCacheEntry(annotations map[string]string) []byte {
	if len(annotations) == 0 {
		return nil
	}
	buf := make([]byte, 0, 64)
	for k, v := range annotations {
		buf = append(buf, []byte(k+"="+v+"\n")...)
	}
	return buf
}

