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
	"os"
)

// RebuildCache replays the index against the on-disk message files and
// rewrites cyrus.cache from scratch, recomputing each record's content-line
// count and cache offset along the way. It requires IWL.
//
// boxkeep has no secondary DAV index of its own to reconstruct (message
// parsing and protocol front-ends are out of scope, per spec.md §1), so
// this is the Go-native stand-in for that administrative operation: the
// one secondary index this engine does own, rebuilt from the source of
// truth (the message files themselves).
func (m *Mailbox) RebuildCache() error {
	if m.Mode != IWL {
		return wrapErr(KindInternal, nil)
	}

	if err := m.cache.reset(); err != nil {
		return wrapErr(KindIOError, err)
	}

	records := m.index.Records()
	rebuilt := make([]Record, len(records))
	for i, rec := range records {
		data, err := os.ReadFile(m.paths.MessagePath(rec.UID))
		if err != nil {
			if os.IsNotExist(err) {
				rebuilt[i] = rec
				continue
			}
			return wrapErr(KindIOError, err)
		}

		off, err := m.cache.Append(data)
		if err != nil {
			return wrapErr(KindIOError, err)
		}

		rec.CacheOffset = off
		rec.CacheVersion++
		rec.ContentLines = uint32(bytes.Count(data, []byte("\n")))
		rebuilt[i] = rec
	}

	m.index.records = rebuilt
	m.dirty = true
	rebuildTotal.Inc()
	return nil
}
