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
	"io"
	"os"
)

// Cache is the append-only blob store of spec.md §3: variable-size
// metadata records referenced by an index record's CacheOffset. The blobs
// themselves are opaque to mboxstore — parsing RFC822 headers into them is
// message parsing, explicitly out of scope (spec.md §1's Non-goals), so
// callers (the append engine) hand already-serialised bytes.
type Cache struct {
	path string
	f    *os.File
}

func openCache(path string) (*Cache, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, err
	}
	return &Cache{path: path, f: f}, nil
}

// Append writes blob to the tail and returns its offset.
func (c *Cache) Append(blob []byte) (uint64, error) {
	off, err := c.f.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, err
	}
	if _, err := c.f.Write(blob); err != nil {
		return 0, err
	}
	return uint64(off), nil
}

// ReadAt reads n bytes at off.
func (c *Cache) ReadAt(off uint64, n uint32) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := c.f.ReadAt(buf, int64(off)); err != nil {
		return nil, err
	}
	return buf, nil
}

func (c *Cache) sync() error { return c.f.Sync() }

func (c *Cache) close() error { return c.f.Close() }

// reset truncates the cache file to empty, for RebuildCache.
func (c *Cache) reset() error {
	if err := c.f.Truncate(0); err != nil {
		return err
	}
	_, err := c.f.Seek(0, io.SeekStart)
	return err
}
