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

package quota

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sys/unix"
)

// FileStore is the reference Store: one JSON record per quota root under
// Dir, each update serialised by a blocking flock on that file, in the same
// spirit as internal/mboxname.NextModSeq's counter file.
type FileStore struct {
	Dir string

	mu sync.Mutex
}

func NewFileStore(dir string) *FileStore { return &FileStore{Dir: dir} }

func (s *FileStore) path(root string) string {
	return filepath.Join(s.Dir, root+".quota")
}

func (s *FileStore) withLock(root string, fn func(f *os.File) error) error {
	if err := os.MkdirAll(s.Dir, 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(s.path(root), os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()

	for {
		err := unix.Flock(int(f.Fd()), unix.LOCK_EX)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return err
		}
		break
	}
	defer unix.Flock(int(f.Fd()), unix.LOCK_UN)

	return fn(f)
}

func readRoot(f *os.File) (Root, error) {
	var r Root
	stat, err := f.Stat()
	if err != nil {
		return r, err
	}
	if stat.Size() == 0 {
		return r, nil
	}
	dec := json.NewDecoder(f)
	if err := dec.Decode(&r); err != nil {
		return r, err
	}
	return r, nil
}

func writeRoot(f *os.File, r Root) error {
	if err := f.Truncate(0); err != nil {
		return err
	}
	if _, err := f.Seek(0, 0); err != nil {
		return err
	}
	return json.NewEncoder(f).Encode(r)
}

func (s *FileStore) Get(root string) (Root, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out Root
	var found bool
	s.withLock(root, func(f *os.File) error {
		r, err := readRoot(f)
		if err != nil {
			return err
		}
		if r.Name != "" {
			out, found = r, true
		}
		return nil
	})
	return out, found
}

func (s *FileStore) Set(root string, limit uint64, force bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withLock(root, func(f *os.File) error {
		r, err := readRoot(f)
		if err != nil {
			return err
		}
		if r.Name == "" {
			r.Name = root
		}
		if !force && limit != 0 && r.Used > limit {
			return ErrUnderLimit
		}
		r.Limit = limit
		return writeRoot(f, r)
	})
}

func (s *FileStore) Unset(root string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := os.Remove(s.path(root))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (s *FileStore) Reserve(root string, delta uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withLock(root, func(f *os.File) error {
		r, err := readRoot(f)
		if err != nil {
			return err
		}
		if r.Name == "" {
			r.Name = root
		}
		if r.Limit != 0 && r.Used+delta > r.Limit {
			return ErrUnderLimit
		}
		r.Used += delta
		return writeRoot(f, r)
	})
}

func (s *FileStore) Release(root string, delta uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.withLock(root, func(f *os.File) error {
		r, err := readRoot(f)
		if err != nil {
			return err
		}
		if delta > r.Used {
			r.Used = 0
		} else {
			r.Used -= delta
		}
		return writeRoot(f, r)
	})
}
