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

package mboxname

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// NextModSeq implements spec.md §4.5's next_modseq: path names a counter
// file (e.g. "<conf>/<hash>/<name>.modseq"); the returned value is strictly
// greater than both the value previously stored there and proposed.
// Concurrent callers across processes are serialised by a blocking flock on
// the counter file, per §4.5's "serialised by a blocking file lock".
func NextModSeq(path string, proposed uint64) (uint64, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return 0, fmt.Errorf("mboxname: open %s: %w", path, err)
	}
	defer f.Close()

	for {
		err := unix.Flock(int(f.Fd()), unix.LOCK_EX)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("mboxname: flock %s: %w", path, err)
		}
		break
	}
	defer unix.Flock(int(f.Fd()), unix.LOCK_UN)

	var current uint64
	buf := make([]byte, 32)
	n, err := f.ReadAt(buf, 0)
	if err != nil && n == 0 {
		current = 0
	} else {
		text := strings.TrimSpace(string(buf[:n]))
		if text != "" {
			current, err = strconv.ParseUint(text, 10, 64)
			if err != nil {
				return 0, fmt.Errorf("mboxname: corrupt modseq counter %s: %w", path, err)
			}
		}
	}

	next := current + 1
	if proposed >= next {
		next = proposed + 1
	}

	text := strconv.FormatUint(next, 10)
	if err := f.Truncate(0); err != nil {
		return 0, fmt.Errorf("mboxname: truncate %s: %w", path, err)
	}
	if _, err := f.WriteAt([]byte(text), 0); err != nil {
		return 0, fmt.Errorf("mboxname: write %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		return 0, fmt.Errorf("mboxname: sync %s: %w", path, err)
	}

	return next, nil
}
