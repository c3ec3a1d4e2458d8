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

// Package mboxlock implements the per-mailbox advisory lock of spec.md
// §4.6: a process-wide, reference-counted table of flock'd lockfiles keyed
// by canonical mailbox name.
package mboxlock

import (
	"crypto/sha1"
	"fmt"
	"path/filepath"

	"github.com/boxkeep/boxkeep/internal/mboxname"
)

// HashMode selects how much of the hash digest is used to build the
// directory component of a hashed path, per spec.md §6's "full or partial
// hash mode".
type HashMode int

const (
	// HashFull uses the full two-hex-digit byte as the directory name.
	HashFull HashMode = iota
	// HashPartial uses a single hex digit, producing fewer, larger
	// directories — useful for filesystems with weak large-directory
	// performance.
	HashPartial
)

// HashedPath returns "<root>/[domain/]<letter>/[<domain>/]<rest>", per
// spec.md §6's "one letter from the canonical name, chosen by the 'full' or
// 'partial' hash mode, prefixed by the domain (if any)". letter is derived
// from a digest of the name rather than literally extracted from it, since
// arbitrary modified-UTF-7 segments don't guarantee a usable ASCII
// character to pick. rest is the path segment(s) the caller appends under
// the hashed directory — for a lockfile, the full name plus an extension.
func HashedPath(root string, mode HashMode, internal string, rest ...string) string {
	parts := mboxname.ToParts(internal)

	digest := sha1.Sum([]byte(internal))
	letter := fmt.Sprintf("%02x", digest[0])
	if mode == HashPartial {
		letter = letter[:1]
	}

	elems := []string{root}
	if parts.Domain != "" {
		elems = append(elems, "domain", letter, parts.Domain)
	} else {
		elems = append(elems, letter)
	}
	elems = append(elems, rest...)

	return filepath.Join(elems...)
}

// LockPath returns "<lock_dir>/<hash>/<name>.lock" for internal, per
// spec.md §6.
func LockPath(lockDir string, mode HashMode, internal string) string {
	return HashedPath(lockDir, mode, internal, internal+".lock")
}
