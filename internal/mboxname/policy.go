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
	"errors"
	"strings"
	"unicode"
)

// MaxLength bounds an internal mailbox name's byte length, per spec.md
// §4.2's policycheck precondition. Names within the deleted prefix are
// exempt (spec.md §8's boundary-behaviour note).
const MaxLength = 490

// ErrBadName is returned by PolicyCheck for any violation; callers that
// need to distinguish violations should not try — the registry surfaces a
// single BadName error kind for all of them (spec.md §4.2).
var ErrBadName = errors.New("mboxname: bad name")

func segmentOK(seg string) bool {
	if seg == "" {
		return false
	}
	if isAllDigits(seg) {
		// Reserved to keep shared mailboxes from colliding with netnews
		// hierarchies that use purely numeric segments.
		return false
	}
	for _, r := range seg {
		if r < 0x20 || r == 0x7f {
			return false
		}
		switch r {
		case '*', '%', '?', '/', '\\':
			return false
		}
	}
	return true
}

func isAllDigits(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// PolicyCheck enforces the BADPATTERNS/length/segment rules of spec.md
// §4.2 precondition 1. Names recognised as deleted-prefix names by
// IsDeleted skip the length limit.
func PolicyCheck(internal string) error {
	if internal == "" {
		return ErrBadName
	}
	if strings.Contains(internal, "..") {
		return ErrBadName
	}

	if _, ok := IsDeleted(internal); !ok && len(internal) > MaxLength {
		return ErrBadName
	}

	rest := internal
	if idx := strings.IndexByte(rest, '!'); idx != -1 {
		domain := rest[:idx]
		if domain == "" || !segmentOK(domain) {
			return ErrBadName
		}
		rest = rest[idx+1:]
	}

	for _, seg := range strings.Split(rest, Sep) {
		if !segmentOK(seg) {
			return ErrBadName
		}
	}

	return nil
}
