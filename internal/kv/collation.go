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

package kv

import "bytes"

// Less orders two keys. A Store's iteration and Foreach prefix semantics
// both depend on it.
type Less func(a, b []byte) bool

// ByteCompare is the default collation: plain lexicographic byte order.
func ByteCompare(a, b []byte) bool {
	return bytes.Compare(a, b) < 0
}

// mboxRank assigns '.' a rank lower than any other non-control byte, so
// that e.g. "user.fred" sorts before "user.fred.INBOX" and before
// "user.fredjr" (spec.md §4.1's SORTED_MBOX flag).
func mboxRank(b byte) int {
	if b == '.' {
		return -1
	}
	return int(b)
}

// MailboxCollation implements the SORTED_MBOX collation of spec.md §4.1.
func MailboxCollation(a, b []byte) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		ra, rb := mboxRank(a[i]), mboxRank(b[i])
		if ra != rb {
			return ra < rb
		}
	}
	return len(a) < len(b)
}

// hasPrefix reports whether key carries prefix under the given collation.
// For both collations supported here, prefix is still a plain byte-prefix
// test: MailboxCollation only reorders where '.' ranks, it never makes a
// byte-prefix relationship untrue.
func hasPrefix(key, prefix []byte) bool {
	if len(prefix) > len(key) {
		return false
	}
	return bytes.Equal(key[:len(prefix)], prefix)
}
