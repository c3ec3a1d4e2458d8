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
	"strconv"
	"strings"
	"time"
)

// DefaultDeletedPrefix is used when the caller does not configure one.
// spec.md §3 calls this "DP"; it is a configured string, not a constant of
// the protocol, but a sensible default keeps tests and the CLI usable
// without always threading one through.
const DefaultDeletedPrefix = "DELETED"

// DeletedName builds "[dom!]DP.<orig>.<hex8>" for orig at instant at, per
// spec.md §3's deleted-name grammar. orig must not itself already carry the
// domain prefix removed — callers pass the full internal name and
// DeletedName preserves its domain prefix.
func DeletedName(prefix, internal string, at time.Time) string {
	domain, rest := "", internal
	if idx := strings.IndexByte(rest, '!'); idx != -1 {
		domain, rest = rest[:idx], rest[idx+1:]
	}

	name := fmt.Sprintf("%s.%s.%08x", prefix, rest, uint32(at.Unix()))
	if domain != "" {
		return domain + "!" + name
	}
	return name
}

// IsDeleted reports whether internal matches "[dom!]<prefix>.<orig>.<hex8>"
// for DefaultDeletedPrefix, returning the parsed deletion instant.
func IsDeleted(internal string) (time.Time, bool) {
	return isDeletedPrefix(DefaultDeletedPrefix, internal)
}

// IsDeletedWithPrefix is IsDeleted parameterised by a configured prefix,
// for callers that do not use DefaultDeletedPrefix.
func IsDeletedWithPrefix(prefix, internal string) (time.Time, bool) {
	return isDeletedPrefix(prefix, internal)
}

func isDeletedPrefix(prefix, internal string) (time.Time, bool) {
	rest := internal
	if idx := strings.IndexByte(rest, '!'); idx != -1 {
		rest = rest[idx+1:]
	}

	want := prefix + "."
	if !strings.HasPrefix(rest, want) {
		return time.Time{}, false
	}
	rest = strings.TrimPrefix(rest, want)

	idx := strings.LastIndexByte(rest, '.')
	if idx == -1 || idx == len(rest)-1 {
		return time.Time{}, false
	}
	hexPart := rest[idx+1:]
	if len(hexPart) != 8 {
		return time.Time{}, false
	}

	secs, err := strconv.ParseUint(hexPart, 16, 32)
	if err != nil {
		return time.Time{}, false
	}

	return time.Unix(int64(secs), 0).UTC(), true
}
