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

package registry

import (
	"strings"

	"github.com/boxkeep/boxkeep/internal/kv"
	"github.com/boxkeep/boxkeep/internal/mboxname"
)

// matchGlob implements spec.md §4.2's findall pattern language: '*' matches
// any run of characters including the hierarchy separator, '%' matches any
// run excluding it, '?' matches exactly one character, and the rest is
// matched literally. '@' is accepted as a domain-boundary hint and treated
// as a literal here since this implementation never splits the pattern
// across the "!" domain separator itself.
func matchGlob(pattern, name string) bool {
	return matchGlobRec(pattern, name)
}

func matchGlobRec(pattern, name string) bool {
	for len(pattern) > 0 {
		switch pattern[0] {
		case '*':
			for i := 0; i <= len(name); i++ {
				if matchGlobRec(pattern[1:], name[i:]) {
					return true
				}
			}
			return false
		case '%':
			for i := 0; i <= len(name); i++ {
				if strings.ContainsRune(name[:i], '.') {
					break
				}
				if matchGlobRec(pattern[1:], name[i:]) {
					return true
				}
			}
			return false
		case '?':
			if len(name) == 0 {
				return false
			}
			pattern, name = pattern[1:], name[1:]
		default:
			if len(name) == 0 || pattern[0] != name[0] {
				return false
			}
			pattern, name = pattern[1:], name[1:]
		}
	}
	return len(name) == 0
}

// MatchFunc is invoked by FindAll/FindSub for every matching name; returning
// true stops the scan early, mirroring spec.md §4.2's proc(matched_name,
// matchlen, category) → stop? callback.
type MatchFunc func(name string) (stop bool)

// FindAll implements spec.md §4.2's findall: enumerates canonical names
// matching pattern that identity may see.
func (r *Registry) FindAll(pattern string, identity Identity, visit MatchFunc) error {
	prefix := globLiteralPrefix(pattern)

	var walkErr error
	r.MBList.Foreach([]byte(prefix), func(key, _ []byte) bool {
		return matchGlob(pattern, string(key))
	}, func(key, val []byte) bool {
		name := string(key)

		if _, isDeleted := mboxname.IsDeletedWithPrefix(r.DeletedPrefix, name); isDeleted && !identity.Admin {
			return false
		}

		if !identity.Admin {
			domain := mboxname.ToParts(name).Domain
			idDomain := ""
			if at := strings.IndexByte(identity.UserID, '@'); at >= 0 {
				idDomain = identity.UserID[at+1:]
			}
			if domain != "" && domain != idDomain {
				return false
			}

			rec, err := decodeRecord(val)
			if err != nil {
				walkErr = err
				return true
			}
			rights := effectiveRights(rec.ACL, parentOwner(name), identity.UserID, identity.Admin)
			if !rights.Has(RightLookup) {
				return false
			}
		}

		return visit(name)
	})
	return walkErr
}

// globLiteralPrefix returns the longest literal (wildcard-free) prefix of
// pattern, so Foreach's cursor can skip straight to the matching key range
// instead of scanning the whole store.
func globLiteralPrefix(pattern string) string {
	for i := 0; i < len(pattern); i++ {
		switch pattern[i] {
		case '*', '%', '?':
			return pattern[:i]
		}
	}
	return pattern
}

// FindSub implements spec.md §2's subs_for_user(u): enumerates the names in
// userid's subscription store matching pattern.
func (r *Registry) FindSub(subs kv.Store, pattern string, visit MatchFunc) error {
	prefix := globLiteralPrefix(pattern)

	var walkErr error
	subs.Foreach([]byte(prefix), func(key, _ []byte) bool {
		return matchGlob(pattern, string(key))
	}, func(key, _ []byte) bool {
		return visit(string(key))
	})
	return walkErr
}
