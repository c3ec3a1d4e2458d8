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
	"sort"
	"strings"

	"github.com/boxkeep/boxkeep/internal/mboxname"
)

// Rights is a bitset of IMAP ACL rights (RFC 4314 letters), stored and
// compared as a set rather than as the wire string.
type Rights uint32

const (
	RightLookup Rights = 1 << iota
	RightRead
	RightSeen
	RightWrite
	RightInsert
	RightPost
	RightCreate
	RightDeleteMbox
	RightDeleteMsg
	RightAdmin
)

var rightLetters = []struct {
	r Rights
	c byte
}{
	{RightLookup, 'l'},
	{RightRead, 'r'},
	{RightSeen, 's'},
	{RightWrite, 'w'},
	{RightInsert, 'i'},
	{RightPost, 'p'},
	{RightCreate, 'k'},
	{RightDeleteMbox, 'x'},
	{RightDeleteMsg, 't'},
	{RightAdmin, 'a'},
}

func parseRightLetters(s string) Rights {
	var out Rights
	for i := 0; i < len(s); i++ {
		for _, rl := range rightLetters {
			if s[i] == rl.c {
				out |= rl.r
			}
		}
	}
	return out
}

func (r Rights) String() string {
	var b strings.Builder
	for _, rl := range rightLetters {
		if r&rl.r != 0 {
			b.WriteByte(rl.c)
		}
	}
	return b.String()
}

func (r Rights) Has(want Rights) bool { return r&want == want }

// acl is a parsed ACL: identifier -> rights, held in a stable order for
// deterministic re-serialisation (sorted by identifier).
type acl map[string]Rights

func parseACL(s string) acl {
	out := acl{}
	fields := strings.Fields(s)
	for i := 0; i+1 < len(fields); i += 2 {
		out[fields[i]] = parseRightLetters(fields[i+1])
	}
	return out
}

func (a acl) String() string {
	ids := make([]string, 0, len(a))
	for id := range a {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var b strings.Builder
	for i, id := range ids {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(id)
		b.WriteByte(' ')
		b.WriteString(a[id].String())
	}
	return b.String()
}

// applyRights applies a setacl-style rights string (spec.md §4.2's setacl):
// a leading '+' adds, '-' removes, otherwise the value replaces outright.
func (a acl) applyRights(identifier, rights string) {
	current := a[identifier]
	switch {
	case strings.HasPrefix(rights, "+"):
		current |= parseRightLetters(rights[1:])
	case strings.HasPrefix(rights, "-"):
		current &^= parseRightLetters(rights[1:])
	default:
		current = parseRightLetters(rights)
	}
	if current == 0 {
		delete(a, identifier)
	} else {
		a[identifier] = current
	}
}

// canonicalIdentifier qualifies identifier under virtual-domains rules and
// rejects identifiers in a different domain than the mailbox, per spec.md
// §4.2's setacl cross-domain restriction and SPEC_FULL.md §9's Open
// Question resolution (reject uniformly, not just under default-domain).
func canonicalIdentifier(mailboxDomain, identifier string) (string, error) {
	if identifier == "anyone" || identifier == "anonymous" {
		return identifier, nil
	}
	idDomain := ""
	local := identifier
	if at := strings.IndexByte(identifier, '@'); at >= 0 {
		idDomain, local = identifier[at+1:], identifier[:at]
	}
	if idDomain != "" && idDomain != mailboxDomain {
		return "", mboxname.ErrBadName
	}
	if idDomain == "" {
		return local, nil
	}
	return local + "@" + idDomain, nil
}

// ownerRights is the invariant grant a user's own namespace always carries,
// regardless of what setacl has done to the stored ACL string (spec.md
// §4.2's "owner retains lookup+admin+create invariantly").
const ownerRights = RightLookup | RightRead | RightSeen | RightWrite | RightInsert |
	RightPost | RightCreate | RightDeleteMbox | RightDeleteMsg | RightAdmin

// effectiveRights computes what identity holds on a mailbox owned by
// ownerUserID with the given stored ACL string, folding in the owner
// invariant and admin override.
func effectiveRights(aclString, ownerUserID, identity string, isAdmin bool) Rights {
	if isAdmin {
		return ownerRights
	}
	if ownerUserID != "" && ownerUserID == identity {
		return ownerRights
	}

	parsed := parseACL(aclString)
	rights := parsed[identity] | parsed["anyone"]
	return rights
}
