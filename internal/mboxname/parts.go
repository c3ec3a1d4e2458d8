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

// Package mboxname implements canonical parsing, construction and policy
// validation of internal mailbox names, grounded on the teacher's
// framework/address.Split (local-part/domain splitting on '@') but adapted
// to the registry's own grammar: "[domain \"!\"] segment (\".\" segment)*".
package mboxname

import (
	"errors"
	"strings"
)

// UserPrefix and Sep are the reserved segment and separator of the
// hierarchy, per spec.md §3/§4.5 ("user.<uid>", "user.<uid>.<sub>").
const (
	UserPrefix = "user"
	Sep        = "."
	DomainSep  = "!"
)

// Parts is the decomposition of an internal mailbox name, as returned by
// ToParts. It is a plain value: callers own it outright, unlike the
// teacher's C ancestor's globally allocated scratch structs (spec.md §9).
type Parts struct {
	// Domain is the virtual-domain prefix, or "" if the name belongs to
	// the default domain.
	Domain string
	// UserID is the local part of the owning user's id, or "" if the name
	// is a shared mailbox.
	UserID string
	// Box is the remainder of the name after "user.<uid>" (without the
	// leading separator), or the full shared-mailbox name when UserID is
	// "". Empty when the name is exactly the user's inbox.
	Box string
}

// ErrMissingDomainSep reports a raw name without a domain prefix where one is
// required. ToParts never returns it; collaborators that require a qualified
// identifier may use it.
var ErrMissingDomainSep = errors.New("mboxname: missing domain separator")

// ToParts splits an internal mailbox name into (domain?, userid?, box?),
// per spec.md §4.5's to_parts and the worked examples of §8 scenario 2.
func ToParts(internal string) Parts {
	var p Parts

	rest := internal
	if idx := strings.IndexByte(rest, '!'); idx != -1 {
		p.Domain = rest[:idx]
		rest = rest[idx+1:]
	}

	const userDot = UserPrefix + Sep
	if rest == UserPrefix || strings.HasPrefix(rest, userDot) {
		tail := strings.TrimPrefix(rest, UserPrefix)
		tail = strings.TrimPrefix(tail, Sep)
		if idx := strings.IndexByte(tail, '.'); idx != -1 {
			p.UserID = tail[:idx]
			p.Box = tail[idx+1:]
		} else {
			p.UserID = tail
		}
		return p
	}

	p.Box = rest
	return p
}

// ToInternal reconstructs the internal name ToParts split apart. It is the
// left inverse of ToParts for every well-formed Parts value (spec.md §8's
// to_parts(to_internal_from_parts(p)) = p round-trip property).
func ToInternal(p Parts) string {
	var b strings.Builder
	if p.Domain != "" {
		b.WriteString(p.Domain)
		b.WriteByte('!')
	}
	if p.UserID != "" {
		b.WriteString(UserPrefix)
		b.WriteByte('.')
		b.WriteString(p.UserID)
		if p.Box != "" {
			b.WriteByte('.')
			b.WriteString(p.Box)
		}
		return b.String()
	}
	b.WriteString(p.Box)
	return b.String()
}

// ToUserID returns the qualified "userid[@domain]" owner of internal, or
// ("", false) if internal names a shared mailbox.
func ToUserID(internal string) (string, bool) {
	p := ToParts(internal)
	if p.UserID == "" {
		return "", false
	}
	if p.Domain == "" {
		return p.UserID, true
	}
	return p.UserID + "@" + p.Domain, true
}

// SameUserID reports whether a and b are owned by the same user, per
// spec.md §8 scenario 4.
func SameUserID(a, b string) bool {
	ua, oka := ToUserID(a)
	ub, okb := ToUserID(b)
	return oka && okb && ua == ub
}

// UserInbox returns the internal name of userid's inbox, e.g. "user.sam" or
// "boop.com!user.betty" for "betty@boop.com". It returns ("", false) for an
// empty userid.
func UserInbox(userid string) (string, bool) {
	if userid == "" {
		return "", false
	}

	local, domain := userid, ""
	if idx := strings.LastIndexByte(userid, '@'); idx != -1 {
		local = userid[:idx]
		domain = userid[idx+1:]
	}
	if local == "" {
		return "", false
	}

	return ToInternal(Parts{Domain: domain, UserID: local}), true
}
