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

// Package registry implements the mailbox list of spec.md §4.2: an ordered
// KV store (internal/kv) mapping canonical mailbox names to ownership
// records, with lookup/create/delete/rename/setacl/setquota/findall/findsub
// on top of it and internal/mboxname for name handling.
package registry

import "encoding/json"

// Type is the mbtype bitset of spec.md §3.
type Type uint32

const (
	TypeRemote Type = 1 << iota
	TypeReserve
	TypeMoving
	TypeDeleted
	TypeCalendar
)

func (t Type) Has(bit Type) bool { return t&bit != 0 }

// Placeholder reports whether t marks a key that has no local mailbox yet —
// either a RESERVE held during create/activate or a MOVING marker held
// during rename — per spec.md §3's invariant that every present key is
// either a local mailbox, a REMOTE pointer, or one of these placeholders.
func (t Type) Placeholder() bool { return t.Has(TypeReserve) || t.Has(TypeMoving) }

// Record is the value stored under a canonical name in mblist, per spec.md
// §3's registry record table.
type Record struct {
	Type        Type   `json:"mbtype"`
	Partition   string `json:"partition"`
	ACL         string `json:"acl"`
	UniqueID    string `json:"uniqueid"`
	UIDValidity uint32 `json:"uidvalidity"`
	QuotaRoot   string `json:"quotaroot,omitempty"`
}

func encodeRecord(r Record) ([]byte, error) { return json.Marshal(r) }

func decodeRecord(data []byte) (Record, error) {
	var r Record
	err := json.Unmarshal(data, &r)
	return r, err
}
