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
	"testing"
	"time"
)

func TestDeletedNameRoundTrip(t *testing.T) {
	at := time.Unix(1_700_000_000, 0).UTC()

	cases := []string{
		"user.fred.Drafts",
		"bloggs.com!shared.Gossip",
	}

	for _, orig := range cases {
		deleted := DeletedName(DefaultDeletedPrefix, orig, at)
		got, ok := IsDeleted(deleted)
		if !ok {
			t.Fatalf("IsDeleted(%q) = false, want true", deleted)
		}
		if !got.Equal(at) {
			t.Errorf("IsDeleted(%q) timestamp = %v, want %v", deleted, got, at)
		}
	}
}

func TestIsDeletedRejectsOrdinaryNames(t *testing.T) {
	if _, ok := IsDeleted("user.fred.Drafts"); ok {
		t.Fatalf("IsDeleted reported an ordinary name as deleted")
	}
}
