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
	"path/filepath"
	"testing"
)

func TestNextModSeqMonotonic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bloggs.com!user.fred.modseq")

	cases := []struct {
		proposed uint64
		want     uint64
	}{
		{0, 1},
		{0, 2},
		{100, 101},
		{5, 102},
	}

	for _, tc := range cases {
		got, err := NextModSeq(path, tc.proposed)
		if err != nil {
			t.Fatalf("NextModSeq(_, %d): %v", tc.proposed, err)
		}
		if got != tc.want {
			t.Errorf("NextModSeq(_, %d) = %d, want %d", tc.proposed, got, tc.want)
		}
	}
}
