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

package main

import (
	"testing"

	"github.com/boxkeep/boxkeep/internal/mboxstore"
)

func TestFormatSystemFlags(t *testing.T) {
	cases := []struct {
		bits uint32
		want string
	}{
		{0, "(none)"},
		{mboxstore.FlagSeen, `\Seen`},
		{mboxstore.FlagDeleted, `\Deleted `},
		{mboxstore.FlagSeen | mboxstore.FlagFlagged, `\Seen\Flagged `},
	}
	for _, c := range cases {
		if got := formatSystemFlags(c.bits); got != c.want {
			t.Errorf("formatSystemFlags(%#x) = %q, want %q", c.bits, got, c.want)
		}
	}
}
