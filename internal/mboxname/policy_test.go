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
	"strings"
	"testing"
	"time"
)

func TestPolicyCheckGoodNames(t *testing.T) {
	for _, n := range []string{"user.fred.Drafts", "bloggs.com!user.jane.Sent", "shared.Gossip"} {
		if err := PolicyCheck(n); err != nil {
			t.Errorf("PolicyCheck(%q) = %v, want nil", n, err)
		}
	}
}

func TestPolicyCheckBadNames(t *testing.T) {
	for _, n := range []string{"", "user..fred", "shared.99", "shared.Gos*sip"} {
		if err := PolicyCheck(n); err == nil {
			t.Errorf("PolicyCheck(%q) = nil, want error", n)
		}
	}
}

func TestPolicyCheckExemptsDeletedNames(t *testing.T) {
	long := strings.Repeat("a", MaxLength+50)
	deleted := DeletedName(DefaultDeletedPrefix, long, time.Unix(1700000000, 0))
	if err := PolicyCheck(deleted); err != nil {
		t.Errorf("PolicyCheck(deleted name) = %v, want nil", err)
	}
}
