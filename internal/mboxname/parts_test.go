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

import "testing"

func TestToParts(t *testing.T) {
	cases := []struct {
		internal string
		want     Parts
	}{
		{"user.fred.Drafts", Parts{Domain: "", UserID: "fred", Box: "Drafts"}},
		{"bloggs.com!user.jane.Sent", Parts{Domain: "bloggs.com", UserID: "jane", Box: "Sent"}},
		{"shared.Gossip", Parts{Domain: "", UserID: "", Box: "shared.Gossip"}},
		{"foonly.com!shared.Tattle", Parts{Domain: "foonly.com", UserID: "", Box: "shared.Tattle"}},
	}

	for _, tc := range cases {
		got := ToParts(tc.internal)
		if got != tc.want {
			t.Errorf("ToParts(%q) = %+v, want %+v", tc.internal, got, tc.want)
		}
	}
}

func TestToPartsRoundTrip(t *testing.T) {
	names := []string{
		"user.fred.Drafts",
		"bloggs.com!user.jane.Sent",
		"shared.Gossip",
		"foonly.com!shared.Tattle",
		"user.sam",
	}

	for _, n := range names {
		p := ToParts(n)
		if got := ToInternal(p); got != n {
			t.Errorf("ToInternal(ToParts(%q)) = %q, want %q", n, got, n)
		}
	}
}

func TestSameUserID(t *testing.T) {
	cases := []struct {
		a, b string
		want bool
	}{
		{"user.fred.Drafts", "user.fred.Sent", true},
		{"user.jane.Sent", "user.fred.Sent", false},
		{"bloggs.com!user.fred.Drafts", "bloggs.com!user.fred.Sent", true},
		{"user.jane.Sent", "bloggs.com!user.jane.Sent", false},
	}

	for _, tc := range cases {
		if got := SameUserID(tc.a, tc.b); got != tc.want {
			t.Errorf("SameUserID(%q, %q) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestUserInbox(t *testing.T) {
	cases := []struct {
		userid string
		want   string
		ok     bool
	}{
		{"sam", "user.sam", true},
		{"betty@boop.com", "boop.com!user.betty", true},
		{"", "", false},
	}

	for _, tc := range cases {
		got, ok := UserInbox(tc.userid)
		if got != tc.want || ok != tc.ok {
			t.Errorf("UserInbox(%q) = (%q, %v), want (%q, %v)", tc.userid, got, ok, tc.want, tc.ok)
		}
	}
}
