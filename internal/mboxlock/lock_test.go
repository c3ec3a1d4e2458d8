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

package mboxlock

import "testing"

func TestRecursiveAcquireSameMode(t *testing.T) {
	dir := t.TempDir()
	tbl := NewTable()

	if err := tbl.Acquire(dir, HashFull, "user.smurf", Shared); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := tbl.Acquire(dir, HashFull, "user.smurf", Shared); err != nil {
		t.Fatalf("recursive Acquire: %v", err)
	}
	if err := tbl.Release("user.smurf"); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := tbl.Release("user.smurf"); err != nil {
		t.Fatalf("Release: %v", err)
	}
}

func TestRecursiveAcquireModeMismatch(t *testing.T) {
	dir := t.TempDir()
	tbl := NewTable()

	if err := tbl.Acquire(dir, HashFull, "user.smurf", Shared); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer tbl.Release("user.smurf")

	if err := tbl.Acquire(dir, HashFull, "user.smurf", Exclusive); err != ErrLocked {
		t.Fatalf("mismatched-mode Acquire = %v, want ErrLocked", err)
	}
}

func TestNonblockExclusiveContested(t *testing.T) {
	dirA := t.TempDir()
	tblA := NewTable()
	tblB := NewTable()

	if err := tblA.Acquire(dirA, HashFull, "user.smurf", Exclusive); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer tblA.Release("user.smurf")

	if err := tblB.Acquire(dirA, HashFull, "user.smurf", NonblockExclusive); err != ErrLocked {
		t.Fatalf("contested NonblockExclusive Acquire = %v, want ErrLocked", err)
	}
}
