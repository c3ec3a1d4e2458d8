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

// Identity is the authenticator+user-identity pair every public Registry
// operation (other than the "sync" administrative variants, which assume
// admin) takes, per spec.md §4.2.
type Identity struct {
	// UserID is the qualified "local[@domain]" form, matching what
	// mboxname.ToUserID returns for mailboxes this identity owns.
	UserID string
	Admin  bool
}
