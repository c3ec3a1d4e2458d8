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

// Package quota models the quota store spec.md §1 calls out as an opaque
// external collaborator, invoked by the registry only through its
// accounting hook (setquota/unsetquota, and per-append usage tracking).
package quota

import "errors"

// ErrUnderLimit is returned by Reserve when usage would exceed the root's
// configured limit, and by Set when the new limit is below current usage and
// force was not requested.
var ErrUnderLimit = errors.New("quota: limit exceeded")

// Root is one quota-root's accounting state.
type Root struct {
	Name  string
	Limit uint64 // bytes; 0 means unlimited
	Used  uint64
}

// Store is the accounting hook the registry calls on setquota/unsetquota
// and the append engine calls before admitting a new message.
type Store interface {
	// Get returns the current Root, or (Root{}, false) if root is unset.
	Get(root string) (Root, bool)
	// Set creates or updates root's limit. force bypasses the check that
	// the new limit is not already exceeded by Used.
	Set(root string, limit uint64, force bool) error
	// Unset removes root's quota record entirely.
	Unset(root string) error
	// Reserve accounts delta additional bytes against root, failing with
	// ErrUnderLimit if that would exceed Limit (0 == unlimited).
	Reserve(root string, delta uint64) error
	// Release accounts delta fewer bytes against root (e.g. on expunge).
	Release(root string, delta uint64)
}
