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

package buffer

import (
	"crypto/sha1"
	"io"
)

// GUIDSize is the width of the content digest stored in each index record
// (spec.md §6's index record guid[20] field).
const GUIDSize = sha1.Size

// GUID is a message-body content digest, used by the append engine's
// single-instance store to recognise an already-staged body.
type GUID [GUIDSize]byte

// Digest reads b in full and returns its GUID without buffering the
// contents in memory beyond the hash's own state.
func Digest(b Buffer) (GUID, error) {
	var guid GUID

	r, err := b.Open()
	if err != nil {
		return guid, err
	}
	defer r.Close()

	h := sha1.New()
	if _, err := io.Copy(h, r); err != nil {
		return guid, err
	}
	copy(guid[:], h.Sum(nil))
	return guid, nil
}
