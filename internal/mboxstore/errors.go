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

package mboxstore

import "fmt"

// Kind is mboxstore's slice of the flat error taxonomy of spec.md §7 — the
// subset a storage-level operation can itself raise. The registry has its
// own wider Kind enum (internal/registry/errors.go) for the additional
// cases only a registry operation can hit (PermissionDenied, BadIdentifier,
// ...); mboxstore errors are wrapped into registry errors at the boundary
// rather than sharing one type, since the two layers disagree on which
// kinds are even reachable.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindExists
	KindLocked
	KindQuotaExceeded
	KindIOError
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "NotFound"
	case KindExists:
		return "Exists"
	case KindLocked:
		return "Locked"
	case KindQuotaExceeded:
		return "QuotaExceeded"
	case KindIOError:
		return "IoError"
	default:
		return "Internal"
	}
}

// Error is mboxstore's wrapped error type, carrying Kind plus the
// originating cause.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("mboxstore: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("mboxstore: %s", e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Temporary reports IoError as retryable, matching exterrors.TemporaryErr;
// every other kind here is a permanent outcome of the current state.
func (e *Error) Temporary() bool { return e.Kind == KindIOError }

func wrapErr(kind Kind, err error) *Error { return &Error{Kind: kind, Err: err} }
