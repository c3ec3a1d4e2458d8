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

import "fmt"

// Kind is the registry's slice of the flat error taxonomy of spec.md §7,
// widened (relative to mboxstore.Kind) with the cases only a registry
// operation can raise — permissions, naming, routing.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindExists
	KindReserved
	KindLocked
	KindPermissionDenied
	KindBadName
	KindBadIdentifier
	KindUnknownPartition
	KindNotSupported
	KindQuotaExceeded
	KindIOError
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "MailboxNonexistent"
	case KindExists:
		return "MailboxExists"
	case KindReserved:
		return "MailboxReserved"
	case KindLocked:
		return "Locked"
	case KindPermissionDenied:
		return "PermissionDenied"
	case KindBadName:
		return "MailboxBadname"
	case KindBadIdentifier:
		return "InvalidIdentifier"
	case KindUnknownPartition:
		return "PartitionUnknown"
	case KindNotSupported:
		return "MailboxNotsupported"
	case KindQuotaExceeded:
		return "QuotaExceeded"
	case KindIOError:
		return "IoError"
	default:
		return "Internal"
	}
}

// Error is the registry's wrapped error type.
type Error struct {
	Kind Kind
	Op   string
	Name string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("registry: %s %s: %s: %v", e.Op, e.Name, e.Kind, e.Err)
	}
	return fmt.Sprintf("registry: %s %s: %s", e.Op, e.Name, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Temporary marks only IoError as retryable, matching exterrors.TemporaryErr.
func (e *Error) Temporary() bool { return e.Kind == KindIOError }

func wrapErr(op, name string, kind Kind, err error) *Error {
	opsTotal.WithLabelValues(op, kind.String()).Inc()
	return &Error{Op: op, Name: name, Kind: kind, Err: err}
}

// Is reports whether err is a registry *Error of the given Kind.
func Is(err error, kind Kind) bool {
	e, ok := err.(*Error)
	return ok && e.Kind == kind
}
