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

// Package kv implements the ordered key/value backend of spec.md §4.1: a
// persistent ordered map with transactional put/delete/fetch, prefix
// cursor iteration, and a configurable collation. The registry instantiates
// two independent Stores over it — mblist and the per-user subscription
// map — keyed by byte-string mailbox names.
package kv

import (
	"fmt"
	"path/filepath"
)

// Flag selects backend behavior at Open, mirroring spec.md §4.1's
// open(path, flags) signature.
type Flag int

const (
	// Create creates the backing file if it does not already exist.
	Create Flag = 1 << iota
	// SortedMbox selects the collation documented on MailboxCollation.
	SortedMbox
)

// Kind is the flat error taxonomy of spec.md §4.1.
type Kind int

const (
	KindOK Kind = iota
	KindAgain
	KindNotFound
	KindExists
	KindIO
)

func (k Kind) String() string {
	switch k {
	case KindOK:
		return "OK"
	case KindAgain:
		return "AGAIN"
	case KindNotFound:
		return "NOTFOUND"
	case KindExists:
		return "EXISTS"
	case KindIO:
		return "IO"
	default:
		return "UNKNOWN"
	}
}

// Error wraps Kind with the underlying cause, if any. It implements the
// exterrors.TemporaryErr interface so AGAIN conflicts are retried by
// generic callers that only know how to check Temporary().
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("kv: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("kv: %s", e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Temporary() bool { return e.Kind == KindAgain }

func newErr(kind Kind, err error) *Error { return &Error{Kind: kind, Err: err} }

// ErrNotFound reports whether err is a KindNotFound Error.
func ErrNotFound(err error) bool {
	var kvErr *Error
	if e, ok := err.(*Error); ok {
		kvErr = e
	} else {
		return false
	}
	return kvErr.Kind == KindNotFound
}

// ErrExists reports whether err is a KindExists Error.
func ErrExists(err error) bool {
	e, ok := err.(*Error)
	return ok && e.Kind == KindExists
}

// ErrAgain reports whether err is a KindAgain Error.
func ErrAgain(err error) bool {
	e, ok := err.(*Error)
	return ok && e.Kind == KindAgain
}

// VisitFunc is invoked by Foreach for every (key, value) pair that its
// Predicate accepted. Returning true stops iteration early.
type VisitFunc func(key, val []byte) (stop bool)

// Predicate is the fast pre-filter passed to Foreach; only pairs it accepts
// are handed to the VisitFunc.
type Predicate func(key, val []byte) bool

// AcceptAll is a Predicate that accepts every pair; useful when the caller
// has no cheap filter beyond the key prefix Foreach already applies.
func AcceptAll(_, _ []byte) bool { return true }

// Tx is an optional transaction handle. A Tx may see its own writes; other
// transactions see a snapshot from their first read. Conflicting writers
// surface KindAgain to one of them on Commit.
type Tx interface {
	Fetch(key []byte) ([]byte, error)
	Store(key, val []byte) error
	Delete(key []byte) error
	Commit() error
	Rollback() error
}

// OpenUserStore opens userid's subs_for_user(u) store under dir, per
// spec.md §2/§4.1 — one SortedMbox-collated Store per user, named so the
// external subscription-store collaborator (out of scope per Non-goals)
// has a concrete place to keep its data without reaching into
// SkiplistStore's constructor directly.
func OpenUserStore(dir, userid string) (*SkiplistStore, error) {
	return Open(filepath.Join(dir, userid+".subs"), Create|SortedMbox)
}

// Store is the ordered KV backend contract of spec.md §4.1.
type Store interface {
	// Fetch reads key outside of any transaction.
	Fetch(key []byte) ([]byte, error)

	// FetchLocked reads key as part of tx, if tx is non-nil; otherwise it
	// behaves like Fetch.
	FetchLocked(key []byte, tx Tx) ([]byte, error)

	// Store writes key=val. If tx is nil, the write commits immediately as
	// its own unit; otherwise it is staged in tx.
	Store(key, val []byte, tx Tx) error

	// Delete removes key. If tx is nil, the delete commits immediately.
	Delete(key []byte, tx Tx) error

	// Foreach iterates, in collation order, over every key carrying the
	// given prefix. p is evaluated for every candidate; cb is invoked only
	// when p returns true, and iteration stops early if cb returns true.
	Foreach(prefix []byte, p Predicate, cb VisitFunc) error

	// Begin opens a new transaction.
	Begin() (Tx, error)

	// Sync flushes to stable storage.
	Sync() error

	Close() error
}
