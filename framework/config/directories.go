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

package config

var (
	// ConfigDirectory contains the path to the root directory holding the
	// registry's own state: mailboxes.db, per-user subscription and modseq
	// KVs, and per-mailbox modseq counters (spec.md §6's <config_dir>).
	//
	// Value of this variable must not change after initialization.
	ConfigDirectory string

	// PartitionDirectory contains the path to the default partition root,
	// under which per-mailbox directories and the stage directory live
	// (spec.md §6's <partition_dir>). Named partitions other than the
	// default are configured independently. The registry does not read this
	// variable: a mailbox created without a partition takes its parent's,
	// else the registry's DefaultPartition.
	//
	// Value of this variable must not change after initialization.
	PartitionDirectory string

	// LockDirectory contains the path to the root directory holding
	// per-mailbox advisory lockfiles (spec.md §6's <lock_dir>).
	//
	// Value of this variable must not change after initialization.
	LockDirectory string
)
