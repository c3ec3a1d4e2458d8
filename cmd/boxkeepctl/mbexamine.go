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

package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/boxkeep/boxkeep/internal/mboxstore"
	"github.com/boxkeep/boxkeep/internal/registry"
	"github.com/boxkeep/boxkeep/internal/sysexits"
)

var mbexamineCommand = &cli.Command{
	Name:      "mbexamine",
	Usage:     "Dump a mailbox's header and index records",
	ArgsUsage: "MAILBOX...",
	Flags: []cli.Flag{
		&cli.IntFlag{
			Name:    "uid",
			Aliases: []string{"u"},
			Usage:   "Show only the record for this UID",
		},
		&cli.IntFlag{
			Name:    "seq",
			Aliases: []string{"s"},
			Usage:   "Show only the record at this sequence position (1-based)",
		},
	},
	Action: func(ctx *cli.Context) error {
		if ctx.NArg() == 0 {
			return cli.Exit("Error: at least one MAILBOX is required", sysexits.Usage)
		}

		reg, closeReg, err := openRegistry(ctx)
		if err != nil {
			return err
		}
		defer closeReg()

		for _, name := range ctx.Args().Slice() {
			if err := mbexamineOne(reg, name, ctx); err != nil {
				fmt.Fprintf(os.Stderr, "mbexamine: %s: %v\n", name, err)
				return cli.Exit("", sysexits.DataErr)
			}
		}
		return nil
	},
}

func mbexamineOne(reg *registry.Registry, name string, ctx *cli.Context) error {
	mbx, err := openMailboxByName(reg, name, mboxstore.IRL)
	if err != nil {
		return err
	}
	defer mbx.Abort()

	h := mbx.Header()
	fmt.Printf("mailbox: %s\n", name)
	fmt.Printf("  uniqueid: %s\n", h.UniqueID)
	fmt.Printf("  acl: %s\n", h.ACL)
	fmt.Printf("  uidvalidity: %d\n", h.UIDValidity)
	fmt.Printf("  lastuid: %d\n", h.LastUID)
	fmt.Printf("  highestmodseq: %d\n", h.HighestModSeq)
	fmt.Printf("  exists: %d  deleted: %d  answered: %d  flagged: %d\n",
		h.ExistsCount, h.DeletedCount, h.AnsweredCount, h.FlaggedCount)
	fmt.Printf("  quotaroot: %s  quotaused: %d\n", h.QuotaRoot, h.QuotaUsed)

	records := mbx.Records()

	switch {
	case ctx.IsSet("uid"):
		uid := uint32(ctx.Int("uid"))
		for _, rec := range records {
			if rec.UID == uid {
				printRecord(rec)
				return nil
			}
		}
		return fmt.Errorf("no record for uid %d", uid)
	case ctx.IsSet("seq"):
		seq := ctx.Int("seq")
		if seq < 1 || seq > len(records) {
			return fmt.Errorf("sequence %d out of range (1-%d)", seq, len(records))
		}
		printRecord(records[seq-1])
		return nil
	default:
		for _, rec := range records {
			printRecord(rec)
		}
		return nil
	}
}

func printRecord(rec mboxstore.Record) {
	fmt.Printf("  uid %d: size=%d internaldate=%s flags=%s modseq=%d cacheoffset=%d\n",
		rec.UID, rec.Size, time.Unix(rec.InternalDate, 0).Format(time.RFC3339),
		formatSystemFlags(rec.SystemFlags), rec.ModSeq, rec.CacheOffset)
}

func formatSystemFlags(bits uint32) string {
	var out string
	add := func(bit uint32, name string) {
		if bits&bit != 0 {
			out += name
		}
	}
	add(mboxstore.FlagSeen, `\Seen`)
	add(mboxstore.FlagDeleted, `\Deleted `)
	add(mboxstore.FlagDraft, `\Draft `)
	add(mboxstore.FlagFlagged, `\Flagged `)
	add(mboxstore.FlagAnswered, `\Answered `)
	if out == "" {
		return "(none)"
	}
	return out
}

// openMailboxByName resolves name to its partition via the registry, then
// opens the mboxstore.Mailbox directly — boxkeepctl runs with spool access
// and bypasses ACL checks the way cyrus's own administrative tools do.
func openMailboxByName(reg *registry.Registry, name string, mode mboxstore.OpenMode) (*mboxstore.Mailbox, error) {
	rec, err := reg.Lookup(name, adminIdentity)
	if err != nil {
		return nil, err
	}

	partitionDir, ok := reg.Partitions[rec.Partition]
	if !ok {
		return nil, fmt.Errorf("unknown partition %q", rec.Partition)
	}

	paths := mboxstore.MailboxPaths(partitionDir, reg.HashMode, name)
	mbx, err := mboxstore.Open(paths, reg.LockDir, reg.HashMode, reg.Locks, name, mode, nil)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("no such mailbox on disk: %w", err)
		}
		return nil, err
	}
	return mbx, nil
}
