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
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/boxkeep/boxkeep/internal/mboxname"
	"github.com/boxkeep/boxkeep/internal/mboxstore"
	"github.com/boxkeep/boxkeep/internal/registry"
	"github.com/boxkeep/boxkeep/internal/sysexits"
)

var ipurgeCommand = &cli.Command{
	Name:      "ipurge",
	Usage:     "Expunge messages from mailboxes matching a policy",
	ArgsUsage: "[pattern...]",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "f", Usage: "Don't print per-mailbox statistics"},
		&cli.BoolFlag{Name: "x", Usage: "Exclude \\Flagged messages from consideration"},
		&cli.BoolFlag{Name: "X", Usage: "Only consider \\Flagged messages"},
		&cli.BoolFlag{Name: "i", Usage: "Include mailboxes under the deleted-name prefix"},
		&cli.BoolFlag{Name: "o", Usage: "Accepted but has no effect: mailboxes in every domain are always considered"},
		&cli.IntFlag{Name: "d", Usage: "Purge messages with internaldate older than this many days"},
		&cli.Int64Flag{Name: "b", Usage: "Purge messages larger than this many bytes"},
		&cli.Int64Flag{Name: "k", Usage: "Purge messages larger than this many kilobytes"},
		&cli.Int64Flag{Name: "m", Usage: "Purge messages larger than this many megabytes"},
	},
	Action: runIpurge,
}

func runIpurge(ctx *cli.Context) error {
	haveAge := ctx.IsSet("d")
	haveSize := ctx.IsSet("b") || ctx.IsSet("k") || ctx.IsSet("m")
	if haveAge == haveSize {
		return cli.Exit("Error: exactly one of -d or -b/-k/-m is required", sysexits.Usage)
	}

	var cutoff time.Time
	if haveAge {
		cutoff = time.Now().AddDate(0, 0, -ctx.Int("d"))
	}
	var sizeLimit int64
	switch {
	case ctx.IsSet("b"):
		sizeLimit = ctx.Int64("b")
	case ctx.IsSet("k"):
		sizeLimit = ctx.Int64("k") * 1024
	case ctx.IsSet("m"):
		sizeLimit = ctx.Int64("m") * 1024 * 1024
	}

	patterns := ctx.Args().Slice()
	if len(patterns) == 0 {
		patterns = []string{"*"}
	}

	reg, closeReg, err := openRegistry(ctx)
	if err != nil {
		return err
	}
	defer closeReg()

	exitCode := sysexits.OK
	for _, pattern := range patterns {
		err := reg.FindAll(pattern, adminIdentity, func(name string) bool {
			if err := ipurgeOne(reg, name, ctx, cutoff, sizeLimit, haveAge); err != nil {
				fmt.Fprintf(os.Stderr, "ipurge: %s: %v\n", name, err)
				exitCode = sysexits.DataErr
			}
			return false
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "ipurge: pattern %q: %v\n", pattern, err)
			exitCode = sysexits.DataErr
		}
	}

	if exitCode != sysexits.OK {
		return cli.Exit("", exitCode)
	}
	return nil
}

func ipurgeOne(reg *registry.Registry, name string, ctx *cli.Context, cutoff time.Time, sizeLimit int64, byAge bool) error {
	if !ctx.Bool("i") {
		if _, deleted := mboxname.IsDeletedWithPrefix(reg.DeletedPrefix, name); deleted {
			return nil
		}
	}

	mbx, err := openMailboxByName(reg, name, mboxstore.IWL)
	if err != nil {
		return err
	}

	var total, bytesTotal, deletedCount, deletedBytes int
	for _, rec := range mbx.Records() {
		total++
		bytesTotal += int(rec.Size)
	}

	uids, err := mbx.Expunge(func(rec mboxstore.Record) bool {
		if ctx.Bool("x") && rec.SystemFlags&mboxstore.FlagFlagged != 0 {
			return false
		}
		if ctx.Bool("X") && rec.SystemFlags&mboxstore.FlagFlagged == 0 {
			return false
		}
		if byAge {
			return time.Unix(rec.InternalDate, 0).Before(cutoff)
		}
		return int64(rec.Size) > sizeLimit
	})
	if err != nil {
		mbx.Abort()
		return err
	}

	byUID := make(map[uint32]bool, len(uids))
	for _, uid := range uids {
		byUID[uid] = true
	}
	for _, rec := range mbx.Records() {
		if byUID[rec.UID] {
			deletedCount++
			deletedBytes += int(rec.Size)
		}
	}

	if err := mbx.Commit("boxkeepctl", "ipurge", ""); err != nil {
		return err
	}

	if !ctx.Bool("f") {
		fmt.Printf("%s: total=%d bytes=%d deleted=%d deleted_bytes=%d remaining=%d remaining_bytes=%d\n",
			name, total, bytesTotal, deletedCount, deletedBytes, total-deletedCount, bytesTotal-deletedBytes)
	}
	return nil
}
