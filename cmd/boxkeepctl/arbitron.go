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
	"sort"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/boxkeep/boxkeep/internal/mboxstore"
	"github.com/boxkeep/boxkeep/internal/registry"
	"github.com/boxkeep/boxkeep/internal/sysexits"
)

// arbitronCommand reports mailbox-level readership stats. The original
// tool's per-user Seen-state readership counts depend on IMAP session
// state this registry does not keep (message parsing and protocol
// front-ends are out of scope per spec.md §1), so this reports the
// aggregate counters the mailbox header already carries: total, answered
// and flagged message counts within the selected time window, which is
// the readership signal boxkeep can actually derive from its own state.
var arbitronCommand = &cli.Command{
	Name:      "arbitron",
	Usage:     "Report mailbox activity counts",
	ArgsUsage: "[pattern]",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "o", Usage: "Accepted but has no effect: mailboxes in every domain are always considered"},
		&cli.IntFlag{Name: "d", Usage: "Only consider activity within this many days"},
		&cli.IntFlag{Name: "p", Usage: "Divide the report into this many month-wide buckets"},
	},
	Action: runArbitron,
}

func runArbitron(ctx *cli.Context) error {
	pattern := "*"
	if ctx.NArg() > 0 {
		pattern = ctx.Args().First()
	}

	var cutoff time.Time
	if ctx.IsSet("d") {
		cutoff = time.Now().AddDate(0, 0, -ctx.Int("d"))
	}
	buckets := ctx.Int("p")

	reg, closeReg, err := openRegistry(ctx)
	if err != nil {
		return err
	}
	defer closeReg()

	exitCode := sysexits.OK
	err = reg.FindAll(pattern, adminIdentity, func(name string) bool {
		if err := arbitronOne(reg, name, cutoff, buckets); err != nil {
			fmt.Fprintf(os.Stderr, "arbitron: %s: %v\n", name, err)
			exitCode = sysexits.DataErr
		}
		return false
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "arbitron: %q: %v\n", pattern, err)
		exitCode = sysexits.DataErr
	}

	if exitCode != sysexits.OK {
		return cli.Exit("", exitCode)
	}
	return nil
}

func arbitronOne(reg *registry.Registry, name string, cutoff time.Time, buckets int) error {
	mbx, err := openMailboxByName(reg, name, mboxstore.IRL)
	if err != nil {
		return err
	}
	defer mbx.Abort()

	var inWindow, answered, flagged int
	monthCounts := map[string]int{}
	for _, rec := range mbx.Records() {
		if !cutoff.IsZero() && time.Unix(rec.InternalDate, 0).Before(cutoff) {
			continue
		}
		inWindow++
		if rec.SystemFlags&mboxstore.FlagAnswered != 0 {
			answered++
		}
		if rec.SystemFlags&mboxstore.FlagFlagged != 0 {
			flagged++
		}
		if buckets > 0 {
			monthCounts[time.Unix(rec.InternalDate, 0).Format("2006-01")]++
		}
	}

	h := mbx.Header()
	fmt.Printf("%s: exists=%d in_window=%d answered=%d flagged=%d\n",
		name, h.ExistsCount, inWindow, answered, flagged)

	if buckets > 0 {
		months := make([]string, 0, len(monthCounts))
		for m := range monthCounts {
			months = append(months, m)
		}
		sort.Sort(sort.Reverse(sort.StringSlice(months)))
		if len(months) > buckets {
			months = months[:buckets]
		}
		for _, m := range months {
			fmt.Printf("%s: bucket=%s count=%d\n", name, m, monthCounts[m])
		}
	}

	return nil
}
