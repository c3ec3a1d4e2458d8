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

	"github.com/urfave/cli/v2"

	"github.com/boxkeep/boxkeep/internal/mboxname"
	"github.com/boxkeep/boxkeep/internal/mboxstore"
	"github.com/boxkeep/boxkeep/internal/registry"
	"github.com/boxkeep/boxkeep/internal/sysexits"
)

// davReconstructCommand rebuilds the one secondary index boxkeep owns
// (cyrus.cache) for the named users' mailboxes, per SPEC_FULL.md §6's
// Go-native stand-in for the original dav-reconstruct.
var davReconstructCommand = &cli.Command{
	Name:      "dav-reconstruct",
	Usage:     "Rebuild the per-mailbox cache file for one or more users",
	ArgsUsage: "userid...",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "a", Usage: "Reconstruct every user's mailboxes"},
	},
	Action: runDavReconstruct,
}

func runDavReconstruct(ctx *cli.Context) error {
	if !ctx.Bool("a") && ctx.NArg() == 0 {
		return cli.Exit("Error: at least one userid is required, or pass -a", sysexits.Usage)
	}

	reg, closeReg, err := openRegistry(ctx)
	if err != nil {
		return err
	}
	defer closeReg()

	exitCode := sysexits.OK
	rebuild := func(name string) bool {
		if err := mustRebuild(reg, name); err != nil {
			fmt.Fprintf(os.Stderr, "dav-reconstruct: %s: %v\n", name, err)
			exitCode = sysexits.DataErr
		}
		return false
	}

	if ctx.Bool("a") {
		if err := reg.FindAll("user.*", adminIdentity, rebuild); err != nil {
			fmt.Fprintf(os.Stderr, "dav-reconstruct: %v\n", err)
			exitCode = sysexits.DataErr
		}
	} else {
		for _, userid := range ctx.Args().Slice() {
			inbox, ok := mboxname.UserInbox(userid)
			if !ok {
				fmt.Fprintf(os.Stderr, "dav-reconstruct: %s: not a valid userid\n", userid)
				exitCode = sysexits.DataErr
				continue
			}
			pattern := inbox + "*"
			if err := reg.FindAll(pattern, adminIdentity, rebuild); err != nil {
				fmt.Fprintf(os.Stderr, "dav-reconstruct: %s: %v\n", userid, err)
				exitCode = sysexits.DataErr
			}
		}
	}

	if exitCode != sysexits.OK {
		return cli.Exit("", exitCode)
	}
	return nil
}

func mustRebuild(reg *registry.Registry, name string) error {
	mbx, err := openMailboxByName(reg, name, mboxstore.IWL)
	if err != nil {
		return err
	}

	if err := mbx.RebuildCache(); err != nil {
		mbx.Abort()
		return err
	}
	if err := mbx.Commit("boxkeepctl", "dav-reconstruct", ""); err != nil {
		return err
	}

	fmt.Printf("%s: rebuilt %d records\n", name, len(mbx.Records()))
	return nil
}
