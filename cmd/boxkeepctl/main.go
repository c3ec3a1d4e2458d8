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

// boxkeepctl is the administrative CLI surface of spec.md §6: ipurge,
// mbexamine, arbitron and dav-reconstruct, operating directly against a
// registry's mblist and partitions the way an operator running these tools
// on the mail spool host would, rather than through any network protocol.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/boxkeep/boxkeep/framework/config"
	"github.com/boxkeep/boxkeep/framework/log"
	"github.com/boxkeep/boxkeep/internal/kv"
	"github.com/boxkeep/boxkeep/internal/mboxlock"
	"github.com/boxkeep/boxkeep/internal/notify"
	"github.com/boxkeep/boxkeep/internal/notify/pubsub"
	"github.com/boxkeep/boxkeep/internal/quota"
	"github.com/boxkeep/boxkeep/internal/registry"
	"github.com/boxkeep/boxkeep/internal/sysexits"
)

func main() {
	app := cli.NewApp()
	app.Name = "boxkeepctl"
	app.Usage = "boxkeep mailbox registry administration utility"
	app.ExitErrHandler = func(ctx *cli.Context, err error) {
		cli.HandleExitCoder(err)
		if err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			cli.OsExiter(sysexits.Software)
		}
	}
	app.Flags = []cli.Flag{
		&cli.PathFlag{
			Name:    "config",
			Usage:   "Path to a boxkeepctl config file. Overrides config-dir/lock-dir/partition/etc. when given",
			EnvVars: []string{"BOXKEEP_CONFIG"},
		},
		&cli.PathFlag{
			Name:    "config-dir",
			Usage:   "Directory holding mailboxes.db",
			EnvVars: []string{"BOXKEEP_CONFIG_DIR"},
			Value:   "/var/lib/boxkeep",
		},
		&cli.PathFlag{
			Name:    "lock-dir",
			Usage:   "Directory holding per-mailbox advisory lockfiles",
			EnvVars: []string{"BOXKEEP_LOCK_DIR"},
			Value:   "/var/lib/boxkeep/lock",
		},
		&cli.StringSliceFlag{
			Name:  "partition",
			Usage: "Partition in NAME=DIR form. Can be specified multiple times",
		},
		&cli.StringFlag{
			Name:  "default-partition",
			Usage: "Partition name Create falls back to when none is given",
			Value: "default",
		},
		&cli.StringFlag{
			Name:  "hash-mode",
			Usage: "Directory hashing mode: full or partial",
			Value: "full",
		},
		&cli.StringFlag{
			Name:  "deleted-prefix",
			Usage: "Mailbox name prefix used by delayed_delete",
			Value: "DELETED",
		},
		&cli.BoolFlag{
			Name:  "debug",
			Usage: "Enable debug logging",
		},
		&cli.PathFlag{
			Name:  "peer-sock",
			Usage: "UNIX socket address of the cross-node update peer. Unset runs single-node, with no RESERVE/ACTIVATE/DELETE fan-out",
		},
		&cli.StringFlag{
			Name:  "peer-dsn",
			Usage: "Postgres DSN to push RESERVE/ACTIVATE/DELETE updates through LISTEN/NOTIFY instead of peer-sock, for multi-host deployments. Mutually exclusive with peer-sock",
		},
		&cli.PathFlag{
			Name:  "notify-sock",
			Usage: "UNIX socket address commits are announced on for local delivery listeners. Unset disables delivery notification",
		},
		&cli.DurationFlag{
			Name:  "peer-retry-backoff",
			Usage: "Initial retry backoff for a failed update-peer push, doubled on each of 8 attempts",
			Value: 50 * time.Millisecond,
		},
	}

	app.Commands = []*cli.Command{
		ipurgeCommand,
		mbexamineCommand,
		arbitronCommand,
		davReconstructCommand,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(sysexits.Software)
	}
}

func ctlLogger(debug bool) log.Logger {
	return log.Logger{Out: log.WriterOutput(os.Stderr, false), Name: "boxkeepctl", Debug: debug}
}

// boxkeepctlSettings is what either a config file or the global CLI flags
// populate before a Registry is built from them.
type boxkeepctlSettings struct {
	configDir        string
	lockDir          string
	partitions       map[string]string
	defaultPartition string
	hashMode         string
	deletedPrefix    string

	peerSock         string
	peerDSN          string
	notifySock       string
	peerRetryBackoff time.Duration
	debug            bool
}

func settingsFromFlags(ctx *cli.Context) (boxkeepctlSettings, error) {
	partitions := map[string]string{}
	for _, spec := range ctx.StringSlice("partition") {
		name, dir, ok := strings.Cut(spec, "=")
		if !ok {
			return boxkeepctlSettings{}, cli.Exit(fmt.Sprintf("Error: malformed -partition %q, want NAME=DIR", spec), sysexits.Usage)
		}
		partitions[name] = dir
	}
	return boxkeepctlSettings{
		configDir:        ctx.String("config-dir"),
		lockDir:          ctx.String("lock-dir"),
		partitions:       partitions,
		defaultPartition: ctx.String("default-partition"),
		hashMode:         ctx.String("hash-mode"),
		deletedPrefix:    ctx.String("deleted-prefix"),
		peerSock:         ctx.String("peer-sock"),
		peerDSN:          ctx.String("peer-dsn"),
		notifySock:       ctx.String("notify-sock"),
		peerRetryBackoff: ctx.Duration("peer-retry-backoff"),
		debug:            ctx.Bool("debug"),
	}, nil
}

// settingsFromFile reads a boxkeepctl config file of the form:
//
//	config_dir /var/lib/boxkeep
//	lock_dir /var/lib/boxkeep/lock
//	default_partition default
//	hash_mode full
//	deleted_prefix DELETED
//	partition default /srv/mail/default
//	partition archive /srv/mail/archive
//	peer_sock /var/lib/boxkeep/peer.sock
//	peer_dsn postgres://boxkeep@db/boxkeep?sslmode=disable
//	notify_sock /var/lib/boxkeep/notify.sock
//	peer_retry_backoff 100ms
//	debug yes
//
// using the same directive-tree grammar and config.Map reflection-based
// binding the teacher's own server configuration is built on.
func settingsFromFile(path string) (boxkeepctlSettings, error) {
	f, err := os.Open(path)
	if err != nil {
		return boxkeepctlSettings{}, err
	}
	defer f.Close()

	nodes, err := config.Read(f, path)
	if err != nil {
		return boxkeepctlSettings{}, err
	}

	s := boxkeepctlSettings{
		defaultPartition: "default",
		hashMode:         "full",
		deletedPrefix:    "DELETED",
		partitions:       map[string]string{},
		peerRetryBackoff: 50 * time.Millisecond,
	}

	m := config.NewMap(nil, config.Node{Children: nodes})
	m.String("config_dir", false, true, "", &s.configDir)
	m.String("lock_dir", false, true, "", &s.lockDir)
	m.String("default_partition", false, false, s.defaultPartition, &s.defaultPartition)
	m.Enum("hash_mode", false, false, []string{"full", "partial"}, s.hashMode, &s.hashMode)
	m.String("deleted_prefix", false, false, s.deletedPrefix, &s.deletedPrefix)
	m.String("peer_sock", false, false, "", &s.peerSock)
	m.String("peer_dsn", false, false, "", &s.peerDSN)
	m.String("notify_sock", false, false, "", &s.notifySock)
	m.Duration("peer_retry_backoff", false, false, s.peerRetryBackoff, &s.peerRetryBackoff)
	m.Bool("debug", false, false, &s.debug)
	m.Callback("partition", func(_ *config.Map, n config.Node) error {
		if len(n.Args) != 2 {
			return config.NodeErr(n, "partition directive requires exactly 2 arguments: name and directory")
		}
		s.partitions[n.Args[0]] = n.Args[1]
		return nil
	})

	if _, err := m.Process(); err != nil {
		return boxkeepctlSettings{}, err
	}
	return s, nil
}

// openRegistry builds a Registry from either a config file (-config) or the
// global flags, and opens its backing mblist store. The returned closer
// must be called to flush and unlock the store.
func openRegistry(ctx *cli.Context) (*registry.Registry, func() error, error) {
	var (
		settings boxkeepctlSettings
		err      error
	)
	if cfgPath := ctx.String("config"); cfgPath != "" {
		settings, err = settingsFromFile(cfgPath)
		if err != nil {
			return nil, nil, cli.Exit(fmt.Sprintf("Error: reading %s: %v", cfgPath, err), sysexits.Config)
		}
	} else {
		settings, err = settingsFromFlags(ctx)
		if err != nil {
			return nil, nil, err
		}
	}

	if len(settings.partitions) == 0 {
		return nil, nil, cli.Exit("Error: at least one partition is required (-partition NAME=DIR or a config file)", sysexits.Usage)
	}

	hashMode := mboxlock.HashFull
	if settings.hashMode == "partial" {
		hashMode = mboxlock.HashPartial
	}

	configDir := settings.configDir
	if err := os.MkdirAll(configDir, 0o700); err != nil {
		return nil, nil, cli.Exit(fmt.Sprintf("Error: creating config dir: %v", err), sysexits.OSFile)
	}

	mblist, err := kv.Open(filepath.Join(configDir, "mailboxes.db"), kv.Create|kv.SortedMbox)
	if err != nil {
		return nil, nil, cli.Exit(fmt.Sprintf("Error: opening mailboxes.db: %v", err), sysexits.IOErr)
	}

	config.ConfigDirectory = configDir
	config.LockDirectory = settings.lockDir
	config.PartitionDirectory = settings.partitions[settings.defaultPartition]

	logger := ctlLogger(settings.debug || ctx.Bool("debug"))

	reg := &registry.Registry{
		MBList:           mblist,
		Locks:            mboxlock.NewTable(),
		LockDir:          settings.lockDir,
		HashMode:         hashMode,
		Partitions:       settings.partitions,
		DefaultPartition: settings.defaultPartition,
		DeletedPrefix:    settings.deletedPrefix,
		Quota:            quota.NewFileStore(filepath.Join(configDir, "quota")),
		DefaultACL:       "anyone lrs",
		Log:              logger,
	}

	closers := []func() error{mblist.Close}

	if settings.notifySock != "" {
		notifier, err := notify.NewDeliveryNotifier(settings.notifySock, logger)
		if err != nil {
			return nil, nil, cli.Exit(fmt.Sprintf("Error: dialing notify-sock: %v", err), sysexits.IOErr)
		}
		reg.Notifier = notifier
		closers = append(closers, notifier.Close)
	}

	if settings.peerSock != "" && settings.peerDSN != "" {
		return nil, nil, cli.Exit("Error: peer-sock and peer-dsn are mutually exclusive", sysexits.Usage)
	}

	// boxkeepctl only pushes RESERVE/ACTIVATE/DELETE here: it is a
	// short-lived CLI invocation (see DESIGN.md's framework/hooks
	// rationale), so it must not also bind a listener for either
	// transport — two concurrent invocations would otherwise race for the
	// same UNIX socket, or double-consume the same Postgres channel.
	// Registry.ServePeerUpdates/ApplyPeerUpdate exist for whatever
	// long-lived process on the peer side consumes these updates; they
	// are covered by internal/registry's own Peer round-trip test.
	switch {
	case settings.peerSock != "":
		pipe := &notify.UnixPipe{SockPath: settings.peerSock, Log: logger}
		reg.Peer = notify.NewPeerWithBackoff(pipe, logger, settings.peerRetryBackoff)
		closers = append(closers, reg.Peer.Close)
	case settings.peerDSN != "":
		ps, err := pubsub.NewPQ(settings.peerDSN)
		if err != nil {
			return nil, nil, cli.Exit(fmt.Sprintf("Error: connecting peer-dsn: %v", err), sysexits.IOErr)
		}
		pipe := &notify.PqPipe{PubSub: ps, Log: logger}
		reg.Peer = notify.NewPeerWithBackoff(pipe, logger, settings.peerRetryBackoff)
		closers = append(closers, reg.Peer.Close)
	}

	closeAll := func() error {
		var firstErr error
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	}

	return reg, closeAll, nil
}

// adminIdentity is what every boxkeepctl subcommand authenticates as: these
// tools run with direct spool access, equivalent to cyrus's admin-only
// command-line utilities.
var adminIdentity = registry.Identity{Admin: true}
