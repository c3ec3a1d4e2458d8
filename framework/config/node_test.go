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

import (
	"strings"
	"testing"
)

func TestReadFlatDirectives(t *testing.T) {
	nodes, err := Read(strings.NewReader(`
config_dir /var/lib/boxkeep
lock_dir /var/lib/boxkeep/lock
partition default /srv/mail/default
partition archive /srv/mail/archive
`), "boxkeepctl.conf")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}

	if len(nodes) != 4 {
		t.Fatalf("expected 4 top-level nodes, got %d", len(nodes))
	}
	if nodes[0].Name != "config_dir" || nodes[0].Args[0] != "/var/lib/boxkeep" {
		t.Errorf("unexpected first node: %+v", nodes[0])
	}
	if nodes[2].Name != "partition" || nodes[2].Args[0] != "default" || nodes[2].Args[1] != "/srv/mail/default" {
		t.Errorf("unexpected third node: %+v", nodes[2])
	}
}

func TestReadBlock(t *testing.T) {
	nodes, err := Read(strings.NewReader(`
quota {
  dir /var/lib/boxkeep/quota
}
`), "boxkeepctl.conf")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(nodes) != 1 || nodes[0].Name != "quota" {
		t.Fatalf("unexpected nodes: %+v", nodes)
	}
	if len(nodes[0].Children) != 1 || nodes[0].Children[0].Name != "dir" {
		t.Fatalf("unexpected children: %+v", nodes[0].Children)
	}
}

func TestReadUnclosedBlock(t *testing.T) {
	_, err := Read(strings.NewReader(`quota {
  dir /var/lib/boxkeep/quota
`), "boxkeepctl.conf")
	if err == nil {
		t.Fatal("expected error for unclosed block")
	}
}

func TestReadLineContinuation(t *testing.T) {
	nodes, err := Read(strings.NewReader("partition default \\\n  /srv/mail/default\n"), "boxkeepctl.conf")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(nodes) != 1 || len(nodes[0].Args) != 2 || nodes[0].Args[1] != "/srv/mail/default" {
		t.Fatalf("unexpected nodes: %+v", nodes)
	}
}
