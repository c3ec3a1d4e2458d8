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

import "github.com/prometheus/client_golang/prometheus"

var commitTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "boxkeep",
		Subsystem: "mboxstore",
		Name:      "commits_total",
		Help:      "Number of mailbox Commit calls, labeled by whether any record was staged",
	},
	[]string{"state"},
)

var expungeTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "boxkeep",
		Subsystem: "mboxstore",
		Name:      "expunged_total",
		Help:      "Number of index records marked DELETED by Expunge",
	},
	[]string{},
)

var renameTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "boxkeep",
		Subsystem: "mboxstore",
		Name:      "renames_total",
		Help:      "Number of RenameCopy operations performed",
	},
	[]string{},
)

var rebuildTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "boxkeep",
		Subsystem: "mboxstore",
		Name:      "cache_rebuilds_total",
		Help:      "Number of RebuildCache operations performed",
	},
)

func init() {
	prometheus.MustRegister(commitTotal)
	prometheus.MustRegister(expungeTotal)
	prometheus.MustRegister(renameTotal)
	prometheus.MustRegister(rebuildTotal)
}
