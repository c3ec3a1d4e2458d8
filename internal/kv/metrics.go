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

package kv

import "github.com/prometheus/client_golang/prometheus"

var txConflicts = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "boxkeep",
		Subsystem: "kv",
		Name:      "tx_conflicts_total",
		Help:      "Number of transaction commits that failed with AGAIN due to a conflicting writer",
	},
	[]string{"store"},
)

var foreachScanned = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "boxkeep",
		Subsystem: "kv",
		Name:      "foreach_scanned_total",
		Help:      "Number of keys visited (predicate evaluated) by Foreach scans",
	},
	[]string{"store"},
)

func init() {
	prometheus.MustRegister(txConflicts)
	prometheus.MustRegister(foreachScanned)
}
