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

package registry

import "github.com/prometheus/client_golang/prometheus"

var opsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "boxkeep",
		Subsystem: "registry",
		Name:      "ops_total",
		Help:      "Registry operations that returned an error, labeled by operation name and error kind",
	},
	[]string{"op", "kind"},
)

func init() {
	prometheus.MustRegister(opsTotal)
}
