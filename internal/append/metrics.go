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

package append

import "github.com/prometheus/client_golang/prometheus"

var (
	stagesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "boxkeep",
		Subsystem: "append",
		Name:      "stages_total",
		Help:      "Messages written to the stage directory via newstage.",
	})
	fanoutTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "boxkeep",
		Subsystem: "append",
		Name:      "fanout_total",
		Help:      "Per-mailbox deliveries completed via fromstage.",
	})
	calloutTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "boxkeep",
		Subsystem: "append",
		Name:      "callout_total",
		Help:      "Annotation callout invocations, labeled by outcome.",
	}, []string{"outcome"})
)

func init() {
	prometheus.MustRegister(stagesTotal, fanoutTotal, calloutTotal)
}
