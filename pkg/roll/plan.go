/*
Copyright The EsRoll Contributors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package roll

import (
	"github.com/thoas/go-funk"
)

// Plan is the ordered, immutable visit order of one roll session.
// It is built once from the discovery snapshot and never recomputed
// mid-roll.
type Plan struct {
	Nodes []Node
}

// BuildPlan computes the deterministic roll order from the
// discovered inventory and the operator's role filters.
//
// Masters always precede data nodes, each group keeping the
// inventory's discovery order. A node holding both roles counts as a
// master: it is ordered with the masters, never listed twice, and
// excluded when masters are excluded.
func BuildPlan(inventory []Node, config Config) Plan {
	masters := funk.Filter(inventory, func(n Node) bool { return n.Master }).([]Node)
	datas := funk.Filter(inventory, func(n Node) bool { return n.Data && !n.Master }).([]Node)

	var ordered []Node
	if config.RollMasters {
		ordered = append(ordered, masters...)
	}
	if config.RollDatas {
		ordered = append(ordered, datas...)
	}

	return Plan{Nodes: ordered}
}
