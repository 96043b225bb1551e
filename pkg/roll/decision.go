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
	"fmt"

	"github.com/blang/semver"
)

// Skip reasons surfaced in the per-node outcome
const (
	ReasonBelowHeapThreshold = "below heap threshold"
	ReasonAtMinimumVersion   = "already at or above minimum version"
)

// Decision is the outcome of the per-node action check
type Decision struct {
	// Act is true when the node needs the roll pipeline
	Act bool

	// Reason explains the decision to the operator
	Reason string
}

// Decide determines whether a node needs action, evaluated against
// the attribute snapshot taken immediately before acting on it.
func Decide(node Node, config Config) (Decision, error) {
	switch config.Mode {
	case ModeRestart:
		if node.HeapUsedPercent > config.KillAtHeap {
			return Decision{
				Act: true,
				Reason: fmt.Sprintf("heap used %d%% above threshold %d%%",
					node.HeapUsedPercent, config.KillAtHeap),
			}, nil
		}
		return Decision{Reason: ReasonBelowHeapThreshold}, nil

	case ModeUpgrade:
		minimum, err := semver.ParseTolerant(config.MinimumVersion)
		if err != nil {
			return Decision{}, &ConfigurationError{Reason: "cannot parse minimum version " + config.MinimumVersion}
		}
		installed, err := semver.ParseTolerant(node.Version)
		if err != nil {
			return Decision{}, fmt.Errorf("cannot parse version %q of node %v: %w",
				node.Version, node.Name, err)
		}
		if installed.LT(minimum) {
			return Decision{
				Act:    true,
				Reason: fmt.Sprintf("version %v below minimum %v", node.Version, config.MinimumVersion),
			}, nil
		}
		return Decision{Reason: ReasonAtMinimumVersion}, nil
	}

	return Decision{}, &ConfigurationError{Reason: "unknown mode " + string(config.Mode)}
}
