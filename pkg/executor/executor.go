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

// Package executor defines the remote execution capability used to
// drive host-level operations on cluster nodes, and its Salt
// implementation.
package executor

import "context"

// HighstateReport is the distilled result of a highstate run
type HighstateReport struct {
	// ServiceChanged is true when the highstate reported changes on
	// the managed service unit, meaning the service was restarted as
	// a side effect of the run
	ServiceChanged bool

	// FailedStates lists the identifiers of the states that did not
	// apply cleanly; empty on a fully successful run
	FailedStates []string
}

// Succeeded is true when every state of the run applied cleanly
func (r *HighstateReport) Succeeded() bool {
	return len(r.FailedStates) == 0
}

// Executor is the remote execution capability: host-level commands
// issued against a node through an external control plane. Nodes are
// addressed by their cluster node name.
type Executor interface {
	// Ping verifies connectivity to the node
	Ping(ctx context.Context, node string) (bool, error)

	// RunHighstate applies the full desired-state configuration to
	// the node, reporting failed states and service side effects
	RunHighstate(ctx context.Context, node string, service string) (*HighstateReport, error)

	// ServiceStatus reports whether the service is running on the node
	ServiceStatus(ctx context.Context, node string, service string) (bool, error)

	// StartService starts the service on the node
	StartService(ctx context.Context, node string, service string) error

	// StopService stops the service on the node
	StopService(ctx context.Context, node string, service string) error

	// ForceKill forcefully terminates the service processes on the
	// node, used as the escalation when a regular stop did not work
	ForceKill(ctx context.Context, node string) error

	// PackageUpgradeAvailable reports whether a newer version of the
	// package is available to the node's package manager
	PackageUpgradeAvailable(ctx context.Context, node string, pkg string) (bool, error)

	// InstallPackage installs the latest available version of the
	// package, reporting whether anything changed
	InstallPackage(ctx context.Context, node string, pkg string) (bool, error)

	// PackageHeld reports whether the package is marked as held on
	// the node
	PackageHeld(ctx context.Context, node string, pkg string) (bool, error)

	// HoldPackage marks the package as held on the node
	HoldPackage(ctx context.Context, node string, pkg string) error

	// UnholdPackage removes the held mark from the package on the node
	UnholdPackage(ctx context.Context, node string, pkg string) error
}
