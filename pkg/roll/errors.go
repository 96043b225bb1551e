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
	"strings"
	"time"
)

// ConfigurationError is raised when the operator intent is invalid.
// It is reported before any cluster contact happens.
type ConfigurationError struct {
	Reason string
}

// Error implements the error interface
func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s", e.Reason)
}

// DiscoveryError is raised when topology discovery could not reach
// any master node
type DiscoveryError struct {
	Seed []string
	Err  error
}

// Error implements the error interface
func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("topology discovery failed through seed %v: %v", e.Seed, e.Err)
}

// Unwrap implements the error interface
func (e *DiscoveryError) Unwrap() error {
	return e.Err
}

// ConnectivityError is raised when a targeted node is unreachable
// through the remote execution channel
type ConnectivityError struct {
	Node string
	Err  error
}

// Error implements the error interface
func (e *ConnectivityError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("node %v is unreachable through remote execution: %v", e.Node, e.Err)
	}
	return fmt.Sprintf("node %v did not answer the remote execution ping", e.Node)
}

// Unwrap implements the error interface
func (e *ConnectivityError) Unwrap() error {
	return e.Err
}

// HighstateError is raised when the highstate application failed on
// a node, either in transport or in any of its states
type HighstateError struct {
	Node         string
	FailedStates []string
	Err          error
}

// Error implements the error interface
func (e *HighstateError) Error() string {
	if len(e.FailedStates) > 0 {
		return fmt.Sprintf("highstate failed on node %v, failed states: %v",
			e.Node, strings.Join(e.FailedStates, ", "))
	}
	return fmt.Sprintf("highstate failed on node %v: %v", e.Node, e.Err)
}

// Unwrap implements the error interface
func (e *HighstateError) Unwrap() error {
	return e.Err
}

// ShutdownTimeoutError is raised when a node's service would not die
// even after the forced termination escalation
type ShutdownTimeoutError struct {
	Node string
}

// Error implements the error interface
func (e *ShutdownTimeoutError) Error() string {
	return fmt.Sprintf("service on node %v still alive after stop and forced termination", e.Node)
}

// RejoinTimeoutError is raised when a restarted node did not rejoin
// the cluster with a fresh uptime in time
type RejoinTimeoutError struct {
	Node string
}

// Error implements the error interface
func (e *RejoinTimeoutError) Error() string {
	return fmt.Sprintf("node %v did not rejoin the cluster with a fresh uptime in time", e.Node)
}

// AllocationError is raised when an allocation settings call failed.
// A failed re-enable means the cluster may be left with allocation
// disabled, which must surface loudly.
type AllocationError struct {
	Op  string
	Err error
}

// Error implements the error interface
func (e *AllocationError) Error() string {
	return fmt.Sprintf("could not %s shard allocation: %v", e.Op, e.Err)
}

// Unwrap implements the error interface
func (e *AllocationError) Unwrap() error {
	return e.Err
}

// HealthTimeoutError is raised when a bounded health wait expired
// before the cluster went green
type HealthTimeoutError struct {
	Waited time.Duration
}

// Error implements the error interface
func (e *HealthTimeoutError) Error() string {
	return fmt.Sprintf("cluster did not reach green health within %v", e.Waited)
}
