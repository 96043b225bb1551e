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
	"context"

	"github.com/esroll/esroll/pkg/elastic"
)

// ClusterAdmin is the cluster administrative capability consumed by
// a roll session: health, node inventory and allocation settings.
// elastic.Client implements it; tests inject fakes.
type ClusterAdmin interface {
	// Health reports the cluster-wide health status
	Health(ctx context.Context) (elastic.HealthStatus, error)

	// Nodes retrieves the full node inventory
	Nodes(ctx context.Context) ([]elastic.NodeInfo, error)

	// Node retrieves a fresh snapshot of a single node by name,
	// nil when the node is not currently part of the cluster
	Node(ctx context.Context, name string) (*elastic.NodeInfo, error)

	// SetAllocation enables or disables cluster shard allocation
	SetAllocation(ctx context.Context, enabled bool) error
}

// ConnectFunc builds a ClusterAdmin pointed at the given hosts.
// Discovery uses it to re-point the session at every master node
// instead of just the seed.
type ConnectFunc func(hosts []string) ClusterAdmin
