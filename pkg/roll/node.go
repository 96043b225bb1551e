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
	"time"

	"github.com/esroll/esroll/pkg/elastic"
)

// Node is a read-only snapshot of a cluster node. It is refreshed
// only at well-defined points: topology discovery and immediately
// before the per-node decision.
type Node struct {
	ID              string
	Name            string
	Address         string
	Version         string
	Master          bool
	Data            bool
	HeapUsedPercent int
	Uptime          time.Duration
}

// Role describes the node's role set for operator reports
func (n Node) Role() string {
	switch {
	case n.Master && n.Data:
		return "master+data"
	case n.Master:
		return "master"
	case n.Data:
		return "data"
	default:
		return "client"
	}
}

// nodeFromInfo maps an administrative interface snapshot into a Node
func nodeFromInfo(info elastic.NodeInfo) Node {
	return Node{
		ID:              info.ID,
		Name:            info.Name,
		Address:         info.Address,
		Version:         info.Version,
		Master:          info.Master,
		Data:            info.Data,
		HeapUsedPercent: info.HeapUsedPercent,
		Uptime:          info.Uptime,
	}
}

// refreshNode re-reads a node's attribute snapshot so that the
// decision sees any cluster change produced by previously processed
// nodes. The refreshed snapshot may be nil when the node left the
// cluster since discovery.
func refreshNode(ctx context.Context, admin ClusterAdmin, name string) (*Node, error) {
	info, err := admin.Node(ctx, name)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, nil
	}
	node := nodeFromInfo(*info)
	return &node, nil
}
