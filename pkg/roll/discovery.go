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
	"fmt"
	"sync"

	"github.com/thoas/go-funk"

	"github.com/esroll/esroll/pkg/elastic"
	"github.com/esroll/esroll/pkg/log"
)

// Discoverer resolves the cluster topology from a seed master
// address. After the initial contact it connects to every discovered
// master independently, so that the rest of the session does not
// depend on any single master's availability.
type Discoverer struct {
	// Seed is the initial address set used to reach the cluster
	Seed []string

	// Connect builds an administrative client for a host set
	Connect ConnectFunc
}

// Discover contacts the seed, collects the master set, verifies
// which masters answer, and returns an administrative client pointed
// at all reachable masters together with the full node inventory.
func (d *Discoverer) Discover(ctx context.Context) (ClusterAdmin, []Node, error) {
	contextLogger := log.FromContext(ctx)

	seed := d.Connect(d.Seed)
	inventory, err := seed.Nodes(ctx)
	if err != nil {
		return nil, nil, &DiscoveryError{Seed: d.Seed, Err: err}
	}

	masterHosts := funk.Map(
		funk.Filter(inventory, func(info elastic.NodeInfo) bool { return info.Master }).([]elastic.NodeInfo),
		func(info elastic.NodeInfo) string { return info.Address },
	).([]string)
	if len(masterHosts) == 0 {
		return nil, nil, &DiscoveryError{Seed: d.Seed, Err: fmt.Errorf("no master-eligible node in inventory")}
	}

	contextLogger.Info("Connecting to all master nodes", "masters", masterHosts)
	reachable := d.probeMasters(ctx, masterHosts)
	if len(reachable) == 0 {
		return nil, nil, &DiscoveryError{Seed: d.Seed, Err: fmt.Errorf("no master node reachable out of %v", masterHosts)}
	}

	admin := d.Connect(reachable)
	inventory, err = admin.Nodes(ctx)
	if err != nil {
		return nil, nil, &DiscoveryError{Seed: reachable, Err: err}
	}

	nodes := make([]Node, 0, len(inventory))
	for _, info := range inventory {
		nodes = append(nodes, nodeFromInfo(info))
	}

	contextLogger.Debug("Topology discovered", "nodes", len(nodes), "masters", len(masterHosts))
	return admin, nodes, nil
}

// probeMasters checks every master host concurrently, unioning the
// ones that answer a health request. Responses have no ordering
// requirement, so the fan-out result preserves the input order.
func (d *Discoverer) probeMasters(ctx context.Context, hosts []string) []string {
	contextLogger := log.FromContext(ctx)

	answered := make([]bool, len(hosts))
	var wg sync.WaitGroup
	for idx, host := range hosts {
		wg.Add(1)
		go func(idx int, host string) {
			defer wg.Done()
			if _, err := d.Connect([]string{host}).Health(ctx); err != nil {
				contextLogger.Warning("Master did not answer during discovery",
					"host", host, "error", err.Error())
				return
			}
			answered[idx] = true
		}(idx, host)
	}
	wg.Wait()

	reachable := make([]string, 0, len(hosts))
	for idx, host := range hosts {
		if answered[idx] {
			reachable = append(reachable, host)
		}
	}
	return reachable
}
