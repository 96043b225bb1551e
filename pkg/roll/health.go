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

	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/esroll/esroll/pkg/elastic"
	"github.com/esroll/esroll/pkg/log"
)

// HealthGate blocks the caller until the cluster reaches green
// health. Only green is accepted: yellow means a node outage would
// lose the last copy of some shard.
type HealthGate struct {
	Admin  ClusterAdmin
	Config Config
}

// WaitForGreen polls cluster health until it is green. With no
// configured health timeout the wait is unbounded, by design: the
// only safe alternatives are waiting or operator intervention, and
// the context carries the latter.
func (g *HealthGate) WaitForGreen(ctx context.Context) error {
	contextLogger := log.FromContext(ctx)
	contextLogger.Info("Waiting until cluster is green")

	condition := func(ctx context.Context) (bool, error) {
		status, err := g.Admin.Health(ctx)
		if err != nil {
			// Transient health errors are expected while a node is
			// rejoining; keep polling.
			contextLogger.Warning("Could not read cluster health", "error", err.Error())
			return false, nil
		}
		contextLogger.Debug("Cluster health", "status", status)
		return status == elastic.HealthGreen, nil
	}

	if g.Config.HealthTimeout > 0 {
		err := wait.PollUntilContextTimeout(ctx,
			g.Config.ClusterPollInterval, g.Config.HealthTimeout, true, condition)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return &HealthTimeoutError{Waited: g.Config.HealthTimeout}
		}
		return nil
	}

	if err := wait.PollUntilContextCancel(ctx,
		g.Config.ClusterPollInterval, true, condition); err != nil {
		return ctx.Err()
	}
	return nil
}
