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

	"github.com/esroll/esroll/pkg/log"
)

// AllocationController toggles cluster shard allocation around one
// node's outage window. Both calls are idempotent on the cluster
// side; a failure to disable is fatal before any destructive step,
// and a failure to re-enable must surface loudly because the cluster
// cannot be left silently running with allocation disabled.
type AllocationController struct {
	Admin ClusterAdmin
}

// Disable turns off shard allocation
func (a *AllocationController) Disable(ctx context.Context) error {
	log.FromContext(ctx).Info("Disabling allocation")
	if err := a.Admin.SetAllocation(ctx, false); err != nil {
		return &AllocationError{Op: "disable", Err: err}
	}
	return nil
}

// Enable turns shard allocation back on
func (a *AllocationController) Enable(ctx context.Context) error {
	log.FromContext(ctx).Info("Enabling allocation")
	if err := a.Admin.SetAllocation(ctx, true); err != nil {
		return &AllocationError{Op: "enable", Err: err}
	}
	return nil
}
