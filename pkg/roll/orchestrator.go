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

	"github.com/google/uuid"

	"github.com/esroll/esroll/pkg/executor"
	"github.com/esroll/esroll/pkg/log"
)

// OutcomeStatus classifies what happened to one planned node
type OutcomeStatus string

// The per-node outcome statuses
const (
	StatusSkipped   OutcomeStatus = "skipped"
	StatusCompleted OutcomeStatus = "completed"
	StatusFailed    OutcomeStatus = "failed"
)

// Outcome is the per-node record of a roll session
type Outcome struct {
	Node     Node
	Status   OutcomeStatus
	Reason   string
	Timeline []TimelineEntry
	Err      error
	Started  time.Time
	Finished time.Time
}

// Result is the full report of a roll session. Nodes the plan never
// reached because of an abort do not appear in Outcomes.
type Result struct {
	SessionID string
	Mode      Mode
	Outcomes  []Outcome
	Aborted   bool
	AbortErr  error

	// AllocationDisabled flags that the session may have left cluster
	// shard allocation disabled. The operator must re-enable it by
	// hand before anything else.
	AllocationDisabled bool

	Started  time.Time
	Finished time.Time
}

// Orchestrator runs one roll session: validate, discover, plan, and
// visit each planned node in order, aborting on the first fatal
// per-node failure
type Orchestrator struct {
	Config   Config
	Seed     []string
	Connect  ConnectFunc
	Executor executor.Executor
}

// Run executes the session. The returned Result is non-nil whenever
// any node was visited; the error mirrors Result.AbortErr so callers
// can treat the session as a single operation.
func (o *Orchestrator) Run(ctx context.Context) (*Result, error) {
	config := o.Config.WithDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	result := &Result{
		SessionID: uuid.New().String(),
		Mode:      config.Mode,
		Started:   time.Now(),
	}
	ctx = log.IntoContext(ctx, log.FromContext(ctx).WithValues("session", result.SessionID))
	contextLogger := log.FromContext(ctx)
	contextLogger.Info("Starting roll session", "mode", config.Mode, "seed", o.Seed)

	discoverer := &Discoverer{Seed: o.Seed, Connect: o.Connect}
	admin, inventory, err := discoverer.Discover(ctx)
	if err != nil {
		result.Aborted = true
		result.AbortErr = err
		result.Finished = time.Now()
		return result, err
	}

	plan := BuildPlan(inventory, config)
	contextLogger.Info("Roll plan computed",
		"planned", len(plan.Nodes), "inventory", len(inventory))

	// The cluster must already be green before touching the first
	// node; a session never makes a degraded cluster worse.
	gate := &HealthGate{Admin: admin, Config: config}
	if err := gate.WaitForGreen(ctx); err != nil {
		result.Aborted = true
		result.AbortErr = err
		result.Finished = time.Now()
		return result, err
	}

	for _, planned := range plan.Nodes {
		outcome := o.rollNode(ctx, admin, config, planned)
		result.Outcomes = append(result.Outcomes, outcome)

		if outcome.Status == StatusFailed {
			result.Aborted = true
			result.AbortErr = outcome.Err
			if allocationLeftDisabled(outcome.Timeline) {
				result.AllocationDisabled = true
				contextLogger.Error(outcome.Err,
					"Session aborted with shard allocation still disabled, re-enable it manually",
					"node", planned.Name)
			}
			break
		}
	}

	result.Finished = time.Now()
	if result.Aborted {
		contextLogger.Error(result.AbortErr, "Roll session aborted",
			"visited", len(result.Outcomes))
		return result, result.AbortErr
	}

	contextLogger.Info("Roll session finished", "visited", len(result.Outcomes))
	return result, nil
}

// rollNode refreshes one planned node, decides whether it needs
// action, and runs the lifecycle when it does
func (o *Orchestrator) rollNode(ctx context.Context, admin ClusterAdmin, config Config, planned Node) Outcome {
	contextLogger := log.FromContext(ctx).WithValues("node", planned.Name)
	outcome := Outcome{Node: planned, Started: time.Now()}

	// Decisions are made against a snapshot taken immediately before
	// acting, not against the stale discovery inventory: earlier
	// nodes in the session may have changed heap or version.
	fresh, err := refreshNode(ctx, admin, planned.Name)
	if err != nil {
		outcome.Status = StatusFailed
		outcome.Err = &DiscoveryError{Seed: o.Seed, Err: err}
		outcome.Finished = time.Now()
		return outcome
	}
	if fresh == nil {
		outcome.Status = StatusFailed
		outcome.Err = &ConnectivityError{Node: planned.Name}
		outcome.Finished = time.Now()
		return outcome
	}
	outcome.Node = *fresh

	decision, err := Decide(*fresh, config)
	if err != nil {
		outcome.Status = StatusFailed
		outcome.Err = err
		outcome.Finished = time.Now()
		return outcome
	}
	outcome.Reason = decision.Reason
	if !decision.Act {
		contextLogger.Info("Skipping node", "reason", decision.Reason)
		outcome.Status = StatusSkipped
		outcome.Finished = time.Now()
		return outcome
	}

	contextLogger.Info("Rolling node", "role", fresh.Role(), "reason", decision.Reason)
	timeline, err := newLifecycle(admin, o.Executor, config, *fresh).Run(ctx)
	outcome.Timeline = timeline
	outcome.Finished = time.Now()
	if err != nil {
		outcome.Status = StatusFailed
		outcome.Err = err
		return outcome
	}

	outcome.Status = StatusCompleted
	return outcome
}
