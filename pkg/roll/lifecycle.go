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
	"time"

	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/esroll/esroll/pkg/executor"
	"github.com/esroll/esroll/pkg/log"
)

// State identifies a step of the per-node lifecycle
type State string

// The lifecycle states. Failed is an absorbing state reachable from
// any step.
const (
	StateStart                State = "start"
	StateAllocationDisabled   State = "allocation-disabled"
	StateConnectivityVerified State = "connectivity-verified"
	StateHighstated           State = "highstated"
	StateStopping             State = "stopping"
	StateWaitingDeath         State = "waiting-death"
	StateEscalating           State = "escalating"
	StateWaitingDeathRetry    State = "waiting-death-retry"
	StateStarting             State = "starting"
	StateWaitingRejoin        State = "waiting-rejoin"
	StateAllocationEnabled    State = "allocation-enabled"
	StateDone                 State = "done"
	StateFailed               State = "failed"
)

// TimelineEntry records when a lifecycle state was entered
type TimelineEntry struct {
	State State
	At    time.Time
}

// lifecycle executes the roll pipeline on a single node. The two
// modes share one pipeline; the mode-specific branches (whether to
// stop at all, whether an escalation gate applies) are explicit
// fields of this run context rather than separate code paths.
type lifecycle struct {
	admin      ClusterAdmin
	exec       executor.Executor
	allocation *AllocationController
	health     *HealthGate
	config     Config
	node       Node

	timeline []TimelineEntry

	// stopped tracks whether the service went down at any point
	// while processing this node, including a restart performed as a
	// highstate side effect. It gates the start and rejoin steps.
	stopped bool
}

func newLifecycle(admin ClusterAdmin, exec executor.Executor, config Config, node Node) *lifecycle {
	return &lifecycle{
		admin:      admin,
		exec:       exec,
		allocation: &AllocationController{Admin: admin},
		health:     &HealthGate{Admin: admin, Config: config},
		config:     config,
		node:       node,
	}
}

// enter records and logs a state transition
func (l *lifecycle) enter(ctx context.Context, state State) {
	l.timeline = append(l.timeline, TimelineEntry{State: state, At: time.Now()})
	log.FromContext(ctx).Debug("State transition", "state", state)
}

// Run drives the node through the pipeline, returning the sub-step
// timeline and the error that moved it to Failed, if any
func (l *lifecycle) Run(ctx context.Context) ([]TimelineEntry, error) {
	ctx = log.IntoContext(ctx, log.FromContext(ctx).WithValues("node", l.node.Name))
	l.enter(ctx, StateStart)

	if err := l.run(ctx); err != nil {
		l.enter(ctx, StateFailed)
		return l.timeline, err
	}

	l.enter(ctx, StateDone)
	return l.timeline, nil
}

func (l *lifecycle) run(ctx context.Context) error {
	contextLogger := log.FromContext(ctx)

	// No shard may move while the node is down, or the cluster
	// starts re-replicating mid-outage.
	if err := l.allocation.Disable(ctx); err != nil {
		return err
	}
	l.enter(ctx, StateAllocationDisabled)

	alive, err := l.exec.Ping(ctx, l.node.Name)
	if err != nil {
		return &ConnectivityError{Node: l.node.Name, Err: err}
	}
	if !alive {
		return &ConnectivityError{Node: l.node.Name}
	}
	l.enter(ctx, StateConnectivityVerified)

	if l.config.Mode == ModeUpgrade || l.config.Highstate {
		if err := l.runHighstate(ctx); err != nil {
			return err
		}
	}

	switch l.config.Mode {
	case ModeRestart:
		if l.stopped {
			contextLogger.Info("Service already restarted by the highstate, skipping explicit stop")
		} else if err := l.ensureServiceDead(ctx); err != nil {
			return err
		}
	case ModeUpgrade:
		if err := l.upgradePackage(ctx); err != nil {
			return err
		}
	}

	// Start and rejoin only apply when the service went down at some
	// point while processing this node.
	if l.stopped {
		if err := l.startService(ctx); err != nil {
			return err
		}
		if err := l.waitRejoin(ctx); err != nil {
			return err
		}
	}

	if err := l.allocation.Enable(ctx); err != nil {
		return err
	}
	l.enter(ctx, StateAllocationEnabled)

	// Do not hand control back before the cluster has recovered.
	return l.health.WaitForGreen(ctx)
}

// runHighstate applies the desired-state configuration, treating any
// failed state as fatal whether or not the run restarted the service
func (l *lifecycle) runHighstate(ctx context.Context) error {
	contextLogger := log.FromContext(ctx)
	contextLogger.Info("Running a highstate")

	report, err := l.exec.RunHighstate(ctx, l.node.Name, l.config.ServiceName)
	if err != nil {
		return &HighstateError{Node: l.node.Name, Err: err}
	}
	if !report.Succeeded() {
		return &HighstateError{Node: l.node.Name, FailedStates: report.FailedStates}
	}
	if report.ServiceChanged {
		contextLogger.Info("Highstate restarted the service")
		l.stopped = true
	}

	l.enter(ctx, StateHighstated)
	return nil
}

// upgradePackage performs the package side of an upgrade: hold
// override handling, availability check, and the stop/install path
// when an upgrade is actually pending
func (l *lifecycle) upgradePackage(ctx context.Context) error {
	contextLogger := log.FromContext(ctx)
	pkg := l.config.PackageName

	// A held package reports no available upgrade, so an override
	// must be released before the check, and restored right after
	// the check and install path regardless of what happened there.
	hold := l.config.holdOverride()
	if hold != nil {
		contextLogger.Info("Releasing package hold mark before the upgrade check", "package", pkg)
		if err := l.exec.UnholdPackage(ctx, l.node.Name, pkg); err != nil {
			return fmt.Errorf("while releasing hold mark on node %v: %w", l.node.Name, err)
		}
		defer l.restoreHold(ctx, *hold)
	} else if held, err := l.exec.PackageHeld(ctx, l.node.Name, pkg); err != nil {
		contextLogger.Warning("Could not read package hold mark", "error", err.Error())
	} else if held {
		contextLogger.Warning(
			"Package is held and no hold override was given, the upgrade may not be applied",
			"package", pkg)
	}

	available, err := l.exec.PackageUpgradeAvailable(ctx, l.node.Name, pkg)
	if err != nil {
		return fmt.Errorf("while checking package upgrade availability on node %v: %w", l.node.Name, err)
	}
	if !available {
		contextLogger.Info("No package upgrade available, node stays up", "package", pkg)
		return nil
	}

	// Stop before installing: an in-place upgrade can leave a zombie
	// process the init system no longer controls.
	if err := l.ensureServiceDead(ctx); err != nil {
		return err
	}

	contextLogger.Info("Installing package upgrade", "package", pkg)
	if _, err := l.exec.InstallPackage(ctx, l.node.Name, pkg); err != nil {
		return fmt.Errorf("while installing package on node %v: %w", l.node.Name, err)
	}

	return nil
}

// restoreHold re-applies the held/unheld value implied by the
// operator's override. A failure here is not fatal to the session
// but must not go unnoticed.
func (l *lifecycle) restoreHold(ctx context.Context, hold bool) {
	contextLogger := log.FromContext(ctx)

	var err error
	if hold {
		contextLogger.Info("Setting hold mark on package", "package", l.config.PackageName)
		err = l.exec.HoldPackage(ctx, l.node.Name, l.config.PackageName)
	} else {
		contextLogger.Info("Removing hold mark from package", "package", l.config.PackageName)
		err = l.exec.UnholdPackage(ctx, l.node.Name, l.config.PackageName)
	}
	if err != nil {
		contextLogger.Error(err, "Could not restore package hold mark",
			"package", l.config.PackageName, "hold", hold)
	}
}

// ensureServiceDead stops the service and makes sure it is dead,
// escalating to a forced termination exactly once if the regular
// stop did not take effect within the death timeout
func (l *lifecycle) ensureServiceDead(ctx context.Context) error {
	contextLogger := log.FromContext(ctx)

	l.enter(ctx, StateStopping)
	contextLogger.Info("Stopping service", "service", l.config.ServiceName)
	if err := l.exec.StopService(ctx, l.node.Name, l.config.ServiceName); err != nil {
		return fmt.Errorf("while stopping service on node %v: %w", l.node.Name, err)
	}
	l.stopped = true

	l.enter(ctx, StateWaitingDeath)
	dead, err := l.waitServiceStatus(ctx, false, l.config.DeathTimeout)
	if err != nil {
		return err
	}
	if dead {
		return nil
	}

	contextLogger.Warning("Timeout waiting for the service to die, escalating to forced termination")
	l.enter(ctx, StateEscalating)
	if err := l.exec.ForceKill(ctx, l.node.Name); err != nil {
		contextLogger.Warning("Forced termination returned an error", "error", err.Error())
	}

	l.enter(ctx, StateWaitingDeathRetry)
	dead, err = l.waitServiceStatus(ctx, false, l.config.DeathTimeout)
	if err != nil {
		return err
	}
	if !dead {
		return &ShutdownTimeoutError{Node: l.node.Name}
	}
	return nil
}

// startService brings the service back up unless the highstate or
// the package install already did
func (l *lifecycle) startService(ctx context.Context) error {
	contextLogger := log.FromContext(ctx)

	running, err := l.exec.ServiceStatus(ctx, l.node.Name, l.config.ServiceName)
	if err != nil {
		contextLogger.Warning("Could not read service status before start", "error", err.Error())
	}
	if running {
		contextLogger.Info("Service already running")
		return nil
	}

	l.enter(ctx, StateStarting)
	contextLogger.Info("Starting service", "service", l.config.ServiceName)
	if err := l.exec.StartService(ctx, l.node.Name, l.config.ServiceName); err != nil {
		return fmt.Errorf("while starting service on node %v: %w", l.node.Name, err)
	}

	up, err := l.waitServiceStatus(ctx, true, l.config.StartTimeout)
	if err != nil {
		return err
	}
	if !up {
		return fmt.Errorf("service on node %v did not report running within %v",
			l.node.Name, l.config.StartTimeout)
	}
	return nil
}

// waitServiceStatus polls the service status until it matches want,
// reporting false on timeout. A minion that does not answer is never
// taken as matching either status.
func (l *lifecycle) waitServiceStatus(ctx context.Context, want bool, timeout time.Duration) (bool, error) {
	contextLogger := log.FromContext(ctx)

	condition := func(ctx context.Context) (bool, error) {
		running, err := l.exec.ServiceStatus(ctx, l.node.Name, l.config.ServiceName)
		if err != nil {
			contextLogger.Warning("Could not read service status", "error", err.Error())
			return false, nil
		}
		return running == want, nil
	}

	err := wait.PollUntilContextTimeout(ctx, l.config.ServicePollInterval, timeout, true, condition)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, nil
	}
	return true, nil
}

// waitRejoin waits until the node is back in the cluster with an
// uptime fresh enough to prove this is the start we just triggered
// and not a stale membership entry
func (l *lifecycle) waitRejoin(ctx context.Context) error {
	contextLogger := log.FromContext(ctx)

	l.enter(ctx, StateWaitingRejoin)
	preUptime := l.node.Uptime
	contextLogger.Info("Waiting for the node to rejoin",
		"freshnessWindow", l.config.RejoinWindow, "uptimeBefore", preUptime)

	condition := func(ctx context.Context) (bool, error) {
		fresh, err := refreshNode(ctx, l.admin, l.node.Name)
		if err != nil {
			contextLogger.Warning("Could not read node state", "error", err.Error())
			return false, nil
		}
		if fresh == nil {
			return false, nil
		}
		if fresh.Uptime <= 0 {
			contextLogger.Warning("Node is back but reports no uptime")
			return false, nil
		}
		if fresh.Uptime > l.config.RejoinWindow {
			contextLogger.Debug("Node present but uptime is outside the freshness window",
				"uptime", fresh.Uptime)
			return false, nil
		}
		if preUptime > 0 && fresh.Uptime > preUptime {
			contextLogger.Debug("Node present but uptime predates the restart",
				"uptime", fresh.Uptime)
			return false, nil
		}
		contextLogger.Info("Node rejoined", "uptime", fresh.Uptime)
		return true, nil
	}

	err := wait.PollUntilContextTimeout(ctx, l.config.ClusterPollInterval, l.config.RejoinTimeout, true, condition)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &RejoinTimeoutError{Node: l.node.Name}
	}
	return nil
}

// allocationLeftDisabled reports whether a run ended with shard
// allocation disabled, which is the one state the operator must
// never miss
func allocationLeftDisabled(timeline []TimelineEntry) bool {
	disabled := false
	for _, entry := range timeline {
		switch entry.State {
		case StateAllocationDisabled:
			disabled = true
		case StateAllocationEnabled:
			disabled = false
		}
	}
	return disabled
}
