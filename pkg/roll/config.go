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
	"time"

	"github.com/blang/semver"
)

// Mode selects the per-node policy of a roll session
type Mode string

// The two roll modes
const (
	ModeRestart Mode = "restart"
	ModeUpgrade Mode = "upgrade"
)

// Default timing values, matching the observed behavior of the
// production roll procedure
const (
	DefaultKillAtHeap          = 85
	DefaultServiceName         = "elasticsearch"
	DefaultPackageName         = "elasticsearch"
	DefaultClusterPollInterval = 5 * time.Second
	DefaultServicePollInterval = 10 * time.Second
	DefaultDeathTimeout        = 120 * time.Second
	DefaultStartTimeout        = 60 * time.Second
	DefaultRejoinTimeout       = 120 * time.Second
	DefaultRejoinWindow        = 120 * time.Second
)

// Config is the operator intent for one roll session. It is
// validated at construction and immutable afterwards.
type Config struct {
	// Mode selects the per-node policy
	Mode Mode

	// RollMasters includes master nodes in the roll
	RollMasters bool

	// RollDatas includes data nodes in the roll
	RollDatas bool

	// KillAtHeap is the heap-used percentage above which a node is
	// restarted in restart mode. Use -1 to roll every node.
	KillAtHeap int

	// MinimumVersion is the version below which a node is upgraded
	// in upgrade mode
	MinimumVersion string

	// Highstate applies a highstate before restarting each node in
	// restart mode. Upgrade mode always highstates.
	Highstate bool

	// Hold re-marks the package as held once upgraded, Unhold leaves
	// it unheld. At most one of the two may be set.
	Hold   bool
	Unhold bool

	// ServiceName is the service unit managed on each node
	ServiceName string

	// PackageName is the package upgraded on each node
	PackageName string

	// ClusterPollInterval paces the cluster-side waits (health, rejoin)
	ClusterPollInterval time.Duration

	// ServicePollInterval paces the service-side waits (death, start)
	ServicePollInterval time.Duration

	// DeathTimeout bounds each of the two waits for the service to
	// report dead
	DeathTimeout time.Duration

	// StartTimeout bounds the wait for a started service to report
	// running
	StartTimeout time.Duration

	// RejoinTimeout bounds the wait for a restarted node to rejoin
	RejoinTimeout time.Duration

	// RejoinWindow is how fresh the rejoined node's uptime must be
	RejoinWindow time.Duration

	// HealthTimeout bounds every wait for green health. Zero means
	// unbounded, which is the conservative default: proceeding while
	// not green risks data loss on a secondary failure.
	HealthTimeout time.Duration
}

// WithDefaults returns a copy of the configuration with every unset
// timing and naming field filled in
func (c Config) WithDefaults() Config {
	if c.ServiceName == "" {
		c.ServiceName = DefaultServiceName
	}
	if c.PackageName == "" {
		c.PackageName = DefaultPackageName
	}
	if c.ClusterPollInterval == 0 {
		c.ClusterPollInterval = DefaultClusterPollInterval
	}
	if c.ServicePollInterval == 0 {
		c.ServicePollInterval = DefaultServicePollInterval
	}
	if c.DeathTimeout == 0 {
		c.DeathTimeout = DefaultDeathTimeout
	}
	if c.StartTimeout == 0 {
		c.StartTimeout = DefaultStartTimeout
	}
	if c.RejoinTimeout == 0 {
		c.RejoinTimeout = DefaultRejoinTimeout
	}
	if c.RejoinWindow == 0 {
		c.RejoinWindow = DefaultRejoinWindow
	}
	return c
}

// Validate checks the operator intent for contradictions. It runs
// before any cluster contact.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeRestart, ModeUpgrade:
	default:
		return &ConfigurationError{Reason: "unknown mode " + string(c.Mode)}
	}

	if c.Hold && c.Unhold {
		return &ConfigurationError{Reason: "hold and unhold cannot be combined"}
	}

	if !c.RollMasters && !c.RollDatas {
		return &ConfigurationError{Reason: "at least one of masters and datas must be included"}
	}

	switch c.Mode {
	case ModeRestart:
		if c.KillAtHeap < -1 || c.KillAtHeap > 100 {
			return &ConfigurationError{Reason: "kill-at-heap must be a percentage, or -1 to roll every node"}
		}
		if c.Hold || c.Unhold {
			return &ConfigurationError{Reason: "hold and unhold only apply to upgrades"}
		}
	case ModeUpgrade:
		if c.MinimumVersion == "" {
			return &ConfigurationError{Reason: "upgrades require a minimum version"}
		}
		if _, err := semver.ParseTolerant(c.MinimumVersion); err != nil {
			return &ConfigurationError{Reason: "cannot parse minimum version " + c.MinimumVersion}
		}
	}

	return nil
}

// holdOverride maps the hold flags to the package-hold override:
// nil when no override was configured, otherwise the held/unheld
// value to restore after the package check
func (c *Config) holdOverride() *bool {
	if c.Hold {
		hold := true
		return &hold
	}
	if c.Unhold {
		hold := false
		return &hold
	}
	return nil
}
