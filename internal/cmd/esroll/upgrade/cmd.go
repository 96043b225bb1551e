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

// Package upgrade builds the upgrade subcommand
package upgrade

import (
	"github.com/spf13/cobra"

	"github.com/esroll/esroll/internal/cmd/esroll"
	"github.com/esroll/esroll/pkg/roll"
)

// NewCmd builds the command rolling a version upgrade through the
// cluster
func NewCmd() *cobra.Command {
	var flags esroll.Flags
	var masters, datas, hold, unhold bool
	var minimumVersion string

	cmd := &cobra.Command{
		Use:   "upgrade [seed-address]",
		Args:  cobra.MaximumNArgs(1),
		Short: "Rolls a version upgrade through the cluster, one node at a time",
		Long: "Upgrades the selected nodes one at a time, masters first, " +
			"skipping nodes already at or above the minimum version. Each " +
			"visited node gets a highstate, the package upgrade when one " +
			"is available, and a restart, with shard allocation disabled " +
			"around the outage and a wait for green health in between.",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return flags.Complete(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				flags.Hosts = args
			}
			config := roll.Config{
				Mode:           roll.ModeUpgrade,
				RollMasters:    masters,
				RollDatas:      datas,
				MinimumVersion: minimumVersion,
				Hold:           hold,
				Unhold:         unhold,
				ServiceName:    flags.ServiceName,
				PackageName:    flags.PackageName,
				HealthTimeout:  flags.HealthTimeout,
			}
			return flags.RunSession(cmd.Context(), config)
		},
	}

	flags.AddFlags(cmd.Flags())
	cmd.Flags().BoolVar(&masters, "masters", false,
		"include master nodes in the roll")
	cmd.Flags().BoolVar(&datas, "datas", true,
		"include data nodes in the roll")
	cmd.Flags().StringVar(&minimumVersion, "minimum-version", "1.7.1",
		"upgrade nodes running a version below this one")
	cmd.Flags().BoolVar(&hold, "hold", false,
		"re-mark the package as held once upgraded")
	cmd.Flags().BoolVar(&unhold, "unhold", false,
		"leave the package unheld once upgraded")

	return cmd
}
