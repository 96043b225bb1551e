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

// Package restart builds the restart subcommand
package restart

import (
	"github.com/spf13/cobra"

	"github.com/esroll/esroll/internal/cmd/esroll"
	"github.com/esroll/esroll/pkg/roll"
)

// NewCmd builds the command rolling a restart through the cluster
func NewCmd() *cobra.Command {
	var flags esroll.Flags
	var masters, datas, highstate bool
	var killAtHeap int

	cmd := &cobra.Command{
		Use:   "restart [seed-address]",
		Args:  cobra.MaximumNArgs(1),
		Short: "Rolls a restart through the cluster, one node at a time",
		Long: "Restarts the selected nodes one at a time, masters first, " +
			"skipping nodes whose heap usage is below the threshold. " +
			"Shard allocation is disabled around each restart and the " +
			"command waits for green health before moving on.",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return flags.Complete(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				flags.Hosts = args
			}
			config := roll.Config{
				Mode:          roll.ModeRestart,
				RollMasters:   masters,
				RollDatas:     datas,
				KillAtHeap:    killAtHeap,
				Highstate:     highstate,
				ServiceName:   flags.ServiceName,
				PackageName:   flags.PackageName,
				HealthTimeout: flags.HealthTimeout,
			}
			return flags.RunSession(cmd.Context(), config)
		},
	}

	flags.AddFlags(cmd.Flags())
	cmd.Flags().BoolVar(&masters, "masters", false,
		"include master nodes in the roll")
	cmd.Flags().BoolVar(&datas, "datas", true,
		"include data nodes in the roll")
	cmd.Flags().IntVar(&killAtHeap, "kill-at-heap", roll.DefaultKillAtHeap,
		"restart nodes whose heap usage exceeds this percentage, -1 restarts every node")
	cmd.Flags().BoolVar(&highstate, "highstate", false,
		"apply a highstate before restarting each node")

	return cmd
}
