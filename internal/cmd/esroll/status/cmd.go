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

// Package status builds the status subcommand
package status

import (
	"fmt"
	"time"

	"github.com/cheynewallace/tabby"
	"github.com/logrusorgru/aurora/v3"
	"github.com/spf13/cobra"

	"github.com/esroll/esroll/internal/cmd/esroll"
	"github.com/esroll/esroll/pkg/elastic"
	"github.com/esroll/esroll/pkg/roll"
)

// NewCmd builds the command printing cluster health and the node
// inventory without touching anything
func NewCmd() *cobra.Command {
	var flags esroll.Flags

	cmd := &cobra.Command{
		Use:   "status [seed-address]",
		Args:  cobra.MaximumNArgs(1),
		Short: "Prints cluster health and the node inventory",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return flags.Complete(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				flags.Hosts = args
			}
			ctx := cmd.Context()
			client := flags.Client()

			health, err := client.Health(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Cluster health: %v\n\n", healthCell(health))

			nodes, err := client.Nodes(ctx)
			if err != nil {
				return err
			}

			t := tabby.New()
			t.AddHeader("NODE", "ROLE", "VERSION", "ADDRESS", "HEAP", "UPTIME")
			for _, info := range nodes {
				node := roll.Node{Master: info.Master, Data: info.Data}
				t.AddLine(
					info.Name,
					node.Role(),
					info.Version,
					info.Address,
					fmt.Sprintf("%d%%", info.HeapUsedPercent),
					info.Uptime.Round(time.Second))
			}
			t.Print()
			return nil
		},
	}

	flags.AddFlags(cmd.Flags())
	return cmd
}

func healthCell(status elastic.HealthStatus) aurora.Value {
	switch status {
	case elastic.HealthGreen:
		return aurora.Green(string(status))
	case elastic.HealthYellow:
		return aurora.Yellow(string(status))
	default:
		return aurora.Red(string(status))
	}
}
