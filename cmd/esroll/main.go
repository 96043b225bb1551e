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

// The esroll command rolls a restart or a version upgrade through a
// search cluster, one node at a time, without losing availability
package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/esroll/esroll/internal/cmd/esroll/restart"
	"github.com/esroll/esroll/internal/cmd/esroll/status"
	"github.com/esroll/esroll/internal/cmd/esroll/upgrade"
	"github.com/esroll/esroll/internal/cmd/versions"
	"github.com/esroll/esroll/pkg/log"
)

func main() {
	logFlags := &log.Flags{}

	cmd := &cobra.Command{
		Use:           "esroll",
		Short:         "Rolls restarts and upgrades through a search cluster, one node at a time",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return logFlags.ConfigureLogging()
		},
	}

	logFlags.AddFlags(cmd.PersistentFlags())

	cmd.AddCommand(restart.NewCmd())
	cmd.AddCommand(upgrade.NewCmd())
	cmd.AddCommand(status.NewCmd())
	cmd.AddCommand(versions.NewCmd())

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
