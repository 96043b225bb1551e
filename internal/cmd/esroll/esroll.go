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

// Package esroll holds the flags and wiring shared by the roll
// subcommands: cluster and salt-api connection options, the optional
// configuration file overlay, and the session report rendering
package esroll

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/cheynewallace/tabby"
	"github.com/logrusorgru/aurora/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/esroll/esroll/pkg/elastic"
	"github.com/esroll/esroll/pkg/executor"
	"github.com/esroll/esroll/pkg/roll"
)

// Flags contains the connection options shared by every subcommand
// that talks to the cluster
type Flags struct {
	configFile string

	// Hosts is the seed address set used to reach the cluster
	Hosts []string

	// ESTimeout bounds a single cluster administrative request
	ESTimeout time.Duration

	// Salt configures the salt-api connection
	Salt executor.SaltConfig

	// ServiceName and PackageName name the managed service and package
	ServiceName string
	PackageName string

	// HealthTimeout bounds every wait for green health, zero meaning
	// unbounded
	HealthTimeout time.Duration
}

// fileConfig is the YAML layout of the optional configuration file.
// Command line flags win over file values.
type fileConfig struct {
	Hosts       []string            `yaml:"hosts"`
	ESTimeout   time.Duration       `yaml:"esTimeout"`
	Salt        executor.SaltConfig `yaml:"salt"`
	ServiceName string              `yaml:"serviceName"`
	PackageName string              `yaml:"packageName"`
}

// AddFlags binds the shared connection flags to a flagset
func (f *Flags) AddFlags(flags *pflag.FlagSet) {
	flags.StringVar(&f.configFile, "config", "",
		"a YAML file carrying defaults for the connection flags")
	flags.StringSliceVar(&f.Hosts, "host", []string{"localhost:9200"},
		"a cluster node address used to discover the topology, repeatable")
	flags.DurationVar(&f.ESTimeout, "es-timeout", elastic.DefaultTimeout,
		"the timeout of a single cluster administrative request")
	flags.StringVar(&f.Salt.Endpoint, "salt-endpoint", "",
		"the base URL of the salt-api server")
	flags.StringVar(&f.Salt.Username, "salt-username", "",
		"the salt-api username")
	flags.StringVar(&f.Salt.Password, "salt-password", "",
		"the salt-api password")
	flags.StringVar(&f.Salt.Eauth, "salt-eauth", "pam",
		"the salt external authentication backend")
	flags.DurationVar(&f.Salt.Timeout, "salt-timeout", 0,
		"the timeout of a single salt-api request (defaults to 10m)")
	flags.StringVar(&f.ServiceName, "service-name", roll.DefaultServiceName,
		"the name of the service unit managed on each node")
	flags.StringVar(&f.PackageName, "package-name", roll.DefaultPackageName,
		"the name of the package upgraded on each node")
	flags.DurationVar(&f.HealthTimeout, "health-timeout", 0,
		"bound every wait for green cluster health (0 waits forever)")
}

// Complete overlays the configuration file, if any, under the flags
// the operator did not set explicitly on the command line
func (f *Flags) Complete(cmd *cobra.Command) error {
	if f.configFile == "" {
		return nil
	}

	content, err := os.ReadFile(f.configFile) //#nosec
	if err != nil {
		return fmt.Errorf("cannot read configuration file %v: %w", f.configFile, err)
	}
	var file fileConfig
	if err := yaml.Unmarshal(content, &file); err != nil {
		return fmt.Errorf("cannot parse configuration file %v: %w", f.configFile, err)
	}

	flags := cmd.Flags()
	if !flags.Changed("host") && len(file.Hosts) > 0 {
		f.Hosts = file.Hosts
	}
	if !flags.Changed("es-timeout") && file.ESTimeout != 0 {
		f.ESTimeout = file.ESTimeout
	}
	if !flags.Changed("salt-endpoint") && file.Salt.Endpoint != "" {
		f.Salt.Endpoint = file.Salt.Endpoint
	}
	if !flags.Changed("salt-username") && file.Salt.Username != "" {
		f.Salt.Username = file.Salt.Username
	}
	if !flags.Changed("salt-password") && file.Salt.Password != "" {
		f.Salt.Password = file.Salt.Password
	}
	if !flags.Changed("salt-eauth") && file.Salt.Eauth != "" {
		f.Salt.Eauth = file.Salt.Eauth
	}
	if !flags.Changed("salt-timeout") && file.Salt.Timeout != 0 {
		f.Salt.Timeout = file.Salt.Timeout
	}
	if !flags.Changed("service-name") && file.ServiceName != "" {
		f.ServiceName = file.ServiceName
	}
	if !flags.Changed("package-name") && file.PackageName != "" {
		f.PackageName = file.PackageName
	}
	return nil
}

// Connect builds the administrative client factory handed to
// topology discovery
func (f *Flags) Connect() roll.ConnectFunc {
	timeout := f.ESTimeout
	return func(hosts []string) roll.ClusterAdmin {
		return elastic.NewClient(hosts, timeout)
	}
}

// Client builds an administrative client pointed at the seed hosts
func (f *Flags) Client() *elastic.Client {
	return elastic.NewClient(f.Hosts, f.ESTimeout)
}

// Executor builds the remote execution channel
func (f *Flags) Executor() (executor.Executor, error) {
	if f.Salt.Endpoint == "" {
		return nil, fmt.Errorf("a salt-api endpoint is required, set --salt-endpoint or the configuration file")
	}
	return executor.NewSaltExecutor(f.Salt), nil
}

// RunSession wires a session from the shared flags, runs it, and
// renders the report. The session report is printed even when the
// session aborted, because the partial outcome is exactly what the
// operator needs in that case.
func (f *Flags) RunSession(ctx context.Context, config roll.Config) error {
	exec, err := f.Executor()
	if err != nil {
		return err
	}

	orchestrator := &roll.Orchestrator{
		Config:   config,
		Seed:     f.Hosts,
		Connect:  f.Connect(),
		Executor: exec,
	}

	result, runErr := orchestrator.Run(ctx)
	if result != nil {
		PrintResult(result)
	}
	return runErr
}

// PrintResult renders the per-node session report on standard output
func PrintResult(result *roll.Result) {
	fmt.Printf("\nSession %v (%v): %v nodes visited\n\n",
		result.SessionID, result.Mode, len(result.Outcomes))

	t := tabby.New()
	t.AddHeader("NODE", "ROLE", "STATUS", "REASON", "DURATION")
	for _, outcome := range result.Outcomes {
		reason := outcome.Reason
		if outcome.Err != nil {
			reason = outcome.Err.Error()
		}
		t.AddLine(
			outcome.Node.Name,
			outcome.Node.Role(),
			statusCell(outcome.Status),
			reason,
			outcome.Finished.Sub(outcome.Started).Round(time.Second))
	}
	t.Print()

	if result.Aborted {
		fmt.Println(aurora.Red(fmt.Sprintf("\nSession aborted: %v", result.AbortErr)))
	}
	if result.AllocationDisabled {
		fmt.Println(aurora.Red("Shard allocation may still be disabled, re-enable it manually").Bold())
	}
}

func statusCell(status roll.OutcomeStatus) aurora.Value {
	switch status {
	case roll.StatusCompleted:
		return aurora.Green(string(status))
	case roll.StatusFailed:
		return aurora.Red(string(status))
	default:
		return aurora.Yellow(string(status))
	}
}
