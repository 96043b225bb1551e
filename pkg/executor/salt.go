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

package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"

	"github.com/esroll/esroll/pkg/log"
)

// saltDefaultTimeout bounds a single salt-api request. Highstates
// can legitimately run for minutes, hence the generous value.
const saltDefaultTimeout = 10 * time.Minute

// SaltConfig is the connection configuration of the salt-api endpoint
type SaltConfig struct {
	// Endpoint is the base URL of the salt-api server
	Endpoint string `yaml:"endpoint"`

	// Username and Password authenticate against salt-api
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// Eauth is the salt external authentication backend, pam by default
	Eauth string `yaml:"eauth"`

	// Timeout bounds a single salt-api request
	Timeout time.Duration `yaml:"timeout"`
}

// SaltExecutor implements Executor through the salt-api REST
// endpoint, targeting minions by the cluster node name
type SaltExecutor struct {
	config SaltConfig
	client *http.Client
}

// NewSaltExecutor creates a SaltExecutor from its configuration
func NewSaltExecutor(config SaltConfig) *SaltExecutor {
	if config.Eauth == "" {
		config.Eauth = "pam"
	}
	if config.Timeout == 0 {
		config.Timeout = saltDefaultTimeout
	}
	return &SaltExecutor{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
	}
}

// saltRequest is the wire format of a salt-api /run invocation
type saltRequest struct {
	Client   string   `json:"client"`
	Target   string   `json:"tgt"`
	Function string   `json:"fun"`
	Args     []string `json:"arg,omitempty"`
	Username string   `json:"username"`
	Password string   `json:"password"`
	Eauth    string   `json:"eauth"`
}

// saltResponse is the wire format of a salt-api reply: one map per
// issued command, keyed by minion id
type saltResponse struct {
	Return []map[string]json.RawMessage `json:"return"`
}

// saltStateResult is the wire format of a single state entry in a
// highstate or package-mark reply
type saltStateResult struct {
	Result  *bool                  `json:"result"`
	Comment string                 `json:"comment"`
	Changes map[string]interface{} `json:"changes"`
}

// run issues a salt function against a single minion and decodes the
// minion's return value into out
func (s *SaltExecutor) run(ctx context.Context, node, fun string, args []string, out interface{}) error {
	contextLogger := log.FromContext(ctx)

	payload, err := json.Marshal([]saltRequest{{
		Client:   "local",
		Target:   node,
		Function: fun,
		Args:     args,
		Username: s.config.Username,
		Password: s.config.Password,
		Eauth:    s.config.Eauth,
	}})
	if err != nil {
		return fmt.Errorf("while encoding salt request: %w", err)
	}

	url := strings.TrimSuffix(s.config.Endpoint, "/") + "/run"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("while building salt request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("while executing salt function %v on %v: %w", fun, node, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			contextLogger.Error(err, "while closing salt response body")
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("while reading salt response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("salt-api returned status code %v with body: %s", resp.StatusCode, body)
	}

	var reply saltResponse
	if err := json.Unmarshal(body, &reply); err != nil {
		return fmt.Errorf("while decoding salt response, body: %s err: %w", body, err)
	}
	if len(reply.Return) != 1 {
		return fmt.Errorf("unexpected salt return count %v for function %v", len(reply.Return), fun)
	}

	minionReturn, ok := reply.Return[0][node]
	if !ok {
		return fmt.Errorf("no return from minion %v for function %v", node, fun)
	}

	contextLogger.Trace("salt return", "node", node, "fun", fun, "return", string(minionReturn))

	if out != nil {
		if err := json.Unmarshal(minionReturn, out); err != nil {
			return fmt.Errorf("while decoding return of %v from %v: %w", fun, node, err)
		}
	}
	return nil
}

// Ping verifies connectivity to the minion
func (s *SaltExecutor) Ping(ctx context.Context, node string) (bool, error) {
	var alive bool
	if err := s.run(ctx, node, "test.ping", nil, &alive); err != nil {
		return false, err
	}
	return alive, nil
}

// RunHighstate applies the full desired-state configuration to the
// node. The reply is scanned for failed states and for changes on
// the managed service unit.
func (s *SaltExecutor) RunHighstate(ctx context.Context, node, service string) (*HighstateReport, error) {
	var states map[string]saltStateResult
	if err := s.run(ctx, node, "state.highstate", nil, &states); err != nil {
		return nil, err
	}

	report := &HighstateReport{}
	servicePrefix := fmt.Sprintf("service_|-%s", service)
	for id, state := range states {
		if state.Result != nil && !*state.Result {
			report.FailedStates = append(report.FailedStates, id)
		}
		if strings.HasPrefix(id, servicePrefix) && len(state.Changes) > 0 {
			report.ServiceChanged = true
		}
	}
	return report, nil
}

// ServiceStatus reports whether the service is running on the node
func (s *SaltExecutor) ServiceStatus(ctx context.Context, node, service string) (bool, error) {
	var running bool
	if err := s.run(ctx, node, "service.status", []string{service}, &running); err != nil {
		return false, err
	}
	return running, nil
}

// StartService starts the service on the node
func (s *SaltExecutor) StartService(ctx context.Context, node, service string) error {
	var started bool
	if err := s.run(ctx, node, "service.start", []string{service}, &started); err != nil {
		return err
	}
	if !started {
		return fmt.Errorf("salt reported failure starting service %v on %v", service, node)
	}
	return nil
}

// StopService stops the service on the node
func (s *SaltExecutor) StopService(ctx context.Context, node, service string) error {
	var stopped bool
	if err := s.run(ctx, node, "service.stop", []string{service}, &stopped); err != nil {
		return err
	}
	if !stopped {
		return fmt.Errorf("salt reported failure stopping service %v on %v", service, node)
	}
	return nil
}

// ForceKill forcefully terminates the node's java processes. Upgrades
// can leave a zombie process the init system no longer controls, so
// this reaches for killall rather than the service unit.
func (s *SaltExecutor) ForceKill(ctx context.Context, node string) error {
	command := shellquote.Join("killall", "java")
	return s.run(ctx, node, "cmd.run", []string{command}, nil)
}

// PackageUpgradeAvailable reports whether a newer version of the
// package is available to the node's package manager
func (s *SaltExecutor) PackageUpgradeAvailable(ctx context.Context, node, pkg string) (bool, error) {
	var available string
	if err := s.run(ctx, node, "pkg.available_version", []string{pkg}, &available); err != nil {
		return false, err
	}
	return available != "", nil
}

// InstallPackage installs the latest available version of the
// package, reporting whether the installed version changed
func (s *SaltExecutor) InstallPackage(ctx context.Context, node, pkg string) (bool, error) {
	var changes map[string]json.RawMessage
	if err := s.run(ctx, node, "pkg.install", []string{pkg}, &changes); err != nil {
		return false, err
	}
	_, changed := changes[pkg]
	return changed, nil
}

// PackageHeld reports whether the package carries the held mark.
// This works on Debian based systems only.
func (s *SaltExecutor) PackageHeld(ctx context.Context, node, pkg string) (bool, error) {
	command := shellquote.Join("apt-mark", "showhold", pkg)
	var output string
	if err := s.run(ctx, node, "cmd.run", []string{command}, &output); err != nil {
		return false, err
	}
	for _, line := range strings.Split(output, "\n") {
		if strings.TrimSpace(line) == pkg {
			return true, nil
		}
	}
	return false, nil
}

// HoldPackage marks the package as held on the node
func (s *SaltExecutor) HoldPackage(ctx context.Context, node, pkg string) error {
	return s.packageMark(ctx, node, "pkg.hold", pkg)
}

// UnholdPackage removes the held mark from the package on the node
func (s *SaltExecutor) UnholdPackage(ctx context.Context, node, pkg string) error {
	return s.packageMark(ctx, node, "pkg.unhold", pkg)
}

func (s *SaltExecutor) packageMark(ctx context.Context, node, fun, pkg string) error {
	var states map[string]saltStateResult
	if err := s.run(ctx, node, fun, []string{pkg}, &states); err != nil {
		return err
	}
	for id, state := range states {
		if state.Result != nil && !*state.Result {
			return fmt.Errorf("%v of %v failed on %v: %v", fun, id, node, state.Comment)
		}
	}
	return nil
}
