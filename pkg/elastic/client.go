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

// Package elastic implements the typed client for the cluster
// administrative HTTP interface: health, node inventory and
// shard allocation settings.
package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/esroll/esroll/pkg/log"
)

// DefaultTimeout is the per-request timeout applied when the
// operator does not configure one
const DefaultTimeout = 30 * time.Second

// Client talks to the administrative interface of a search cluster
// through one or more of its nodes. Every request is attempted
// against each configured host in turn, so that the client does not
// depend on any single node being up.
type Client struct {
	hosts  []string
	client *http.Client
}

// NewClient creates a client pointed at the given hosts
func NewClient(hosts []string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		hosts:  hosts,
		client: &http.Client{Timeout: timeout},
	}
}

// WithHosts returns a client identical to this one but pointed at a
// different host set. Used after discovery to connect to every
// master node rather than just the seed.
func (c *Client) WithHosts(hosts []string) *Client {
	return &Client{
		hosts:  hosts,
		client: c.client,
	}
}

// Hosts returns the host set this client is pointed at
func (c *Client) Hosts() []string {
	return c.hosts
}

// Health reports the cluster-wide health status
func (c *Client) Health(ctx context.Context) (HealthStatus, error) {
	var health healthResponse
	if err := c.get(ctx, "/_cluster/health", &health); err != nil {
		return "", fmt.Errorf("while getting cluster health: %w", err)
	}
	return health.Status, nil
}

// Nodes retrieves the full node inventory with role, version, heap
// and uptime attributes populated. A node missing from the stats
// reply is still returned, with a warning, as the original interface
// tolerates partially unreachable nodes.
func (c *Client) Nodes(ctx context.Context) ([]NodeInfo, error) {
	contextLogger := log.FromContext(ctx)

	var info nodesInfoResponse
	if err := c.get(ctx, "/_nodes/settings", &info); err != nil {
		return nil, fmt.Errorf("while getting node info: %w", err)
	}

	var stats nodesStatsResponse
	if err := c.get(ctx, "/_nodes/stats/jvm", &stats); err != nil {
		return nil, fmt.Errorf("while getting node stats: %w", err)
	}

	ids := make([]string, 0, len(info.Nodes))
	for id := range info.Nodes {
		ids = append(ids, id)
	}
	// The wire format is a map; order it so that two discoveries of
	// the same topology always produce the same inventory order.
	sort.Strings(ids)

	result := make([]NodeInfo, 0, len(ids))
	for _, id := range ids {
		entry := info.Nodes[id]

		address, err := entry.publishAddress()
		if err != nil {
			return nil, err
		}

		node := NodeInfo{
			ID:      id,
			Name:    entry.Name,
			Address: address,
			Version: entry.Version,
			Master:  hasRole(entry.Settings.Node.Master),
			Data:    hasRole(entry.Settings.Node.Data),
		}

		if statsEntry, ok := stats.Nodes[id]; ok {
			node.HeapUsedPercent = statsEntry.JVM.Mem.HeapUsedPercent
			node.Uptime = time.Duration(statsEntry.JVM.UptimeInMillis) * time.Millisecond
		} else {
			contextLogger.Warning("Node missing from stats reply", "node", entry.Name)
		}

		result = append(result, node)
	}

	return result, nil
}

// Node retrieves a fresh snapshot of a single node by name, or nil
// when no node with that name is currently part of the cluster
func (c *Client) Node(ctx context.Context, name string) (*NodeInfo, error) {
	nodes, err := c.Nodes(ctx)
	if err != nil {
		return nil, err
	}
	for idx := range nodes {
		if nodes[idx].Name == name {
			return &nodes[idx], nil
		}
	}
	return nil, nil
}

// SetAllocation enables or disables cluster shard allocation
// persistently. The call fails when the cluster does not
// acknowledge the settings change.
func (c *Client) SetAllocation(ctx context.Context, enabled bool) error {
	settings := map[string]map[string]string{
		"persistent": {
			"cluster.routing.allocation.disable_allocation": fmt.Sprintf("%t", !enabled),
		},
	}

	var ack ackResponse
	if err := c.put(ctx, "/_cluster/settings", settings, &ack); err != nil {
		return fmt.Errorf("while updating allocation settings: %w", err)
	}
	if !ack.Acknowledged {
		return fmt.Errorf("allocation settings change was not acknowledged")
	}
	return nil
}

// get executes a GET against the first responding host
func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	return c.execute(ctx, http.MethodGet, path, nil, out)
}

// put executes a PUT with a JSON body against the first responding host
func (c *Client) put(ctx context.Context, path string, body interface{}, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("while encoding request body: %w", err)
	}
	return c.execute(ctx, http.MethodPut, path, payload, out)
}

// execute tries the request against every configured host until one
// of them answers, decoding the JSON reply into out
func (c *Client) execute(ctx context.Context, method, path string, body []byte, out interface{}) error {
	contextLogger := log.FromContext(ctx)

	if len(c.hosts) == 0 {
		return fmt.Errorf("no hosts configured")
	}

	var lastErr error
	for _, host := range c.hosts {
		url := fmt.Sprintf("http://%s%s", host, path)

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return fmt.Errorf("while building request for %v: %w", url, err)
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.client.Do(req)
		if err != nil {
			contextLogger.Debug("Host did not answer, trying the next one",
				"host", host, "error", err.Error())
			lastErr = err
			continue
		}

		payload, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("while reading the response body: %w", err)
			continue
		}

		if resp.StatusCode >= http.StatusBadRequest {
			return fmt.Errorf("%v %v: status code %v with body: %s",
				method, path, resp.StatusCode, payload)
		}

		if err := json.Unmarshal(payload, out); err != nil {
			return fmt.Errorf("while decoding the response body: %w", err)
		}
		return nil
	}

	return fmt.Errorf("no configured host answered: %w", lastErr)
}
