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

package elastic

import (
	"fmt"
	"regexp"
	"time"
)

// HealthStatus is the cluster-wide shard allocation health level
type HealthStatus string

// The cluster health levels. Green means every shard copy is
// assigned, yellow that at least every primary is assigned, red
// that some primaries are missing.
const (
	HealthGreen  HealthStatus = "green"
	HealthYellow HealthStatus = "yellow"
	HealthRed    HealthStatus = "red"
)

// NodeInfo is the snapshot of a cluster node as reported by the
// administrative interface, merging the node info and node stats
// endpoints
type NodeInfo struct {
	// ID is the cluster-internal node identifier
	ID string

	// Name is the node name, which is also the remote execution target
	Name string

	// Address is the published HTTP address of the node
	Address string

	// Version is the software version the node is running
	Version string

	// Master is true when the node is master-eligible
	Master bool

	// Data is true when the node holds shard data
	Data bool

	// HeapUsedPercent is the percentage of JVM heap in use
	HeapUsedPercent int

	// Uptime is how long the node process has been up, zero when
	// the stats endpoint did not report it
	Uptime time.Duration
}

// healthResponse is the wire format of the cluster health endpoint
type healthResponse struct {
	Status HealthStatus `json:"status"`
}

// ackResponse is the wire format of the settings update reply
type ackResponse struct {
	Acknowledged bool `json:"acknowledged"`
}

// nodesInfoResponse is the wire format of the node info endpoint
type nodesInfoResponse struct {
	Nodes map[string]nodeInfoEntry `json:"nodes"`
}

type nodeInfoEntry struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	HTTPAddress string `json:"http_address"`
	HTTP        struct {
		PublishAddress string `json:"publish_address"`
	} `json:"http"`
	Settings struct {
		Node struct {
			Master string `json:"master"`
			Data   string `json:"data"`
		} `json:"node"`
	} `json:"settings"`
}

// nodesStatsResponse is the wire format of the node stats endpoint
type nodesStatsResponse struct {
	Nodes map[string]nodeStatsEntry `json:"nodes"`
}

type nodeStatsEntry struct {
	Name string `json:"name"`
	JVM  struct {
		UptimeInMillis int64 `json:"uptime_in_millis"`
		Mem            struct {
			HeapUsedPercent int `json:"heap_used_percent"`
		} `json:"mem"`
	} `json:"jvm"`
}

// legacyAddressRegex matches the bracketed publish address format
// used by older cluster versions, e.g. `inet[es-data-1/10.0.0.8:9200]`
var legacyAddressRegex = regexp.MustCompile(`^inet\[(?P<host>[^/]*)/(?P<ip>[^\]]+)]$`)

// publishAddress extracts the plain host:port address of a node
// from whichever of the two known wire formats is present
func (entry nodeInfoEntry) publishAddress() (string, error) {
	if entry.HTTP.PublishAddress != "" {
		return entry.HTTP.PublishAddress, nil
	}

	if entry.HTTPAddress == "" {
		return "", fmt.Errorf("node %v reported no publish address", entry.Name)
	}

	matches := legacyAddressRegex.FindStringSubmatch(entry.HTTPAddress)
	if matches == nil {
		return "", fmt.Errorf("could not parse http address %q of node %v", entry.HTTPAddress, entry.Name)
	}
	// the host part before the slash is optional, the ip:port part
	// after it is always present
	return matches[legacyAddressRegex.SubexpIndex("ip")], nil
}

// hasRole interprets a role attribute from the node settings,
// where an unset attribute means the role is held
func hasRole(value string) bool {
	return value != "false"
}
