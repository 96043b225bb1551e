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
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

const nodesInfoFixture = `{
  "nodes": {
    "id-data": {
      "name": "data-1",
      "version": "1.5.2",
      "http_address": "inet[es-data-1/10.0.0.3:9200]",
      "settings": {"node": {"master": "false"}}
    },
    "id-master": {
      "name": "master-1",
      "version": "1.7.1",
      "http": {"publish_address": "10.0.0.1:9200"},
      "settings": {"node": {"data": "false"}}
    }
  }
}`

const nodesStatsFixture = `{
  "nodes": {
    "id-data": {
      "name": "data-1",
      "jvm": {"uptime_in_millis": 720000, "mem": {"heap_used_percent": 88}}
    },
    "id-master": {
      "name": "master-1",
      "jvm": {"uptime_in_millis": 360000, "mem": {"heap_used_percent": 40}}
    }
  }
}`

// newFakeCluster serves the administrative endpoints the client
// consumes, recording the settings bodies it receives
func newFakeCluster(settingsBodies *[]string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/_cluster/health":
			_, _ = io.WriteString(w, `{"status": "yellow"}`)
		case r.URL.Path == "/_nodes/settings":
			_, _ = io.WriteString(w, nodesInfoFixture)
		case strings.HasPrefix(r.URL.Path, "/_nodes/stats"):
			_, _ = io.WriteString(w, nodesStatsFixture)
		case r.URL.Path == "/_cluster/settings" && r.Method == http.MethodPut:
			body, _ := io.ReadAll(r.Body)
			if settingsBodies != nil {
				*settingsBodies = append(*settingsBodies, string(body))
			}
			_, _ = io.WriteString(w, `{"acknowledged": true}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

var _ = Describe("Cluster administrative client", func() {
	hostOf := func(server *httptest.Server) string {
		return strings.TrimPrefix(server.URL, "http://")
	}

	It("reads the cluster health", func() {
		server := newFakeCluster(nil)
		defer server.Close()

		client := NewClient([]string{hostOf(server)}, time.Second)
		status, err := client.Health(context.Background())
		Expect(err).ToNot(HaveOccurred())
		Expect(status).To(Equal(HealthYellow))
	})

	It("merges node info and stats into one inventory", func() {
		server := newFakeCluster(nil)
		defer server.Close()

		client := NewClient([]string{hostOf(server)}, time.Second)
		nodes, err := client.Nodes(context.Background())
		Expect(err).ToNot(HaveOccurred())
		Expect(nodes).To(HaveLen(2))

		// the inventory is ordered by node id
		Expect(nodes[0].Name).To(Equal("data-1"))
		Expect(nodes[0].Address).To(Equal("10.0.0.3:9200"))
		Expect(nodes[0].Version).To(Equal("1.5.2"))
		Expect(nodes[0].Master).To(BeFalse())
		Expect(nodes[0].Data).To(BeTrue())
		Expect(nodes[0].HeapUsedPercent).To(Equal(88))
		Expect(nodes[0].Uptime).To(Equal(12 * time.Minute))

		Expect(nodes[1].Name).To(Equal("master-1"))
		Expect(nodes[1].Address).To(Equal("10.0.0.1:9200"))
		Expect(nodes[1].Master).To(BeTrue())
		Expect(nodes[1].Data).To(BeFalse())
	})

	It("retrieves a single node by name", func() {
		server := newFakeCluster(nil)
		defer server.Close()

		client := NewClient([]string{hostOf(server)}, time.Second)
		node, err := client.Node(context.Background(), "master-1")
		Expect(err).ToNot(HaveOccurred())
		Expect(node).ToNot(BeNil())
		Expect(node.Address).To(Equal("10.0.0.1:9200"))

		missing, err := client.Node(context.Background(), "gone-1")
		Expect(err).ToNot(HaveOccurred())
		Expect(missing).To(BeNil())
	})

	It("updates the persistent allocation setting", func() {
		var bodies []string
		server := newFakeCluster(&bodies)
		defer server.Close()

		client := NewClient([]string{hostOf(server)}, time.Second)
		Expect(client.SetAllocation(context.Background(), false)).To(Succeed())
		Expect(client.SetAllocation(context.Background(), true)).To(Succeed())

		Expect(bodies).To(HaveLen(2))
		var settings map[string]map[string]string
		Expect(json.Unmarshal([]byte(bodies[0]), &settings)).To(Succeed())
		Expect(settings["persistent"]["cluster.routing.allocation.disable_allocation"]).To(Equal("true"))
		Expect(json.Unmarshal([]byte(bodies[1]), &settings)).To(Succeed())
		Expect(settings["persistent"]["cluster.routing.allocation.disable_allocation"]).To(Equal("false"))
	})

	It("fails when the settings change is not acknowledged", func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `{"acknowledged": false}`)
		}))
		defer server.Close()

		client := NewClient([]string{hostOf(server)}, time.Second)
		Expect(client.SetAllocation(context.Background(), true)).ToNot(Succeed())
	})

	It("fails over to the next host when one does not answer", func() {
		server := newFakeCluster(nil)
		defer server.Close()

		dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		deadHost := hostOf(dead)
		dead.Close()

		client := NewClient([]string{deadHost, hostOf(server)}, time.Second)
		status, err := client.Health(context.Background())
		Expect(err).ToNot(HaveOccurred())
		Expect(status).To(Equal(HealthYellow))
	})

	It("fails when no host answers", func() {
		dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		deadHost := hostOf(dead)
		dead.Close()

		client := NewClient([]string{deadHost}, time.Second)
		_, err := client.Health(context.Background())
		Expect(err).To(HaveOccurred())
	})

	It("surfaces server-side errors", func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		client := NewClient([]string{hostOf(server)}, time.Second)
		_, err := client.Health(context.Background())
		Expect(err).To(HaveOccurred())
	})

	It("keeps the request timeout when re-pointed at other hosts", func() {
		client := NewClient([]string{"a:9200"}, time.Second)
		repointed := client.WithHosts([]string{"b:9200", "c:9200"})
		Expect(repointed.Hosts()).To(Equal([]string{"b:9200", "c:9200"}))
		Expect(client.Hosts()).To(Equal([]string{"a:9200"}))
	})
})

var _ = Describe("Node publish address", func() {
	It("parses the modern format", func() {
		entry := nodeInfoEntry{Name: "data-1"}
		entry.HTTP.PublishAddress = "10.0.0.3:9200"
		address, err := entry.publishAddress()
		Expect(err).ToNot(HaveOccurred())
		Expect(address).To(Equal("10.0.0.3:9200"))
	})

	It("parses the bracketed legacy format", func() {
		entry := nodeInfoEntry{Name: "data-1", HTTPAddress: "inet[es-data-1/10.0.0.3:9200]"}
		address, err := entry.publishAddress()
		Expect(err).ToNot(HaveOccurred())
		Expect(address).To(Equal("10.0.0.3:9200"))
	})

	It("parses the legacy format with an empty host part", func() {
		entry := nodeInfoEntry{Name: "data-1", HTTPAddress: "inet[/10.0.0.3:9200]"}
		address, err := entry.publishAddress()
		Expect(err).ToNot(HaveOccurred())
		Expect(address).To(Equal("10.0.0.3:9200"))
	})

	It("fails on a missing address", func() {
		entry := nodeInfoEntry{Name: "data-1"}
		_, err := entry.publishAddress()
		Expect(err).To(HaveOccurred())
	})

	It("fails on an unknown format", func() {
		entry := nodeInfoEntry{Name: "data-1", HTTPAddress: "tcp://10.0.0.3:9200"}
		_, err := entry.publishAddress()
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Node roles", func() {
	It("treats an unset role attribute as held", func() {
		Expect(hasRole("")).To(BeTrue())
		Expect(hasRole("true")).To(BeTrue())
		Expect(hasRole("false")).To(BeFalse())
	})
})
