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
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// fakeSaltAPI answers salt-api /run calls from a per-function reply
// table, recording every request it receives
type fakeSaltAPI struct {
	mu       sync.Mutex
	requests []saltRequest
	replies  map[string]string
	server   *httptest.Server
}

func newFakeSaltAPI() *fakeSaltAPI {
	fake := &fakeSaltAPI{replies: map[string]string{}}
	fake.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var requests []saltRequest
		if err := json.Unmarshal(body, &requests); err != nil || len(requests) != 1 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		fake.mu.Lock()
		fake.requests = append(fake.requests, requests[0])
		reply, known := fake.replies[requests[0].Function]
		fake.mu.Unlock()
		if !known {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		_, _ = io.WriteString(w,
			`{"return": [{"`+requests[0].Target+`": `+reply+`}]}`)
	}))
	return fake
}

func (f *fakeSaltAPI) lastRequest() saltRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func (f *fakeSaltAPI) executor() *SaltExecutor {
	return NewSaltExecutor(SaltConfig{
		Endpoint: f.server.URL,
		Username: "roller",
		Password: "secret",
	})
}

var _ = Describe("Salt executor", func() {
	var fake *fakeSaltAPI

	BeforeEach(func() {
		fake = newFakeSaltAPI()
		DeferCleanup(fake.server.Close)
	})

	It("targets the minion with authenticated local commands", func() {
		fake.replies["test.ping"] = `true`

		alive, err := fake.executor().Ping(context.Background(), "data-1")
		Expect(err).ToNot(HaveOccurred())
		Expect(alive).To(BeTrue())

		request := fake.lastRequest()
		Expect(request.Client).To(Equal("local"))
		Expect(request.Target).To(Equal("data-1"))
		Expect(request.Username).To(Equal("roller"))
		Expect(request.Password).To(Equal("secret"))
		Expect(request.Eauth).To(Equal("pam"))
	})

	It("fails when the minion does not answer", func() {
		fake.replies["test.ping"] = `true`

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `{"return": [{}]}`)
		}))
		defer server.Close()

		executor := NewSaltExecutor(SaltConfig{Endpoint: server.URL})
		_, err := executor.Ping(context.Background(), "data-1")
		Expect(err).To(HaveOccurred())
	})

	It("reports failed states and service changes from a highstate", func() {
		fake.replies["state.highstate"] = `{
			"file_|-config_|-/etc/elasticsearch/elasticsearch.yml_|-managed":
				{"result": false, "comment": "source not found", "changes": {}},
			"service_|-elasticsearch_|-elasticsearch_|-running":
				{"result": true, "comment": "service restarted", "changes": {"elasticsearch": true}},
			"pkg_|-openjdk_|-openjdk-8-jre_|-installed":
				{"result": true, "comment": "", "changes": {}}
		}`

		report, err := fake.executor().RunHighstate(context.Background(), "data-1", "elasticsearch")
		Expect(err).ToNot(HaveOccurred())
		Expect(report.Succeeded()).To(BeFalse())
		Expect(report.FailedStates).To(ConsistOf(
			"file_|-config_|-/etc/elasticsearch/elasticsearch.yml_|-managed"))
		Expect(report.ServiceChanged).To(BeTrue())
	})

	It("does not report a service change when the service state is unchanged", func() {
		fake.replies["state.highstate"] = `{
			"service_|-elasticsearch_|-elasticsearch_|-running":
				{"result": true, "comment": "already running", "changes": {}}
		}`

		report, err := fake.executor().RunHighstate(context.Background(), "data-1", "elasticsearch")
		Expect(err).ToNot(HaveOccurred())
		Expect(report.Succeeded()).To(BeTrue())
		Expect(report.ServiceChanged).To(BeFalse())
	})

	It("maps the service verbs onto the service module", func() {
		fake.replies["service.status"] = `true`
		fake.replies["service.stop"] = `true`
		fake.replies["service.start"] = `true`

		executor := fake.executor()
		running, err := executor.ServiceStatus(context.Background(), "data-1", "elasticsearch")
		Expect(err).ToNot(HaveOccurred())
		Expect(running).To(BeTrue())
		Expect(fake.lastRequest().Args).To(Equal([]string{"elasticsearch"}))

		Expect(executor.StopService(context.Background(), "data-1", "elasticsearch")).To(Succeed())
		Expect(executor.StartService(context.Background(), "data-1", "elasticsearch")).To(Succeed())
	})

	It("fails a stop the minion reported unsuccessful", func() {
		fake.replies["service.stop"] = `false`
		err := fake.executor().StopService(context.Background(), "data-1", "elasticsearch")
		Expect(err).To(HaveOccurred())
	})

	It("force kills through a quoted shell command", func() {
		fake.replies["cmd.run"] = `""`

		Expect(fake.executor().ForceKill(context.Background(), "data-1")).To(Succeed())
		request := fake.lastRequest()
		Expect(request.Function).To(Equal("cmd.run"))
		Expect(request.Args).To(Equal([]string{"killall java"}))
	})

	It("reports a pending upgrade when an available version is returned", func() {
		fake.replies["pkg.available_version"] = `"1.7.2"`
		available, err := fake.executor().PackageUpgradeAvailable(context.Background(), "data-1", "elasticsearch")
		Expect(err).ToNot(HaveOccurred())
		Expect(available).To(BeTrue())
	})

	It("reports no pending upgrade on an empty available version", func() {
		fake.replies["pkg.available_version"] = `""`
		available, err := fake.executor().PackageUpgradeAvailable(context.Background(), "data-1", "elasticsearch")
		Expect(err).ToNot(HaveOccurred())
		Expect(available).To(BeFalse())
	})

	It("reports whether the installed version changed on install", func() {
		fake.replies["pkg.install"] = `{"elasticsearch": {"old": "1.5.2", "new": "1.7.2"}}`
		changed, err := fake.executor().InstallPackage(context.Background(), "data-1", "elasticsearch")
		Expect(err).ToNot(HaveOccurred())
		Expect(changed).To(BeTrue())

		fake.replies["pkg.install"] = `{}`
		changed, err = fake.executor().InstallPackage(context.Background(), "data-1", "elasticsearch")
		Expect(err).ToNot(HaveOccurred())
		Expect(changed).To(BeFalse())
	})

	It("detects the held mark in the package manager output", func() {
		fake.replies["cmd.run"] = `"elasticsearch\n"`
		held, err := fake.executor().PackageHeld(context.Background(), "data-1", "elasticsearch")
		Expect(err).ToNot(HaveOccurred())
		Expect(held).To(BeTrue())
		Expect(fake.lastRequest().Args).To(Equal([]string{"apt-mark showhold elasticsearch"}))

		fake.replies["cmd.run"] = `""`
		held, err = fake.executor().PackageHeld(context.Background(), "data-1", "elasticsearch")
		Expect(err).ToNot(HaveOccurred())
		Expect(held).To(BeFalse())
	})

	It("surfaces a failed hold state", func() {
		fake.replies["pkg.hold"] = `{
			"elasticsearch": {"result": false, "comment": "package not installed", "changes": {}}
		}`
		err := fake.executor().HoldPackage(context.Background(), "data-1", "elasticsearch")
		Expect(err).To(HaveOccurred())

		fake.replies["pkg.unhold"] = `{
			"elasticsearch": {"result": true, "comment": "", "changes": {"elasticsearch": {"hold": false}}}
		}`
		Expect(fake.executor().UnholdPackage(context.Background(), "data-1", "elasticsearch")).To(Succeed())
	})
})
