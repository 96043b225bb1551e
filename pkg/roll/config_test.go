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

package roll

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Session configuration", func() {
	It("fills every unset timing and naming field", func() {
		config := Config{Mode: ModeRestart}.WithDefaults()
		Expect(config.ServiceName).To(Equal(DefaultServiceName))
		Expect(config.PackageName).To(Equal(DefaultPackageName))
		Expect(config.ClusterPollInterval).To(Equal(DefaultClusterPollInterval))
		Expect(config.ServicePollInterval).To(Equal(DefaultServicePollInterval))
		Expect(config.DeathTimeout).To(Equal(DefaultDeathTimeout))
		Expect(config.StartTimeout).To(Equal(DefaultStartTimeout))
		Expect(config.RejoinTimeout).To(Equal(DefaultRejoinTimeout))
		Expect(config.RejoinWindow).To(Equal(DefaultRejoinWindow))
	})

	It("keeps explicitly set values", func() {
		config := Config{Mode: ModeRestart, ServiceName: "opensearch"}.WithDefaults()
		Expect(config.ServiceName).To(Equal("opensearch"))
	})

	It("rejects an unknown mode", func() {
		config := Config{Mode: "reboot", RollDatas: true}
		Expect(config.Validate()).To(BeAssignableToTypeOf(&ConfigurationError{}))
	})

	It("rejects combining hold and unhold", func() {
		config := Config{Mode: ModeUpgrade, RollDatas: true,
			MinimumVersion: "1.7.1", Hold: true, Unhold: true}
		Expect(config.Validate()).To(BeAssignableToTypeOf(&ConfigurationError{}))
	})

	It("rejects excluding both roles", func() {
		config := Config{Mode: ModeRestart}
		Expect(config.Validate()).To(BeAssignableToTypeOf(&ConfigurationError{}))
	})

	It("rejects an out-of-range heap threshold", func() {
		config := Config{Mode: ModeRestart, RollDatas: true, KillAtHeap: 150}
		Expect(config.Validate()).To(BeAssignableToTypeOf(&ConfigurationError{}))
	})

	It("rejects hold flags on a restart", func() {
		config := Config{Mode: ModeRestart, RollDatas: true, Hold: true}
		Expect(config.Validate()).To(BeAssignableToTypeOf(&ConfigurationError{}))
	})

	It("rejects an upgrade without a minimum version", func() {
		config := Config{Mode: ModeUpgrade, RollDatas: true}
		Expect(config.Validate()).To(BeAssignableToTypeOf(&ConfigurationError{}))
	})

	It("rejects an unparseable minimum version", func() {
		config := Config{Mode: ModeUpgrade, RollDatas: true, MinimumVersion: "latest"}
		Expect(config.Validate()).To(BeAssignableToTypeOf(&ConfigurationError{}))
	})

	It("accepts a plain restart", func() {
		config := Config{Mode: ModeRestart, RollMasters: true, RollDatas: true, KillAtHeap: 85}
		Expect(config.Validate()).To(Succeed())
	})

	It("maps the hold flags to the hold override", func() {
		Expect((&Config{}).holdOverride()).To(BeNil())

		hold := (&Config{Hold: true}).holdOverride()
		Expect(hold).ToNot(BeNil())
		Expect(*hold).To(BeTrue())

		unhold := (&Config{Unhold: true}).holdOverride()
		Expect(unhold).ToNot(BeNil())
		Expect(*unhold).To(BeFalse())
	})
})
