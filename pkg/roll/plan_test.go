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

var _ = Describe("Roll plan", func() {
	inventory := []Node{
		{Name: "data-1", Data: true},
		{Name: "master-1", Master: true},
		{Name: "both-1", Master: true, Data: true},
		{Name: "data-2", Data: true},
		{Name: "master-2", Master: true},
	}

	names := func(plan Plan) []string {
		result := make([]string, 0, len(plan.Nodes))
		for _, node := range plan.Nodes {
			result = append(result, node.Name)
		}
		return result
	}

	It("orders masters before data nodes, keeping discovery order within each group", func() {
		plan := BuildPlan(inventory, Config{RollMasters: true, RollDatas: true})
		Expect(names(plan)).To(Equal([]string{"master-1", "both-1", "master-2", "data-1", "data-2"}))
	})

	It("counts a dual-role node as a master, listing it exactly once", func() {
		plan := BuildPlan(inventory, Config{RollMasters: true, RollDatas: true})
		Expect(names(plan)).To(ContainElement("both-1"))

		count := 0
		for _, node := range plan.Nodes {
			if node.Name == "both-1" {
				count++
			}
		}
		Expect(count).To(Equal(1))
	})

	It("excludes dual-role nodes when masters are excluded", func() {
		plan := BuildPlan(inventory, Config{RollDatas: true})
		Expect(names(plan)).To(Equal([]string{"data-1", "data-2"}))
	})

	It("keeps only masters when data nodes are excluded", func() {
		plan := BuildPlan(inventory, Config{RollMasters: true})
		Expect(names(plan)).To(Equal([]string{"master-1", "both-1", "master-2"}))
	})

	It("is deterministic for a given inventory", func() {
		first := BuildPlan(inventory, Config{RollMasters: true, RollDatas: true})
		second := BuildPlan(inventory, Config{RollMasters: true, RollDatas: true})
		Expect(names(first)).To(Equal(names(second)))
	})

	It("ignores client-only nodes", func() {
		withClient := append([]Node{{Name: "client-1"}}, inventory...)
		plan := BuildPlan(withClient, Config{RollMasters: true, RollDatas: true})
		Expect(names(plan)).ToNot(ContainElement("client-1"))
	})
})
