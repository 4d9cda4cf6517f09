package orchestration

import (
	"errors"

	"github.com/stretchr/testify/mock"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/imamik/stackfleet/internal/fleet"
	"github.com/imamik/stackfleet/internal/provisioning"
)

var _ = Describe("Run scenarios", func() {
	var h *harness

	Context("with six deployed hosts in groups of two and one unreachable host", func() {
		var nodes []string

		BeforeEach(func() {
			h = newHarness(GinkgoT().TempDir(), 2, 3)
			h.expectReservation()
			nodes = h.expectDeployment(6, 6)
			h.expectInstalls()
			for i, n := range nodes {
				if i == 4 {
					h.unreach(n)
					continue
				}
				h.answer(n, "controller-"+string(rune('a'+i/2))+"\n")
			}
		})

		It("forms three groups of two", func() {
			result, err := h.orchestrator().Run(specContext())
			Expect(err).NotTo(HaveOccurred())

			Expect(result.Groups).To(HaveLen(3))
			var flat []fleet.Host
			for i, g := range result.Groups {
				Expect(g.Ordinal).To(Equal(i + 1))
				Expect(g.Hosts).To(HaveLen(2))
				flat = append(flat, g.Hosts...)
			}
			Expect(flat).To(Equal(result.Deployment.Succeeded))
		})

		It("installs every group with its own scratch workspace", func() {
			result, err := h.orchestrator().Run(specContext())
			Expect(err).NotTo(HaveOccurred())

			Expect(result.Installs).To(HaveLen(3))
			seen := map[string]bool{}
			for _, inst := range result.Installs {
				Expect(inst.OK()).To(BeTrue())
				Expect(seen).NotTo(HaveKey(inst.ScratchID))
				seen[inst.ScratchID] = true
			}
			h.runner.AssertNumberOfCalls(GinkgoT(), "Run", 3)
		})

		It("ends PartiallyFailed with only the third group failing", func() {
			result, err := h.orchestrator().Run(specContext())
			Expect(err).NotTo(HaveOccurred())

			Expect(result.State).To(Equal(StatePartiallyFailed))
			Expect(result.Verifications).To(HaveLen(3))
			Expect(result.Verifications[0].OK()).To(BeTrue())
			Expect(result.Verifications[0].Controllers).To(Equal([]string{"controller-a"}))
			Expect(result.Verifications[1].OK()).To(BeTrue())
			Expect(result.Verifications[1].Controllers).To(Equal([]string{"controller-b"}))

			failed := result.Verifications[2]
			Expect(failed.FailedHosts).To(Equal([]string{nodes[4]}))
			var discovery *fleet.ControllerDiscoveryError
			Expect(failed.Err).To(BeAssignableToTypeOf(discovery))
			Expect(result.FailedGroups()).To(HaveLen(1))
		})

		It("probes every deployed host once", func() {
			_, err := h.orchestrator().Run(specContext())
			Expect(err).NotTo(HaveOccurred())

			Expect(h.probedHosts()).To(HaveLen(6))
		})

		It("reports verification of every group to the observer", func() {
			_, err := h.orchestrator().Run(specContext())
			Expect(err).NotTo(HaveOccurred())

			verified := 0
			for _, e := range h.observer.Events() {
				if e.Type == provisioning.EventGroupVerified {
					verified++
				}
			}
			Expect(verified).To(Equal(3))
		})
	})

	Context("when imaging succeeds on two of five hosts with a threshold of three", func() {
		var nodes []string

		BeforeEach(func() {
			h = newHarness(GinkgoT().TempDir(), 1, 5)
			h.cfg.Groups.MinNodes = 3
			h.expectReservation()
			nodes = h.expectDeployment(5, 2)
		})

		It("aborts with the three failed hosts and installs nothing", func() {
			result, err := h.orchestrator().Run(specContext())

			var below *fleet.DeploymentBelowThresholdError
			Expect(err).To(HaveOccurred())
			Expect(errors.As(err, &below)).To(BeTrue())
			Expect(below.FailedHosts).To(Equal(nodes[2:]))
			Expect(below.FailedHosts).To(HaveLen(3))

			Expect(result.State).To(Equal(StateFailed))
			Expect(statePath(result)).To(Equal([]State{StateReserved, StateNetworkEnabled, StateDeploying, StateFailed}))
			Expect(result.Groups).To(BeEmpty())
			Expect(result.Installs).To(BeEmpty())
			Expect(result.Verifications).To(BeEmpty())
			Expect(h.probedHosts()).To(BeEmpty())
			h.runner.AssertNotCalled(GinkgoT(), "Run", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})

		It("still releases the reservation", func() {
			result, _ := h.orchestrator().Run(specContext())

			Expect(result.Released).To(BeTrue())
			h.scheduler.AssertCalled(GinkgoT(), "Release", mock.Anything, testJobID, "nancy")
		})
	})

	Context("when two hosts of a group report the same controller", func() {
		BeforeEach(func() {
			h = newHarness(GinkgoT().TempDir(), 2, 1)
			h.expectReservation()
			nodes := h.expectDeployment(2, 2)
			h.expectInstalls()
			h.answer(nodes[0], "10.16.0.1\n")
			h.answer(nodes[1], "10.16.0.1\n")
		})

		It("reports a single controller", func() {
			result, err := h.orchestrator().Run(specContext())
			Expect(err).NotTo(HaveOccurred())

			Expect(result.State).To(Equal(StateDone))
			Expect(result.Verifications).To(HaveLen(1))
			Expect(result.Verifications[0].Controllers).To(ConsistOf("10.16.0.1"))
		})
	})
})
