package policy_test

import (
	"testing"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/cachesim/cachesim/policy"
)

func TestPolicyScenarios(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Policy Scenarios Suite")
}

// req builds a Request for a key of the given size at a given trace time;
// AppID/Type are irrelevant to every engine's core logic.
func req(kid uint64, size int32, t float64) *policy.Request {
	return &policy.Request{Time: t, Kid: kid, ValSz: size}
}

var _ = Describe("LRU", func() {
	It("evicts the oldest key once capacity overflows (E1)", func() {
		l := policy.NewLRU(100)

		Expect(l.Process(req(1, 40, 0), false)).To(Equal(policy.ProcMiss))
		Expect(l.Process(req(2, 40, 1), false)).To(Equal(policy.ProcMiss))
		Expect(l.Process(req(3, 40, 2), false)).To(Equal(policy.ProcMiss))

		Expect(l.BytesCached()).To(Equal(uint64(80)))
		Expect(l.Process(req(2, 40, 3), false)).NotTo(Equal(policy.ProcMiss))
		Expect(l.Process(req(1, 40, 4), false)).To(Equal(policy.ProcMiss))
		Expect(l.Process(req(3, 40, 5), false)).NotTo(Equal(policy.ProcMiss))
	})
})

var _ = Describe("CLOCK", func() {
	It("sweeps decrementing counters before evicting (E2)", func() {
		c := policy.NewClock(3, 1, 0)

		Expect(c.Process(req(1, 1, 0), false)).To(Equal(policy.ProcMiss))
		Expect(c.Process(req(2, 1, 1), false)).To(Equal(policy.ProcMiss))
		Expect(c.Process(req(3, 1, 2), false)).To(Equal(policy.ProcMiss))
		Expect(c.Process(req(1, 1, 3), false)).NotTo(Equal(policy.ProcMiss))
		Expect(c.Process(req(4, 1, 4), false)).To(Equal(policy.ProcMiss))

		// Final resident set is {1,3,4}; probe the survivors with same-size
		// hits first (they never trigger eviction) before the miss-probe on
		// the evicted key, which would itself mutate the ring.
		Expect(c.Process(req(1, 1, 5), false)).NotTo(Equal(policy.ProcMiss))
		Expect(c.Process(req(3, 1, 6), false)).NotTo(Equal(policy.ProcMiss))
		Expect(c.Process(req(4, 1, 7), false)).NotTo(Equal(policy.ProcMiss))
		Expect(c.Process(req(2, 1, 8), false)).To(Equal(policy.ProcMiss), "key 2 should have been evicted")
	})
})

var _ = Describe("LRU-K", func() {
	It("promotes repeatedly hit keys into the top queue (E3)", func() {
		l := policy.NewLRUK(2, 2)

		Expect(l.Process(req(hashA, 1, 0), false)).To(Equal(policy.ProcMiss))
		Expect(l.Process(req(hashB, 1, 1), false)).To(Equal(policy.ProcMiss))
		Expect(l.Process(req(hashA, 1, 2), false)).NotTo(Equal(policy.ProcMiss))
		Expect(l.Process(req(hashB, 1, 3), false)).NotTo(Equal(policy.ProcMiss))
		Expect(l.Process(req(hashC, 1, 4), false)).To(Equal(policy.ProcMiss))

		Expect(l.BytesCached()).To(Equal(uint64(3)))
		Expect(l.Process(req(hashA, 1, 5), false)).NotTo(Equal(policy.ProcMiss))
		Expect(l.Process(req(hashB, 1, 6), false)).NotTo(Equal(policy.ProcMiss))
		Expect(l.Process(req(hashC, 1, 7), false)).NotTo(Equal(policy.ProcMiss))
	})
})

const (
	hashA = 101
	hashB = 202
	hashC = 303
)

var _ = Describe("FlashCache", func() {
	It("gates promotion to flash on credits, not flashiness (E4)", func() {
		f := policy.NewFlashCache(2, 2, 0 /* FLASH_RATE */, 1 /* INITIAL_CREDIT */, 1 /* K */)

		Expect(f.Process(req(1, 1, 0), false)).To(Equal(policy.ProcMiss))
		Expect(f.Process(req(2, 1, 1000), false)).To(Equal(policy.ProcMiss))
		Expect(f.Stats().CreditLimitEvents).To(Equal(uint64(0)))

		Expect(f.Process(req(3, 1, 2000), false)).To(Equal(policy.ProcMiss))

		Expect(f.Stats().WritesFlash).To(Equal(uint64(0)))
		Expect(f.Stats().CreditLimitEvents).To(BeNumerically(">=", uint64(1)))
	})
})

var _ = Describe("PartitionedLRU", func() {
	It("never lets a shard exceed its own byte budget (E7)", func() {
		const numPartitions, globalMem, maxReqSize = 4, 40, 10
		p := policy.NewPartitionedLRU(numPartitions, globalMem, maxReqSize)

		for i := uint64(0); i < 200; i++ {
			p.Process(req(i*7919+13, 3, float64(i)), false)
		}

		Expect(p.BytesCached()).To(BeNumerically("<=", uint64(globalMem)))
	})
})

var _ = Describe("VictimCache", func() {
	It("cascades a DRAM eviction straight into flash", func() {
		v := policy.NewVictimCache(2, 2)

		Expect(v.Process(req(1, 2, 0), false)).To(Equal(policy.ProcMiss))
		Expect(v.Process(req(2, 2, 1), false)).To(Equal(policy.ProcMiss))
		Expect(v.Stats().WritesFlash).To(Equal(uint64(1)))

		Expect(v.Process(req(1, 2, 2), false)).NotTo(Equal(policy.ProcMiss))
		Expect(v.Stats().HitsFlash).To(Equal(uint64(1)))
	})
})
