package lock_test

import (
	"time"

	"github.com/jonboulle/clockwork"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"autoflow.app/collab/internal/lock"
	"autoflow.app/collab/internal/model"
)

var _ = Describe("Manager", func() {
	var (
		clock   *clockwork.FakeClock
		manager *lock.Manager
	)

	grant := func(nodeID, holder string, ttl time.Duration) model.NodeLock {
		l := model.NodeLock{
			NodeID:     nodeID,
			HolderID:   holder,
			HolderName: holder,
			LockedAt:   clock.Now(),
			ExpiresAt:  clock.Now().Add(ttl),
		}
		manager.ApplyLocked(l)
		return l
	}

	BeforeEach(func() {
		clock = clockwork.NewFakeClock()
		manager = lock.NewManager(clock)
	})

	Describe("ApplyLocked", func() {
		It("exposes the grant as held", func() {
			grant("n1", "alice", 30*time.Second)

			Expect(manager.IsLocked("n1")).To(BeTrue())
			Expect(manager.IsLockedBy("n1", "alice")).To(BeTrue())
			Expect(manager.IsLockedBy("n1", "bob")).To(BeFalse())
		})

		It("replaces an existing entry for the node, last writer wins", func() {
			grant("n1", "alice", 30*time.Second)
			grant("n1", "bob", 30*time.Second)

			got, ok := manager.Get("n1")
			Expect(ok).To(BeTrue())
			Expect(got.HolderID).To(Equal("bob"))
			Expect(manager.List()).To(HaveLen(1))
		})
	})

	Describe("lazy expiry", func() {
		It("treats a lock as held until exactly its expiry", func() {
			grant("n1", "alice", 30*time.Second)

			clock.Advance(30*time.Second - time.Millisecond)
			Expect(manager.IsLocked("n1")).To(BeTrue())

			clock.Advance(time.Millisecond)
			Expect(manager.IsLocked("n1")).To(BeFalse())
			_, ok := manager.Get("n1")
			Expect(ok).To(BeFalse())
		})

		It("reports an expired lock absent without any unlock message", func() {
			grant("n1", "alice", 10*time.Second)
			clock.Advance(time.Minute)

			Expect(manager.IsLocked("n1")).To(BeFalse())
			Expect(manager.List()).To(BeEmpty())
		})

		It("never exposes two simultaneous holders for one node", func() {
			grant("n1", "alice", 10*time.Second)
			clock.Advance(11 * time.Second)
			grant("n1", "bob", 10*time.Second)

			locks := manager.List()
			Expect(locks).To(HaveLen(1))
			Expect(locks[0].HolderID).To(Equal("bob"))
		})
	})

	Describe("ApplyUnlocked", func() {
		It("removes the entry", func() {
			grant("n1", "alice", 30*time.Second)
			manager.ApplyUnlocked("n1")

			Expect(manager.IsLocked("n1")).To(BeFalse())
		})

		It("is a no-op for unknown nodes", func() {
			Expect(func() { manager.ApplyUnlocked("ghost") }).NotTo(Panic())
		})
	})

	Describe("ReleaseHeldBy", func() {
		It("releases every lock of a disconnected holder", func() {
			grant("n1", "alice", time.Minute)
			grant("n2", "alice", time.Minute)
			grant("n3", "bob", time.Minute)

			released := manager.ReleaseHeldBy("alice")
			Expect(released).To(ConsistOf("n1", "n2"))
			Expect(manager.IsLocked("n1")).To(BeFalse())
			Expect(manager.IsLocked("n3")).To(BeTrue())
		})
	})
})
