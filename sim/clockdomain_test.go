package sim

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("ClockDomain", func() {
	var (
		domain *ClockDomain
		sig    *Signal
	)

	BeforeEach(func() {
		domain = MakeClockDomainBuilder().Build("Clk")
		sig = domain.NewSignal("data", 8)
	})

	It("should hide staged writes until the read-only phase", func() {
		err := domain.Run("main", func(p *Proc) error {
			sig.SetUint(5)
			Expect(sig.Uint()).To(Equal(uint64(0)))

			p.ReadOnly()
			Expect(sig.Uint()).To(Equal(uint64(5)))
			Expect(p.Now()).To(Equal(VTimeInCycle(0)))

			return nil
		})

		Expect(err).NotTo(HaveOccurred())
	})

	It("should apply writes before the run immediately", func() {
		sig.SetUint(0x1ff)
		Expect(sig.Uint()).To(Equal(uint64(0xff)))
	})

	It("should fail a process that writes in the read-only phase", func() {
		err := domain.Run("main", func(p *Proc) error {
			p.ReadOnly()
			sig.SetUint(1)
			return nil
		})

		Expect(err).To(MatchError(ContainSubstring("read-only")))
	})

	It("should wait for the next read-only phase", func() {
		err := domain.Run("main", func(p *Proc) error {
			p.ReadOnly()
			Expect(p.Now()).To(Equal(VTimeInCycle(0)))

			p.ReadOnly()
			Expect(p.Now()).To(Equal(VTimeInCycle(1)))

			return nil
		})

		Expect(err).NotTo(HaveOccurred())
	})

	It("should count cycles", func() {
		err := domain.Run("main", func(p *Proc) error {
			p.WaitCycles(10)
			Expect(p.Now()).To(Equal(VTimeInCycle(10)))
			return nil
		})

		Expect(err).NotTo(HaveOccurred())
	})

	It("should wake up on a rising edge", func() {
		domain.SpawnDaemon("driver", func(p *Proc) error {
			p.WaitCycles(3)
			sig.SetBool(true)
			return nil
		})

		err := domain.Run("main", func(p *Proc) error {
			p.WaitRise(sig)
			Expect(p.Now()).To(Equal(VTimeInCycle(4)))
			Expect(sig.Bool()).To(BeTrue())
			return nil
		})

		Expect(err).NotTo(HaveOccurred())
	})

	It("should not count a rise that happened before waiting", func() {
		domain.SpawnDaemon("driver", func(p *Proc) error {
			sig.SetBool(true)
			p.WaitCycles(2)
			sig.SetBool(false)
			p.RisingEdge()
			sig.SetBool(true)
			return nil
		})

		err := domain.Run("main", func(p *Proc) error {
			p.WaitCycles(1)
			p.WaitRise(sig)
			Expect(p.Now()).To(Equal(VTimeInCycle(4)))
			return nil
		})

		Expect(err).NotTo(HaveOccurred())
	})

	It("should kill daemons when main returns", func() {
		loops := 0
		domain.SpawnDaemon("forever", func(p *Proc) error {
			for {
				loops++
				p.RisingEdge()
			}
		})

		err := domain.Run("main", func(p *Proc) error {
			p.WaitCycles(5)
			return nil
		})

		Expect(err).NotTo(HaveOccurred())
		Expect(loops).To(Equal(6))
	})

	It("should abort the run when a daemon fails", func() {
		daemonErr := errors.New("bad response")
		domain.SpawnDaemon("checker", func(p *Proc) error {
			p.WaitCycles(2)
			return daemonErr
		})

		err := domain.Run("main", func(p *Proc) error {
			p.WaitCycles(100)
			return nil
		})

		Expect(errors.Is(err, daemonErr)).To(BeTrue())
		Expect(domain.Now()).To(Equal(VTimeInCycle(2)))
	})

	It("should turn panics into errors", func() {
		err := domain.Run("main", func(p *Proc) error {
			panic("oops")
		})

		Expect(err).To(MatchError(ContainSubstring("oops")))
	})

	It("should only run once", func() {
		Expect(domain.Run("main", func(p *Proc) error { return nil })).
			To(Succeed())
		Expect(domain.Run("main", func(p *Proc) error { return nil })).
			To(MatchError(ErrAlreadyRun))
	})

	It("should join child tasks", func() {
		childErr := errors.New("child failed")

		err := domain.Run("main", func(p *Proc) error {
			ok := p.Spawn("ok", func(c *Proc) error {
				c.WaitCycles(3)
				return nil
			})
			bad := p.Spawn("bad", func(c *Proc) error {
				c.WaitCycles(1)
				return childErr
			})

			Expect(ok.Join(p)).To(Succeed())
			Expect(p.Now()).To(Equal(VTimeInCycle(3)))
			Expect(bad.Done()).To(BeTrue())
			Expect(bad.Join(p)).To(MatchError(childErr))

			return nil
		})

		Expect(err).NotTo(HaveOccurred())
	})

	It("should hand a lock over in request order", func() {
		lock := NewLock("bus")
		order := []string{}

		user := func(name string) ProcFunc {
			return func(p *Proc) error {
				lock.Acquire(p)
				order = append(order, name)
				p.WaitCycles(2)
				lock.Release(p)
				return nil
			}
		}

		err := domain.Run("main", func(p *Proc) error {
			a := p.Spawn("a", user("a"))
			b := p.Spawn("b", user("b"))
			c := p.Spawn("c", user("c"))

			Expect(a.Join(p)).To(Succeed())
			Expect(b.Join(p)).To(Succeed())
			Expect(c.Join(p)).To(Succeed())

			return nil
		})

		Expect(err).NotTo(HaveOccurred())
		Expect(order).To(Equal([]string{"a", "b", "c"}))
		Expect(lock.Locked()).To(BeFalse())
	})

	It("should reject duplicated signal names", func() {
		Expect(func() { domain.NewSignal("data", 1) }).To(Panic())
		Expect(domain.Signal("data")).To(BeIdenticalTo(sig))
	})

	It("should keep bytes of wide signals", func() {
		wide := domain.NewSignal("wide", 36)
		wide.SetBytes([]byte{1, 2, 3, 4, 0xff})
		Expect(wide.Bytes()).To(Equal([]byte{1, 2, 3, 4, 0x0f}))
		Expect(wide.Uint()).To(Equal(uint64(0x0f04030201)))
	})
})
