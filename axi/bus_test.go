package axi

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/axifuzz/sim"
)

var _ = Describe("Bus", func() {
	var domain *sim.ClockDomain

	BeforeEach(func() {
		domain = sim.MakeClockDomainBuilder().Build("Clk")
	})

	It("should name signals after the bus", func() {
		bus := NewBus(domain, "S_AXI", BusConfig{DataBytes: 8, WithID: true})

		Expect(domain.Signal("S_AXI_AWADDR")).To(BeIdenticalTo(bus.AWADDR))
		Expect(bus.WSTRB.Width()).To(Equal(8))
		Expect(bus.WDATA.Width()).To(Equal(64))
		Expect(bus.ARID.Width()).To(Equal(4))
		Expect(bus.Validate()).To(Succeed())
		Expect(bus.Len()).To(Equal(uint64(1) << 32))
	})

	It("should bind signals created by someone else", func() {
		NewLiteBus(domain, "S_AXI_CTRL", DefaultBusConfig)

		bus := BindLiteBus(domain, "S_AXI_CTRL", DefaultBusConfig)
		Expect(bus.Validate()).To(Succeed())
		Expect(bus.RDATA).To(BeIdenticalTo(domain.Signal("S_AXI_CTRL_RDATA")))
	})

	It("should report missing and mismatched signals", func() {
		NewLiteBus(domain, "M", DefaultBusConfig)

		full := BindBus(domain, "M", DefaultBusConfig)
		Expect(full.Validate()).To(MatchError(ContainSubstring("missing signal WLAST")))

		wide := BindLiteBus(domain, "M", BusConfig{DataBytes: 8})
		Expect(wide.Validate()).To(MatchError(ContainSubstring("WDATA is 32 bits wide")))
	})

	It("should reject data widths that are not a power of two", func() {
		Expect(func() {
			NewLiteBus(domain, "X", BusConfig{DataBytes: 3})
		}).To(Panic())
	})
})

var _ = Describe("BurstDescriptor", func() {
	It("should compute beat addresses", func() {
		incr := BurstDescriptor{Addr: 0x100, Len: 3, Size: 2, Burst: BurstIncr}
		Expect(incr.BeatAddr(3)).To(Equal(uint64(0x10c)))

		fixed := BurstDescriptor{Addr: 0x100, Len: 3, Size: 2, Burst: BurstFixed}
		Expect(fixed.BeatAddr(3)).To(Equal(uint64(0x100)))

		wrap := BurstDescriptor{Addr: 0x108, Len: 3, Size: 2, Burst: BurstWrap}
		Expect(wrap.BeatAddr(0)).To(Equal(uint64(0x108)))
		Expect(wrap.BeatAddr(1)).To(Equal(uint64(0x10c)))
		Expect(wrap.BeatAddr(2)).To(Equal(uint64(0x100)))
	})

	It("should convert sizes", func() {
		Expect(SizeToBytes(2)).To(Equal(4))
		Expect(SizeToBytes(7)).To(Equal(0))
		Expect(BytesToSize(8)).To(Equal(uint32(3)))
	})
})
