package tracing

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/axifuzz/sim"
	"go.uber.org/mock/gomock"
)

type fourBeats struct{}

func (fourBeats) BurstLength() int { return 4 }

var _ = Describe("BusTracer", func() {
	var (
		mockCtrl *gomock.Controller
		clock    *MockTimeTeller
		t        *BusTracer
	)

	at := func(cycle int) {
		clock.EXPECT().CurrentTime().Return(sim.VTimeInCycle(cycle))
	}

	read := func(id string) Task {
		return Task{ID: id, Kind: KindReqIn, What: "read",
			Location: "Sys.Mem", Detail: fourBeats{}}
	}

	write := func(id string) Task {
		return Task{ID: id, Kind: KindReqIn, What: "write", Location: "Sys.Mem"}
	}

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		clock = NewMockTimeTeller(mockCtrl)
		t = NewBusTracer(clock, KindFilter(KindReqIn))
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should keep read and write channels apart", func() {
		at(10)
		t.StartTask(read("ar-1"))
		at(12)
		t.StartTask(write("aw-1"))
		at(20)
		t.EndTask(Task{ID: "ar-1"})
		at(30)
		t.EndTask(Task{ID: "aw-1"})

		at(30)
		stats := t.Channels()
		Expect(stats).To(HaveLen(2))

		r := stats[0]
		Expect(r.Channel).To(Equal("Sys.Mem:read"))
		Expect(r.Completed).To(Equal(uint64(1)))
		Expect(r.Beats).To(Equal(uint64(4)))
		Expect(r.MeanLatency()).To(BeNumerically("~", 10.0))

		w := stats[1]
		Expect(w.Channel).To(Equal("Sys.Mem:write"))
		Expect(w.Beats).To(Equal(uint64(1)))
		Expect(w.MaxLatency).To(Equal(sim.VTimeInCycle(18)))
	})

	It("should count overlapping bursts once in busy time", func() {
		at(10)
		t.StartTask(read("ar-1"))
		at(15)
		t.StartTask(read("ar-2"))
		at(20)
		t.EndTask(Task{ID: "ar-1"})
		at(25)
		t.EndTask(Task{ID: "ar-2"})

		at(40)
		r, ok := t.Channel("Sys.Mem:read")
		Expect(ok).To(BeTrue())
		Expect(r.BusyCycles).To(Equal(sim.VTimeInCycle(15)))
		Expect(r.MaxInFlight).To(Equal(2))
		Expect(r.InFlight).To(BeZero())
		Expect(r.Utilization(40)).To(BeNumerically("~", 0.375))
	})

	It("should count busy time of open bursts up to now", func() {
		at(10)
		t.StartTask(read("ar-1"))

		at(35)
		r, _ := t.Channel("Sys.Mem:read")
		Expect(r.InFlight).To(Equal(1))
		Expect(r.BusyCycles).To(Equal(sim.VTimeInCycle(25)))
		Expect(r.Completed).To(BeZero())
		Expect(r.MeanLatency()).To(BeZero())
	})

	It("should skip tasks rejected by the filter", func() {
		t.StartTask(Task{ID: "1", Kind: KindReqOut, What: "read",
			Location: "Sys.Host"})
		at(20)
		t.EndTask(Task{ID: "1"})

		at(20)
		Expect(t.Channels()).To(BeEmpty())
	})
})
