package monitoring

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/axifuzz/sim"
)

type sampleStruct struct {
	field1 int
	field2 string
	field3 *sampleStruct
	field4 []sampleStruct
}

type sampleComponent struct {
	name  string
	runs  int
	queue *sim.Queue[uint64]
	spare *sim.Queue[uint64]
	other *sim.Queue[int]
}

func (c *sampleComponent) Name() string { return c.name }

func (c *sampleComponent) Runs() int { return c.runs }

func newSampleComponent() *sampleComponent {
	return &sampleComponent{
		name:  "Comp",
		runs:  3,
		queue: sim.NewQueue[uint64]("Comp.Queue", 4),
		spare: sim.NewQueue[uint64]("Comp.Spare", 10),
	}
}

func get(m *Monitor, url string, v any) int {
	rec := httptest.NewRecorder()
	m.router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, url, nil))

	if v != nil && rec.Code == http.StatusOK {
		Expect(json.Unmarshal(rec.Body.Bytes(), v)).To(Succeed())
	}

	return rec.Code
}

var _ = Describe("Monitor", func() {
	var (
		m *Monitor
		c *sampleComponent
	)

	BeforeEach(func() {
		m = NewMonitor()
		c = newSampleComponent()
	})

	It("should register components and internal buffers", func() {
		m.RegisterComponent(c)
		m.RegisterBuffer(c.queue)

		Expect(m.components).To(HaveLen(1))
		Expect(m.buffers).To(HaveLen(2))
		Expect(m.runSources).To(HaveLen(1))
	})

	It("should list components and runs", func() {
		m.RegisterComponent(c)

		var names []string
		Expect(get(m, "/api/list_components", &names)).To(Equal(http.StatusOK))
		Expect(names).To(Equal([]string{"Comp"}))

		var runs []runsRsp
		Expect(get(m, "/api/runs", &runs)).To(Equal(http.StatusOK))
		Expect(runs).To(Equal([]runsRsp{{Name: "Comp", Runs: 3}}))
	})

	It("should report unknown components", func() {
		m.RegisterComponent(c)

		Expect(get(m, "/api/component/Nope", nil)).
			To(Equal(http.StatusNotFound))
	})

	It("should sort buffers", func() {
		m.RegisterComponent(c)
		c.queue.Push(1)
		c.queue.Push(2)
		c.spare.Push(1)
		c.spare.Push(2)
		c.spare.Push(3)

		var byPercent []bufferRsp
		Expect(get(m, "/api/buffers", &byPercent)).To(Equal(http.StatusOK))
		Expect(byPercent).To(HaveLen(2))
		Expect(byPercent[0].Buffer).To(Equal("Comp.Queue"))

		var byLevel []bufferRsp
		Expect(get(m, "/api/buffers?sort=level&limit=1", &byLevel)).
			To(Equal(http.StatusOK))
		Expect(byLevel).To(Equal([]bufferRsp{
			{Buffer: "Comp.Spare", Level: 3, Cap: 10, HighWater: 3},
		}))

		var none []bufferRsp
		Expect(get(m, "/api/buffers?offset=5", &none)).To(Equal(http.StatusOK))
		Expect(none).To(BeEmpty())

		Expect(get(m, "/api/buffers?sort=name", nil)).
			To(Equal(http.StatusBadRequest))
	})

	It("should tell the time of the clock domain", func() {
		Expect(get(m, "/api/now", nil)).
			To(Equal(http.StatusServiceUnavailable))

		d := sim.MakeClockDomainBuilder().Build("Clk")
		m.RegisterDomain(d)
		Expect(d.Run("main", func(p *sim.Proc) error {
			p.WaitCycles(5)
			return nil
		})).To(Succeed())

		var now nowRsp
		Expect(get(m, "/api/now", &now)).To(Equal(http.StatusOK))
		Expect(now.Cycle).To(BeNumerically(">=", 5))
	})

	It("should read components between cycles of a running domain", func() {
		d := sim.MakeClockDomainBuilder().Build("Clk")
		m.RegisterDomain(d)
		m.RegisterComponent(c)

		served := make(chan []bufferRsp, 1)

		err := d.Run("main", func(p *sim.Proc) error {
			go func() {
				rec := httptest.NewRecorder()
				m.router().ServeHTTP(rec,
					httptest.NewRequest(http.MethodGet, "/api/buffers", nil))

				var bufs []bufferRsp
				_ = json.Unmarshal(rec.Body.Bytes(), &bufs)
				served <- bufs
			}()

			for len(served) == 0 {
				c.queue.Push(1)
				c.queue.Push(2)
				c.queue.Pop()
				c.queue.Pop()
				p.RisingEdge()
			}

			return nil
		})
		Expect(err).NotTo(HaveOccurred())

		var bufs []bufferRsp
		Expect(served).To(Receive(&bufs))
		Expect(bufs).To(HaveLen(2))
		for _, b := range bufs {
			Expect(b.Level).To(BeZero())
		}
	})

	It("should serve a paused domain", func() {
		d := sim.MakeClockDomainBuilder().Build("Clk")
		m.RegisterDomain(d)
		m.RegisterComponent(c)

		Expect(get(m, "/api/pause", nil)).To(Equal(http.StatusOK))
		Expect(get(m, "/api/runs", nil)).To(Equal(http.StatusOK))
		Expect(get(m, "/api/buffers", nil)).To(Equal(http.StatusOK))
		Expect(get(m, "/api/continue", nil)).To(Equal(http.StatusOK))
	})

	It("should track progress bars", func() {
		bar := m.CreateProgressBar("runs", 4)
		bar.IncrementInProgress(2)
		bar.MoveInProgressToFinished(1)

		var bars []progressBarSnapshot
		Expect(get(m, "/api/progress", &bars)).To(Equal(http.StatusOK))
		Expect(bars).To(HaveLen(1))
		Expect(bars[0].Finished).To(Equal(uint64(1)))
		Expect(bars[0].InProgress).To(Equal(uint64(1)))

		m.CompleteProgressBar(bar)
		Expect(get(m, "/api/progress", &bars)).To(Equal(http.StatusOK))
		Expect(bars).To(BeEmpty())
	})

	It("should walk int fields", func() {
		s := &sampleStruct{field1: 1}

		elem, err := walkFields(s, "field1")

		Expect(err).To(BeNil())
		Expect(elem.Kind()).To(Equal(reflect.Int))
		Expect(elem.Int()).To(Equal(int64(1)))
	})

	It("should walk string fields", func() {
		s := &sampleStruct{field2: "abc"}

		elem, err := walkFields(s, "field2")

		Expect(err).To(BeNil())
		Expect(elem.Kind()).To(Equal(reflect.String))
		Expect(elem.String()).To(Equal("abc"))
	})

	It("should walk struct", func() {
		s := &sampleStruct{field3: &sampleStruct{}}

		elem, err := walkFields(s, "field3")

		Expect(err).To(BeNil())
		Expect(elem.Kind()).To(Equal(reflect.Struct))
		Expect(elem.Type().Name()).To(Equal("sampleStruct"))
	})

	It("should walk slice recursively", func() {
		s := &sampleStruct{
			field4: []sampleStruct{{
				field4: []sampleStruct{{field1: 1}},
			}, {}},
		}

		elem, err := walkFields(s, "field4.0.field4.0.field1")

		Expect(err).To(BeNil())
		Expect(elem.Int()).To(Equal(int64(1)))
	})

	It("should reject bad field paths", func() {
		s := &sampleStruct{field4: []sampleStruct{{}}}

		_, err := walkFields(s, "field4.3")
		Expect(err).To(HaveOccurred())

		_, err = walkFields(s, "missing")
		Expect(err).To(HaveOccurred())
	})
})
