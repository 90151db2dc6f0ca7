package tracing

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/axifuzz/sim"
	"go.uber.org/mock/gomock"
)

type taskLog struct {
	started, stepped, ended []string
}

func (l *taskLog) StartTask(t Task) { l.started = append(l.started, t.ID) }
func (l *taskLog) StepTask(t Task)  { l.stepped = append(l.stepped, t.ID) }
func (l *taskLog) EndTask(t Task)   { l.ended = append(l.ended, t.ID) }

var _ = Describe("CollectTrace", func() {
	var (
		mockCtrl *gomock.Controller
		comp     *MockNamedHookable
		log      *taskLog
		hook     sim.Hook
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		comp = NewMockNamedHookable(mockCtrl)
		log = &taskLog{}

		comp.EXPECT().Hooks().Return(nil)
		comp.EXPECT().AcceptHook(gomock.Any()).Do(func(h sim.Hook) { hook = h })
		CollectTrace(log, comp)
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should forward task hooks to the tracer", func() {
		hook.Func(sim.HookCtx{Pos: HookPosTaskStart, Item: Task{ID: "aw-1"}})
		hook.Func(sim.HookCtx{Pos: HookPosTaskStep, Item: Task{ID: "aw-1"}})
		hook.Func(sim.HookCtx{Pos: HookPosTaskEnd, Item: Task{ID: "aw-1"}})

		Expect(log.started).To(Equal([]string{"aw-1"}))
		Expect(log.stepped).To(Equal([]string{"aw-1"}))
		Expect(log.ended).To(Equal([]string{"aw-1"}))
	})

	It("should skip hooks that do not carry a task", func() {
		hook.Func(sim.HookCtx{Pos: sim.HookPosQueuePush, Item: 42})
		hook.Func(sim.HookCtx{Pos: HookPosTaskStart, Item: "not a task"})

		Expect(log.started).To(BeEmpty())
	})

	It("should refuse to attach the same tracer twice", func() {
		comp.EXPECT().Hooks().Return([]sim.Hook{hook})
		comp.EXPECT().Name().Return("Sys.Mem")

		Expect(func() { CollectTrace(log, comp) }).
			To(PanicWith(ContainSubstring("Sys.Mem is already traced")))
	})
})
