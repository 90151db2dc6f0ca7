package sim

import (
	"errors"
	"sync/atomic"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"
)

var _ = Describe("SerialEngine", func() {
	var (
		mockCtrl *gomock.Controller
		handler  *MockHandler
		engine   *SerialEngine
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		handler = NewMockHandler(mockCtrl)
		engine = NewSerialEngine()
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should handle events in time order", func() {
		evt1 := MakeTickEvent(handler, 3)
		evt2 := MakeTickEvent(handler, 1)
		evt3 := MakeTickEvent(handler, 2)

		gomock.InOrder(
			handler.EXPECT().Handle(evt2).Return(nil),
			handler.EXPECT().Handle(evt3).Return(nil),
			handler.EXPECT().Handle(evt1).Return(nil),
		)

		engine.Schedule(evt1)
		engine.Schedule(evt2)
		engine.Schedule(evt3)

		Expect(engine.Run()).To(Succeed())
		Expect(engine.CurrentTime()).To(Equal(VTimeInCycle(3)))
	})

	It("should keep same-time events in scheduling order", func() {
		evt1 := MakeTickEvent(handler, 5)
		evt2 := MakeTickEvent(handler, 5)

		gomock.InOrder(
			handler.EXPECT().Handle(evt1).Return(nil),
			handler.EXPECT().Handle(evt2).Return(nil),
		)

		engine.Schedule(evt1)
		engine.Schedule(evt2)

		Expect(engine.Run()).To(Succeed())
	})

	It("should stop at the first handler error", func() {
		evt1 := MakeTickEvent(handler, 1)
		evt2 := MakeTickEvent(handler, 2)
		handlerErr := errors.New("broken")

		handler.EXPECT().Handle(evt1).Return(handlerErr)

		engine.Schedule(evt1)
		engine.Schedule(evt2)

		Expect(engine.Run()).To(MatchError(handlerErr))
	})

	It("should invoke hooks around events", func() {
		hook := NewMockHook(mockCtrl)
		engine.AcceptHook(hook)

		evt := MakeTickEvent(handler, 1)
		gomock.InOrder(
			hook.EXPECT().Func(gomock.Any()).Do(func(ctx HookCtx) {
				Expect(ctx.Pos).To(Equal(HookPosBeforeEvent))
			}),
			handler.EXPECT().Handle(evt).Return(nil),
			hook.EXPECT().Func(gomock.Any()).Do(func(ctx HookCtx) {
				Expect(ctx.Pos).To(Equal(HookPosAfterEvent))
			}),
		)

		engine.Schedule(evt)
		Expect(engine.Run()).To(Succeed())
	})

	It("should panic when scheduling in the past", func() {
		handler.EXPECT().Handle(gomock.Any()).Return(nil)
		engine.Schedule(MakeTickEvent(handler, 10))
		Expect(engine.Run()).To(Succeed())

		Expect(func() {
			engine.Schedule(MakeTickEvent(handler, 9))
		}).To(Panic())
	})

	It("should inspect only between events", func() {
		entered := make(chan struct{})
		release := make(chan struct{})

		evt := MakeTickEvent(handler, 1)
		handler.EXPECT().Handle(evt).DoAndReturn(func(Event) error {
			close(entered)
			<-release
			return nil
		})
		engine.Schedule(evt)

		runDone := make(chan error, 1)
		go func() { runDone <- engine.Run() }()
		<-entered

		var inspected atomic.Bool
		go engine.Inspect(func() { inspected.Store(true) })

		Consistently(inspected.Load, "50ms").Should(BeFalse())

		close(release)

		Eventually(inspected.Load).Should(BeTrue())
		Eventually(runDone).Should(Receive(BeNil()))
	})

	It("should inspect a paused engine right away", func() {
		engine.Pause()
		defer engine.Continue()

		inspected := false
		engine.Inspect(func() { inspected = true })

		Expect(inspected).To(BeTrue())
		Expect(engine.IsPaused()).To(BeTrue())
	})
})
