package pe

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/axifuzz/axi"
	"github.com/sarchlab/axifuzz/sim"
	"go.uber.org/mock/gomock"
)

var _ = Describe("Controller", func() {
	var (
		mockCtrl  *gomock.Controller
		regs      *MockRegisterBus
		bitmap    *MockRegisterBus
		domain    *sim.ClockDomain
		interrupt *sim.Signal
		builder   ControllerBuilder
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		regs = NewMockRegisterBus(mockCtrl)
		bitmap = NewMockRegisterBus(mockCtrl)
		domain = sim.MakeClockDomainBuilder().Build("Clk")
		interrupt = domain.NewSignal("PE_interrupt", 1)
		builder = MakeControllerBuilder().WithLogger(GinkgoLogr)
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	expectWrite := func(addr, value uint64) *gomock.Call {
		return regs.EXPECT().
			Write(gomock.Any(), addr, value).
			Return(axi.RespOkay, nil)
	}

	expectRead := func(addr, value uint64) *gomock.Call {
		return regs.EXPECT().
			Read(gomock.Any(), addr).
			Return(value, nil)
	}

	raiseInterruptAt := func(p *sim.Proc, cycle int) {
		p.Spawn("irq", func(c *sim.Proc) error {
			c.WaitCycles(cycle)
			interrupt.SetBool(true)

			return nil
		})
	}

	args := RunArgs{
		ArgLength:     8,
		ArgPointer:    0x4080eff8,
		BitmapSize:    0x40,
		IgnoreMin:     0xffffffff,
		TimeoutCycles: 0x1_00000010,
	}

	It("should run the PE and read back the result", func() {
		c := builder.Build("PE", regs, bitmap, interrupt)

		var stateAtReturn, stateAtExcArg State

		gomock.InOrder(
			expectRead(RegStart, uint64(StartBitIdle)),
			expectWrite(RegGIER, 1),
			expectWrite(RegIER, 1),
			expectWrite(RegArgLength, 8),
			expectWrite(RegArgPointer, 0x4080eff8),
			expectWrite(RegBitmapSize, 0x40),
			expectWrite(RegTimeoutLo, 0x10),
			expectWrite(RegTimeoutHi, 0x1),
			expectWrite(RegDRAMSection, 0),
			expectWrite(RegIgnoreMin, 0xffffffff),
			expectWrite(RegDebugNoStall, 0),
			expectWrite(RegStart, 1),
			expectRead(RegCounterLo, 0x100),
			expectRead(RegCounterHi, 0x2),
			expectWrite(RegIAR, 1),
			expectRead(RegReturn, 0x0b).Do(func(*sim.Proc, uint64) {
				stateAtReturn = c.State()
			}),
			expectRead(RegExcArg0, 0x40000010),
			expectRead(RegExcArg1, 0xdead).Do(func(*sim.Proc, uint64) {
				stateAtExcArg = c.State()
			}),
		)

		var (
			result     Result
			doneAt     sim.VTimeInCycle
			stateAfter State
		)

		err := domain.Run("main", func(p *sim.Proc) error {
			raiseInterruptAt(p, 5)

			var err error
			result, err = c.StartWait(p, args)
			doneAt = p.Now()
			stateAfter = c.State()

			return err
		})

		Expect(err).NotTo(HaveOccurred())
		Expect(result).To(Equal(Result{
			Status:  MakeExceptionStatus(5),
			ExcArg0: 0x40000010,
			ExcArg1: 0xdead,
			Cycles:  0x2_00000100,
		}))
		Expect(result.Completion()).To(Equal(CompletionException))
		Expect(doneAt).To(Equal(sim.VTimeInCycle(16)))
		Expect(stateAtReturn).To(Equal(StateCompleted))
		Expect(stateAtExcArg).To(Equal(StateCompleted))
		Expect(stateAfter).To(Equal(StateIdle))
		Expect(c.LastResult()).To(Equal(result))
	})

	It("should invalidate the data cache when running out of DRAM", func() {
		c := builder.WithDRAM(true).WithSettleDelay(0).
			Build("PE", regs, bitmap, interrupt)

		startCall := expectWrite(RegStart, 1)
		invalidateCall := expectWrite(RegInvalidate,
			uint64(InvalidateDCache)).After(startCall)
		expectRead(RegCounterLo, 7).After(invalidateCall)

		regs.EXPECT().Read(gomock.Any(), gomock.Any()).
			Return(uint64(0), nil).AnyTimes()
		regs.EXPECT().Write(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(axi.RespOkay, nil).AnyTimes()

		var result Result
		err := domain.Run("main", func(p *sim.Proc) error {
			raiseInterruptAt(p, 1)

			var err error
			result, err = c.StartWait(p, args)

			return err
		})

		Expect(err).NotTo(HaveOccurred())
		Expect(result.Status.IsSuccess()).To(BeTrue())
		Expect(result.Cycles).To(Equal(uint64(7)))
		Expect(result.Completion()).To(Equal(CompletionSuccess))
	})

	It("should use the tapasco-riscv register map", func() {
		c := builder.WithTapascoRISCV(true).
			Build("PE", regs, bitmap, interrupt)

		gomock.InOrder(
			expectRead(RegStart, 0),
			expectWrite(RegGIER, 1),
			expectWrite(RegIER, 1),
			expectWrite(RegArgLength, 8),
			expectWrite(RegArgPointer, 0x4080eff8),
			expectWrite(RegBitmapSize, 0x40),
			expectWrite(RegStart, 1),
			expectRead(RegTimeoutLo, 300),
			expectRead(RegTimeoutHi, 0),
			expectWrite(RegIAR, 1),
		)

		var result Result
		err := domain.Run("main", func(p *sim.Proc) error {
			raiseInterruptAt(p, 3)

			var err error
			result, err = c.StartWait(p, args)

			return err
		})

		Expect(err).NotTo(HaveOccurred())
		Expect(result).To(Equal(Result{Cycles: 300}))
	})

	It("should return bus errors", func() {
		c := builder.Build("PE", regs, bitmap, interrupt)
		busErr := &axi.ProtocolError{
			Op:   axi.OpWrite,
			Addr: RegGIER,
			Resp: axi.RespSlvErr,
		}

		expectRead(RegStart, 0)
		regs.EXPECT().Write(gomock.Any(), RegGIER, uint64(1)).
			Return(axi.RespSlvErr, busErr)

		err := domain.Run("main", func(p *sim.Proc) error {
			_, err := c.StartWait(p, args)
			return err
		})

		var perr *axi.ProtocolError
		Expect(errors.As(err, &perr)).To(BeTrue())
		Expect(perr.Addr).To(Equal(RegGIER))
		Expect(c.State()).To(Equal(StateIdle))
	})

	It("should write invalidate flags", func() {
		c := builder.Build("PE", regs, bitmap, interrupt)
		expectWrite(RegInvalidate,
			uint64(InvalidateICache|InvalidateBranchPredictor))

		err := domain.Run("main", func(p *sim.Proc) error {
			return c.Invalidate(p, InvalidateICache|InvalidateBranchPredictor)
		})

		Expect(err).NotTo(HaveOccurred())
	})

	It("should reassemble the bitmap in little-endian order", func() {
		c := builder.Build("PE", regs, bitmap, interrupt)

		gomock.InOrder(
			bitmap.EXPECT().Read(gomock.Any(), uint64(0x20000)).
				Return(uint64(0x04030201), nil),
			bitmap.EXPECT().Read(gomock.Any(), uint64(0x20004)).
				Return(uint64(0x08070605), nil),
		)

		var bmp []byte
		err := domain.Run("main", func(p *sim.Proc) error {
			var err error
			bmp, err = c.ReadBitmap(p, 0x20000, 8)

			return err
		})

		Expect(err).NotTo(HaveOccurred())
		Expect(bmp).To(Equal([]byte{1, 2, 3, 4, 5, 6, 7, 8}))
	})

	It("should reject bitmaps that are not whole words", func() {
		c := builder.Build("PE", regs, bitmap, interrupt)

		err := domain.Run("main", func(p *sim.Proc) error {
			_, err := c.ReadBitmap(p, 0x20000, 6)
			return err
		})

		Expect(err).To(HaveOccurred())
	})
})
