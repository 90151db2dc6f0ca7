package pemodel

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/axifuzz/axi"
	"github.com/sarchlab/axifuzz/memory"
	"github.com/sarchlab/axifuzz/pe"
	"github.com/sarchlab/axifuzz/sim"
)

var _ = Describe("PE", func() {
	const inputOffset = 0xeff8

	var (
		domain   *sim.ClockDomain
		ctrlBus  *axi.LiteBus
		localBus *axi.Bus
		builder  Builder
		model    *PE
		driver   *axi.BurstDriver
		ctrl     *pe.Controller
		input    []byte
	)

	build := func() {
		model = builder.Build("PE", domain, ctrlBus, localBus)
		driver = axi.MakeBurstDriverBuilder().Build("Host.Mem", localBus)
		master := axi.MakeLiteMasterBuilder().Build("Host.Ctrl", ctrlBus)
		ctrl = pe.MakeControllerBuilder().
			Build("Host.PE", master, driver, model.Interrupt())
	}

	args := func(size uint32) pe.RunArgs {
		return pe.RunArgs{
			ArgLength:  uint32(len(input)),
			ArgPointer: uint32(0x40800000 + inputOffset),
			BitmapSize: size,
			IgnoreMin:  0xffffffff,
		}
	}

	BeforeEach(func() {
		domain = sim.MakeClockDomainBuilder().Build("Clk")
		ctrlBus = axi.NewLiteBus(domain, "S_AXI_CTRL",
			axi.BusConfig{AddrWidth: 8, DataBytes: 4})
		localBus = axi.NewBus(domain, "S_AXI_BRAM", axi.DefaultBusConfig)
		builder = MakeBuilder().WithLogger(GinkgoLogr)
		input = []byte("FUZZ1234")
	})

	run := func(a pe.RunArgs) (pe.Result, []byte) {
		var (
			result pe.Result
			bitmap []byte
		)

		err := domain.Run("main", func(p *sim.Proc) error {
			err := driver.LoadBytes(p, 0x10000+inputOffset, input)
			if err != nil {
				return err
			}

			if result, err = ctrl.StartWait(p, a); err != nil {
				return err
			}

			if a.BitmapSize%4 == 0 && a.BitmapSize <= 0x2000 {
				bitmap, err = ctrl.ReadBitmap(p, 0x20000, int(a.BitmapSize))
			}

			return err
		})
		Expect(err).NotTo(HaveOccurred())

		return result, bitmap
	}

	It("should run the program on the input", func() {
		build()

		result, bitmap := run(args(0x40))

		Expect(result.Status.IsSuccess()).To(BeTrue())
		Expect(result.Cycles).To(Equal(uint64(64 + 12*8)))
		Expect(bitmap).To(HaveLen(0x40))
		Expect(bitmap).NotTo(Equal(make([]byte, 0x40)))
		Expect(model.Runs()).To(Equal(1))
		Expect(model.Interrupt().Bool()).To(BeFalse())
		Expect(model.Busy()).To(BeFalse())

		want := make([]byte, 0x40)
		DefaultEdgeWalk.Execute(input, want, 0xffffffff)
		Expect(bitmap).To(Equal(want))
	})

	It("should reject an invalid bitmap size", func() {
		build()

		result, _ := run(args(0x30))

		Expect(result.Status).To(Equal(pe.StatusInvalidBitmapSize))
		Expect(result.Completion()).To(Equal(pe.CompletionError))
	})

	It("should stop at the timeout", func() {
		build()

		a := args(0x40)
		a.TimeoutCycles = 10
		result, _ := run(a)

		Expect(result.Status).To(Equal(pe.StatusTimeout))
		Expect(result.Cycles).To(Equal(uint64(10)))
	})

	It("should fault on an input outside of the data region", func() {
		build()

		a := args(0x40)
		a.ArgPointer = 0x100
		result, _ := run(a)

		Expect(result.Status.Exception()).To(BeTrue())
		Expect(result.Status.Cause()).To(Equal(uint32(CauseLoadAccessFault)))
		Expect(result.ExcArg1).To(Equal(uint32(0x100)))
	})

	It("should report exceptions raised by the program", func() {
		builder = builder.WithProgram(ProgramFunc(
			func(in []byte, bmp []byte, _ uint32) Outcome {
				bmp[0] = 1
				return Outcome{
					Cycles:    20,
					Exception: true,
					Cause:     2,
					EPC:       0x40000104,
					TVal:      uint32(in[0]),
				}
			}))
		build()

		result, bitmap := run(args(0x10))

		Expect(result).To(Equal(pe.Result{
			Status:  pe.MakeExceptionStatus(2),
			ExcArg0: 0x40000104,
			ExcArg1: 'F',
			Cycles:  20,
		}))
		Expect(bitmap[0]).To(Equal(byte(1)))
	})

	It("should ignore edges above the floor", func() {
		build()

		a := args(0x40)
		a.IgnoreMin = 0
		_, bitmap := run(a)

		Expect(bitmap).To(Equal(make([]byte, 0x40)))
	})

	It("should fetch the input from DRAM", func() {
		dramBus := axi.NewBus(domain, "M_AXI", axi.DefaultBusConfig)
		dram := memory.NewStorage(0x1000000)
		axi.MakeSlaveBuilder().WithStorage(dram).Build("DRAM", domain, dramBus)

		builder = builder.
			WithDRAMPort(dramBus).
			WithMemoryMap(MemoryMap{
				RAMBase:       0x40000000,
				DataVirt:      0x800000,
				DataPhys:      0x800000,
				BitmapLoc:     0x20000,
				MaxBitmap:     0x2000,
				InputFromDRAM: true,
			})
		model = builder.Build("PE", domain, ctrlBus, localBus)
		driver = axi.MakeBurstDriverBuilder().Build("Host.Mem", localBus)
		master := axi.MakeLiteMasterBuilder().Build("Host.Ctrl", ctrlBus)
		ctrl = pe.MakeControllerBuilder().WithDRAM(true).
			Build("Host.PE", master, driver, model.Interrupt())

		input = []byte("0123456789abcdefghijklmnopqrstuvwxyz!")
		Expect(dram.Write(0x800000+0x7f0003, input)).To(Succeed())

		a := pe.RunArgs{
			ArgLength:  uint32(len(input)),
			ArgPointer: 0x40800000 + 0x7f0003,
			BitmapSize: 0x40,
			IgnoreMin:  0xffffffff,
		}

		var (
			result pe.Result
			bitmap []byte
		)
		err := domain.Run("main", func(p *sim.Proc) error {
			var err error
			if result, err = ctrl.StartWait(p, a); err != nil {
				return err
			}

			bitmap, err = ctrl.ReadBitmap(p, 0x20000, 0x40)

			return err
		})

		Expect(err).NotTo(HaveOccurred())
		Expect(result.Status.IsSuccess()).To(BeTrue())
		Expect(model.Invalidations()).To(Equal([]uint32{pe.InvalidateDCache}))

		want := make([]byte, 0x40)
		DefaultEdgeWalk.Execute(input, want, 0xffffffff)
		Expect(bitmap).To(Equal(want))
	})

	It("should report busy and done in the control register", func() {
		build()
		Expect(model.Register(pe.RegStart)).To(Equal(pe.StartBitIdle))

		run(args(0x40))

		Expect(model.Register(pe.RegStart)).
			To(Equal(pe.StartBitIdle | pe.StartBitDone))
	})
})
