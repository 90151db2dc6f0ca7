package platform

import (
	"errors"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/axifuzz/harness"
	"github.com/sarchlab/axifuzz/pe"
	"github.com/sarchlab/axifuzz/pemodel"
	"github.com/sarchlab/axifuzz/shm"
	"github.com/sarchlab/axifuzz/sim"
	"github.com/sarchlab/axifuzz/tracing"
)

var firmware = &harness.Image{
	Name: "fw.bin",
	Data: []byte{0x13, 0x00, 0x00, 0x00, 0x6f, 0x00, 0x00, 0x00},
}

type runOutput struct {
	result pe.Result
	bitmap []byte
}

func runInput(
	p *sim.Proc,
	b *harness.Bench,
	input []byte,
	bitmapSize uint32,
) (runOutput, error) {
	if err := b.ReloadData(p); err != nil {
		return runOutput{}, err
	}

	virt, err := b.PlaceInput(p, input)
	if err != nil {
		return runOutput{}, err
	}

	r, err := b.PE.StartWait(p, pe.RunArgs{
		ArgLength:  uint32(len(input)),
		ArgPointer: uint32(virt),
		BitmapSize: bitmapSize,
		IgnoreMin:  0xffffffff,
	})
	if err != nil {
		return runOutput{}, err
	}

	bmp, err := b.ReadBitmap(p, bitmapSize)

	return runOutput{result: r, bitmap: bmp}, err
}

var _ = Describe("Platform", func() {
	input := []byte("ABCDEFGH")

	It("should give the same result for the same input", func() {
		plat := MakeBuilder().WithLogger(GinkgoLogr).Build("Sys")

		var outs []runOutput
		err := plat.Domain.Run("main", func(p *sim.Proc) error {
			if err := plat.Bench.LoadImage(p, firmware); err != nil {
				return err
			}

			for i := 0; i < 2; i++ {
				out, err := runInput(p, plat.Bench, input, 0x40)
				if err != nil {
					return err
				}
				outs = append(outs, out)
			}

			return nil
		})
		Expect(err).NotTo(HaveOccurred())

		Expect(outs).To(HaveLen(2))
		for _, out := range outs {
			Expect(out.result.Status).To(Equal(pe.Status(0)))
			Expect(out.bitmap).To(HaveLen(0x40))
		}
		Expect(outs[1].bitmap).To(Equal(outs[0].bitmap))
		Expect(outs[0].bitmap).NotTo(Equal(make([]byte, 0x40)))

		expected := make([]byte, 0x40)
		pemodel.DefaultEdgeWalk.Execute(input, expected, 0xffffffff)
		Expect(outs[0].bitmap).To(Equal(expected))

		Expect(plat.PE.Runs()).To(Equal(2))
		Expect(plat.Controller.State()).To(Equal(pe.StateIdle))
	})

	It("should place the input at the end of the data region", func() {
		plat := MakeBuilder().Build("Sys")

		var virt uint64
		err := plat.Domain.Run("main", func(p *sim.Proc) error {
			var err error
			virt, err = plat.Bench.PlaceInput(p, input)

			return err
		})
		Expect(err).NotTo(HaveOccurred())

		Expect(virt).To(Equal(uint64(0x4080eff8)))
		data, err := plat.PE.LocalMemory().Read(0x1eff8, 8)
		Expect(err).NotTo(HaveOccurred())
		Expect(data).To(Equal(input))
	})

	It("should run out of DRAM", func() {
		plat := MakeBuilder().
			WithLayout(harness.LayoutDRAM).
			WithArtificialStall(true).
			Build("Sys")

		var out runOutput
		err := plat.Domain.Run("main", func(p *sim.Proc) error {
			if err := plat.Bench.LoadImage(p, firmware); err != nil {
				return err
			}

			var err error
			out, err = runInput(p, plat.Bench, input, 0x40)

			return err
		})
		Expect(err).NotTo(HaveOccurred())

		Expect(out.result.Status.IsSuccess()).To(BeTrue())

		off := harness.LayoutDRAM.InputOffset(8)
		data, err := plat.DRAM.Read(harness.LayoutDRAM.InputPhys(off), 8)
		Expect(err).NotTo(HaveOccurred())
		Expect(data).To(Equal(input))

		Expect(plat.PE.Invalidations()).To(ContainElement(pe.InvalidateDCache))
		Expect(plat.DRAMSlave.Stats().BurstsRead).To(BeNumerically(">", 0))
	})

	It("should trace bus transactions", func() {
		plat := MakeBuilder().Build("Sys")
		tracer := tracing.NewBusTracer(plat.Domain.Engine(),
			tracing.KindFilter(tracing.KindReqIn))
		plat.AttachTracer(tracer)

		err := plat.Domain.Run("main", func(p *sim.Proc) error {
			_, err := runInput(p, plat.Bench, input, 0x40)
			return err
		})
		Expect(err).NotTo(HaveOccurred())

		for _, name := range []string{"Sys.PE.Local:read", "Sys.PE.Local:write"} {
			ch, ok := tracer.Channel(name)
			Expect(ok).To(BeTrue(), name)
			Expect(ch.Completed).To(BeNumerically(">", 0), name)
			Expect(ch.BusyCycles).To(BeNumerically(">", 0), name)
		}
		Expect(plat.Components()).To(HaveLen(5))
		Expect(plat.Buffers()).To(HaveLen(3))
	})

	It("should serve a fuzzer over pipes and shared memory", func() {
		plat := MakeBuilder().WithLayout(harness.LayoutHBM).Build("Sys")

		region, err := shm.CreateFile(
			filepath.Join(GinkgoT().TempDir(), "fuzz_shm"), 0x10000)
		Expect(err).NotTo(HaveOccurred())
		defer region.Close()

		peer, err := shm.OpenFile(region.Path(), region.Size())
		Expect(err).NotTo(HaveOccurred())
		defer peer.Close()

		reqR, reqW, err := os.Pipe()
		Expect(err).NotTo(HaveOccurred())
		respR, respW, err := os.Pipe()
		Expect(err).NotTo(HaveOccurred())

		server := harness.MakeServerBuilder().
			WithLogger(GinkgoLogr).
			Build(plat.Bench, harness.NewControlBlock(region.Bytes()), reqR, respW)

		done := make(chan error, 1)
		go func() {
			err := plat.Domain.Run("main", func(p *sim.Proc) error {
				return server.Serve(p, firmware)
			})
			respW.Close()
			done <- err
		}()

		client := harness.NewClient(
			harness.NewControlBlock(peer.Bytes()), reqW, respR)

		var bitmaps [][]byte
		for i := 0; i < 2; i++ {
			r, bmp, err := client.Run(input, 0x40, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(r.Status).To(Equal(pe.Status(0)))
			Expect(r.Cycles).To(BeNumerically(">", 0))
			bitmaps = append(bitmaps, bmp)
		}
		Expect(bitmaps[1]).To(Equal(bitmaps[0]))

		_, err = client.Start(0x30, 0)
		Expect(err).To(HaveOccurred())

		var serveErr error
		Eventually(done).Should(Receive(&serveErr))
		var sizeErr *harness.SizeError
		Expect(errors.As(serveErr, &sizeErr)).To(BeTrue())
		Expect(sizeErr.Size).To(Equal(uint64(0x30)))
	})

	It("should stop serving when the fuzzer closes", func() {
		plat := MakeBuilder().Build("Sys")
		cb := make([]byte, 0x1000)

		reqR, reqW, err := os.Pipe()
		Expect(err).NotTo(HaveOccurred())
		respR, respW, err := os.Pipe()
		Expect(err).NotTo(HaveOccurred())

		server := harness.MakeServerBuilder().
			Build(plat.Bench, harness.NewControlBlock(cb), reqR, respW)

		done := make(chan error, 1)
		go func() {
			done <- plat.Domain.Run("main", func(p *sim.Proc) error {
				return server.Serve(p, firmware)
			})
		}()

		client := harness.NewClient(harness.NewControlBlock(cb), reqW, respR)
		Expect(client.SetInput(input)).To(Succeed())
		Expect(client.Close()).To(Succeed())

		Eventually(done).Should(Receive(BeNil()))
		Expect(server.Session().InputSize).To(Equal(uint32(8)))
	})
})
