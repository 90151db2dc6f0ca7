package harness

import (
	"github.com/go-logr/logr"
	"github.com/juju/errors"
	"github.com/sarchlab/axifuzz/memory"
	"github.com/sarchlab/axifuzz/pe"
	"github.com/sarchlab/axifuzz/sim"
)

// A PEController starts PE runs and reads back their coverage.
type PEController interface {
	StartWait(p *sim.Proc, args pe.RunArgs) (pe.Result, error)
	ReadBitmap(p *sim.Proc, loc uint64, size int) ([]byte, error)
	Invalidate(p *sim.Proc, flags uint32) error
}

// A MemoryLoader writes bytes into the memory of a PE over its bus.
type MemoryLoader interface {
	LoadBytes(p *sim.Proc, addr uint64, data []byte) error
}

// A Bench is the wiring that the harness operates on.
type Bench struct {
	PE     PEController
	Loader MemoryLoader
	DRAM   *memory.Storage
	Layout Layout

	log   logr.Logger
	image *Image
}

// NewBench creates a Bench. dram may be nil if the layout loads everything
// through the bus.
func NewBench(
	l Layout,
	ctrl PEController,
	loader MemoryLoader,
	dram *memory.Storage,
	log logr.Logger,
) *Bench {
	if !l.LoadThroughBus && dram == nil {
		panic("layout " + l.Name + " needs a DRAM storage")
	}

	return &Bench{
		PE:     ctrl,
		Loader: loader,
		DRAM:   dram,
		Layout: l,
		log:    log,
	}
}

// Image returns the loaded image, or nil.
func (b *Bench) Image() *Image {
	return b.image
}

// LoadImage validates an image and copies it into the memory of the PE.
func (b *Bench) LoadImage(p *sim.Proc, img *Image) error {
	if err := img.Validate(b.Layout); err != nil {
		return errors.Trace(err)
	}

	if b.Layout.LoadThroughBus {
		if err := b.Loader.LoadBytes(p, 0, img.InstrRegion(b.Layout)); err != nil {
			return errors.Annotatef(err, "loading instructions of %s", img.Name)
		}

		err := b.Loader.LoadBytes(p, b.Layout.DataPhys, img.DataRegion(b.Layout))
		if err != nil {
			return errors.Annotatef(err, "loading data of %s", img.Name)
		}
	} else {
		if err := b.DRAM.Write(0, img.Data); err != nil {
			return errors.Annotatef(err, "copying %s into DRAM", img.Name)
		}
	}

	b.image = img
	b.log.V(1).Info("image loaded", "image", img.Name, "bytes", img.Size())

	return nil
}

// ReloadData restores the data region of the image, which a previous run
// may have changed.
func (b *Bench) ReloadData(p *sim.Proc) error {
	if b.image == nil || !b.image.HasData(b.Layout) {
		return nil
	}

	data := b.image.DataRegion(b.Layout)

	if b.Layout.LoadThroughBus {
		err := b.Loader.LoadBytes(p, b.Layout.DataPhys, data)
		return errors.Annotatef(err, "reloading data of %s", b.image.Name)
	}

	err := b.DRAM.Write(b.Layout.DataPhys, data)

	return errors.Annotatef(err, "reloading data of %s", b.image.Name)
}

// PlaceInput copies an input to the end of the data region and returns the
// address at which the core sees it.
func (b *Bench) PlaceInput(p *sim.Proc, data []byte) (uint64, error) {
	l := b.Layout
	n := uint64(len(data))

	var imageSize uint64
	if b.image != nil {
		imageSize = b.image.Size()
	}

	if n > l.DataRange || l.DataVirt+l.InputOffset(n) <= imageSize {
		return 0, &SizeError{
			What:  "input",
			Size:  n,
			Limit: l.DataEnd() - imageSize,
			Msg:   "Input data too large",
		}
	}

	off := l.InputOffset(n)
	phys := l.InputPhys(off)

	if l.LoadThroughBus {
		if err := b.Loader.LoadBytes(p, phys, data); err != nil {
			return 0, errors.Annotatef(err, "loading input")
		}
	} else {
		if err := b.DRAM.Write(phys, data); err != nil {
			return 0, errors.Annotatef(err, "copying input into DRAM")
		}
	}

	return l.InputVirt(off), nil
}

// ReadBitmap reads the coverage bitmap of the last run.
func (b *Bench) ReadBitmap(p *sim.Proc, size uint32) ([]byte, error) {
	bmp, err := b.PE.ReadBitmap(p, b.Layout.BitmapLoc, int(size))
	if err != nil {
		return nil, errors.Annotatef(err, "reading bitmap")
	}

	return bmp, nil
}
