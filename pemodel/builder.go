package pemodel

import (
	"github.com/go-logr/logr"
	"github.com/sarchlab/axifuzz/axi"
	"github.com/sarchlab/axifuzz/memory"
	"github.com/sarchlab/axifuzz/sim"
)

// DefaultLocalMemorySize is the size of the local memory of a PE.
const DefaultLocalMemorySize = 0x30000

// Builder can build PEs.
type Builder struct {
	log             logr.Logger
	mmap            MemoryMap
	program         Program
	localMemorySize uint64
	tapascoRISCV    bool
	artificialStall bool
	dramPort        *axi.Bus
}

// MakeBuilder returns a Builder with default parameters.
func MakeBuilder() Builder {
	return Builder{
		log:             logr.Discard(),
		mmap:            DefaultMemoryMap,
		program:         DefaultEdgeWalk,
		localMemorySize: DefaultLocalMemorySize,
	}
}

// WithLogger sets the logger.
func (b Builder) WithLogger(l logr.Logger) Builder {
	b.log = l
	return b
}

// WithMemoryMap sets where the input and the bitmap are.
func (b Builder) WithMemoryMap(m MemoryMap) Builder {
	b.mmap = m
	return b
}

// WithProgram sets the program that the PE runs.
func (b Builder) WithProgram(p Program) Builder {
	b.program = p
	return b
}

// WithLocalMemorySize sets the size of the local memory. The memory always
// covers the largest bitmap.
func (b Builder) WithLocalMemorySize(n uint64) Builder {
	b.localMemorySize = n
	return b
}

// WithTapascoRISCV makes the PE use the register map of the plain
// tapasco-riscv PE.
func (b Builder) WithTapascoRISCV(enabled bool) Builder {
	b.tapascoRISCV = enabled
	return b
}

// WithArtificialStall makes the local memory stall every access.
func (b Builder) WithArtificialStall(enabled bool) Builder {
	b.artificialStall = enabled
	return b
}

// WithDRAMPort gives the PE a master port to an external DRAM.
func (b Builder) WithDRAMPort(bus *axi.Bus) Builder {
	b.dramPort = bus
	return b
}

// Build creates a PE that serves its control registers on ctrl and its local
// memory on local.
func (b Builder) Build(
	name string,
	d *sim.ClockDomain,
	ctrl *axi.LiteBus,
	local *axi.Bus,
) *PE {
	sim.NameMustBeValid(name)

	size := b.localMemorySize
	if end := b.mmap.BitmapLoc + uint64(b.mmap.MaxBitmap); end > size {
		size = end
	}

	m := &PE{
		name:         name,
		log:          b.log.WithName(name),
		mmap:         b.mmap,
		program:      b.program,
		tapascoRISCV: b.tapascoRISCV,
		local:        memory.NewStorage(size),
		interrupt:    d.NewSignal(name+"_interrupt", 1),
		start:        d.NewSignal(name+"_ap_start", 1),
	}

	m.ctrlSlave = axi.MakeRegisterSlaveBuilder().
		WithLogger(b.log).
		Build(name+".Ctrl", d, ctrl, controlRegisters{m: m})

	m.localSlave = axi.MakeSlaveBuilder().
		WithLogger(b.log).
		WithStorage(m.local).
		WithArtificialStall(b.artificialStall).
		Build(name+".Local", d, local)

	if b.dramPort != nil {
		m.dram = axi.MakeBurstDriverBuilder().
			WithLogger(b.log).
			Build(name+".DRAM", b.dramPort)
		m.dramBytes = b.dramPort.Config().DataBytes
	}

	d.SpawnDaemon(name+".core", m.core)

	return m
}
