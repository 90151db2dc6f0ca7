// Package platform assembles a complete simulated PE system: the PE model,
// its control and memory buses, the host-side masters, an optional DRAM, and
// the harness bench that drives them.
package platform

import (
	"github.com/go-logr/logr"
	"github.com/sarchlab/axifuzz/axi"
	"github.com/sarchlab/axifuzz/harness"
	"github.com/sarchlab/axifuzz/memory"
	"github.com/sarchlab/axifuzz/pe"
	"github.com/sarchlab/axifuzz/pemodel"
	"github.com/sarchlab/axifuzz/sim"
	"github.com/sarchlab/axifuzz/tracing"
)

// Bus names of the PE, as they appear in the RTL.
const (
	CtrlBusName = "S_AXI_CTRL"
	MemBusName  = "S_AXI_BRAM"
	DRAMBusName = "M_AXI"
)

// A Platform is a PE and everything that the harness needs to operate it.
type Platform struct {
	Domain *sim.ClockDomain
	Layout harness.Layout

	CtrlBus *axi.LiteBus
	MemBus  *axi.Bus
	DRAMBus *axi.Bus

	PE         *pemodel.PE
	CtrlMaster *axi.LiteMaster
	MemDriver  *axi.BurstDriver
	DRAMSlave  *axi.Slave
	DRAM       *memory.Storage

	Controller *pe.Controller
	Bench      *harness.Bench
}

// Builder can build Platforms.
type Builder struct {
	log             logr.Logger
	freq            sim.Freq
	layout          harness.Layout
	program         pemodel.Program
	artificialStall bool
}

// MakeBuilder returns a Builder for the BRAM layout.
func MakeBuilder() Builder {
	return Builder{
		log:     logr.Discard(),
		freq:    100 * sim.MHz,
		layout:  harness.LayoutBRAM,
		program: pemodel.DefaultEdgeWalk,
	}
}

// WithLogger sets the logger of every component.
func (b Builder) WithLogger(l logr.Logger) Builder {
	b.log = l
	return b
}

// WithFreq sets the clock frequency.
func (b Builder) WithFreq(f sim.Freq) Builder {
	b.freq = f
	return b
}

// WithLayout sets the memory topology.
func (b Builder) WithLayout(l harness.Layout) Builder {
	b.layout = l
	return b
}

// WithProgram sets the program that the PE runs.
func (b Builder) WithProgram(p pemodel.Program) Builder {
	b.program = p
	return b
}

// WithArtificialStall makes the memories stall every access.
func (b Builder) WithArtificialStall(enabled bool) Builder {
	b.artificialStall = enabled
	return b
}

// MemoryMap returns the memory map of a PE that uses the layout.
func MemoryMap(l harness.Layout) pemodel.MemoryMap {
	return pemodel.MemoryMap{
		RAMBase:       l.RAMBase,
		DataVirt:      l.DataVirt,
		DataPhys:      l.DataPhys,
		BitmapLoc:     l.BitmapLoc,
		MaxBitmap:     l.MaxBitmap,
		InputFromDRAM: l.DRAM && !l.LoadThroughBus,
	}
}

func localMemorySize(l harness.Layout) uint64 {
	size := uint64(pemodel.DefaultLocalMemorySize)

	if l.LoadThroughBus {
		size = max(size, l.InstrRange, l.DataPhys+l.DataRange, l.DRAMSize)
	}

	return size
}

// Build creates a Platform in a new clock domain.
func (b Builder) Build(name string) *Platform {
	sim.NameMustBeValid(name)

	l := b.layout
	d := sim.MakeClockDomainBuilder().
		WithFreq(b.freq).
		WithLogger(b.log).
		Build(name)

	p := &Platform{
		Domain:  d,
		Layout:  l,
		CtrlBus: axi.NewLiteBus(d, CtrlBusName, axi.BusConfig{AddrWidth: 8, DataBytes: 4}),
		MemBus:  axi.NewBus(d, MemBusName, axi.DefaultBusConfig),
	}

	peBuilder := pemodel.MakeBuilder().
		WithLogger(b.log).
		WithMemoryMap(MemoryMap(l)).
		WithProgram(b.program).
		WithLocalMemorySize(localMemorySize(l)).
		WithTapascoRISCV(l.TapascoRISCV).
		WithArtificialStall(b.artificialStall)

	if l.DRAM {
		p.DRAMBus = axi.NewBus(d, DRAMBusName, axi.DefaultBusConfig)
		p.DRAM = memory.NewStorage(l.DRAMSize)
		p.DRAMSlave = axi.MakeSlaveBuilder().
			WithLogger(b.log).
			WithStorage(p.DRAM).
			WithArtificialStall(b.artificialStall).
			Build(name+".DRAM", d, p.DRAMBus)
		peBuilder = peBuilder.WithDRAMPort(p.DRAMBus)
	}

	p.PE = peBuilder.Build(name+".PE", d, p.CtrlBus, p.MemBus)

	p.CtrlMaster = axi.MakeLiteMasterBuilder().
		WithLogger(b.log).
		Build(name+".Host.Ctrl", p.CtrlBus)
	p.MemDriver = axi.MakeBurstDriverBuilder().
		WithLogger(b.log).
		Build(name+".Host.Mem", p.MemBus)

	p.Controller = pe.MakeControllerBuilder().
		WithLogger(b.log).
		WithDRAM(l.DRAM).
		WithTapascoRISCV(l.TapascoRISCV).
		Build(name+".Host.PE", p.CtrlMaster, p.MemDriver, p.PE.Interrupt())

	var dram *memory.Storage
	if !l.LoadThroughBus {
		dram = p.DRAM
	}
	p.Bench = harness.NewBench(l, p.Controller, p.MemDriver, dram, b.log)

	return p
}

// AttachTracer makes every component of the platform report its tasks to t.
func (p *Platform) AttachTracer(t tracing.Tracer) {
	tracing.CollectTrace(t, p.Components()...)
}

// Components returns every named component of the platform.
func (p *Platform) Components() []tracing.NamedHookable {
	comps := []tracing.NamedHookable{
		p.PE,
		p.PE.LocalSlave(),
		p.CtrlMaster,
		p.MemDriver,
		p.Controller,
	}

	if p.DRAMSlave != nil {
		comps = append(comps, p.DRAMSlave)
	}

	return comps
}

// Buffers returns the request queues of the memories.
func (p *Platform) Buffers() []sim.Buffer {
	bufs := p.PE.LocalSlave().Buffers()

	if p.DRAMSlave != nil {
		bufs = append(bufs, p.DRAMSlave.Buffers()...)
	}

	return bufs
}
