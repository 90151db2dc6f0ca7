// Package pemodel provides a behavioural processing element. It has the
// control registers, the local memory, and the interrupt of a real PE, and
// runs a Program instead of a core.
package pemodel

import (
	"github.com/go-logr/logr"
	"github.com/sarchlab/axifuzz/axi"
	"github.com/sarchlab/axifuzz/memory"
	"github.com/sarchlab/axifuzz/pe"
	"github.com/sarchlab/axifuzz/sim"
)

// CauseLoadAccessFault is reported when the input pointer is outside of the
// data region.
const CauseLoadAccessFault = 5

const numRegisters = 0x100

// A PE is a behavioural processing element.
type PE struct {
	sim.HookableBase

	name         string
	log          logr.Logger
	mmap         MemoryMap
	program      Program
	tapascoRISCV bool

	regs  [numRegisters / 4]uint32
	local *memory.Storage

	ctrlSlave  *axi.RegisterSlave
	localSlave *axi.Slave
	dram       *axi.BurstDriver
	dramBytes  int

	interrupt *sim.Signal
	start     *sim.Signal

	busy          bool
	done          bool
	runs          int
	invalidations []uint32
}

// Name returns the name of the PE.
func (m *PE) Name() string {
	return m.name
}

// Interrupt returns the interrupt line of the PE.
func (m *PE) Interrupt() *sim.Signal {
	return m.interrupt
}

// LocalMemory returns the local memory of the PE.
func (m *PE) LocalMemory() *memory.Storage {
	return m.local
}

// LocalSlave returns the slave that serves the local memory.
func (m *PE) LocalSlave() *axi.Slave {
	return m.localSlave
}

// Runs returns the number of runs that the PE has completed.
func (m *PE) Runs() int {
	return m.runs
}

// Busy tells if the PE is running.
func (m *PE) Busy() bool {
	return m.busy
}

// Invalidations returns the flags written to the invalidate register, in
// order.
func (m *PE) Invalidations() []uint32 {
	return append([]uint32(nil), m.invalidations...)
}

// Register returns the current value of a control register.
func (m *PE) Register(addr uint64) uint32 {
	if addr == pe.RegStart {
		return m.controlWord()
	}

	return m.regs[addr/4]
}

func (m *PE) controlWord() uint32 {
	var w uint32

	if m.busy {
		w |= pe.StartBitStart
	} else {
		w |= pe.StartBitIdle
	}

	if m.done {
		w |= pe.StartBitDone
	}

	return w
}

type controlRegisters struct {
	m *PE
}

func (r controlRegisters) ReadReg(addr uint64) (uint32, uint32) {
	if addr%4 != 0 || addr >= numRegisters {
		return 0, axi.RespSlvErr
	}

	return r.m.Register(addr), axi.RespOkay
}

func (r controlRegisters) WriteReg(addr uint64, value uint32, strobe uint8) uint32 {
	if addr%4 != 0 || addr >= numRegisters {
		return axi.RespSlvErr
	}

	v := r.m.regs[addr/4]
	for i := 0; i < 4; i++ {
		if strobe&(1<<uint(i)) != 0 {
			mask := uint32(0xff) << uint(8*i)
			v = v&^mask | value&mask
		}
	}

	switch addr {
	case pe.RegStart:
		r.m.requestStart(v)
	case pe.RegIAR:
		r.m.interrupt.SetBool(false)
	case pe.RegInvalidate:
		r.m.invalidations = append(r.m.invalidations, v)
		r.m.log.V(1).Info("invalidate", "flags", v)
	default:
		r.m.regs[addr/4] = v
	}

	return axi.RespOkay
}

func (m *PE) requestStart(v uint32) {
	if v&pe.StartBitStart == 0 || m.busy {
		return
	}

	m.busy = true
	m.done = false
	m.start.SetBool(true)
}

func (m *PE) timeout() uint64 {
	if m.tapascoRISCV {
		return 0
	}

	return uint64(m.regs[pe.RegTimeoutLo/4]) |
		uint64(m.regs[pe.RegTimeoutHi/4])<<32
}

func (m *PE) ignoreMin() uint32 {
	if m.tapascoRISCV {
		return 0xffffffff
	}

	return m.regs[pe.RegIgnoreMin/4]
}

func (m *PE) core(p *sim.Proc) error {
	for {
		p.WaitRise(m.start)
		m.start.SetBool(false)

		if err := m.execute(p); err != nil {
			return err
		}
	}
}

func (m *PE) execute(p *sim.Proc) error {
	startedAt := p.Now()
	argLen := m.regs[pe.RegArgLength/4]
	argPtr := m.regs[pe.RegArgPointer/4]
	bitmapSize := m.regs[pe.RegBitmapSize/4]

	m.log.V(1).Info("pe start",
		"argLen", argLen,
		"argPtr", argPtr,
		"bitmapSize", bitmapSize)

	var (
		status pe.Status
		out    Outcome
	)

	switch {
	case !m.mmap.ValidBitmapSize(bitmapSize):
		status = pe.StatusInvalidBitmapSize
		out.Cycles = 1
	default:
		input, ok, err := m.fetchInput(p, uint64(argPtr), argLen)
		if err != nil {
			return err
		}

		bitmap := make([]byte, bitmapSize)
		if ok {
			out = m.program.Execute(input, bitmap, m.ignoreMin())
		} else {
			out = Outcome{
				Cycles:    1,
				Exception: true,
				Cause:     CauseLoadAccessFault,
				EPC:       uint32(m.mmap.RAMBase),
				TVal:      argPtr,
			}
		}

		if out.Exception {
			status |= pe.MakeExceptionStatus(out.Cause)
		}

		if err := m.local.Write(m.mmap.BitmapLoc, bitmap); err != nil {
			return err
		}
	}

	cycles := out.Cycles
	if t := m.timeout(); t != 0 && cycles > t {
		status |= pe.StatusTimeout
		cycles = t
	}

	if elapsed := uint64(p.Now() - startedAt); cycles > elapsed {
		p.WaitCycles(int(cycles - elapsed))
	} else {
		cycles = elapsed
	}

	m.finish(status, out, cycles)

	return nil
}

func (m *PE) fetchInput(
	p *sim.Proc,
	argPtr uint64,
	argLen uint32,
) ([]byte, bool, error) {
	phys, ok := m.mmap.Translate(argPtr)
	if !ok {
		return nil, false, nil
	}

	if argLen == 0 {
		return nil, true, nil
	}

	if m.mmap.InputFromDRAM && m.dram != nil {
		data, err := m.fetchFromDRAM(p, phys, argLen)
		return data, err == nil, err
	}

	data, err := m.local.Read(phys, uint64(argLen))
	if err != nil {
		m.log.V(1).Info("input out of range", "error", err.Error())
		return nil, false, nil
	}

	p.WaitCycles(int((argLen + 3) / 4))

	return data, true, nil
}

func (m *PE) fetchFromDRAM(p *sim.Proc, phys uint64, n uint32) ([]byte, error) {
	const maxBeats = 16

	w := uint64(m.dramBytes)
	base := phys &^ (w - 1)
	end := phys + uint64(n)
	words := int((end - base + w - 1) / w)

	data := make([]byte, 0, words*int(w))
	for i := 0; i < words; i += maxBeats {
		beats := min(maxBeats, words-i)

		chunk, err := m.dram.ReadBurst(p, base+uint64(i)*w, beats)
		if err != nil {
			return nil, err
		}

		data = append(data, chunk...)
	}

	off := phys - base

	return data[off : off+uint64(n)], nil
}

func (m *PE) finish(status pe.Status, out Outcome, cycles uint64) {
	m.regs[pe.RegReturn/4] = uint32(status)

	if m.tapascoRISCV {
		m.regs[pe.RegTimeoutLo/4] = uint32(cycles)
		m.regs[pe.RegTimeoutHi/4] = uint32(cycles >> 32)
	} else {
		m.regs[pe.RegExcArg0/4] = out.EPC
		m.regs[pe.RegExcArg1/4] = out.TVal
		m.regs[pe.RegCounterLo/4] = uint32(cycles)
		m.regs[pe.RegCounterHi/4] = uint32(cycles >> 32)
	}

	m.busy = false
	m.done = true
	m.runs++

	m.log.V(1).Info("pe done", "status", status.String(), "cycles", cycles)

	if m.regs[pe.RegGIER/4]&1 != 0 && m.regs[pe.RegIER/4]&1 != 0 {
		m.interrupt.SetBool(true)
	}
}
