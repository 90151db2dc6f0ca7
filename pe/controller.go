package pe

import (
	"encoding/binary"
	"fmt"

	"github.com/go-logr/logr"
	"github.com/sarchlab/axifuzz/axi"
	"github.com/sarchlab/axifuzz/sim"
	"github.com/sarchlab/axifuzz/tracing"
)

// A RegisterBus reads and writes 32-bit words. Both axi.LiteMaster and
// axi.BurstDriver are RegisterBuses.
type RegisterBus interface {
	Write(
		p *sim.Proc,
		addr uint64,
		value uint64,
		opts ...axi.WriteOption,
	) (uint32, error)
	Read(p *sim.Proc, addr uint64) (uint64, error)
}

// State is the lifecycle state of the PE as seen by a Controller.
type State int

// States of a PE.
const (
	StateIdle State = iota
	StateConfigured
	StateRunning
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConfigured:
		return "configured"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// RunArgs are the arguments of one PE run.
type RunArgs struct {
	ArgLength     uint32
	ArgPointer    uint32
	BitmapSize    uint32
	IgnoreMin     uint32
	TimeoutCycles uint64
}

// A Controller starts a PE, waits for its completion interrupt, and reads back
// the result and the coverage bitmap.
type Controller struct {
	sim.HookableBase

	name         string
	regs         RegisterBus
	bitmap       RegisterBus
	interrupt    *sim.Signal
	isDRAM       bool
	tapascoRISCV bool
	settleDelay  int
	log          logr.Logger

	state State
	last  Result
	runs  uint64
}

// ControllerBuilder can build Controllers.
type ControllerBuilder struct {
	log          logr.Logger
	isDRAM       bool
	tapascoRISCV bool
	settleDelay  int
}

// MakeControllerBuilder returns a ControllerBuilder with default parameters.
func MakeControllerBuilder() ControllerBuilder {
	return ControllerBuilder{
		log:         logr.Discard(),
		settleDelay: 10,
	}
}

// WithLogger sets the logger.
func (b ControllerBuilder) WithLogger(l logr.Logger) ControllerBuilder {
	b.log = l
	return b
}

// WithDRAM tells the controller that the PE runs out of external DRAM. The
// data cache is then invalidated after every run.
func (b ControllerBuilder) WithDRAM(isDRAM bool) ControllerBuilder {
	b.isDRAM = isDRAM
	return b
}

// WithTapascoRISCV selects the register map of the plain tapasco-riscv PE,
// which has no timeout, exception, or return registers and exposes its cycle
// counter at the timeout offsets.
func (b ControllerBuilder) WithTapascoRISCV(enabled bool) ControllerBuilder {
	b.tapascoRISCV = enabled
	return b
}

// WithSettleDelay sets the number of cycles to wait between reading the
// cycle counter and acknowledging the interrupt.
func (b ControllerBuilder) WithSettleDelay(cycles int) ControllerBuilder {
	b.settleDelay = cycles
	return b
}

// Build creates a Controller. regs reaches the control registers, bitmap
// reaches the memory that holds the coverage bitmap.
func (b ControllerBuilder) Build(
	name string,
	regs RegisterBus,
	bitmap RegisterBus,
	interrupt *sim.Signal,
) *Controller {
	sim.NameMustBeValid(name)

	if interrupt == nil {
		panic("pe controller needs an interrupt signal")
	}

	return &Controller{
		name:         name,
		regs:         regs,
		bitmap:       bitmap,
		interrupt:    interrupt,
		isDRAM:       b.isDRAM,
		tapascoRISCV: b.tapascoRISCV,
		settleDelay:  b.settleDelay,
		log:          b.log.WithName(name),
	}
}

// Name returns the name of the controller.
func (c *Controller) Name() string {
	return c.name
}

// State returns the lifecycle state of the PE.
func (c *Controller) State() State {
	return c.state
}

// LastResult returns the result of the most recent run.
func (c *Controller) LastResult() Result {
	return c.last
}

func (c *Controller) write(p *sim.Proc, addr uint64, value uint64) error {
	if _, err := c.regs.Write(p, addr, value); err != nil {
		return fmt.Errorf("pe register 0x%02x: %w", addr, err)
	}

	return nil
}

func (c *Controller) read(p *sim.Proc, addr uint64) (uint32, error) {
	v, err := c.regs.Read(p, addr)
	if err != nil {
		return 0, fmt.Errorf("pe register 0x%02x: %w", addr, err)
	}

	return uint32(v), nil
}

func (c *Controller) configure(p *sim.Proc, args RunArgs) error {
	start, err := c.read(p, RegStart)
	if err != nil {
		return err
	}
	c.log.V(1).Info("pe control", "value", fmt.Sprintf("0x%08x", start))

	writes := []struct {
		addr  uint64
		value uint64
	}{
		{RegGIER, 1},
		{RegIER, 1},
		{RegArgLength, uint64(args.ArgLength)},
		{RegArgPointer, uint64(args.ArgPointer)},
		{RegBitmapSize, uint64(args.BitmapSize)},
	}

	if !c.tapascoRISCV {
		c.log.V(1).Info("timeout",
			"low", args.TimeoutCycles&0xffffffff,
			"high", args.TimeoutCycles>>32)

		writes = append(writes, []struct {
			addr  uint64
			value uint64
		}{
			{RegTimeoutLo, args.TimeoutCycles & 0xffffffff},
			{RegTimeoutHi, args.TimeoutCycles >> 32},
			{RegDRAMSection, 0},
			{RegIgnoreMin, uint64(args.IgnoreMin)},
			{RegDebugNoStall, 0},
		}...)
	}

	for _, w := range writes {
		if err := c.write(p, w.addr, w.value); err != nil {
			return err
		}
	}

	return nil
}

func (c *Controller) readCounter(p *sim.Proc) (uint64, error) {
	lo, hi := RegCounterLo, RegCounterHi
	if c.tapascoRISCV {
		lo, hi = RegTimeoutLo, RegTimeoutHi
	}

	counterLo, err := c.read(p, lo)
	if err != nil {
		return 0, err
	}

	counterHi, err := c.read(p, hi)
	if err != nil {
		return 0, err
	}

	return uint64(counterLo) | uint64(counterHi)<<32, nil
}

func (c *Controller) readResult(p *sim.Proc, r *Result) error {
	if c.tapascoRISCV {
		return nil
	}

	ret, err := c.read(p, RegReturn)
	if err != nil {
		return err
	}

	if r.ExcArg0, err = c.read(p, RegExcArg0); err != nil {
		return err
	}

	if r.ExcArg1, err = c.read(p, RegExcArg1); err != nil {
		return err
	}

	r.Status = Status(ret)

	return nil
}

// StartWait configures and starts the PE, then blocks until the PE raises its
// interrupt. A failed PE run is reported in the status word of the result.
// The returned error is only set when the bus itself fails.
func (c *Controller) StartWait(p *sim.Proc, args RunArgs) (Result, error) {
	if c.state == StateConfigured || c.state == StateRunning {
		return Result{}, fmt.Errorf("pe %s is %s", c.name, c.state)
	}

	c.state = StateIdle
	c.runs++

	taskID := fmt.Sprintf("%s_run_%d", c.name, c.runs)
	tracing.StartTask(taskID, "", c, "pe", "run", args)
	defer tracing.EndTask(taskID, c)

	r, err := c.startWait(p, taskID, args)
	if err != nil {
		c.state = StateIdle
		return Result{}, err
	}

	c.state = StateIdle
	c.last = r

	c.log.V(1).Info("pe run done",
		"status", r.Status.String(),
		"completion", r.Completion().String(),
		"cycles", r.Cycles)

	return r, nil
}

func (c *Controller) startWait(
	p *sim.Proc,
	taskID string,
	args RunArgs,
) (Result, error) {
	var r Result

	if err := c.configure(p, args); err != nil {
		return r, err
	}
	c.state = StateConfigured

	if err := c.write(p, RegStart, 1); err != nil {
		return r, err
	}
	c.state = StateRunning
	tracing.AddTaskStep(taskID, c, "started")

	p.WaitRise(c.interrupt)
	c.state = StateCompleted
	tracing.AddTaskStep(taskID, c, "interrupt")

	if c.isDRAM {
		err := c.write(p, RegInvalidate, uint64(InvalidateDCache))
		if err != nil {
			return r, err
		}
	}

	cycles, err := c.readCounter(p)
	if err != nil {
		return r, err
	}
	r.Cycles = cycles
	c.log.V(1).Info("interrupt received", "counter", cycles)

	p.WaitCycles(c.settleDelay)

	if err := c.write(p, RegIAR, 1); err != nil {
		return r, err
	}

	if err := c.readResult(p, &r); err != nil {
		return r, err
	}

	return r, nil
}

// ReadBitmap reads size bytes of coverage bitmap at loc, one 32-bit word at a
// time. Words are reassembled in little-endian order.
func (c *Controller) ReadBitmap(p *sim.Proc, loc uint64, size int) ([]byte, error) {
	if size%4 != 0 {
		return nil, fmt.Errorf("bitmap size %d is not a multiple of 4", size)
	}

	bmp := make([]byte, size)
	for i := 0; i < size; i += 4 {
		v, err := c.bitmap.Read(p, loc+uint64(i))
		if err != nil {
			return nil, fmt.Errorf("bitmap word 0x%x: %w", loc+uint64(i), err)
		}

		binary.LittleEndian.PutUint32(bmp[i:], uint32(v))
	}

	return bmp, nil
}

// Invalidate writes the given flags to the invalidate register.
func (c *Controller) Invalidate(p *sim.Proc, flags uint32) error {
	return c.write(p, RegInvalidate, uint64(flags))
}
