package axi

import (
	"fmt"

	"github.com/go-logr/logr"
	"github.com/sarchlab/axifuzz/sim"
	"github.com/sarchlab/axifuzz/tracing"
)

// A RegisterFile is what a RegisterSlave exposes on the bus.
type RegisterFile interface {
	// ReadReg returns the value of the register at addr and the read
	// response.
	ReadReg(addr uint64) (value uint32, resp uint32)

	// WriteReg updates the register at addr. Only bytes whose strobe bit is
	// set are written. It returns the write response.
	WriteReg(addr uint64, value uint32, strobe uint8) (resp uint32)
}

// A RegisterSlave serves a RegisterFile on a 32-bit AXI4-Lite bus. It handles
// one read and one write at a time.
type RegisterSlave struct {
	sim.HookableBase

	name string
	bus  *LiteBus
	regs RegisterFile
	log  logr.Logger
}

// RegisterSlaveBuilder can build RegisterSlaves.
type RegisterSlaveBuilder struct {
	log logr.Logger
}

// MakeRegisterSlaveBuilder returns a RegisterSlaveBuilder with default
// parameters.
func MakeRegisterSlaveBuilder() RegisterSlaveBuilder {
	return RegisterSlaveBuilder{log: logr.Discard()}
}

// WithLogger sets the logger.
func (b RegisterSlaveBuilder) WithLogger(l logr.Logger) RegisterSlaveBuilder {
	b.log = l
	return b
}

// Build creates a RegisterSlave and spawns its read and write processes as
// daemons of the domain.
func (b RegisterSlaveBuilder) Build(
	name string,
	d *sim.ClockDomain,
	bus *LiteBus,
	regs RegisterFile,
) *RegisterSlave {
	sim.NameMustBeValid(name)

	if err := bus.Validate(); err != nil {
		panic(err)
	}

	if bus.cfg.DataBytes != 4 {
		panic(fmt.Sprintf("register slave %s needs a 32-bit bus", name))
	}

	s := &RegisterSlave{
		name: name,
		bus:  bus,
		regs: regs,
		log:  b.log.WithName(name),
	}

	bus.AWREADY.SetBool(false)
	bus.WREADY.SetBool(false)
	bus.BVALID.SetBool(false)
	bus.BRESP.SetUint(0)
	bus.ARREADY.SetBool(false)
	bus.RVALID.SetBool(false)
	bus.RRESP.SetUint(0)

	d.SpawnDaemon(name+".write", s.serveWrites)
	d.SpawnDaemon(name+".read", s.serveReads)

	return s
}

// Name returns the name of the slave.
func (s *RegisterSlave) Name() string {
	return s.name
}

func (s *RegisterSlave) serveWrites(p *sim.Proc) error {
	var (
		haveAddr, haveData bool
		addr               uint64
		value              uint32
		strobe             uint8
	)

	for {
		s.bus.AWREADY.SetBool(!haveAddr)
		s.bus.WREADY.SetBool(!haveData)

		p.ReadOnly()
		if !haveAddr && s.bus.AWVALID.Bool() && s.bus.AWREADY.Bool() {
			addr = s.bus.AWADDR.Uint()
			haveAddr = true
		}

		if !haveData && s.bus.WVALID.Bool() && s.bus.WREADY.Bool() {
			value = uint32(s.bus.WDATA.Uint())
			strobe = uint8(s.bus.WSTRB.Uint())
			haveData = true
		}

		p.RisingEdge()

		if !haveAddr || !haveData {
			continue
		}

		txnID := sim.NewID("AW")
		tracing.TraceReqReceive(txnID, s, OpWrite, addr)

		s.bus.AWREADY.SetBool(false)
		s.bus.WREADY.SetBool(false)

		resp := s.regs.WriteReg(addr, value, strobe)
		s.log.V(2).Info("register write", "addr", fmt.Sprintf("0x%02x", addr),
			"value", fmt.Sprintf("0x%08x", value), "resp", resp)

		s.bus.BRESP.SetUint(uint64(resp))
		s.bus.BVALID.SetBool(true)

		for {
			p.ReadOnly()
			if s.bus.BREADY.Bool() {
				break
			}
			p.RisingEdge()
		}

		p.RisingEdge()
		s.bus.BVALID.SetBool(false)
		haveAddr, haveData = false, false

		tracing.TraceReqComplete(txnID, s)
	}
}

func (s *RegisterSlave) serveReads(p *sim.Proc) error {
	for {
		s.bus.ARREADY.SetBool(true)

		p.ReadOnly()
		if !s.bus.ARVALID.Bool() || !s.bus.ARREADY.Bool() {
			p.RisingEdge()
			continue
		}

		addr := s.bus.ARADDR.Uint()
		txnID := sim.NewID("AR")
		tracing.TraceReqReceive(txnID, s, OpRead, addr)

		p.RisingEdge()
		s.bus.ARREADY.SetBool(false)

		value, resp := s.regs.ReadReg(addr)
		s.log.V(2).Info("register read", "addr", fmt.Sprintf("0x%02x", addr),
			"value", fmt.Sprintf("0x%08x", value), "resp", resp)

		s.bus.RDATA.SetUint(uint64(value))
		s.bus.RRESP.SetUint(uint64(resp))
		s.bus.RVALID.SetBool(true)

		for {
			p.ReadOnly()
			if s.bus.RREADY.Bool() {
				break
			}
			p.RisingEdge()
		}

		p.RisingEdge()
		s.bus.RVALID.SetBool(false)

		tracing.TraceReqComplete(txnID, s)
	}
}
