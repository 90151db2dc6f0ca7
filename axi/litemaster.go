package axi

import (
	"encoding/binary"
	"fmt"

	"github.com/go-logr/logr"
	"github.com/sarchlab/axifuzz/sim"
	"github.com/sarchlab/axifuzz/tracing"
)

// A WriteOption changes how a single write is issued.
type WriteOption func(*writeOptions)

type writeOptions struct {
	byteEnable    uint64
	hasByteEnable bool
	addrLatency   int
	dataLatency   int
}

// WithByteEnable sets WSTRB. By default all bytes are written.
func WithByteEnable(mask uint64) WriteOption {
	return func(o *writeOptions) {
		o.byteEnable = mask
		o.hasByteEnable = true
	}
}

// WithAddressLatency delays the address phase by n cycles.
func WithAddressLatency(n int) WriteOption {
	return func(o *writeOptions) {
		o.addrLatency = n
	}
}

// WithDataLatency delays the data phase by n cycles.
func WithDataLatency(n int) WriteOption {
	return func(o *writeOptions) {
		o.dataLatency = n
	}
}

type dataBeat struct {
	word   []byte
	strobe uint64
}

// responseOrder hands out response slots in the order in which the requests
// were accepted, at most one per cycle.
type responseOrder struct {
	issued     uint64
	served     uint64
	lastServed sim.VTimeInCycle
	anyServed  bool
}

func (o *responseOrder) take() uint64 {
	t := o.issued
	o.issued++

	return t
}

func (o *responseOrder) turn(ticket uint64, now sim.VTimeInCycle) bool {
	return o.served == ticket && (!o.anyServed || o.lastServed != now)
}

func (o *responseOrder) done(now sim.VTimeInCycle) {
	o.served++
	o.lastServed = now
	o.anyServed = true
}

// LiteMaster issues single-beat reads and writes on an AXI4-Lite bus.
//
// Every call blocks the calling process until the response arrives. The
// address and data phases of a write run as two independent processes, so a
// slave may accept them in any order.
type LiteMaster struct {
	sim.HookableBase

	name string
	bus  *LiteBus
	full *Bus
	log  logr.Logger

	writeAddressBusy *sim.Lock
	writeDataBusy    *sim.Lock
	readAddressBusy  *sim.Lock

	writeResponses responseOrder
	readResponses  responseOrder
}

// LiteMasterBuilder can build LiteMasters.
type LiteMasterBuilder struct {
	log logr.Logger
}

// MakeLiteMasterBuilder returns a LiteMasterBuilder with default parameters.
func MakeLiteMasterBuilder() LiteMasterBuilder {
	return LiteMasterBuilder{log: logr.Discard()}
}

// WithLogger sets the logger.
func (b LiteMasterBuilder) WithLogger(l logr.Logger) LiteMasterBuilder {
	b.log = l
	return b
}

// Build creates a LiteMaster and drives the idle values of the master side
// signals.
func (b LiteMasterBuilder) Build(name string, bus *LiteBus) *LiteMaster {
	m := newLiteMaster(name, bus, b.log)
	m.driveDefaults()

	return m
}

func newLiteMaster(name string, bus *LiteBus, log logr.Logger) *LiteMaster {
	sim.NameMustBeValid(name)

	if err := bus.Validate(); err != nil {
		panic(err)
	}

	return &LiteMaster{
		name:             name,
		bus:              bus,
		log:              log.WithName(name),
		writeAddressBusy: sim.NewLock(name + "_wabusy"),
		writeDataBusy:    sim.NewLock(name + "_wbusy"),
		readAddressBusy:  sim.NewLock(name + "_rabusy"),
	}
}

func (m *LiteMaster) driveDefaults() {
	m.bus.AWVALID.SetBool(false)
	m.bus.WVALID.SetBool(false)
	m.bus.ARVALID.SetBool(false)
	m.bus.BREADY.SetBool(true)
	m.bus.RREADY.SetBool(true)
}

// Name returns the name of the master.
func (m *LiteMaster) Name() string {
	return m.name
}

// Bus returns the bus that the master drives.
func (m *LiteMaster) Bus() *LiteBus {
	return m.bus
}

// Len returns the size of the address space that the master can reach.
func (m *LiteMaster) Len() uint64 {
	return m.bus.Len()
}

func (m *LiteMaster) dataBytes() int {
	return m.bus.cfg.DataBytes
}

func (m *LiteMaster) allBytes() uint64 {
	n := m.dataBytes()
	if n >= 64 {
		return ^uint64(0)
	}

	return uint64(1)<<uint(n) - 1
}

func (m *LiteMaster) wordFromUint(v uint64) []byte {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)

	word := make([]byte, m.dataBytes())
	copy(word, buf[:])

	return word
}

// Write writes value to addr and returns the write response. A response other
// than OKAY is reported as a *ProtocolError.
func (m *LiteMaster) Write(
	p *sim.Proc,
	addr uint64,
	value uint64,
	opts ...WriteOption,
) (uint32, error) {
	o := writeOptions{byteEnable: m.allBytes()}
	for _, opt := range opts {
		opt(&o)
	}

	beats := []dataBeat{{word: m.wordFromUint(value), strobe: o.byteEnable}}

	return m.write(p, addr, beats, o)
}

func (m *LiteMaster) write(
	p *sim.Proc,
	addr uint64,
	beats []dataBeat,
	o writeOptions,
) (uint32, error) {
	txnID := sim.NewID("AW")
	tracing.TraceReqInitiate(txnID, m, OpWrite, addr)
	defer tracing.TraceReqFinalize(txnID, m)

	p.RisingEdge()

	var ticket uint64
	addrTask := p.Spawn("aw", func(c *sim.Proc) error {
		ticket = m.sendWriteAddress(c, addr, len(beats), o.addrLatency)
		return nil
	})
	dataTask := p.Spawn("w", func(c *sim.Proc) error {
		m.sendWriteData(c, beats, o.dataLatency)
		return nil
	})

	if err := addrTask.Join(p); err != nil {
		return 0, err
	}

	if err := dataTask.Join(p); err != nil {
		return 0, err
	}

	var resp uint32
	for {
		p.ReadOnly()
		if m.writeResponses.turn(ticket, p.Now()) &&
			m.bus.BVALID.Bool() && m.bus.BREADY.Bool() {
			resp = uint32(m.bus.BRESP.Uint())
			m.writeResponses.done(p.Now())

			break
		}
		p.RisingEdge()
	}

	p.RisingEdge()

	m.log.V(1).Info("write", "addr", fmt.Sprintf("0x%08x", addr),
		"beats", len(beats), "resp", resp)

	if resp != RespOkay {
		return resp, &ProtocolError{Op: OpWrite, Addr: addr, Resp: resp}
	}

	return resp, nil
}

func (m *LiteMaster) sendWriteAddress(
	c *sim.Proc,
	addr uint64,
	beats, delay int,
) (ticket uint64) {
	m.writeAddressBusy.Acquire(c)
	c.WaitCycles(delay)

	m.bus.AWADDR.SetUint(addr)
	m.bus.AWVALID.SetBool(true)
	if m.full != nil {
		m.full.AWLEN.SetUint(uint64(beats - 1))
	}

	for {
		c.ReadOnly()
		if m.bus.AWREADY.Bool() {
			break
		}
		c.RisingEdge()
	}

	ticket = m.writeResponses.take()

	c.RisingEdge()
	m.bus.AWVALID.SetBool(false)
	if m.full != nil {
		m.full.AWLEN.SetUint(0)
	}

	m.writeAddressBusy.Release(c)

	return ticket
}

func (m *LiteMaster) sendWriteData(c *sim.Proc, beats []dataBeat, delay int) {
	m.writeDataBusy.Acquire(c)
	c.WaitCycles(delay)

	for i, beat := range beats {
		m.bus.WDATA.SetBytes(beat.word)
		m.bus.WSTRB.SetUint(beat.strobe)
		m.bus.WVALID.SetBool(true)
		if m.full != nil {
			m.full.WLAST.SetBool(i == len(beats)-1)
		}

		for {
			c.ReadOnly()
			if m.bus.WREADY.Bool() {
				break
			}
			c.RisingEdge()
		}

		c.RisingEdge()
	}

	m.bus.WVALID.SetBool(false)
	if m.full != nil {
		m.full.WLAST.SetBool(true)
	}

	m.writeDataBusy.Release(c)
}

// Read reads the word at addr. A response other than OKAY is reported as a
// *ProtocolError.
func (m *LiteMaster) Read(p *sim.Proc, addr uint64) (uint64, error) {
	words, err := m.read(p, addr, 1)
	if err != nil {
		return 0, err
	}

	var buf [8]byte
	copy(buf[:], words[0])

	return binary.LittleEndian.Uint64(buf[:]), nil
}

func (m *LiteMaster) read(p *sim.Proc, addr uint64, beats int) ([][]byte, error) {
	txnID := sim.NewID("AR")
	tracing.TraceReqInitiate(txnID, m, OpRead, addr)
	defer tracing.TraceReqFinalize(txnID, m)

	p.RisingEdge()

	m.readAddressBusy.Acquire(p)
	m.bus.ARADDR.SetUint(addr)
	m.bus.ARVALID.SetBool(true)
	if m.full != nil {
		m.full.ARLEN.SetUint(uint64(beats - 1))
	}

	for {
		p.ReadOnly()
		if m.bus.ARREADY.Bool() {
			break
		}
		p.RisingEdge()
	}

	ticket := m.readResponses.take()

	p.RisingEdge()
	m.bus.ARVALID.SetBool(false)
	if m.full != nil {
		m.full.ARLEN.SetUint(0)
	}
	m.readAddressBusy.Release(p)

	words := make([][]byte, 0, beats)
	var resp uint32

	for len(words) < beats {
		p.ReadOnly()
		if !m.readResponses.turn(ticket, p.Now()) ||
			!m.bus.RVALID.Bool() || !m.bus.RREADY.Bool() {
			p.RisingEdge()
			continue
		}

		words = append(words, m.bus.RDATA.Bytes())
		if r := uint32(m.bus.RRESP.Uint()); r != RespOkay && resp == RespOkay {
			resp = r
		}

		if m.full != nil && m.full.RLAST.Bool() != (len(words) == beats) {
			m.readResponses.done(p.Now())

			return nil, &ProtocolError{
				Op:   OpRead,
				Addr: addr,
				Msg: fmt.Sprintf("RLAST on beat %d of a %d-beat burst",
					len(words), beats),
			}
		}

		if len(words) < beats {
			p.RisingEdge()
		}
	}

	m.readResponses.done(p.Now())

	m.log.V(1).Info("read", "addr", fmt.Sprintf("0x%08x", addr),
		"beats", beats, "resp", resp)

	if resp != RespOkay {
		return nil, &ProtocolError{Op: OpRead, Addr: addr, Resp: resp}
	}

	return words, nil
}
