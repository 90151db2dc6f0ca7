package axi

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/go-logr/logr"
	"github.com/sarchlab/axifuzz/memory"
	"github.com/sarchlab/axifuzz/sim"
	"github.com/sarchlab/axifuzz/tracing"
)

// Stats counts the traffic that a Slave has served.
type Stats struct {
	BurstsRead    uint64
	BurstsWritten uint64
	BeatsRead     uint64
	BeatsWritten  uint64
}

// A Slave serves a memory on a full AXI4 bus.
//
// The slave runs five processes that share the memory: a read-address
// acceptor, a read-data producer, a write-address acceptor, a write-data
// acceptor, and a write responder. Requests wait in bounded queues. A ready
// signal is low whenever the queue behind it is full.
type Slave struct {
	sim.HookableBase

	name     string
	bus      *Bus
	storage  *memory.Storage
	baseAddr uint64
	log      logr.Logger

	bigEndian  bool
	readStall  int
	writeStall int
	onAccess   func(write bool, addr uint64)

	arQueue *sim.Queue[BurstDescriptor]
	awQueue *sim.Queue[*writeBurst]
	wQueue  *sim.Queue[WriteBeat]

	burstsRead    atomic.Uint64
	burstsWritten atomic.Uint64
	beatsRead     atomic.Uint64
	beatsWritten  atomic.Uint64
}

type writeBurst struct {
	desc BurstDescriptor
	beat int
}

// Name returns the name of the slave.
func (s *Slave) Name() string {
	return s.name
}

// Storage returns the memory that the slave serves.
func (s *Slave) Storage() *memory.Storage {
	return s.storage
}

// Buffers returns the read-address, write-address and write-data queues.
func (s *Slave) Buffers() []sim.Buffer {
	return []sim.Buffer{s.arQueue, s.awQueue, s.wQueue}
}

// Stats returns the traffic counters.
func (s *Slave) Stats() Stats {
	return Stats{
		BurstsRead:    s.burstsRead.Load(),
		BurstsWritten: s.burstsWritten.Load(),
		BeatsRead:     s.beatsRead.Load(),
		BeatsWritten:  s.beatsWritten.Load(),
	}
}

func (s *Slave) driveDefaults() {
	s.bus.ARREADY.SetBool(false)
	s.bus.RVALID.SetBool(false)
	s.bus.RLAST.SetBool(false)
	s.bus.RRESP.SetUint(0)
	s.bus.AWREADY.SetBool(false)
	s.bus.WREADY.SetBool(false)
	s.bus.BVALID.SetBool(false)
	s.bus.BRESP.SetUint(0)

	if s.bus.HasID() {
		s.bus.BID.SetUint(0)
		s.bus.RID.SetUint(0)
	}
}

func (s *Slave) captureAddress(
	channel string,
	addr, length, size, burst, prot, id *sim.Signal,
) BurstDescriptor {
	d := BurstDescriptor{
		Addr:  addr.Uint(),
		Len:   uint32(length.Uint()),
		Size:  uint32(size.Uint()),
		Burst: uint32(burst.Uint()),
		Prot:  uint32(prot.Uint()),
		txnID: sim.NewID(channel),
	}

	if id != nil {
		d.ID = uint32(id.Uint())
	}

	return d
}

func (s *Slave) logBurst(what string, d BurstDescriptor) {
	s.log.V(1).Info(what,
		"addr", fmt.Sprintf("0x%08x", d.Addr),
		"len", d.Len,
		"size", d.Size,
		"burst", d.Burst,
		"prot", d.Prot,
		"id", d.ID,
		"burstLength", d.BurstLength(),
		"bytesInBeat", d.BytesInBeat())
}

func (s *Slave) checkSize(op string, d BurstDescriptor) error {
	n := d.BytesInBeat()
	if n == 0 || n > s.bus.cfg.DataBytes {
		return &ProtocolError{
			Op:   op,
			Addr: d.Addr,
			Msg: fmt.Sprintf("beat size %d does not fit a %d-byte bus",
				n, s.bus.cfg.DataBytes),
		}
	}

	return nil
}

func (s *Slave) acceptReadAddress(p *sim.Proc) error {
	var id *sim.Signal
	if s.bus.HasID() {
		id = s.bus.ARID
	}

	for {
		s.bus.ARREADY.SetBool(s.arQueue.Ready())

		p.ReadOnly()
		if s.bus.ARREADY.Bool() && s.bus.ARVALID.Bool() {
			d := s.captureAddress("AR", s.bus.ARADDR, s.bus.ARLEN, s.bus.ARSIZE,
				s.bus.ARBURST, s.bus.ARPROT, id)
			if err := s.checkSize(OpRead, d); err != nil {
				return err
			}

			s.arQueue.Push(d)
			s.logBurst("read burst", d)
			tracing.TraceReqReceive(d.txnID, s, OpRead, d)

			if s.onAccess != nil {
				s.onAccess(false, d.Addr)
			}
		}

		p.RisingEdge()
	}
}

func (s *Slave) produceReadData(p *sim.Proc) error {
	for {
		for s.arQueue.Empty() {
			p.RisingEdge()
		}

		d, _ := s.arQueue.Pop()

		p.RisingEdge()
		p.WaitCycles(s.readStall)

		for i := 0; i < d.BurstLength(); i++ {
			last := i == d.BurstLength()-1
			addr := d.BeatAddr(i)
			data, resp := s.load(addr, d.BytesInBeat())

			s.bus.RDATA.SetBytes(
				placeLanes(data, addr, s.bus.cfg.DataBytes, s.bigEndian))
			s.bus.RRESP.SetUint(uint64(resp))
			s.bus.RLAST.SetBool(last)
			s.bus.RVALID.SetBool(true)
			if s.bus.HasID() {
				s.bus.RID.SetUint(uint64(d.ID))
			}

			for {
				p.ReadOnly()
				if s.bus.RREADY.Bool() {
					break
				}
				p.RisingEdge()
			}

			s.beatsRead.Add(1)
			if last {
				s.burstsRead.Add(1)
				tracing.TraceReqComplete(d.txnID, s)
			}

			p.RisingEdge()
			s.bus.RVALID.SetBool(false)
			s.bus.RLAST.SetBool(false)
		}
	}
}

func (s *Slave) acceptWriteAddress(p *sim.Proc) error {
	var id *sim.Signal
	if s.bus.HasID() {
		id = s.bus.AWID
	}

	for {
		s.bus.AWREADY.SetBool(s.awQueue.Ready())

		p.ReadOnly()
		if s.bus.AWREADY.Bool() && s.bus.AWVALID.Bool() {
			d := s.captureAddress("AW", s.bus.AWADDR, s.bus.AWLEN, s.bus.AWSIZE,
				s.bus.AWBURST, s.bus.AWPROT, id)
			if err := s.checkSize(OpWrite, d); err != nil {
				return err
			}

			s.awQueue.Push(&writeBurst{desc: d})
			s.logBurst("write burst", d)
			tracing.TraceReqReceive(d.txnID, s, OpWrite, d)

			if s.onAccess != nil {
				s.onAccess(true, d.Addr)
			}
		}

		p.RisingEdge()
	}
}

func (s *Slave) acceptWriteData(p *sim.Proc) error {
	for {
		s.bus.WREADY.SetBool(!s.awQueue.Empty() && s.wQueue.Ready())

		p.ReadOnly()
		if s.bus.WREADY.Bool() && s.bus.WVALID.Bool() {
			if err := s.captureWriteBeat(); err != nil {
				return err
			}
		}

		p.RisingEdge()
	}
}

func (s *Slave) captureWriteBeat() error {
	head, _ := s.awQueue.Head()
	d := head.desc
	n := d.BytesInBeat()
	addr := d.BeatAddr(head.beat)

	data, strobe := extractLanes(s.bus.WDATA.Bytes(), s.bus.WSTRB.Uint(),
		addr, n, s.bigEndian)

	beat := WriteBeat{
		Start:  addr,
		End:    addr + uint64(n),
		Data:   data,
		Strobe: strobe,
		Last:   s.bus.WLAST.Bool(),
		Burst:  d,
	}
	s.wQueue.Push(beat)

	if beat.Last {
		s.awQueue.Pop()
		return nil
	}

	if head.beat == int(d.Len) {
		return &ProtocolError{
			Op:   OpWrite,
			Addr: addr,
			Msg:  "expected WLAST (burst end)",
		}
	}

	head.beat++

	return nil
}

func (s *Slave) respondWrite(p *sim.Proc) error {
	burstResp := RespOkay

	for {
		for s.wQueue.Empty() {
			p.RisingEdge()
		}

		p.ReadOnly()
		beat, _ := s.wQueue.Pop()

		p.RisingEdge()
		p.WaitCycles(s.writeStall)

		if resp := s.store(beat); resp != RespOkay {
			burstResp = resp
		}
		s.beatsWritten.Add(1)

		if !beat.Last {
			continue
		}

		s.bus.BRESP.SetUint(uint64(burstResp))
		s.bus.BVALID.SetBool(true)
		if s.bus.HasID() {
			s.bus.BID.SetUint(uint64(beat.Burst.ID))
		}

		for {
			p.ReadOnly()
			if s.bus.BREADY.Bool() {
				break
			}
			p.RisingEdge()
		}

		s.burstsWritten.Add(1)
		tracing.TraceReqComplete(beat.Burst.txnID, s)

		p.RisingEdge()
		s.bus.BVALID.SetBool(false)
		burstResp = RespOkay
	}
}

func (s *Slave) load(addr uint64, n int) ([]byte, uint32) {
	data, err := s.storage.Read(addr-s.baseAddr, uint64(n))
	if addr < s.baseAddr || err != nil {
		s.logDecodeError(OpRead, addr, n, err)
		return make([]byte, n), RespDecErr
	}

	return data, RespOkay
}

func (s *Slave) store(beat WriteBeat) uint32 {
	n := len(beat.Data)

	old, err := s.storage.Read(beat.Start-s.baseAddr, uint64(n))
	if beat.Start < s.baseAddr || err != nil {
		s.logDecodeError(OpWrite, beat.Start, n, err)
		return RespDecErr
	}

	merged := mergeStrobe(old, beat.Data, beat.Strobe)
	if err := s.storage.Write(beat.Start-s.baseAddr, merged); err != nil {
		s.logDecodeError(OpWrite, beat.Start, n, err)
		return RespDecErr
	}

	return RespOkay
}

func (s *Slave) logDecodeError(op string, addr uint64, n int, err error) {
	if err == nil {
		err = errors.New("address below the slave base address")
	}

	s.log.Error(err, "decode error", "op", op,
		"addr", fmt.Sprintf("0x%08x", addr), "bytes", n)
}
