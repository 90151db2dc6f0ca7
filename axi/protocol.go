// Package axi implements AMBA AXI4 and AXI4-Lite masters and slaves on top of
// the signals of a sim.ClockDomain.
package axi

import "fmt"

// Burst types.
const (
	BurstFixed uint32 = 0
	BurstIncr  uint32 = 1
	BurstWrap  uint32 = 2
)

// Response codes.
const (
	RespOkay   uint32 = 0
	RespExOkay uint32 = 1
	RespSlvErr uint32 = 2
	RespDecErr uint32 = 3
)

// MaxBurstLen is the number of beats that one AXI4 burst can carry.
const MaxBurstLen = 256

// SizeToBytes converts an AxSIZE value into the number of bytes in a beat. It
// returns 0 for values that AXI does not define.
func SizeToBytes(size uint32) int {
	if size >= 7 {
		return 0
	}

	return 1 << size
}

// BytesToSize is the inverse of SizeToBytes. It panics if n is not a power of
// two in [1, 128].
func BytesToSize(n int) uint32 {
	for size := uint32(0); size < 7; size++ {
		if 1<<size == n {
			return size
		}
	}

	panic(fmt.Sprintf("%d bytes is not a valid beat size", n))
}

// A BurstDescriptor is an address-channel request.
type BurstDescriptor struct {
	Addr  uint64
	Len   uint32 // number of beats - 1
	Size  uint32
	Burst uint32
	Prot  uint32
	ID    uint32

	txnID string
}

// BytesInBeat returns the number of bytes that each beat carries.
func (d BurstDescriptor) BytesInBeat() int {
	return SizeToBytes(d.Size)
}

// BurstLength returns the number of beats.
func (d BurstDescriptor) BurstLength() int {
	return int(d.Len) + 1
}

// BeatAddr returns the address of the i-th beat.
func (d BurstDescriptor) BeatAddr(i int) uint64 {
	n := uint64(d.BytesInBeat())

	switch d.Burst {
	case BurstFixed:
		return d.Addr
	case BurstWrap:
		window := n * uint64(d.BurstLength())
		base := d.Addr - d.Addr%window

		return base + (d.Addr-base+uint64(i)*n)%window
	default:
		return d.Addr + uint64(i)*n
	}
}

// A WriteBeat is one data beat of a write burst, resolved to the memory range
// it covers. Bytes whose strobe bit is 0 keep their old value.
type WriteBeat struct {
	Start  uint64
	End    uint64
	Data   []byte
	Strobe uint64
	Last   bool
	Burst  BurstDescriptor
}

// Operation names used in protocol errors.
const (
	OpRead  = "read"
	OpWrite = "write"
)

// ProtocolError reports a non-OKAY response or a violation of the AXI
// handshake rules.
type ProtocolError struct {
	Op   string
	Addr uint64
	Resp uint32
	Msg  string
}

func (e *ProtocolError) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("%s to address 0x%08x: %s", e.Op, e.Addr, e.Msg)
	}

	if e.Op == OpRead {
		return fmt.Sprintf("read address 0x%08x failed with RRESP: %d",
			e.Addr, e.Resp)
	}

	return fmt.Sprintf("write to address 0x%08x failed with BRESP: %d",
		e.Addr, e.Resp)
}
