// Package pe drives a processing element through its control registers.
package pe

// Byte offsets of the control registers on the AXI4-Lite control bus.
const (
	RegStart        uint64 = 0x00
	RegGIER         uint64 = 0x04
	RegIER          uint64 = 0x08
	RegIAR          uint64 = 0x0C
	RegReturn       uint64 = 0x10
	RegArgLength    uint64 = 0x30
	RegArgPointer   uint64 = 0x40
	RegBitmapSize   uint64 = 0x50
	RegExcArg0      uint64 = 0x60
	RegExcArg1      uint64 = 0x64
	RegTimeoutLo    uint64 = 0x70
	RegTimeoutHi    uint64 = 0x74
	RegCounterLo    uint64 = 0x90
	RegCounterHi    uint64 = 0x94
	RegDRAMSection  uint64 = 0xA0
	RegInvalidate   uint64 = 0xB0
	RegIgnoreMin    uint64 = 0xC0
	RegDebugNoStall uint64 = 0xD0
)

// Flags of the invalidate register.
const (
	InvalidateICache          uint32 = 1 << 0
	InvalidateBranchPredictor uint32 = 1 << 1
	InvalidateDCache          uint32 = 1 << 2
)

// Bits of the start register, as read back.
const (
	StartBitStart uint32 = 1 << 0
	StartBitDone  uint32 = 1 << 1
	StartBitIdle  uint32 = 1 << 2
)
