package pemodel

// MemoryMap tells a PE where its input and its bitmap live.
type MemoryMap struct {
	// RAMBase is the address at which the core sees its memory.
	RAMBase uint64

	// DataVirt and DataPhys are the core and the memory offsets of the data
	// region.
	DataVirt uint64
	DataPhys uint64

	// BitmapLoc is the offset of the coverage bitmap in the local memory.
	BitmapLoc uint64

	// MaxBitmap is the largest bitmap, in bytes, that the PE can produce.
	MaxBitmap uint32

	// InputFromDRAM makes the PE fetch its input through its DRAM master
	// port instead of from the local memory.
	InputFromDRAM bool
}

// DefaultMemoryMap is the on-chip memory layout.
var DefaultMemoryMap = MemoryMap{
	RAMBase:   0x40000000,
	DataVirt:  0x800000,
	DataPhys:  0x10000,
	BitmapLoc: 0x20000,
	MaxBitmap: 0x2000,
}

// Translate turns an address that the core uses for the data region into a
// memory offset.
func (m MemoryMap) Translate(virt uint64) (uint64, bool) {
	base := m.RAMBase + m.DataVirt
	if virt < base {
		return 0, false
	}

	return virt - base + m.DataPhys, true
}

// ValidBitmapSize tells if the PE accepts a bitmap of the given size.
func (m MemoryMap) ValidBitmapSize(size uint32) bool {
	return size >= 4 && size <= m.MaxBitmap && size&(size-1) == 0
}
