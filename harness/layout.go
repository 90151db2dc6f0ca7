// Package harness runs a PE as a fuzzing target. It loads firmware images
// and inputs into the memory of the PE, starts runs, collects coverage
// bitmaps, and serves the pipe and shared-memory protocol of the fuzzer.
package harness

import (
	"fmt"
	"sort"
	"strings"
)

// Layout describes the memory topology of a PE.
type Layout struct {
	Name string

	// RAMBase is the address at which the core sees its memory.
	RAMBase uint64

	// InstrRange is the size of the instruction region, which starts at
	// offset 0 of the image and of the memory.
	InstrRange uint64

	// DataVirt is the offset of the data region in the image and in the
	// address space of the core. DataPhys is its offset in the memory.
	DataVirt  uint64
	DataPhys  uint64
	DataRange uint64

	// DRAMSize is the size of the external memory. It is zero for on-chip
	// memories.
	DRAMSize uint64

	BitmapLoc uint64
	MaxBitmap uint32

	// LoadThroughBus tells if images and inputs are written over the memory
	// bus of the PE rather than copied into the external memory.
	LoadThroughBus bool

	// DRAM tells if the PE runs out of the external memory.
	DRAM bool

	// TapascoRISCV selects the register map of the plain tapasco-riscv PE.
	TapascoRISCV bool
}

// Common layout constants.
const (
	DefaultBitmapLoc uint64 = 0x20000
	DefaultMaxBitmap uint32 = 0x2000
	HBMBitmapLoc     uint64 = 0x1000000
)

// Layout presets.
var (
	LayoutDRAM = Layout{
		Name:       "dram",
		RAMBase:    0x40000000,
		InstrRange: 0x800000,
		DataVirt:   0x800000,
		DataPhys:   0x800000,
		DataRange:  0x7f8000,
		DRAMSize:   0x1000000,
		BitmapLoc:  DefaultBitmapLoc,
		MaxBitmap:  DefaultMaxBitmap,
		DRAM:       true,
	}

	LayoutBRAM = Layout{
		Name:           "bram",
		RAMBase:        0x40000000,
		InstrRange:     0x10000,
		DataVirt:       0x800000,
		DataPhys:       0x10000,
		DataRange:      0xf000,
		BitmapLoc:      DefaultBitmapLoc,
		MaxBitmap:      DefaultMaxBitmap,
		LoadThroughBus: true,
	}

	LayoutTapascoRISCV = Layout{
		Name:           "tapasco-riscv",
		RAMBase:        0,
		InstrRange:     0x10000,
		DataVirt:       0x800000,
		DataPhys:       0x10000,
		DataRange:      0xf000,
		BitmapLoc:      DefaultBitmapLoc,
		MaxBitmap:      DefaultMaxBitmap,
		LoadThroughBus: true,
		TapascoRISCV:   true,
	}

	LayoutHBM = Layout{
		Name:           "hbm",
		RAMBase:        0x40000000,
		InstrRange:     0x800000,
		DataVirt:       0x800000,
		DataPhys:       0x800000,
		DataRange:      0x7f8000,
		DRAMSize:       0x1000000,
		BitmapLoc:      HBMBitmapLoc,
		MaxBitmap:      DefaultMaxBitmap,
		LoadThroughBus: true,
		DRAM:           true,
	}
)

var layouts = map[string]Layout{
	LayoutDRAM.Name:         LayoutDRAM,
	LayoutBRAM.Name:         LayoutBRAM,
	LayoutTapascoRISCV.Name: LayoutTapascoRISCV,
	LayoutHBM.Name:          LayoutHBM,
}

// LayoutByName returns a layout preset.
func LayoutByName(name string) (Layout, error) {
	l, ok := layouts[strings.ToLower(name)]
	if !ok {
		names := make([]string, 0, len(layouts))
		for n := range layouts {
			names = append(names, n)
		}
		sort.Strings(names)

		return Layout{}, fmt.Errorf("unknown memory layout %q, want one of %s",
			name, strings.Join(names, ", "))
	}

	return l, nil
}

// DataEnd is the end of the data region in the address space of the core,
// relative to RAMBase.
func (l Layout) DataEnd() uint64 {
	return l.DataVirt + l.DataRange
}

// InputOffset returns where, relative to the start of the data region, an
// input of n bytes is placed. Inputs end at the end of the data region and
// start on a 4-byte boundary.
func (l Layout) InputOffset(n uint64) uint64 {
	return (l.DataRange - n) &^ 3
}

// InputPhys returns the memory offset of an input placed at off.
func (l Layout) InputPhys(off uint64) uint64 {
	return l.DataPhys + off
}

// InputVirt returns the core address of an input placed at off.
func (l Layout) InputVirt(off uint64) uint64 {
	return l.RAMBase + l.DataVirt + off
}
