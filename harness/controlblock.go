package harness

import (
	"encoding/binary"

	"github.com/sarchlab/axifuzz/pe"
)

// Field offsets of the shared control block.
const (
	cbSizeOff    = 0
	cbPayloadOff = 4
	cbExcArg0Off = 4
	cbExcArg1Off = 8
	cbTimeoutOff = 8
	cbCyclesOff  = 16
	cbResultEnd  = 24
)

// A ControlBlock gives typed access to the memory that the harness and the
// fuzzer share. Fields are in native byte order, since both sides run on
// the same host.
type ControlBlock struct {
	buf []byte
}

// NewControlBlock wraps a shared memory region.
func NewControlBlock(buf []byte) *ControlBlock {
	if len(buf) < cbResultEnd {
		panic("shared control block is too small")
	}

	return &ControlBlock{buf: buf}
}

// Size returns the size of the block.
func (c *ControlBlock) Size() int {
	return len(c.buf)
}

// Bytes returns the raw block.
func (c *ControlBlock) Bytes() []byte {
	return c.buf
}

func (c *ControlBlock) u32(off int) uint32 {
	return binary.NativeEndian.Uint32(c.buf[off:])
}

func (c *ControlBlock) putU32(off int, v uint32) {
	binary.NativeEndian.PutUint32(c.buf[off:], v)
}

// InputSize returns the size field as written for SetInput.
func (c *ControlBlock) InputSize() uint32 {
	return c.u32(cbSizeOff)
}

// Input returns the input payload that follows the size field.
func (c *ControlBlock) Input() ([]byte, error) {
	n := uint64(c.InputSize())
	if n > uint64(len(c.buf)-cbPayloadOff) {
		return nil, &SizeError{
			What:  "input",
			Size:  n,
			Limit: uint64(len(c.buf) - cbPayloadOff),
			Msg:   "does not fit the shared memory",
		}
	}

	return c.buf[cbPayloadOff : cbPayloadOff+n], nil
}

// BitmapSize returns the size field as written for Start.
func (c *ControlBlock) BitmapSize() uint32 {
	return c.u32(cbSizeOff)
}

// Timeout returns the timeout in cycles as written for Start.
func (c *ControlBlock) Timeout() uint64 {
	return binary.NativeEndian.Uint64(c.buf[cbTimeoutOff:])
}

// PutResult stores the result of a run.
func (c *ControlBlock) PutResult(r pe.Result) {
	c.putU32(cbSizeOff, uint32(r.Status))
	c.putU32(cbExcArg0Off, r.ExcArg0)
	c.putU32(cbExcArg1Off, r.ExcArg1)
	binary.NativeEndian.PutUint64(c.buf[cbCyclesOff:], r.Cycles)
}

// PutBitmap stores a coverage bitmap at the start of the block.
func (c *ControlBlock) PutBitmap(bmp []byte) error {
	if len(bmp) > len(c.buf) {
		return &SizeError{
			What:  "bitmap",
			Size:  uint64(len(bmp)),
			Limit: uint64(len(c.buf)),
			Msg:   "does not fit the shared memory",
		}
	}

	copy(c.buf, bmp)

	return nil
}

// SetInput writes an input for SetInput. Inputs longer than the block are
// truncated. It returns the number of bytes written.
func (c *ControlBlock) SetInput(data []byte) int {
	n := min(len(data), len(c.buf)-cbPayloadOff)
	c.putU32(cbSizeOff, uint32(n))
	copy(c.buf[cbPayloadOff:], data[:n])

	return n
}

// SetStart writes the arguments of Start.
func (c *ControlBlock) SetStart(bitmapSize uint32, timeout uint64) {
	c.putU32(cbSizeOff, bitmapSize)
	binary.NativeEndian.PutUint64(c.buf[cbTimeoutOff:], timeout)
}

// Result reads the result stored by PutResult.
func (c *ControlBlock) Result() pe.Result {
	return pe.Result{
		Status:  pe.Status(c.u32(cbSizeOff)),
		ExcArg0: c.u32(cbExcArg0Off),
		ExcArg1: c.u32(cbExcArg1Off),
		Cycles:  binary.NativeEndian.Uint64(c.buf[cbCyclesOff:]),
	}
}

// Bitmap returns a copy of the first size bytes of the block.
func (c *ControlBlock) Bitmap(size int) []byte {
	return append([]byte(nil), c.buf[:size]...)
}

// ValidateBitmapSize checks a requested bitmap size against the shared
// memory size and the largest bitmap that the PE supports.
func ValidateBitmapSize(size uint32, shmSize int, maxBitmap uint32) error {
	if uint64(size) > uint64(shmSize) || size > maxBitmap {
		return &SizeError{
			What:  "bitmap",
			Size:  uint64(size),
			Limit: min(uint64(shmSize), uint64(maxBitmap)),
			Msg:   "Bitmap size too large",
		}
	}

	if size < 4 || size&(size-1) != 0 {
		return &SizeError{
			What:  "bitmap",
			Size:  uint64(size),
			Limit: uint64(maxBitmap),
			Msg:   "Bitmap size not a power of two of at least 4",
		}
	}

	return nil
}
