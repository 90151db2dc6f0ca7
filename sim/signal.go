package sim

import (
	"encoding/binary"
	"fmt"
)

// MaxSignalWidth is the widest signal a ClockDomain can carry, in bits.
const MaxSignalWidth = 512

// A Signal is a named wire of a fixed bit width.
//
// Writes are staged and only become visible at the commit point of the
// current cycle, which mimics non-blocking assignments in an HDL. Reading a
// signal always returns the last committed value. Writing a signal in the
// read-only phase is not allowed.
type Signal struct {
	name   string
	width  int
	domain *ClockDomain

	cur   []byte
	next  []byte
	dirty bool

	hasRisen bool
	roseAt   VTimeInCycle
}

// Name returns the name of the signal.
func (s *Signal) Name() string {
	return s.name
}

// Width returns the number of bits of the signal.
func (s *Signal) Width() int {
	return s.width
}

// NumBytes returns the number of bytes needed to hold the signal value.
func (s *Signal) NumBytes() int {
	return len(s.cur)
}

// Uint returns the lowest 64 bits of the committed value.
func (s *Signal) Uint() uint64 {
	var buf [8]byte
	copy(buf[:], s.cur)

	return binary.LittleEndian.Uint64(buf[:])
}

// Bool returns true if any bit of the committed value is set.
func (s *Signal) Bool() bool {
	for _, b := range s.cur {
		if b != 0 {
			return true
		}
	}

	return false
}

// Bytes returns a copy of the committed value, least significant byte first.
func (s *Signal) Bytes() []byte {
	out := make([]byte, len(s.cur))
	copy(out, s.cur)

	return out
}

// SetUint stages a new value. Bits above the signal width are dropped.
func (s *Signal) SetUint(v uint64) {
	if s.width < 64 {
		v &= (uint64(1) << uint(s.width)) - 1
	}

	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)

	next := s.stage()
	for i := range next {
		next[i] = 0
	}
	copy(next, buf[:])
	s.applyIfIdle()
}

// SetBool stages 1 for true and 0 for false.
func (s *Signal) SetBool(v bool) {
	if v {
		s.SetUint(1)
		return
	}

	s.SetUint(0)
}

// SetBytes stages a new value given least significant byte first. Shorter
// inputs are zero extended.
func (s *Signal) SetBytes(data []byte) {
	if len(data) > len(s.cur) {
		panic(fmt.Sprintf("signal %s: %d bytes do not fit into %d bits",
			s.name, len(data), s.width))
	}

	next := s.stage()
	for i := range next {
		next[i] = 0
	}
	copy(next, data)
	s.maskTopByte(next)
	s.applyIfIdle()
}

// Outside of a cycle a write takes effect immediately, like setting an
// initial value before the clock starts.
func (s *Signal) applyIfIdle() {
	if s.domain.phase == PhaseIdle {
		s.commit(s.domain.now)
	}
}

func (s *Signal) maskTopByte(v []byte) {
	rem := s.width % 8
	if rem == 0 {
		return
	}

	v[len(v)-1] &= byte(1<<uint(rem)) - 1
}

func (s *Signal) stage() []byte {
	switch s.domain.phase {
	case PhaseReadOnly:
		panic(fmt.Sprintf("signal %s written in the read-only phase", s.name))
	case PhaseIdle:
	default:
		if !s.dirty {
			s.dirty = true
			s.domain.dirty = append(s.domain.dirty, s)
		}
	}

	return s.next
}

func (s *Signal) commit(now VTimeInCycle) {
	wasHigh := s.Bool()

	copy(s.cur, s.next)
	s.dirty = false

	if !wasHigh && s.Bool() {
		s.hasRisen = true
		s.roseAt = now
	}
}
