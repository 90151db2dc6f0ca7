// Package memory provides the byte storage behind simulated memories.
package memory

import "fmt"

// UnitSize is the allocation granularity of a Storage.
const UnitSize = 4096

// AccessError is returned when an access falls outside of the storage.
type AccessError struct {
	Addr     uint64
	Len      uint64
	Capacity uint64
}

func (e *AccessError) Error() string {
	return fmt.Sprintf("access of %d bytes at 0x%x is beyond the storage capacity 0x%x",
		e.Len, e.Addr, e.Capacity)
}

// A Storage keeps the data of a simulated memory.
//
// The storage is managed in units. For the units that are never touched by
// Write, no memory is allocated and reads return zeros.
type Storage struct {
	capacity uint64
	data     map[uint64][]byte
}

// NewStorage creates a storage object with the specified capacity.
func NewStorage(capacity uint64) *Storage {
	storage := new(Storage)

	storage.capacity = capacity
	storage.data = make(map[uint64][]byte)

	return storage
}

// Capacity returns the number of bytes that the storage can hold.
func (s *Storage) Capacity() uint64 {
	return s.capacity
}

// Reset drops all the content.
func (s *Storage) Reset() {
	s.data = make(map[uint64][]byte)
}

func (s *Storage) checkRange(address, length uint64) error {
	if address > s.capacity || length > s.capacity-address {
		return &AccessError{Addr: address, Len: length, Capacity: s.capacity}
	}

	return nil
}

func (s *Storage) unit(baseAddr uint64, create bool) []byte {
	unit, ok := s.data[baseAddr]
	if !ok && create {
		unit = make([]byte, UnitSize)
		s.data[baseAddr] = unit
	}

	return unit
}

func parseAddress(addr uint64) (baseAddr, inUnitAddr uint64) {
	inUnitAddr = addr % UnitSize
	baseAddr = addr - inUnitAddr

	return
}

// Read returns a copy of length bytes starting at address.
func (s *Storage) Read(address uint64, length uint64) ([]byte, error) {
	if err := s.checkRange(address, length); err != nil {
		return nil, err
	}

	res := make([]byte, length)
	currAddr := address
	dataOffset := uint64(0)

	for dataOffset < length {
		baseAddr, inUnitAddr := parseAddress(currAddr)
		lenToRead := min(length-dataOffset, UnitSize-inUnitAddr)

		unit := s.unit(baseAddr, false)
		if unit != nil {
			copy(res[dataOffset:dataOffset+lenToRead],
				unit[inUnitAddr:inUnitAddr+lenToRead])
		}

		dataOffset += lenToRead
		currAddr += lenToRead
	}

	return res, nil
}

// Write copies data into the storage, starting at address.
func (s *Storage) Write(address uint64, data []byte) error {
	length := uint64(len(data))
	if err := s.checkRange(address, length); err != nil {
		return err
	}

	currAddr := address
	dataOffset := uint64(0)

	for dataOffset < length {
		baseAddr, inUnitAddr := parseAddress(currAddr)
		lenToWrite := min(length-dataOffset, UnitSize-inUnitAddr)

		unit := s.unit(baseAddr, true)
		copy(unit[inUnitAddr:inUnitAddr+lenToWrite],
			data[dataOffset:dataOffset+lenToWrite])

		dataOffset += lenToWrite
		currAddr += lenToWrite
	}

	return nil
}
