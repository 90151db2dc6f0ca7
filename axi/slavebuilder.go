package axi

import (
	"github.com/go-logr/logr"
	"github.com/sarchlab/axifuzz/memory"
	"github.com/sarchlab/axifuzz/sim"
)

// Artificial stall lengths, in cycles, used when a slave is built with
// WithArtificialStall.
const (
	DefaultReadStall  = 40
	DefaultWriteStall = 28
)

// SlaveBuilder can build Slaves.
type SlaveBuilder struct {
	storage     *memory.Storage
	capacity    uint64
	baseAddr    uint64
	log         logr.Logger
	bigEndian   bool
	readStall   int
	writeStall  int
	arQueueSize int
	awQueueSize int
	wQueueSize  int
	onAccess    func(write bool, addr uint64)
}

// MakeSlaveBuilder returns a SlaveBuilder with default parameters.
func MakeSlaveBuilder() SlaveBuilder {
	return SlaveBuilder{
		capacity:    64 * 1024,
		log:         logr.Discard(),
		arQueueSize: 4,
		awQueueSize: 4,
		wQueueSize:  8,
	}
}

// WithStorage sets the memory that the slave serves.
func (b SlaveBuilder) WithStorage(storage *memory.Storage) SlaveBuilder {
	b.storage = storage
	return b
}

// WithNewStorage makes the slave serve a new memory of the given capacity.
func (b SlaveBuilder) WithNewStorage(capacity uint64) SlaveBuilder {
	b.storage = nil
	b.capacity = capacity

	return b
}

// WithBaseAddress sets the bus address that maps to offset 0 of the storage.
func (b SlaveBuilder) WithBaseAddress(addr uint64) SlaveBuilder {
	b.baseAddr = addr
	return b
}

// WithLogger sets the logger.
func (b SlaveBuilder) WithLogger(l logr.Logger) SlaveBuilder {
	b.log = l
	return b
}

// WithBigEndian makes the first byte of a beat travel on the most
// significant lane.
func (b SlaveBuilder) WithBigEndian(bigEndian bool) SlaveBuilder {
	b.bigEndian = bigEndian
	return b
}

// WithArtificialStall enables the default read and write stalls.
func (b SlaveBuilder) WithArtificialStall(enabled bool) SlaveBuilder {
	if enabled {
		b.readStall = DefaultReadStall
		b.writeStall = DefaultWriteStall
	} else {
		b.readStall = 0
		b.writeStall = 0
	}

	return b
}

// WithReadStall sets the number of cycles to wait before the first beat of
// every read burst.
func (b SlaveBuilder) WithReadStall(cycles int) SlaveBuilder {
	b.readStall = cycles
	return b
}

// WithWriteStall sets the number of cycles to wait before committing every
// write beat.
func (b SlaveBuilder) WithWriteStall(cycles int) SlaveBuilder {
	b.writeStall = cycles
	return b
}

// WithQueueSizes sets the capacity of the read-address, write-address, and
// write-data queues.
func (b SlaveBuilder) WithQueueSizes(ar, aw, w int) SlaveBuilder {
	b.arQueueSize = ar
	b.awQueueSize = aw
	b.wQueueSize = w

	return b
}

// WithOnAccess registers a callback that is called for every accepted
// address-channel request.
func (b SlaveBuilder) WithOnAccess(cb func(write bool, addr uint64)) SlaveBuilder {
	b.onAccess = cb
	return b
}

// Build creates a Slave and spawns its five processes as daemons of the
// domain.
func (b SlaveBuilder) Build(name string, d *sim.ClockDomain, bus *Bus) *Slave {
	sim.NameMustBeValid(name)

	if err := bus.Validate(); err != nil {
		panic(err)
	}

	s := &Slave{
		name:       name,
		bus:        bus,
		storage:    b.storage,
		baseAddr:   b.baseAddr,
		log:        b.log.WithName(name),
		bigEndian:  b.bigEndian,
		readStall:  b.readStall,
		writeStall: b.writeStall,
		onAccess:   b.onAccess,
		arQueue:    sim.NewQueue[BurstDescriptor](name+".ARQueue", b.arQueueSize),
		awQueue:    sim.NewQueue[*writeBurst](name+".AWQueue", b.awQueueSize),
		wQueue:     sim.NewQueue[WriteBeat](name+".WQueue", b.wQueueSize),
	}

	if s.storage == nil {
		s.storage = memory.NewStorage(b.capacity)
	}

	s.driveDefaults()

	d.SpawnDaemon(name+".read_addr", s.acceptReadAddress)
	d.SpawnDaemon(name+".read_data", s.produceReadData)
	d.SpawnDaemon(name+".write_addr", s.acceptWriteAddress)
	d.SpawnDaemon(name+".write_data", s.acceptWriteData)
	d.SpawnDaemon(name+".write_resp", s.respondWrite)

	return s
}
