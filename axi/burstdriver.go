package axi

import (
	"fmt"

	"github.com/go-logr/logr"
	"github.com/sarchlab/axifuzz/sim"
)

// A BurstDriver is a master on a full AXI4 bus. Single-beat Write and Read
// behave like the ones of a LiteMaster, while WriteBurst and ReadBurst issue
// INCR bursts.
type BurstDriver struct {
	*LiteMaster
}

// BurstDriverBuilder can build BurstDrivers.
type BurstDriverBuilder struct {
	log logr.Logger
}

// MakeBurstDriverBuilder returns a BurstDriverBuilder with default
// parameters.
func MakeBurstDriverBuilder() BurstDriverBuilder {
	return BurstDriverBuilder{log: logr.Discard()}
}

// WithLogger sets the logger.
func (b BurstDriverBuilder) WithLogger(l logr.Logger) BurstDriverBuilder {
	b.log = l
	return b
}

// Build creates a BurstDriver and drives the idle values of the master side
// signals.
func (b BurstDriverBuilder) Build(name string, bus *Bus) *BurstDriver {
	if err := bus.Validate(); err != nil {
		panic(err)
	}

	m := newLiteMaster(name, bus.Lite(), b.log)
	m.full = bus

	d := &BurstDriver{LiteMaster: m}
	d.driveDefaults()

	return d
}

func (d *BurstDriver) driveDefaults() {
	d.LiteMaster.driveDefaults()

	size := uint64(d.beatSize())

	d.full.WLAST.SetBool(true)
	d.full.ARSIZE.SetUint(size)
	d.full.AWSIZE.SetUint(size)
	d.full.ARBURST.SetUint(uint64(BurstIncr))
	d.full.AWBURST.SetUint(uint64(BurstIncr))
	d.full.ARLEN.SetUint(0)
	d.full.AWLEN.SetUint(0)
	d.full.ARLOCK.SetUint(0)
	d.full.AWLOCK.SetUint(0)
	d.full.ARCACHE.SetUint(0)
	d.full.AWCACHE.SetUint(0)
	d.full.ARPROT.SetUint(0)
	d.full.AWPROT.SetUint(0)

	if d.full.HasID() {
		d.full.ARID.SetUint(0)
		d.full.AWID.SetUint(0)
	}
}

func (d *BurstDriver) beatSize() uint32 {
	return BytesToSize(d.dataBytes())
}

// WriteBurst writes data starting at addr with one INCR burst. The length of
// data must be a multiple of the bus width. strobes holds one WSTRB value per
// beat. A nil strobes writes all bytes.
func (d *BurstDriver) WriteBurst(
	p *sim.Proc,
	addr uint64,
	data []byte,
	strobes []uint64,
) (uint32, error) {
	n := d.dataBytes()
	if len(data) == 0 || len(data)%n != 0 {
		return 0, fmt.Errorf("burst of %d bytes is not a multiple of %d",
			len(data), n)
	}

	numBeats := len(data) / n
	if numBeats > MaxBurstLen {
		return 0, fmt.Errorf("burst of %d beats is longer than %d",
			numBeats, MaxBurstLen)
	}

	if strobes != nil && len(strobes) != numBeats {
		return 0, fmt.Errorf("%d strobes given for %d beats",
			len(strobes), numBeats)
	}

	beats := make([]dataBeat, numBeats)
	for i := range beats {
		beats[i].word = data[i*n : (i+1)*n]
		beats[i].strobe = d.allBytes()
		if strobes != nil {
			beats[i].strobe = strobes[i]
		}
	}

	return d.write(p, addr, beats, writeOptions{})
}

// ReadBurst reads beats words starting at addr with one INCR burst and
// returns them concatenated.
func (d *BurstDriver) ReadBurst(p *sim.Proc, addr uint64, beats int) ([]byte, error) {
	if beats <= 0 || beats > MaxBurstLen {
		return nil, fmt.Errorf("cannot read a burst of %d beats", beats)
	}

	words, err := d.read(p, addr, beats)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, beats*d.dataBytes())
	for _, w := range words {
		out = append(out, w...)
	}

	return out, nil
}

// LoadBytes writes data word by word starting at addr. The last word is padded
// with zeros.
func (d *BurstDriver) LoadBytes(p *sim.Proc, addr uint64, data []byte) error {
	n := d.dataBytes()

	for off := 0; off < len(data); off += n {
		word := make([]byte, n)
		copy(word, data[off:])

		beats := []dataBeat{{word: word, strobe: d.allBytes()}}
		if _, err := d.write(p, addr+uint64(off), beats, writeOptions{}); err != nil {
			return err
		}
	}

	return nil
}
