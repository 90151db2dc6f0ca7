package axi

import (
	"fmt"
	"strings"

	"github.com/sarchlab/axifuzz/sim"
)

// BusConfig describes the widths of a bus.
type BusConfig struct {
	// AddrWidth is the width of AWADDR and ARADDR in bits.
	AddrWidth int

	// DataBytes is the width of WDATA and RDATA in bytes.
	DataBytes int

	// WithID adds ARID, RID, AWID and BID to a full bus.
	WithID  bool
	IDWidth int
}

// DefaultBusConfig is a 32-bit address, 32-bit data bus without IDs.
var DefaultBusConfig = BusConfig{AddrWidth: 32, DataBytes: 4}

func (c BusConfig) withDefaults() BusConfig {
	if c.AddrWidth == 0 {
		c.AddrWidth = DefaultBusConfig.AddrWidth
	}

	if c.DataBytes == 0 {
		c.DataBytes = DefaultBusConfig.DataBytes
	}

	if c.WithID && c.IDWidth == 0 {
		c.IDWidth = 4
	}

	return c
}

func (c BusConfig) validate() []string {
	var problems []string

	if c.AddrWidth <= 0 || c.AddrWidth > 64 {
		problems = append(problems,
			fmt.Sprintf("address width %d is not in (0, 64]", c.AddrWidth))
	}

	if c.DataBytes <= 0 || c.DataBytes > 64 || c.DataBytes&(c.DataBytes-1) != 0 {
		problems = append(problems,
			fmt.Sprintf("data width of %d bytes is not a power of two up to 64",
				c.DataBytes))
	}

	return problems
}

type busField struct {
	name  string
	sig   **sim.Signal
	width int
}

// LiteBus holds the signals of an AXI4-Lite interface.
type LiteBus struct {
	name string
	cfg  BusConfig

	AWVALID, AWADDR, AWREADY     *sim.Signal
	WVALID, WREADY, WDATA, WSTRB *sim.Signal
	BVALID, BREADY, BRESP        *sim.Signal
	ARVALID, ARADDR, ARREADY     *sim.Signal
	RVALID, RREADY, RRESP, RDATA *sim.Signal
}

// Name returns the bus name, which prefixes every signal name.
func (b *LiteBus) Name() string {
	return b.name
}

// Config returns the bus configuration.
func (b *LiteBus) Config() BusConfig {
	return b.cfg
}

// Len returns the size of the address space.
func (b *LiteBus) Len() uint64 {
	if b.cfg.AddrWidth >= 64 {
		return ^uint64(0)
	}

	return uint64(1) << uint(b.cfg.AddrWidth)
}

func (b *LiteBus) fields() []busField {
	a, d := b.cfg.AddrWidth, b.cfg.DataBytes

	return []busField{
		{"AWVALID", &b.AWVALID, 1},
		{"AWADDR", &b.AWADDR, a},
		{"AWREADY", &b.AWREADY, 1},
		{"WVALID", &b.WVALID, 1},
		{"WREADY", &b.WREADY, 1},
		{"WDATA", &b.WDATA, d * 8},
		{"WSTRB", &b.WSTRB, d},
		{"BVALID", &b.BVALID, 1},
		{"BREADY", &b.BREADY, 1},
		{"BRESP", &b.BRESP, 2},
		{"ARVALID", &b.ARVALID, 1},
		{"ARADDR", &b.ARADDR, a},
		{"ARREADY", &b.ARREADY, 1},
		{"RVALID", &b.RVALID, 1},
		{"RREADY", &b.RREADY, 1},
		{"RRESP", &b.RRESP, 2},
		{"RDATA", &b.RDATA, d * 8},
	}
}

// Validate checks that every signal is present with the expected width.
func (b *LiteBus) Validate() error {
	return validateFields(b.name, b.cfg, b.fields())
}

// Bus holds the signals of a full AXI4 interface.
type Bus struct {
	LiteBus

	WLAST, RLAST     *sim.Signal
	ARSIZE, AWSIZE   *sim.Signal
	ARBURST, AWBURST *sim.Signal
	ARLEN, AWLEN     *sim.Signal
	ARLOCK, AWLOCK   *sim.Signal
	ARCACHE, AWCACHE *sim.Signal
	ARPROT, AWPROT   *sim.Signal

	ARID, RID, AWID, BID *sim.Signal
}

// HasID tells if the bus carries transaction IDs.
func (b *Bus) HasID() bool {
	return b.cfg.WithID
}

// Lite returns the AXI4-Lite subset of the bus.
func (b *Bus) Lite() *LiteBus {
	return &b.LiteBus
}

func (b *Bus) fields() []busField {
	fields := append(b.LiteBus.fields(),
		busField{"WLAST", &b.WLAST, 1},
		busField{"RLAST", &b.RLAST, 1},
		busField{"ARSIZE", &b.ARSIZE, 3},
		busField{"AWSIZE", &b.AWSIZE, 3},
		busField{"ARBURST", &b.ARBURST, 2},
		busField{"AWBURST", &b.AWBURST, 2},
		busField{"ARLEN", &b.ARLEN, 8},
		busField{"AWLEN", &b.AWLEN, 8},
		busField{"ARLOCK", &b.ARLOCK, 1},
		busField{"AWLOCK", &b.AWLOCK, 1},
		busField{"ARCACHE", &b.ARCACHE, 4},
		busField{"AWCACHE", &b.AWCACHE, 4},
		busField{"ARPROT", &b.ARPROT, 3},
		busField{"AWPROT", &b.AWPROT, 3},
	)

	if b.cfg.WithID {
		w := b.cfg.IDWidth
		fields = append(fields,
			busField{"ARID", &b.ARID, w},
			busField{"RID", &b.RID, w},
			busField{"AWID", &b.AWID, w},
			busField{"BID", &b.BID, w},
		)
	}

	return fields
}

// Validate checks that every signal is present with the expected width.
func (b *Bus) Validate() error {
	return validateFields(b.name, b.cfg, b.fields())
}

// NewLiteBus creates the signals of an AXI4-Lite bus in the domain. The
// signals are named <name>_<SIGNAL>.
func NewLiteBus(d *sim.ClockDomain, name string, cfg BusConfig) *LiteBus {
	b := &LiteBus{name: name, cfg: cfg.withDefaults()}
	createFields(d, name, b.cfg, b.fields())

	return b
}

// NewBus creates the signals of a full AXI4 bus in the domain.
func NewBus(d *sim.ClockDomain, name string, cfg BusConfig) *Bus {
	b := &Bus{LiteBus: LiteBus{name: name, cfg: cfg.withDefaults()}}
	createFields(d, name, b.cfg, b.fields())

	return b
}

// BindLiteBus looks up the signals of an AXI4-Lite bus that someone else has
// created. Missing signals are reported by Validate.
func BindLiteBus(d *sim.ClockDomain, name string, cfg BusConfig) *LiteBus {
	b := &LiteBus{name: name, cfg: cfg.withDefaults()}
	bindFields(d, name, b.fields())

	return b
}

// BindBus looks up the signals of a full AXI4 bus that someone else has
// created.
func BindBus(d *sim.ClockDomain, name string, cfg BusConfig) *Bus {
	b := &Bus{LiteBus: LiteBus{name: name, cfg: cfg.withDefaults()}}
	bindFields(d, name, b.fields())

	return b
}

func createFields(
	d *sim.ClockDomain,
	name string,
	cfg BusConfig,
	fields []busField,
) {
	if problems := cfg.validate(); len(problems) > 0 {
		panic(fmt.Sprintf("bus %s: %s", name, strings.Join(problems, "; ")))
	}

	for _, f := range fields {
		*f.sig = d.NewSignal(name+"_"+f.name, f.width)
	}
}

func bindFields(d *sim.ClockDomain, name string, fields []busField) {
	for _, f := range fields {
		*f.sig = d.Signal(name + "_" + f.name)
	}
}

func validateFields(name string, cfg BusConfig, fields []busField) error {
	problems := cfg.validate()

	for _, f := range fields {
		s := *f.sig
		switch {
		case s == nil:
			problems = append(problems, "missing signal "+f.name)
		case s.Width() != f.width:
			problems = append(problems, fmt.Sprintf(
				"signal %s is %d bits wide, expected %d",
				f.name, s.Width(), f.width))
		}
	}

	if len(problems) == 0 {
		return nil
	}

	return fmt.Errorf("bus %s: %s", name, strings.Join(problems, "; "))
}
