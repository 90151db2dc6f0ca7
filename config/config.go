// Package config reads the settings of the harness from the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/juju/errors"
	"github.com/sarchlab/axifuzz/harness"
)

// Mode is what the harness does.
type Mode int

// Modes of the harness.
const (
	ModeNone Mode = iota
	ModeServe
	ModeTest
)

func (m Mode) String() string {
	switch m {
	case ModeServe:
		return "serve"
	case ModeTest:
		return "test"
	default:
		return "none"
	}
}

// Memory topologies that the model can be built with.
const (
	MemoryBRAM = "bram"
	MemoryDRAM = "dram"
)

// Config holds every setting of the harness.
type Config struct {
	// Fuzzer protocol.
	Target        string
	ShmName       string
	ShmSize       int
	ReqPipe       int
	RespPipe      int
	StdoutFD      int
	FuzzIgnoreMin uint32

	// Offline mode.
	Test            string
	TestIn          string
	TestIgnoreMin   uint32
	TestTimeout     uint64
	NumRuns         int
	TestProgramsDir string

	// Topology of the model.
	Memory           string
	HBMMode          bool
	TapascoRISCVPure bool
	ArtificialStall  bool

	// Instrumentation.
	TraceDB     string
	MonitorPort int
}

// Default returns the settings used when no variable is set.
func Default() Config {
	return Config{
		ReqPipe:         -1,
		RespPipe:        -1,
		StdoutFD:        -1,
		FuzzIgnoreMin:   0xffffffff,
		TestIgnoreMin:   0xffffffff,
		TestProgramsDir: "testPrograms",
		Memory:          MemoryBRAM,
	}
}

// Load reads .env files, if they exist, and then the environment. Variables
// that are already set in the environment win over the files.
func Load(files ...string) (Config, error) {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}

		if err := godotenv.Load(f); err != nil {
			return Config{}, errors.Annotatef(err, "loading %s", f)
		}
	}

	return FromEnv(os.LookupEnv)
}

type parser struct {
	lookup func(string) (string, bool)
	errs   []string
}

func (p *parser) str(name string, dst *string) {
	if v, ok := p.lookup(name); ok {
		*dst = v
	}
}

func (p *parser) present(name string, dst *bool) {
	if _, ok := p.lookup(name); ok {
		*dst = true
	}
}

func (p *parser) flag(name string, dst *bool) {
	v, ok := p.lookup(name)
	if !ok {
		return
	}

	b, err := strconv.ParseBool(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Sprintf("%s=%q is not a boolean", name, v))
		return
	}
	*dst = b
}

func (p *parser) integer(name string, dst *int) {
	v, ok := p.lookup(name)
	if !ok {
		return
	}

	n, err := strconv.ParseInt(v, 0, 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Sprintf("%s=%q is not an integer", name, v))
		return
	}
	*dst = int(n)
}

func (p *parser) uint64(name string, dst *uint64) {
	v, ok := p.lookup(name)
	if !ok {
		return
	}

	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Sprintf("%s=%q is not a cycle count", name, v))
		return
	}
	*dst = n
}

func (p *parser) hex32(name string, dst *uint32) {
	v, ok := p.lookup(name)
	if !ok {
		return
	}

	n, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(v), "0x"), 16, 32)
	if err != nil {
		p.errs = append(p.errs, fmt.Sprintf("%s=%q is not a 32-bit hex number", name, v))
		return
	}
	*dst = uint32(n)
}

// FromEnv reads the settings through lookup, which behaves like
// os.LookupEnv.
func FromEnv(lookup func(string) (string, bool)) (Config, error) {
	c := Default()
	p := &parser{lookup: lookup}

	p.str("FUZZTB_TARGET", &c.Target)
	p.str("FUZZTB_SHMEM", &c.ShmName)
	p.integer("FUZZTB_SHMEM_SIZE", &c.ShmSize)
	p.integer("FUZZTB_REQ_PIPE", &c.ReqPipe)
	p.integer("FUZZTB_RESP_PIPE", &c.RespPipe)
	p.integer("FUZZTB_STDOUT", &c.StdoutFD)
	p.hex32("FUZZTB_IGNOREMIN", &c.FuzzIgnoreMin)

	p.str("TEST", &c.Test)
	p.str("TESTIN", &c.TestIn)
	p.hex32("TEST_IGNOREMIN", &c.TestIgnoreMin)
	p.uint64("TESTTIMEOUT", &c.TestTimeout)
	p.integer("NUMRUNS", &c.NumRuns)
	p.str("AXIFUZZ_TEST_PROGRAMS", &c.TestProgramsDir)

	p.str("AXIFUZZ_MEMORY", &c.Memory)
	p.present("HBM_MODE", &c.HBMMode)
	p.present("TAPASCORISCV_PURE", &c.TapascoRISCVPure)
	p.flag("AXIFUZZ_ARTIFICIAL_STALL", &c.ArtificialStall)

	p.str("AXIFUZZ_TRACE_DB", &c.TraceDB)
	p.integer("AXIFUZZ_MONITOR_PORT", &c.MonitorPort)

	c.Memory = strings.ToLower(c.Memory)

	if len(p.errs) > 0 {
		return c, errors.NotValidf("environment: %s", strings.Join(p.errs, "; "))
	}

	return c, nil
}

// Mode returns the mode that the settings select. The fuzzer protocol wins
// if both modes are configured.
func (c Config) Mode() Mode {
	switch {
	case c.Target != "":
		return ModeServe
	case c.Test != "":
		return ModeTest
	default:
		return ModeNone
	}
}

// Layout returns the memory topology that the settings select.
func (c Config) Layout() harness.Layout {
	switch {
	case c.TapascoRISCVPure:
		return harness.LayoutTapascoRISCV
	case c.Memory == MemoryDRAM && c.HBMMode:
		return harness.LayoutHBM
	case c.Memory == MemoryDRAM:
		return harness.LayoutDRAM
	default:
		return harness.LayoutBRAM
	}
}

// FirmwareDir returns the directory that holds the images of the offline
// test.
func (c Config) FirmwareDir() string {
	return filepath.Join(c.TestProgramsDir, c.Test, "bin")
}

// Validate checks that the settings are complete for a mode.
func (c Config) Validate(m Mode) error {
	var problems []string

	if c.Memory != MemoryBRAM && c.Memory != MemoryDRAM {
		problems = append(problems,
			fmt.Sprintf("AXIFUZZ_MEMORY must be %s or %s, not %q",
				MemoryBRAM, MemoryDRAM, c.Memory))
	}

	if c.MonitorPort < 0 || c.MonitorPort > 65535 {
		problems = append(problems,
			fmt.Sprintf("AXIFUZZ_MONITOR_PORT %d is out of range", c.MonitorPort))
	}

	switch m {
	case ModeServe:
		if c.Target == "" {
			problems = append(problems, "FUZZTB_TARGET is not set")
		}

		if c.ShmName == "" {
			problems = append(problems, "FUZZTB_SHMEM is not set")
		}

		if c.ShmSize < 0 {
			problems = append(problems, "FUZZTB_SHMEM_SIZE is negative")
		}

		if c.ReqPipe < 0 {
			problems = append(problems, "FUZZTB_REQ_PIPE is not set")
		}

		if c.RespPipe < 0 {
			problems = append(problems, "FUZZTB_RESP_PIPE is not set")
		}
	case ModeTest:
		if c.Test == "" {
			problems = append(problems, "TEST is not set")
		}

		if c.NumRuns < 0 {
			problems = append(problems, "NUMRUNS is negative")
		}
	}

	if len(problems) > 0 {
		return errors.NotValidf("%s mode configuration: %s",
			m, strings.Join(problems, "; "))
	}

	return nil
}
