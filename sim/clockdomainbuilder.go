package sim

import "github.com/go-logr/logr"

// ClockDomainBuilder can build clock domains.
type ClockDomainBuilder struct {
	engine Engine
	freq   Freq
	log    logr.Logger
}

// MakeClockDomainBuilder returns a ClockDomainBuilder with default
// parameters.
func MakeClockDomainBuilder() ClockDomainBuilder {
	return ClockDomainBuilder{
		freq: 100 * MHz,
		log:  logr.Discard(),
	}
}

// WithEngine sets the engine that drives the clock.
func (b ClockDomainBuilder) WithEngine(e Engine) ClockDomainBuilder {
	b.engine = e
	return b
}

// WithFreq sets the clock frequency.
func (b ClockDomainBuilder) WithFreq(f Freq) ClockDomainBuilder {
	b.freq = f
	return b
}

// WithLogger sets the logger.
func (b ClockDomainBuilder) WithLogger(l logr.Logger) ClockDomainBuilder {
	b.log = l
	return b
}

// Build creates a new ClockDomain. A SerialEngine is created if no engine is
// given.
func (b ClockDomainBuilder) Build(name string) *ClockDomain {
	NameMustBeValid(name)

	d := &ClockDomain{
		name:    name,
		engine:  b.engine,
		freq:    b.freq,
		log:     b.log.WithName(name),
		signals: make(map[string]*Signal),
		yield:   make(chan struct{}),
	}

	if d.engine == nil {
		d.engine = NewSerialEngine()
	}

	return d
}
