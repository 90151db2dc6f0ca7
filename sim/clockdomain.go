package sim

import (
	"errors"
	"fmt"

	"github.com/go-logr/logr"
)

// Phase is the part of a cycle that a ClockDomain is executing.
type Phase int

// The phases of a cycle. Processes run in the edge phase and the read-only
// phase. Staged signal writes are committed in between.
const (
	PhaseIdle Phase = iota
	PhaseEdge
	PhaseCommit
	PhaseReadOnly
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseEdge:
		return "edge"
	case PhaseCommit:
		return "commit"
	case PhaseReadOnly:
		return "read-only"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// HookPosCycleEnd triggers after the read-only phase of every cycle. The
// item is the cycle number.
var HookPosCycleEnd = &HookPos{Name: "Cycle End"}

// HookPosProcDone triggers when a process returns. The item is the Task.
var HookPosProcDone = &HookPos{Name: "Process Done"}

// ErrAlreadyRun is returned when Run is called on a ClockDomain twice.
var ErrAlreadyRun = errors.New("clock domain has already run")

// A ClockDomain owns a set of signals and a set of processes that are driven
// by a single clock.
type ClockDomain struct {
	HookableBase

	name   string
	engine Engine
	freq   Freq
	log    logr.Logger

	signals     map[string]*Signal
	signalOrder []*Signal
	dirty       []*Signal

	procs   []*Proc
	ready   []*Proc
	current *Proc
	yield   chan struct{}

	phase Phase
	now   VTimeInCycle

	started bool
	main    *Proc
	err     error
}

// Name returns the name of the clock domain.
func (d *ClockDomain) Name() string {
	return d.name
}

// Engine returns the event engine that drives the clock.
func (d *ClockDomain) Engine() Engine {
	return d.engine
}

// Freq returns the clock frequency.
func (d *ClockDomain) Freq() Freq {
	return d.freq
}

// Logger returns the logger of the clock domain.
func (d *ClockDomain) Logger() logr.Logger {
	return d.log
}

// Now returns the current cycle.
func (d *ClockDomain) Now() VTimeInCycle {
	return d.now
}

// Phase returns the phase that the domain is executing.
func (d *ClockDomain) Phase() Phase {
	return d.phase
}

// NewSignal creates a signal owned by the domain. Signal names are unique in
// a domain.
func (d *ClockDomain) NewSignal(name string, width int) *Signal {
	NameMustBeValid(name)

	if width <= 0 || width > MaxSignalWidth {
		panic(fmt.Sprintf("signal %s: invalid width %d", name, width))
	}

	if _, found := d.signals[name]; found {
		panic(fmt.Sprintf("signal %s already exists", name))
	}

	n := (width + 7) / 8
	s := &Signal{
		name:   name,
		width:  width,
		domain: d,
		cur:    make([]byte, n),
		next:   make([]byte, n),
	}

	d.signals[name] = s
	d.signalOrder = append(d.signalOrder, s)

	return s
}

// Signal returns the signal with the given name, or nil if there is none.
func (d *ClockDomain) Signal(name string) *Signal {
	return d.signals[name]
}

// Signals returns all the signals in creation order.
func (d *ClockDomain) Signals() []*Signal {
	return d.signalOrder
}

// SpawnDaemon registers a process that starts with the first cycle and is
// killed once the main process returns.
func (d *ClockDomain) SpawnDaemon(name string, fn ProcFunc) *Task {
	return d.spawn(name, fn, true).task
}

// Run starts the clock with main as the main process. It returns when main
// returns or when any daemon fails. A ClockDomain can only run once.
func (d *ClockDomain) Run(name string, main ProcFunc) error {
	if d.started {
		return ErrAlreadyRun
	}
	d.started = true

	d.main = d.spawn(name, main, false)
	d.engine.Schedule(MakeTickEvent(d, d.engine.CurrentTime()))

	engineErr := d.engine.Run()

	if d.err != nil {
		return d.err
	}

	if engineErr != nil {
		return engineErr
	}

	if !d.main.task.done {
		return fmt.Errorf("clock domain %s stopped before %s returned",
			d.name, name)
	}

	return d.main.task.err
}

// Handle runs one cycle.
func (d *ClockDomain) Handle(e Event) error {
	if _, ok := e.(TickEvent); !ok {
		panic(fmt.Sprintf("clock domain %s cannot handle %T", d.name, e))
	}

	d.now = e.Time()

	d.phase = PhaseEdge
	d.wakeEdgeWaiters()
	d.runReady()

	d.phase = PhaseCommit
	d.commit()

	d.phase = PhaseReadOnly
	d.wakeReadOnlyWaiters()
	d.runReady()

	d.phase = PhaseIdle
	d.InvokeHook(HookCtx{Domain: d, Pos: HookPosCycleEnd, Item: d.now})

	if d.err != nil || d.main.task.done {
		d.shutdown()
		return d.err
	}

	d.engine.Schedule(MakeTickEvent(d, d.now+1))

	return nil
}

func (d *ClockDomain) spawn(name string, fn ProcFunc, daemon bool) *Proc {
	p := &Proc{
		name:   name,
		domain: d,
		daemon: daemon,
		task:   &Task{name: name},
		resume: make(chan bool),
	}

	d.procs = append(d.procs, p)
	p.start(fn)
	d.makeReady(p)

	return p
}

func (d *ClockDomain) makeReady(p *Proc) {
	p.wait = waitReady
	d.ready = append(d.ready, p)
}

func (d *ClockDomain) runReady() {
	for len(d.ready) > 0 && d.err == nil {
		p := d.ready[0]
		d.ready = d.ready[1:]

		d.current = p
		p.resume <- false
		<-d.yield
		d.current = nil
	}
}

func (d *ClockDomain) wakeEdgeWaiters() {
	alive := d.procs[:0]

	for _, p := range d.procs {
		if p.task.done {
			continue
		}
		alive = append(alive, p)

		switch p.wait {
		case waitEdge:
			d.makeReady(p)
		case waitRise:
			s := p.riseSignal
			if s.hasRisen && s.roseAt >= p.riseFrom {
				d.makeReady(p)
			}
		}
	}

	for i := len(alive); i < len(d.procs); i++ {
		d.procs[i] = nil
	}
	d.procs = alive
}

func (d *ClockDomain) wakeReadOnlyWaiters() {
	for _, p := range d.procs {
		if p.wait == waitReadOnly && p.readOnlyFrom <= d.now {
			d.makeReady(p)
		}
	}
}

func (d *ClockDomain) commit() {
	for _, s := range d.dirty {
		s.commit(d.now)
	}
	d.dirty = d.dirty[:0]
}

func (d *ClockDomain) finish(p *Proc, err error) {
	p.task.done = true
	p.task.err = err
	p.wait = waitNone

	if err != nil {
		if p.daemon {
			d.abort(fmt.Errorf("daemon %s: %w", p.name, err))
		} else if p != d.main {
			p.Logger().V(1).Info("process failed", "error", err.Error())
		}
	}

	for _, j := range p.task.joiners {
		d.makeReady(j)
	}
	p.task.joiners = nil

	d.InvokeHook(HookCtx{Domain: d, Pos: HookPosProcDone, Item: p.task})
}

func (d *ClockDomain) abort(err error) {
	if d.err != nil {
		return
	}

	d.log.Error(err, "aborting run", "cycle", d.now)
	d.err = err
}

func (d *ClockDomain) shutdown() {
	for _, p := range d.procs {
		if p.task.done {
			continue
		}

		d.current = p
		p.resume <- true
		<-d.yield
		d.current = nil
	}

	d.procs = nil
	d.ready = nil
}
