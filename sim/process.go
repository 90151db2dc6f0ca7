package sim

import (
	"fmt"
	"runtime"

	"github.com/go-logr/logr"
)

type waitKind int

const (
	waitNone waitKind = iota
	waitReady
	waitEdge
	waitReadOnly
	waitRise
	waitJoin
	waitLock
)

// A ProcFunc is the body of a simulated process.
type ProcFunc func(p *Proc) error

// A Proc is a simulated process. Each Proc runs in its own goroutine, but the
// ClockDomain makes sure that only one Proc executes at any time. A Proc
// gives up control only when it waits on something.
type Proc struct {
	name   string
	domain *ClockDomain
	daemon bool
	task   *Task

	resume chan bool
	wait   waitKind

	readOnlyFrom VTimeInCycle
	riseSignal   *Signal
	riseFrom     VTimeInCycle
}

// Name returns the name of the process.
func (p *Proc) Name() string {
	return p.name
}

// Domain returns the clock domain that the process runs in.
func (p *Proc) Domain() *ClockDomain {
	return p.domain
}

// Now returns the current cycle.
func (p *Proc) Now() VTimeInCycle {
	return p.domain.now
}

// Logger returns the domain logger tagged with the process name.
func (p *Proc) Logger() logr.Logger {
	return p.domain.log.WithValues("proc", p.name)
}

// RisingEdge suspends the process until the edge phase of the next cycle.
func (p *Proc) RisingEdge() {
	p.suspend(waitEdge)
}

// ReadOnly suspends the process until the read-only phase. If the process is
// already in the read-only phase, it waits for the read-only phase of the
// next cycle.
func (p *Proc) ReadOnly() {
	p.readOnlyFrom = p.domain.now
	if p.domain.phase == PhaseReadOnly {
		p.readOnlyFrom++
	}

	p.suspend(waitReadOnly)
}

// WaitCycles waits for n rising edges.
func (p *Proc) WaitCycles(n int) {
	for i := 0; i < n; i++ {
		p.RisingEdge()
	}
}

// WaitRise suspends the process until the signal goes from low to high. The
// process resumes in the edge phase of the cycle after the rise is
// committed.
func (p *Proc) WaitRise(s *Signal) {
	p.riseSignal = s
	p.riseFrom = p.domain.now
	if p.domain.phase != PhaseEdge {
		p.riseFrom++
	}

	p.suspend(waitRise)
	p.riseSignal = nil
}

// Spawn starts a child process. The child starts running in the current
// phase, right after the caller waits on something.
func (p *Proc) Spawn(name string, fn ProcFunc) *Task {
	return p.domain.spawn(p.name+"."+name, fn, false).task
}

// SpawnDaemon starts a child process that is killed when the main process
// returns. An error from a daemon aborts the whole run.
func (p *Proc) SpawnDaemon(name string, fn ProcFunc) *Task {
	return p.domain.spawn(p.name+"."+name, fn, true).task
}

func (p *Proc) suspend(w waitKind) {
	if p.domain.current != p {
		panic(fmt.Sprintf("process %s suspended from outside its goroutine",
			p.name))
	}

	p.wait = w
	p.domain.yield <- struct{}{}

	if kill := <-p.resume; kill {
		runtime.Goexit()
	}

	p.wait = waitNone
}

func (p *Proc) start(fn ProcFunc) {
	go func() {
		defer func() {
			p.domain.yield <- struct{}{}
		}()

		if kill := <-p.resume; kill {
			return
		}

		err := p.call(fn)
		p.domain.finish(p, err)
	}()
}

func (p *Proc) call(fn ProcFunc) (err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}

		if e, ok := r.(error); ok {
			err = fmt.Errorf("process %s panicked: %w", p.name, e)
			return
		}

		err = fmt.Errorf("process %s panicked: %v", p.name, r)
	}()

	return fn(p)
}

// A Task is the handle of a spawned process.
type Task struct {
	name    string
	done    bool
	err     error
	joiners []*Proc
}

// Name returns the name of the process behind the task.
func (t *Task) Name() string {
	return t.name
}

// Done tells if the process has returned.
func (t *Task) Done() bool {
	return t.done
}

// Err returns the error returned by the process.
func (t *Task) Err() error {
	return t.err
}

// Join suspends p until the task is done and returns the task error.
func (t *Task) Join(p *Proc) error {
	if !t.done {
		t.joiners = append(t.joiners, p)
		p.suspend(waitJoin)
	}

	return t.err
}
