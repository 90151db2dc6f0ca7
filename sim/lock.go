package sim

// A Lock is a mutex between processes of the same ClockDomain. Waiters get the
// lock in the order they asked for it.
type Lock struct {
	name    string
	holder  *Proc
	waiters []*Proc
}

// NewLock creates a new Lock.
func NewLock(name string) *Lock {
	return &Lock{name: name}
}

// Name returns the name of the lock.
func (l *Lock) Name() string {
	return l.name
}

// Acquire takes the lock, suspending p until the lock is free.
func (l *Lock) Acquire(p *Proc) {
	if l.holder == nil {
		l.holder = p
		return
	}

	if l.holder == p {
		panic("lock " + l.name + " acquired twice by " + p.name)
	}

	l.waiters = append(l.waiters, p)
	p.suspend(waitLock)
}

// Release hands the lock to the next waiter, which resumes in the current
// phase.
func (l *Lock) Release(p *Proc) {
	if l.holder != p {
		panic("lock " + l.name + " released by non-holder " + p.name)
	}

	if len(l.waiters) == 0 {
		l.holder = nil
		return
	}

	next := l.waiters[0]
	l.waiters = l.waiters[1:]
	l.holder = next
	p.domain.makeReady(next)
}

// Locked tells if someone holds the lock.
func (l *Lock) Locked() bool {
	return l.holder != nil
}
