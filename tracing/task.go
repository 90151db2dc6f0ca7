package tracing

import "github.com/sarchlab/axifuzz/sim"

// A TaskStep represents a milestone in the processing of task
type TaskStep struct {
	Time sim.VTimeInCycle `json:"time"`
	What string           `json:"what"`
}

// A Task is a piece of work done by a component, for example one burst that a
// slave serves.
type Task struct {
	ID        string           `json:"id"`
	ParentID  string           `json:"parent_id"`
	Kind      string           `json:"kind"`
	What      string           `json:"what"`
	Location  string           `json:"location"`
	StartTime sim.VTimeInCycle `json:"start_time"`
	EndTime   sim.VTimeInCycle `json:"end_time"`
	Steps     []TaskStep       `json:"steps"`
	Detail    interface{}      `json:"-"`
}

// Channel names the bus side that a task travelled on: the component that
// issued or served it, and the direction. Reads use the AR and R channels,
// writes use AW, W and B.
func (t Task) Channel() string {
	return t.Location + ":" + t.What
}

// A Burst is the detail of a task that moves more than one beat.
type Burst interface {
	BurstLength() int
}

func beatsOf(detail interface{}) int {
	if b, ok := detail.(Burst); ok {
		return b.BurstLength()
	}

	return 1
}

// TaskFilter is a function that can filter interesting tasks. If this function
// returns true, the task is considered useful.
type TaskFilter func(t Task) bool

// KindFilter returns a TaskFilter that accepts tasks of the given kind.
func KindFilter(kind string) TaskFilter {
	return func(t Task) bool {
		return t.Kind == kind
	}
}
