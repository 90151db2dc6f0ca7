package tracing

import (
	"sort"
	"sync"

	"github.com/sarchlab/axifuzz/sim"
)

// ChannelStats summarizes the transactions of one bus channel.
type ChannelStats struct {
	Channel string
	Kind    string

	Completed   uint64
	Beats       uint64
	InFlight    int
	MaxInFlight int

	TotalLatency sim.VTimeInCycle
	MaxLatency   sim.VTimeInCycle

	// BusyCycles counts the cycles with at least one transaction in flight.
	BusyCycles sim.VTimeInCycle
}

// MeanLatency returns the average number of cycles from the address
// handshake to the last handshake of a transaction.
func (s ChannelStats) MeanLatency() float64 {
	if s.Completed == 0 {
		return 0
	}

	return float64(s.TotalLatency) / float64(s.Completed)
}

// Utilization returns the share of the elapsed cycles the channel was busy.
func (s ChannelStats) Utilization(elapsed sim.VTimeInCycle) float64 {
	if elapsed == 0 {
		return 0
	}

	return float64(s.BusyCycles) / float64(elapsed)
}

type inflightTxn struct {
	channel string
	start   sim.VTimeInCycle
	beats   int
}

type channelState struct {
	stats     ChannelStats
	busySince sim.VTimeInCycle
}

// A BusTracer keeps per-channel latency, occupancy and busy time of the bus
// transactions it sees.
type BusTracer struct {
	clock  sim.TimeTeller
	filter TaskFilter

	lock     sync.Mutex
	inflight map[string]inflightTxn
	channels map[string]*channelState
}

// NewBusTracer creates a BusTracer. A nil filter accepts every task.
func NewBusTracer(clock sim.TimeTeller, filter TaskFilter) *BusTracer {
	return &BusTracer{
		clock:    clock,
		filter:   filter,
		inflight: make(map[string]inflightTxn),
		channels: make(map[string]*channelState),
	}
}

// StartTask opens a transaction on the task's channel.
func (t *BusTracer) StartTask(task Task) {
	if t.filter != nil && !t.filter(task) {
		return
	}

	now := t.clock.CurrentTime()
	name := task.Channel()

	t.lock.Lock()
	defer t.lock.Unlock()

	ch, ok := t.channels[name]
	if !ok {
		ch = &channelState{stats: ChannelStats{Channel: name, Kind: task.Kind}}
		t.channels[name] = ch
	}

	if ch.stats.InFlight == 0 {
		ch.busySince = now
	}

	ch.stats.InFlight++
	if ch.stats.InFlight > ch.stats.MaxInFlight {
		ch.stats.MaxInFlight = ch.stats.InFlight
	}

	t.inflight[task.ID] = inflightTxn{
		channel: name,
		start:   now,
		beats:   beatsOf(task.Detail),
	}
}

// StepTask does nothing.
func (t *BusTracer) StepTask(_ Task) {}

// EndTask closes the transaction. Tasks that were never started here are
// ignored.
func (t *BusTracer) EndTask(task Task) {
	now := t.clock.CurrentTime()

	t.lock.Lock()
	defer t.lock.Unlock()

	txn, ok := t.inflight[task.ID]
	if !ok {
		return
	}
	delete(t.inflight, task.ID)

	s := &t.channels[txn.channel].stats
	latency := now - txn.start

	s.Completed++
	s.Beats += uint64(txn.beats)
	s.TotalLatency += latency
	if latency > s.MaxLatency {
		s.MaxLatency = latency
	}

	s.InFlight--
	if s.InFlight == 0 {
		s.BusyCycles += now - t.channels[txn.channel].busySince
	}
}

// Channels returns the statistics of every channel, sorted by name. Busy time
// of the transactions still in flight is counted up to the current cycle.
func (t *BusTracer) Channels() []ChannelStats {
	now := t.clock.CurrentTime()

	t.lock.Lock()
	defer t.lock.Unlock()

	out := make([]ChannelStats, 0, len(t.channels))
	for _, ch := range t.channels {
		s := ch.stats
		if s.InFlight > 0 {
			s.BusyCycles += now - ch.busySince
		}

		out = append(out, s)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Channel < out[j].Channel
	})

	return out
}

// Channel returns the statistics of one channel.
func (t *BusTracer) Channel(name string) (ChannelStats, bool) {
	for _, s := range t.Channels() {
		if s.Channel == name {
			return s, true
		}
	}

	return ChannelStats{}, false
}
