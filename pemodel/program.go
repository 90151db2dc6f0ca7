package pemodel

// Outcome is what a Program reports after running on one input.
type Outcome struct {
	Cycles    uint64
	Exception bool
	Cause     uint32
	EPC       uint32
	TVal      uint32
}

// A Program stands in for the firmware that a PE executes. Execute runs the
// program on input and records coverage into bitmap, whose length is a power
// of two. Control-flow edges at or above ignoreMin are not recorded.
type Program interface {
	Execute(input []byte, bitmap []byte, ignoreMin uint32) Outcome
}

// EdgeWalk is a deterministic Program that walks one basic block per input
// byte and records the edges between consecutive blocks the way AFL does.
type EdgeWalk struct {
	CodeBase      uint32
	BaseCycles    uint64
	CyclesPerByte uint64
}

// DefaultEdgeWalk is the program that a PE runs unless told otherwise.
var DefaultEdgeWalk = EdgeWalk{
	CodeBase:      0x40000000,
	BaseCycles:    64,
	CyclesPerByte: 12,
}

func blockID(pc uint32) uint32 {
	x := pc * 0x9e3779b1
	return x ^ x>>15
}

// Execute implements Program.
func (w EdgeWalk) Execute(input []byte, bitmap []byte, ignoreMin uint32) Outcome {
	mask := uint32(len(bitmap) - 1)
	prev := uint32(0)

	visit := func(pc uint32) {
		if pc >= ignoreMin {
			return
		}

		cur := blockID(pc)
		bitmap[(cur^prev)&mask]++
		prev = cur >> 1
	}

	visit(w.CodeBase)
	for i, b := range input {
		visit(w.CodeBase + 0x100 + uint32(b)<<4 + uint32(i&1)<<2)
	}
	visit(w.CodeBase + 0x80)

	return Outcome{
		Cycles: w.BaseCycles + w.CyclesPerByte*uint64(len(input)),
	}
}

// ProgramFunc adapts a function to the Program interface.
type ProgramFunc func(input []byte, bitmap []byte, ignoreMin uint32) Outcome

// Execute implements Program.
func (f ProgramFunc) Execute(input []byte, bitmap []byte, ignoreMin uint32) Outcome {
	return f(input, bitmap, ignoreMin)
}
