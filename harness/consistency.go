package harness

import (
	"bytes"

	"github.com/sarchlab/axifuzz/pe"
)

type inputHistory struct {
	lastBitmap []byte
	successes  int
	runs       int
}

// A ConsistencyChecker verifies that a target behaves the same every time it
// runs on the same input.
type ConsistencyChecker struct {
	inputs map[string]*inputHistory
}

// NewConsistencyChecker creates a ConsistencyChecker.
func NewConsistencyChecker() *ConsistencyChecker {
	return &ConsistencyChecker{inputs: make(map[string]*inputHistory)}
}

// Observe records a run on an input. It returns a *RunInconsistencyError if
// the bitmap differs from the one of the previous run on the same input, or
// if an input that succeeded before fails now.
func (c *ConsistencyChecker) Observe(
	input string,
	status pe.Status,
	bitmap []byte,
) error {
	h, ok := c.inputs[input]
	if !ok {
		h = &inputHistory{}
		c.inputs[input] = h
	}
	h.runs++

	if h.lastBitmap != nil && !bytes.Equal(h.lastBitmap, bitmap) {
		return &RunInconsistencyError{
			Input: input,
			Run:   h.runs,
			Msg:   "Inconsistent bitmap behaviour detected!",
		}
	}

	if h.successes > 0 && !status.IsSuccess() {
		return &RunInconsistencyError{
			Input: input,
			Run:   h.runs,
			Msg:   "Previously successful input failed!",
		}
	}

	h.lastBitmap = append([]byte(nil), bitmap...)
	if status.IsSuccess() {
		h.successes++
	}

	return nil
}

// Successes returns how many runs on input succeeded.
func (c *ConsistencyChecker) Successes(input string) int {
	if h, ok := c.inputs[input]; ok {
		return h.successes
	}

	return 0
}
