package harness

import "fmt"

// A SizeError reports a firmware image, input, or bitmap that does not fit
// the memory layout or the shared control block.
type SizeError struct {
	What  string
	Size  uint64
	Limit uint64
	Msg   string
}

func (e *SizeError) Error() string {
	return fmt.Sprintf("%s of %d bytes: %s (limit %d)",
		e.What, e.Size, e.Msg, e.Limit)
}

// A RunInconsistencyError reports a target that behaves differently on the
// same input.
type RunInconsistencyError struct {
	Input string
	Run   int
	Msg   string
}

func (e *RunInconsistencyError) Error() string {
	return fmt.Sprintf("run %d on input %s: %s", e.Run, e.Input, e.Msg)
}

// A TargetBinaryError reports a firmware image that cannot be loaded.
type TargetBinaryError struct {
	Image string
	Msg   string
}

func (e *TargetBinaryError) Error() string {
	return fmt.Sprintf("target binary %s: %s", e.Image, e.Msg)
}

// A TargetExitedError reports a target that closed its end of the pipes while
// the fuzzer waited on Cmd.
type TargetExitedError struct {
	Cmd Command
	Err error
}

func (e *TargetExitedError) Error() string {
	return fmt.Sprintf("pipe closed at %s: %v", e.Cmd, e.Err)
}

func (e *TargetExitedError) Unwrap() error {
	return e.Err
}
