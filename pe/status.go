package pe

import (
	"fmt"
	"strings"
)

// Status is the return-status word of a PE run. The zero value means that
// the run succeeded.
type Status uint32

// Bits of the status word.
const (
	StatusException         Status = 1 << 0
	StatusInvalidBitmapSize Status = 1 << 6
	StatusTimeout           Status = 1 << 7

	statusCauseShift = 1
	statusCauseMask  = 0x1f
)

// MakeExceptionStatus returns the status of a run that stopped with the given
// exception cause.
func MakeExceptionStatus(cause uint32) Status {
	return StatusException | Status(cause&statusCauseMask)<<statusCauseShift
}

// IsSuccess tells if the run succeeded.
func (s Status) IsSuccess() bool {
	return s == 0
}

// Exception tells if the core raised an exception.
func (s Status) Exception() bool {
	return s&StatusException != 0
}

// Cause returns the exception cause code.
func (s Status) Cause() uint32 {
	return uint32(s>>statusCauseShift) & statusCauseMask
}

// Timeout tells if the run was stopped by the cycle-count timeout.
func (s Status) Timeout() bool {
	return s&StatusTimeout != 0
}

// InvalidBitmapSize tells if the PE rejected the requested bitmap size.
func (s Status) InvalidBitmapSize() bool {
	return s&StatusInvalidBitmapSize != 0
}

func (s Status) String() string {
	if s.IsSuccess() {
		return "success"
	}

	var parts []string
	if s.Timeout() {
		parts = append(parts, "timeout")
	}

	if s.Exception() {
		parts = append(parts, fmt.Sprintf("exception(cause %d)", s.Cause()))
	}

	if s.InvalidBitmapSize() {
		parts = append(parts, "invalid bitmap size")
	}

	if len(parts) == 0 {
		return fmt.Sprintf("unknown(0x%08x)", uint32(s))
	}

	return strings.Join(parts, ", ")
}

// Completion is how a run ended.
type Completion int

// Kinds of completion.
const (
	CompletionNone Completion = iota
	CompletionSuccess
	CompletionException
	CompletionError
	CompletionTimeout
)

func (c Completion) String() string {
	switch c {
	case CompletionSuccess:
		return "success"
	case CompletionException:
		return "exception"
	case CompletionError:
		return "error"
	case CompletionTimeout:
		return "timeout"
	default:
		return "none"
	}
}

// Result is what the harness reads back after a run.
type Result struct {
	Status  Status
	ExcArg0 uint32 // epc
	ExcArg1 uint32 // tval
	Cycles  uint64
}

// Completion derives the completion kind from the status word.
func (r Result) Completion() Completion {
	switch {
	case r.Status.Timeout():
		return CompletionTimeout
	case r.Status.Exception():
		return CompletionException
	case !r.Status.IsSuccess():
		return CompletionError
	default:
		return CompletionSuccess
	}
}

// FormatResult returns the human readable lines describing a result.
func FormatResult(r Result) []string {
	var lines []string

	if r.Status.Timeout() {
		lines = append(lines, "PE result: Timeout")
	}

	if r.Status.Exception() {
		lines = append(lines, fmt.Sprintf(
			"PE result: Exception (cause %d, epc 0x%08X, tval 0x%08X)",
			r.Status.Cause(), r.ExcArg0, r.ExcArg1))
	}

	if r.Status.InvalidBitmapSize() {
		lines = append(lines, "PE result: Error - Invalid bitmap size")
	}

	if r.Status.IsSuccess() {
		lines = append(lines,
			fmt.Sprintf("PE result: Success (%d cycles)", r.Cycles))
	}

	return lines
}

// FormatBitmap renders a bitmap as a hex dump with 16 bytes per row.
func FormatBitmap(bmp []byte) string {
	var sb strings.Builder

	sb.WriteString("result bitmap: ")

	for i := 0; i < len(bmp); i += 4 {
		if i%16 == 0 {
			fmt.Fprintf(&sb, "\n%02x%02x:", (i&0xff00)>>8, i&0xff)
		}

		for j := i; j < i+4 && j < len(bmp); j++ {
			fmt.Fprintf(&sb, " %02x", bmp[j])
		}
	}

	return sb.String()
}
