package harness

// A Session is the state that the harness keeps between fuzzer commands.
type Session struct {
	InputSize  uint32
	InputVirt  uint64
	BitmapSize uint32
	IgnoreMin  uint32
	Runs       int
	Input      []byte

	lastResult *RunRecord
}

// NewSession creates a session whose input pointer is the end of the data
// region of the layout.
func NewSession(l Layout, ignoreMin uint32) *Session {
	return &Session{
		InputVirt: l.InputVirt(l.DataRange),
		IgnoreMin: ignoreMin,
	}
}
