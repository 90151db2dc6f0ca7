package sim

import (
	"strconv"
	"sync/atomic"

	"github.com/rs/xid"
)

var (
	nextID    atomic.Uint64
	uniqueIDs atomic.Bool
)

// UseUniqueIDs makes NewID return globally unique ids instead of sequence
// numbers. Sequence numbers make the traces of two identical runs match line
// by line; unique ids are for traces merged from several processes.
func UseUniqueIDs(unique bool) {
	uniqueIDs.Store(unique)
}

// NewID returns a new id for an event, a bus transaction or a task. The kind,
// for example "AR" or "AW", prefixes the id.
func NewID(kind string) string {
	if uniqueIDs.Load() {
		return kind + "-" + xid.New().String()
	}

	return kind + "-" + strconv.FormatUint(nextID.Add(1), 10)
}
