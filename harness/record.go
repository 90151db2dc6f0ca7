package harness

import (
	"encoding/hex"
	"hash/crc32"

	"github.com/sarchlab/axifuzz/datarecording"
	"github.com/sarchlab/axifuzz/pe"
)

// RunTableName is the name of the table that holds RunRecords.
const RunTableName = "pe_run"

// A RunRecord summarizes one PE run.
type RunRecord struct {
	Run        int    `db:"run,index"`
	Input      string `db:"input"`
	InputSize  int    `db:"input_size"`
	Status     uint32 `db:"status,index"`
	Completion string `db:"completion"`
	Cycles     uint64 `db:"cycles"`
	BitmapCRC  uint32 `db:"bitmap_crc"`
}

const maxRecordedInput = 64

func makeRunRecord(run int, input []byte, r pe.Result) RunRecord {
	shown := input
	if len(shown) > maxRecordedInput {
		shown = shown[:maxRecordedInput]
	}

	return RunRecord{
		Run:        run,
		Input:      hex.EncodeToString(shown),
		InputSize:  len(input),
		Status:     uint32(r.Status),
		Completion: r.Completion().String(),
		Cycles:     r.Cycles,
	}
}

func bitmapCRC(bmp []byte) uint32 {
	return crc32.ChecksumIEEE(bmp)
}

// A RunObserver is told about every finished run.
type RunObserver func(rec RunRecord)

type runRecorder struct {
	recorder  datarecording.DataRecorder
	observers []RunObserver
}

func newRunRecorder(
	r datarecording.DataRecorder,
	observers []RunObserver,
) runRecorder {
	if r != nil {
		r.CreateTable(RunTableName, RunRecord{})
	}

	return runRecorder{recorder: r, observers: observers}
}

func (r runRecorder) record(rec RunRecord) {
	for _, o := range r.observers {
		o(rec)
	}

	if r.recorder == nil {
		return
	}

	r.recorder.InsertData(RunTableName, rec)
}
