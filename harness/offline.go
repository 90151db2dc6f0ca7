package harness

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/juju/errors"
	"github.com/sarchlab/axifuzz/datarecording"
	"github.com/sarchlab/axifuzz/pe"
	"github.com/sarchlab/axifuzz/sim"
)

// An InputFile is a recorded input of the offline mode.
type InputFile struct {
	Path    string
	Data    []byte
	ModTime time.Time
}

// LoadInputs reads the inputs named by a colon-separated list of files and
// directories. Hidden files in directories are skipped. Inputs are ordered
// by modification time.
func LoadInputs(list string) ([]InputFile, error) {
	var inputs []InputFile

	read := func(path string) error {
		info, err := os.Stat(path)
		if err != nil {
			return errors.Trace(err)
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return errors.Trace(err)
		}

		inputs = append(inputs, InputFile{
			Path:    path,
			Data:    data,
			ModTime: info.ModTime(),
		})

		return nil
	}

	for _, name := range strings.Split(list, ":") {
		if name == "" {
			continue
		}

		info, err := os.Stat(name)
		if err != nil {
			return nil, errors.Annotatef(err, "reading inputs")
		}

		if !info.IsDir() {
			if err := read(name); err != nil {
				return nil, err
			}

			continue
		}

		entries, err := os.ReadDir(name)
		if err != nil {
			return nil, errors.Annotatef(err, "reading inputs")
		}

		for _, e := range entries {
			if !e.Type().IsRegular() || strings.HasPrefix(e.Name(), ".") {
				continue
			}

			if err := read(filepath.Join(name, e.Name())); err != nil {
				return nil, err
			}
		}
	}

	sort.SliceStable(inputs, func(i, j int) bool {
		return inputs[i].ModTime.Before(inputs[j].ModTime)
	})

	return inputs, nil
}

// LoadFirmwareDir reads every firmware image in dir.
func LoadFirmwareDir(dir string) ([]*Image, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Annotatef(err, "listing firmware")
	}

	var images []*Image
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}

		img, err := LoadImageFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}

		images = append(images, img)
	}

	return images, nil
}

// An OfflineRunner runs firmware images on recorded inputs and checks that
// every input behaves the same on every run.
type OfflineRunner struct {
	bench      *Bench
	log        logr.Logger
	recorder   runRecorder
	ignoreMin  uint32
	timeout    uint64
	numRuns    int
	bitmapSize uint32
	idleCycles int
}

// OfflineRunnerBuilder can build OfflineRunners.
type OfflineRunnerBuilder struct {
	log        logr.Logger
	recorder   datarecording.DataRecorder
	observers  []RunObserver
	ignoreMin  uint32
	timeout    uint64
	numRuns    int
	bitmapSize uint32
	idleCycles int
}

// MakeOfflineRunnerBuilder returns an OfflineRunnerBuilder with default
// parameters.
func MakeOfflineRunnerBuilder() OfflineRunnerBuilder {
	return OfflineRunnerBuilder{
		log:        logr.Discard(),
		ignoreMin:  0xffffffff,
		bitmapSize: 0x40,
		idleCycles: 100,
	}
}

// WithLogger sets the logger that receives the progress messages.
func (b OfflineRunnerBuilder) WithLogger(l logr.Logger) OfflineRunnerBuilder {
	b.log = l
	return b
}

// WithRecorder makes the runner record every run.
func (b OfflineRunnerBuilder) WithRecorder(
	r datarecording.DataRecorder,
) OfflineRunnerBuilder {
	b.recorder = r
	return b
}

// WithObserver adds a function that is called after every run.
func (b OfflineRunnerBuilder) WithObserver(o RunObserver) OfflineRunnerBuilder {
	b.observers = append(b.observers, o)
	return b
}

// WithIgnoreMin sets the coverage address floor.
func (b OfflineRunnerBuilder) WithIgnoreMin(addr uint32) OfflineRunnerBuilder {
	b.ignoreMin = addr
	return b
}

// WithTimeout sets the timeout of every run, in cycles. Zero disables it.
func (b OfflineRunnerBuilder) WithTimeout(cycles uint64) OfflineRunnerBuilder {
	b.timeout = cycles
	return b
}

// WithNumRuns sets the number of runs per image. By default every input runs
// once.
func (b OfflineRunnerBuilder) WithNumRuns(n int) OfflineRunnerBuilder {
	b.numRuns = n
	return b
}

// WithBitmapSize sets the size of the bitmaps.
func (b OfflineRunnerBuilder) WithBitmapSize(size uint32) OfflineRunnerBuilder {
	b.bitmapSize = size
	return b
}

// WithIdleCycles sets the number of cycles to wait before each image.
func (b OfflineRunnerBuilder) WithIdleCycles(n int) OfflineRunnerBuilder {
	b.idleCycles = n
	return b
}

// Build creates an OfflineRunner.
func (b OfflineRunnerBuilder) Build(bench *Bench) *OfflineRunner {
	return &OfflineRunner{
		bench:      bench,
		log:        b.log,
		recorder:   newRunRecorder(b.recorder, b.observers),
		ignoreMin:  b.ignoreMin,
		timeout:    b.timeout,
		numRuns:    b.numRuns,
		bitmapSize: b.bitmapSize,
		idleCycles: b.idleCycles,
	}
}

// Run runs every image on the inputs.
func (r *OfflineRunner) Run(
	p *sim.Proc,
	images []*Image,
	inputs []InputFile,
) error {
	run := 0

	for _, img := range images {
		n, err := r.runImage(p, img, inputs, run)
		if err != nil {
			return errors.Annotatef(err, "image %s", img.Name)
		}

		run += n
	}

	return nil
}

func (r *OfflineRunner) checkInputsFit(img *Image, inputs []InputFile) error {
	l := r.bench.Layout

	for _, in := range inputs {
		n := uint64(len(in.Data))
		if n > l.DataRange || l.DataVirt+l.InputOffset(n) <= img.Size() {
			return &TargetBinaryError{
				Image: img.Name,
				Msg:   "Binary too large (no room for input data)",
			}
		}
	}

	return nil
}

func (r *OfflineRunner) runs(inputs []InputFile) int {
	if r.numRuns > 0 {
		return r.numRuns
	}

	return max(len(inputs), 1)
}

func (r *OfflineRunner) runImage(
	p *sim.Proc,
	img *Image,
	inputs []InputFile,
	firstRun int,
) (int, error) {
	p.WaitCycles(r.idleCycles)

	err := r.bench.PE.Invalidate(p,
		pe.InvalidateICache|pe.InvalidateBranchPredictor)
	if err != nil {
		return 0, errors.Trace(err)
	}

	if err := r.bench.LoadImage(p, img); err != nil {
		return 0, errors.Trace(err)
	}

	if err := r.checkInputsFit(img, inputs); err != nil {
		return 0, err
	}

	r.log.Info("firmware loaded", "image", img.Name)

	checker := NewConsistencyChecker()
	n := r.runs(inputs)

	for i := 0; i < n; i++ {
		var in *InputFile
		if len(inputs) > 0 {
			in = &inputs[i%len(inputs)]
		}

		if err := r.runOnce(p, firstRun+i, in, checker); err != nil {
			return i, err
		}
	}

	return n, nil
}

func (r *OfflineRunner) runOnce(
	p *sim.Proc,
	run int,
	in *InputFile,
	checker *ConsistencyChecker,
) error {
	if err := r.bench.ReloadData(p); err != nil {
		return errors.Trace(err)
	}

	var data []byte
	if in != nil {
		data = in.Data
	}

	virt, err := r.bench.PlaceInput(p, data)
	if err != nil {
		return errors.Trace(err)
	}

	r.log.Info("Set program input", "input", fmt.Sprintf("%q", data))
	if in != nil {
		r.log.Info("File modify date (seconds since epoch)",
			"path", in.Path, "mtime", in.ModTime.Unix())
	}

	result, err := r.bench.PE.StartWait(p, pe.RunArgs{
		ArgLength:     uint32(len(data)),
		ArgPointer:    uint32(virt),
		BitmapSize:    r.bitmapSize,
		IgnoreMin:     r.ignoreMin,
		TimeoutCycles: r.timeout,
	})
	if err != nil {
		return errors.Trace(err)
	}

	for _, line := range pe.FormatResult(result) {
		r.log.Info(line)
	}

	rec := makeRunRecord(run, data, result)
	defer func() { r.recorder.record(rec) }()

	if r.bench.Layout.TapascoRISCV {
		return nil
	}

	bmp, err := r.bench.ReadBitmap(p, r.bitmapSize)
	if err != nil {
		return errors.Trace(err)
	}
	rec.BitmapCRC = bitmapCRC(bmp)

	r.log.Info(pe.FormatBitmap(bmp))

	if in == nil {
		return nil
	}

	return checker.Observe(in.Path, result.Status, bmp)
}
