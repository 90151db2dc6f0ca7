package harness

import (
	"fmt"
	"io"

	"github.com/go-logr/logr"
	"github.com/juju/errors"
	"github.com/sarchlab/axifuzz/datarecording"
	"github.com/sarchlab/axifuzz/pe"
	"github.com/sarchlab/axifuzz/sim"
)

// Command is a request of the fuzzer.
type Command byte

// Commands of the pipe protocol.
const (
	CmdSetInput   Command = 0
	CmdStart      Command = 1
	CmdCopyBitmap Command = 2
	CmdClose      Command = 255
)

func (c Command) known() bool {
	switch c {
	case CmdSetInput, CmdStart, CmdCopyBitmap, CmdClose:
		return true
	default:
		return false
	}
}

func (c Command) String() string {
	switch c {
	case CmdSetInput:
		return "SetInput"
	case CmdStart:
		return "Start"
	case CmdCopyBitmap:
		return "CopyBitmap"
	case CmdClose:
		return "Close"
	default:
		return fmt.Sprintf("Command(%d)", byte(c))
	}
}

// responseOK is the only response byte of the protocol.
const responseOK = 0

// A Server answers fuzzer commands. Commands arrive one byte at a time on the
// request pipe, their arguments and results travel through the shared control
// block, and each command is acknowledged with exactly one byte on the
// response pipe.
type Server struct {
	bench    *Bench
	cb       *ControlBlock
	req      io.Reader
	resp     io.Writer
	log      logr.Logger
	recorder runRecorder
	session  *Session
}

// ServerBuilder can build Servers.
type ServerBuilder struct {
	log       logr.Logger
	recorder  datarecording.DataRecorder
	observers []RunObserver
	ignoreMin uint32
}

// MakeServerBuilder returns a ServerBuilder with default parameters.
func MakeServerBuilder() ServerBuilder {
	return ServerBuilder{
		log:       logr.Discard(),
		ignoreMin: 0xffffffff,
	}
}

// WithLogger sets the logger that receives the progress messages.
func (b ServerBuilder) WithLogger(l logr.Logger) ServerBuilder {
	b.log = l
	return b
}

// WithRecorder makes the server record every run.
func (b ServerBuilder) WithRecorder(r datarecording.DataRecorder) ServerBuilder {
	b.recorder = r
	return b
}

// WithObserver adds a function that is called after every run.
func (b ServerBuilder) WithObserver(o RunObserver) ServerBuilder {
	b.observers = append(b.observers, o)
	return b
}

// WithIgnoreMin sets the address at and above which the PE ignores control
// flow for coverage.
func (b ServerBuilder) WithIgnoreMin(addr uint32) ServerBuilder {
	b.ignoreMin = addr
	return b
}

// Build creates a Server.
func (b ServerBuilder) Build(
	bench *Bench,
	cb *ControlBlock,
	req io.Reader,
	resp io.Writer,
) *Server {
	return &Server{
		bench:    bench,
		cb:       cb,
		req:      req,
		resp:     resp,
		log:      b.log,
		recorder: newRunRecorder(b.recorder, b.observers),
		session:  NewSession(bench.Layout, b.ignoreMin),
	}
}

// Session returns the state of the server.
func (s *Server) Session() *Session {
	return s.session
}

// Serve loads the image and answers commands until the fuzzer sends Close
// or closes the request pipe.
func (s *Server) Serve(p *sim.Proc, img *Image) error {
	s.log.Info("Loading binary", "image", img.Name)

	if err := s.bench.LoadImage(p, img); err != nil {
		return errors.Trace(err)
	}

	s.log.Info("Simulator ready")

	defer s.flushRecord()

	var buf [1]byte
	for {
		if _, err := io.ReadFull(s.req, buf[:]); err != nil {
			if err == io.EOF {
				s.log.Info("Request pipe closed")
				return nil
			}

			return errors.Annotatef(err, "reading command")
		}

		cmd := Command(buf[0])
		if cmd == CmdClose {
			s.log.Info("Closing")
			return nil
		}

		// Unknown commands get no response. A fuzzer that sends one will
		// block on its read until it gives up.
		if !cmd.known() {
			s.log.Info("Ignoring unknown command", "command", cmd.String())
			continue
		}

		if err := s.handle(p, cmd); err != nil {
			return errors.Annotatef(err, "command %s", cmd)
		}

		if _, err := s.resp.Write([]byte{responseOK}); err != nil {
			return errors.Annotatef(err, "acknowledging %s", cmd)
		}
	}
}

func (s *Server) handle(p *sim.Proc, cmd Command) error {
	switch cmd {
	case CmdSetInput:
		return s.setInput(p)
	case CmdStart:
		return s.start(p)
	case CmdCopyBitmap:
		return s.copyBitmap(p)
	default:
		return errors.NotValidf("command %d", byte(cmd))
	}
}

func (s *Server) setInput(p *sim.Proc) error {
	input, err := s.cb.Input()
	if err != nil {
		return errors.Trace(err)
	}

	s.log.Info("Set program input", "input", fmt.Sprintf("%q", input))

	virt, err := s.bench.PlaceInput(p, input)
	if err != nil {
		return errors.Trace(err)
	}

	s.session.InputVirt = virt
	s.session.InputSize = uint32(len(input))
	s.session.Input = append(s.session.Input[:0], input...)

	return nil
}

func (s *Server) start(p *sim.Proc) error {
	if err := s.bench.ReloadData(p); err != nil {
		return errors.Trace(err)
	}

	size := s.cb.BitmapSize()
	err := ValidateBitmapSize(size, s.cb.Size(), s.bench.Layout.MaxBitmap)
	if err != nil {
		return errors.Trace(err)
	}
	s.session.BitmapSize = size

	timeout := s.cb.Timeout()

	s.log.Info("Starting PE")

	r, err := s.bench.PE.StartWait(p, pe.RunArgs{
		ArgLength:     s.session.InputSize,
		ArgPointer:    uint32(s.session.InputVirt),
		BitmapSize:    size,
		IgnoreMin:     s.session.IgnoreMin,
		TimeoutCycles: timeout,
	})
	if err != nil {
		return errors.Trace(err)
	}

	for _, line := range pe.FormatResult(r) {
		s.log.Info(line)
	}

	s.cb.PutResult(r)

	s.flushRecord()
	rec := makeRunRecord(s.session.Runs, s.session.Input, r)
	s.session.lastResult = &rec
	s.session.Runs++

	return nil
}

func (s *Server) copyBitmap(p *sim.Proc) error {
	bmp, err := s.bench.ReadBitmap(p, s.session.BitmapSize)
	if err != nil {
		return errors.Trace(err)
	}

	if err := s.cb.PutBitmap(bmp); err != nil {
		return errors.Trace(err)
	}

	s.log.Info(pe.FormatBitmap(bmp))

	if s.session.lastResult != nil {
		s.session.lastResult.BitmapCRC = bitmapCRC(bmp)
		s.flushRecord()
	}

	return nil
}

func (s *Server) flushRecord() {
	if s.session.lastResult == nil {
		return
	}

	s.recorder.record(*s.session.lastResult)
	s.session.lastResult = nil
}
