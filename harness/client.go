package harness

import (
	"io"
	"syscall"

	"github.com/juju/errors"
	"github.com/sarchlab/axifuzz/pe"
)

// A Client is the fuzzer side of the pipe protocol.
type Client struct {
	cb   *ControlBlock
	req  io.Writer
	resp io.Reader
}

// NewClient creates a Client that shares cb with a Server and talks to it
// through req and resp.
func NewClient(cb *ControlBlock, req io.Writer, resp io.Reader) *Client {
	return &Client{cb: cb, req: req, resp: resp}
}

// pipeError turns the errors of a closed pipe into a TargetExitedError.
func pipeError(cmd Command, err error) error {
	if errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return &TargetExitedError{Cmd: cmd, Err: err}
	}

	return err
}

func (c *Client) send(cmd Command) error {
	if _, err := c.req.Write([]byte{byte(cmd)}); err != nil {
		return errors.Annotatef(pipeError(cmd, err), "sending %s", cmd)
	}

	var buf [1]byte
	if _, err := io.ReadFull(c.resp, buf[:]); err != nil {
		return errors.Annotatef(pipeError(cmd, err),
			"waiting for the response to %s", cmd)
	}

	if buf[0] != responseOK {
		return errors.Errorf("%s failed with response %d", cmd, buf[0])
	}

	return nil
}

// SetInput hands an input to the target. Inputs that do not fit the shared
// memory are truncated.
func (c *Client) SetInput(input []byte) error {
	c.cb.SetInput(input)
	return c.send(CmdSetInput)
}

// Start runs the target on the current input.
func (c *Client) Start(bitmapSize uint32, timeout uint64) (pe.Result, error) {
	if bitmapSize < 4 || int(bitmapSize) > c.cb.Size() {
		return pe.Result{}, &SizeError{
			What:  "bitmap",
			Size:  uint64(bitmapSize),
			Limit: uint64(c.cb.Size()),
			Msg:   "Bitmap length out of range",
		}
	}

	c.cb.SetStart(bitmapSize, timeout)

	if err := c.send(CmdStart); err != nil {
		return pe.Result{}, err
	}

	return c.cb.Result(), nil
}

// CopyBitmap fetches the coverage bitmap of the last run.
func (c *Client) CopyBitmap(size uint32) ([]byte, error) {
	if err := c.send(CmdCopyBitmap); err != nil {
		return nil, err
	}

	return c.cb.Bitmap(int(size)), nil
}

// Run performs SetInput, Start, and CopyBitmap.
func (c *Client) Run(
	input []byte,
	bitmapSize uint32,
	timeout uint64,
) (pe.Result, []byte, error) {
	if err := c.SetInput(input); err != nil {
		return pe.Result{}, nil, err
	}

	r, err := c.Start(bitmapSize, timeout)
	if err != nil {
		return pe.Result{}, nil, err
	}

	bmp, err := c.CopyBitmap(bitmapSize)
	if err != nil {
		return r, nil, err
	}

	return r, bmp, nil
}

// Close asks the target to stop serving.
func (c *Client) Close() error {
	if _, err := c.req.Write([]byte{byte(CmdClose)}); err != nil {
		return errors.Annotatef(pipeError(CmdClose, err), "sending %s", CmdClose)
	}

	return nil
}
