package main

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"

	"github.com/juju/errors"
	"github.com/rs/xid"
	"github.com/sarchlab/axifuzz/harness"
	"github.com/sarchlab/axifuzz/pe"
	"github.com/sarchlab/axifuzz/shm"
	"github.com/spf13/cobra"
)

type clientOptions struct {
	target     string
	bitmapSize uint32
	timeout    uint64
	shmSize    int
}

var clientOpts clientOptions

var clientCmd = &cobra.Command{
	Use:   "client INPUT...",
	Short: "Run inputs on a target the way a fuzzer does.",
	Long: "`client` starts `axifuzz serve` on the target, sends every input " +
		"file through the fuzzer protocol, and prints the results and bitmaps.",
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if clientOpts.target == "" {
			return errors.New("--target is required")
		}

		return runClient(args)
	},
}

func init() {
	f := clientCmd.Flags()
	f.StringVar(&clientOpts.target, "target", "", "firmware image to serve")
	f.Uint32Var(&clientOpts.bitmapSize, "bitmap-size", 0x40,
		"bitmap size in bytes, a power of two")
	f.Uint64Var(&clientOpts.timeout, "timeout", 0,
		"timeout of a run in cycles, 0 for none")
	f.IntVar(&clientOpts.shmSize, "shm-size", 0x10000,
		"size of the shared memory")
}

// spawnTarget starts `axifuzz serve` with the pipe ends and the shared memory
// that the fuzzer protocol needs.
func spawnTarget(shmName string, reqR, respW *os.File) (*exec.Cmd, error) {
	self, err := os.Executable()
	if err != nil {
		return nil, errors.Trace(err)
	}

	args := []string{"serve", "--verbosity", strconv.Itoa(opts.verbosity)}
	target := exec.Command(self, args...)
	target.Stdout = os.Stderr
	target.Stderr = os.Stderr
	target.ExtraFiles = []*os.File{reqR, respW}
	target.Env = append(os.Environ(),
		"FUZZTB_TARGET="+clientOpts.target,
		"FUZZTB_SHMEM="+shmName,
		"FUZZTB_SHMEM_SIZE="+strconv.Itoa(clientOpts.shmSize),
		"FUZZTB_REQ_PIPE=3",
		"FUZZTB_RESP_PIPE=4",
		"FUZZTB_STDOUT=-1",
	)

	if err := target.Start(); err != nil {
		return nil, errors.Annotatef(err, "starting target")
	}

	return target, nil
}

func runClient(inputs []string) error {
	shmName := "axifuzz_" + xid.New().String()

	region, err := shm.Create(shmName, clientOpts.shmSize)
	if err != nil {
		return err
	}
	defer region.Unlink()
	defer region.Close()

	reqR, reqW, err := os.Pipe()
	if err != nil {
		return errors.Trace(err)
	}
	respR, respW, err := os.Pipe()
	if err != nil {
		return errors.Trace(err)
	}

	target, err := spawnTarget(shmName, reqR, respW)
	reqR.Close()
	respW.Close()
	if err != nil {
		return err
	}

	client := harness.NewClient(harness.NewControlBlock(region.Bytes()), reqW, respR)

	runErr := runInputs(os.Stdout, client, inputs)

	if runErr == nil {
		runErr = client.Close()
	}
	reqW.Close()

	waitErr := target.Wait()

	var exited *harness.TargetExitedError
	switch {
	case errors.As(runErr, &exited) && waitErr != nil:
		runErr = errors.Annotatef(runErr, "%v", waitErr)
	case runErr == nil && waitErr != nil:
		runErr = errors.Annotatef(waitErr, "target")
	}

	return runErr
}

func runInputs(out io.Writer, client *harness.Client, inputs []string) error {
	for _, path := range inputs {
		data, err := os.ReadFile(path)
		if err != nil {
			return errors.Trace(err)
		}

		r, bmp, err := client.Run(data, clientOpts.bitmapSize, clientOpts.timeout)

		var exited *harness.TargetExitedError
		switch {
		case errors.As(err, &exited):
			return errors.Annotatef(err, "target exited during %s", path)
		case err != nil:
			return errors.Annotatef(err, "input %s", path)
		}

		fmt.Fprintf(out, "input %s (%d bytes)\n", path, len(data))
		for _, line := range pe.FormatResult(r) {
			fmt.Fprintln(out, line)
		}
		fmt.Fprintln(out, pe.FormatBitmap(bmp))
	}

	return nil
}
