package main

import (
	"os"

	"github.com/juju/errors"
	"github.com/sarchlab/axifuzz/config"
	"github.com/sarchlab/axifuzz/harness"
	"github.com/sarchlab/axifuzz/shm"
	"github.com/sarchlab/axifuzz/sim"
	"github.com/spf13/cobra"
)

// startupCycles is how long the PE idles after reset before the image is
// loaded.
const startupCycles = 100

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve a fuzzer over pipes and shared memory.",
	Long: "`serve` loads FUZZTB_TARGET and answers the commands that arrive " +
		"on the FUZZTB_REQ_PIPE file descriptor. Inputs, results, and bitmaps " +
		"travel through the FUZZTB_SHMEM shared memory.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate(config.ModeServe); err != nil {
			return err
		}

		log := newLogger(outputFile(cfg.StdoutFD), opts.verbosity)

		img, err := harness.LoadImageFile(cfg.Target)
		if err != nil {
			return err
		}

		region, err := shm.Open(cfg.ShmName, cfg.ShmSize)
		if err != nil {
			return err
		}
		defer region.Close()

		req := os.NewFile(uintptr(cfg.ReqPipe), "fuzztb_req")
		resp := os.NewFile(uintptr(cfg.RespPipe), "fuzztb_resp")
		defer req.Close()
		defer resp.Close()

		s, err := newSimulation(log)
		if err != nil {
			return err
		}

		server := harness.MakeServerBuilder().
			WithLogger(log).
			WithRecorder(s.recorder).
			WithIgnoreMin(cfg.FuzzIgnoreMin).
			WithObserver(s.trackRuns("fuzzer runs", 0)).
			Build(s.plat.Bench, harness.NewControlBlock(region.Bytes()), req, resp)

		err = s.run(cmd.Context(), func(p *sim.Proc) error {
			p.WaitCycles(startupCycles)
			return server.Serve(p, img)
		})

		return errors.Annotatef(err, "serving %s", img.Name)
	},
}
