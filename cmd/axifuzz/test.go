package main

import (
	"github.com/juju/errors"
	"github.com/sarchlab/axifuzz/config"
	"github.com/sarchlab/axifuzz/harness"
	"github.com/sarchlab/axifuzz/sim"
	"github.com/spf13/cobra"
)

var testCmd = &cobra.Command{
	Use:   "test [TEST]",
	Short: "Run the firmware of a test program on recorded inputs.",
	Long: "`test` runs every firmware image in <test programs>/TEST/bin on the " +
		"inputs listed by TESTIN and fails if an input does not behave the " +
		"same way on every run.",
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			cfg.Test = args[0]
		}

		if err := cfg.Validate(config.ModeTest); err != nil {
			return err
		}

		log := newLogger(outputFile(-1), opts.verbosity)

		images, err := harness.LoadFirmwareDir(cfg.FirmwareDir())
		if err != nil {
			return err
		}

		var inputs []harness.InputFile
		if cfg.TestIn != "" {
			if inputs, err = harness.LoadInputs(cfg.TestIn); err != nil {
				return err
			}
		}

		s, err := newSimulation(log)
		if err != nil {
			return err
		}

		runsPerImage := cfg.NumRuns
		if runsPerImage == 0 {
			runsPerImage = max(len(inputs), 1)
		}

		runner := harness.MakeOfflineRunnerBuilder().
			WithLogger(log).
			WithRecorder(s.recorder).
			WithIgnoreMin(cfg.TestIgnoreMin).
			WithTimeout(cfg.TestTimeout).
			WithNumRuns(cfg.NumRuns).
			WithObserver(s.trackRuns(cfg.Test,
				uint64(len(images)*runsPerImage))).
			Build(s.plat.Bench)

		err = s.run(cmd.Context(), func(p *sim.Proc) error {
			return runner.Run(p, images, inputs)
		})
		if err != nil {
			return errors.Annotatef(err, "test %s", cfg.Test)
		}

		log.Info("Ok!")

		return nil
	},
}
