package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/funcr"
	"github.com/juju/errors"
	"github.com/sarchlab/axifuzz/config"
	"github.com/spf13/cobra"
)

type globalOptions struct {
	verbosity       int
	envFile         string
	memory          string
	artificialStall bool
	traceDB         string
	monitor         bool
	monitorPort     int
	openBrowser     bool
}

var (
	opts globalOptions
	cfg  config.Config
)

var rootCmd = &cobra.Command{
	Use:   "axifuzz",
	Short: "axifuzz runs a simulated processing element as a fuzzing target.",
	Long: `axifuzz simulates a processing element behind AXI4 buses and drives ` +
		`it the way a hardware fuzzing harness does. It can serve a fuzzer ` +
		`over pipes and shared memory, replay recorded inputs, or act as the ` +
		`fuzzer side for a single input.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.IntVarP(&opts.verbosity, "verbosity", "v", 0,
		"log verbosity; 1 logs transactions, 2 logs every beat")
	pf.StringVar(&opts.envFile, "env-file", ".env",
		"file with environment variables to load if it exists")
	pf.StringVar(&opts.memory, "memory", config.MemoryBRAM,
		"memory topology of the PE, bram or dram")
	pf.BoolVar(&opts.artificialStall, "artificial-stall", false,
		"stall every memory access")
	pf.StringVar(&opts.traceDB, "trace-db", "",
		"sqlite file that receives bus transactions and runs")
	pf.BoolVar(&opts.monitor, "monitor", false,
		"serve the monitoring page")
	pf.IntVar(&opts.monitorPort, "monitor-port", 0,
		"port of the monitoring page, random if below 1000")
	pf.BoolVar(&opts.openBrowser, "open-browser", false,
		"open the monitoring page in a browser")

	rootCmd.AddCommand(serveCmd, testCmd, clientCmd)
}

func setup(cmd *cobra.Command, _ []string) error {
	if err := parseFlagsFromEnv(cmd.Flags(), envPrefix); err != nil {
		return err
	}

	c, err := config.Load(opts.envFile)
	if err != nil {
		return errors.Trace(err)
	}

	fs := cmd.Flags()
	if fs.Changed("memory") {
		c.Memory = strings.ToLower(opts.memory)
	}

	if fs.Changed("artificial-stall") {
		c.ArtificialStall = opts.artificialStall
	}

	if fs.Changed("trace-db") {
		c.TraceDB = opts.traceDB
	}

	if fs.Changed("monitor-port") {
		c.MonitorPort = opts.monitorPort
	}

	cfg = c

	return nil
}

func monitorEnabled() bool {
	return opts.monitor || cfg.MonitorPort != 0
}

func newLogger(w io.Writer, verbosity int) logr.Logger {
	return funcr.New(func(prefix, args string) {
		if prefix != "" {
			fmt.Fprintf(w, "%s: %s\n", prefix, args)
			return
		}

		fmt.Fprintln(w, args)
	}, funcr.Options{Verbosity: verbosity})
}

// outputFile returns the file that receives the messages of the harness.
func outputFile(fd int) io.Writer {
	if fd < 0 {
		return os.Stdout
	}

	return os.NewFile(uintptr(fd), "fuzztb_stdout")
}
