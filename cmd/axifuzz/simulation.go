package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-logr/logr"
	"github.com/sarchlab/axifuzz/datarecording"
	"github.com/sarchlab/axifuzz/harness"
	"github.com/sarchlab/axifuzz/monitoring"
	"github.com/sarchlab/axifuzz/platform"
	"github.com/sarchlab/axifuzz/sim"
	"github.com/sarchlab/axifuzz/tracing"
	"github.com/tebeka/atexit"
	"golang.org/x/sync/errgroup"
)

// A simulation is a platform plus the instruments that watch it.
type simulation struct {
	plat     *platform.Platform
	log      logr.Logger
	recorder datarecording.DataRecorder
	monitor  *monitoring.Monitor
	progress *monitoring.ProgressBar
	bus      *tracing.BusTracer
}

func newSimulation(log logr.Logger) (*simulation, error) {
	s := &simulation{log: log}

	s.plat = platform.MakeBuilder().
		WithLogger(log).
		WithLayout(cfg.Layout()).
		WithArtificialStall(cfg.ArtificialStall).
		Build("Sys")

	log.V(1).Info("platform built", "layout", s.plat.Layout.Name)

	s.bus = tracing.NewBusTracer(s.plat.Domain.Engine(),
		tracing.KindFilter(tracing.KindReqIn))
	s.plat.AttachTracer(s.bus)

	if cfg.TraceDB != "" {
		s.recorder = datarecording.New(cfg.TraceDB)
		s.plat.AttachTracer(tracing.NewDBTracer(s.plat.Domain.Engine(), s.recorder))
	}

	if monitorEnabled() {
		s.monitor = monitoring.NewMonitor().
			WithPortNumber(cfg.MonitorPort).
			WithBrowser(opts.openBrowser).
			WithLogger(log)
		s.monitor.RegisterDomain(s.plat.Domain)

		for _, c := range s.plat.Components() {
			s.monitor.RegisterComponent(c)
		}

		for _, b := range s.plat.Buffers() {
			s.monitor.RegisterBuffer(b)
		}

		if _, err := s.monitor.StartServer(); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// trackRuns shows a progress bar of total runs on the monitor. A total of 0
// means that the number of runs is unknown.
func (s *simulation) trackRuns(name string, total uint64) harness.RunObserver {
	if s.monitor != nil {
		s.progress = s.monitor.CreateProgressBar(name, total)
	}

	return func(rec harness.RunRecord) {
		s.log.V(1).Info("run done",
			"run", rec.Run, "completion", rec.Completion, "cycles", rec.Cycles)

		if s.progress != nil {
			s.progress.IncrementFinished(1)
		}
	}
}

// run runs main as the main process of the platform. An interrupt signal
// stops the program after the recorders are flushed.
func (s *simulation) run(ctx context.Context, main sim.ProcFunc) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	done := make(chan struct{})

	var g errgroup.Group

	g.Go(func() error {
		defer close(done)
		return s.plat.Domain.Run("main", main)
	})

	g.Go(func() error {
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			s.log.Info("Interrupted", "cycle", s.plat.Domain.Engine().CurrentTime())
			atexit.Exit(130)

			return ctx.Err()
		}
	})

	err := g.Wait()

	if s.monitor != nil {
		if s.progress != nil {
			s.monitor.CompleteProgressBar(s.progress)
		}

		if stopErr := s.monitor.StopServer(); stopErr != nil {
			s.log.Error(stopErr, "stopping monitor")
		}
	}

	if s.recorder != nil {
		s.recorder.Flush()
	}

	s.reportBusStatistics()

	return err
}

func (s *simulation) reportBusStatistics() {
	now := s.plat.Domain.Engine().CurrentTime()

	for _, ch := range s.bus.Channels() {
		s.log.V(1).Info("bus channel",
			"channel", ch.Channel,
			"bursts", ch.Completed,
			"beats", ch.Beats,
			"meanLatency", ch.MeanLatency(),
			"maxLatency", ch.MaxLatency,
			"maxInFlight", ch.MaxInFlight,
			"utilization", ch.Utilization(now))
	}
}
