package cmd

import (
	"context"
	"fmt"
	"io"
	"log"
	"math"
	"math/cmplx"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/browser"
	"github.com/spf13/cobra"

	"github.com/sarchlab/metersim/config"
	"github.com/sarchlab/metersim/datarecording"
	"github.com/sarchlab/metersim/devices"
	"github.com/sarchlab/metersim/engine"
	"github.com/sarchlab/metersim/monitoring"
	"github.com/sarchlab/metersim/sim"
	"github.com/sarchlab/metersim/timing"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a simulation.",
	Long: "`run --config sim.yaml` runs the simulation described by the " +
		"configuration file until the duration elapses in simulated time, " +
		"or until interrupted if no duration is given.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		opts := runOptions{
			pollInterval: engine.DefaultPollInterval,
		}
		opts.monitor, _ = cmd.Flags().GetBool("monitor")
		opts.openMonitor, _ = cmd.Flags().GetBool("open-monitor")
		opts.verbose, _ = cmd.Flags().GetBool("verbose")

		ctx, stop := signal.NotifyContext(cmd.Context(),
			os.Interrupt, syscall.SIGTERM)
		defer stop()

		_, err = simulate(ctx, c, opts, cmd.OutOrStdout())

		return err
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	addRunFlags(runCmd)
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().String("config", "", "YAML configuration of the run")
	cmd.Flags().Int("speedup", 1, "How many times faster than real time "+
		"the simulation runs")
	cmd.Flags().Duration("duration", 0, "Simulated time to run for, "+
		"0 runs until interrupted")
	cmd.Flags().Bool("stopped", false, "Start with the clock stopped")
	cmd.Flags().Bool("monitor", false, "Serve the monitoring API")
	cmd.Flags().Int("monitor-port", 0, "Port of the monitoring API, "+
		"0 picks a free port")
	cmd.Flags().Bool("open-monitor", false, "Open the monitoring API in "+
		"a browser")
	cmd.Flags().String("record", "", "Record the run into this SQLite "+
		"database, without the .sqlite3 extension")
	cmd.Flags().BoolP("verbose", "v", false, "Log every device cycle")
}

// loadConfig merges, from lowest to highest priority, the defaults, the
// configuration file, the environment and the command-line flags.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	envFiles, _ := cmd.Flags().GetStringSlice("env")

	err := config.LoadEnv(envFiles...)
	if err != nil {
		return config.Config{}, err
	}

	c := config.Default()

	path, _ := cmd.Flags().GetString("config")
	if path != "" {
		c, err = config.Load(path)
		if err != nil {
			return c, err
		}
	}

	err = c.ApplyEnv()
	if err != nil {
		return c, err
	}

	flags := cmd.Flags()
	if flags.Changed("speedup") {
		c.Speedup, _ = flags.GetInt("speedup")
	}

	if flags.Changed("duration") {
		c.Duration, _ = flags.GetDuration("duration")
	}

	if flags.Changed("stopped") {
		c.Stopped, _ = flags.GetBool("stopped")
	}

	if flags.Changed("monitor-port") {
		c.MonitorPort, _ = flags.GetInt("monitor-port")
	}

	if flags.Changed("record") {
		c.Record, _ = flags.GetString("record")
	}

	return c, c.Validate()
}

type runOptions struct {
	monitor      bool
	openMonitor  bool
	verbose      bool
	pollInterval time.Duration
}

// summary is the state of the meter at the end of a run.
type summary struct {
	Uptime  int32
	UTC     int64
	Current [sim.NumPhases]complex128
	Energy  [sim.NumPhases]float64
	Cycles  monitoring.CycleStats
}

func (s summary) print(w io.Writer) {
	fmt.Fprintf(w, "Uptime: %d s (%s)\n",
		s.Uptime, time.Unix(s.UTC, 0).UTC().Format(time.RFC3339))

	for i := range s.Current {
		fmt.Fprintf(w, "L%d: %7.3f A %7.2f°  %10.4f Wh\n", i+1,
			cmplx.Abs(s.Current[i]),
			cmplx.Phase(s.Current[i])*180/math.Pi,
			s.Energy[i])
	}

	fmt.Fprintf(w, "Cycles: %d requested, %d notified, %d failed\n",
		s.Cycles.Requested, s.Cycles.Notified, s.Cycles.Failed)
}

type run struct {
	config    config.Config
	opts      runOptions
	clock     *timing.Clock
	simulator *engine.Simulator
	bridge    *sim.Bridge
	runner    *engine.Runner
	counter   *monitoring.CycleCounter
	monitor   *monitoring.Monitor
	recorder  datarecording.DataRecorder
}

func simulate(
	ctx context.Context,
	c config.Config,
	opts runOptions,
	out io.Writer,
) (summary, error) {
	r := &run{config: c, opts: opts}
	defer r.close()

	err := r.build()
	if err != nil {
		return summary{}, err
	}

	err = r.start(ctx)
	if err != nil {
		return summary{}, err
	}

	r.wait(ctx)
	r.runner.Stop()

	s := summary{
		Uptime:  r.simulator.Uptime(),
		UTC:     r.simulator.TimeUTC(),
		Current: r.simulator.Current(),
		Energy:  r.simulator.Energy(),
		Cycles:  r.counter.Stats(),
	}
	s.print(out)

	return s, nil
}

func (r *run) build() error {
	var err error

	clockBuilder := timing.MakeClockBuilder().
		WithStartTime(r.config.StartTime).
		WithSpeedup(r.config.Speedup)
	if r.config.Stopped {
		clockBuilder = clockBuilder.Stopped()
	}

	r.clock, err = clockBuilder.Build()
	if err != nil {
		return err
	}

	r.simulator = engine.MakeBuilder().
		WithStartUTC(r.clock.Unix()).
		WithVoltage(r.config.VoltageComplex()).
		Build()

	r.bridge, err = sim.MakeBuilder().
		WithEngine(r.simulator).
		WithIDGenerator(sim.NewParallelIDGenerator()).
		Build()
	if err != nil {
		return err
	}

	for _, dc := range r.config.Devices {
		d, err := devices.FromConfig(dc)
		if err != nil {
			return err
		}

		r.bridge.AddDevice(d)
	}

	r.counter = monitoring.NewCycleCounter()
	r.bridge.AcceptHook(r.counter)

	if r.opts.verbose {
		r.bridge.AcceptHook(sim.NewCycleLogger(log.Default()))
	}

	if r.config.Record != "" {
		r.recorder, err = datarecording.New(r.config.Record)
		if err != nil {
			return err
		}

		r.bridge.AcceptHook(datarecording.NewCycleRecorder(r.recorder))
		r.simulator.AcceptHook(datarecording.NewStepRecorder(r.recorder))
	}

	if r.opts.monitor || r.opts.openMonitor || r.config.MonitorPort != 0 {
		r.monitor = monitoring.NewMonitor().
			WithPortNumber(r.config.MonitorPort)
		r.monitor.RegisterClock(r.clock)
		r.monitor.RegisterSimulator(r.simulator)
		r.monitor.RegisterBridge(r.bridge)
	}

	r.runner = engine.MakeRunnerBuilder().
		WithTimeSource(r.clock).
		WithPollInterval(r.opts.pollInterval).
		Build(r.simulator)

	return nil
}

func (r *run) start(ctx context.Context) error {
	err := r.bridge.Start()
	if err != nil {
		return err
	}

	err = r.simulator.StepForward(ctx, 0)
	if err != nil {
		return err
	}

	if r.monitor != nil {
		url := r.monitor.StartServer()

		if r.opts.openMonitor {
			err = browser.OpenURL(url + "/api/now")
			if err != nil {
				log.Printf("cannot open the monitor: %v", err)
			}
		}
	}

	return r.runner.Start()
}

// wait blocks until the configured duration has elapsed in simulated time or
// the context is done.
func (r *run) wait(ctx context.Context) {
	var bar *monitoring.ProgressBar

	total := int32(r.config.Duration / time.Second)
	if r.monitor != nil && total > 0 {
		bar = r.monitor.CreateProgressBar("Run", uint64(total))
		defer r.monitor.CompleteProgressBar(bar)
	}

	ticker := time.NewTicker(r.opts.pollInterval)
	defer ticker.Stop()

	for {
		uptime := r.simulator.Uptime()
		if bar != nil {
			bar.SetFinished(uint64(uptime))
		}

		if total > 0 && uptime >= total {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (r *run) close() {
	if r.runner != nil {
		r.runner.Stop()
	}

	if r.bridge != nil {
		r.bridge.Shutdown()
	}

	if r.recorder != nil {
		err := r.recorder.Close()
		if err != nil {
			log.Printf("closing the recording: %v", err)
		}
	}
}
