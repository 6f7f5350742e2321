package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/Iron-Ham/fanout/internal/channel"
	"github.com/Iron-Ham/fanout/internal/config"
	"github.com/Iron-Ham/fanout/internal/dashboard"
	"github.com/Iron-Ham/fanout/internal/event"
	"github.com/Iron-Ham/fanout/internal/logging"
	"github.com/Iron-Ham/fanout/internal/metrics"
	"github.com/Iron-Ham/fanout/internal/orchestrator"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Launch agents and aggregate their streams until interrupted",
	Long: `Launch N publisher agents, subscribe to each agent's channel and poll
them until interrupted (Ctrl+C or SIGTERM) or until --duration elapses.
Sequence gaps are logged as warnings. On shutdown the last observed count
of every agent is printed.

Topologies:
  process  one child process per agent over shared memory (default)
  task     one goroutine per agent over in-process channels`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().IntP("agents", "n", 0, "number of agents (required unless orchestrator.agents is configured)")
	runCmd.Flags().String("prefix", "", "channel name prefix (default from orchestrator.name_prefix)")
	runCmd.Flags().String("topology", "", "agent topology: process or task")
	runCmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address")
	runCmd.Flags().StringP("format", "f", orchestrator.FormatText, "summary format: "+strings.Join(orchestrator.ValidFormats, ", "))
	runCmd.Flags().Bool("dashboard", false, "show a live dashboard when stdout is a terminal")
	runCmd.Flags().Duration("duration", 0, "stop the run after this long (0 runs until interrupted)")
	runCmd.Flags().Duration("grace", 0, "wait up to this long for agents to exit before printing the summary")

	_ = viper.BindPFlag("orchestrator.agents", runCmd.Flags().Lookup("agents"))
	_ = viper.BindPFlag("orchestrator.name_prefix", runCmd.Flags().Lookup("prefix"))
	_ = viper.BindPFlag("orchestrator.topology", runCmd.Flags().Lookup("topology"))
	_ = viper.BindPFlag("metrics.addr", runCmd.Flags().Lookup("metrics-addr"))
}

// agentsGiven reports whether the agent count was chosen by the user on the
// command line, in the config file or in the environment.
func agentsGiven(cmd *cobra.Command) bool {
	_, inEnv := os.LookupEnv(config.EnvKey("orchestrator.agents"))
	return cmd.Flags().Changed("agents") || viper.InConfig("orchestrator.agents") || inEnv
}

func runRun(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	if !slices.Contains(orchestrator.ValidFormats, format) {
		return fmt.Errorf("invalid format %q: must be one of %s", format, strings.Join(orchestrator.ValidFormats, ", "))
	}
	showDashboard, _ := cmd.Flags().GetBool("dashboard")
	duration, _ := cmd.Flags().GetDuration("duration")
	grace, _ := cmd.Flags().GetDuration("grace")

	if !agentsGiven(cmd) {
		return fmt.Errorf("--agents is required (or set orchestrator.agents in %s or %s)",
			config.ConfigFile(), config.EnvKey("orchestrator.agents"))
	}

	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if duration > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, duration)
		defer cancelTimeout()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	bus := event.NewBus(logger)
	opener, launcher := topology(cfg, logger)

	o, err := orchestrator.New(orchestrator.Options{
		Agents:           cfg.Orchestrator.Agents,
		NamePrefix:       cfg.Orchestrator.NamePrefix,
		Channel:          cfg.Channel.Limits(),
		Opener:           opener,
		Launcher:         launcher,
		ProgressEvery:    uint64(cfg.Orchestrator.ProgressEvery),
		ForwardInterrupt: cfg.Orchestrator.ForwardInterrupt,
		SnapshotInterval: cfg.Orchestrator.SnapshotInterval(),
		AnomalyLogRate:   cfg.Orchestrator.AnomalyLogRate,
		AnomalyLogBurst:  cfg.Orchestrator.AnomalyLogBurst,
		Bus:              bus,
		Logger:           logger,
	})
	if err != nil {
		return err
	}

	if addr := cfg.Metrics.Addr; addr != "" {
		m := metrics.New()
		m.Attach(bus)
		go func() {
			if err := m.Serve(ctx, addr, logger); err != nil {
				logger.Error("metrics server failed", "addr", addr, "error", err)
			}
		}()
	}

	var dashDone chan error
	var app *dashboard.App
	if showDashboard && term.IsTerminal(int(os.Stdout.Fd())) {
		app = dashboard.New(bus, o.RunID(), cancel)
		dashDone = make(chan error, 1)
		go func() { dashDone <- app.Run() }()
	}

	summary, runErr := o.Run(ctx)

	if app != nil {
		app.Quit()
		if err := <-dashDone; err != nil {
			logger.Warn("dashboard failed", "error", err)
		}
	}
	if runErr != nil {
		return runErr
	}

	if grace > 0 {
		select {
		case <-o.Reaped():
		case <-time.After(grace):
			logger.Warn("agents still running after grace period", "grace", grace)
		}
	}

	return summary.Write(cmd.OutOrStdout(), format)
}

// topology returns the channel opener and agent launcher for the configured
// topology. Process agents receive the channel settings through FANOUT_*
// variables so both ends create identical channels.
func topology(cfg *config.Config, logger *logging.Logger) (channel.Opener, orchestrator.Launcher) {
	if cfg.Orchestrator.Topology == config.TopologyTask {
		reg := channel.NewRegistry()
		return reg, &orchestrator.TaskLauncher{
			Opener:   reg,
			Channel:  cfg.Channel.Limits(),
			Interval: cfg.Publisher.Interval(),
			Logger:   logger,
		}
	}
	return channel.SharedMemory{Dir: cfg.Channel.ResolveDir()}, &orchestrator.ProcessLauncher{
		Executable: cfg.Orchestrator.Executable,
		Env:        cfg.AgentEnv(),
		OutputSize: cfg.Orchestrator.OutputBufferSize,
	}
}
