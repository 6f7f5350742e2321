package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/fanout/internal/agent"
	"github.com/Iron-Ham/fanout/internal/channel"
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Run a publisher agent on one channel",
	Long: `Run a publisher agent bound to the channel named by --service.

The agent sends Start, then a Tick every publisher.interval_ms until it is
interrupted, then End, and exits. The orchestrator launches one per channel.`,
	Args: cobra.NoArgs,
	RunE: runAgent,
}

func init() {
	rootCmd.AddCommand(agentCmd)
	agentCmd.Flags().StringP("service", "s", "", "channel name to publish on")
	_ = agentCmd.MarkFlagRequired("service")
}

func runAgent(cmd *cobra.Command, args []string) error {
	service, _ := cmd.Flags().GetString("service")
	if err := channel.ValidateName(service); err != nil {
		return err
	}

	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return agent.Run(ctx, agent.Options{
		Service:  service,
		Opener:   channel.SharedMemory{Dir: cfg.Channel.ResolveDir()},
		Channel:  cfg.Channel.Limits(),
		Interval: cfg.Publisher.Interval(),
		Logger:   logger,
	})
}
