package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gobwas/glob"
	"github.com/spf13/cobra"

	"github.com/Iron-Ham/fanout/internal/channel"
)

var channelsCmd = &cobra.Command{
	Use:   "channels [PATTERN]",
	Short: "List live channels",
	Long: `List the channels in the shared memory directory with their configuration,
total samples written and attached publishers and subscribers.

PATTERN is a glob matched against channel names, e.g. "testing*".
With --watch the list is printed again whenever channels are created or
removed, and at least every --interval, until interrupted.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runChannels,
}

func init() {
	rootCmd.AddCommand(channelsCmd)
	channelsCmd.Flags().BoolP("watch", "w", false, "keep listing as channels change")
	channelsCmd.Flags().Duration("interval", 2*time.Second, "refresh period in watch mode")
}

func runChannels(cmd *cobra.Command, args []string) error {
	var filter glob.Glob
	if len(args) == 1 {
		g, err := glob.Compile(args[0])
		if err != nil {
			return fmt.Errorf("invalid pattern %q: %w", args[0], err)
		}
		filter = g
	}
	watch, _ := cmd.Flags().GetBool("watch")
	interval, _ := cmd.Flags().GetDuration("interval")

	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	dir := cfg.Channel.ResolveDir()
	out := cmd.OutOrStdout()

	if err := printChannels(out, dir, filter); err != nil {
		return err
	}
	if !watch {
		return nil
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create channel directory: %w", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	return watchChannels(ctx, watcher, interval, func() {
		fmt.Fprintln(out)
		if err := printChannels(out, dir, filter); err != nil {
			logger.Warn("failed to list channels", "dir", dir, "error", err)
		}
	}, func(err error) {
		logger.Warn("watch error", "dir", dir, "error", err)
	})
}

// watchChannels calls refresh after bursts of create and remove events and
// every interval, until ctx is done. Segment writes go through memory maps
// and raise no events, so the interval keeps counters current.
func watchChannels(ctx context.Context, w *fsnotify.Watcher, interval time.Duration, refresh func(), onError func(error)) error {
	debounce := time.NewTimer(0)
	<-debounce.C

	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			debounce.Reset(50 * time.Millisecond)

		case <-debounce.C:
			refresh()

		case <-ticker.C:
			refresh()

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			onError(err)
		}
	}
}

func printChannels(w io.Writer, dir string, filter glob.Glob) error {
	infos, err := channel.List(dir)
	if err != nil {
		return err
	}

	matched := infos[:0]
	for _, info := range infos {
		if filter == nil || filter.Match(info.Name) {
			matched = append(matched, info)
		}
	}
	if len(matched) == 0 {
		_, err := fmt.Fprintf(w, "No channels in %s\n", dir)
		return err
	}

	nameWidth := len("NAME")
	for _, info := range matched {
		nameWidth = max(nameWidth, len(info.Name))
	}
	fmt.Fprintf(w, "%-*s  %10s  %6s  %7s  %4s  %4s  %5s\n",
		nameWidth, "NAME", "WRITTEN", "BUFFER", "HISTORY", "PUBS", "SUBS", "STALE")
	for _, info := range matched {
		fmt.Fprintf(w, "%-*s  %10d  %6d  %7d  %4s  %4s  %5d\n",
			nameWidth, info.Name, info.Written,
			info.Config.BufferSize, info.Config.HistorySize,
			fmt.Sprintf("%d/%d", info.Publishers, info.Config.MaxPublishers),
			fmt.Sprintf("%d/%d", info.Subscribers, info.Config.MaxSubscribers),
			info.Stale)
	}
	return nil
}
