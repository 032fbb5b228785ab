package cli

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"agentwatch/internal/activity"
	"agentwatch/internal/config"
	"agentwatch/internal/realtime"
	"agentwatch/pkg/logger"
)

// WatchOptions are the flags of the watch command.
type WatchOptions struct {
	Origin    string
	Types     []string
	Details   bool
	ShowNoise bool
	Digest    string
	NoReload  bool
}

// NewWatchCmd creates the watch command.
func NewWatchCmd() *cobra.Command {
	opts := &WatchOptions{}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream the live activity feed",
		Long: `Connect to the backend push channel and print one line per event.
Keep-alive traffic is hidden unless --show-noise is given. The command
reconnects on its own and runs until interrupted.`,
		Example: `  agentwatch watch
  agentwatch watch --origin https://agents.example.com --details
  agentwatch watch --types task_progress,task_completed --digest "@every 1m"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx := GetCLIContext(cmd)
			if cliCtx == nil {
				return fmt.Errorf("configuration not loaded")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return RunWatch(ctx, cliCtx, opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.Origin, "origin", "", "backend origin (default server.origin)")
	cmd.Flags().StringSliceVarP(&opts.Types, "types", "t", nil, "only show these event types")
	cmd.Flags().BoolVarP(&opts.Details, "details", "d", false, "print payload details under each line")
	cmd.Flags().BoolVar(&opts.ShowNoise, "show-noise", false, "also print heartbeats and health checks")
	cmd.Flags().StringVar(&opts.Digest, "digest", "", "cron schedule for activity digests (default feed.digest_schedule)")
	cmd.Flags().BoolVar(&opts.NoReload, "no-reload", false, "do not watch the config file for changes")

	return cmd
}

// RunWatch streams the feed to out until ctx is done. It owns the process's
// single dispatcher and tears it down on return.
func RunWatch(ctx context.Context, cliCtx *CLIContext, opts *WatchOptions, out io.Writer) error {
	cfg := cliCtx.Config
	log := cliCtx.Log("watch")

	origin := opts.Origin
	if origin == "" {
		origin = cfg.Server.Origin
	}
	endpoint, err := realtime.EndpointFromOrigin(origin, cfg.Server.WSPath)
	if err != nil {
		return err
	}

	printer := newFeedPrinter(out, opts.Details, opts.ShowNoise || cfg.Feed.ShowNoise)

	header := http.Header{}
	header.Set("Origin", origin)
	dispatcher := realtime.NewDispatcher(endpoint,
		realtime.WithReconnectDelay(cfg.Realtime.ReconnectDelay),
		realtime.WithDialer(&websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.Realtime.HandshakeTimeout,
		}),
		realtime.WithHeader(header),
		realtime.WithStateHook(func(s realtime.State) {
			log.Debug().Str("state", s.String()).Msg("Push channel state")
		}),
	)
	defer dispatcher.Disconnect()

	buffer := activity.NewBuffer(dispatcher, cfg.Realtime.BufferSize).Attach()
	defer buffer.Close()

	// Announce the first envelope once; the flag never reverts.
	announced := false
	cancelLive := buffer.Watch(func(s activity.Snapshot) {
		if s.Live && !announced {
			announced = true
			printer.status("live")
		}
	})
	defer cancelLive()

	types := splitTypes(opts.Types)
	if len(types) == 0 {
		cancel := buffer.Watch(func(s activity.Snapshot) {
			printer.envelope(s.Entries[0])
		})
		defer cancel()
	} else {
		for _, t := range types {
			sub := dispatcher.Subscribe(t, printer.envelope)
			defer dispatcher.Unsubscribe(sub)
		}
	}

	schedule := opts.Digest
	if schedule == "" {
		schedule = cfg.Feed.DigestSchedule
	}
	if schedule != "" {
		digests, err := activity.NewDigestScheduler(schedule, buffer, printer.digest)
		if err != nil {
			return err
		}
		digests.Start()
		defer digests.Stop()
	}

	if !opts.NoReload && cliCtx.ConfigPath != "" {
		if _, err := os.Stat(cliCtx.ConfigPath); err == nil {
			watcher, err := config.NewWatcher(cliCtx.ConfigPath, func(c *config.Config) {
				if cliCtx.Verbose || cliCtx.Quiet {
					return
				}
				logger.SetLevel(c.Log.Level)
				log.Info().Str("level", c.Log.Level).Msg("Log level reloaded")
			})
			if err != nil {
				log.Warn().Err(err).Msg("Config hot reload unavailable")
			} else if err := watcher.Start(); err != nil {
				log.Warn().Err(err).Msg("Config hot reload unavailable")
			} else {
				defer watcher.Stop()
			}
		}
	}

	log.Info().Str("endpoint", endpoint).Msg("Watching activity")
	dispatcher.Connect()

	<-ctx.Done()

	log.Info().
		Int("buffered", len(buffer.Snapshot().Entries)).
		Uint64("dropped_frames", dispatcher.DroppedFrames()).
		Msg("Stopping watch")
	return nil
}

// splitTypes accepts both repeated flags and comma separated lists.
func splitTypes(values []string) []string {
	seen := make(map[string]bool)
	var types []string
	for _, v := range values {
		for _, t := range strings.Split(v, ",") {
			t = strings.TrimSpace(t)
			if t == "" || seen[t] {
				continue
			}
			seen[t] = true
			types = append(types, t)
		}
	}
	return types
}
