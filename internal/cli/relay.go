package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"agentwatch/internal/relay"
)

// RelayOptions are the flags of the relay command.
type RelayOptions struct {
	Host     string
	Port     int
	Replay   string
	Interval time.Duration
}

// NewRelayCmd creates the relay command.
func NewRelayCmd() *cobra.Command {
	opts := &RelayOptions{}

	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Run a local push channel for development",
		Long: `Serve /ws the way the backend does: a heartbeat after each idle
interval and a pong for every "ping". Envelopes POSTed to
/api/relay/publish are broadcast to every connected watcher, and
--replay broadcasts a newline-delimited JSON file once a watcher connects.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx := GetCLIContext(cmd)
			if cliCtx == nil {
				return fmt.Errorf("configuration not loaded")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return RunRelay(ctx, cliCtx, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Host, "host", "", "listen host (default relay.host)")
	cmd.Flags().IntVarP(&opts.Port, "port", "p", 0, "listen port (default relay.port)")
	cmd.Flags().StringVar(&opts.Replay, "replay", "", "newline-delimited JSON envelopes to broadcast")
	cmd.Flags().DurationVar(&opts.Interval, "interval", 500*time.Millisecond, "delay between replayed envelopes")

	return cmd
}

// RunRelay serves until ctx is done.
func RunRelay(ctx context.Context, cliCtx *CLIContext, opts *RelayOptions) error {
	cfg := cliCtx.Config.Relay
	if opts.Host != "" {
		cfg.Host = opts.Host
	}
	if opts.Port != 0 {
		cfg.Port = opts.Port
	}
	log := cliCtx.Log("relay")

	var replay *os.File
	if opts.Replay != "" {
		f, err := os.Open(opts.Replay)
		if err != nil {
			return fmt.Errorf("open replay file: %w", err)
		}
		defer f.Close()
		replay = f
	}

	hub := relay.NewHub()
	srv := relay.NewServer(cfg, hub, Version)

	if replay != nil {
		go func() {
			if !waitForClient(ctx, hub) {
				return
			}
			n, err := relay.Replay(ctx, replay, hub, opts.Interval)
			if err != nil && ctx.Err() == nil {
				log.Warn().Err(err).Int("sent", n).Msg("Replay stopped")
				return
			}
			log.Info().Int("sent", n).Str("file", opts.Replay).Msg("Replay finished")
		}()
	}

	return srv.ListenAndServe(ctx)
}

// waitForClient blocks until at least one watcher is connected.
func waitForClient(ctx context.Context, hub *relay.Hub) bool {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		if hub.ClientCount() > 0 {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}
