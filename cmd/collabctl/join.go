package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/GoSim-25-26J-441/go-collab-graph/config"
	"github.com/GoSim-25-26J-441/go-collab-graph/internal/collab_graph/domain"
	"github.com/GoSim-25-26J-441/go-collab-graph/internal/collab_graph/graph"
	"github.com/GoSim-25-26J-441/go-collab-graph/internal/collab_graph/layout"
	"github.com/GoSim-25-26J-441/go-collab-graph/internal/collab_graph/presence"
	"github.com/GoSim-25-26J-441/go-collab-graph/internal/collab_graph/transport"
	"github.com/GoSim-25-26J-441/go-collab-graph/internal/collab_graph/visualizer"
)

type joinOptions struct {
	relay     string
	redisAddr string
	name      string
	layers    string
	duration  time.Duration
	heartbeat time.Duration
	throttle  time.Duration
	seed      int64
	canvas    layout.Config
}

func newJoinCmd() *cobra.Command {
	var opts joinOptions

	cmd := &cobra.Command{
		Use:   "join <session> <graph.{json,yaml}>",
		Short: "Join a session as a headless participant and print the roster as it changes",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := applyPresenceConfig(cmd, &opts); err != nil {
				return err
			}
			return runJoin(cmd.Context(), cmd.OutOrStdout(), args[0], args[1], opts)
		},
	}
	bindJoinFlags(cmd, &opts)
	return cmd
}

func bindJoinFlags(cmd *cobra.Command, opts *joinOptions) {
	cmd.Flags().StringVar(&opts.relay, "relay", "", "relay base URL, e.g. ws://localhost:8080")
	cmd.Flags().StringVar(&opts.redisAddr, "redis", "", "join over Redis pub/sub at this address instead of a relay")
	cmd.Flags().StringVar(&opts.name, "name", "", "display name (default guest-<id>)")
	cmd.Flags().StringVar(&opts.layers, "layers", "", "comma separated layers to show (default all)")
	cmd.Flags().DurationVar(&opts.duration, "duration", 0, "leave after this long (default until interrupted)")
	cmd.Flags().DurationVar(&opts.heartbeat, "heartbeat", presence.DefaultHeartbeatInterval, "heartbeat interval (default HEARTBEAT_INTERVAL)")
	cmd.Flags().DurationVar(&opts.throttle, "throttle", presence.DefaultThrottleInterval, "minimum spacing of outbound updates (default THROTTLE_INTERVAL)")
	cmd.Flags().Int64Var(&opts.seed, "seed", 0, "layout seed")
	cmd.MarkFlagsMutuallyExclusive("relay", "redis")
}

// applyPresenceConfig fills the presence and canvas settings from the
// environment. Flags given on the command line win.
func applyPresenceConfig(cmd *cobra.Command, opts *joinOptions) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if !cmd.Flags().Changed("heartbeat") {
		opts.heartbeat = cfg.Presence.HeartbeatInterval
	}
	if !cmd.Flags().Changed("throttle") {
		opts.throttle = cfg.Presence.ThrottleInterval
	}
	opts.canvas = layout.Config{
		Width:      cfg.Layout.CanvasWidth,
		Height:     cfg.Layout.CanvasHeight,
		Iterations: cfg.Layout.Iterations,
	}
	return nil
}

func openTransport(opts joinOptions) (transport.Transport, func(), error) {
	lg := cliLogger()
	switch {
	case opts.relay != "":
		return transport.NewWebsocketTransport(strings.TrimRight(opts.relay, "/"), nil, lg), func() {}, nil
	case opts.redisAddr != "":
		client := redis.NewClient(&redis.Options{Addr: opts.redisAddr})
		return transport.NewRedisTransport(client, lg), func() { client.Close() }, nil
	default:
		return nil, nil, errors.New("one of --relay or --redis is required")
	}
}

func runJoin(ctx context.Context, out io.Writer, sessionID, graphPath string, opts joinOptions) error {
	layers, err := parseLayers(opts.layers)
	if err != nil {
		return err
	}
	g, err := graph.LoadFile(graphPath)
	if err != nil {
		return err
	}
	tr, cleanup, err := openTransport(opts)
	if err != nil {
		return err
	}
	defer cleanup()

	lg := cliLogger().With(zap.String("session", sessionID))
	sessionOpts := []presence.Option{
		presence.WithLogger(lg),
		presence.WithHeartbeatInterval(opts.heartbeat),
		presence.WithThrottleInterval(opts.throttle),
	}
	if opts.name != "" {
		sessionOpts = append(sessionOpts, presence.WithDisplayName(opts.name))
	}
	session := presence.NewSession(tr, sessionID, g, sessionOpts...)

	canvas := opts.canvas
	canvas.Seed = opts.seed
	vis, err := visualizer.New(ctx, session, canvas, lg)
	if err != nil {
		return err
	}
	if _, err := vis.SetLayers(ctx, layers); err != nil {
		return err
	}

	if opts.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.duration)
		defer cancel()
	}

	updates := session.Subscribe()
	errCh := make(chan error, 1)
	go func() { errCh <- session.Run(ctx) }()

	me := session.LocalUser()
	fmt.Fprintf(out, "joined %s as %s %s\n", color.New(color.Bold).Sprint(sessionID), swatch(me.Color), me.DisplayName)

	for {
		select {
		case u, ok := <-updates:
			if !ok {
				return waitRun(errCh)
			}
			if u.Status != "" {
				fmt.Fprintf(out, "status: %s\n", statusColor(u.Status).Sprint(u.Status))
			}
			if u.Roster {
				printRoster(out, vis.Frame())
			}
		case <-ctx.Done():
			closeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			_ = vis.Close(closeCtx)
			cancel()
			return waitRun(errCh)
		}
	}
}

func waitRun(errCh <-chan error) error {
	err := <-errCh
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

func printRoster(out io.Writer, f visualizer.Frame) {
	fmt.Fprintf(out, "roster (%d):\n", len(f.Collaborators))
	for _, c := range f.Collaborators {
		state := color.New(color.FgGreen).Sprint("active")
		if !c.Active {
			state = color.New(color.FgHiBlack).Sprint("idle")
		}
		cursor := "-"
		if c.Cursor != nil {
			cursor = fmt.Sprintf("(%.0f,%.0f)", c.Cursor.X, c.Cursor.Y)
		}
		name := c.DisplayName
		if name == "" {
			name = c.ID
		}
		fmt.Fprintf(out, "  %s %-20s %-8s cursor=%-12s zoom=%.1f\n", swatch(c.Color), name, state, cursor, c.Zoom)
	}
}

func statusColor(s domain.ConnectionStatus) *color.Color {
	switch s {
	case domain.StatusOpen:
		return color.New(color.FgGreen)
	case domain.StatusReconnecting:
		return color.New(color.FgYellow)
	case domain.StatusClosed:
		return color.New(color.FgRed)
	default:
		return color.New(color.FgCyan)
	}
}

// swatch renders a block in the collaborator's hex color
func swatch(hex string) string {
	r, g, b, ok := parseHex(hex)
	if !ok {
		return "■"
	}
	return color.RGB(r, g, b).Sprint("■")
}

func parseHex(hex string) (int, int, int, bool) {
	hex = strings.TrimPrefix(hex, "#")
	if len(hex) != 6 {
		return 0, 0, 0, false
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return 0, 0, 0, false
	}
	return int(v >> 16 & 0xff), int(v >> 8 & 0xff), int(v & 0xff), true
}
