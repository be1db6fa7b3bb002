// Command origin runs an origin server: the terminal holder of video
// files (spec.md §4.6). It accepts signaling connections from players and
// relays on its streaming port, and answers RP metric probes on its
// metrics port.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/esrtp/overlay/origin"
	"github.com/esrtp/overlay/signaling"
)

func main() {
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	var streamingPort int
	var metricsPort int

	cmd := &cobra.Command{
		Use:   "origin <videos-dir>",
		Short: "run an origin server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			videosDir := args[0]

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				sig := <-sigCh
				slog.Info("received signal, shutting down", "signal", sig)
				cancel()
			}()

			srv := origin.NewServer(videosDir, uint16(streamingPort), slog.Default())

			signalingListener, err := net.Listen("tcp", fmt.Sprintf(":%d", streamingPort))
			if err != nil {
				return fmt.Errorf("origin: listen on streaming port: %w", err)
			}
			signalingSrv := signaling.NewServer(signalingListener, srv, slog.Default())

			metricsListener, err := net.Listen("tcp", fmt.Sprintf(":%d", metricsPort))
			if err != nil {
				return fmt.Errorf("origin: listen on metrics port: %w", err)
			}
			metricsSrv := origin.NewMetricsServer(srv, metricsListener)

			slog.Info("origin starting", "videos_dir", videosDir, "streaming_port", streamingPort, "metrics_port", metricsPort)

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error { return signalingSrv.Serve(ctx) })
			g.Go(func() error { return metricsSrv.Serve(ctx) })
			return g.Wait()
		},
	}

	cmd.Flags().IntVarP(&streamingPort, "streaming-port", "s", 8554, "port players and relays SETUP against")
	cmd.Flags().IntVarP(&metricsPort, "metrics-port", "m", 8555, "port rendezvous points probe for load metrics")

	if err := cmd.Execute(); err != nil {
		slog.Error("origin exited with error", "error", err)
		os.Exit(1)
	}
}
