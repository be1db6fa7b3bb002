// Command rp runs a rendezvous point node: it probes a fixed set of
// origin servers for load and answers File lookup queries with the
// least-loaded one that holds the file (spec.md §4.5).
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

	"github.com/esrtp/overlay/rp"
	"github.com/esrtp/overlay/topology"
)

func main() {
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	var port int
	var originFlags []string

	cmd := &cobra.Command{
		Use:   "rp",
		Short: "run a rendezvous point node",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			origins, err := parseOrigins(originFlags)
			if err != nil {
				return err
			}
			if len(origins) == 0 {
				return fmt.Errorf("rp: at least one -s origin metrics address is required")
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				sig := <-sigCh
				slog.Info("received signal, shutting down", "signal", sig)
				cancel()
			}()

			conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: port})
			if err != nil {
				return fmt.Errorf("rp: bind lookup socket: %w", err)
			}

			slog.Info("rendezvous point starting", "port", port, "origins", origins)
			svc := rp.NewService(ctx, origins, conn, slog.Default())
			return svc.Serve(ctx)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 8554, "port this rendezvous point's lookup service listens on")
	cmd.Flags().StringArrayVarP(&originFlags, "origin", "s", nil, "origin metrics address (host:port), may be repeated")

	if err := cmd.Execute(); err != nil {
		slog.Error("rp exited with error", "error", err)
		os.Exit(1)
	}
}

func parseOrigins(flags []string) ([]topology.Neighbor, error) {
	origins := make([]topology.Neighbor, 0, len(flags))
	for _, f := range flags {
		host, portStr, err := net.SplitHostPort(f)
		if err != nil {
			return nil, fmt.Errorf("rp: invalid origin address %q: %w", f, err)
		}
		var port int
		if _, err := fmt.Sscanf(portStr, "%d", &port); err != nil {
			return nil, fmt.Errorf("rp: invalid origin port in %q: %w", f, err)
		}
		origins = append(origins, topology.Neighbor{Host: host, Port: port})
	}
	return origins, nil
}
