// Command node runs a relay node: either a bootstraper, which hosts the
// topology descriptor for the whole overlay alongside its own relay
// services, or a non-bootstraper, which fetches its neighbor list from a
// bootstraper at startup (spec.md §4.1/§4.4).
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

	"github.com/esrtp/overlay/bootstrap"
	"github.com/esrtp/overlay/lookup"
	"github.com/esrtp/overlay/relay"
	"github.com/esrtp/overlay/signaling"
	"github.com/esrtp/overlay/topology"
)

func main() {
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	var port int
	var self string

	root := &cobra.Command{
		Use:   "node",
		Short: "run a relay node",
	}
	root.PersistentFlags().IntVar(&port, "port", topology.DefaultPort, "port this node's lookup and signaling services listen on")
	root.PersistentFlags().StringVar(&self, "self", "", "this node's own topology host key (defaults to hostname)")

	root.AddCommand(bootstraperCommand(&port, &self))
	root.AddCommand(nonBootstraperCommand(&port, &self))

	if err := root.Execute(); err != nil {
		slog.Error("node exited with error", "error", err)
		os.Exit(1)
	}
}

func bootstraperCommand(port *int, self *string) *cobra.Command {
	return &cobra.Command{
		Use:   "bootstraper <topology-path> <bootstrap-port>",
		Short: "host the topology descriptor and run this node's own relay services",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			topologyPath := args[0]
			var bootstrapPort int
			if _, err := fmt.Sscanf(args[1], "%d", &bootstrapPort); err != nil {
				return fmt.Errorf("invalid bootstrap port %q: %w", args[1], err)
			}

			host := resolveSelf(*self)
			topo, err := topology.Load(topologyPath)
			if err != nil {
				return err
			}
			neighbors, ok := topo.Neighbors(host)
			if !ok {
				return fmt.Errorf("node: %q is not present in the topology descriptor", host)
			}

			ctx, cancel := setupSignalContext()
			defer cancel()

			g, ctx := errgroup.WithContext(ctx)

			bootstrapListener, err := net.Listen("tcp", fmt.Sprintf(":%d", bootstrapPort))
			if err != nil {
				return fmt.Errorf("node: listen on bootstrap port: %w", err)
			}
			bootstrapSvc := bootstrap.NewService(topo, bootstrapListener, slog.Default())
			g.Go(func() error { return bootstrapSvc.Serve(ctx) })

			slog.Info("bootstraper starting", "self", host, "port", *port, "bootstrap_port", bootstrapPort)
			g.Go(func() error { return runRelay(ctx, host, *port, neighbors) })

			return g.Wait()
		},
	}
}

func nonBootstraperCommand(port *int, self *string) *cobra.Command {
	return &cobra.Command{
		Use:   "non-bootstraper <bootstraper-endpoint>",
		Short: "fetch a neighbor list from a bootstraper and run this node's relay services",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			host := resolveSelf(*self)

			ctx, cancel := setupSignalContext()
			defer cancel()

			neighbors, err := bootstrap.RequestNeighbors(ctx, args[0], host)
			if err != nil {
				return err
			}

			slog.Info("non-bootstraper starting", "self", host, "port", *port, "bootstraper", args[0])
			return runRelay(ctx, host, *port, neighbors)
		},
	}
}

// runRelay starts the lookup and signaling services shared by every
// relay, regardless of how it learned its neighbor list.
func runRelay(ctx context.Context, self string, port int, neighbors []topology.Neighbor) error {
	node := relay.NewNode(slog.Default())

	lookupConn, err := net.ListenUDP("udp", &net.UDPAddr{Port: port})
	if err != nil {
		return fmt.Errorf("node: bind lookup socket: %w", err)
	}
	lookupSvc := lookup.NewService(self, neighbors, node.Channels(), lookupConn, slog.Default())

	signalingListener, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("node: listen for signaling: %w", err)
	}
	signalingSrv := signaling.NewServer(signalingListener, node, slog.Default())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return lookupSvc.Serve(ctx) })
	g.Go(func() error { return signalingSrv.Serve(ctx) })
	return g.Wait()
}

func resolveSelf(self string) string {
	if self != "" {
		return self
	}
	host, err := os.Hostname()
	if err != nil {
		return "localhost"
	}
	return host
}

func setupSignalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()
	return ctx, cancel
}
