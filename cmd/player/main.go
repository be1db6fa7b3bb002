// Command player runs a player client: it resolves a filename with a
// lookup query to a rendezvous point, SETUPs and PLAYs against the resolved
// server, and writes received RTP payloads to stdout (spec.md §4.6/§7).
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/esrtp/overlay/player"
	"github.com/esrtp/overlay/rtp"
)

// defaultRPPort is the rendezvous point lookup port a player talks to by
// default (spec.md §6).
const defaultRPPort = 8554

func main() {
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	var host string
	var port int
	var rtpPort int
	var filename string

	cmd := &cobra.Command{
		Use:   "player",
		Short: "play a video over the overlay network",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				sig := <-sigCh
				slog.Info("received signal, shutting down", "signal", sig)
				cancel()
			}()

			rpAddr := fmt.Sprintf("%s:%d", host, port)

			slog.Info("locating", "filename", filename, "rendezvous_point", rpAddr)
			path, err := player.Locate(ctx, rpAddr, filename)
			if err != nil {
				return err
			}
			if len(path) == 0 {
				return fmt.Errorf("player: empty reverse path for %s", filename)
			}

			server := path[len(path)-1]
			remaining := path[:len(path)-1]

			p, err := player.New(server.String(), filename, rtpPort)
			if err != nil {
				return err
			}

			slog.Info("state", "state", p.String())
			if err := p.Setup(remaining); err != nil {
				return err
			}
			slog.Info("state", "state", p.String())

			if err := p.Play(); err != nil {
				return err
			}
			slog.Info("state", "state", p.String())

			return p.ReceiveFrames(ctx, func(pkt *rtp.Packet) {
				os.Stdout.Write(pkt.Payload)
			})
		},
	}

	cmd.Flags().StringVarP(&host, "host", "s", "0.0.0.0", "rendezvous point host to resolve the lookup against")
	cmd.Flags().IntVarP(&port, "port", "p", defaultRPPort, "rendezvous point lookup port")
	cmd.Flags().IntVarP(&rtpPort, "rtp-port", "r", 5000, "local port to receive RTP on")
	cmd.Flags().StringVarP(&filename, "filename", "v", "movie.Mjpeg", "filename to play")

	if err := cmd.Execute(); err != nil {
		slog.Error("player exited with error", "error", err)
		os.Exit(1)
	}
}
