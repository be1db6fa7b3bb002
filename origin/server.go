package origin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"

	"github.com/esrtp/overlay/channel"
	"github.com/esrtp/overlay/topology"
	"github.com/esrtp/overlay/wire"
)

// statusError carries a wire.Status out of a Registry.GetOrCreate create
// func, so GetOrCreateChannel can report the right status to its caller
// even though Registry itself knows nothing about signaling statuses.
type statusError struct {
	status wire.Status
	err    error
}

func (e *statusError) Error() string { return e.err.Error() }
func (e *statusError) Unwrap() error { return e.err }

// Server is an origin node: the terminal holder of video files (spec.md
// §4.6). It implements signaling.NodeBehavior with no upstream of its own.
type Server struct {
	log           *slog.Logger
	videosDir     string
	streamingPort uint16
	channels      *channel.Registry

	mu      sync.Mutex
	sources map[string]*frameSource
}

// NewServer creates an origin server serving files out of videosDir. The
// streamingPort is reported to RPs via the metric response so they can
// hand it to players as the SETUP target.
func NewServer(videosDir string, streamingPort uint16, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		log:           log.With("component", "origin"),
		videosDir:     videosDir,
		streamingPort: streamingPort,
		channels:      channel.NewRegistry(log),
		sources:       make(map[string]*frameSource),
	}
}

// Channels returns the origin's channel registry.
func (s *Server) Channels() *channel.Registry {
	return s.channels
}

// VerifyFile reports whether filename exists under the videos directory.
func (s *Server) VerifyFile(filename string) bool {
	_, err := os.Stat(filepath.Join(s.videosDir, filename))
	return err == nil
}

// availableVideos counts the publishable files in the videos directory,
// used for the metric response's number_of_videos_available.
func (s *Server) availableVideos() int {
	entries, err := os.ReadDir(s.videosDir)
	if err != nil {
		return 0
	}
	count := 0
	for _, e := range entries {
		if !e.IsDir() {
			count++
		}
	}
	return count
}

// GetOrCreateChannel returns filename's channel, opening its video file
// and binding a fresh UDP endpoint if this is the first SETUP for it. An
// origin has no upstream to dial, so remainingServers is unused. The check
// and the open/bind/insert are serialized per filename by the registry, so
// two concurrent SETUPs for the same filename never both open the video
// file and race on which channel ends up installed.
func (s *Server) GetOrCreateChannel(ctx context.Context, filename string, remainingServers []topology.Neighbor) (*channel.Channel, wire.Status) {
	ch, err := s.channels.GetOrCreate(filename, func() (*channel.Channel, error) {
		return s.openChannel(filename)
	})
	if err != nil {
		var se *statusError
		if errors.As(err, &se) {
			return nil, se.status
		}
		return nil, wire.StatusSigConnectionError
	}
	return ch, wire.StatusSigOk
}

// openChannel opens filename's video file and binds its media socket.
// Called only from inside the registry's per-filename creation lock.
func (s *Server) openChannel(filename string) (*channel.Channel, error) {
	src, err := newFrameSource(filepath.Join(s.videosDir, filename))
	if err != nil {
		s.log.Warn("failed to open video source", "filename", filename, "error", err)
		return nil, &statusError{status: wire.StatusSigFileNotFound, err: fmt.Errorf("origin: open video source: %w", err)}
	}

	localConn, err := net.ListenUDP("udp", &net.UDPAddr{})
	if err != nil {
		src.Close()
		s.log.Warn("failed to bind channel media socket", "filename", filename, "error", err)
		return nil, &statusError{status: wire.StatusSigConnectionError, err: fmt.Errorf("origin: bind channel media socket: %w", err)}
	}

	ch := channel.New(filename, nil, localConn, src)

	s.mu.Lock()
	s.sources[filename] = src
	s.mu.Unlock()

	return ch, nil
}

// StartPlayback starts ch's pump worker if one is not already running. An
// origin never forwards PLAY upstream; it is the upstream.
func (s *Server) StartPlayback(ctx context.Context, ch *channel.Channel) wire.Status {
	if !ch.HasPump() {
		ch.StartPump(s.log)
	}
	return wire.StatusSigOk
}

// StopPlayback stops ch's pump worker. An origin has no upstream PAUSE to
// forward.
func (s *Server) StopPlayback(ctx context.Context, ch *channel.Channel) {
	ch.StopPump()
}

// TeardownChannel releases the channel's video file and UDP socket. An
// origin has no upstream TEARDOWN to forward.
func (s *Server) TeardownChannel(ctx context.Context, ch *channel.Channel) {
	ch.StopPump()
	ch.LocalConn.Close()

	s.mu.Lock()
	if src, ok := s.sources[ch.Filename]; ok {
		src.Close()
		delete(s.sources, ch.Filename)
	}
	s.mu.Unlock()
}

// Metric computes the load metric response for filename (spec.md §3/§4.5).
func (s *Server) Metric(filename string) *wire.MetricResponse {
	found := s.VerifyFile(filename)
	_, alreadyStreaming := s.channels.Get(filename)

	return &wire.MetricResponse{
		VideoFound:        found,
		AlreadyStreaming:  alreadyStreaming,
		NumberOfVideos:    uint32(s.availableVideos()),
		NumberOfStreaming: uint32(s.channels.Count()),
		StreamingPort:     s.streamingPort,
	}
}
