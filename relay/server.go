package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

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

// dialTimeout bounds an upstream SETUP dial (spec.md §7: surfaced as 500
// ConnectionError, no retry).
const dialTimeout = 5 * time.Second

// Node is a relay: it has no video files of its own, only a channel
// registry fed by upstream SETUP/PLAY connections (spec.md §4.4).
type Node struct {
	log      *slog.Logger
	channels *channel.Registry
}

// NewNode creates a relay node.
func NewNode(log *slog.Logger) *Node {
	if log == nil {
		log = slog.Default()
	}
	return &Node{
		log:      log.With("component", "relay"),
		channels: channel.NewRegistry(log),
	}
}

// Channels returns the relay's channel registry.
func (n *Node) Channels() *channel.Registry {
	return n.channels
}

// VerifyFile always returns true: a relay cannot know whether a filename
// exists without asking upstream, so it defers the 404 decision to the
// upstream SETUP's own response status.
func (n *Node) VerifyFile(filename string) bool {
	return true
}

// GetOrCreateChannel returns filename's channel, dialing the next hop from
// remainingServers and issuing an upstream SETUP if no channel exists yet
// (spec.md §4.4). The check and the dial/SETUP/insert are serialized per
// filename by the registry, so two concurrent SETUPs for the same filename
// never both dial upstream and race on which channel ends up installed.
func (n *Node) GetOrCreateChannel(ctx context.Context, filename string, remainingServers []topology.Neighbor) (*channel.Channel, wire.Status) {
	ch, err := n.channels.GetOrCreate(filename, func() (*channel.Channel, error) {
		return n.dialUpstream(filename, remainingServers)
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

// dialUpstream performs the actual upstream dial, local socket bind, and
// SETUP round trip for a filename with no existing channel. Called only
// from inside the registry's per-filename creation lock.
func (n *Node) dialUpstream(filename string, remainingServers []topology.Neighbor) (*channel.Channel, error) {
	if len(remainingServers) == 0 {
		n.log.Warn("no upstream server to contact", "filename", filename)
		return nil, &statusError{status: wire.StatusSigConnectionError, err: fmt.Errorf("relay: no upstream server to contact for %s", filename)}
	}
	next := remainingServers[len(remainingServers)-1]
	rest := remainingServers[:len(remainingServers)-1]

	conn, err := net.DialTimeout("tcp", next.String(), dialTimeout)
	if err != nil {
		n.log.Warn("upstream dial failed", "upstream", next, "error", err)
		return nil, &statusError{status: wire.StatusSigConnectionError, err: fmt.Errorf("relay: dial upstream %s: %w", next, err)}
	}

	localConn, err := net.ListenUDP("udp", &net.UDPAddr{})
	if err != nil {
		conn.Close()
		n.log.Warn("failed to bind channel media socket", "filename", filename, "error", err)
		return nil, &statusError{status: wire.StatusSigConnectionError, err: fmt.Errorf("relay: bind channel media socket: %w", err)}
	}

	ch := channel.New(filename, conn, localConn, nil)

	req := &wire.SignalingRequest{
		Method:           wire.MethodSetup,
		Filename:         filename,
		CSeq:             ch.NextUpstreamCSeq(),
		RTPPort:          uint16(localConn.LocalAddr().(*net.UDPAddr).Port),
		ServersToContact: rest,
	}

	resp, err := n.roundTrip(ch, req)
	if err != nil {
		conn.Close()
		localConn.Close()
		n.log.Warn("upstream SETUP failed", "upstream", next, "error", err)
		return nil, &statusError{status: wire.StatusSigConnectionError, err: fmt.Errorf("relay: upstream setup: %w", err)}
	}
	if resp.Status != wire.StatusSigOk {
		conn.Close()
		localConn.Close()
		return nil, &statusError{status: resp.Status, err: fmt.Errorf("relay: upstream refused setup: status %d", resp.Status)}
	}

	ch.UpstreamSessionID = resp.SessionID
	ch.SetSource(newForwardSource(localConn))

	return ch, nil
}

// StartPlayback issues an upstream PLAY if this is the channel's first
// local playback request, then starts the local pump worker.
func (n *Node) StartPlayback(ctx context.Context, ch *channel.Channel) wire.Status {
	if ch.HasPump() {
		return wire.StatusSigOk
	}

	req := &wire.SignalingRequest{
		Method:    wire.MethodPlay,
		Filename:  ch.Filename,
		CSeq:      ch.NextUpstreamCSeq(),
		SessionID: ch.UpstreamSessionID,
	}
	resp, err := n.roundTrip(ch, req)
	if err != nil {
		n.log.Warn("upstream PLAY failed", "filename", ch.Filename, "error", err)
		return wire.StatusSigConnectionError
	}
	if resp.Status != wire.StatusSigOk {
		return resp.Status
	}

	ch.StartPump(n.log)
	return wire.StatusSigOk
}

// StopPlayback stops the local pump and forwards PAUSE upstream.
func (n *Node) StopPlayback(ctx context.Context, ch *channel.Channel) {
	ch.StopPump()

	req := &wire.SignalingRequest{
		Method:    wire.MethodPause,
		Filename:  ch.Filename,
		CSeq:      ch.NextUpstreamCSeq(),
		SessionID: ch.UpstreamSessionID,
	}
	if _, err := n.roundTrip(ch, req); err != nil {
		n.log.Warn("upstream PAUSE failed", "filename", ch.Filename, "error", err)
	}
}

// TeardownChannel forwards TEARDOWN upstream and releases local resources.
func (n *Node) TeardownChannel(ctx context.Context, ch *channel.Channel) {
	ch.StopPump()

	req := &wire.SignalingRequest{
		Method:    wire.MethodTeardown,
		Filename:  ch.Filename,
		CSeq:      ch.NextUpstreamCSeq(),
		SessionID: ch.UpstreamSessionID,
	}
	if _, err := n.roundTrip(ch, req); err != nil {
		n.log.Warn("upstream TEARDOWN failed", "filename", ch.Filename, "error", err)
	}

	ch.Upstream.Close()
	ch.LocalConn.Close()
}

// roundTrip issues req over ch's upstream signaling connection, serialized
// by the channel's upstream mutex — the one upstream connection per
// channel is a single contention point shared by concurrent SETUP/PLAY
// handlers (spec.md §9). The lock is never held across downstream I/O.
func (n *Node) roundTrip(ch *channel.Channel, req *wire.SignalingRequest) (*wire.SignalingResponse, error) {
	ch.UpstreamMu.Lock()
	defer ch.UpstreamMu.Unlock()

	if err := wire.WriteSignalingRequest(ch.Upstream, req); err != nil {
		return nil, fmt.Errorf("relay: write upstream request: %w", err)
	}
	resp, err := wire.ReadSignalingResponse(ch.Upstream)
	if err != nil {
		return nil, fmt.Errorf("relay: read upstream response: %w", err)
	}
	return resp, nil
}
