package signaling

import (
	"context"

	"github.com/esrtp/overlay/channel"
	"github.com/esrtp/overlay/topology"
	"github.com/esrtp/overlay/wire"
)

// NodeBehavior is implemented differently by each node role (origin,
// relay) to supply the role-specific parts of the state machine's actions
// (spec.md §4.3/§4.4), while this package owns the shared dispatch table,
// session bookkeeping, and connection handling.
type NodeBehavior interface {
	// VerifyFile reports whether filename can be served, for the Init→Setup
	// 404 check. An origin checks its local file; a relay defers to the
	// upstream SETUP's own result and always returns true here.
	VerifyFile(filename string) bool

	// Channels returns the node's channel registry.
	Channels() *channel.Registry

	// GetOrCreateChannel returns the existing channel for filename, or
	// builds one (dialing upstream if this node is a relay, or opening the
	// local video source if this node is an origin) using remainingServers
	// as the servers-to-contact list for any upstream SETUP.
	GetOrCreateChannel(ctx context.Context, filename string, remainingServers []topology.Neighbor) (*channel.Channel, wire.Status)

	// StartPlayback ensures ch has a running pump worker, issuing an
	// upstream PLAY first if this is the channel's first local playback.
	StartPlayback(ctx context.Context, ch *channel.Channel) wire.Status

	// StopPlayback is invoked when a PAUSE just emptied ch's Playable set.
	StopPlayback(ctx context.Context, ch *channel.Channel)

	// TeardownChannel is invoked when a TEARDOWN just emptied ch's Room
	// set; ch has already been removed from the registry.
	TeardownChannel(ctx context.Context, ch *channel.Channel)
}
