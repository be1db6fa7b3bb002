// Package channel implements the per-(node, filename) shared upstream
// fan-out described in spec.md §3/§4.4: one upstream media pull multiplexed
// to many downstream subscribers, demand-started on first PLAY and
// demand-stopped when the last subscriber leaves.
//
// A registered-viewer set is fed by a single broadcast source, guarded by
// its own mutex independent of the registry lock that holds the map of
// channels.
package channel

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
)

// Subscriber is a downstream client's media endpoint, keyed for Room and
// Playable membership by (address, session id) equality — not by address
// alone, so two sessions from the same client address never collide.
type Subscriber struct {
	Addr      *net.UDPAddr
	SessionID uint32
}

func (s Subscriber) key() string {
	return fmt.Sprintf("%s#%d", s.Addr.String(), s.SessionID)
}

// Source produces the packets a Channel fans out. At an origin it wraps
// the local video file; at a relay it reads framed packets arriving from
// upstream on the channel's bound UDP socket. Each returned frame is
// already wire-framed (length prefix + RTP bytes), ready to send as-is.
type Source interface {
	// Next blocks until the next frame is available, or returns an error
	// (including io.EOF) when the source is exhausted.
	Next() ([]byte, error)
	Close() error
}

// Channel is the per-(node, filename) shared transmission state (spec.md
// §3). Room and Playable are guarded by independent mutexes so concurrent
// subscriber add/remove never blocks on the pump's send loop, and neither
// is ever held across network I/O.
type Channel struct {
	Filename string

	// Upstream is nil at an origin (which has no upstream of its own).
	// At a relay it is the persistent signaling connection to the next
	// hop; UpstreamMu serializes SETUP/PLAY/PAUSE/TEARDOWN issued over it,
	// since it is a single shared contention point per channel.
	Upstream   net.Conn
	UpstreamMu sync.Mutex

	// LocalConn is this channel's bound UDP endpoint: relays read
	// upstream media off it and every node sends downstream media from it.
	LocalConn *net.UDPConn

	// UpstreamSessionID is the session id this relay was assigned by its
	// own upstream SETUP. It is never shown to downstream clients, which
	// each get a session id minted locally by this node (spec.md §4.4).
	UpstreamSessionID uint32
	upstreamCSeq      uint32

	source Source

	roomMu sync.Mutex
	room   map[string]Subscriber

	playableMu sync.Mutex
	playable   map[string]Subscriber

	pumpMu     sync.Mutex
	pumpCancel func()
	pumpDone   chan struct{}
}

// New creates an empty Channel for filename, fed by source once a pump
// worker is started.
func New(filename string, upstream net.Conn, localConn *net.UDPConn, source Source) *Channel {
	return &Channel{
		Filename:  filename,
		Upstream:  upstream,
		LocalConn: localConn,
		source:    source,
		room:      make(map[string]Subscriber),
		playable:  make(map[string]Subscriber),
	}
}

// AddToRoom adds sub to the Room set (SETUP). Returns false if already present.
func (c *Channel) AddToRoom(sub Subscriber) bool {
	c.roomMu.Lock()
	defer c.roomMu.Unlock()
	if _, ok := c.room[sub.key()]; ok {
		return false
	}
	c.room[sub.key()] = sub
	return true
}

// RemoveFromRoom removes sub from the Room set (TEARDOWN), also removing
// it from Playable (Playable ⊆ Room must hold). Returns the resulting
// Room size.
func (c *Channel) RemoveFromRoom(sub Subscriber) int {
	c.roomMu.Lock()
	delete(c.room, sub.key())
	size := len(c.room)
	c.roomMu.Unlock()

	c.playableMu.Lock()
	delete(c.playable, sub.key())
	c.playableMu.Unlock()

	return size
}

// RoomSize returns the current Room set size.
func (c *Channel) RoomSize() int {
	c.roomMu.Lock()
	defer c.roomMu.Unlock()
	return len(c.room)
}

// InRoom reports whether sub is currently a Room member.
func (c *Channel) InRoom(sub Subscriber) bool {
	c.roomMu.Lock()
	defer c.roomMu.Unlock()
	_, ok := c.room[sub.key()]
	return ok
}

// AddToPlayable adds sub to the Playable set (PLAY). sub must already be
// a Room member; callers are responsible for enforcing that ordering.
func (c *Channel) AddToPlayable(sub Subscriber) {
	c.playableMu.Lock()
	defer c.playableMu.Unlock()
	c.playable[sub.key()] = sub
}

// RemoveFromPlayable removes sub from the Playable set (PAUSE). Returns
// the resulting Playable size.
func (c *Channel) RemoveFromPlayable(sub Subscriber) int {
	c.playableMu.Lock()
	defer c.playableMu.Unlock()
	delete(c.playable, sub.key())
	return len(c.playable)
}

// PlayableSize returns the current Playable set size.
func (c *Channel) PlayableSize() int {
	c.playableMu.Lock()
	defer c.playableMu.Unlock()
	return len(c.playable)
}

// PlayableSnapshot returns a point-in-time copy of the Playable set, safe
// for the pump worker to iterate without holding the lock across sends.
func (c *Channel) PlayableSnapshot() []Subscriber {
	c.playableMu.Lock()
	defer c.playableMu.Unlock()
	out := make([]Subscriber, 0, len(c.playable))
	for _, s := range c.playable {
		out = append(out, s)
	}
	return out
}

// NextUpstreamCSeq returns the next monotonically increasing sequence
// number for this channel's upstream signaling connection.
func (c *Channel) NextUpstreamCSeq() uint32 {
	return atomic.AddUint32(&c.upstreamCSeq, 1)
}

// SetSource attaches source to the channel. Relays create their Channel
// with a nil Source and attach a forwardSource reading the channel's own
// bound UDP socket only after the upstream SETUP has succeeded; origins
// pass their source to New directly.
func (c *Channel) SetSource(source Source) {
	c.source = source
}

// HasPump reports whether a pump worker is currently running.
func (c *Channel) HasPump() bool {
	c.pumpMu.Lock()
	defer c.pumpMu.Unlock()
	return c.pumpCancel != nil
}
