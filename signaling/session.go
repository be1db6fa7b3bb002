// Package signaling implements the SETUP/PLAY/PAUSE/TEARDOWN session state
// machine (spec.md §4.3) shared by the node roles that terminate client
// signaling connections: origins and relays. The rendezvous point (package
// rp) answers lookup queries only and runs no signaling server.
package signaling

import (
	"math/rand"
	"net"
	"sync"

	"github.com/esrtp/overlay/channel"
	"github.com/esrtp/overlay/wire"
)

// State is a session's position in the SETUP/PLAY/PAUSE/TEARDOWN state
// machine (spec.md §3/§4.3).
type State int

// Session states.
const (
	StateInit State = iota
	StateReady
	StatePlaying
	StatePaused
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "Init"
	case StateReady:
		return "Ready"
	case StatePlaying:
		return "Playing"
	case StatePaused:
		return "Paused"
	default:
		return "Unknown"
	}
}

// sessionIDMin and sessionIDMax bound the uniform random range session ids
// are drawn from (spec.md §4.3).
const (
	sessionIDMin = 100000
	sessionIDMax = 999999
)

// NewSessionID draws a session id uniformly from [100000, 999999].
func NewSessionID() uint32 {
	return uint32(sessionIDMin + rand.Intn(sessionIDMax-sessionIDMin+1))
}

// Session is per-subscriber state at the node handling a client's
// signaling connection (spec.md §3).
type Session struct {
	mu sync.Mutex

	ID         uint32
	ClientAddr *net.UDPAddr
	Filename   string
	State      State
	Channel    *channel.Channel
}

// Subscriber returns the channel.Subscriber identity for this session,
// used for Room/Playable membership.
func (s *Session) Subscriber() channel.Subscriber {
	return channel.Subscriber{Addr: s.ClientAddr, SessionID: s.ID}
}

func (s *Session) state() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.State
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.State = st
	s.mu.Unlock()
}

// errorResponse builds the standard invalid-transition reply (spec.md §4.3):
// 500 ConnectionError with the session id and client sequence echoed.
func errorResponse(sessionID uint32, cseq uint32) *wire.SignalingResponse {
	return &wire.SignalingResponse{
		Status:    wire.StatusSigConnectionError,
		CSeq:      cseq,
		SessionID: sessionID,
	}
}
