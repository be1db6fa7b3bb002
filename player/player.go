// Package player implements the player client role (spec.md §4.6/§7):
// lookup a file, SETUP/PLAY against the resolved server, and deliver
// decoded RTP payloads to a caller-supplied sink. Decoding the JPEG
// frames themselves is out of scope; this package only gets bytes to the
// caller in order.
package player

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/esrtp/overlay/rtp"
	"github.com/esrtp/overlay/topology"
	"github.com/esrtp/overlay/wire"
)

// State is the player's own view of session progress (spec.md §7),
// distinct from the signaling package's State: it additionally carries a
// terminal error label.
type State int

// Player states.
const (
	StateIdle State = iota
	StateReady
	StatePlaying
	StatePaused
	StateError
)

// lookupTimeout bounds how long Locate waits for a lookup answer.
const lookupTimeout = 2 * time.Second

// String renders the state the way a user-facing client reports it
// (spec.md §7): "Idle (Error: ...)" when the last operation failed.
func (p *Player) String() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch p.state {
	case StateIdle:
		return "Idle"
	case StateReady:
		return "Ready"
	case StatePlaying:
		return "Playing"
	case StatePaused:
		return "Paused"
	case StateError:
		return fmt.Sprintf("Idle (Error: %s)", p.lastErr)
	default:
		return "Unknown"
	}
}

// Player is one client session against a resolved server.
type Player struct {
	mu       sync.Mutex
	state    State
	lastErr  string
	cseq     uint32
	sessionID uint32

	filename string
	conn     net.Conn
	rtpConn  *net.UDPConn
}

// Locate floods a File lookup query for filename via bootstrapAddr and
// returns the reverse path to the server that should receive SETUP
// (spec.md §4.2/§4.6).
func Locate(ctx context.Context, bootstrapAddr string, filename string) ([]topology.Neighbor, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{})
	if err != nil {
		return nil, fmt.Errorf("player: bind lookup socket: %w", err)
	}
	defer conn.Close()

	addr, err := net.ResolveUDPAddr("udp", bootstrapAddr)
	if err != nil {
		return nil, fmt.Errorf("player: resolve %s: %w", bootstrapAddr, err)
	}

	query := &wire.LookupQuery{
		CorrelationID: correlationID(),
		Kind:          wire.KindFile,
		Filename:      filename,
	}
	if _, err := conn.WriteToUDP(query.Encode(), addr); err != nil {
		return nil, fmt.Errorf("player: send lookup query: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(lookupTimeout))
	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			return nil, fmt.Errorf("player: lookup query timed out: %w", err)
		}
		answer, err := wire.DecodeLookupAnswer(buf[:n])
		if err != nil || answer.CorrelationID != query.CorrelationID {
			continue
		}
		if answer.Status != wire.StatusOk {
			return nil, fmt.Errorf("player: %s not found on the overlay", filename)
		}
		return answer.Path, nil
	}
}

// New dials serverAddr's signaling port for a new session on filename,
// and binds the local RTP receive socket on rtpPort (0 picks an ephemeral
// port). Playback only starts on Play.
func New(serverAddr string, filename string, rtpPort int) (*Player, error) {
	conn, err := net.Dial("tcp", serverAddr)
	if err != nil {
		return nil, fmt.Errorf("player: dial %s: %w", serverAddr, err)
	}

	rtpConn, err := net.ListenUDP("udp", &net.UDPAddr{Port: rtpPort})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("player: bind rtp socket: %w", err)
	}

	return &Player{
		state:    StateIdle,
		filename: filename,
		conn:     conn,
		rtpConn:  rtpConn,
	}, nil
}

// Setup issues SETUP, optionally carrying the remainder of a reverse path
// for the server to continue resolving upstream (spec.md §4.3).
func (p *Player) Setup(remainingServers []topology.Neighbor) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	req := &wire.SignalingRequest{
		Method:           wire.MethodSetup,
		Filename:         p.filename,
		CSeq:             p.nextCSeq(),
		RTPPort:          uint16(p.rtpConn.LocalAddr().(*net.UDPAddr).Port),
		ServersToContact: remainingServers,
	}
	resp, err := p.roundTrip(req)
	if err != nil {
		return p.fail(err)
	}
	if resp.Status != wire.StatusSigOk {
		return p.fail(fmt.Errorf("player: setup refused: status %d", resp.Status))
	}

	p.sessionID = resp.SessionID
	p.state = StateReady
	return nil
}

// Play issues PLAY and transitions to Playing.
func (p *Player) Play() error {
	return p.simpleTransition(wire.MethodPlay, StatePlaying)
}

// Pause issues PAUSE and transitions to Paused.
func (p *Player) Pause() error {
	return p.simpleTransition(wire.MethodPause, StatePaused)
}

// Teardown issues TEARDOWN, releases the session, and closes both
// connections.
func (p *Player) Teardown() error {
	err := p.simpleTransition(wire.MethodTeardown, StateIdle)
	p.conn.Close()
	p.rtpConn.Close()
	return err
}

func (p *Player) simpleTransition(method wire.Method, next State) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	req := &wire.SignalingRequest{
		Method:    method,
		Filename:  p.filename,
		CSeq:      p.nextCSeq(),
		SessionID: p.sessionID,
	}
	resp, err := p.roundTrip(req)
	if err != nil {
		return p.fail(err)
	}
	if resp.Status != wire.StatusSigOk {
		return p.fail(fmt.Errorf("player: %s refused: status %d", method, resp.Status))
	}

	p.state = next
	return nil
}

func (p *Player) roundTrip(req *wire.SignalingRequest) (*wire.SignalingResponse, error) {
	if err := wire.WriteSignalingRequest(p.conn, req); err != nil {
		return nil, fmt.Errorf("player: write %s: %w", req.Method, err)
	}
	resp, err := wire.ReadSignalingResponse(p.conn)
	if err != nil {
		return nil, fmt.Errorf("player: read %s response: %w", req.Method, err)
	}
	return resp, nil
}

// fail records the error and transitions to Error; callers propagate err.
func (p *Player) fail(err error) error {
	p.state = StateError
	p.lastErr = err.Error()
	return err
}

func (p *Player) nextCSeq() uint32 {
	p.cseq++
	return p.cseq
}

// ReceiveFrames blocks, delivering decoded RTP packets arriving on the
// player's RTP socket to sink, until ctx is cancelled or the socket is
// closed by Teardown.
func (p *Player) ReceiveFrames(ctx context.Context, sink func(*rtp.Packet)) error {
	go func() {
		<-ctx.Done()
		p.rtpConn.Close()
	}()

	buf := make([]byte, 65535)
	for {
		n, err := p.rtpConn.Read(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("player: read rtp datagram: %w", err)
		}

		rtpBytes, err := wire.DecodeMediaDatagram(buf[:n])
		if err != nil {
			continue
		}
		pkt, err := rtp.Decode(rtpBytes)
		if err != nil {
			continue
		}
		sink(pkt)
	}
}

func correlationID() uint32 {
	return rand.Uint32()
}
