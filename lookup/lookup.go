// Package lookup implements the distributed file-lookup protocol: a
// datagram responder and recursive forwarder that flood a File query over
// the overlay with loop avoidance (spec.md §4.2). Ranking candidate
// origins at a rendezvous point is done by package rp, not here.
package lookup

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"time"

	"github.com/esrtp/overlay/channel"
	"github.com/esrtp/overlay/topology"
	"github.com/esrtp/overlay/wire"
)

// forwardTimeout bounds how long the forwarder waits for Ok replies from
// its candidates (spec.md §4.2, §5).
const forwardTimeout = 1 * time.Second

// readBufferSize is large enough for any lookup datagram this protocol
// produces (small neighbor lists, short filenames).
const readBufferSize = 4096

// Service runs the file-lookup responder and forwarder for one relay node.
type Service struct {
	log       *slog.Logger
	self      string // this node's own host address; stored, not read when answering queries
	neighbors []topology.Neighbor
	channels  *channel.Registry
	conn      *net.UDPConn
}

// NewService creates a lookup service that answers on the already bound
// UDP socket conn, flooding to neighbors and consulting channels for local
// hits.
func NewService(self string, neighbors []topology.Neighbor, channels *channel.Registry, conn *net.UDPConn, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		log:       log.With("component", "lookup"),
		self:      self,
		neighbors: neighbors,
		channels:  channels,
		conn:      conn,
	}
}

// Serve reads File/Neighbors queries off the bound socket and answers each
// on its own goroutine, so concurrent floods never serialize on each other.
func (s *Service) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.conn.Close()
	}()

	buf := make([]byte, readBufferSize)
	for {
		n, from, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("lookup: read: %w", err)
		}

		data := make([]byte, n)
		copy(data, buf[:n])
		fromAddr := *from

		go s.handleQuery(ctx, data, &fromAddr)
	}
}

func (s *Service) handleQuery(ctx context.Context, data []byte, from *net.UDPAddr) {
	query, err := wire.DecodeLookupQuery(data)
	if err != nil {
		s.log.Debug("dropping malformed query", "error", err)
		return
	}

	var answer *wire.LookupAnswer
	switch query.Kind {
	case wire.KindNeighbors:
		answer = &wire.LookupAnswer{
			CorrelationID: query.CorrelationID,
			Status:        wire.StatusOk,
			Kind:          wire.KindNeighbors,
			Path:          s.neighbors,
		}
	case wire.KindFile:
		answer = s.answerFileQuery(ctx, query)
	default:
		answer = &wire.LookupAnswer{CorrelationID: query.CorrelationID, Status: wire.StatusError}
	}

	if _, err := s.conn.WriteToUDP(answer.Encode(), from); err != nil {
		s.log.Debug("failed to send answer", "error", err)
	}
}

// answerFileQuery implements the Responder algorithm (spec.md §4.2).
func (s *Service) answerFileQuery(ctx context.Context, query *wire.LookupQuery) *wire.LookupAnswer {
	if _, ok := s.channels.Get(query.Filename); ok {
		return &wire.LookupAnswer{
			CorrelationID: query.CorrelationID,
			Status:        wire.StatusOk,
			Kind:          wire.KindFile,
			Path:          nil,
		}
	}

	path, peerAddr, ok := s.forward(ctx, query)
	if !ok {
		return &wire.LookupAnswer{
			CorrelationID: query.CorrelationID,
			Status:        wire.StatusVideoNotFound,
			Kind:          wire.KindFile,
		}
	}

	peer, err := topology.FromAddr(peerAddr)
	if err != nil {
		s.log.Warn("failed to derive neighbor from peer address", "error", err)
		return &wire.LookupAnswer{
			CorrelationID: query.CorrelationID,
			Status:        wire.StatusVideoNotFound,
			Kind:          wire.KindFile,
		}
	}

	return &wire.LookupAnswer{
		CorrelationID: query.CorrelationID,
		Status:        wire.StatusOk,
		Kind:          wire.KindFile,
		Path:          append(append([]topology.Neighbor{}, path...), peer),
	}
}

// forward implements the Forwarder algorithm (spec.md §4.2): extend the
// already-asked set, flood to every newly-added candidate, and return the
// first Ok reply's path and observed source address.
func (s *Service) forward(ctx context.Context, query *wire.LookupQuery) ([]topology.Neighbor, *net.UDPAddr, bool) {
	candidates := s.newCandidates(query.AlreadyAsked)
	if len(candidates) == 0 {
		return nil, nil, false
	}

	extended := append(append([]topology.Neighbor{}, query.AlreadyAsked...), candidates...)
	outgoing := &wire.LookupQuery{
		CorrelationID: query.CorrelationID,
		Kind:          wire.KindFile,
		Filename:      query.Filename,
		AlreadyAsked:  extended,
	}
	payload := outgoing.Encode()

	conn, err := net.ListenUDP("udp", &net.UDPAddr{})
	if err != nil {
		s.log.Warn("failed to bind forwarding socket", "error", err)
		return nil, nil, false
	}
	defer conn.Close()

	for _, c := range candidates {
		addr, err := net.ResolveUDPAddr("udp", c.String())
		if err != nil {
			continue
		}
		if _, err := conn.WriteToUDP(payload, addr); err != nil {
			s.log.Debug("failed to send to candidate", "candidate", c, "error", err)
		}
	}

	deadline := time.Now().Add(forwardTimeout)
	buf := make([]byte, readBufferSize)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, nil, false
		}
		conn.SetReadDeadline(deadline)

		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			return nil, nil, false
		}

		reply, err := wire.DecodeLookupAnswer(buf[:n])
		if err != nil {
			continue
		}
		if reply.CorrelationID != query.CorrelationID {
			continue
		}
		if reply.Status == wire.StatusOk {
			return reply.Path, from, true
		}
	}
}

// newCandidates computes my_neighbors \ already_asked.
func (s *Service) newCandidates(alreadyAsked []topology.Neighbor) []topology.Neighbor {
	asked := make(map[topology.Neighbor]struct{}, len(alreadyAsked))
	for _, n := range alreadyAsked {
		asked[n] = struct{}{}
	}

	candidates := make([]topology.Neighbor, 0, len(s.neighbors))
	for _, n := range s.neighbors {
		if _, ok := asked[n]; !ok {
			candidates = append(candidates, n)
		}
	}
	return candidates
}

// NewCorrelationID returns a random 32-bit query correlation id.
func NewCorrelationID() uint32 {
	return rand.Uint32()
}
