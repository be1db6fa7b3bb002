// Package bootstrap implements the bootstrap node role (spec.md §4.1): a
// process that loads the static topology descriptor once and answers
// get-neighbors requests for it over short-lived reliable connections,
// keyed by the caller's own advertised host address.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"github.com/esrtp/overlay/topology"
	"github.com/esrtp/overlay/wire"
)

// Service answers get-neighbors requests against a fixed topology.
type Service struct {
	log      *slog.Logger
	topo     topology.Topology
	listener net.Listener
}

// NewService creates a bootstrap service serving topo over listener.
func NewService(topo topology.Topology, listener net.Listener, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		log:      log.With("component", "bootstrap"),
		topo:     topo,
		listener: listener,
	}
}

// Serve accepts connections until ctx is cancelled. Each connection is a
// single short-lived get-neighbors request: the caller's own host address
// is read as a line-delimited string, and the response is written and the
// connection closed (spec.md §4.1).
func (s *Service) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.listener.Close()
	}()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("bootstrap: accept: %w", err)
		}
		go s.handleConn(conn)
	}
}

func (s *Service) handleConn(conn net.Conn) {
	defer conn.Close()

	host, err := readHost(conn)
	if err != nil {
		s.log.Debug("failed to read caller host", "error", err)
		return
	}

	neighbors, ok := s.topo.Neighbors(host)
	resp := &wire.NeighborsResponse{Found: ok, Neighbors: neighbors}
	if !ok {
		s.log.Warn("get-neighbors request from unknown host", "host", host)
	}

	if err := wire.WriteNeighborsResponse(conn, resp); err != nil {
		s.log.Debug("failed to write neighbors response", "host", host, "error", err)
	}
}

// readHost reads the caller's self-reported host address, a single
// newline-terminated line: the bootstrap node has no other way to learn
// which topology entry a freshly dialing peer corresponds to.
func readHost(conn net.Conn) (string, error) {
	buf := make([]byte, 256)
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total : total+1])
		if err != nil {
			return "", err
		}
		if n == 0 {
			continue
		}
		if buf[total] == '\n' {
			return string(buf[:total]), nil
		}
		total++
	}
	return "", fmt.Errorf("bootstrap: host line too long")
}

// RequestNeighbors dials a bootstrap node at addr, announces self, and
// returns its neighbor list. Used by every non-bootstrap node at startup
// (spec.md §4.1).
func RequestNeighbors(ctx context.Context, addr string, self string) ([]topology.Neighbor, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: dial %s: %w", addr, err)
	}
	defer conn.Close()

	if _, err := fmt.Fprintf(conn, "%s\n", self); err != nil {
		return nil, fmt.Errorf("bootstrap: write self address: %w", err)
	}

	resp, err := wire.ReadNeighborsResponse(conn)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: read neighbors response: %w", err)
	}
	if !resp.Found {
		return nil, fmt.Errorf("bootstrap: %s is not a known topology entry", self)
	}
	return resp.Neighbors, nil
}
