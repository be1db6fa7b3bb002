// Package rp implements the rendezvous point node role (spec.md §4.5): it
// tracks a fixed set of origin servers over persistent metric-probe
// connections and answers File lookup queries by picking the
// least-loaded origin that actually holds the requested file.
package rp

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/esrtp/overlay/topology"
	"github.com/esrtp/overlay/wire"
)

// probeTimeout bounds a single metric round trip; an origin that doesn't
// answer in time is treated as unavailable for this query (spec.md §5).
const probeTimeout = 1 * time.Second

// readBufferSize is large enough for any lookup query datagram.
const readBufferSize = 4096

// probe is a persistent reliable connection to one origin's metrics
// responder (origin.MetricsServer), serialized by its own mutex so
// concurrent lookup queries never interleave requests and replies on it.
type probe struct {
	mu     sync.Mutex
	origin topology.Neighbor
	conn   net.Conn
}

func (p *probe) query(filename string) (*wire.MetricResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.conn.SetDeadline(time.Now().Add(probeTimeout))
	if err := wire.WriteMetricRequest(p.conn, &wire.MetricRequest{Filename: filename}); err != nil {
		return nil, fmt.Errorf("rp: write metric request to %s: %w", p.origin, err)
	}
	resp, err := wire.ReadMetricResponse(p.conn)
	if err != nil {
		return nil, fmt.Errorf("rp: read metric response from %s: %w", p.origin, err)
	}
	return resp, nil
}

// Service answers File lookup queries against a fixed set of origins.
type Service struct {
	log     *slog.Logger
	conn    *net.UDPConn
	probes  []*probe
}

// NewService dials a persistent metrics connection to every origin in
// origins (each address is that origin's metrics listener) and returns a
// Service ready to Serve lookup queries on conn. Origins that cannot be
// dialed at startup are logged and omitted; they are simply never
// selected as a candidate.
func NewService(ctx context.Context, origins []topology.Neighbor, conn *net.UDPConn, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "rp")

	probes := make([]*probe, 0, len(origins))
	for _, origin := range origins {
		var d net.Dialer
		c, err := d.DialContext(ctx, "tcp", origin.String())
		if err != nil {
			log.Warn("failed to dial origin metrics connection", "origin", origin, "error", err)
			continue
		}
		probes = append(probes, &probe{origin: origin, conn: c})
	}

	return &Service{log: log, conn: conn, probes: probes}
}

// Serve reads lookup queries off conn and answers each on its own
// goroutine.
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
			return fmt.Errorf("rp: read: %w", err)
		}

		data := make([]byte, n)
		copy(data, buf[:n])
		fromAddr := *from

		go s.handleQuery(data, &fromAddr)
	}
}

func (s *Service) handleQuery(data []byte, from *net.UDPAddr) {
	query, err := wire.DecodeLookupQuery(data)
	if err != nil {
		s.log.Debug("dropping malformed query", "error", err)
		return
	}

	var answer *wire.LookupAnswer
	switch query.Kind {
	case wire.KindNeighbors:
		// A rendezvous point is a terminal node in the flood: it has no
		// neighbors of its own to report.
		answer = &wire.LookupAnswer{CorrelationID: query.CorrelationID, Status: wire.StatusOk, Kind: wire.KindNeighbors}
	case wire.KindFile:
		answer = s.answerFileQuery(query)
	default:
		answer = &wire.LookupAnswer{CorrelationID: query.CorrelationID, Status: wire.StatusError}
	}

	if _, err := s.conn.WriteToUDP(answer.Encode(), from); err != nil {
		s.log.Debug("failed to send answer", "error", err)
	}
}

// answerFileQuery probes every known origin in parallel and picks the
// lowest-scored one that reports the file present, returning it as a
// single-element reverse path (spec.md §4.5).
func (s *Service) answerFileQuery(query *wire.LookupQuery) *wire.LookupAnswer {
	type result struct {
		origin topology.Neighbor
		resp   *wire.MetricResponse
	}

	results := make(chan result, len(s.probes))
	var wg sync.WaitGroup
	for _, p := range s.probes {
		wg.Add(1)
		go func(p *probe) {
			defer wg.Done()
			resp, err := p.query(query.Filename)
			if err != nil {
				s.log.Debug("metric probe failed", "origin", p.origin, "error", err)
				return
			}
			s.log.Debug("metric probe answered", "origin", p.origin, "video_found", resp.VideoFound, "score", resp.Score())
			results <- result{origin: p.origin, resp: resp}
		}(p)
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	var candidates []result
	for r := range results {
		if r.resp.VideoFound {
			candidates = append(candidates, r)
		}
	}

	if len(candidates) == 0 {
		return &wire.LookupAnswer{CorrelationID: query.CorrelationID, Status: wire.StatusVideoNotFound, Kind: wire.KindFile}
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].resp.Score() < candidates[j].resp.Score()
	})
	best := candidates[0]

	return &wire.LookupAnswer{
		CorrelationID: query.CorrelationID,
		Status:        wire.StatusOk,
		Kind:          wire.KindFile,
		Path:          []topology.Neighbor{{Host: best.origin.Host, Port: int(best.resp.StreamingPort)}},
	}
}
