package origin

import (
	"context"
	"net"

	"github.com/esrtp/overlay/wire"
)

// MetricsServer answers metric probes from rendezvous points over
// persistent reliable byte streams (spec.md §4.5/§6): one connection per
// RP, request/reply framed.
type MetricsServer struct {
	origin   *Server
	listener net.Listener
}

// NewMetricsServer creates a metrics responder bound to listener.
func NewMetricsServer(origin *Server, listener net.Listener) *MetricsServer {
	return &MetricsServer{origin: origin, listener: listener}
}

// Serve accepts RP connections until ctx is cancelled.
func (m *MetricsServer) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		m.listener.Close()
	}()

	for {
		conn, err := m.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		go m.handleConn(conn)
	}
}

func (m *MetricsServer) handleConn(conn net.Conn) {
	defer conn.Close()

	for {
		req, err := wire.ReadMetricRequest(conn)
		if err != nil {
			return
		}

		resp := m.origin.Metric(req.Filename)
		if err := wire.WriteMetricResponse(conn, resp); err != nil {
			return
		}
	}
}
