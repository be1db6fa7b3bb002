package signaling

import (
	"context"
	"log/slog"
	"net"

	"github.com/esrtp/overlay/wire"
)

// Server accepts persistent signaling connections from downstream clients
// (players, or other relays acting as downstream clients) and dispatches
// each connection's requests against a NodeBehavior.
type Server struct {
	log      *slog.Logger
	listener net.Listener
	behavior NodeBehavior
}

// NewServer creates a signaling server on the given listener.
func NewServer(listener net.Listener, behavior NodeBehavior, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		log:      log.With("component", "signaling"),
		listener: listener,
		behavior: behavior,
	}
}

// Serve accepts connections until ctx is cancelled, handling each on its
// own goroutine.
func (s *Server) Serve(ctx context.Context) error {
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
			return err
		}
		go s.handleConn(ctx, conn)
	}
}

// handleConn processes every request on one persistent connection in
// order, until the stream errs or closes. Loss of the connection is
// treated as an implicit TEARDOWN of every session it opened (spec.md §7).
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	sessions := make(map[uint32]*Session)
	defer s.teardownAll(ctx, sessions)

	remoteHost, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		remoteHost = conn.RemoteAddr().String()
	}

	for {
		req, err := wire.ReadSignalingRequest(conn)
		if err != nil {
			return
		}

		clientAddr := &net.UDPAddr{IP: net.ParseIP(remoteHost), Port: int(req.RTPPort)}

		resp, tornDown, didTeardown := Dispatch(ctx, s.behavior, sessions, clientAddr, req, s.log)
		if didTeardown {
			delete(sessions, tornDown)
		}

		if err := wire.WriteSignalingResponse(conn, resp); err != nil {
			return
		}
	}
}

// teardownAll synthesizes a TEARDOWN for every session still open when the
// connection is lost, honoring the same Room/Playable/registry cleanup as
// an explicit TEARDOWN.
func (s *Server) teardownAll(ctx context.Context, sessions map[uint32]*Session) {
	for _, sess := range sessions {
		remaining := sess.Channel.RemoveFromRoom(sess.Subscriber())
		if remaining == 0 {
			s.behavior.Channels().Remove(sess.Filename)
			s.behavior.TeardownChannel(ctx, sess.Channel)
		}
	}
}
