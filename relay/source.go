// Package relay implements the intermediate relay node role: it
// participates in lookup flooding (via the lookup package) and fans out a
// single upstream media pull to many downstream subscribers by
// implementing signaling.NodeBehavior with an upstream dial (spec.md
// §4.4).
package relay

import "net"

// forwardSource reads already wire-framed media datagrams arriving from
// upstream on conn and forwards them verbatim: the origin writes one
// length-prefixed RTP packet per UDP datagram, so each read yields exactly
// one frame with no re-framing needed.
type forwardSource struct {
	conn *net.UDPConn
	buf  []byte
}

// maxDatagramSize bounds a single media datagram (length prefix + RTP
// header + JPEG payload).
const maxDatagramSize = 65535

func newForwardSource(conn *net.UDPConn) *forwardSource {
	return &forwardSource{conn: conn, buf: make([]byte, maxDatagramSize)}
}

// Next reads the next media datagram from upstream.
func (f *forwardSource) Next() ([]byte, error) {
	n, err := f.conn.Read(f.buf)
	if err != nil {
		return nil, err
	}
	frame := make([]byte, n)
	copy(frame, f.buf[:n])
	return frame, nil
}

// Close closes the underlying UDP socket.
func (f *forwardSource) Close() error {
	return f.conn.Close()
}
