package rp

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/esrtp/overlay/topology"
	"github.com/esrtp/overlay/wire"
)

// fakeOrigin is a minimal stand-in for an origin's metrics responder: it
// answers every MetricRequest with a fixed response.
type fakeOrigin struct {
	listener net.Listener
	resp     wire.MetricResponse
}

func newFakeOrigin(t *testing.T, resp wire.MetricResponse) *fakeOrigin {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	o := &fakeOrigin{listener: listener, resp: resp}

	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, err := wire.ReadMetricRequest(conn); err != nil {
				return
			}
			r := o.resp
			wire.WriteMetricResponse(conn, &r)
		}
	}()

	return o
}

func (o *fakeOrigin) neighbor(t *testing.T) topology.Neighbor {
	t.Helper()
	host, portStr, err := net.SplitHostPort(o.listener.Addr().String())
	if err != nil {
		t.Fatalf("split address: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("parse port: %v", err)
	}
	return topology.Neighbor{Host: host, Port: port}
}

func newUDPPair(t *testing.T) (serverConn *net.UDPConn, clientConn *net.UDPConn) {
	t.Helper()
	serverConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	if err != nil {
		t.Fatalf("bind server conn: %v", err)
	}
	clientConn, err = net.DialUDP("udp", nil, serverConn.LocalAddr().(*net.UDPAddr))
	if err != nil {
		t.Fatalf("dial client conn: %v", err)
	}
	return serverConn, clientConn
}

func TestAnswerFileQueryPicksLeastLoadedOrigin(t *testing.T) {
	t.Parallel()

	busy := newFakeOrigin(t, wire.MetricResponse{VideoFound: true, NumberOfVideos: 10, NumberOfStreaming: 10, StreamingPort: 9001})
	idle := newFakeOrigin(t, wire.MetricResponse{VideoFound: true, NumberOfVideos: 1, NumberOfStreaming: 0, StreamingPort: 9002})
	defer busy.listener.Close()
	defer idle.listener.Close()

	serverConn, clientConn := newUDPPair(t)
	defer serverConn.Close()
	defer clientConn.Close()

	svc := NewService(context.Background(), []topology.Neighbor{busy.neighbor(t), idle.neighbor(t)}, serverConn, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svc.Serve(ctx)

	query := &wire.LookupQuery{CorrelationID: 42, Kind: wire.KindFile, Filename: "movie.Mjpeg"}
	if _, err := clientConn.Write(query.Encode()); err != nil {
		t.Fatalf("write query: %v", err)
	}

	clientConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 4096)
	n, err := clientConn.Read(buf)
	if err != nil {
		t.Fatalf("read answer: %v", err)
	}
	answer, err := wire.DecodeLookupAnswer(buf[:n])
	if err != nil {
		t.Fatalf("DecodeLookupAnswer: %v", err)
	}
	if answer.Status != wire.StatusOk {
		t.Fatalf("Status = %v, want Ok", answer.Status)
	}
	if len(answer.Path) != 1 || answer.Path[0].Port != 9002 {
		t.Fatalf("Path = %+v, want the idle origin's streaming port 9002", answer.Path)
	}
}

func TestAnswerFileQueryNoOriginHasVideo(t *testing.T) {
	t.Parallel()

	origin := newFakeOrigin(t, wire.MetricResponse{VideoFound: false})
	defer origin.listener.Close()

	serverConn, clientConn := newUDPPair(t)
	defer serverConn.Close()
	defer clientConn.Close()

	svc := NewService(context.Background(), []topology.Neighbor{origin.neighbor(t)}, serverConn, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svc.Serve(ctx)

	query := &wire.LookupQuery{CorrelationID: 7, Kind: wire.KindFile, Filename: "missing.Mjpeg"}
	clientConn.Write(query.Encode())

	clientConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 4096)
	n, err := clientConn.Read(buf)
	if err != nil {
		t.Fatalf("read answer: %v", err)
	}
	answer, err := wire.DecodeLookupAnswer(buf[:n])
	if err != nil {
		t.Fatalf("DecodeLookupAnswer: %v", err)
	}
	if answer.Status != wire.StatusVideoNotFound {
		t.Fatalf("Status = %v, want VideoNotFound", answer.Status)
	}
}

func TestHandleNeighborsQueryReturnsEmptyPath(t *testing.T) {
	t.Parallel()

	serverConn, clientConn := newUDPPair(t)
	defer serverConn.Close()
	defer clientConn.Close()

	svc := NewService(context.Background(), nil, serverConn, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svc.Serve(ctx)

	query := &wire.LookupQuery{CorrelationID: 1, Kind: wire.KindNeighbors}
	clientConn.Write(query.Encode())

	clientConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 4096)
	n, err := clientConn.Read(buf)
	if err != nil {
		t.Fatalf("read answer: %v", err)
	}
	answer, err := wire.DecodeLookupAnswer(buf[:n])
	if err != nil {
		t.Fatalf("DecodeLookupAnswer: %v", err)
	}
	if answer.Status != wire.StatusOk || len(answer.Path) != 0 {
		t.Fatalf("answer = %+v, want Ok status with an empty path: a rendezvous point is a flood terminal", answer)
	}
}

func TestNewServiceSkipsUndialableOrigin(t *testing.T) {
	t.Parallel()

	// Bind and immediately close a listener to get a guaranteed-unused
	// address: dialing it must fail, and NewService must skip it rather
	// than error or panic.
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := listener.Addr().String()
	listener.Close()

	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("split address: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("parse port: %v", err)
	}

	serverConn, clientConn := newUDPPair(t)
	defer serverConn.Close()
	defer clientConn.Close()

	svc := NewService(context.Background(), []topology.Neighbor{{Host: host, Port: port}}, serverConn, nil)
	if len(svc.probes) != 0 {
		t.Fatalf("probes = %d, want 0 for an origin that refused the dial", len(svc.probes))
	}
}
