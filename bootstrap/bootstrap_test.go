package bootstrap

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/esrtp/overlay/topology"
)

func startService(t *testing.T, topo topology.Topology) (addr string, stop func()) {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	svc := NewService(topo, listener, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.Serve(ctx)
		close(done)
	}()

	return listener.Addr().String(), func() {
		cancel()
		<-done
	}
}

func TestRequestNeighborsKnownHost(t *testing.T) {
	t.Parallel()

	topo := topology.Topology{
		"relay-1": []topology.Neighbor{
			{Host: "relay-2", Port: 8000},
			{Host: "relay-3", Port: 8001},
		},
	}
	addr, stop := startService(t, topo)
	defer stop()

	neighbors, err := RequestNeighbors(context.Background(), addr, "relay-1")
	if err != nil {
		t.Fatalf("RequestNeighbors: %v", err)
	}
	if len(neighbors) != 2 || neighbors[0].Host != "relay-2" || neighbors[1].Host != "relay-3" {
		t.Fatalf("neighbors = %+v, want relay-2 then relay-3", neighbors)
	}
}

func TestRequestNeighborsKnownLeafHasNoNeighbors(t *testing.T) {
	t.Parallel()

	topo := topology.Topology{"leaf": {}}
	addr, stop := startService(t, topo)
	defer stop()

	neighbors, err := RequestNeighbors(context.Background(), addr, "leaf")
	if err != nil {
		t.Fatalf("RequestNeighbors: %v", err)
	}
	if len(neighbors) != 0 {
		t.Fatalf("neighbors = %+v, want none for a known leaf", neighbors)
	}
}

func TestRequestNeighborsUnknownHost(t *testing.T) {
	t.Parallel()

	topo := topology.Topology{"relay-1": nil}
	addr, stop := startService(t, topo)
	defer stop()

	_, err := RequestNeighbors(context.Background(), addr, "ghost")
	if err == nil {
		t.Fatal("RequestNeighbors succeeded for a host absent from the topology")
	}
}

func TestServeStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	svc := NewService(topology.Topology{}, listener, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- svc.Serve(ctx) }()

	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Serve returned %v after cancellation, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after context cancellation")
	}
}

func TestReadHostRejectsOverlongLine(t *testing.T) {
	t.Parallel()

	server, client := net.Pipe()
	defer client.Close()

	errCh := make(chan error, 1)
	go func() {
		_, err := readHost(server)
		errCh <- err
		server.Close()
	}()

	go func() {
		client.Write(make([]byte, 512))
	}()

	err := <-errCh
	if err == nil {
		t.Fatal("readHost accepted a line with no newline within its buffer")
	}
}
