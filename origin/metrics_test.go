package origin

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/esrtp/overlay/wire"
)

func TestMetricsServerRoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "movie.Mjpeg"), []byte("00003abc"), 0644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	srv := NewServer(dir, 8554, nil)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	metrics := NewMetricsServer(srv, listener)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		metrics.Serve(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	conn, err := net.DialTimeout("tcp", listener.Addr().String(), time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := wire.WriteMetricRequest(conn, &wire.MetricRequest{Filename: "movie.Mjpeg"}); err != nil {
		t.Fatalf("WriteMetricRequest: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(time.Second))
	resp, err := wire.ReadMetricResponse(conn)
	if err != nil {
		t.Fatalf("ReadMetricResponse: %v", err)
	}
	if !resp.VideoFound {
		t.Error("VideoFound = false, want true")
	}
	if resp.StreamingPort != 8554 {
		t.Errorf("StreamingPort = %d, want 8554", resp.StreamingPort)
	}
}
