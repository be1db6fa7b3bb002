package origin

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/esrtp/overlay/rtp"
	"github.com/esrtp/overlay/wire"
)

func TestFrameSourceNextProducesRTP(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "movie.Mjpeg")
	if err := os.WriteFile(path, []byte("00005hello"), 0644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	src, err := newFrameSource(path)
	if err != nil {
		t.Fatalf("newFrameSource: %v", err)
	}
	defer src.Close()

	datagram, err := src.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}

	rtpBytes, err := wire.DecodeMediaDatagram(datagram)
	if err != nil {
		t.Fatalf("DecodeMediaDatagram: %v", err)
	}
	pkt, err := rtp.Decode(rtpBytes)
	if err != nil {
		t.Fatalf("rtp.Decode: %v", err)
	}
	if pkt.PayloadType != rtp.PayloadTypeJPEG {
		t.Errorf("PayloadType = %d, want %d", pkt.PayloadType, rtp.PayloadTypeJPEG)
	}
	if string(pkt.Payload) != "hello" {
		t.Errorf("Payload = %q, want %q", pkt.Payload, "hello")
	}
	if pkt.SequenceNumber != 1 {
		t.Errorf("SequenceNumber = %d, want 1 for the first frame", pkt.SequenceNumber)
	}
}
