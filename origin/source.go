// Package origin implements the terminal node role: it owns video files,
// answers metric probes from rendezvous points, and pumps frames to
// whichever relay or player has SETUP/PLAYed a title (spec.md §4.6).
package origin

import (
	"math/rand"
	"time"

	"github.com/esrtp/overlay/rtp"
	"github.com/esrtp/overlay/video"
	"github.com/esrtp/overlay/wire"
)

// pacingInterval is the fixed inter-frame sleep, yielding a nominal 20fps
// (spec.md §4.6). Pacing lives only at the origin: relays forward packets
// as they arrive rather than re-pacing them, so jitter never compounds
// across hops.
const pacingInterval = 50 * time.Millisecond

// frameSource wraps a video.Source, producing wire-framed RTP packets
// paced at pacingInterval. It implements channel.Source.
type frameSource struct {
	video *video.Source
	ssrc  uint32
}

// newFrameSource opens path and builds a paced RTP packet source for it.
func newFrameSource(path string) (*frameSource, error) {
	v, err := video.Open(path)
	if err != nil {
		return nil, err
	}
	return &frameSource{video: v, ssrc: rand.Uint32()}, nil
}

// Next blocks for pacingInterval, then returns the next wire-framed RTP
// packet. The frame counter increases monotonically across file loops and
// becomes the RTP sequence number (mod 2^16) and timestamp.
func (f *frameSource) Next() ([]byte, error) {
	time.Sleep(pacingInterval)

	payload, counter, err := f.video.NextFrame()
	if err != nil {
		return nil, err
	}

	pkt := &rtp.Packet{
		PayloadType:    rtp.PayloadTypeJPEG,
		SequenceNumber: uint16(counter % 65536),
		Timestamp:      uint32(counter),
		SSRC:           f.ssrc,
		Payload:        payload,
	}
	return wire.EncodeMediaDatagram(pkt.Encode()), nil
}

// Close releases the underlying video file handle.
func (f *frameSource) Close() error {
	return f.video.Close()
}
