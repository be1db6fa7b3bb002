package wire

import (
	"fmt"
	"io"
)

// Message type tags for the origin↔RP metric probe framing (§4.5, §6).
const (
	MsgMetricRequest  uint64 = 0x10
	MsgMetricResponse uint64 = 0x11
)

// MetricRequest asks an origin for its current load metric on a filename.
type MetricRequest struct {
	Filename string
}

func (req *MetricRequest) encode() []byte {
	return putString(nil, req.Filename)
}

func decodeMetricRequest(payload []byte) (*MetricRequest, error) {
	r := &byteReader{buf: payload}
	filename, err := getString(r)
	if err != nil {
		return nil, fmt.Errorf("wire: read metric request filename: %w", err)
	}
	return &MetricRequest{Filename: filename}, nil
}

// MetricResponse reports an origin's load for a filename (spec.md §3).
// Score returns the load score; lower is less loaded.
type MetricResponse struct {
	VideoFound          bool
	AlreadyStreaming    bool
	NumberOfVideos      uint32
	NumberOfStreaming   uint32
	StreamingPort       uint16
}

// Score computes the load metric: 0.3·available + 0.7·streaming +
// (already_streaming ? 1 : 0). Lower is preferred.
func (m *MetricResponse) Score() float64 {
	score := 0.3*float64(m.NumberOfVideos) + 0.7*float64(m.NumberOfStreaming)
	if m.AlreadyStreaming {
		score++
	}
	return score
}

func (m *MetricResponse) encode() []byte {
	var buf []byte
	buf = append(buf, boolByte(m.VideoFound), boolByte(m.AlreadyStreaming))
	buf = putUvarint(buf, uint64(m.NumberOfVideos))
	buf = putUvarint(buf, uint64(m.NumberOfStreaming))
	buf = putUvarint(buf, uint64(m.StreamingPort))
	return buf
}

func decodeMetricResponse(payload []byte) (*MetricResponse, error) {
	r := &byteReader{buf: payload}

	found, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("wire: read video_found: %w", err)
	}
	streaming, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("wire: read already_streaming: %w", err)
	}
	available, err := getUvarint(r)
	if err != nil {
		return nil, fmt.Errorf("wire: read available count: %w", err)
	}
	numStreaming, err := getUvarint(r)
	if err != nil {
		return nil, fmt.Errorf("wire: read streaming count: %w", err)
	}
	port, err := getUvarint(r)
	if err != nil {
		return nil, fmt.Errorf("wire: read streaming port: %w", err)
	}

	return &MetricResponse{
		VideoFound:        found != 0,
		AlreadyStreaming:  streaming != 0,
		NumberOfVideos:    uint32(available),
		NumberOfStreaming: uint32(numStreaming),
		StreamingPort:     uint16(port),
	}, nil
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// WriteMetricRequest frames and writes req to w.
func WriteMetricRequest(w io.Writer, req *MetricRequest) error {
	return WriteMessage(w, MsgMetricRequest, req.encode())
}

// WriteMetricResponse frames and writes resp to w.
func WriteMetricResponse(w io.Writer, resp *MetricResponse) error {
	return WriteMessage(w, MsgMetricResponse, resp.encode())
}

// ReadMetricRequest reads one framed MetricRequest from r.
func ReadMetricRequest(r io.Reader) (*MetricRequest, error) {
	msgType, payload, err := ReadMessage(r)
	if err != nil {
		return nil, err
	}
	if msgType != MsgMetricRequest {
		return nil, fmt.Errorf("wire: expected metric request, got message type %d", msgType)
	}
	return decodeMetricRequest(payload)
}

// ReadMetricResponse reads one framed MetricResponse from r.
func ReadMetricResponse(r io.Reader) (*MetricResponse, error) {
	msgType, payload, err := ReadMessage(r)
	if err != nil {
		return nil, err
	}
	if msgType != MsgMetricResponse {
		return nil, fmt.Errorf("wire: expected metric response, got message type %d", msgType)
	}
	return decodeMetricResponse(payload)
}
