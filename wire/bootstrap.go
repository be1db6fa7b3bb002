package wire

import (
	"fmt"
	"io"

	"github.com/esrtp/overlay/topology"
)

// Message type tags for the bootstrap get-neighbors framing (§4.1).
const (
	MsgNeighborsResponse uint64 = 0x20
)

// NeighborsResponse answers a get-neighbors request. Found distinguishes
// "caller unknown" (Found=false) from "caller known, no neighbors"
// (Found=true, empty Neighbors) — the two must never be conflated.
type NeighborsResponse struct {
	Found     bool
	Neighbors []topology.Neighbor
}

func (resp *NeighborsResponse) encode() []byte {
	var buf []byte
	buf = append(buf, boolByte(resp.Found))
	buf = putNeighbors(buf, resp.Neighbors)
	return buf
}

func decodeNeighborsResponse(payload []byte) (*NeighborsResponse, error) {
	r := &byteReader{buf: payload}
	found, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("wire: read found flag: %w", err)
	}
	neighbors, err := getNeighbors(r)
	if err != nil {
		return nil, fmt.Errorf("wire: read neighbors: %w", err)
	}
	return &NeighborsResponse{Found: found != 0, Neighbors: neighbors}, nil
}

// WriteNeighborsResponse frames and writes resp to w. The request is not
// framed: the caller writes its own topology host key as one
// newline-terminated line, and the bootstrap service looks up that key.
// The connection's source address is not used for the lookup.
func WriteNeighborsResponse(w io.Writer, resp *NeighborsResponse) error {
	return WriteMessage(w, MsgNeighborsResponse, resp.encode())
}

// ReadNeighborsResponse reads one framed NeighborsResponse from r.
func ReadNeighborsResponse(r io.Reader) (*NeighborsResponse, error) {
	msgType, payload, err := ReadMessage(r)
	if err != nil {
		return nil, err
	}
	if msgType != MsgNeighborsResponse {
		return nil, fmt.Errorf("wire: expected neighbors response, got message type %d", msgType)
	}
	return decodeNeighborsResponse(payload)
}
