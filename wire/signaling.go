package wire

import (
	"fmt"
	"io"

	"github.com/esrtp/overlay/topology"
)

// Message type tags for the signaling byte-stream framing (§4.7).
const (
	MsgSignalingRequest  uint64 = 0x01
	MsgSignalingResponse uint64 = 0x02
)

// Method is the signaling verb (spec.md §3/§4.3).
type Method byte

// Signaling methods.
const (
	MethodSetup Method = iota
	MethodPlay
	MethodPause
	MethodTeardown
)

func (m Method) String() string {
	switch m {
	case MethodSetup:
		return "SETUP"
	case MethodPlay:
		return "PLAY"
	case MethodPause:
		return "PAUSE"
	case MethodTeardown:
		return "TEARDOWN"
	default:
		return "UNKNOWN"
	}
}

// Status is the numeric signaling response status (spec.md §3).
type Status uint16

// Signaling response statuses.
const (
	StatusSigOk              Status = 200
	StatusSigFileNotFound    Status = 404
	StatusSigConnectionError Status = 500
)

// SignalingRequest is a SETUP/PLAY/PAUSE/TEARDOWN request sent over a
// persistent reliable byte stream. ServersToContact is the reverse path
// from the lookup answer, treated as a stack: each hop pops one entry
// (from the end) before forwarding the remainder upstream.
type SignalingRequest struct {
	Method           Method
	Filename         string
	CSeq             uint32
	RTPPort          uint16
	SessionID        uint32 // set on Play/Pause/Teardown, ignored on Setup
	ServersToContact []topology.Neighbor
}

// Encode serializes the request body (without the outer message framing).
func (req *SignalingRequest) Encode() []byte {
	var buf []byte
	buf = append(buf, byte(req.Method))
	buf = putString(buf, req.Filename)
	buf = putUvarint(buf, uint64(req.CSeq))
	buf = putUvarint(buf, uint64(req.RTPPort))
	buf = putUvarint(buf, uint64(req.SessionID))
	buf = putNeighbors(buf, req.ServersToContact)
	return buf
}

func decodeSignalingRequest(payload []byte) (*SignalingRequest, error) {
	r := &byteReader{buf: payload}

	methodByte, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("wire: read method: %w", err)
	}
	filename, err := getString(r)
	if err != nil {
		return nil, fmt.Errorf("wire: read filename: %w", err)
	}
	cseq, err := getUvarint(r)
	if err != nil {
		return nil, fmt.Errorf("wire: read cseq: %w", err)
	}
	port, err := getUvarint(r)
	if err != nil {
		return nil, fmt.Errorf("wire: read rtp port: %w", err)
	}
	sessionID, err := getUvarint(r)
	if err != nil {
		return nil, fmt.Errorf("wire: read session id: %w", err)
	}
	servers, err := getNeighbors(r)
	if err != nil {
		return nil, fmt.Errorf("wire: read servers to contact: %w", err)
	}

	return &SignalingRequest{
		Method:           Method(methodByte),
		Filename:         filename,
		CSeq:             uint32(cseq),
		RTPPort:          uint16(port),
		SessionID:        uint32(sessionID),
		ServersToContact: servers,
	}, nil
}

// SignalingResponse is the reply to a SignalingRequest.
type SignalingResponse struct {
	Status    Status
	CSeq      uint32
	SessionID uint32
}

// Encode serializes the response body (without the outer message framing).
func (resp *SignalingResponse) Encode() []byte {
	var buf []byte
	buf = putUvarint(buf, uint64(resp.Status))
	buf = putUvarint(buf, uint64(resp.CSeq))
	buf = putUvarint(buf, uint64(resp.SessionID))
	return buf
}

func decodeSignalingResponse(payload []byte) (*SignalingResponse, error) {
	r := &byteReader{buf: payload}

	status, err := getUvarint(r)
	if err != nil {
		return nil, fmt.Errorf("wire: read status: %w", err)
	}
	cseq, err := getUvarint(r)
	if err != nil {
		return nil, fmt.Errorf("wire: read cseq: %w", err)
	}
	sessionID, err := getUvarint(r)
	if err != nil {
		return nil, fmt.Errorf("wire: read session id: %w", err)
	}

	return &SignalingResponse{
		Status:    Status(status),
		CSeq:      uint32(cseq),
		SessionID: uint32(sessionID),
	}, nil
}

// WriteSignalingRequest frames and writes req to w.
func WriteSignalingRequest(w io.Writer, req *SignalingRequest) error {
	return WriteMessage(w, MsgSignalingRequest, req.Encode())
}

// WriteSignalingResponse frames and writes resp to w.
func WriteSignalingResponse(w io.Writer, resp *SignalingResponse) error {
	return WriteMessage(w, MsgSignalingResponse, resp.Encode())
}

// ReadSignalingRequest reads one framed SignalingRequest from r.
func ReadSignalingRequest(r io.Reader) (*SignalingRequest, error) {
	msgType, payload, err := ReadMessage(r)
	if err != nil {
		return nil, err
	}
	if msgType != MsgSignalingRequest {
		return nil, fmt.Errorf("wire: expected signaling request, got message type %d", msgType)
	}
	return decodeSignalingRequest(payload)
}

// ReadSignalingResponse reads one framed SignalingResponse from r.
func ReadSignalingResponse(r io.Reader) (*SignalingResponse, error) {
	msgType, payload, err := ReadMessage(r)
	if err != nil {
		return nil, err
	}
	if msgType != MsgSignalingResponse {
		return nil, fmt.Errorf("wire: expected signaling response, got message type %d", msgType)
	}
	return decodeSignalingResponse(payload)
}
