// Package rtp defines the minimal RTP packet representation carried from
// origin servers through relays to players, and its wire encoding.
package rtp

import (
	"encoding/binary"
	"errors"
)

// HeaderSize is the fixed RTP header length used by this network: no CSRC
// list, no extension.
const HeaderSize = 12

// version is the RTP version this network speaks.
const version = 2

// PayloadTypeJPEG is the RTP payload type used for MJPEG frame payloads.
const PayloadTypeJPEG = 26

// ErrShortPacket indicates a buffer too small to contain an RTP header.
var ErrShortPacket = errors.New("rtp: packet shorter than header")

// Packet is a single RTP packet: a 12-byte header plus an opaque payload.
// The header/payload split is preserved across encode/decode so packets
// round-trip byte-for-byte.
type Packet struct {
	Marker         bool
	PayloadType    byte
	SequenceNumber uint16
	Timestamp      uint32
	SSRC           uint32
	Payload        []byte
}

// Encode serializes the packet to its wire representation: 12-byte header
// followed by the payload.
func (p *Packet) Encode() []byte {
	buf := make([]byte, HeaderSize+len(p.Payload))

	buf[0] = version << 6 // padding, extension, CSRC count all zero
	b1 := p.PayloadType & 0x7f
	if p.Marker {
		b1 |= 0x80
	}
	buf[1] = b1
	binary.BigEndian.PutUint16(buf[2:4], p.SequenceNumber)
	binary.BigEndian.PutUint32(buf[4:8], p.Timestamp)
	binary.BigEndian.PutUint32(buf[8:12], p.SSRC)
	copy(buf[HeaderSize:], p.Payload)

	return buf
}

// Decode parses a wire-format RTP packet. The returned Packet's Payload
// aliases buf; callers that retain buf across reuse should copy it first.
func Decode(buf []byte) (*Packet, error) {
	if len(buf) < HeaderSize {
		return nil, ErrShortPacket
	}

	p := &Packet{
		Marker:         buf[1]&0x80 != 0,
		PayloadType:    buf[1] & 0x7f,
		SequenceNumber: binary.BigEndian.Uint16(buf[2:4]),
		Timestamp:      binary.BigEndian.Uint32(buf[4:8]),
		SSRC:           binary.BigEndian.Uint32(buf[8:12]),
		Payload:        buf[HeaderSize:],
	}
	return p, nil
}
