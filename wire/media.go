package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// mediaLengthSize is the length prefix on every media frame on the wire
// (spec.md §4.7): 8-byte little-endian length of the RTP packet.
const mediaLengthSize = 8

// WriteMediaFrame writes an RTP packet's wire bytes length-prefixed.
func WriteMediaFrame(w io.Writer, rtpBytes []byte) error {
	var lenBuf [mediaLengthSize]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(rtpBytes)))

	buf := make([]byte, 0, mediaLengthSize+len(rtpBytes))
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, rtpBytes...)

	_, err := w.Write(buf)
	return err
}

// ReadMediaFrame reads one length-prefixed RTP packet from r. Receivers
// must peek the 8-byte length to size the receive buffer before consuming
// the datagram (spec.md §4.7); on a stream-oriented r this instead reads
// the prefix then exactly that many payload bytes.
func ReadMediaFrame(r io.Reader) ([]byte, error) {
	var lenBuf [mediaLengthSize]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, fmt.Errorf("wire: read media frame length: %w", err)
	}
	length := binary.LittleEndian.Uint64(lenBuf[:])

	payload := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, fmt.Errorf("wire: read media frame payload: %w", err)
		}
	}
	return payload, nil
}

// DecodeMediaDatagram splits a single UDP datagram already containing the
// 8-byte length prefix followed by the RTP packet, returning the RTP bytes.
// Used when the transport is already datagram-framed and no further read
// is needed to find the boundary.
func DecodeMediaDatagram(buf []byte) ([]byte, error) {
	if len(buf) < mediaLengthSize {
		return nil, fmt.Errorf("wire: media datagram shorter than length prefix")
	}
	length := binary.LittleEndian.Uint64(buf[:mediaLengthSize])
	if mediaLengthSize+int(length) > len(buf) {
		return nil, fmt.Errorf("wire: media datagram length %d exceeds buffer", length)
	}
	return buf[mediaLengthSize : mediaLengthSize+int(length)], nil
}

// EncodeMediaDatagram prepends the 8-byte length prefix to rtpBytes,
// producing a single buffer suitable for one UDP WriteTo call.
func EncodeMediaDatagram(rtpBytes []byte) []byte {
	buf := make([]byte, mediaLengthSize+len(rtpBytes))
	binary.LittleEndian.PutUint64(buf[:mediaLengthSize], uint64(len(rtpBytes)))
	copy(buf[mediaLengthSize:], rtpBytes)
	return buf
}
