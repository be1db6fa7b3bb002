// Package wire implements the binary serialization used for every
// signaling, lookup, and metric message exchanged across the overlay, plus
// the length-prefixed framing used for media datagrams.
//
// Variable-length integers use QUIC-style varints via quicvarint. Messages
// are framed as [type varint][length uint16 BE][payload], reused for every
// request/response pair in the system.
package wire

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/quic-go/quic-go/quicvarint"

	"github.com/esrtp/overlay/topology"
)

// putUvarint appends v to buf using QUIC varint encoding.
func putUvarint(buf []byte, v uint64) []byte {
	return quicvarint.Append(buf, v)
}

// putString appends a varint-length-prefixed UTF-8 string to buf.
func putString(buf []byte, s string) []byte {
	buf = putUvarint(buf, uint64(len(s)))
	return append(buf, s...)
}

// putNeighbors appends a varint-length-prefixed neighbor list to buf.
func putNeighbors(buf []byte, neighbors []topology.Neighbor) []byte {
	buf = putUvarint(buf, uint64(len(neighbors)))
	for _, n := range neighbors {
		buf = putString(buf, n.Host)
		buf = putUvarint(buf, uint64(n.Port))
	}
	return buf
}

// byteReader adapts a []byte cursor to the io.ByteReader quicvarint needs.
type byteReader struct {
	buf []byte
	pos int
}

func (r *byteReader) ReadByte() (byte, error) {
	if r.pos >= len(r.buf) {
		return 0, io.ErrUnexpectedEOF
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

func getUvarint(r *byteReader) (uint64, error) {
	return quicvarint.Read(r)
}

func getString(r *byteReader) (string, error) {
	n, err := getUvarint(r)
	if err != nil {
		return "", fmt.Errorf("wire: read string length: %w", err)
	}
	if r.pos+int(n) > len(r.buf) {
		return "", io.ErrUnexpectedEOF
	}
	s := string(r.buf[r.pos : r.pos+int(n)])
	r.pos += int(n)
	return s, nil
}

func getNeighbors(r *byteReader) ([]topology.Neighbor, error) {
	count, err := getUvarint(r)
	if err != nil {
		return nil, fmt.Errorf("wire: read neighbor count: %w", err)
	}
	neighbors := make([]topology.Neighbor, count)
	for i := range neighbors {
		host, err := getString(r)
		if err != nil {
			return nil, fmt.Errorf("wire: read neighbor host: %w", err)
		}
		port, err := getUvarint(r)
		if err != nil {
			return nil, fmt.Errorf("wire: read neighbor port: %w", err)
		}
		neighbors[i] = topology.Neighbor{Host: host, Port: int(port)}
	}
	return neighbors, nil
}

// ReadMessage reads one framed message from r: [type varint][length uint16
// BE][payload].
func ReadMessage(r io.Reader) (msgType uint64, payload []byte, err error) {
	br, ok := r.(io.ByteReader)
	if !ok {
		bufr := bufio.NewReader(r)
		br = bufr
		r = bufr
	}

	msgType, err = quicvarint.Read(br)
	if err != nil {
		return 0, nil, fmt.Errorf("wire: read message type: %w", err)
	}

	var lenBuf [2]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return 0, nil, fmt.Errorf("wire: read message length: %w", err)
	}
	length := binary.BigEndian.Uint16(lenBuf[:])

	payload = make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return 0, nil, fmt.Errorf("wire: read message payload: %w", err)
		}
	}
	return msgType, payload, nil
}

// WriteMessage writes a framed message to w as a single Write call so
// concurrent writers on the same stream cannot interleave a partial frame.
func WriteMessage(w io.Writer, msgType uint64, payload []byte) error {
	var buf []byte
	buf = putUvarint(buf, msgType)

	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(payload)))
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, payload...)

	_, err := w.Write(buf)
	return err
}
