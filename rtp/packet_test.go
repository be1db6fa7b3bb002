package rtp

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	t.Parallel()

	p := &Packet{
		Marker:         true,
		PayloadType:    PayloadTypeJPEG,
		SequenceNumber: 42,
		Timestamp:      123456,
		SSRC:           0xdeadbeef,
		Payload:        []byte("frame payload"),
	}

	got, err := Decode(p.Encode())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if got.Marker != p.Marker {
		t.Errorf("Marker = %v, want %v", got.Marker, p.Marker)
	}
	if got.PayloadType != p.PayloadType {
		t.Errorf("PayloadType = %d, want %d", got.PayloadType, p.PayloadType)
	}
	if got.SequenceNumber != p.SequenceNumber {
		t.Errorf("SequenceNumber = %d, want %d", got.SequenceNumber, p.SequenceNumber)
	}
	if got.Timestamp != p.Timestamp {
		t.Errorf("Timestamp = %d, want %d", got.Timestamp, p.Timestamp)
	}
	if got.SSRC != p.SSRC {
		t.Errorf("SSRC = %#x, want %#x", got.SSRC, p.SSRC)
	}
	if !bytes.Equal(got.Payload, p.Payload) {
		t.Errorf("Payload = %q, want %q", got.Payload, p.Payload)
	}
}

func TestDecodeNoMarker(t *testing.T) {
	t.Parallel()

	p := &Packet{PayloadType: 26, SequenceNumber: 1, Timestamp: 1, SSRC: 1}
	got, err := Decode(p.Encode())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Marker {
		t.Error("Marker = true, want false")
	}
}

func TestDecodeShortPacket(t *testing.T) {
	t.Parallel()

	_, err := Decode(make([]byte, HeaderSize-1))
	if err != ErrShortPacket {
		t.Fatalf("got error %v, want ErrShortPacket", err)
	}
}

func TestEncodeEmptyPayload(t *testing.T) {
	t.Parallel()

	p := &Packet{PayloadType: 26}
	buf := p.Encode()
	if len(buf) != HeaderSize {
		t.Fatalf("len(buf) = %d, want %d", len(buf), HeaderSize)
	}
}
