package channel

import (
	"io"
	"log/slog"
	"net"
	"testing"
	"time"
)

type sliceSource struct {
	frames [][]byte
	i      int
}

func (s *sliceSource) Next() ([]byte, error) {
	if s.i >= len(s.frames) {
		return nil, io.EOF
	}
	f := s.frames[s.i]
	s.i++
	return f, nil
}

func (s *sliceSource) Close() error { return nil }

func newTestChannel(t *testing.T, src Source) *Channel {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{})
	if err != nil {
		t.Fatalf("bind local conn: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return New("movie.Mjpeg", nil, conn, src)
}

func TestRoomAddRemove(t *testing.T) {
	t.Parallel()

	c := newTestChannel(t, &sliceSource{})
	sub := Subscriber{Addr: &net.UDPAddr{Port: 1}, SessionID: 1}

	if !c.AddToRoom(sub) {
		t.Fatal("AddToRoom returned false for a new subscriber")
	}
	if c.AddToRoom(sub) {
		t.Fatal("AddToRoom returned true for an already-present subscriber")
	}
	if !c.InRoom(sub) {
		t.Fatal("InRoom false after AddToRoom")
	}
	if got := c.RoomSize(); got != 1 {
		t.Fatalf("RoomSize = %d, want 1", got)
	}

	if remaining := c.RemoveFromRoom(sub); remaining != 0 {
		t.Fatalf("RemoveFromRoom returned %d, want 0", remaining)
	}
	if c.InRoom(sub) {
		t.Fatal("InRoom true after RemoveFromRoom")
	}
}

func TestRemoveFromRoomAlsoClearsPlayable(t *testing.T) {
	t.Parallel()

	c := newTestChannel(t, &sliceSource{})
	sub := Subscriber{Addr: &net.UDPAddr{Port: 1}, SessionID: 1}

	c.AddToRoom(sub)
	c.AddToPlayable(sub)
	if got := c.PlayableSize(); got != 1 {
		t.Fatalf("PlayableSize = %d, want 1", got)
	}

	c.RemoveFromRoom(sub)
	if got := c.PlayableSize(); got != 0 {
		t.Fatalf("PlayableSize after RemoveFromRoom = %d, want 0 (Playable must stay a subset of Room)", got)
	}
}

func TestPlayableAddRemove(t *testing.T) {
	t.Parallel()

	c := newTestChannel(t, &sliceSource{})
	a := Subscriber{Addr: &net.UDPAddr{Port: 1}, SessionID: 1}
	b := Subscriber{Addr: &net.UDPAddr{Port: 2}, SessionID: 2}

	c.AddToRoom(a)
	c.AddToRoom(b)
	c.AddToPlayable(a)
	c.AddToPlayable(b)

	if got := c.PlayableSize(); got != 2 {
		t.Fatalf("PlayableSize = %d, want 2", got)
	}

	remaining := c.RemoveFromPlayable(a)
	if remaining != 1 {
		t.Fatalf("RemoveFromPlayable returned %d, want 1", remaining)
	}

	snapshot := c.PlayableSnapshot()
	if len(snapshot) != 1 || snapshot[0] != b {
		t.Fatalf("PlayableSnapshot = %+v, want [%+v]", snapshot, b)
	}
}

func TestNextUpstreamCSeqIncrements(t *testing.T) {
	t.Parallel()

	c := newTestChannel(t, &sliceSource{})
	if got := c.NextUpstreamCSeq(); got != 1 {
		t.Fatalf("first NextUpstreamCSeq = %d, want 1", got)
	}
	if got := c.NextUpstreamCSeq(); got != 2 {
		t.Fatalf("second NextUpstreamCSeq = %d, want 2", got)
	}
}

func TestPumpStopsWhenPlayableEmpty(t *testing.T) {
	t.Parallel()

	src := &sliceSource{frames: [][]byte{[]byte("a"), []byte("b"), []byte("c")}}
	c := newTestChannel(t, src)
	// Playable starts empty: the pump must exit immediately without
	// consuming any frames (invariant: pump_alive ⇔ playable ≠ ∅).
	c.StartPump(slog.Default())
	c.StopPump()

	if c.HasPump() {
		t.Fatal("HasPump true after StopPump")
	}
}

func TestPumpStopsOnSourceEOF(t *testing.T) {
	t.Parallel()

	src := &sliceSource{frames: [][]byte{[]byte("a")}}
	c := newTestChannel(t, src)
	sub := Subscriber{Addr: &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 1}, SessionID: 1}
	c.AddToRoom(sub)
	c.AddToPlayable(sub)

	c.StartPump(slog.Default())

	deadline := time.After(2 * time.Second)
	for c.HasPump() {
		select {
		case <-deadline:
			t.Fatal("pump did not stop after source exhaustion")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestSetSource(t *testing.T) {
	t.Parallel()

	c := newTestChannel(t, nil)
	src := &sliceSource{}
	c.SetSource(src)
	if c.source != src {
		t.Fatal("SetSource did not attach the given source")
	}
}
